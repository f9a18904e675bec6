package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("purchasing_backend/confirmation")

// Service records supplier link opens and delivery confirmations.
type Service struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Clock  func() time.Time
}

func NewService(db *gorm.DB, logger *logrus.Logger) *Service {
	return &Service{DB: db, Logger: logger, Clock: time.Now}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

func (s *Service) logger() *logrus.Logger {
	if s.Logger == nil {
		return config.GetLogger()
	}
	return s.Logger
}

// Track marks the order as read and leaves an "opened" ledger row. It never fails; errors are logged.
func (s *Service) Track(ctx context.Context, orderId int, sourceIp, userAgent string) {
	if orderId <= 0 {
		return
	}
	ctx, span := tracer.Start(ctx, "confirmation.Track")
	defer span.End()
	span.SetAttributes(attribute.Int("purchase_order_id", orderId))

	log := s.logger().WithFields(logrus.Fields{
		"field":             "confirmation.Track",
		"purchase_order_id": orderId,
	})

	if _, err := models.GetPurchaseOrder(ctx, s.DB, orderId); err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Warn("failed to load purchase order: " + err.Error())
		}
		return
	}
	if _, err := models.MarkFirstRead(ctx, s.DB, orderId, s.now()); err != nil {
		log.Warn("failed to mark first read: " + err.Error())
	}
	if _, err := models.RecordLinkOpened(ctx, s.DB, orderId, sourceIp, userAgent); err != nil {
		log.Warn("failed to record link opened: " + err.Error())
	}
}

// Confirm records the supplier's confirmation of an order at most once. Only datastore
// failures are returned as errors; repeated or racing confirmations end as OutcomeAlreadyConfirmed.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	ctx, span := tracer.Start(ctx, "confirmation.Confirm")
	defer span.End()
	span.SetAttributes(attribute.Int("purchase_order_id", req.OrderId))

	ctx = utils.SystemContext(ctx)
	log := s.logger().WithFields(logrus.Fields{
		"field":             "confirmation.Confirm",
		"purchase_order_id": req.OrderId,
	})

	existing, err := models.FindConfirmedRecord(ctx, s.DB, req.OrderId)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("find confirmation: %w", err)
	}
	if existing != nil {
		return s.alreadyConfirmed(ctx, req.OrderId, existing), nil
	}

	order, err := models.GetPurchaseOrderWithInstallments(ctx, s.DB, req.OrderId)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &ConfirmResult{Outcome: OutcomeNotFound}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load purchase order: %w", err)
	}

	record, err := models.RecordConfirmation(ctx, s.DB, order.ID, req.SourceIp, req.UserAgent, s.now())
	if err != nil {
		if errors.Is(err, models.ErrAlreadyConfirmed) {
			winner, findErr := models.FindConfirmedRecord(ctx, s.DB, order.ID)
			if findErr != nil {
				span.RecordError(findErr)
				return nil, fmt.Errorf("find confirmation: %w", findErr)
			}
			result := &ConfirmResult{Outcome: OutcomeAlreadyConfirmed, OrderFolio: order.OrderNumber}
			if winner != nil {
				result.ConfirmedAt = winner.ConfirmedAt
			}
			return result, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("record confirmation: %w", err)
	}

	result := &ConfirmResult{
		Outcome:     OutcomeConfirmed,
		OrderFolio:  order.OrderNumber,
		ConfirmedAt: record.ConfirmedAt,
	}

	switch d := models.DeliveryOf(order, order.Installments).(type) {
	case models.MultiDelivery:
		for _, id := range utils.UniqueSlice(req.InstallmentIds) {
			instLog := log.WithField("installment_id", id)
			if d.Installment(id) == nil {
				instLog.Warn("installment does not belong to the order; ignoring")
				continue
			}
			if err := models.MarkConfirmed(ctx, s.DB, models.InstallmentTarget(order.ID, id)); err != nil {
				instLog.Warn("failed to mark installment confirmed: " + err.Error())
				continue
			}
			result.ConfirmedInstallments = append(result.ConfirmedInstallments, id)
		}
	case models.SingleDelivery:
		if err := models.MarkConfirmed(ctx, s.DB, models.OrderTarget(order.ID)); err != nil {
			log.Warn("failed to mark order confirmed: " + err.Error())
		}
	}

	log.WithField("installments", result.ConfirmedInstallments).Info("delivery confirmed by supplier")
	return result, nil
}

func (s *Service) alreadyConfirmed(ctx context.Context, orderId int, record *models.ConfirmationRecord) *ConfirmResult {
	result := &ConfirmResult{Outcome: OutcomeAlreadyConfirmed, ConfirmedAt: record.ConfirmedAt}
	if order, err := models.GetPurchaseOrder(ctx, s.DB, orderId); err == nil {
		result.OrderFolio = order.OrderNumber
	}
	return result
}
