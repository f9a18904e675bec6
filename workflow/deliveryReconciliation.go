package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/metrics"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("purchasing_backend/workflow")

const reconciliationLockKey = "lock:delivery-reconciliation"

const (
	ItemKindInstallment = "installment"
	ItemKindOrder       = "order"
)

// DeliveryStore is the part of the delivery record store the job reads and writes.
type DeliveryStore interface {
	ListOverdueInstallments(ctx context.Context, today time.Time) ([]models.DeliveryInstallment, error)
	ListOverdueSingleOrders(ctx context.Context, today time.Time) ([]models.PurchaseOrder, error)
	RescheduleInstallment(ctx context.Context, inst *models.DeliveryInstallment, newDate time.Time, note string) error
	RescheduleSingleOrder(ctx context.Context, order *models.PurchaseOrder, newDate time.Time, note string) error
}

// Dispatcher receives the events of one run after every row update has committed.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []NotificationEvent) error
}

type RescheduledItem struct {
	Kind              string `json:"kind"`
	PurchaseOrderId   int    `json:"purchase_order_id"`
	OrderFolio        string `json:"order_folio"`
	InstallmentId     int    `json:"installment_id,omitempty"`
	InstallmentNumber int    `json:"installment_number,omitempty"`
	OldDate           string `json:"old_date"`
	NewDate           string `json:"new_date"`
	SupplierName      string `json:"supplier_name"`
	SupplierEmail     string `json:"supplier_email,omitempty"`
}

type ReconciliationResult struct {
	RunId            string            `json:"run_id"`
	RunDate          string            `json:"run_date"`
	NextBusinessDay  string            `json:"next_business_day"`
	ProcessedCount   int               `json:"processed_count"`
	RescheduledItems []RescheduledItem `json:"rescheduled_items"`
	FailedCount      int               `json:"failed_count"`
	SkippedCount     int               `json:"skipped_count"`
}

// DeliveryReconciler moves every overdue, unconfirmed delivery promise to the next business day
// and notifies about the moves. Runs are idempotent: a rescheduled row lies after today and no
// longer matches the overdue selection.
type DeliveryReconciler struct {
	Store       DeliveryStore
	Calendar    utils.Calendar
	Dispatcher  Dispatcher
	Logger      *logrus.Logger
	Clock       func() time.Time
	ItemTimeout time.Duration
	// optional; nil runs without the distributed lock
	Locker  *redislock.Client
	LockTTL time.Duration
	// optional
	Results ResultCache
}

func NewDeliveryReconciler(store DeliveryStore, calendar utils.Calendar, dispatcher Dispatcher, logger *logrus.Logger) *DeliveryReconciler {
	return &DeliveryReconciler{
		Store:       store,
		Calendar:    calendar,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Clock:       time.Now,
		ItemTimeout: 15 * time.Second,
		LockTTL:     10 * time.Minute,
	}
}

func (r *DeliveryReconciler) now() time.Time {
	if r.Clock == nil {
		return time.Now()
	}
	return r.Clock()
}

func (r *DeliveryReconciler) logger() *logrus.Logger {
	if r.Logger == nil {
		return config.GetLogger()
	}
	return r.Logger
}

func rescheduleNote(stamp string, oldDate, newDate time.Time) string {
	return fmt.Sprintf("[auto %s] Delivery rescheduled from %s to %s: not received.",
		stamp, utils.FormatDate(oldDate), utils.FormatDate(newDate))
}

// Run executes one reconciliation pass. Only a failed selection query fails the run; per item
// failures are logged and counted, and notification failures never surface.
func (r *DeliveryReconciler) Run(ctx context.Context) (*ReconciliationResult, error) {
	started := time.Now()
	runId := uuid.NewString()
	ctx = utils.SystemContext(ctx)
	ctx = utils.SetJobRunIdInContext(ctx, runId)

	ctx, span := tracer.Start(ctx, "DeliveryReconciler.Run")
	defer span.End()

	log := r.logger().WithFields(logrus.Fields{
		"field":  "DeliveryReconciler",
		"run_id": runId,
	})

	lock := r.obtainLock(ctx, log)
	defer r.releaseLock(lock, log)

	now := r.now()
	today := r.Calendar.Today(now)
	next := r.Calendar.NextBusinessDay(today)
	result := &ReconciliationResult{
		RunId:            runId,
		RunDate:          utils.FormatDate(today),
		NextBusinessDay:  utils.FormatDate(next),
		RescheduledItems: []RescheduledItem{},
	}
	span.SetAttributes(
		attribute.String("run_date", result.RunDate),
		attribute.String("next_business_day", result.NextBusinessDay),
	)

	installments, err := r.Store.ListOverdueInstallments(ctx, today)
	if err != nil {
		r.failRun(span, started, runId, "ListOverdueInstallments", err)
		return nil, err
	}
	orders, err := r.Store.ListOverdueSingleOrders(ctx, today)
	if err != nil {
		r.failRun(span, started, runId, "ListOverdueSingleOrders", err)
		return nil, err
	}
	result.ProcessedCount = len(installments) + len(orders)

	deliveries := make([]models.Delivery, 0, len(orders)+len(installments))
	for _, group := range models.GroupInstallmentsByOrder(installments) {
		deliveries = append(deliveries, group)
	}
	for i := range orders {
		deliveries = append(deliveries, models.SingleDelivery{Order: &orders[i]})
	}

	stamp := now.UTC().Format(time.RFC3339)
	var events []NotificationEvent
	for _, d := range deliveries {
		switch d := d.(type) {
		case models.MultiDelivery:
			for i := range d.Installments {
				inst := &d.Installments[i]
				if inst.ScheduledDate == nil {
					continue
				}
				oldDate := utils.DateOf(*inst.ScheduledDate)
				err := r.withItemTimeout(ctx, func(ctx context.Context) error {
					return r.Store.RescheduleInstallment(ctx, inst, next, rescheduleNote(stamp, oldDate, next))
				})
				itemLog := log.WithFields(logrus.Fields{
					"purchase_order_id": inst.PurchaseOrderId,
					"installment_id":    inst.ID,
				})
				if !r.recordOutcome(result, ItemKindInstallment, err, itemLog) {
					continue
				}
				item := RescheduledItem{
					Kind:              ItemKindInstallment,
					PurchaseOrderId:   d.Order.ID,
					OrderFolio:        d.Order.OrderNumber,
					InstallmentId:     inst.ID,
					InstallmentNumber: inst.InstallmentNumber,
					OldDate:           utils.FormatDate(oldDate),
					NewDate:           utils.FormatDate(next),
					SupplierName:      d.Order.SupplierName(),
					SupplierEmail:     d.Order.SupplierEmail(),
				}
				result.RescheduledItems = append(result.RescheduledItems, item)
				events = append(events, NewRescheduledEvent(item))
			}
		case models.SingleDelivery:
			order := d.Order
			if order.ScheduledDeliveryDate == nil {
				continue
			}
			oldDate := utils.DateOf(*order.ScheduledDeliveryDate)
			err := r.withItemTimeout(ctx, func(ctx context.Context) error {
				return r.Store.RescheduleSingleOrder(ctx, order, next, rescheduleNote(stamp, oldDate, next))
			})
			itemLog := log.WithFields(logrus.Fields{"purchase_order_id": order.ID})
			if !r.recordOutcome(result, ItemKindOrder, err, itemLog) {
				continue
			}
			item := RescheduledItem{
				Kind:            ItemKindOrder,
				PurchaseOrderId: order.ID,
				OrderFolio:      order.OrderNumber,
				OldDate:         utils.FormatDate(oldDate),
				NewDate:         utils.FormatDate(next),
				SupplierName:    order.SupplierName(),
				SupplierEmail:   order.SupplierEmail(),
			}
			result.RescheduledItems = append(result.RescheduledItems, item)
			events = append(events, NewRescheduledEvent(item))
		}
	}

	r.dispatch(ctx, events, log)

	if r.Results != nil {
		if err := r.Results.SaveLast(ctx, result); err != nil {
			log.Warn("failed to cache reconciliation result: " + err.Error())
		}
	}

	span.SetAttributes(
		attribute.Int("processed_count", result.ProcessedCount),
		attribute.Int("rescheduled_count", len(result.RescheduledItems)),
		attribute.Int("failed_count", result.FailedCount),
	)
	metrics.RecordRun("succeeded", time.Since(started).Seconds())
	log.WithFields(logrus.Fields{
		"run_date":          result.RunDate,
		"next_business_day": result.NextBusinessDay,
		"processed_count":   result.ProcessedCount,
		"rescheduled_count": len(result.RescheduledItems),
		"failed_count":      result.FailedCount,
		"skipped_count":     result.SkippedCount,
	}).Info("delivery reconciliation finished")
	return result, nil
}

func (r *DeliveryReconciler) withItemTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.ItemTimeout <= 0 {
		return fn(ctx)
	}
	itemCtx, cancel := context.WithTimeout(ctx, r.ItemTimeout)
	defer cancel()
	return fn(itemCtx)
}

// recordOutcome counts the item and reports whether it was rescheduled.
func (r *DeliveryReconciler) recordOutcome(result *ReconciliationResult, kind string, err error, log *logrus.Entry) bool {
	switch {
	case err == nil:
		metrics.RecordItem(kind, "rescheduled")
		return true
	case errors.Is(err, models.ErrStaleRecord):
		result.SkippedCount++
		metrics.RecordItem(kind, "skipped")
		log.Info("delivery already moved by a concurrent run; skipping")
		return false
	default:
		result.FailedCount++
		metrics.RecordItem(kind, "failed")
		log.WithField("error", err.Error()).Error("failed to reschedule overdue delivery")
		return false
	}
}

func (r *DeliveryReconciler) dispatch(ctx context.Context, events []NotificationEvent, log *logrus.Entry) {
	if r.Dispatcher == nil || len(events) == 0 {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("notification dispatcher panicked: %v", p)
		}
	}()
	if err := r.Dispatcher.Dispatch(ctx, events); err != nil {
		log.WithField("error", err.Error()).Warn("some delivery notifications failed")
	}
}

func (r *DeliveryReconciler) failRun(span trace.Span, started time.Time, runId string, step string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.RecordRun("failed", time.Since(started).Seconds())
	config.LogError(r.logger(), "deliveryReconciliation.go", "Run", step, map[string]string{"run_id": runId}, err)
}

// Redis lock is a best-effort optimization: a second run waits for the first one and then finds
// nothing overdue. Correctness relies on the conditional row updates, so failures only warn.
func (r *DeliveryReconciler) obtainLock(ctx context.Context, log *logrus.Entry) *redislock.Lock {
	if r.Locker == nil {
		return nil
	}
	ttl := r.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	lock, err := r.Locker.Obtain(ctx, reconciliationLockKey, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(500*time.Millisecond), 20),
	})
	if err == redislock.ErrNotObtained {
		log.Warn("could not obtain redis lock; proceeding without redis lock")
		return nil
	} else if err != nil {
		log.Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return nil
	}
	return lock
}

func (r *DeliveryReconciler) releaseLock(lock *redislock.Lock, log *logrus.Entry) {
	if lock == nil {
		return
	}
	if err := lock.Release(context.Background()); err != nil && err != redislock.ErrLockNotHeld {
		log.Warn("failed to release redis lock: " + err.Error())
	}
}
