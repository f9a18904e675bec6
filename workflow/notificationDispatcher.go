package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/metrics"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/sirupsen/logrus"
)

// NotificationEvent describes one automatic reschedule. It is also the Pub/Sub payload.
type NotificationEvent struct {
	Kind              models.NotificationKind `json:"kind"`
	Title             string                  `json:"title"`
	Description       string                  `json:"description"`
	OrderId           int                     `json:"order_id"`
	OrderFolio        string                  `json:"order_folio"`
	InstallmentId     int                     `json:"installment_id,omitempty"`
	InstallmentNumber int                     `json:"installment_number,omitempty"`
	OldDate           string                  `json:"old_date"`
	NewDate           string                  `json:"new_date"`
	SupplierName      string                  `json:"supplier_name"`
	SupplierEmail     string                  `json:"supplier_email,omitempty"`
}

func (e NotificationEvent) IsInstallment() bool {
	return e.InstallmentId > 0
}

func NewRescheduledEvent(item RescheduledItem) NotificationEvent {
	target := item.OrderFolio
	if item.Kind == ItemKindInstallment {
		target = fmt.Sprintf("%s installment #%d", item.OrderFolio, item.InstallmentNumber)
	}
	supplier := item.SupplierName
	if supplier == "" {
		supplier = "unknown supplier"
	}
	return NotificationEvent{
		Kind:              models.NotificationKindDeliveryRescheduled,
		Title:             "Delivery rescheduled: " + target,
		Description:       fmt.Sprintf("Delivery of %s from %s was not received on %s. It was moved to %s.", target, supplier, item.OldDate, item.NewDate),
		OrderId:           item.PurchaseOrderId,
		OrderFolio:        item.OrderFolio,
		InstallmentId:     item.InstallmentId,
		InstallmentNumber: item.InstallmentNumber,
		OldDate:           item.OldDate,
		NewDate:           item.NewDate,
		SupplierName:      item.SupplierName,
		SupplierEmail:     item.SupplierEmail,
	}
}

// EmailSender sends one html email. Errors are reported to the caller, which never retries.
type EmailSender interface {
	SendEmail(ctx context.Context, to string, subject string, htmlBody string) error
}

type InAppNotifier interface {
	CreateNotifications(ctx context.Context, notifications []*models.Notification) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event NotificationEvent) error
}

// NotificationDispatcher fans reschedule events out to the in-app store, one email per supplier,
// an optional digest for purchasing staff and an optional event topic. Every channel is
// best-effort: failures are logged and returned joined, never retried.
type NotificationDispatcher struct {
	InApp            InAppNotifier
	Email            EmailSender
	Events           EventPublisher
	Logger           *logrus.Logger
	EmailTimeout     time.Duration
	PurchasingEmails []string
	PublicBaseURL    string
}

var emailValidator = validator.New()

func NewNotificationDispatcher(inApp InAppNotifier, email EmailSender, events EventPublisher, logger *logrus.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		InApp:        inApp,
		Email:        email,
		Events:       events,
		Logger:       logger,
		EmailTimeout: 10 * time.Second,
	}
}

func (d *NotificationDispatcher) logger() *logrus.Logger {
	if d.Logger == nil {
		return config.GetLogger()
	}
	return d.Logger
}

func (d *NotificationDispatcher) validEmail(email string) bool {
	return emailValidator.Var(email, "required,email") == nil
}

func (d *NotificationDispatcher) Dispatch(ctx context.Context, events []NotificationEvent) error {
	if len(events) == 0 {
		return nil
	}
	var errs []error
	if err := d.notifyInApp(ctx, events); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, d.emailSuppliers(ctx, events)...)
	if err := d.emailDigest(ctx, events); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, d.publish(ctx, events)...)
	return errors.Join(errs...)
}

func (d *NotificationDispatcher) notifyInApp(ctx context.Context, events []NotificationEvent) error {
	if d.InApp == nil {
		return nil
	}
	rows := make([]*models.Notification, 0, len(events))
	for _, e := range events {
		rows = append(rows, &models.Notification{
			Kind:          string(e.Kind),
			Title:         e.Title,
			Description:   e.Description,
			ReferenceID:   e.OrderId,
			ReferenceType: models.ReferenceTypePurchaseOrder,
		})
	}
	if err := d.InApp.CreateNotifications(ctx, rows); err != nil {
		metrics.RecordNotification("in_app", "failed")
		config.LogError(d.logger(), "notificationDispatcher.go", "notifyInApp", "CreateNotifications", len(rows), err)
		return fmt.Errorf("in-app notifications: %w", err)
	}
	metrics.RecordNotification("in_app", "sent")
	return nil
}

// supplierBatch is every event of one supplier email address.
type supplierBatch struct {
	Email        string
	SupplierName string
	Events       []NotificationEvent
}

func (d *NotificationDispatcher) groupBySupplier(events []NotificationEvent) []supplierBatch {
	var batches []supplierBatch
	index := make(map[string]int)
	for _, e := range events {
		email := strings.ToLower(strings.TrimSpace(e.SupplierEmail))
		if email == "" {
			continue
		}
		if !d.validEmail(email) {
			d.logger().WithFields(logrus.Fields{
				"field":             "NotificationDispatcher",
				"purchase_order_id": e.OrderId,
				"supplier_email":    e.SupplierEmail,
			}).Warn("skipping supplier email: invalid address")
			continue
		}
		i, ok := index[email]
		if !ok {
			batches = append(batches, supplierBatch{Email: email, SupplierName: e.SupplierName})
			i = len(batches) - 1
			index[email] = i
		}
		batches[i].Events = append(batches[i].Events, e)
	}
	return batches
}

func (d *NotificationDispatcher) sendWithTimeout(ctx context.Context, to, subject, body string) error {
	timeout := d.EmailTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Email.SendEmail(sendCtx, to, subject, body)
}

func (d *NotificationDispatcher) emailSuppliers(ctx context.Context, events []NotificationEvent) []error {
	if d.Email == nil {
		return nil
	}
	var errs []error
	for _, batch := range d.groupBySupplier(events) {
		subject, body, err := renderSupplierEmail(batch, d.PublicBaseURL)
		if err == nil {
			err = d.sendWithTimeout(ctx, batch.Email, subject, body)
		}
		if err != nil {
			metrics.RecordNotification("supplier_email", "failed")
			config.LogError(d.logger(), "notificationDispatcher.go", "emailSuppliers", "SendEmail", batch.Email, err)
			errs = append(errs, fmt.Errorf("email %s: %w", batch.Email, err))
			continue
		}
		metrics.RecordNotification("supplier_email", "sent")
	}
	return errs
}

func (d *NotificationDispatcher) emailDigest(ctx context.Context, events []NotificationEvent) error {
	if d.Email == nil || len(d.PurchasingEmails) == 0 {
		return nil
	}
	sorted := make([]NotificationEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OrderFolio != sorted[j].OrderFolio {
			return sorted[i].OrderFolio < sorted[j].OrderFolio
		}
		return sorted[i].InstallmentNumber < sorted[j].InstallmentNumber
	})
	subject, body, err := renderDigestEmail(sorted)
	if err != nil {
		config.LogError(d.logger(), "notificationDispatcher.go", "emailDigest", "renderDigestEmail", nil, err)
		return err
	}

	var errs []error
	for _, to := range d.PurchasingEmails {
		if !d.validEmail(to) {
			continue
		}
		if err := d.sendWithTimeout(ctx, to, subject, body); err != nil {
			metrics.RecordNotification("digest_email", "failed")
			config.LogError(d.logger(), "notificationDispatcher.go", "emailDigest", "SendEmail", to, err)
			errs = append(errs, fmt.Errorf("digest %s: %w", to, err))
			continue
		}
		metrics.RecordNotification("digest_email", "sent")
	}
	return errors.Join(errs...)
}

func (d *NotificationDispatcher) publish(ctx context.Context, events []NotificationEvent) []error {
	if d.Events == nil {
		return nil
	}
	var errs []error
	for _, e := range events {
		if err := d.Events.Publish(ctx, e); err != nil {
			metrics.RecordNotification("event", "failed")
			config.LogError(d.logger(), "notificationDispatcher.go", "publish", "Publish", e.OrderFolio, err)
			errs = append(errs, fmt.Errorf("publish %s: %w", e.OrderFolio, err))
			continue
		}
		metrics.RecordNotification("event", "sent")
	}
	return errs
}

// PubSubEventPublisher publishes events as JSON to a Pub/Sub topic.
type PubSubEventPublisher struct {
	Topic   string
	Timeout time.Duration
	// defaults to config.PublishJSON
	PublishFunc func(ctx context.Context, topic string, obj interface{}, attributes map[string]string) (string, error)
}

func NewPubSubEventPublisher(topic string) *PubSubEventPublisher {
	return &PubSubEventPublisher{Topic: topic, Timeout: 30 * time.Second, PublishFunc: config.PublishJSON}
}

func (p *PubSubEventPublisher) Publish(ctx context.Context, event NotificationEvent) error {
	publish := p.PublishFunc
	if publish == nil {
		publish = config.PublishJSON
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	_, err := publish(ctx, p.Topic, event, map[string]string{
		"kind":        string(event.Kind),
		"order_folio": event.OrderFolio,
	})
	return err
}
