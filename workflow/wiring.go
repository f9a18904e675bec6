package workflow

import (
	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NewDispatcherFromSettings builds the dispatcher with every channel the environment enables.
// Email is skipped when SMTP_HOST is unset, events when NOTIFICATION_TOPIC is unset.
func NewDispatcherFromSettings(db *gorm.DB, settings *config.DeliverySettings, logger *logrus.Logger) *NotificationDispatcher {
	d := NewNotificationDispatcher(models.NewNotificationStore(db), nil, nil, logger)
	d.EmailTimeout = settings.EmailTimeout
	d.PurchasingEmails = settings.PurchasingEmails
	d.PublicBaseURL = settings.PublicBaseURL

	mailer, err := config.NewSMTPMailerFromEnv()
	if err != nil {
		config.LogError(logger, "wiring.go", "NewDispatcherFromSettings", "NewSMTPMailerFromEnv", nil, err)
	} else if mailer != nil {
		d.Email = mailer
	} else {
		logger.WithField("field", "NotificationDispatcher").Warn("SMTP_HOST not set; email notifications disabled")
	}

	if settings.NotificationTopic != "" {
		d.Events = NewPubSubEventPublisher(settings.NotificationTopic)
	}
	return d
}

func NewReconcilerFromSettings(db *gorm.DB, settings *config.DeliverySettings, logger *logrus.Logger) *DeliveryReconciler {
	r := NewDeliveryReconciler(
		models.NewDeliveryStore(db),
		settings.Calendar(),
		NewDispatcherFromSettings(db, settings, logger),
		logger,
	)
	r.ItemTimeout = settings.ItemTimeout
	if lock := config.GetRedisLock(); lock != nil {
		r.Locker = lock
		r.Results = NewRedisResultCache()
	}
	return r
}
