package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	// zone database for distroless images
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/purchasing_backend/utils"
)

// DeliverySettings groups the env knobs of the reconciliation job, the dispatcher and the confirmation links.
type DeliverySettings struct {
	Timezone          string        `validate:"required"`
	NonWorkingDay     string        `validate:"required,oneof=sunday monday tuesday wednesday thursday friday saturday"`
	ItemTimeout       time.Duration `validate:"gt=0"`
	EmailTimeout      time.Duration `validate:"gt=0"`
	NotificationTopic string
	PurchasingEmails  []string `validate:"dive,email"`
	PublicBaseURL     string   `validate:"omitempty,url"`
	JobTriggerToken   string

	location *time.Location
	weekday  time.Weekday
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func LoadDeliverySettings() (*DeliverySettings, error) {
	s := &DeliverySettings{
		Timezone:          envOr("DELIVERY_TIMEZONE", "America/Mexico_City"),
		NonWorkingDay:     strings.ToLower(envOr("DELIVERY_NON_WORKING_DAY", "Sunday")),
		ItemTimeout:       utils.SecondsFromEnv("RECONCILE_ITEM_TIMEOUT_SECONDS", 15*time.Second),
		EmailTimeout:      utils.SecondsFromEnv("NOTIFY_EMAIL_TIMEOUT_SECONDS", 10*time.Second),
		NotificationTopic: os.Getenv("NOTIFICATION_TOPIC"),
		PurchasingEmails:  utils.SplitAndTrim(os.Getenv("PURCHASING_NOTIFY_EMAILS")),
		PublicBaseURL:     strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		JobTriggerToken:   os.Getenv("JOB_TRIGGER_TOKEN"),
	}

	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("invalid delivery settings: %w", err)
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DELIVERY_TIMEZONE %q: %w", s.Timezone, err)
	}
	s.location = loc

	day, err := utils.ParseWeekday(s.NonWorkingDay)
	if err != nil {
		return nil, fmt.Errorf("invalid DELIVERY_NON_WORKING_DAY: %w", err)
	}
	s.weekday = day
	return s, nil
}

func (s *DeliverySettings) Calendar() utils.Calendar {
	return utils.NewCalendar(s.weekday, s.location)
}
