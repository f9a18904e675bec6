package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Notification is an in-app notification shown to purchasing staff.
type Notification struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Kind          string    `gorm:"size:50;not null;index" json:"kind"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	Description   string    `gorm:"type:text" json:"description"`
	IsRead        bool      `gorm:"not null;default:false" json:"read"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:255" json:"reference_type"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NotificationStore struct {
	DB *gorm.DB
}

func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{DB: db}
}

// CreateNotifications inserts all rows unread in one statement.
func (s *NotificationStore) CreateNotifications(ctx context.Context, notifications []*Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	for _, n := range notifications {
		n.IsRead = false
	}
	return s.DB.WithContext(ctx).Create(&notifications).Error
}

func GetUnreadNotifications(ctx context.Context, db *gorm.DB) ([]*Notification, error) {
	var results []*Notification
	err := db.WithContext(ctx).Where("is_read = ?", false).Order("id ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
