package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/purchasing_backend/utils"
	"gorm.io/gorm"
)

// ConfirmationRecord is an append-only ledger row for a supplier's confirmation link.
// A row with ConfirmedAt unset only records that the link or email was opened.
// ConfirmedOrderId mirrors PurchaseOrderId on confirmed rows and is null otherwise; its unique
// index allows at most one confirmed row per order.
type ConfirmationRecord struct {
	ID               int        `gorm:"primary_key" json:"id"`
	PurchaseOrderId  int        `gorm:"index;not null" json:"purchase_order_id"`
	ConfirmedAt      *time.Time `gorm:"default:null" json:"confirmed_at"`
	ConfirmedOrderId *int       `gorm:"uniqueIndex:idx_delivery_confirmations_confirmed_order;default:null" json:"-"`
	SourceIp         string     `gorm:"size:64" json:"source_ip"`
	UserAgent        string     `gorm:"size:512" json:"user_agent"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (ConfirmationRecord) TableName() string {
	return "delivery_confirmations"
}

func (r *ConfirmationRecord) IsConfirmed() bool {
	return r.ConfirmedAt != nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// FindConfirmedRecord returns the confirmed row of the order, or nil when there is none.
func FindConfirmedRecord(ctx context.Context, db *gorm.DB, orderId int) (*ConfirmationRecord, error) {
	var result ConfirmationRecord
	err := db.WithContext(ctx).
		Where("purchase_order_id = ? AND confirmed_at IS NOT NULL", orderId).
		Order("confirmed_at ASC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// FindOpenedRecord returns the oldest unconfirmed row of the order, or nil.
func FindOpenedRecord(ctx context.Context, db *gorm.DB, orderId int) (*ConfirmationRecord, error) {
	var result ConfirmationRecord
	err := db.WithContext(ctx).
		Where("purchase_order_id = ? AND confirmed_at IS NULL", orderId).
		Order("id ASC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func CountConfirmationRecords(ctx context.Context, db *gorm.DB, orderId int) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&ConfirmationRecord{}).
		Where("purchase_order_id = ?", orderId).
		Count(&count).Error
	return count, err
}

// RecordLinkOpened inserts an opened row when the order has no ledger row yet.
func RecordLinkOpened(ctx context.Context, db *gorm.DB, orderId int, sourceIp, userAgent string) (bool, error) {
	count, err := CountConfirmationRecords(ctx, db, orderId)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	record := ConfirmationRecord{
		PurchaseOrderId: orderId,
		SourceIp:        truncate(sourceIp, 64),
		UserAgent:       truncate(userAgent, 512),
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return false, err
	}
	return true, nil
}

// RecordConfirmation promotes the order's opened row to confirmed, or inserts a confirmed row.
// ErrAlreadyConfirmed when another confirmed row exists, including one written concurrently.
func RecordConfirmation(ctx context.Context, db *gorm.DB, orderId int, sourceIp, userAgent string, at time.Time) (*ConfirmationRecord, error) {
	at = at.UTC()
	opened, err := FindOpenedRecord(ctx, db, orderId)
	if err != nil {
		return nil, err
	}

	if opened != nil {
		res := db.WithContext(ctx).Model(&ConfirmationRecord{}).
			Where("id = ? AND confirmed_at IS NULL", opened.ID).
			Updates(map[string]interface{}{
				"confirmed_at":       at,
				"confirmed_order_id": orderId,
				"source_ip":          truncate(sourceIp, 64),
				"user_agent":         truncate(userAgent, 512),
			})
		if res.Error != nil {
			if utils.IsDuplicateKeyErr(res.Error) {
				return nil, ErrAlreadyConfirmed
			}
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			opened.ConfirmedAt = &at
			opened.ConfirmedOrderId = &orderId
			opened.SourceIp = truncate(sourceIp, 64)
			opened.UserAgent = truncate(userAgent, 512)
			return opened, nil
		}
		// promoted by someone else in the meantime; the insert below settles it through the index
	}

	record := ConfirmationRecord{
		PurchaseOrderId:  orderId,
		ConfirmedAt:      &at,
		ConfirmedOrderId: &orderId,
		SourceIp:         truncate(sourceIp, 64),
		UserAgent:        truncate(userAgent, 512),
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, ErrAlreadyConfirmed
		}
		return nil, err
	}
	return &record, nil
}
