package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// PurchaseOrder carries the promised delivery date in single mode; multi mode orders keep
// their dates on DeliveryInstallment rows and leave ScheduledDeliveryDate unused.
type PurchaseOrder struct {
	ID                    int                   `gorm:"primary_key" json:"id"`
	OrderNumber           string                `gorm:"size:255;not null;index" json:"order_number" binding:"required"`
	SupplierId            int                   `gorm:"index;not null" json:"supplier_id" binding:"required"`
	Supplier              *Supplier             `gorm:"foreignKey:SupplierId" json:"supplier,omitempty"`
	DeliveryMode          DeliveryMode          `gorm:"size:10;not null;default:'single'" json:"delivery_mode"`
	ScheduledDeliveryDate *time.Time            `gorm:"type:date;default:null;index" json:"scheduled_delivery_date"`
	CurrentStatus         PurchaseOrderStatus   `gorm:"size:30;not null;index" json:"current_status" binding:"required"`
	Notes                 string                `gorm:"type:text" json:"notes"`
	FirstReadAt           *time.Time            `gorm:"default:null" json:"first_read_at"`
	Installments          []DeliveryInstallment `gorm:"foreignKey:PurchaseOrderId" json:"installments,omitempty"`
	CreatedAt             time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *PurchaseOrder) IsMulti() bool {
	return o.DeliveryMode == DeliveryModeMulti
}

func (o *PurchaseOrder) SupplierName() string {
	if o.Supplier == nil {
		return ""
	}
	return o.Supplier.Name
}

func (o *PurchaseOrder) SupplierEmail() string {
	if o.Supplier == nil {
		return ""
	}
	return o.Supplier.Email
}

func GetPurchaseOrder(ctx context.Context, db *gorm.DB, id int) (*PurchaseOrder, error) {
	var result PurchaseOrder
	if err := db.WithContext(ctx).Preload("Supplier").First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("purchase order", id)
		}
		return nil, err
	}
	return &result, nil
}

// GetPurchaseOrderWithInstallments loads the order, its supplier and its installments ordered by number.
func GetPurchaseOrderWithInstallments(ctx context.Context, db *gorm.DB, id int) (*PurchaseOrder, error) {
	var result PurchaseOrder
	err := db.WithContext(ctx).
		Preload("Supplier").
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("installment_number ASC")
		}).
		First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("purchase order", id)
		}
		return nil, err
	}
	return &result, nil
}

// MarkFirstRead stamps first_read_at once; later calls leave the first timestamp in place.
func MarkFirstRead(ctx context.Context, db *gorm.DB, id int, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&PurchaseOrder{}).
		Where("id = ? AND first_read_at IS NULL", id).
		UpdateColumn("first_read_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
