package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DeliveryInstallment is one numbered partial delivery of a multi mode purchase order.
// scheduled implies a date, unscheduled implies none; rows are never deleted.
type DeliveryInstallment struct {
	ID                int               `gorm:"primary_key" json:"id"`
	PurchaseOrderId   int               `gorm:"not null;uniqueIndex:idx_installment_order_number,priority:1" json:"purchase_order_id"`
	PurchaseOrder     *PurchaseOrder    `gorm:"foreignKey:PurchaseOrderId" json:"purchase_order,omitempty"`
	InstallmentNumber int               `gorm:"not null;uniqueIndex:idx_installment_order_number,priority:2" json:"installment_number"`
	Quantity          decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	ScheduledDate     *time.Time        `gorm:"type:date;default:null;index" json:"scheduled_date"`
	Status            InstallmentStatus `gorm:"size:20;not null;default:'unscheduled';index" json:"status"`
	Notes             string            `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// DeliveryTarget names what a confirmation applies to: a whole single mode order or one installment.
type DeliveryTarget struct {
	OrderId       int
	InstallmentId int
}

func OrderTarget(orderId int) DeliveryTarget {
	return DeliveryTarget{OrderId: orderId}
}

func InstallmentTarget(orderId, installmentId int) DeliveryTarget {
	return DeliveryTarget{OrderId: orderId, InstallmentId: installmentId}
}

func (t DeliveryTarget) IsInstallment() bool {
	return t.InstallmentId > 0
}

func GetDeliveryInstallment(ctx context.Context, db *gorm.DB, id int) (*DeliveryInstallment, error) {
	var result DeliveryInstallment
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("delivery installment", id)
		}
		return nil, err
	}
	return &result, nil
}

// SetScheduledDate moves an unscheduled or scheduled installment to scheduled on date.
func SetScheduledDate(ctx context.Context, db *gorm.DB, installmentId int, date time.Time) (*DeliveryInstallment, error) {
	date = utils.DateOf(date)
	return transitionInstallment(ctx, db, installmentId,
		map[string]interface{}{
			"scheduled_date": date,
			"status":         InstallmentStatusScheduled,
		},
		InstallmentStatusScheduled,
		fmt.Sprintf("Delivery scheduled for %s.", utils.FormatDate(date)),
	)
}

// ClearScheduledDate removes the date and moves the installment back to unscheduled.
func ClearScheduledDate(ctx context.Context, db *gorm.DB, installmentId int) (*DeliveryInstallment, error) {
	return transitionInstallment(ctx, db, installmentId,
		map[string]interface{}{
			"scheduled_date": nil,
			"status":         InstallmentStatusUnscheduled,
		},
		InstallmentStatusUnscheduled,
		"Delivery date cleared.",
	)
}

// manual date edits; confirmed is terminal for them
func transitionInstallment(ctx context.Context, db *gorm.DB, installmentId int, values map[string]interface{}, want InstallmentStatus, description string) (*DeliveryInstallment, error) {
	var result DeliveryInstallment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var before DeliveryInstallment
		if err := tx.First(&before, installmentId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("delivery installment", installmentId)
			}
			return err
		}
		if before.Status == InstallmentStatusConfirmed {
			return ErrInvalidTransition
		}

		err := tx.Model(&DeliveryInstallment{}).
			Where("id = ? AND status <> ?", installmentId, InstallmentStatusConfirmed).
			Updates(values).Error
		if err != nil {
			return err
		}

		if err := tx.First(&result, installmentId).Error; err != nil {
			return err
		}
		// confirmed concurrently between the read and the update
		if result.Status != want {
			return ErrInvalidTransition
		}
		return createHistory(tx, ActionTypeUpdate, installmentId, ReferenceTypeDeliveryInstallment,
			scheduleSnapshot(before.Status, before.ScheduledDate),
			scheduleSnapshot(result.Status, result.ScheduledDate),
			description)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func scheduleSnapshot(status InstallmentStatus, date *time.Time) map[string]string {
	return map[string]string{
		"status":         string(status),
		"scheduled_date": utils.FormatDatePtr(date),
	}
}

// MarkConfirmed records supplier confirmation for target. Installments move scheduled -> confirmed;
// confirming twice is a no-op and confirming an unscheduled installment is rejected.
// Single mode orders keep their status; the ledger row is the confirmation.
func MarkConfirmed(ctx context.Context, db *gorm.DB, target DeliveryTarget) error {
	if !target.IsInstallment() {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inst DeliveryInstallment
		if err := tx.First(&inst, target.InstallmentId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("delivery installment", target.InstallmentId)
			}
			return err
		}
		if target.OrderId > 0 && inst.PurchaseOrderId != target.OrderId {
			return notFound("delivery installment", target.InstallmentId)
		}

		switch inst.Status {
		case InstallmentStatusConfirmed:
			return nil
		case InstallmentStatusUnscheduled:
			return ErrInvalidTransition
		}

		res := tx.Model(&DeliveryInstallment{}).
			Where("id = ? AND status = ?", inst.ID, InstallmentStatusScheduled).
			Update("status", InstallmentStatusConfirmed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost a race with another confirmation or a clear; re-read to decide
			var current DeliveryInstallment
			if err := tx.First(&current, inst.ID).Error; err != nil {
				return err
			}
			if current.Status == InstallmentStatusConfirmed {
				return nil
			}
			return ErrInvalidTransition
		}
		return createHistory(tx, ActionTypeConfirm, inst.ID, ReferenceTypeDeliveryInstallment,
			scheduleSnapshot(inst.Status, inst.ScheduledDate),
			scheduleSnapshot(InstallmentStatusConfirmed, inst.ScheduledDate),
			fmt.Sprintf("Installment #%d confirmed by supplier.", inst.InstallmentNumber))
	})
}
