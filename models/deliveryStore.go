package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/purchasing_backend/utils"
	"gorm.io/gorm"
)

// ListOverdueInstallments returns scheduled installments whose date is before today,
// with PurchaseOrder and its Supplier preloaded.
func ListOverdueInstallments(ctx context.Context, db *gorm.DB, today time.Time) ([]DeliveryInstallment, error) {
	var results []DeliveryInstallment
	err := db.WithContext(ctx).
		Preload("PurchaseOrder.Supplier").
		Where("status = ? AND scheduled_date IS NOT NULL AND scheduled_date < ?", InstallmentStatusScheduled, utils.DateOf(today)).
		Order("purchase_order_id ASC, installment_number ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue installments: %w", err)
	}
	return results, nil
}

// ListOverdueSingleOrders returns active single mode orders whose promised date is before today.
func ListOverdueSingleOrders(ctx context.Context, db *gorm.DB, today time.Time) ([]PurchaseOrder, error) {
	var results []PurchaseOrder
	err := db.WithContext(ctx).
		Preload("Supplier").
		Where("delivery_mode = ? AND current_status IN ?", DeliveryModeSingle, ActivePurchaseOrderStatuses).
		Where("scheduled_delivery_date IS NOT NULL AND scheduled_delivery_date < ?", utils.DateOf(today)).
		Order("id ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue orders: %w", err)
	}
	return results, nil
}

// RescheduleInstallment moves inst from its current date to newDate and appends note, provided the
// row is still scheduled on the date inst was read with. ErrStaleRecord otherwise.
func RescheduleInstallment(ctx context.Context, db *gorm.DB, inst *DeliveryInstallment, newDate time.Time, note string) error {
	if inst.ScheduledDate == nil {
		return ErrInvalidTransition
	}
	oldDate := utils.DateOf(*inst.ScheduledDate)
	newDate = utils.DateOf(newDate)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&DeliveryInstallment{}).
			Where("id = ? AND status = ? AND scheduled_date = ?", inst.ID, InstallmentStatusScheduled, oldDate).
			Updates(map[string]interface{}{
				"scheduled_date": newDate,
				"notes":          appendNoteExpr(tx, note),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleRecord
		}
		return createHistory(tx, ActionTypeReschedule, inst.ID, ReferenceTypeDeliveryInstallment,
			scheduleSnapshot(InstallmentStatusScheduled, &oldDate),
			scheduleSnapshot(InstallmentStatusScheduled, &newDate),
			note)
	})
	if err != nil {
		return err
	}

	inst.ScheduledDate = &newDate
	inst.Notes = appendNote(inst.Notes, note)
	return nil
}

// RescheduleSingleOrder is RescheduleInstallment for a single mode order.
func RescheduleSingleOrder(ctx context.Context, db *gorm.DB, order *PurchaseOrder, newDate time.Time, note string) error {
	if order.ScheduledDeliveryDate == nil {
		return ErrInvalidTransition
	}
	oldDate := utils.DateOf(*order.ScheduledDeliveryDate)
	newDate = utils.DateOf(newDate)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&PurchaseOrder{}).
			Where("id = ? AND scheduled_delivery_date = ?", order.ID, oldDate).
			Updates(map[string]interface{}{
				"scheduled_delivery_date": newDate,
				"notes":                   appendNoteExpr(tx, note),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleRecord
		}
		return createHistory(tx, ActionTypeReschedule, order.ID, ReferenceTypePurchaseOrder,
			map[string]string{"scheduled_delivery_date": utils.FormatDate(oldDate)},
			map[string]string{"scheduled_delivery_date": utils.FormatDate(newDate)},
			note)
	})
	if err != nil {
		return err
	}

	order.ScheduledDeliveryDate = &newDate
	order.Notes = appendNote(order.Notes, note)
	return nil
}

// appendNoteExpr appends note to the notes column in SQL, one note per line.
func appendNoteExpr(tx *gorm.DB, note string) interface{} {
	if tx.Dialector.Name() == "sqlite" {
		return gorm.Expr("CASE WHEN notes IS NULL OR notes = '' THEN ? ELSE notes || ? END", note, "\n"+note)
	}
	return gorm.Expr("CASE WHEN notes IS NULL OR notes = '' THEN ? ELSE CONCAT(notes, ?) END", note, "\n"+note)
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}

// DeliveryStore binds the store operations to one database handle.
type DeliveryStore struct {
	DB *gorm.DB
}

func NewDeliveryStore(db *gorm.DB) *DeliveryStore {
	return &DeliveryStore{DB: db}
}

func (s *DeliveryStore) ListOverdueInstallments(ctx context.Context, today time.Time) ([]DeliveryInstallment, error) {
	return ListOverdueInstallments(ctx, s.DB, today)
}

func (s *DeliveryStore) ListOverdueSingleOrders(ctx context.Context, today time.Time) ([]PurchaseOrder, error) {
	return ListOverdueSingleOrders(ctx, s.DB, today)
}

func (s *DeliveryStore) RescheduleInstallment(ctx context.Context, inst *DeliveryInstallment, newDate time.Time, note string) error {
	return RescheduleInstallment(ctx, s.DB, inst, newDate, note)
}

func (s *DeliveryStore) RescheduleSingleOrder(ctx context.Context, order *PurchaseOrder, newDate time.Time, note string) error {
	return RescheduleSingleOrder(ctx, s.DB, order, newDate, note)
}

func (s *DeliveryStore) SetScheduledDate(ctx context.Context, installmentId int, date time.Time) (*DeliveryInstallment, error) {
	return SetScheduledDate(ctx, s.DB, installmentId, date)
}

func (s *DeliveryStore) ClearScheduledDate(ctx context.Context, installmentId int) (*DeliveryInstallment, error) {
	return ClearScheduledDate(ctx, s.DB, installmentId)
}
