package models_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/models/testfixtures"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListOverdueInstallments(t *testing.T) {
	db := testfixtures.NewDB(t)
	ctx := context.Background()
	supplier := testfixtures.CreateSupplier(t, db, "Acme", "acme@example.com")
	today := testfixtures.Date(t, "2024-03-04")

	order, insts := testfixtures.CreateMultiOrder(t, db, supplier, "OC-0200",
		"2024-03-03", // yesterday
		"2024-03-04", // today
		"",           // unscheduled
		"2024-02-20",
	)
	require.NoError(t, models.MarkConfirmed(ctx, db, models.InstallmentTarget(order.ID, insts[3].ID)))

	got, err := models.ListOverdueInstallments(ctx, db, today)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, insts[0].ID, got[0].ID)
	require.NotNil(t, got[0].PurchaseOrder)
	assert.Equal(t, "OC-0200", got[0].PurchaseOrder.OrderNumber)
	assert.Equal(t, "Acme", got[0].PurchaseOrder.SupplierName())
}

func TestListOverdueSingleOrders(t *testing.T) {
	db := testfixtures.NewDB(t)
	ctx := context.Background()
	supplier := testfixtures.CreateSupplier(t, db, "Acme", "acme@example.com")
	today := testfixtures.Date(t, "2024-03-04")

	overdue := testfixtures.CreateSingleOrder(t, db, supplier, "OC-0100", "2024-03-01")
	testfixtures.CreateSingleOrder(t, db, supplier, "OC-0101", "2024-03-04")
	testfixtures.CreateSingleOrder(t, db, supplier, "OC-0102", "")
	received := testfixtures.CreateSingleOrder(t, db, supplier, "OC-0103", "2024-03-01")
	require.NoError(t, db.Model(received).Update("current_status", models.PurchaseOrderStatusReceived).Error)
	// multi mode orders never match on the order date
	multi, _ := testfixtures.CreateMultiOrder(t, db, supplier, "OC-0104")
	require.NoError(t, db.Model(multi).Update("scheduled_delivery_date", testfixtures.Date(t, "2024-03-01")).Error)

	got, err := models.ListOverdueSingleOrders(ctx, db, today)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
	assert.Equal(t, "acme@example.com", got[0].SupplierEmail())
}

func TestRescheduleInstallment(t *testing.T) {
	db := testfixtures.NewDB(t)
	ctx := context.Background()
	supplier := testfixtures.CreateSupplier(t, db, "Acme", "acme@example.com")
	_, insts := testfixtures.CreateMultiOrder(t, db, supplier, "OC-0200", "2024-03-03")
	require.NoError(t, db.Model(&insts[0]).Update("notes", "Dock 4 only").Error)
	insts[0].Notes = "Dock 4 only"

	inst := insts[0]
	require.NoError(t, models.RescheduleInstallment(ctx, db, &inst, testfixtures.Date(t, "2024-03-05"), "moved"))
	assert.Equal(t, "2024-03-05", utils.FormatDatePtr(inst.ScheduledDate))

	reloaded := testfixtures.ReloadInstallment(t, db, inst.ID)
	assert.Equal(t, models.InstallmentStatusScheduled, reloaded.Status)
	assert.Equal(t, "2024-03-05", utils.FormatDatePtr(reloaded.ScheduledDate))
	assert.Equal(t, "Dock 4 only\nmoved", reloaded.Notes)

	histories, err := models.GetHistories(ctx, db, models.ReferenceTypeDeliveryInstallment, inst.ID)
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Equal(t, models.ActionTypeReschedule, histories[0].ActionType)
	assert.Contains(t, histories[0].Before, "2024-03-03")
	assert.Contains(t, histories[0].After, "2024-03-05")
}

func TestRescheduleInstallmentStale(t *testing.T) {
	db := testfixtures.NewDB(t)
	ctx := context.Background()
	supplier := testfixtures.CreateSupplier(t, db, "Acme", "acme@example.com")
	order, insts := testfixtures.CreateMultiOrder(t, db, supplier, "OC-0200", "2024-03-03", "2024-03-03")

	// snapshot taken before a concurrent edit
	moved := insts[0]
	_, err := models.SetScheduledDate(ctx, db, moved.ID, testfixtures.Date(t, "2024-03-10"))
	require.NoError(t, err)
	err = models.RescheduleInstallment(ctx, db, &moved, testfixtures.Date(t, "2024-03-05"), "moved")
	assert.ErrorIs(t, err, models.ErrStaleRecord)
	assert.Equal(t, "2024-03-10", utils.FormatDatePtr(testfixtures.ReloadInstallment(t, db, moved.ID).ScheduledDate))

	confirmed := insts[1]
	require.NoError(t, models.MarkConfirmed(ctx, db, models.InstallmentTarget(order.ID, confirmed.ID)))
	err = models.RescheduleInstallment(ctx, db, &confirmed, testfixtures.Date(t, "2024-03-05"), "moved")
	assert.ErrorIs(t, err, models.ErrStaleRecord)
	reloaded := testfixtures.ReloadInstallment(t, db, confirmed.ID)
	assert.Equal(t, "2024-03-03", utils.FormatDatePtr(reloaded.ScheduledDate))
	assert.Empty(t, reloaded.Notes)
}

func TestRescheduleSingleOrder(t *testing.T) {
	db := testfixtures.NewDB(t)
	ctx := context.Background()
	supplier := testfixtures.CreateSupplier(t, db, "Acme", "acme@example.com")
	order := testfixtures.CreateSingleOrder(t, db, supplier, "OC-0100", "2024-03-01")

	stale := *order
	require.NoError(t, models.RescheduleSingleOrder(ctx, db, order, testfixtures.Date(t, "2024-03-05"), "first"))
	assert.Equal(t, "first", order.Notes)

	err := models.RescheduleSingleOrder(ctx, db, &stale, testfixtures.Date(t, "2024-03-06"), "second")
	assert.ErrorIs(t, err, models.ErrStaleRecord)

	reloaded := testfixtures.ReloadOrder(t, db, order.ID)
	assert.Equal(t, "2024-03-05", utils.FormatDatePtr(reloaded.ScheduledDeliveryDate))
	assert.Equal(t, "first", reloaded.Notes)
	assert.Equal(t, models.PurchaseOrderStatusIssued, reloaded.CurrentStatus)

	histories, err := models.GetHistories(ctx, db, models.ReferenceTypePurchaseOrder, order.ID)
	require.NoError(t, err)
	assert.Len(t, histories, 1)
}

func TestRescheduleWithoutDate(t *testing.T) {
	db := testfixtures.NewDB(t)
	supplier := testfixtures.CreateSupplier(t, db, "Acme", "acme@example.com")
	order := testfixtures.CreateSingleOrder(t, db, supplier, "OC-0100", "")

	err := models.RescheduleSingleOrder(context.Background(), db, order, testfixtures.Date(t, "2024-03-05"), "x")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}
