// Package testfixtures opens throwaway SQLite databases with the production schema and seeds
// suppliers, orders and installments for tests.
package testfixtures

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDB returns a migrated in-memory database private to the test.
// It holds a single connection, so code under test must not use the outer handle inside a transaction.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.MigrateTable(db))
	return db
}

// Date parses YYYY-MM-DD or fails the test.
func Date(t testing.TB, s string) time.Time {
	t.Helper()
	d, err := utils.ParseDate(s)
	require.NoError(t, err)
	return d
}

func DatePtr(t testing.TB, s string) *time.Time {
	d := Date(t, s)
	return &d
}

func CreateSupplier(t testing.TB, db *gorm.DB, name, email string) *models.Supplier {
	t.Helper()
	s := &models.Supplier{Name: name, Email: email}
	require.NoError(t, db.Create(s).Error)
	return s
}

// CreateSingleOrder creates an Issued single mode order; scheduled may be "" for no date.
func CreateSingleOrder(t testing.TB, db *gorm.DB, supplier *models.Supplier, folio string, scheduled string) *models.PurchaseOrder {
	t.Helper()
	o := &models.PurchaseOrder{
		OrderNumber:   folio,
		SupplierId:    supplier.ID,
		DeliveryMode:  models.DeliveryModeSingle,
		CurrentStatus: models.PurchaseOrderStatusIssued,
	}
	if scheduled != "" {
		o.ScheduledDeliveryDate = DatePtr(t, scheduled)
	}
	require.NoError(t, db.Create(o).Error)
	o.Supplier = supplier
	return o
}

// CreateMultiOrder creates an Issued multi mode order with one installment per entry of dates,
// numbered from 1. An empty entry leaves that installment unscheduled.
func CreateMultiOrder(t testing.TB, db *gorm.DB, supplier *models.Supplier, folio string, dates ...string) (*models.PurchaseOrder, []models.DeliveryInstallment) {
	t.Helper()
	o := &models.PurchaseOrder{
		OrderNumber:   folio,
		SupplierId:    supplier.ID,
		DeliveryMode:  models.DeliveryModeMulti,
		CurrentStatus: models.PurchaseOrderStatusIssued,
	}
	require.NoError(t, db.Create(o).Error)
	o.Supplier = supplier

	installments := make([]models.DeliveryInstallment, 0, len(dates))
	for i, d := range dates {
		inst := models.DeliveryInstallment{
			PurchaseOrderId:   o.ID,
			InstallmentNumber: i + 1,
			Quantity:          decimal.NewFromInt(10),
			Status:            models.InstallmentStatusUnscheduled,
		}
		if d != "" {
			inst.ScheduledDate = DatePtr(t, d)
			inst.Status = models.InstallmentStatusScheduled
		}
		require.NoError(t, db.Create(&inst).Error)
		installments = append(installments, inst)
	}
	return o, installments
}

func ReloadInstallment(t testing.TB, db *gorm.DB, id int) *models.DeliveryInstallment {
	t.Helper()
	var inst models.DeliveryInstallment
	require.NoError(t, db.First(&inst, id).Error)
	return &inst
}

func ReloadOrder(t testing.TB, db *gorm.DB, id int) *models.PurchaseOrder {
	t.Helper()
	var o models.PurchaseOrder
	require.NoError(t, db.First(&o, id).Error)
	return &o
}
