package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/models/testfixtures"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	calls  int
	events []NotificationEvent
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, events []NotificationEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.events = append(d.events, events...)
	return d.err
}

type panickingDispatcher struct{}

func (panickingDispatcher) Dispatch(context.Context, []NotificationEvent) error {
	panic("smtp exploded")
}

// failingStore fails the reschedule of selected ids and delegates everything else.
type failingStore struct {
	*models.DeliveryStore
	failInstallments map[int]bool
	failOrders       map[int]bool
	listErr          error
}

func (s *failingStore) ListOverdueInstallments(ctx context.Context, today time.Time) ([]models.DeliveryInstallment, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.DeliveryStore.ListOverdueInstallments(ctx, today)
}

func (s *failingStore) RescheduleInstallment(ctx context.Context, inst *models.DeliveryInstallment, newDate time.Time, note string) error {
	if s.failInstallments[inst.ID] {
		return errors.New("connection reset")
	}
	return s.DeliveryStore.RescheduleInstallment(ctx, inst, newDate, note)
}

func (s *failingStore) RescheduleSingleOrder(ctx context.Context, order *models.PurchaseOrder, newDate time.Time, note string) error {
	if s.failOrders[order.ID] {
		return errors.New("connection reset")
	}
	return s.DeliveryStore.RescheduleSingleOrder(ctx, order, newDate, note)
}

var mexicoCity, _ = time.LoadLocation("America/Mexico_City")

// Monday 2024-03-04, 07:00 local
func mondayMorning() time.Time {
	return time.Date(2024, 3, 4, 7, 0, 0, 0, mexicoCity)
}

func newTestReconciler(t *testing.T, store DeliveryStore, dispatcher Dispatcher) (*DeliveryReconciler, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := NewDeliveryReconciler(store, utils.NewCalendar(time.Sunday, mexicoCity), dispatcher, logger)
	r.Clock = mondayMorning
	return r, hook
}

func seedScenario(t *testing.T, db *gorm.DB) (*models.PurchaseOrder, *models.PurchaseOrder, []models.DeliveryInstallment) {
	t.Helper()
	acme := testfixtures.CreateSupplier(t, db, "Acme Steel", "sales@acme.example.com")
	bolt := testfixtures.CreateSupplier(t, db, "Bolt & Co", "orders@bolt.example.com")
	single := testfixtures.CreateSingleOrder(t, db, acme, "OC-0100", "2024-03-01")
	multi, insts := testfixtures.CreateMultiOrder(t, db, bolt, "OC-0200", "2024-02-25", "2024-03-03", "2024-03-12")
	require.NoError(t, models.MarkConfirmed(context.Background(), db, models.InstallmentTarget(multi.ID, insts[0].ID)))
	return single, multi, insts
}

func TestReconcilerReschedulesOverdueDeliveries(t *testing.T) {
	db := testfixtures.NewDB(t)
	single, multi, insts := seedScenario(t, db)
	dispatcher := &recordingDispatcher{}
	r, _ := newTestReconciler(t, models.NewDeliveryStore(db), dispatcher)

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2024-03-04", result.RunDate)
	assert.Equal(t, "2024-03-05", result.NextBusinessDay)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Zero(t, result.FailedCount)
	require.Len(t, result.RescheduledItems, 2)

	// installments come first, grouped by order
	inst := result.RescheduledItems[0]
	assert.Equal(t, ItemKindInstallment, inst.Kind)
	assert.Equal(t, "OC-0200", inst.OrderFolio)
	assert.Equal(t, 2, inst.InstallmentNumber)
	assert.Equal(t, "2024-03-03", inst.OldDate)
	assert.Equal(t, "2024-03-05", inst.NewDate)
	assert.Equal(t, "orders@bolt.example.com", inst.SupplierEmail)

	order := result.RescheduledItems[1]
	assert.Equal(t, ItemKindOrder, order.Kind)
	assert.Equal(t, single.ID, order.PurchaseOrderId)
	assert.Equal(t, "2024-03-01", order.OldDate)
	assert.Equal(t, "2024-03-05", order.NewDate)

	reloadedOrder := testfixtures.ReloadOrder(t, db, single.ID)
	assert.Equal(t, "2024-03-05", utils.FormatDatePtr(reloadedOrder.ScheduledDeliveryDate))
	assert.Equal(t, models.PurchaseOrderStatusIssued, reloadedOrder.CurrentStatus)
	assert.True(t, strings.HasSuffix(reloadedOrder.Notes, "Delivery rescheduled from 2024-03-01 to 2024-03-05: not received."))
	assert.True(t, strings.HasPrefix(reloadedOrder.Notes, "[auto 2024-03-04T13:00:00Z]"))

	second := testfixtures.ReloadInstallment(t, db, insts[1].ID)
	assert.Equal(t, models.InstallmentStatusScheduled, second.Status)
	assert.Equal(t, "2024-03-05", utils.FormatDatePtr(second.ScheduledDate))
	assert.Contains(t, second.Notes, "from 2024-03-03 to 2024-03-05")

	// confirmed and future installments are untouched
	first := testfixtures.ReloadInstallment(t, db, insts[0].ID)
	assert.Equal(t, "2024-02-25", utils.FormatDatePtr(first.ScheduledDate))
	assert.Empty(t, first.Notes)
	assert.Equal(t, "2024-03-12", utils.FormatDatePtr(testfixtures.ReloadInstallment(t, db, insts[2].ID).ScheduledDate))

	assert.Equal(t, 1, dispatcher.calls)
	require.Len(t, dispatcher.events, 2)
	assert.Equal(t, multi.ID, dispatcher.events[0].OrderId)
	assert.Equal(t, "Delivery rescheduled: OC-0200 installment #2", dispatcher.events[0].Title)
	assert.Equal(t, "Delivery rescheduled: OC-0100", dispatcher.events[1].Title)
	assert.Equal(t, "Delivery of OC-0100 from Acme Steel was not received on 2024-03-01. It was moved to 2024-03-05.",
		dispatcher.events[1].Description)

	histories, err := models.GetHistories(context.Background(), db, models.ReferenceTypePurchaseOrder, single.ID)
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Equal(t, result.RunId, histories[0].CorrelationId)
	assert.Equal(t, utils.SystemUserName, histories[0].UserName)
}

func TestReconcilerIsIdempotent(t *testing.T) {
	db := testfixtures.NewDB(t)
	seedScenario(t, db)
	dispatcher := &recordingDispatcher{}
	r, _ := newTestReconciler(t, models.NewDeliveryStore(db), dispatcher)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, result.ProcessedCount)
	assert.NotNil(t, result.RescheduledItems)
	assert.Empty(t, result.RescheduledItems)
	// no events, no second dispatch
	assert.Equal(t, 1, dispatcher.calls)
}

func TestReconcilerContinuesAfterItemFailure(t *testing.T) {
	db := testfixtures.NewDB(t)
	bolt := testfixtures.CreateSupplier(t, db, "Bolt & Co", "orders@bolt.example.com")
	_, insts := testfixtures.CreateMultiOrder(t, db, bolt, "OC-0300", "2024-02-27", "2024-03-01", "2024-03-03")
	store := &failingStore{
		DeliveryStore:    models.NewDeliveryStore(db),
		failInstallments: map[int]bool{insts[1].ID: true},
	}
	dispatcher := &recordingDispatcher{}
	r, hook := newTestReconciler(t, store, dispatcher)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ProcessedCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.RescheduledItems, 2)
	assert.Equal(t, insts[0].ID, result.RescheduledItems[0].InstallmentId)
	assert.Equal(t, insts[2].ID, result.RescheduledItems[1].InstallmentId)

	assert.Equal(t, "2024-03-05", utils.FormatDatePtr(testfixtures.ReloadInstallment(t, db, insts[0].ID).ScheduledDate))
	assert.Equal(t, "2024-03-01", utils.FormatDatePtr(testfixtures.ReloadInstallment(t, db, insts[1].ID).ScheduledDate))
	assert.Equal(t, "2024-03-05", utils.FormatDatePtr(testfixtures.ReloadInstallment(t, db, insts[2].ID).ScheduledDate))

	require.Len(t, dispatcher.events, 2)
	assert.Equal(t, insts[0].ID, dispatcher.events[0].InstallmentId)
	assert.Equal(t, insts[2].ID, dispatcher.events[1].InstallmentId)

	var failures int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "failed to reschedule overdue delivery" {
			failures++
			assert.Equal(t, insts[1].ID, e.Data["installment_id"])
		}
	}
	assert.Equal(t, 1, failures)
}

func TestReconcilerContinuesAfterOrderFailure(t *testing.T) {
	db := testfixtures.NewDB(t)
	single, _, insts := seedScenario(t, db)
	store := &failingStore{
		DeliveryStore:    models.NewDeliveryStore(db),
		failInstallments: map[int]bool{insts[1].ID: true},
	}
	dispatcher := &recordingDispatcher{}
	r, _ := newTestReconciler(t, store, dispatcher)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.RescheduledItems, 1)
	assert.Equal(t, single.ID, result.RescheduledItems[0].PurchaseOrderId)
	assert.Equal(t, "2024-03-03", utils.FormatDatePtr(testfixtures.ReloadInstallment(t, db, insts[1].ID).ScheduledDate))
	require.Len(t, dispatcher.events, 1)
}

// staleStore moves each installment behind the job's back before the conditional update runs.
type staleStore struct {
	*models.DeliveryStore
}

func (s *staleStore) RescheduleInstallment(ctx context.Context, inst *models.DeliveryInstallment, newDate time.Time, note string) error {
	if _, err := s.DeliveryStore.SetScheduledDate(ctx, inst.ID, newDate.AddDate(0, 0, 7)); err != nil {
		return err
	}
	return s.DeliveryStore.RescheduleInstallment(ctx, inst, newDate, note)
}

func TestReconcilerSkipsStaleRows(t *testing.T) {
	db := testfixtures.NewDB(t)
	_, _, insts := seedScenario(t, db)
	r, _ := newTestReconciler(t, &staleStore{DeliveryStore: models.NewDeliveryStore(db)}, nil)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Zero(t, result.FailedCount)
	require.Len(t, result.RescheduledItems, 1)
	assert.Equal(t, ItemKindOrder, result.RescheduledItems[0].Kind)
	assert.Equal(t, "2024-03-12", utils.FormatDatePtr(testfixtures.ReloadInstallment(t, db, insts[1].ID).ScheduledDate))
}

func TestReconcilerFailsWhenSelectionFails(t *testing.T) {
	db := testfixtures.NewDB(t)
	seedScenario(t, db)
	store := &failingStore{DeliveryStore: models.NewDeliveryStore(db), listErr: errors.New("db unavailable")}
	dispatcher := &recordingDispatcher{}
	r, _ := newTestReconciler(t, store, dispatcher)

	result, err := r.Run(context.Background())
	assert.Nil(t, result)
	assert.EqualError(t, err, "db unavailable")
	assert.Zero(t, dispatcher.calls)
}

func TestReconcilerSurvivesNotificationFailures(t *testing.T) {
	db := testfixtures.NewDB(t)
	seedScenario(t, db)

	r, hook := newTestReconciler(t, models.NewDeliveryStore(db), panickingDispatcher{})
	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.RescheduledItems, 2)
	assert.NotEmpty(t, hook.AllEntries())

	db2 := testfixtures.NewDB(t)
	seedScenario(t, db2)
	r2, _ := newTestReconciler(t, models.NewDeliveryStore(db2), &recordingDispatcher{err: errors.New("smtp down")})
	result, err = r2.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.RescheduledItems, 2)
}

func TestReconcilerEndOfWeek(t *testing.T) {
	db := testfixtures.NewDB(t)
	acme := testfixtures.CreateSupplier(t, db, "Acme Steel", "sales@acme.example.com")
	order := testfixtures.CreateSingleOrder(t, db, acme, "OC-0300", "2024-03-08")

	r, _ := newTestReconciler(t, models.NewDeliveryStore(db), nil)
	// Saturday: Sunday is skipped
	r.Clock = func() time.Time { return time.Date(2024, 3, 9, 10, 0, 0, 0, mexicoCity) }

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", result.NextBusinessDay)
	assert.Equal(t, "2024-03-11", utils.FormatDatePtr(testfixtures.ReloadOrder(t, db, order.ID).ScheduledDeliveryDate))
}

func TestRescheduleNote(t *testing.T) {
	note := rescheduleNote("2024-03-04T13:00:00Z",
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "[auto 2024-03-04T13:00:00Z] Delivery rescheduled from 2024-03-01 to 2024-03-05: not received.", note)
}

type memoryResults struct {
	last *ReconciliationResult
}

func (m *memoryResults) SaveLast(_ context.Context, r *ReconciliationResult) error {
	m.last = r
	return nil
}

func (m *memoryResults) Last(context.Context) (*ReconciliationResult, error) {
	return m.last, nil
}

func TestReconcilerSavesLastResult(t *testing.T) {
	db := testfixtures.NewDB(t)
	seedScenario(t, db)
	results := &memoryResults{}
	r, _ := newTestReconciler(t, models.NewDeliveryStore(db), nil)
	r.Results = results

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Same(t, result, results.last)
}

func TestRedisResultCacheWithoutRedis(t *testing.T) {
	c := NewRedisResultCache()
	require.NoError(t, c.SaveLast(context.Background(), &ReconciliationResult{RunId: "x"}))
	last, err := c.Last(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last)
}
