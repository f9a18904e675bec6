package internalapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/purchasing_backend/workflow"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

type memoryResults struct {
	last *workflow.ReconciliationResult
	err  error
}

func (m *memoryResults) SaveLast(_ context.Context, r *workflow.ReconciliationResult) error {
	m.last = r
	return nil
}

func (m *memoryResults) Last(context.Context) (*workflow.ReconciliationResult, error) {
	return m.last, m.err
}

func pushBody(data string) string {
	return `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte(data)) + `","messageId":"m-1"},"subscription":"projects/p/subscriptions/s"}`
}

func TestPubSubPush(t *testing.T) {
	reconciler := &fakeReconciler{result: &workflow.ReconciliationResult{RunId: "run-1"}}
	r, _ := newTestRouter(t, reconciler)

	w := do(r, http.MethodPost, "/internal/pubsub/delivery-reconciliation?token="+testToken, pushBody(`{"requested_by":"scheduler"}`), "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, reconciler.runs)

	// malformed messages are acked without running
	w = do(r, http.MethodPost, "/internal/pubsub/delivery-reconciliation", pushBody(`not json`), testToken)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodPost, "/internal/pubsub/delivery-reconciliation", `{"message":`, testToken)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, reconciler.runs)

	w = do(r, http.MethodPost, "/internal/pubsub/delivery-reconciliation?token=wrong", pushBody(`{}`), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPubSubPushFailedRunIsRedelivered(t *testing.T) {
	r, _ := newTestRouter(t, &fakeReconciler{err: errors.New("db down")})
	w := do(r, http.MethodPost, "/internal/pubsub/delivery-reconciliation", pushBody(`{}`), testToken)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPubSubPushDisabled(t *testing.T) {
	t.Setenv("ENABLE_PUBSUB_PUSH_ENDPOINT", "false")
	reconciler := &fakeReconciler{}
	r, _ := newTestRouter(t, reconciler)
	w := do(r, http.MethodPost, "/internal/pubsub/delivery-reconciliation", pushBody(`{}`), testToken)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, reconciler.runs)
}

func TestLastReconciliation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	results := &memoryResults{}
	h := &Handlers{Reconciler: &fakeReconciler{}, Results: results, Logger: logger}
	r := gin.New()
	h.RegisterRoutes(r, testToken)

	w := do(r, http.MethodGet, "/internal/jobs/delivery-reconciliation/last", "", testToken)
	assert.Equal(t, http.StatusNotFound, w.Code)

	results.last = &workflow.ReconciliationResult{RunId: "run-9", RunDate: "2024-03-04", RescheduledItems: []workflow.RescheduledItem{}}
	w = do(r, http.MethodGet, "/internal/jobs/delivery-reconciliation/last", "", testToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"run-9"`)

	results.err = errors.New("redis down")
	w = do(r, http.MethodGet, "/internal/jobs/delivery-reconciliation/last", "", testToken)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	noCache := gin.New()
	(&Handlers{Reconciler: &fakeReconciler{}, Logger: logger}).RegisterRoutes(noCache, testToken)
	w = do(noCache, http.MethodGet, "/internal/jobs/delivery-reconciliation/last", "", testToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
