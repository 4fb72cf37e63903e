package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	aging []AgingRefreshPayload
	sweep []EventSweepPayload
	err   error
}

func (f *fakeEnqueuer) EnqueueAgingRefresh(ctx context.Context, payload AgingRefreshPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.aging = append(f.aging, payload)
	return &asynq.TaskInfo{ID: "task-aging-1", Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) EnqueueEventSweep(ctx context.Context, payload EventSweepPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sweep = append(f.sweep, payload)
	return &asynq.TaskInfo{ID: "task-sweep-1", Queue: QueueDefault}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestJobRouter(enq Enqueuer) http.Handler {
	h := NewHandler(nil, enq, discardLogger())
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestHandlerTriggerAgingRefresh(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestJobRouter(enq)

	req := httptest.NewRequest(http.MethodPost, "/jobs/aging/refresh", strings.NewReader(`{"ledgers":["ar"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "task-aging-1")
	require.Len(t, enq.aging, 1)
	require.Equal(t, []string{"ar"}, enq.aging[0].Ledgers)
}

func TestHandlerTriggerAgingRefreshEmptyBody(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestJobRouter(enq)

	req := httptest.NewRequest(http.MethodPost, "/jobs/aging/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enq.aging, 1)
	require.Empty(t, enq.aging[0].Ledgers)
}

func TestHandlerTriggerEventSweep(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestJobRouter(enq)

	req := httptest.NewRequest(http.MethodPost, "/jobs/events/sweep", strings.NewReader(`{"older_than_hours":12}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "task-sweep-1")
	require.Len(t, enq.sweep, 1)
	require.Equal(t, 12, enq.sweep[0].OlderThanHours)
}

func TestHandlerTriggerRejectsMalformedBody(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestJobRouter(enq)

	req := httptest.NewRequest(http.MethodPost, "/jobs/aging/refresh", strings.NewReader(`{"ledgers":`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, enq.aging)
}

func TestHandlerTriggerEnqueueUnavailable(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	router := newTestJobRouter(enq)

	req := httptest.NewRequest(http.MethodPost, "/jobs/events/sweep", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Empty(t, enq.sweep)
}

func TestHandlerHealthWithoutInspector(t *testing.T) {
	router := newTestJobRouter(&fakeEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
