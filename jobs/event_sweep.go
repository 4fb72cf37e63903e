package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/moldworks-erp/moldworks-erp/internal/jobs"
)

// EventSweepJob deletes accounting event rows that were reserved but never
// linked to a journal entry. Posting links the journal in the same
// transaction as the reservation, so an unlinked row older than the cutoff
// only appears after a crash between commit phases and is safe to remove.
type EventSweepJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewEventSweepJob initialises the event sweep handler.
func NewEventSweepJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *EventSweepJob {
	return &EventSweepJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep.
func (j *EventSweepJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Pool == nil {
		return errors.New("event sweep: handler not configured")
	}
	var payload EventSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OlderThanHours <= 0 {
		payload.OlderThanHours = 48
	}

	tracker := j.Metrics.Track(TaskEventSweep)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.clock().Add(-time.Duration(payload.OlderThanHours) * time.Hour)
	tag, err := j.Pool.Exec(ctx, `
		DELETE FROM accounting_events
		WHERE journal_entry_id IS NULL
		  AND created_at < $1
	`, cutoff)
	if err != nil {
		resultErr = fmt.Errorf("event sweep: %w", err)
		j.log().Error("event sweep", slog.Any("error", err))
		return resultErr
	}

	if tag.RowsAffected() > 0 {
		j.log().Info("swept orphaned event reservations",
			slog.String("job", TaskEventSweep),
			slog.Int64("deleted", tag.RowsAffected()),
			slog.Time("cutoff", cutoff))
	}
	return nil
}

func (j *EventSweepJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
