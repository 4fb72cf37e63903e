package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/moldworks-erp/moldworks-erp/internal/ap"
	"github.com/moldworks-erp/moldworks-erp/internal/ar"
	jobmetrics "github.com/moldworks-erp/moldworks-erp/internal/jobs"
)

// AgingRefreshJob recomputes the cached AR/AP aging snapshots so the first
// report request after a quiet period is not a cold read.
type AgingRefreshJob struct {
	AR      *ar.Service
	AP      *ap.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAgingRefreshJob initialises the aging refresh handler.
func NewAgingRefreshJob(arService *ar.Service, apService *ap.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *AgingRefreshJob {
	return &AgingRefreshJob{AR: arService, AP: apService, Logger: logger, Metrics: metrics}
}

// Handle executes the aging refresh.
func (j *AgingRefreshJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("aging refresh: handler not configured")
	}
	var payload AgingRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	ledgers := payload.Ledgers
	if len(ledgers) == 0 {
		ledgers = []string{"ar", "ap"}
	}

	tracker := j.metrics().Track(TaskAgingRefresh)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	for _, ledger := range ledgers {
		switch ledger {
		case "ar":
			if j.AR == nil {
				continue
			}
			bucket, err := j.AR.RefreshAging(ctx)
			if err != nil {
				j.log().Error("refresh ar aging", slog.Any("error", err))
				resultErr = err
				return resultErr
			}
			j.log().Info("refreshed ar aging",
				slog.String("job", TaskAgingRefresh),
				slog.Float64("current", bucket.Current))
		case "ap":
			if j.AP == nil {
				continue
			}
			bucket, err := j.AP.RefreshAging(ctx)
			if err != nil {
				j.log().Error("refresh ap aging", slog.Any("error", err))
				resultErr = err
				return resultErr
			}
			j.log().Info("refreshed ap aging",
				slog.String("job", TaskAgingRefresh),
				slog.Float64("current", bucket.Current))
		default:
			j.log().Warn("unknown ledger in aging refresh", slog.String("ledger", ledger))
		}
	}
	return nil
}

func (j *AgingRefreshJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *AgingRefreshJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
