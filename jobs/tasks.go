package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAgingRefresh recomputes the AR/AP aging snapshots.
	TaskAgingRefresh = "aging:refresh"
	// TaskEventSweep prunes orphaned event reservations.
	TaskEventSweep = "events:sweep"
)

// AgingRefreshPayload selects which subledgers to refresh. An empty list
// refreshes both.
type AgingRefreshPayload struct {
	Ledgers []string `json:"ledgers,omitempty"`
}

// NewAgingRefreshTask constructs an aging refresh task.
func NewAgingRefreshTask(payload AgingRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAgingRefresh, data), nil
}

// EventSweepPayload bounds the sweep to reservations older than the given age.
type EventSweepPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

// NewEventSweepTask constructs an event sweep task.
func NewEventSweepTask(payload EventSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEventSweep, data), nil
}
