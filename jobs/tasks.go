package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskViewWarmup precomputes derived views into the cache.
	TaskViewWarmup = "dashboard:view_warmup"
	// TaskCacheBump invalidates every cached view.
	TaskCacheBump = "dashboard:cache_bump"
)

// ViewWarmupPayload selects the day to warm. An empty Date warms the latest
// day of the dataset.
type ViewWarmupPayload struct {
	Date string `json:"date,omitempty"`
}

// CacheBumpPayload records why the cache was invalidated.
type CacheBumpPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewViewWarmupTask builds a warm-up task.
func NewViewWarmupTask(date string) (*asynq.Task, error) {
	body, err := json.Marshal(ViewWarmupPayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskViewWarmup, body, asynq.Queue(QueueDefault)), nil
}

// NewCacheBumpTask builds a cache invalidation task.
func NewCacheBumpTask(reason string) (*asynq.Task, error) {
	body, err := json.Marshal(CacheBumpPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheBump, body, asynq.Queue(QueueDefault)), nil
}
