package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/covidboard/covidboard/internal/jobs"
)

// CacheBumper invalidates the view cache.
type CacheBumper interface {
	Bump(ctx context.Context) (int64, error)
}

// CacheBumpJob bumps the cache version so every process drops its cached
// views, then optionally enqueues a fresh warm-up.
type CacheBumpJob struct {
	Cache   CacheBumper
	Client  *Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheBumpJob wires dependencies for the bump handler. client may be nil.
func NewCacheBumpJob(cache CacheBumper, client *Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheBumpJob {
	return &CacheBumpJob{Cache: cache, Client: client, Logger: logger, Metrics: metrics}
}

// Handle processes cache bump tasks.
func (j *CacheBumpJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Cache == nil {
		return errors.New("cache bump: handler not configured")
	}
	var payload CacheBumpPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("cache bump: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.metrics().Track(TaskCacheBump)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	version, err := j.Cache.Bump(ctx)
	if err != nil {
		j.logger().Error("bump cache", slog.Any("error", err))
		return err
	}
	j.logger().Info("view cache bumped", slog.Int64("version", version), slog.String("reason", payload.Reason))

	if j.Client != nil {
		if _, err := j.Client.EnqueueViewWarmup(ctx, ""); err != nil {
			j.logger().Warn("enqueue warmup after bump", slog.Any("error", err))
		}
	}
	return nil
}

func (j *CacheBumpJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCacheBump))
	}
	return slog.Default().With(slog.String("job", TaskCacheBump))
}

func (j *CacheBumpJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
