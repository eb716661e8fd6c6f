package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/covidboard/covidboard/internal/dashboard"
	jobmetrics "github.com/covidboard/covidboard/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ViewWarmer precomputes the views of one day.
type ViewWarmer interface {
	Warm(ctx context.Context, day time.Time) (int, error)
	Dataset() *dashboard.Dataset
}

// ViewWarmupJob fills the view cache for every metric of the national
// aggregate and each region on one day.
type ViewWarmupJob struct {
	Service ViewWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewViewWarmupJob wires dependencies for the warm-up handler.
func NewViewWarmupJob(service ViewWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ViewWarmupJob {
	return &ViewWarmupJob{Service: service, Logger: logger, Metrics: metrics, Timeout: time.Minute}
}

// Handle processes view warm-up tasks.
func (j *ViewWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("view warmup: handler not configured")
	}
	var payload ViewWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("view warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskViewWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	day := j.Service.Dataset().DateRange().Max
	if payload.Date != "" {
		parsed, err := dashboard.ParseDay(payload.Date)
		if err != nil {
			return fmt.Errorf("view warmup: date %q: %v: %w", payload.Date, err, asynq.SkipRetry)
		}
		day = parsed
	}

	logger := j.logger().With(slog.String("date", day.Format(dashboard.DateLayout)))
	logger.Info("starting view warmup")
	start := time.Now()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	warmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	warmed, err := j.Service.Warm(warmCtx, day)
	j.metrics().AddWarmed(warmed)
	if err != nil {
		if errors.Is(err, dashboard.ErrOutOfRangeDate) {
			logger.Warn("warmup date outside dataset", slog.Any("error", err))
			return fmt.Errorf("view warmup: %v: %w", err, asynq.SkipRetry)
		}
		logger.Error("warm views", slog.Int("warmed", warmed), slog.Any("error", err))
		return err
	}

	logger.Info("completed view warmup", slog.Int("views", warmed), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *ViewWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskViewWarmup))
	}
	return slog.Default().With(slog.String("job", TaskViewWarmup))
}

func (j *ViewWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
