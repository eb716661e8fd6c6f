package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/covidboard/covidboard/internal/app"
	"github.com/covidboard/covidboard/internal/dashboard"
	"github.com/covidboard/covidboard/internal/dashboard/source"
	jobmetrics "github.com/covidboard/covidboard/internal/jobs"
	"github.com/covidboard/covidboard/internal/platform/cache"
	"github.com/covidboard/covidboard/internal/platform/db"
	"github.com/covidboard/covidboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	srcCfg := source.Config{
		Kind:          strings.ToLower(cfg.DatasetSource),
		Dir:           cfg.DatasetDir,
		NationalLabel: cfg.NationalLabel,
		GeometryPath:  cfg.GeometryPath,
		CodeProperty:  cfg.GeometryCodeProperty,
		CatalogPath:   cfg.RegionCatalogPath,
		Logger:        logger,
	}
	if srcCfg.Kind == source.KindPostgres {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		srcCfg.DB = pool
	}

	ds, err := source.Load(ctx, srcCfg)
	if err != nil {
		logger.Error("load dataset", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	viewCache := dashboard.NewCache(redisClient, cfg.ViewCacheTTL)
	service := dashboard.NewService(ds, viewCache, nil)
	metrics := jobmetrics.NewMetrics(nil)

	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Close()

	warmupJob := jobs.NewViewWarmupJob(service, logger, metrics)
	bumpJob := jobs.NewCacheBumpJob(viewCache, client, logger, metrics)

	warmupTask, err := jobs.NewViewWarmupTask("")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskViewWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskCacheBump, Handler: bumpJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 * * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
