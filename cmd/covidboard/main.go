package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/covidboard/covidboard/internal/app"
	"github.com/covidboard/covidboard/internal/dashboard"
	dashboardhttp "github.com/covidboard/covidboard/internal/dashboard/http"
	"github.com/covidboard/covidboard/internal/dashboard/source"
	"github.com/covidboard/covidboard/internal/dashboard/ui"
	"github.com/covidboard/covidboard/internal/observability"
	"github.com/covidboard/covidboard/internal/platform/cache"
	"github.com/covidboard/covidboard/internal/platform/db"
	"github.com/covidboard/covidboard/internal/view"
	"github.com/covidboard/covidboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
			logger.Error("connect postgres", slog.Any("error", err))
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

	metrics := observability.NewMetrics()
	dashboardMetrics, err := dashboard.NewMetrics(metrics.Registerer())
	if err != nil {
		logger.Error("register dashboard metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		viewCache  *dashboard.Cache
		jobHandler *jobs.Handler
	)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, serving views without cache", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		viewCache = dashboard.NewCache(redisClient, cfg.ViewCacheTTL)
		if err := viewCache.ListenForInvalidation(ctx, dashboard.BumpChannel, func(version int64) {
			logger.Info("view cache version changed", slog.Int64("version", version))
		}); err != nil {
			logger.Warn("subscribe cache bumps", slog.Any("error", err))
		}

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)

		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Warn("init job client", slog.Any("error", err))
		} else {
			defer jobClient.Close()
			if _, err := jobClient.EnqueueViewWarmup(ctx, ""); err != nil {
				logger.Warn("enqueue startup warmup", slog.Any("error", err))
			}
		}
	}

	service := dashboard.NewService(ds, viewCache, dashboardMetrics)
	defaultDate, defaultMetric := cfg.Defaults()
	registry := dashboard.NewRegistry(ds, dashboard.RegistryConfig{
		DefaultDate:   defaultDate,
		DefaultMetric: defaultMetric,
		IdleTTL:       cfg.SessionIdleTTL,
		Observer:      dashboardMetrics,
	})
	go registry.Run(ctx, cfg.SessionSweep)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	dashboardHandler := dashboardhttp.NewHandler(
		logger,
		registry,
		service,
		templates,
		ui.Options{},
		dashboardhttp.CookieConfig{Name: cfg.SessionCookie, Secure: cfg.IsProduction(), TTL: cfg.SessionIdleTTL},
		cfg.CSRFSecret,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DashboardHandler: dashboardHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
