// ocp-worker consumes queued analysis requests, saves each run and announces
// it on the broker. With ANALYSIS_INTERVAL set it also re-runs the analysis
// on a schedule.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"ocp/internal/backend"
	appcli "ocp/internal/cli"
	applog "ocp/internal/log"
	"ocp/internal/services"
	"ocp/internal/worker"
)

func main() {
	appcli.LoadEnvFile()

	cfg, err := appcli.LoadAndValidateConfig()
	if err != nil {
		// Logger is not configured yet.
		applog.New(applog.DefaultConfig()).Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	logger := appcli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentWorker)
	logger.Info("Starting ocp-worker", applog.FieldOperation, applog.OpStartup, "backend", cfg.DataBackend)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", bcfg.Type.String())
		os.Exit(1)
	}
	if res.Publisher == nil {
		logger.Error("AMQP broker unavailable, nothing to consume")
		_ = res.Close()
		os.Exit(1)
	}
	if res.Repository == nil {
		logger.Warn("Runs are not persisted by this backend; completion messages will not be published",
			"backend", bcfg.Type.String())
	}

	svc := res.Service()
	publishReport := res.Reports != nil
	analysisWorker := worker.NewAnalysisWorker(svc, publishReport)

	var scheduler *services.Scheduler
	if cfg.AnalysisInterval > 0 {
		schedCfg := services.DefaultSchedulerConfig()
		schedCfg.Interval = cfg.AnalysisInterval
		schedCfg.PublishReport = publishReport
		scheduler = services.NewScheduler(svc, schedCfg)
	}

	ctx, done := appcli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if scheduler != nil {
			if err := scheduler.Stop(ctx); err != nil {
				logger.Error("Scheduler stop error", applog.FieldError, err)
			}
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	if scheduler != nil {
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("Failed to start analysis scheduler", applog.FieldError, err)
		}
	}

	go func() {
		ctx := applog.WithLogger(ctx, logger)
		err := res.Publisher.ConsumeAnalysisRequests(ctx, analysisWorker.HandleAnalysisRequest)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()

	appcli.WaitForShutdown(ctx, done)
}
