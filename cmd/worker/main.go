package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/clientdoc/internal/app"
	"github.com/odyssey-erp/clientdoc/internal/bulkimport"
	"github.com/odyssey-erp/clientdoc/internal/bundle"
	"github.com/odyssey-erp/clientdoc/internal/invoices"
	jobmetrics "github.com/odyssey-erp/clientdoc/internal/jobs"
	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	"github.com/odyssey-erp/clientdoc/internal/observability"
	"github.com/odyssey-erp/clientdoc/internal/platform/cache"
	"github.com/odyssey-erp/clientdoc/internal/platform/db"
	"github.com/odyssey-erp/clientdoc/internal/render"
	"github.com/odyssey-erp/clientdoc/internal/shared"
	"github.com/odyssey-erp/clientdoc/internal/storage"
	"github.com/odyssey-erp/clientdoc/jobs"
	"github.com/odyssey-erp/clientdoc/report"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	files, err := storage.NewLocal(cfg.MediaRoot)
	if err != nil {
		logger.Error("init media storage", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()
	activity := shared.NewActivityLogger(pool)

	masterService := masterdata.NewService(masterdata.NewRepository(pool), masterdata.NewCache(redisClient, cfg.MasterDataCacheTTL), activity, logger)
	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, masterService, activity, invoices.ServiceConfig{
		CompanyStateCode: cfg.CompanyStateCode,
		Logger:           logger,
		Files:            files,
	})

	renderer, err := render.NewRenderer(report.NewClient(cfg.GotenbergURL))
	if err != nil {
		logger.Error("init document renderer", slog.Any("error", err))
		os.Exit(1)
	}
	finalizer := bundle.NewFinalizer(invoiceService, renderer, files, cfg.Company(), metrics, logger)

	bulkService := bulkimport.NewService(bulkimport.ServiceConfig{
		Repo:  bulkimport.NewRepository(pool),
		Files: files,
		Invoices: bulkimport.NewInvoiceImporter(bulkimport.InvoiceImporterConfig{
			Repo:      invoiceRepo,
			Invoices:  invoiceService,
			Catalog:   masterService,
			Files:     files,
			Finalizer: finalizer,
			Observer:  metrics,
			Logger:    logger,
		}),
		Masters:  masterService,
		Activity: activity,
		Logger:   logger,
	})
	importJob := bulkimport.NewJob(bulkimport.JobConfig{
		Service: bulkService,
		Locker:  redislock.New(redisClient),
		LockTTL: cfg.ImportLockTTL,
		Metrics: jobmetrics.NewMetrics(metrics.Registerer()),
		Logger:  logger,
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBulkImport, Handler: importJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
