package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/clientdoc/internal/app"
	"github.com/odyssey-erp/clientdoc/internal/bulkimport"
	"github.com/odyssey-erp/clientdoc/internal/bundle"
	"github.com/odyssey-erp/clientdoc/internal/invoices"
	invoiceshttp "github.com/odyssey-erp/clientdoc/internal/invoices/http"
	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	"github.com/odyssey-erp/clientdoc/internal/observability"
	"github.com/odyssey-erp/clientdoc/internal/platform/cache"
	"github.com/odyssey-erp/clientdoc/internal/platform/db"
	"github.com/odyssey-erp/clientdoc/internal/render"
	"github.com/odyssey-erp/clientdoc/internal/shared"
	"github.com/odyssey-erp/clientdoc/internal/storage"
	"github.com/odyssey-erp/clientdoc/internal/trash"
	"github.com/odyssey-erp/clientdoc/jobs"
	"github.com/odyssey-erp/clientdoc/report"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	activity := shared.NewActivityLogger(dbpool)

	masterCache := masterdata.NewCache(redisClient, cfg.MasterDataCacheTTL)
	masterService := masterdata.NewService(masterdata.NewRepository(dbpool), masterCache, activity, logger)
	masterHandler := masterdata.NewHandler(logger, masterService)

	invoiceRepo := invoices.NewRepository(dbpool)
	invoiceService := invoices.NewService(invoiceRepo, masterService, activity, invoices.ServiceConfig{
		CompanyStateCode: cfg.CompanyStateCode,
		Logger:           logger,
		Files:            files,
		Feed:             activity,
	})

	reportClient := report.NewClient(cfg.GotenbergURL)
	renderer, err := render.NewRenderer(reportClient)
	if err != nil {
		logger.Error("init document renderer", slog.Any("error", err))
		os.Exit(1)
	}
	finalizer := bundle.NewFinalizer(invoiceService, renderer, files, cfg.Company(), metrics, logger)
	invoiceHandler := invoiceshttp.NewHandler(logger, invoiceService, finalizer, renderer, files)

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	bulkService := bulkimport.NewService(bulkimport.ServiceConfig{
		Repo:  bulkimport.NewRepository(dbpool),
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
	bulkHandler := bulkimport.NewHandler(logger, bulkService, masterService, queue)

	trashService := trash.NewService(trash.NewRepository(dbpool), masterService, activity, logger)
	trashHandler := trash.NewHandler(logger, trashService)

	reportHandler := report.NewHandler(reportClient, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		MasterDataHandler: masterHandler,
		InvoiceHandler:    invoiceHandler,
		BulkHandler:       bulkHandler,
		TrashHandler:      trashHandler,
		ReportHandler:     reportHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
