package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/clientdoc/internal/bulkimport"
	invoiceshttp "github.com/odyssey-erp/clientdoc/internal/invoices/http"
	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	"github.com/odyssey-erp/clientdoc/internal/observability"
	"github.com/odyssey-erp/clientdoc/internal/trash"
	"github.com/odyssey-erp/clientdoc/jobs"
	"github.com/odyssey-erp/clientdoc/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	MasterDataHandler *masterdata.Handler
	InvoiceHandler    *invoiceshttp.Handler
	BulkHandler       *bulkimport.Handler
	TrashHandler      *trash.Handler
	ReportHandler     *report.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	// Binary downloads skip compression; JSON routes get it.
	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5, "application/json", "application/problem+json"))
		if params.MasterDataHandler != nil {
			params.MasterDataHandler.MountRoutes(r)
		}
		if params.TrashHandler != nil {
			params.TrashHandler.MountRoutes(r)
		}
	})
	if params.InvoiceHandler != nil {
		params.InvoiceHandler.MountRoutes(r)
	}
	if params.BulkHandler != nil {
		params.BulkHandler.MountRoutes(r)
	}
	if params.ReportHandler != nil {
		r.Route("/renderer", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}
