package bulkimport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/clientdoc/internal/platform/httpx"
	"github.com/odyssey-erp/clientdoc/internal/sheets"
)

const maxWorkbookBytes = 32 << 20

// Enqueuer schedules background processing of an upload.
type Enqueuer interface {
	EnqueueBulkImport(ctx context.Context, uploadID int64) error
}

// Handler exposes bulk upload endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	catalog sheets.CatalogSource
	queue   Enqueuer
	now     func() time.Time
}

// NewHandler constructs a Handler. queue may be nil, in which case every
// upload is processed inline.
func NewHandler(logger *slog.Logger, service *Service, catalog sheets.CatalogSource, queue Enqueuer) *Handler {
	return &Handler{logger: logger, service: service, catalog: catalog, queue: queue, now: time.Now}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/bulk-uploads", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.upload)
		r.Get("/template", h.template)
		r.Get("/{id}", h.detail)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.service.List(r.Context(), 50)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	up, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, up)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWorkbookBytes)
	if err := r.ParseMultipartForm(maxWorkbookBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "expected multipart form with a file")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "file is required")
		return
	}
	defer file.Close()

	kind, err := sheets.ParseKind(r.FormValue("upload_type"))
	if err != nil {
		h.fail(w, err)
		return
	}
	up, err := h.service.Upload(r.Context(), header.Filename, kind, file)
	if err != nil {
		h.fail(w, err)
		return
	}

	async, _ := strconv.ParseBool(r.FormValue("async"))
	if async && h.queue != nil {
		if err := h.queue.EnqueueBulkImport(r.Context(), up.ID); err != nil {
			h.logger.Error("enqueue bulk upload", slog.Int64("upload_id", up.ID), slog.Any("error", err))
			h.fail(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, up)
		return
	}

	processed, err := h.service.Process(r.Context(), up.ID)
	if err != nil {
		// The failure is recorded on the upload; report it with the record.
		h.logger.Warn("bulk upload failed", slog.Int64("upload_id", up.ID), slog.Any("error", err))
		httpx.JSON(w, http.StatusUnprocessableEntity, processed)
		return
	}
	httpx.JSON(w, http.StatusOK, processed)
}

func (h *Handler) template(w http.ResponseWriter, r *http.Request) {
	kind, err := sheets.ParseKind(r.URL.Query().Get("type"))
	if err != nil {
		h.fail(w, err)
		return
	}
	export := r.URL.Query().Get("export") == "true"

	var catalog sheets.Catalog
	if export || kind == sheets.KindInvoice {
		if catalog, err = sheets.LoadCatalog(r.Context(), h.catalog); err != nil {
			h.fail(w, err)
			return
		}
	}
	f, err := sheets.Build(kind, export, catalog)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer f.Close()
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		h.fail(w, err)
		return
	}
	httpx.Attachment(w, sheets.Filename(kind, export, h.now()), buf.Bytes())
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnsupportedType), errors.Is(err, sheets.ErrUnknownKind):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("bulk upload request failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
