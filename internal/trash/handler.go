package trash

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/clientdoc/internal/platform/httpx"
)

// Handler exposes the trash bin.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers trash routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/trash", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/{kind}/{id}/delete", h.action(h.service.Delete))
		r.Post("/{kind}/{id}/restore", h.action(h.service.Restore))
		r.Post("/{kind}/{id}/purge", h.action(h.service.HardDelete))
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	bin, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bin)
}

func (h *Handler) action(op func(context.Context, Kind, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			h.fail(w, err)
			return
		}
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			h.fail(w, err)
			return
		}
		if err := op(r.Context(), kind, id); err != nil {
			h.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownKind):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Kind", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("trash request failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
