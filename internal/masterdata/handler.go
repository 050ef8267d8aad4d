package masterdata

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clientdoc/internal/platform/httpx"
)

// Handler manages master data endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/buyers", h.listBuyers)
	r.Post("/buyers", h.createBuyer)
	r.Get("/buyers/{id}", h.showBuyer)
	r.Put("/buyers/{id}", h.updateBuyer)

	r.Get("/locations", h.listLocations)
	r.Post("/locations", h.createLocation)
	r.Get("/locations/{id}", h.showLocation)
	r.Put("/locations/{id}", h.updateLocation)

	r.Get("/items", h.listItems)
	r.Post("/items", h.createItem)
	r.Get("/items/{id}", h.showItem)
	r.Put("/items/{id}", h.updateItem)
}

type itemRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Category    string          `json:"category"`
	ArticleCode string          `json:"article_code"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	GSTRate     decimal.Decimal `json:"gst_rate"`
	HSNCode     string          `json:"hsn_code"`
	Unit        string          `json:"unit"`
}

func (req itemRequest) item() Item {
	return Item{
		Name:        req.Name,
		ArticleCode: req.ArticleCode,
		Description: req.Description,
		Price:       req.Price,
		GSTRate:     req.GSTRate,
		HSNCode:     req.HSNCode,
		Unit:        req.Unit,
	}
}

// Buyers

func (h *Handler) listBuyers(w http.ResponseWriter, r *http.Request) {
	buyers, err := h.service.ListBuyers(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"buyers": buyers})
}

func (h *Handler) showBuyer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	buyer, err := h.service.Buyer(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, buyer)
}

func (h *Handler) createBuyer(w http.ResponseWriter, r *http.Request) {
	var b Buyer
	if err := decodeValid(r, &b); err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.service.SaveBuyer(r.Context(), b)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) updateBuyer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var b Buyer
	if err := decodeValid(r, &b); err != nil {
		h.fail(w, err)
		return
	}
	b.ID = id
	if err := h.service.UpdateBuyer(r.Context(), b); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Locations

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.service.ListLocations(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (h *Handler) showLocation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	loc, err := h.service.Location(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	var l Location
	if err := decodeValid(r, &l); err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.service.SaveLocation(r.Context(), l)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) updateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var l Location
	if err := decodeValid(r, &l); err != nil {
		h.fail(w, err)
		return
	}
	l.ID = id
	if err := h.service.UpdateLocation(r.Context(), l); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Items

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) showItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	item, err := h.service.Item(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeValid(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.service.SaveItem(r.Context(), req.item(), req.Category)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	var req itemRequest
	if err := decodeValid(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	it := req.item()
	it.ID = id
	if err := h.service.UpdateItem(r.Context(), it, req.Category); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeValid(r *http.Request, dest any) error {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		return err
	}
	return httpx.Validate(dest)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNameRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("masterdata request failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
