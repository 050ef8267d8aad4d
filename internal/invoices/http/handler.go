package invoiceshttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/clientdoc/internal/bundle"
	"github.com/odyssey-erp/clientdoc/internal/invoices"
	"github.com/odyssey-erp/clientdoc/internal/platform/httpx"
	"github.com/odyssey-erp/clientdoc/internal/render"
	"github.com/odyssey-erp/clientdoc/internal/storage"
)

const maxUploadBytes = 32 << 20

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true}

// Files stores uploads and serves stored files.
type Files interface {
	Save(dir, ext string, r io.Reader) (string, error)
	ReadFile(ref string) ([]byte, error)
}

// Handler wires the invoice workflow endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *invoices.Service
	finalizer *bundle.Finalizer
	printer   bundle.DocumentRenderer
	files     Files
}

// NewHandler constructs a Handler value.
func NewHandler(logger *slog.Logger, service *invoices.Service, finalizer *bundle.Finalizer, printer bundle.DocumentRenderer, files Files) *Handler {
	return &Handler{logger: logger, service: service, finalizer: finalizer, printer: printer, files: files}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.detail)
		r.Put("/{id}", h.update)
		r.Get("/{id}/dc", h.openChallan)
		r.Put("/{id}/dc", h.saveChallan)
		r.Get("/{id}/transport", h.openTransport)
		r.Put("/{id}/transport", h.saveTransport)
		r.Get("/{id}/confirmation", h.openConfirmation)
		r.Post("/{id}/confirmation/files/{slot}", h.uploadFile)
		r.Delete("/{id}/confirmation/files/{slot}", h.removeFile)
		r.Post("/{id}/confirmation/images", h.uploadImages)
		r.Post("/{id}/finalize", h.finalize)
		r.Get("/{id}/bundle", h.downloadBundle)
		r.Get("/{id}/print/{kind}", h.print)
	})
	r.Patch("/packed-images/{id}", h.updateImage)
	r.Delete("/packed-images/{id}", h.deleteImage)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := invoices.ListFilter{
		Query:  strings.TrimSpace(q.Get("q")),
		Status: invoices.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Sort:   q.Get("sort"),
		Limit:  parseInt(q.Get("limit"), 50),
		Offset: parseInt(q.Get("offset"), 0),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		h.fail(w, invoices.ErrInvalidInput)
		return
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": items, "total": total})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in invoices.CreateInvoiceInput
	if err := decodeValid(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	inv, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	lines, err := h.service.Lines(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "lines": lines})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var in invoices.UpdateInvoiceInput
	if err := decodeValid(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	inv, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) openChallan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	inv, dc, err := h.service.OpenChallanStage(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "delivery_challan": dc})
}

func (h *Handler) saveChallan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var in invoices.ChallanInput
	if err := decodeValid(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	inv, err := h.service.SaveChallan(r.Context(), id, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "next": invoices.StageTransport})
}

func (h *Handler) openTransport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	inv, tc, err := h.service.OpenTransportStage(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "transport": tc})
}

func (h *Handler) saveTransport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var in invoices.TransportInput
	if err := decodeValid(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	if in.Charges.IsNegative() {
		h.fail(w, invoices.ErrInvalidInput)
		return
	}
	inv, err := h.service.SaveTransport(r.Context(), id, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "next": invoices.StageConfirmation})
}

func (h *Handler) openConfirmation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	view, err := h.service.OpenConfirmationStage(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	slot, err := invoices.ParseFileSlot(chi.URLParam(r, "slot"))
	if err != nil {
		h.fail(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, invoices.ErrInvalidInput)
		return
	}
	defer file.Close()
	ref, err := h.files.Save("confirmation_docs", filepath.Ext(header.Filename), file)
	if err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.service.AttachConfirmationFile(r.Context(), id, slot, ref)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) removeFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	slot, err := invoices.ParseFileSlot(chi.URLParam(r, "slot"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.service.RemoveConfirmationFile(r.Context(), id, slot); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) uploadImages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.fail(w, invoices.ErrInvalidInput)
		return
	}
	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		h.fail(w, invoices.ErrInvalidInput)
		return
	}
	notes := r.MultipartForm.Value["notes"]
	var out []invoices.PackedImage
	for i, fh := range headers {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !imageExts[ext] {
			h.fail(w, invoices.ErrInvalidInput)
			return
		}
		f, err := fh.Open()
		if err != nil {
			h.fail(w, err)
			return
		}
		ref, err := h.files.Save("packed_images", ext, f)
		_ = f.Close()
		if err != nil {
			h.fail(w, err)
			return
		}
		var note *string
		if i < len(notes) {
			note = &notes[i]
		}
		img, err := h.service.AddPackedImage(r.Context(), id, ref, note)
		if err != nil {
			h.fail(w, err)
			return
		}
		out = append(out, img)
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"images": out})
}

func (h *Handler) updateImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req struct {
		Notes *string `json:"notes"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.service.UpdatePackedImageNotes(r.Context(), id, req.Notes); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePackedImage(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	order, err := fileOrder(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.finalizer.Finalize(r.Context(), id, bundle.ParseOrder(order))
	if err != nil {
		h.fail(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "Document Bundle Generated Successfully!",
		"invoice": inv,
		"bundle":  bundle.BundleRef(inv),
		"result":  res,
	})
}

func (h *Handler) downloadBundle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	c, err := h.service.Confirmation(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if c.CombinedPDF == nil {
		h.fail(w, invoices.ErrNotFound)
		return
	}
	data, err := h.files.ReadFile(*c.CombinedPDF)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.Attachment(w, filepath.Base(*c.CombinedPDF), data)
}

func (h *Handler) print(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	kind, err := render.ParseDocKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if kind == render.KindInvoice {
		if _, err := h.service.Recalculate(r.Context(), id); err != nil {
			h.fail(w, err)
			return
		}
	}
	doc, err := h.service.Document(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	pdf, err := h.printer.Render(r.Context(), kind, doc, h.finalizer.Company())
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename="+string(kind)+"_"+doc.Number+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func fileOrder(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			FileOrder string `json:"file_order"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", invoices.ErrInvalidInput
		}
		return req.FileOrder, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", invoices.ErrInvalidInput
	}
	return r.PostFormValue("file_order"), nil
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, err)
		return 0, false
	}
	return id, true
}

func decodeValid(r *http.Request, dest any) error {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		return err
	}
	return httpx.Validate(dest)
}

func parseInt(raw string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var unreachable *invoices.StageUnreachableError
	switch {
	case errors.As(err, &unreachable):
		httpx.ProblemWith(w, http.StatusConflict, "Stage Unavailable", unreachable.Message, map[string]any{
			"redirect": unreachable.Fallback,
			"status":   unreachable.Status,
		})
	case errors.Is(err, invoices.ErrNotFound),
		errors.Is(err, invoices.ErrImageNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, render.ErrMissingSatellite):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, invoices.ErrInvalidInput),
		errors.Is(err, invoices.ErrInvalidLine),
		errors.Is(err, invoices.ErrLocationNotFound),
		errors.Is(err, invoices.ErrBuyerNotFound),
		errors.Is(err, render.ErrUnknownKind):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, invoices.ErrDuplicateTally):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, bundle.ErrEmptyBundle):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Empty Bundle", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "")
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("invoice request failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
