package invoiceshttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/clientdoc/internal/bundle"
	"github.com/odyssey-erp/clientdoc/internal/invoices"
	invoiceshttp "github.com/odyssey-erp/clientdoc/internal/invoices/http"
	"github.com/odyssey-erp/clientdoc/internal/invoices/memstore"
	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	mdstore "github.com/odyssey-erp/clientdoc/internal/masterdata/memstore"
	"github.com/odyssey-erp/clientdoc/internal/platform/httpx"
	"github.com/odyssey-erp/clientdoc/internal/render"
	"github.com/odyssey-erp/clientdoc/internal/shared"
	"github.com/odyssey-erp/clientdoc/internal/storage"
)

func pdfBytes(t *testing.T, text string) []byte {
	t.Helper()
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(40, 40, text)
	buf := &bytes.Buffer{}
	require.NoError(t, pdf.Output(buf))
	return buf.Bytes()
}

type stubRenderer struct{ t *testing.T }

func (s stubRenderer) Render(_ context.Context, kind render.DocKind, doc invoices.Document, _ render.CompanyProfile) ([]byte, error) {
	return pdfBytes(s.t, string(kind)+" "+doc.Number), nil
}

type env struct {
	router   http.Handler
	store    *storage.Local
	location masterdata.Location
	widget   masterdata.Item
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := masterdata.NewService(mdstore.New(), nil, nil, logger)
	loc, _, err := catalog.UpsertLocation(ctx, masterdata.Location{Name: "Warehouse A", StateCode: "29"})
	require.NoError(t, err)
	widget, _, err := catalog.UpsertItem(ctx, masterdata.Item{Name: "Widget", Price: decimal.NewFromInt(100)}, "")
	require.NoError(t, err)

	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	activity := &shared.MemoryActivity{}
	svc := invoices.NewService(memstore.New(), catalog, activity, invoices.ServiceConfig{
		CompanyStateCode: "29",
		Logger:           logger,
		Files:            files,
		Feed:             activity,
	})
	renderer := stubRenderer{t: t}
	finalizer := bundle.NewFinalizer(svc, renderer, files, render.CompanyProfile{Name: "Tsol"}, nil, logger)

	r := chi.NewRouter()
	invoiceshttp.NewHandler(logger, svc, finalizer, renderer, files).MountRoutes(r)
	return &env{router: r, store: files, location: loc, widget: widget}
}

func (e *env) do(t *testing.T, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *env) createInvoice(t *testing.T) invoices.Invoice {
	t.Helper()
	body := fmt.Sprintf(`{"location_id":%d,"tally_number":"INV-55","lines":[{"item_id":%d,"quantity":3}]}`, e.location.ID, e.widget.ID)
	rr := e.do(t, http.MethodPost, "/invoices", "application/json", strings.NewReader(body))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var inv invoices.Invoice
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&inv))
	return inv
}

func TestCreateInvoice(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t)
	assert.Equal(t, invoices.StatusDraft, inv.Status)
	assert.Equal(t, "354.00", inv.Grand.StringFixed(2))

	rr := e.do(t, http.MethodPost, "/invoices", "application/json", strings.NewReader(`{"lines":[]}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTransportStageRedirectsDraft(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t)

	rr := e.do(t, http.MethodGet, fmt.Sprintf("/invoices/%d/transport", inv.ID), "", nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
	assert.Equal(t, "You must complete the Delivery Challan first.", problem.Detail)
	assert.Equal(t, "dc", problem.Extra["redirect"])
}

func TestUnknownPrintKind(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t)
	rr := e.do(t, http.MethodGet, fmt.Sprintf("/invoices/%d/print/receipt", inv.ID), "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodGet, fmt.Sprintf("/invoices/%d/print/invoice", inv.ID), "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
}

func TestUploadAndFinalize(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t)
	base := fmt.Sprintf("/invoices/%d", inv.ID)

	rr := e.do(t, http.MethodPut, base+"/dc", "application/json", strings.NewReader(`{"notes":"Handle with care"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = e.do(t, http.MethodPut, base+"/transport", "application/json", strings.NewReader(`{"charges":"25"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "po.pdf")
	require.NoError(t, err)
	_, err = part.Write(pdfBytes(t, "purchase order"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rr = e.do(t, http.MethodPost, base+"/confirmation/files/po", mw.FormDataContentType(), body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var c invoices.Confirmation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&c))
	require.NotNil(t, c.POFile)
	assert.True(t, strings.HasPrefix(*c.POFile, "confirmation_docs/"))

	rr = e.do(t, http.MethodGet, base+"/confirmation", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"po"`)

	form := url.Values{"file_order": {"po,invoice,dc,transport"}}
	rr = e.do(t, http.MethodPost, base+"/finalize", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "confirmations/confirmation_invoice_INV-55.pdf")

	rr = e.do(t, http.MethodGet, base+"/bundle", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")))

	rr = e.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"FINALIZED"`)
}

func TestInvalidSlot(t *testing.T) {
	e := newEnv(t)
	inv := e.createInvoice(t)
	rr := e.do(t, http.MethodDelete, fmt.Sprintf("/invoices/%d/confirmation/files/contract", inv.ID), "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
