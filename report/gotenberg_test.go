package report

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGotenberg(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/forms/chromium/convert/html", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("paperWidth") != "8.27" || r.FormValue("printBackground") != "true" {
			http.Error(w, "missing page settings", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("files")
		if err != nil || header.Filename != "index.html" {
			http.Error(w, "missing index.html", http.StatusBadRequest)
			return
		}
		html, _ := io.ReadAll(file)
		_, _ = w.Write(append([]byte("%PDF-1.7 "), html...))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRenderHTML(t *testing.T) {
	client := NewClient(fakeGotenberg(t).URL + "/")

	pdf, err := client.RenderHTML(context.Background(), "<h1>TAX INVOICE</h1>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 <h1>TAX INVOICE</h1>", string(pdf))
	assert.NoError(t, client.Ping(context.Background()))
}

func TestRenderHTMLErrors(t *testing.T) {
	_, err := NewClient("").RenderHTML(context.Background(), "<p/>")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	_, err = NewClient(srv.URL).RenderHTML(context.Background(), "<p/>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "chromium crashed")
}

func TestHealthRoute(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(NewClient(fakeGotenberg(t).URL), logger).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	r = chi.NewRouter()
	NewHandler(NewClient(down.URL), logger).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
