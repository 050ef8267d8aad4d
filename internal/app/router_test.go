package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	mdstore "github.com/odyssey-erp/clientdoc/internal/masterdata/memstore"
	"github.com/odyssey-erp/clientdoc/internal/observability"
	"github.com/odyssey-erp/clientdoc/internal/trash"
)

func newTestRouter(t *testing.T) (http.Handler, *trash.MemoryRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := masterdata.NewService(mdstore.New(), nil, nil, logger)
	repo := trash.NewMemoryRepository()
	return NewRouter(RouterParams{
		Logger:            logger,
		Config:            &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		MasterDataHandler: masterdata.NewHandler(logger, catalog),
		TrashHandler:      trash.NewHandler(logger, trash.NewService(repo, catalog, nil, logger)),
		Metrics:           observability.NewMetrics(),
	}), repo
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Ratelimit-Limit"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clientdoc_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRouterMountsDomainRoutes(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.Put(trash.KindBuyer, 9, "Acme")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trash/buyer/9/delete", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/buyers", strings.NewReader(`{"name":"Zenith"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
