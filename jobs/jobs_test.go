package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBulkImportTask(t *testing.T) {
	task, err := NewBulkImportTask(BulkImportPayload{UploadID: 42})
	require.NoError(t, err)
	assert.Equal(t, TaskBulkImport, task.Type())

	var payload BulkImportPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, int64(42), payload.UploadID)
	assert.Equal(t, "bulk-upload-42", BulkImportTaskID(42))

	_, err = NewBulkImportTask(BulkImportPayload{})
	assert.Error(t, err)
}

func TestNewWorkerRequiresHandler(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Handlers: []TaskHandler{{Type: TaskBulkImport}},
	})
	assert.Error(t, err)

	var w *Worker
	assert.Error(t, w.Run(context.Background()))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health QueueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, QueueHealth{Queue: QueueDefault}, health)
}

func TestSlogAdapterSatisfiesAsynqLogger(t *testing.T) {
	var logger asynq.Logger = slogAdapter{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	assert.NotPanics(t, func() { logger.Warn("redis ", "unreachable") })
}
