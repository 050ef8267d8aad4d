package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the only queue the worker serves.
	QueueDefault = "default"
	// TaskBulkImport processes one stored bulk upload.
	TaskBulkImport = "bulkimport:process"
)

// BulkImportPayload identifies the upload to process.
type BulkImportPayload struct {
	UploadID int64 `json:"upload_id"`
}

// BulkImportTaskID is the queue-unique id of an upload's task.
func BulkImportTaskID(uploadID int64) string {
	return fmt.Sprintf("bulk-upload-%d", uploadID)
}

// NewBulkImportTask builds the task for payload. Bad input is not retried by
// the handler, so a small retry budget covers transient storage errors only.
func NewBulkImportTask(payload BulkImportPayload) (*asynq.Task, error) {
	if payload.UploadID <= 0 {
		return nil, fmt.Errorf("jobs: invalid upload id %d", payload.UploadID)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBulkImport, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
