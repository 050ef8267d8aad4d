package bulkimport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/clientdoc/internal/jobs"
	"github.com/odyssey-erp/clientdoc/jobs"
)

// DefaultLockTTL bounds how long one worker may hold an upload.
const DefaultLockTTL = 5 * time.Minute

// JobConfig wires dependencies required by the worker job.
type JobConfig struct {
	Service *Service
	Locker  *redislock.Client
	LockTTL time.Duration
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
}

// Job processes queued uploads, one worker per upload at a time.
type Job struct {
	service *Service
	locker  *redislock.Client
	ttl     time.Duration
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewJob constructs a Job handler.
func NewJob(cfg JobConfig) *Job {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Job{service: cfg.Service, locker: cfg.Locker, ttl: cfg.LockTTL, metrics: cfg.Metrics, logger: cfg.Logger}
}

// LockKey is the redislock key guarding an upload.
func LockKey(uploadID int64) string {
	return fmt.Sprintf("bulkimport:%d", uploadID)
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil {
		return fmt.Errorf("bulkimport job not configured")
	}
	var payload jobs.BulkImportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.UploadID <= 0 {
		return asynq.SkipRetry
	}
	err := j.Run(ctx, payload.UploadID)
	switch {
	case errors.Is(err, ErrNotFound):
		return asynq.SkipRetry
	case errors.Is(err, ErrAlreadyRunning):
		return nil
	}
	return err
}

// Run processes one upload while holding its lock.
func (j *Job) Run(ctx context.Context, uploadID int64) error {
	if j.locker != nil {
		lock, err := j.locker.Obtain(ctx, LockKey(uploadID), j.ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			j.metrics.Skip(jobs.TaskBulkImport, "locked")
			j.logger.Info("bulk upload already being processed", slog.Int64("upload_id", uploadID))
			return ErrAlreadyRunning
		}
		if err != nil {
			return fmt.Errorf("bulkimport: obtain lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				j.logger.Warn("release bulk upload lock", slog.Int64("upload_id", uploadID), slog.Any("error", err))
			}
		}()
	}

	tracker := j.metrics.Track(jobs.TaskBulkImport)
	_, err := j.service.Process(ctx, uploadID)
	return tracker.End(err)
}
