package shared

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityLog is one entry of the operator-facing activity feed.
type ActivityLog struct {
	ID      int64     `json:"id"`
	Action  string    `json:"action"`
	Details string    `json:"details"`
	At      time.Time `json:"timestamp"`
}

// ActivityRecorder appends activity entries.
type ActivityRecorder interface {
	Record(ctx context.Context, log ActivityLog) error
}

// ActivityFeed reads the newest activity entries.
type ActivityFeed interface {
	Recent(ctx context.Context, limit int) ([]ActivityLog, error)
}

// ActivityLogger writes records into activity_logs.
type ActivityLogger struct {
	pool *pgxpool.Pool
}

// NewActivityLogger returns a new ActivityLogger.
func NewActivityLogger(pool *pgxpool.Pool) *ActivityLogger {
	return &ActivityLogger{pool: pool}
}

// Record persists the log entry.
func (l *ActivityLogger) Record(ctx context.Context, log ActivityLog) error {
	if l == nil || l.pool == nil {
		return errors.New("activity logger not initialised")
	}
	if strings.TrimSpace(log.Action) == "" {
		return errors.New("activity log requires action")
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err := l.pool.Exec(ctx, `INSERT INTO activity_logs (action, details, occurred_at) VALUES ($1, $2, COALESCE($3, NOW()))`, log.Action, log.Details, at)
	return err
}

// Recent returns the latest entries, newest first.
func (l *ActivityLogger) Recent(ctx context.Context, limit int) ([]ActivityLog, error) {
	if l == nil || l.pool == nil {
		return nil, errors.New("activity logger not initialised")
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.pool.Query(ctx, `SELECT id, action, details, occurred_at FROM activity_logs ORDER BY occurred_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActivityLog
	for rows.Next() {
		var entry ActivityLog
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Details, &entry.At); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// RecordActivity writes an entry and only logs a failure; the activity feed
// never blocks the operation it describes.
func RecordActivity(ctx context.Context, rec ActivityRecorder, logger *slog.Logger, action, details string) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, ActivityLog{Action: action, Details: details}); err != nil && logger != nil {
		logger.Warn("record activity", slog.String("action", action), slog.Any("error", err))
	}
}
