package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent represents a record stored in audit_logs. OldValues and
// NewValues carry the before/after images of the mutated record.
type AuditEvent struct {
	Actor     string
	Action    string
	TableName string
	RecordID  string
	OldValues map[string]any
	NewValues map[string]any
	At        time.Time
}

// AuditLogger writes records into audit_logs. Delivery is best effort:
// callers emit after their business transaction commits and never roll back
// on audit failure.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{pool: pool, logger: logger}
}

// Record persists the event.
func (l *AuditLogger) Record(ctx context.Context, event AuditEvent) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if event.Action == "" || event.TableName == "" || event.RecordID == "" {
		return errors.New("audit event requires action/table_name/record_id")
	}
	oldJSON, err := json.Marshal(event.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(event.NewValues)
	if err != nil {
		return err
	}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor, action, table_name, record_id, old_values, new_values, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.Actor, event.Action, event.TableName, event.RecordID, oldJSON, newJSON, at)
	return err
}

// RecordBestEffort logs and swallows any failure.
func (l *AuditLogger) RecordBestEffort(ctx context.Context, event AuditEvent) {
	if l == nil {
		return
	}
	if err := l.Record(ctx, event); err != nil {
		l.logger.Warn("audit record dropped",
			slog.String("action", event.Action),
			slog.String("table", event.TableName),
			slog.Any("error", err))
	}
}
