// Package audit records security-relevant actions: logins, agent token
// issuance and revocation, guest link sharing and session deletion.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Store persists audit events.
type Store interface {
	// Insert records an event.
	Insert(ctx context.Context, event Event) error

	// Query retrieves events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter, ignoring
	// Limit and Offset.
	Count(ctx context.Context, filter QueryFilter) (int, error)

	// DeleteBefore removes events older than cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// QueryFilter defines criteria for querying audit events.
type QueryFilter struct {
	Action    Action
	Actor     string
	Success   *bool
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Config configures a Logger.
type Config struct {
	// Retention is how long events are kept. Zero keeps them forever.
	Retention time.Duration
}

// Logger records audit events to a Store. A nil *Logger discards events.
type Logger struct {
	store     Store
	retention time.Duration
	now       func() time.Time
}

// NewLogger creates a logger over store.
func NewLogger(store Store, cfg Config) *Logger {
	return &Logger{store: store, retention: cfg.Retention, now: time.Now}
}

// Record stores event. Failures are logged and never returned: an audit
// outage must not fail the request being audited.
func (l *Logger) Record(ctx context.Context, event *Event) {
	if l == nil || event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	event.Detail = SanitizeDetail(event.Detail)

	if err := l.store.Insert(context.WithoutCancel(ctx), *event); err != nil {
		slog.Error("audit: recording event",
			"action", event.Action, "actor", event.Actor, "error", err)
		return
	}
	slog.Debug("audit event", "action", event.Action, "actor", event.Actor,
		"target", event.Target, "success", event.Success)
}

// Query returns events matching filter and the total number of matches.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, int, error) {
	if l == nil {
		return nil, 0, nil
	}
	events, err := l.store.Query(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := l.store.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Cleanup removes events past the retention period.
func (l *Logger) Cleanup(ctx context.Context) {
	if l == nil || l.retention <= 0 {
		return
	}
	n, err := l.store.DeleteBefore(ctx, l.now().Add(-l.retention))
	if err != nil {
		slog.Warn("audit: cleanup failed", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("audit: removed expired events", "count", n)
	}
}
