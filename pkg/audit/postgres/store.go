// Package postgres provides PostgreSQL storage for audit events.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/pipeline-relay/pkg/audit"
)

const (
	defaultQueryCapacity = 100
	maxQueryCapacity     = 10000
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// auditColumns lists columns returned by audit SELECT queries.
var auditColumns = []string{
	"id", "timestamp", "action", "actor", "target", "client_ip", "success", "detail",
}

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert records an audit event.
func (s *Store) Insert(ctx context.Context, event audit.Event) error {
	detail := []byte("{}")
	if len(event.Detail) > 0 {
		b, err := json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("encoding audit detail: %w", err)
		}
		detail = b
	}

	query := `
		INSERT INTO audit_events (id, timestamp, action, actor, target, client_ip, success, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Action),
		event.Actor,
		event.Target,
		event.ClientIP,
		event.Success,
		detail,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// applyAuditFilter adds filter conditions to a SELECT builder.
func applyAuditFilter(qb sq.SelectBuilder, filter audit.QueryFilter) sq.SelectBuilder {
	if filter.Action != "" {
		qb = qb.Where(sq.Eq{"action": string(filter.Action)})
	}
	if filter.Actor != "" {
		qb = qb.Where(sq.Eq{"actor": filter.Actor})
	}
	if filter.Success != nil {
		qb = qb.Where(sq.Eq{"success": *filter.Success})
	}
	if filter.StartTime != nil {
		qb = qb.Where(sq.GtOrEq{"timestamp": *filter.StartTime})
	}
	if filter.EndTime != nil {
		qb = qb.Where(sq.LtOrEq{"timestamp": *filter.EndTime})
	}
	return qb
}

// Query retrieves audit events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	qb := applyAuditFilter(psq.Select(auditColumns...).From("audit_events"), filter)
	qb = qb.OrderBy("timestamp DESC", "id DESC")
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building audit query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	allocCap := defaultQueryCapacity
	if filter.Limit > 0 && filter.Limit <= maxQueryCapacity {
		allocCap = filter.Limit
	}
	events := make([]audit.Event, 0, allocCap)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit event rows: %w", err)
	}
	return events, nil
}

// Count returns the number of audit events matching the filter.
func (s *Store) Count(ctx context.Context, filter audit.QueryFilter) (int, error) {
	qb := applyAuditFilter(psq.Select("COUNT(*)").From("audit_events"), filter)

	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting audit events: %w", err)
	}
	return count, nil
}

// DeleteBefore removes audit events older than cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted audit events: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (audit.Event, error) {
	var (
		event  audit.Event
		action string
		detail []byte
	)
	err := rows.Scan(
		&event.ID,
		&event.Timestamp,
		&action,
		&event.Actor,
		&event.Target,
		&event.ClientIP,
		&event.Success,
		&detail,
	)
	if err != nil {
		return event, fmt.Errorf("scanning audit event row: %w", err)
	}
	event.Action = audit.Action(action)

	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &event.Detail); err != nil {
			return event, fmt.Errorf("decoding audit detail: %w", err)
		}
		if len(event.Detail) == 0 {
			event.Detail = nil
		}
	}
	return event, nil
}

// Verify interface compliance.
var _ audit.Store = (*Store)(nil)
