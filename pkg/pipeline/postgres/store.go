// Package postgres provides PostgreSQL storage for pipeline sessions and steps.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/pipeline-relay/pkg/pipeline"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists columns returned by session SELECT queries.
var sessionColumns = []string{
	"id", "agent", "project", "command", "user_name", "branch", "status",
	"metadata", "started_at", "updated_at", "completed_at", "deleted_at",
}

const sessionColumnList = `id, agent, project, command, user_name, branch, status,
	metadata, started_at, updated_at, completed_at, deleted_at`

const defaultListLimit = 200

// Store implements pipeline.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL pipeline store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateSession inserts a new active session.
func (s *Store) CreateSession(ctx context.Context, ns pipeline.NewSession) (*pipeline.Session, error) {
	metadata, err := json.Marshal(ns.Metadata)
	if err != nil || ns.Metadata == nil {
		metadata = []byte("{}")
	}

	query := `
		INSERT INTO sessions (id, agent, project, command, user_name, branch, status, metadata, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		ns.ID, ns.Agent, ns.Project, ns.Command, ns.User, ns.Branch,
		string(pipeline.StatusActive), metadata, ns.Now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	return &pipeline.Session{
		ID:        ns.ID,
		Agent:     ns.Agent,
		Project:   ns.Project,
		Command:   ns.Command,
		User:      ns.User,
		Branch:    ns.Branch,
		Status:    pipeline.StatusActive,
		Metadata:  ns.Metadata,
		StartedAt: ns.Now,
		UpdatedAt: ns.Now,
	}, nil
}

// GetSession returns a session without steps.
func (s *Store) GetSession(ctx context.Context, id string) (*pipeline.Session, error) {
	query := `SELECT ` + sessionColumnList + `
		FROM sessions
		WHERE id = $1 AND deleted_at IS NULL`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return sess, nil
}

// GetSessionWithSteps returns a session and its steps in seq order.
func (s *Store) GetSessionWithSteps(ctx context.Context, id string) (*pipeline.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, session_id, seq, kind, document_name, content, rendered_html, command, exit_code, created_at
		FROM steps
		WHERE session_id = $1
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("listing steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			st       pipeline.Step
			kind     string
			exitCode sql.NullInt64
		)
		if err := rows.Scan(&st.ID, &st.SessionID, &st.Seq, &kind, &st.DocumentName,
			&st.Content, &st.RenderedHTML, &st.Command, &exitCode, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning step row: %w", err)
		}
		st.Kind = pipeline.StepKind(kind)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			st.ExitCode = &code
		}
		sess.Steps = append(sess.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating step rows: %w", err)
	}
	return sess, nil
}

// GetActiveSessions returns every non-deleted active session.
func (s *Store) GetActiveSessions(ctx context.Context) ([]*pipeline.Session, error) {
	return s.ListSessions(ctx, pipeline.ListFilter{Status: pipeline.StatusActive})
}

// ListSessions returns non-deleted sessions matching the filter, newest first.
func (s *Store) ListSessions(ctx context.Context, f pipeline.ListFilter) ([]*pipeline.Session, error) {
	qb := psq.Select(sessionColumns...).From("sessions").Where("deleted_at IS NULL")
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Agent != "" {
		qb = qb.Where(sq.Eq{"agent": f.Agent})
	}
	if f.Project != "" {
		qb = qb.Where(sq.Eq{"project": f.Project})
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	qb = qb.OrderBy("started_at DESC").Limit(uint64(limit))

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*pipeline.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// AppendStep stores a step with the next sequence number. The session row is
// locked for the duration of the transaction, which serializes appends to the
// same session while leaving other sessions untouched.
func (s *Store) AppendStep(ctx context.Context, sessionID string, ns pipeline.NewStep) (*pipeline.Step, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, sessionID,
	).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking session: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM steps WHERE session_id = $1`, sessionID,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("computing next seq: %w", err)
	}

	var exitCode sql.NullInt64
	if ns.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*ns.ExitCode), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO steps (id, session_id, seq, kind, document_name, content, rendered_html, command, exit_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ns.ID, sessionID, seq, string(ns.Kind), ns.DocumentName, ns.Content, ns.RenderedHTML,
		ns.Command, exitCode, ns.Now)
	if err != nil {
		return nil, fmt.Errorf("inserting step: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE sessions SET updated_at = $2 WHERE id = $1`, sessionID, ns.Now)
	if err != nil {
		return nil, fmt.Errorf("touching session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing step: %w", err)
	}

	return &pipeline.Step{
		ID:           ns.ID,
		SessionID:    sessionID,
		Seq:          seq,
		Kind:         ns.Kind,
		DocumentName: ns.DocumentName,
		Content:      ns.Content,
		RenderedHTML: ns.RenderedHTML,
		Command:      ns.Command,
		ExitCode:     ns.ExitCode,
		CreatedAt:    ns.Now,
	}, nil
}

// ClaimResumableSession reactivates the most recently updated paused or
// completed session for (agent, project). Rows locked by a concurrent claimer
// are skipped, so two callers never reactivate the same session.
func (s *Store) ClaimResumableSession(ctx context.Context, agent, project string, now time.Time) (*pipeline.Session, error) {
	query := `
		UPDATE sessions
		SET status = 'active', completed_at = NULL, updated_at = $3
		WHERE id = (
			SELECT id FROM sessions
			WHERE agent = $1 AND project = $2 AND deleted_at IS NULL
			  AND status IN ('paused', 'completed')
			ORDER BY updated_at DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + sessionColumnList
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, agent, project, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrNoResumableSession
	}
	if err != nil {
		return nil, fmt.Errorf("claiming session: %w", err)
	}
	return sess, nil
}

// UpdateStatus moves a session from one status to another. The row only
// changes when its stored status still equals from.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to pipeline.Status, now time.Time) (*pipeline.Session, error) {
	query := `
		UPDATE sessions
		SET status = $3::text,
		    updated_at = $4,
		    completed_at = CASE WHEN $3::text = 'completed' THEN $4 ELSE completed_at END
		WHERE id = $1 AND status = $2::text AND deleted_at IS NULL
		RETURNING ` + sessionColumnList
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id, string(from), string(to), now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.statusMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("updating session status: %w", err)
	}
	return sess, nil
}

// statusMiss tells a missing session apart from one whose status moved.
func (s *Store) statusMiss(ctx context.Context, id string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking session: %w", err)
	}
	if !exists {
		return pipeline.ErrNotFound
	}
	return pipeline.ErrStatusConflict
}

// SoftDelete marks a session deleted.
func (s *Store) SoftDelete(ctx context.Context, id string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*pipeline.Session, error) {
	var (
		sess        pipeline.Session
		status      string
		metadata    []byte
		completedAt sql.NullTime
		deletedAt   sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.Agent, &sess.Project, &sess.Command, &sess.User, &sess.Branch,
		&status, &metadata, &sess.StartedAt, &sess.UpdatedAt, &completedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	sess.Status = pipeline.Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		sess.DeletedAt = &t
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &sess.Metadata)
	}
	return &sess, nil
}

// Verify interface compliance.
var _ pipeline.Store = (*Store)(nil)
