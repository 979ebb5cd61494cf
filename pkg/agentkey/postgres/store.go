// Package postgres provides PostgreSQL storage for agent bearer tokens.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/pipeline-relay/pkg/agentkey"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var tokenColumns = []string{"id", "agent", "token_hash", "created_at", "revoked_at"}

// Store implements agentkey.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL bearer token store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateBearerToken stores a new token record.
func (s *Store) CreateBearerToken(ctx context.Context, t *agentkey.BearerToken) error {
	query := `
		INSERT INTO agent_tokens (id, agent, token_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.ExecContext(ctx, query, t.ID, t.Agent, t.TokenHash, t.CreatedAt); err != nil {
		return fmt.Errorf("inserting bearer token: %w", err)
	}
	return nil
}

// RevokeBearerToken marks a token revoked.
func (s *Store) RevokeBearerToken(ctx context.Context, id string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agent_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, now)
	if err != nil {
		return fmt.Errorf("revoking bearer token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return agentkey.ErrNotFound
	}
	return nil
}

// ListBearerTokens returns every token record, newest first.
func (s *Store) ListBearerTokens(ctx context.Context) ([]*agentkey.BearerToken, error) {
	return s.list(ctx, false)
}

// ListActiveBearerTokens returns the unrevoked tokens.
func (s *Store) ListActiveBearerTokens(ctx context.Context) ([]*agentkey.BearerToken, error) {
	return s.list(ctx, true)
}

func (s *Store) list(ctx context.Context, activeOnly bool) ([]*agentkey.BearerToken, error) {
	qb := psq.Select(tokenColumns...).From("agent_tokens")
	if activeOnly {
		qb = qb.Where(sq.Eq{"revoked_at": nil})
	}
	query, args, err := qb.OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building bearer token query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bearer tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*agentkey.BearerToken
	for rows.Next() {
		var (
			t         agentkey.BearerToken
			revokedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.Agent, &t.TokenHash, &t.CreatedAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("scanning bearer token row: %w", err)
		}
		if revokedAt.Valid {
			ts := revokedAt.Time
			t.RevokedAt = &ts
		}
		tokens = append(tokens, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bearer token rows: %w", err)
	}
	return tokens, nil
}

// AgentExists reports whether the agent has an active token.
func (s *Store) AgentExists(ctx context.Context, agent string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM agent_tokens WHERE agent = $1 AND revoked_at IS NULL)`, agent,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking agent: %w", err)
	}
	return exists, nil
}

// Verify interface compliance.
var _ agentkey.Store = (*Store)(nil)
