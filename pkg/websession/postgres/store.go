// Package postgres provides PostgreSQL storage for web sessions.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/pipeline-relay/pkg/websession"
)

// Store implements websession.Store using PostgreSQL.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures the PostgreSQL session store.
type Config struct {
	TTL time.Duration
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB, cfg Config) *Store {
	return &Store{
		db:  db,
		ttl: cfg.TTL,
	}
}

// Create persists a new session.
func (s *Store) Create(ctx context.Context, sess *websession.Session) error {
	stateJSON, err := json.Marshal(sess.State)
	if err != nil || sess.State == nil {
		stateJSON = []byte("{}")
	}

	query := `
		INSERT INTO web_sessions (id, authenticated, subject, created_at, last_active_at, expires_at, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.Authenticated, sess.Subject, sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt, stateJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting web session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Returns nil, nil if not found or expired.
func (s *Store) Get(ctx context.Context, id string) (*websession.Session, error) {
	query := `
		SELECT id, authenticated, subject, created_at, last_active_at, expires_at, state
		FROM web_sessions
		WHERE id = $1 AND expires_at > NOW()
	`
	var (
		sess      websession.Session
		stateJSON []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&sess.ID, &sess.Authenticated, &sess.Subject,
		&sess.CreatedAt, &sess.LastActiveAt, &sess.ExpiresAt, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning web session: %w", err)
	}

	sess.State = make(map[string]any)
	if len(stateJSON) > 0 {
		_ = json.Unmarshal(stateJSON, &sess.State)
	}
	return &sess, nil
}

// Touch updates LastActiveAt and extends ExpiresAt by the store's TTL.
func (s *Store) Touch(ctx context.Context, id string) error {
	query := `
		UPDATE web_sessions
		SET last_active_at = NOW(), expires_at = NOW() + $2::interval
		WHERE id = $1 AND expires_at > NOW()
	`
	_, err := s.db.ExecContext(ctx, query, id, fmt.Sprintf("%d seconds", int(s.ttl.Seconds())))
	if err != nil {
		return fmt.Errorf("touching web session: %w", err)
	}
	return nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM web_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting web session: %w", err)
	}
	return nil
}

// Cleanup removes expired sessions.
func (s *Store) Cleanup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM web_sessions WHERE expires_at <= NOW()`); err != nil {
		return fmt.Errorf("cleaning up web sessions: %w", err)
	}
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired sessions. The goroutine is stopped when Close is called.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Cleanup(ctx); err != nil {
					slog.Warn("web session cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Verify interface compliance.
var _ websession.Store = (*Store)(nil)
