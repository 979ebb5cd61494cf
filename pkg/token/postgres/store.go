// Package postgres provides PostgreSQL storage for guest links and
// registration codes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/pipeline-relay/pkg/token"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var guestLinkColumns = []string{
	"id", "token", "session_id", "project", "agent", "created_by", "created_at", "expires_at",
}

// Store implements token.GuestStore and token.CodeStore using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL token store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertGuestLink stores a new link.
func (s *Store) InsertGuestLink(ctx context.Context, link *token.GuestLink) error {
	query := `
		INSERT INTO guest_links (id, token, session_id, project, agent, created_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		link.ID, link.Token, link.Target.SessionID, link.Target.Project, link.Target.Agent,
		link.CreatedBy, link.CreatedAt, link.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting guest link: %w", err)
	}
	return nil
}

// GetGuestLinkByToken returns the link for raw, or nil, nil if none exists.
func (s *Store) GetGuestLinkByToken(ctx context.Context, raw string) (*token.GuestLink, error) {
	query, args, err := psq.Select(guestLinkColumns...).
		From("guest_links").
		Where(sq.Eq{"token": raw}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building guest link query: %w", err)
	}

	link, err := scanGuestLink(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // GuestStore specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("getting guest link: %w", err)
	}
	return link, nil
}

// DeleteGuestLink removes the link whose token or ID matches.
func (s *Store) DeleteGuestLink(ctx context.Context, tokenOrID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM guest_links WHERE token = $1 OR id = $1`, tokenOrID)
	if err != nil {
		return false, fmt.Errorf("deleting guest link: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// ListGuestLinks returns every stored link, newest first.
func (s *Store) ListGuestLinks(ctx context.Context) ([]*token.GuestLink, error) {
	query, args, err := psq.Select(guestLinkColumns...).
		From("guest_links").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building guest link query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing guest links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []*token.GuestLink
	for rows.Next() {
		link, err := scanGuestLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning guest link row: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating guest link rows: %w", err)
	}
	return links, nil
}

// DeleteExpiredGuestLinks removes links expired at now.
func (s *Store) DeleteExpiredGuestLinks(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM guest_links WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired guest links: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// InsertRegistrationCode stores a new code.
func (s *Store) InsertRegistrationCode(ctx context.Context, code *token.RegistrationCode) error {
	query := `
		INSERT INTO registration_codes (code, created_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, code.Code, code.CreatedBy, code.CreatedAt, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting registration code: %w", err)
	}
	return nil
}

// ConsumeRegistrationCode marks code consumed in one conditional update, so
// concurrent redeemers cannot both succeed.
func (s *Store) ConsumeRegistrationCode(ctx context.Context, code, consumer string, now time.Time) (*token.RegistrationCode, error) {
	query := `
		UPDATE registration_codes
		SET consumed_at = $3, consumed_by = $2
		WHERE code = $1 AND consumed_at IS NULL AND expires_at > $3
		RETURNING code, created_by, created_at, expires_at, consumed_at, consumed_by
	`
	var (
		rc         token.RegistrationCode
		consumedAt sql.NullTime
		consumedBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, code, consumer, now).
		Scan(&rc.Code, &rc.CreatedBy, &rc.CreatedAt, &rc.ExpiresAt, &consumedAt, &consumedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // CodeStore specifies nil,nil when nothing was consumed
	}
	if err != nil {
		return nil, fmt.Errorf("consuming registration code: %w", err)
	}
	if consumedAt.Valid {
		t := consumedAt.Time
		rc.ConsumedAt = &t
	}
	rc.ConsumedBy = consumedBy.String
	return &rc, nil
}

// DeleteExpiredRegistrationCodes removes codes expired at now.
func (s *Store) DeleteExpiredRegistrationCodes(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM registration_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired registration codes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuestLink(row rowScanner) (*token.GuestLink, error) {
	var link token.GuestLink
	err := row.Scan(&link.ID, &link.Token, &link.Target.SessionID, &link.Target.Project,
		&link.Target.Agent, &link.CreatedBy, &link.CreatedAt, &link.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// Verify interface compliance.
var (
	_ token.GuestStore = (*Store)(nil)
	_ token.CodeStore  = (*Store)(nil)
)
