// Package token issues and validates the relay's short-lived credentials:
// single-use share tokens, expiring guest links, and one-time registration
// codes used to bootstrap agent bearer tokens.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// tokenBytes is the entropy of every generated token (256 bits).
const tokenBytes = 32

var (
	// ErrInvalidOrExpired is returned for any token that cannot be used,
	// whether it never existed, expired, or was already consumed.
	ErrInvalidOrExpired = errors.New("invalid or expired token")

	// ErrCapacity is returned when too many share tokens are outstanding.
	ErrCapacity = errors.New("too many outstanding share tokens")

	// ErrCodeUnavailable is returned for any registration code that cannot
	// be consumed.
	ErrCodeUnavailable = errors.New("registration code unavailable")
)

// Generate returns a new URL-safe random token.
func Generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GuestTarget names what a guest link exposes: one session, or every session
// of an agent within a project.
type GuestTarget struct {
	SessionID string `json:"sessionId,omitempty"`
	Project   string `json:"project,omitempty"`
	Agent     string `json:"agent,omitempty"`
}

// Valid reports whether exactly one target form is set.
func (t GuestTarget) Valid() bool {
	if t.SessionID != "" {
		return t.Project == "" && t.Agent == ""
	}
	return t.Project != "" && t.Agent != ""
}

// GuestLink is a read-only link to one or more sessions.
type GuestLink struct {
	ID        string      `json:"id"`
	Token     string      `json:"token"`
	Target    GuestTarget `json:"target"`
	CreatedBy string      `json:"createdBy"`
	CreatedAt time.Time   `json:"createdAt"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Expired reports whether the link is past its expiry at now.
func (l *GuestLink) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// RegistrationCode is a one-time code that lets a new agent obtain a bearer token.
type RegistrationCode struct {
	Code       string     `json:"code"`
	CreatedBy  string     `json:"createdBy"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
	ConsumedBy string     `json:"consumedBy,omitempty"`
}

// GuestStore persists guest links.
type GuestStore interface {
	// InsertGuestLink stores a new link.
	InsertGuestLink(ctx context.Context, link *GuestLink) error

	// GetGuestLinkByToken returns the link for token, or nil, nil if none exists.
	// Expiry is left to the caller.
	GetGuestLinkByToken(ctx context.Context, token string) (*GuestLink, error)

	// DeleteGuestLink removes the link whose token or ID matches. It reports
	// whether a link was removed.
	DeleteGuestLink(ctx context.Context, tokenOrID string) (bool, error)

	// ListGuestLinks returns every stored link, newest first.
	ListGuestLinks(ctx context.Context) ([]*GuestLink, error)

	// DeleteExpiredGuestLinks removes links expired at now.
	DeleteExpiredGuestLinks(ctx context.Context, now time.Time) (int64, error)
}

// CodeStore persists registration codes.
type CodeStore interface {
	// InsertRegistrationCode stores a new code.
	InsertRegistrationCode(ctx context.Context, code *RegistrationCode) error

	// ConsumeRegistrationCode marks code consumed by consumer in a single
	// conditional update. It returns nil, nil when the code is unknown,
	// expired, or already consumed.
	ConsumeRegistrationCode(ctx context.Context, code, consumer string, now time.Time) (*RegistrationCode, error)

	// DeleteExpiredRegistrationCodes removes codes expired at now.
	DeleteExpiredRegistrationCodes(ctx context.Context, now time.Time) (int64, error)
}
