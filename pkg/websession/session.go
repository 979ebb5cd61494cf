// Package websession manages browser sessions for dashboard viewers. Session
// records live in a Store; the browser holds a signed cookie naming the
// session ID.
package websession

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// sessionIDBytes is the number of random bytes in a session ID.
const sessionIDBytes = 32

// Session is a viewer's browser session.
type Session struct {
	// ID is the unique session identifier.
	ID string

	// Authenticated is set after a successful login or upstream promotion.
	Authenticated bool

	// Subject is "admin" for password logins, or the upstream user.
	Subject string

	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time

	// State holds extensible session data.
	State map[string]any
}

// Store defines the interface for session persistence.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by ID. Returns nil, nil if not found or expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Touch updates LastActiveAt and extends ExpiresAt by the store's TTL.
	Touch(ctx context.Context, id string) error

	// Delete removes a session.
	Delete(ctx context.Context, id string) error

	// Cleanup removes expired sessions.
	Cleanup(ctx context.Context) error

	// Close stops background routines and releases resources.
	Close() error
}

// NewID returns a random hex session ID.
func NewID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
