// Package agentkey manages the bearer tokens agents use to publish pipeline
// sessions, and the in-memory identity cache the auth gate consults.
package agentkey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"time"
)

var (
	// ErrNotFound is returned when a bearer token does not exist.
	ErrNotFound = errors.New("bearer token not found")

	// ErrInvalidAgentName is returned for agent names outside the allowed pattern.
	ErrInvalidAgentName = errors.New("agent name must match ^[a-z0-9][a-z0-9._-]{0,62}$")
)

var agentNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,62}$`)

// ValidAgentName reports whether name is an acceptable agent identifier.
func ValidAgentName(name string) bool {
	return agentNamePattern.MatchString(name)
}

// BearerToken is the stored form of an agent credential. The raw token is
// never persisted.
type BearerToken struct {
	ID        string     `json:"id"`
	Agent     string     `json:"agent"`
	TokenHash string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Active reports whether the token has not been revoked.
func (b *BearerToken) Active() bool {
	return b.RevokedAt == nil
}

// Identity is the authenticated agent attached to a request.
type Identity struct {
	Agent   string
	TokenID string
}

// HashToken returns the hex SHA-256 digest of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Store persists bearer tokens.
type Store interface {
	// CreateBearerToken stores a new token record.
	CreateBearerToken(ctx context.Context, t *BearerToken) error

	// RevokeBearerToken marks a token revoked. Returns ErrNotFound if no
	// active token has that ID.
	RevokeBearerToken(ctx context.Context, id string, now time.Time) error

	// ListBearerTokens returns every token record, newest first.
	ListBearerTokens(ctx context.Context) ([]*BearerToken, error)

	// ListActiveBearerTokens returns the unrevoked tokens.
	ListActiveBearerTokens(ctx context.Context) ([]*BearerToken, error)

	// AgentExists reports whether the agent has at least one active token.
	AgentExists(ctx context.Context, agent string) (bool, error)
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the agent identity on ctx, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
