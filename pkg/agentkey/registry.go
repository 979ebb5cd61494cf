package agentkey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// tokenPrefix marks relay bearer tokens so they are recognizable in logs and
// secret scanners.
const tokenPrefix = "prt_"

// Issued is the result of creating a bearer token. Token is the only time the
// raw secret is available.
type Issued struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registry creates and revokes agent bearer tokens and keeps the cache fresh.
type Registry struct {
	store Store
	cache *Cache
	now   func() time.Time
}

// NewRegistry creates a Registry. cache may be nil.
func NewRegistry(store Store, cache *Cache) *Registry {
	return &Registry{store: store, cache: cache, now: time.Now}
}

// Create issues a new bearer token for agent.
func (r *Registry) Create(ctx context.Context, agent string) (*Issued, error) {
	if !ValidAgentName(agent) {
		return nil, ErrInvalidAgentName
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating bearer token: %w", err)
	}
	raw := tokenPrefix + base64.RawURLEncoding.EncodeToString(b)

	rec := &BearerToken{
		ID:        uuid.NewString(),
		Agent:     agent,
		TokenHash: HashToken(raw),
		CreatedAt: r.now(),
	}
	if err := r.store.CreateBearerToken(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing bearer token: %w", err)
	}
	r.refresh(ctx)

	return &Issued{ID: rec.ID, Agent: agent, Token: raw, CreatedAt: rec.CreatedAt}, nil
}

// Revoke marks the token with id revoked.
func (r *Registry) Revoke(ctx context.Context, id string) error {
	if err := r.store.RevokeBearerToken(ctx, id, r.now()); err != nil {
		return err
	}
	r.refresh(ctx)
	return nil
}

// List returns every token record.
func (r *Registry) List(ctx context.Context) ([]*BearerToken, error) {
	return r.store.ListBearerTokens(ctx)
}

// Exists reports whether agent has an active token.
func (r *Registry) Exists(ctx context.Context, agent string) (bool, error) {
	return r.store.AgentExists(ctx, agent)
}

// refresh reloads the cache after a mutation. Failure leaves the cache on
// its periodic schedule.
func (r *Registry) refresh(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Refresh(ctx); err != nil {
		slog.Warn("refreshing agent token cache after change", "error", err)
	}
}
