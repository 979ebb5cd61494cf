package agentkey

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*BearerToken
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]*BearerToken)}
}

// CreateBearerToken stores a new token record.
func (m *MemoryStore) CreateBearerToken(_ context.Context, t *BearerToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

// RevokeBearerToken marks a token revoked.
func (m *MemoryStore) RevokeBearerToken(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || !t.Active() {
		return ErrNotFound
	}
	ts := now
	t.RevokedAt = &ts
	return nil
}

// ListBearerTokens returns every token record, newest first.
func (m *MemoryStore) ListBearerTokens(_ context.Context) ([]*BearerToken, error) {
	return m.list(false), nil
}

// ListActiveBearerTokens returns the unrevoked tokens.
func (m *MemoryStore) ListActiveBearerTokens(_ context.Context) ([]*BearerToken, error) {
	return m.list(true), nil
}

func (m *MemoryStore) list(activeOnly bool) []*BearerToken {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*BearerToken, 0, len(m.tokens))
	for _, t := range m.tokens {
		if activeOnly && !t.Active() {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *BearerToken) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// AgentExists reports whether the agent has an active token.
func (m *MemoryStore) AgentExists(_ context.Context, agent string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		if t.Agent == agent && t.Active() {
			return true, nil
		}
	}
	return false, nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
