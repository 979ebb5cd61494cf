package token

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore implements GuestStore and CodeStore in memory.
type MemoryStore struct {
	mu    sync.Mutex
	links map[string]*GuestLink
	codes map[string]*RegistrationCode
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links: make(map[string]*GuestLink),
		codes: make(map[string]*RegistrationCode),
	}
}

// InsertGuestLink stores a new link.
func (m *MemoryStore) InsertGuestLink(_ context.Context, link *GuestLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *link
	m.links[link.Token] = &cp
	return nil
}

// GetGuestLinkByToken returns the link for token, or nil, nil if none exists.
func (m *MemoryStore) GetGuestLinkByToken(_ context.Context, token string) (*GuestLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[token]
	if !ok {
		return nil, nil //nolint:nilnil // GuestStore specifies nil,nil for not-found
	}
	cp := *link
	return &cp, nil
}

// DeleteGuestLink removes the link whose token or ID matches.
func (m *MemoryStore) DeleteGuestLink(_ context.Context, tokenOrID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, link := range m.links {
		if link.Token == tokenOrID || link.ID == tokenOrID {
			delete(m.links, k)
			return true, nil
		}
	}
	return false, nil
}

// ListGuestLinks returns every stored link, newest first.
func (m *MemoryStore) ListGuestLinks(_ context.Context) ([]*GuestLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*GuestLink, 0, len(m.links))
	for _, link := range m.links {
		cp := *link
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *GuestLink) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// DeleteExpiredGuestLinks removes links expired at now.
func (m *MemoryStore) DeleteExpiredGuestLinks(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, link := range m.links {
		if link.Expired(now) {
			delete(m.links, k)
			n++
		}
	}
	return n, nil
}

// InsertRegistrationCode stores a new code.
func (m *MemoryStore) InsertRegistrationCode(_ context.Context, code *RegistrationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *code
	m.codes[code.Code] = &cp
	return nil
}

// ConsumeRegistrationCode marks code consumed if it is still redeemable.
func (m *MemoryStore) ConsumeRegistrationCode(_ context.Context, code, consumer string, now time.Time) (*RegistrationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.codes[code]
	if !ok || rc.ConsumedAt != nil || !now.Before(rc.ExpiresAt) {
		return nil, nil //nolint:nilnil // CodeStore specifies nil,nil when nothing was consumed
	}
	t := now
	rc.ConsumedAt = &t
	rc.ConsumedBy = consumer
	cp := *rc
	return &cp, nil
}

// DeleteExpiredRegistrationCodes removes codes expired at now.
func (m *MemoryStore) DeleteExpiredRegistrationCodes(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, rc := range m.codes {
		if !now.Before(rc.ExpiresAt) {
			delete(m.codes, k)
			n++
		}
	}
	return n, nil
}

// Verify interface compliance.
var (
	_ GuestStore = (*MemoryStore)(nil)
	_ CodeStore  = (*MemoryStore)(nil)
)
