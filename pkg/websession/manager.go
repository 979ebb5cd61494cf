package websession

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DefaultTTL is the idle lifetime of a web session.
const DefaultTTL = 24 * time.Hour

// Manager ties the session store to the cookie codec.
type Manager struct {
	store Store
	codec *CookieCodec
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a Manager. A non-positive ttl uses DefaultTTL.
func NewManager(store Store, codec *CookieCodec, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, codec: codec, ttl: ttl, now: time.Now}
}

// Current returns the session named by r's cookie, or nil when the cookie is
// missing, tampered with, or names an unknown or expired session. A tampered
// cookie is rejected before the store is consulted.
func (m *Manager) Current(r *http.Request) (*Session, error) {
	id, err := m.codec.Read(r)
	if err != nil {
		return nil, nil //nolint:nilnil // absent and invalid cookies are both "no session"
	}
	sess, err := m.store.Get(r.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("loading web session: %w", err)
	}
	return sess, nil
}

// Touch extends the session's expiry.
func (m *Manager) Touch(ctx context.Context, id string) error {
	return m.store.Touch(ctx, id)
}

// Authenticate discards any existing session on r, creates a fresh
// authenticated session for subject, and sets its cookie. Issuing a new ID
// on every privilege change prevents session fixation.
func (m *Manager) Authenticate(w http.ResponseWriter, r *http.Request, subject string) (*Session, error) {
	ctx := r.Context()
	if oldID, err := m.codec.Read(r); err == nil {
		if err := m.store.Delete(ctx, oldID); err != nil {
			return nil, fmt.Errorf("discarding previous web session: %w", err)
		}
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}
	now := m.now()
	sess := &Session{
		ID:            id,
		Authenticated: true,
		Subject:       subject,
		CreatedAt:     now,
		LastActiveAt:  now,
		ExpiresAt:     now.Add(m.ttl),
		State:         map[string]any{},
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating web session: %w", err)
	}
	if err := m.codec.Write(w, id, now); err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout deletes the session on r, if any, and clears the cookie.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	defer m.codec.Clear(w)
	id, err := m.codec.Read(r)
	if err != nil {
		return nil
	}
	if err := m.store.Delete(r.Context(), id); err != nil {
		return fmt.Errorf("deleting web session: %w", err)
	}
	return nil
}
