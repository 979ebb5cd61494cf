package pipeline

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. Each session owns its own lock so
// appends to different sessions never contend.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
}

type memSession struct {
	mu      sync.Mutex
	session Session
	steps   []Step
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memSession)}
}

// CreateSession inserts a new active session.
func (s *MemoryStore) CreateSession(_ context.Context, ns NewSession) (*Session, error) {
	sess := Session{
		ID:        ns.ID,
		Agent:     ns.Agent,
		Project:   ns.Project,
		Command:   ns.Command,
		User:      ns.User,
		Branch:    ns.Branch,
		Status:    StatusActive,
		Metadata:  maps.Clone(ns.Metadata),
		StartedAt: ns.Now,
		UpdatedAt: ns.Now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &memSession{session: sess}
	s.mu.Unlock()

	out := sess
	return &out, nil
}

// lookup returns the entry for id, including soft-deleted sessions.
func (s *MemoryStore) lookup(id string) (*memSession, bool) {
	s.mu.RLock()
	ms, ok := s.sessions[id]
	s.mu.RUnlock()
	return ms, ok
}

// GetSession returns a session without steps.
func (s *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	ms, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.session.Deleted() {
		return nil, ErrNotFound
	}
	out := ms.session
	return &out, nil
}

// GetSessionWithSteps returns a session and its steps in seq order.
func (s *MemoryStore) GetSessionWithSteps(_ context.Context, id string) (*Session, error) {
	ms, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.session.Deleted() {
		return nil, ErrNotFound
	}
	out := ms.session
	out.Steps = slices.Clone(ms.steps)
	return &out, nil
}

// GetActiveSessions returns every non-deleted active session.
func (s *MemoryStore) GetActiveSessions(ctx context.Context) ([]*Session, error) {
	return s.ListSessions(ctx, ListFilter{Status: StatusActive})
}

// ListSessions returns non-deleted sessions matching the filter, newest first.
func (s *MemoryStore) ListSessions(_ context.Context, f ListFilter) ([]*Session, error) {
	s.mu.RLock()
	entries := make([]*memSession, 0, len(s.sessions))
	for _, ms := range s.sessions {
		entries = append(entries, ms)
	}
	s.mu.RUnlock()

	var out []*Session
	for _, ms := range entries {
		ms.mu.Lock()
		sess := ms.session
		ms.mu.Unlock()

		if sess.Deleted() {
			continue
		}
		if f.Status != "" && sess.Status != f.Status {
			continue
		}
		if f.Agent != "" && sess.Agent != f.Agent {
			continue
		}
		if f.Project != "" && sess.Project != f.Project {
			continue
		}
		out = append(out, &sess)
	}

	slices.SortFunc(out, func(a, b *Session) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// AppendStep stores a step with the next sequence number.
func (s *MemoryStore) AppendStep(_ context.Context, sessionID string, ns NewStep) (*Step, error) {
	ms, ok := s.lookup(sessionID)
	if !ok {
		return nil, ErrNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.session.Deleted() {
		return nil, ErrNotFound
	}

	var seq int64 = 1
	if n := len(ms.steps); n > 0 {
		seq = ms.steps[n-1].Seq + 1
	}

	st := Step{
		ID:           ns.ID,
		SessionID:    sessionID,
		Seq:          seq,
		Kind:         ns.Kind,
		DocumentName: ns.DocumentName,
		Content:      ns.Content,
		RenderedHTML: ns.RenderedHTML,
		Command:      ns.Command,
		ExitCode:     ns.ExitCode,
		CreatedAt:    ns.Now,
	}
	ms.steps = append(ms.steps, st)
	ms.session.UpdatedAt = ns.Now
	return &st, nil
}

// ClaimResumableSession reactivates the most recently updated paused or
// completed session for (agent, project).
func (s *MemoryStore) ClaimResumableSession(_ context.Context, agent, project string, now time.Time) (*Session, error) {
	// The store-wide write lock plays the role of row-level exclusion: only
	// one claimer inspects candidates at a time.
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best        *memSession
		bestUpdated time.Time
	)
	for _, ms := range s.sessions {
		ms.mu.Lock()
		sess := ms.session
		ms.mu.Unlock()

		if sess.Deleted() || sess.Agent != agent || sess.Project != project {
			continue
		}
		if sess.Status != StatusPaused && sess.Status != StatusCompleted {
			continue
		}
		if best == nil || sess.UpdatedAt.After(bestUpdated) {
			best = ms
			bestUpdated = sess.UpdatedAt
		}
	}
	if best == nil {
		return nil, ErrNoResumableSession
	}

	best.mu.Lock()
	defer best.mu.Unlock()
	best.session.Status = StatusActive
	best.session.CompletedAt = nil
	best.session.UpdatedAt = now
	out := best.session
	return &out, nil
}

// UpdateStatus moves a session from one status to another.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from, to Status, now time.Time) (*Session, error) {
	ms, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.session.Deleted() {
		return nil, ErrNotFound
	}
	if ms.session.Status != from {
		return nil, ErrStatusConflict
	}
	ms.session.Status = to
	ms.session.UpdatedAt = now
	if to == StatusCompleted {
		t := now
		ms.session.CompletedAt = &t
	}
	out := ms.session
	return &out, nil
}

// SoftDelete marks a session deleted.
func (s *MemoryStore) SoftDelete(_ context.Context, id string, now time.Time) error {
	ms, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.session.Deleted() {
		return ErrNotFound
	}
	t := now
	ms.session.DeletedAt = &t
	ms.session.UpdatedAt = now
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
