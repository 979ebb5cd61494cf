package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds the in-memory store.
const DefaultMemoryCapacity = 10000

// MemoryStore keeps the most recent events in memory. When full, the oldest
// event is dropped.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewMemoryStore creates a store holding at most capacity events.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Insert records an event.
func (m *MemoryStore) Insert(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) >= m.capacity {
		m.events = append(m.events[:0], m.events[1:]...)
	}
	m.events = append(m.events, event)
	return nil
}

// Query retrieves events matching the filter, newest first.
func (m *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	matched := m.matching(filter)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []Event{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Count returns the number of matching events.
func (m *MemoryStore) Count(_ context.Context, filter QueryFilter) (int, error) {
	return len(m.matching(filter)), nil
}

// DeleteBefore removes events older than cutoff.
func (m *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var removed int64
	for _, e := range m.events {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return removed, nil
}

func (m *MemoryStore) matching(filter QueryFilter) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		if filter.matches(m.events[i]) {
			out = append(out, m.events[i])
		}
	}
	return out
}

func (f QueryFilter) matches(e Event) bool {
	switch {
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.Actor != "" && e.Actor != f.Actor:
		return false
	case f.Success != nil && e.Success != *f.Success:
		return false
	case f.StartTime != nil && e.Timestamp.Before(*f.StartTime):
		return false
	case f.EndTime != nil && e.Timestamp.After(*f.EndTime):
		return false
	}
	return true
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
