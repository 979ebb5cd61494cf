package token

import (
	"context"
	"sync"
	"time"
)

// Share token defaults.
const (
	DefaultShareTTL         = 5 * time.Minute
	DefaultShareCapacity    = 1000
	defaultShareSweepPeriod = time.Minute
)

// ShareToken authorizes exactly one guest link creation.
type ShareToken struct {
	Token     string    `json:"token"`
	CreatedBy string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	used      bool
}

// ShareConfig configures a ShareStore.
type ShareConfig struct {
	TTL      time.Duration
	Capacity int
}

// ShareStore keeps share tokens in memory. They never outlive the process.
type ShareStore struct {
	mu       sync.Mutex
	tokens   map[string]*ShareToken
	ttl      time.Duration
	capacity int
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewShareStore creates a share token store.
func NewShareStore(cfg ShareConfig) *ShareStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultShareTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultShareCapacity
	}
	return &ShareStore{
		tokens:   make(map[string]*ShareToken),
		ttl:      cfg.TTL,
		capacity: cfg.Capacity,
		now:      time.Now,
	}
}

// Issue creates a new share token for createdBy.
func (s *ShareStore) Issue(createdBy string) (*ShareToken, error) {
	raw, err := Generate()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tokens) >= s.capacity {
		s.sweepLocked()
		if len(s.tokens) >= s.capacity {
			return nil, ErrCapacity
		}
	}

	st := &ShareToken{
		Token:     raw,
		CreatedBy: createdBy,
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.tokens[raw] = st
	out := *st
	return &out, nil
}

// Consume validates and burns a share token. Unknown, expired and already
// used tokens all return ErrInvalidOrExpired.
func (s *ShareStore) Consume(raw string) (*ShareToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tokens[raw]
	if !ok || st.used || !s.now().Before(st.ExpiresAt) {
		return nil, ErrInvalidOrExpired
	}
	st.used = true
	delete(s.tokens, raw)
	out := *st
	return &out, nil
}

// Outstanding returns the number of tokens currently held.
func (s *ShareStore) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// Sweep drops expired and used tokens.
func (s *ShareStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
}

func (s *ShareStore) sweepLocked() {
	now := s.now()
	for k, st := range s.tokens {
		if st.used || !now.Before(st.ExpiresAt) {
			delete(s.tokens, k)
		}
	}
}

// StartSweeper periodically drops expired tokens until Close is called.
func (s *ShareStore) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = defaultShareSweepPeriod
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Close stops the sweeper. It is safe to call without StartSweeper.
func (s *ShareStore) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}
