package agentkey

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRefreshInterval is how often the cache reloads from the store.
const DefaultRefreshInterval = 5 * time.Minute

// Cache answers bearer token lookups from an in-memory snapshot.
//
// The snapshot is replaced wholesale on each refresh. A token revoked in the
// store keeps authorizing until the next refresh, so the staleness window is
// bounded by RefreshInterval. A failed refresh keeps the previous snapshot.
type Cache struct {
	store    Store
	interval time.Duration
	snapshot atomic.Pointer[map[string]Identity]
	onLoad   func(size int)

	// refreshMu keeps an older listing from replacing a newer snapshot.
	refreshMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// CacheConfig configures a Cache.
type CacheConfig struct {
	RefreshInterval time.Duration

	// OnLoad, if set, is called with the entry count after each successful load.
	OnLoad func(size int)
}

// NewCache creates an empty cache over store.
func NewCache(store Store, cfg CacheConfig) *Cache {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	c := &Cache{store: store, interval: cfg.RefreshInterval, onLoad: cfg.OnLoad}
	empty := map[string]Identity{}
	c.snapshot.Store(&empty)
	return c
}

// Refresh reloads every active token and swaps the snapshot.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	tokens, err := c.store.ListActiveBearerTokens(ctx)
	if err != nil {
		return fmt.Errorf("loading bearer tokens: %w", err)
	}
	next := make(map[string]Identity, len(tokens))
	for _, t := range tokens {
		next[t.TokenHash] = Identity{Agent: t.Agent, TokenID: t.ID}
	}
	c.snapshot.Store(&next)
	if c.onLoad != nil {
		c.onLoad(len(next))
	}
	return nil
}

// Lookup returns the identity for a raw bearer token.
func (c *Cache) Lookup(raw string) (Identity, bool) {
	if raw == "" {
		return Identity{}, false
	}
	m := *c.snapshot.Load()
	id, ok := m[HashToken(raw)]
	return id, ok
}

// Size returns the number of cached tokens.
func (c *Cache) Size() int {
	return len(*c.snapshot.Load())
}

// Start performs an initial load and then refreshes every interval until
// Close is called. An initial load failure is returned; later failures are
// logged and the previous snapshot is kept.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(loopCtx); err != nil {
					slog.Warn("agent token cache refresh failed, keeping previous snapshot",
						"error", err, "entries", c.Size())
				}
			}
		}
	}()
	return nil
}

// Close stops the refresh loop and waits for it to exit.
func (c *Cache) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}
