package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Guest link defaults.
const (
	DefaultGuestTTL      = 24 * time.Hour
	DefaultGuestMaxTTL   = 7 * 24 * time.Hour
	DefaultSweepInterval = 10 * time.Minute
)

// ErrInvalidTarget is returned when a guest link names neither a session nor
// a project and agent pair.
var ErrInvalidTarget = errors.New("guest link needs a sessionId or a project and agent")

// GuestConfig configures a GuestService.
type GuestConfig struct {
	DefaultTTL    time.Duration
	MaxTTL        time.Duration
	SweepInterval time.Duration
}

// GuestService issues and validates guest links.
type GuestService struct {
	store GuestStore
	cfg   GuestConfig
	now   func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewGuestService creates a GuestService over store.
func NewGuestService(store GuestStore, cfg GuestConfig) *GuestService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultGuestTTL
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = DefaultGuestMaxTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &GuestService{store: store, cfg: cfg, now: time.Now}
}

// Issue creates a guest link for target. A zero ttl uses the default; longer
// ttls are clamped to the maximum.
func (g *GuestService) Issue(ctx context.Context, target GuestTarget, ttl time.Duration, createdBy string) (*GuestLink, error) {
	if !target.Valid() {
		return nil, ErrInvalidTarget
	}
	if ttl <= 0 {
		ttl = g.cfg.DefaultTTL
	}
	ttl = min(ttl, g.cfg.MaxTTL)

	raw, err := Generate()
	if err != nil {
		return nil, err
	}

	now := g.now()
	link := &GuestLink{
		ID:        ulid.Make().String(),
		Token:     raw,
		Target:    target,
		CreatedBy: createdBy,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := g.store.InsertGuestLink(ctx, link); err != nil {
		return nil, fmt.Errorf("storing guest link: %w", err)
	}
	return link, nil
}

// Validate returns the link for raw. Missing and expired links both return
// ErrInvalidOrExpired.
func (g *GuestService) Validate(ctx context.Context, raw string) (*GuestLink, error) {
	if raw == "" {
		return nil, ErrInvalidOrExpired
	}
	link, err := g.store.GetGuestLinkByToken(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("looking up guest link: %w", err)
	}
	if link == nil || link.Expired(g.now()) {
		return nil, ErrInvalidOrExpired
	}
	return link, nil
}

// Revoke deletes the link identified by its token or ID.
func (g *GuestService) Revoke(ctx context.Context, tokenOrID string) error {
	ok, err := g.store.DeleteGuestLink(ctx, tokenOrID)
	if err != nil {
		return fmt.Errorf("revoking guest link: %w", err)
	}
	if !ok {
		return ErrInvalidOrExpired
	}
	return nil
}

// List returns the unexpired links.
func (g *GuestService) List(ctx context.Context) ([]*GuestLink, error) {
	links, err := g.store.ListGuestLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing guest links: %w", err)
	}
	now := g.now()
	out := links[:0]
	for _, l := range links {
		if !l.Expired(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

// Sweep removes expired links.
func (g *GuestService) Sweep(ctx context.Context) {
	n, err := g.store.DeleteExpiredGuestLinks(ctx, g.now())
	if err != nil {
		slog.Warn("sweeping guest links", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("swept expired guest links", "count", n)
	}
}

// Start runs Sweep every SweepInterval until Close is called.
func (g *GuestService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.done = make(chan struct{})

	go func() {
		defer close(g.done)

		ticker := time.NewTicker(g.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.Sweep(ctx)
			}
		}
	}()
}

// Close stops the sweeper. It is safe to call without Start.
func (g *GuestService) Close() error {
	if g.cancel != nil {
		g.cancel()
		<-g.done
	}
	return nil
}
