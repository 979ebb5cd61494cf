package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// hook is one named component in the lifecycle. Either func may be nil.
type hook struct {
	name  string
	start func(context.Context) error
	stop  func(context.Context) error
}

// Lifecycle starts components in registration order and stops them in
// reverse.
type Lifecycle struct {
	mu      sync.Mutex
	hooks   []hook
	started bool
}

// NewLifecycle creates an empty lifecycle.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// Add registers a component.
func (l *Lifecycle) Add(name string, start, stop func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook{name: name, start: start, stop: stop})
}

// AddCloser registers c to be closed on shutdown.
func (l *Lifecycle) AddCloser(name string, c io.Closer) {
	l.Add(name, nil, func(context.Context) error { return c.Close() })
}

// Start runs every start hook. If one fails, the components already started
// are stopped in reverse order.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return errors.New("lifecycle already started")
	}

	for i, h := range l.hooks {
		if h.start == nil {
			continue
		}
		slog.Debug("starting component", "component", h.name)
		if err := h.start(ctx); err != nil {
			l.rollback(ctx, i)
			return fmt.Errorf("starting %s: %w", h.name, err)
		}
	}

	l.started = true
	return nil
}

// rollback stops the components before failedAt, newest first.
func (l *Lifecycle) rollback(ctx context.Context, failedAt int) {
	for j := failedAt - 1; j >= 0; j-- {
		h := l.hooks[j]
		if h.stop == nil {
			continue
		}
		if err := h.stop(ctx); err != nil {
			slog.Warn("lifecycle rollback: stop failed", "component", h.name, "error", err)
		}
	}
}

// Stop runs every stop hook in reverse order and joins their errors.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}

	var errs []error
	for i := len(l.hooks) - 1; i >= 0; i-- {
		h := l.hooks[i]
		if h.stop == nil {
			continue
		}
		slog.Debug("stopping component", "component", h.name)
		if err := h.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", h.name, err))
		}
	}
	l.started = false
	return errors.Join(errs...)
}

// IsStarted reports whether Start succeeded and Stop has not run.
func (l *Lifecycle) IsStarted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}
