package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// Login attempt limits.
const (
	DefaultLoginAttempts = 5
	DefaultLoginWindow   = 15 * time.Minute
	maxLimiterEntries    = 10000
)

// ErrLoginDisabled is returned when no password hash is configured.
var ErrLoginDisabled = errors.New("password login is disabled")

// CheckPassword reports whether password matches the bcrypt hash. An empty
// hash disables password login.
func CheckPassword(hash, password string) (bool, error) {
	if hash == "" {
		return false, ErrLoginDisabled
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking password: %w", err)
	}
	return true, nil
}

// HashPassword returns a bcrypt hash suitable for auth.login.password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(b), nil
}

// LimiterConfig configures a LoginLimiter.
type LimiterConfig struct {
	Attempts int
	Window   time.Duration
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// LoginLimiter is a per-client token bucket: Attempts tokens refilled evenly
// over Window.
type LoginLimiter struct {
	mu      sync.Mutex
	clients map[string]*limiterEntry
	every   rate.Limit
	burst   int
	window  time.Duration
	now     func() time.Time
}

// NewLoginLimiter creates a LoginLimiter.
func NewLoginLimiter(cfg LimiterConfig) *LoginLimiter {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultLoginAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultLoginWindow
	}
	return &LoginLimiter{
		clients: make(map[string]*limiterEntry),
		every:   rate.Every(cfg.Window / time.Duration(cfg.Attempts)),
		burst:   cfg.Attempts,
		window:  cfg.Window,
		now:     time.Now,
	}
}

// Allow takes one attempt for client. When the client is over its limit it
// returns false and how long to wait before retrying.
func (l *LoginLimiter) Allow(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxLimiterEntries {
			l.pruneLocked(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(l.every, l.burst)}
		l.clients[client] = e
	}
	e.lastSeen = now

	res := e.lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len returns the number of tracked clients.
func (l *LoginLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Prune forgets clients idle for longer than the window; their buckets are
// full again by then.
func (l *LoginLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
}

func (l *LoginLimiter) pruneLocked(now time.Time) {
	for k, e := range l.clients {
		if now.Sub(e.lastSeen) > l.window {
			delete(l.clients, k)
		}
	}
}
