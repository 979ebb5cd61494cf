package ingest

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Dedup defaults.
const (
	DefaultDedupWindow   = 5 * time.Second
	DefaultDedupWait     = 100 * time.Millisecond
	DefaultDedupCapacity = 10000
)

// DedupKey identifies session creates that are considered the same request.
type DedupKey struct {
	Agent   string
	Project string
	Command string
	User    string
	Branch  string
}

type dedupEntry struct {
	key        DedupKey
	elem       *list.Element
	done       chan struct{}
	id         string
	resolved   bool
	resolvedAt time.Time
}

// DedupConfig configures a Deduper.
type DedupConfig struct {
	Window   time.Duration
	Wait     time.Duration
	Capacity int
}

// Deduper collapses repeated session creates arriving within a short window.
// It is bounded; the oldest entries are evicted first.
type Deduper struct {
	mu       sync.Mutex
	entries  map[DedupKey]*dedupEntry
	order    *list.List
	window   time.Duration
	wait     time.Duration
	capacity int
	now      func() time.Time
}

// NewDeduper creates a Deduper.
func NewDeduper(cfg DedupConfig) *Deduper {
	if cfg.Window <= 0 {
		cfg.Window = DefaultDedupWindow
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultDedupWait
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultDedupCapacity
	}
	return &Deduper{
		entries:  make(map[DedupKey]*dedupEntry),
		order:    list.New(),
		window:   cfg.Window,
		wait:     cfg.Wait,
		capacity: cfg.Capacity,
		now:      time.Now,
	}
}

// Ticket is held by the caller that must perform the create. Exactly one of
// Resolve or Release must be called.
type Ticket struct {
	d *Deduper
	e *dedupEntry
}

// Begin checks key against the index. If a recent create for key finished,
// it returns that session ID and a nil ticket. Otherwise it returns a ticket
// and the caller performs the create. A create still in flight is waited on
// briefly; if it does not finish in time the caller proceeds with its own.
func (d *Deduper) Begin(ctx context.Context, key DedupKey) (existingID string, t *Ticket) {
	waited := false
	for {
		d.mu.Lock()
		e, ok := d.entries[key]
		if ok && e.resolved && d.now().Sub(e.resolvedAt) < d.window {
			id := e.id
			d.mu.Unlock()
			return id, nil
		}
		if ok && !e.resolved && !waited {
			done := e.done
			d.mu.Unlock()
			waited = true
			timer := time.NewTimer(d.wait)
			select {
			case <-done:
			case <-timer.C:
			case <-ctx.Done():
			}
			timer.Stop()
			continue
		}

		ne := &dedupEntry{key: key, done: make(chan struct{})}
		if ok {
			d.order.Remove(e.elem)
		}
		ne.elem = d.order.PushBack(ne)
		d.entries[key] = ne
		for d.order.Len() > d.capacity {
			oldest, _ := d.order.Remove(d.order.Front()).(*dedupEntry)
			delete(d.entries, oldest.key)
		}
		d.mu.Unlock()
		return "", &Ticket{d: d, e: ne}
	}
}

// Resolve records the created session ID and wakes waiters.
func (t *Ticket) Resolve(id string) {
	t.d.mu.Lock()
	t.e.id = id
	t.e.resolved = true
	t.e.resolvedAt = t.d.now()
	t.d.mu.Unlock()
	close(t.e.done)
}

// Release abandons the ticket after a failed create so later attempts are
// not answered from a poisoned entry.
func (t *Ticket) Release() {
	t.d.mu.Lock()
	if cur, ok := t.d.entries[t.e.key]; ok && cur == t.e {
		t.d.order.Remove(t.e.elem)
		delete(t.d.entries, t.e.key)
	}
	t.d.mu.Unlock()
	close(t.e.done)
}

// Len returns the number of indexed entries.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
