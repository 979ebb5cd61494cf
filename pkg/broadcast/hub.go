// Package broadcast fans pipeline events out to live viewers. Subscribers
// register under a session topic or the global topic; publishing never
// blocks on a slow subscriber.
package broadcast

import (
	"sync"
	"time"

	"github.com/txn2/pipeline-relay/pkg/pipeline"
)

// GlobalTopic receives every event regardless of session.
const GlobalTopic = ""

// DefaultBuffer is the per-subscriber event buffer.
const DefaultBuffer = 64

// Event types.
const (
	EventInit           = "init"
	EventSessionCreated = "session_created"
	EventSessionUpdated = "session_updated"
	EventSessionDeleted = "session_deleted"
	EventStep           = "step"
)

// Event is one message delivered to subscribers.
type Event struct {
	Type      string              `json:"type"`
	SessionID string              `json:"sessionId,omitempty"`
	Seq       int64               `json:"seq,omitempty"`
	Session   *pipeline.Session   `json:"session,omitempty"`
	Sessions  []*pipeline.Session `json:"sessions,omitempty"`
	Step      *pipeline.Step      `json:"step,omitempty"`
	At        time.Time           `json:"at"`
}

// Observer receives hub activity counts. Metrics implement it.
type Observer interface {
	SubscriberAdded()
	SubscriberRemoved()
	EventPublished()
	SubscriberDropped()
}

type nopObserver struct{}

func (nopObserver) SubscriberAdded()   {}
func (nopObserver) SubscriberRemoved() {}
func (nopObserver) EventPublished()    {}
func (nopObserver) SubscriberDropped() {}

// Config configures a Hub.
type Config struct {
	Buffer   int
	Observer Observer
}

// Hub routes events to subscribers by topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	obs    Observer
	closed bool
}

// NewHub creates a Hub.
func NewHub(cfg Config) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: cfg.Buffer,
		obs:    cfg.Observer,
	}
}

// Subscription is a registered receiver. Events arrive on C, which is closed
// when the subscription is removed for any reason.
type Subscription struct {
	C <-chan Event

	ch    chan Event
	topic string
	hub   *Hub
	once  sync.Once
}

// Topic returns the topic the subscription listens on.
func (s *Subscription) Topic() string {
	return s.topic
}

// Close deregisters the subscription and closes its channel. It is safe to
// call more than once and concurrently with Publish.
func (s *Subscription) Close() {
	s.hub.remove(s, false)
}

// Subscribe registers a new subscriber on topic. After the hub is closed it
// returns an already closed subscription.
func (h *Hub) Subscribe(topic string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, topic: topic, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.obs.SubscriberAdded()
	return sub
}

// Publish delivers ev to the subscribers of its session and the global
// topic. A subscriber whose buffer is full is dropped.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.topics[ev.SessionID])+len(h.topics[GlobalTopic]))
	for sub := range h.topics[ev.SessionID] {
		targets = append(targets, sub)
	}
	if ev.SessionID != GlobalTopic {
		for sub := range h.topics[GlobalTopic] {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	h.obs.EventPublished()

	var slow []*Subscription
	for _, sub := range targets {
		if !sub.trySend(ev) {
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		h.remove(sub, true)
	}
}

// trySend performs a non-blocking send. It reports false when the buffer is
// full; a subscription already closed counts as delivered.
func (s *Subscription) trySend(ev Event) (ok bool) {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	if _, live := s.hub.topics[s.topic][s]; !live {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (h *Hub) remove(sub *Subscription, dropped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[sub.topic]
	if _, ok := subs[sub]; !ok {
		sub.once.Do(func() { close(sub.ch) })
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
	sub.once.Do(func() { close(sub.ch) })
	h.obs.SubscriberRemoved()
	if dropped {
		h.obs.SubscriberDropped()
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topics returns the number of topics with at least one subscriber.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

// Close removes every subscription. Later Subscribe calls return closed
// subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.topics {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
			h.obs.SubscriberRemoved()
		}
		delete(h.topics, topic)
	}
}
