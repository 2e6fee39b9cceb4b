package events

import (
	"fmt"
	"sync"
)

// Filter is a function that determines if an event should be delivered.
type Filter func(Event) bool

// Subscription represents one subscriber's attachment to the bus.
type Subscription struct {
	id      string
	filter  Filter
	channel chan Event
	closed  bool
	mu      sync.Mutex
}

// Events returns the channel events are delivered on. The channel is closed
// when the subscription is cancelled.
func (s *Subscription) Events() <-chan Event {
	return s.channel
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.channel)
		s.closed = true
	}
}

func (s *Subscription) deliver(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.channel <- event:
		return true
	default:
		// Subscriber is not keeping up; drop rather than block the bus.
		return false
	}
}

// Metrics tracks bus delivery counts.
type Metrics struct {
	ActiveSubscriptions int
	EventsPublished     int64
	EventsDelivered     int64
	EventsDropped       int64
}

// Bus provides publish/subscribe delivery of registry events. Publish never
// blocks: slow subscribers drop events instead of stalling producers.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	metrics       Metrics
	subIDCounter  int64
	closed        bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[string]*Subscription),
	}
}

// Subscribe creates a subscription whose channel receives events matching
// filter. A nil filter matches everything. bufferSize bounds how far the
// subscriber may fall behind before events are dropped.
func (b *Bus) Subscribe(filter Filter, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		// Return an already-closed subscription so callers can range over
		// Events() without nil checks.
		sub := &Subscription{channel: make(chan Event)}
		sub.close()
		return sub
	}

	b.subIDCounter++
	sub := &Subscription{
		id:      fmt.Sprintf("sub-%d", b.subIDCounter),
		filter:  filter,
		channel: make(chan Event, bufferSize),
	}
	b.subscriptions[sub.id] = sub
	b.metrics.ActiveSubscriptions++
	return sub
}

// Unsubscribe cancels a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscriptions[sub.id]; exists {
		delete(b.subscriptions, sub.id)
		b.metrics.ActiveSubscriptions--
	}
	sub.close()
}

// Publish delivers an event to all matching subscriptions.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	var delivered, dropped int64
	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		if sub.deliver(event) {
			delivered++
		} else {
			dropped++
		}
	}

	b.mu.Lock()
	b.metrics.EventsPublished++
	b.metrics.EventsDelivered += delivered
	b.metrics.EventsDropped += dropped
	b.mu.Unlock()
}

// GetMetrics returns a copy of the bus metrics.
func (b *Bus) GetMetrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

// Close shuts down the bus and cancels all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subscriptions {
		sub.close()
	}
	b.subscriptions = make(map[string]*Subscription)
	b.metrics.ActiveSubscriptions = 0
}
