// Package events provides in-process pub/sub for store-change
// notifications consumed by the CLI layer.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies what changed in the thread store.
type Type string

// Store-change event types.
const (
	// TypeThreadsReplaced fires after a full REST reload lands.
	TypeThreadsReplaced Type = "threads.replaced"

	// TypeThreadUpdated fires after a single thread absorbs a share.
	TypeThreadUpdated Type = "thread.updated"

	// TypeChannelState fires when the push channel changes state.
	TypeChannelState Type = "channel.state"
)

// Event is one store-change notification.
type Event struct {
	Type      Type
	PartnerID int64  // set for TypeThreadUpdated
	ShareID   string // set for TypeThreadUpdated
	State     string // set for TypeChannelState
	At        time.Time
}

// Handler is invoked for every event matching a subscription.
type Handler func(Event)

// Filter defines criteria for matching events.
type Filter struct {
	// Types filters by event type (nil = all types).
	Types []Type

	// PartnerID filters thread updates to one conversation (0 = all).
	PartnerID int64
}

// Matches returns true if the event matches the filter criteria.
func (f *Filter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		matched := false
		for _, t := range f.Types {
			if event.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.PartnerID != 0 && event.Type == TypeThreadUpdated && event.PartnerID != f.PartnerID {
		return false
	}

	return true
}

type subscription struct {
	id      string
	filter  Filter
	handler Handler
}

// Publisher fans events out to matching subscribers.
type Publisher struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{subscriptions: make(map[string]*subscription)}
}

// Publish sends an event to all matching subscribers. Handlers run
// outside the lock to avoid deadlocks with subscribing callbacks.
func (p *Publisher) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	p.mu.RLock()
	var handlers []Handler
	for _, sub := range p.subscriptions {
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	p.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// Subscribe registers a handler and returns its subscription id.
func (p *Publisher) Subscribe(filter Filter, handler Handler) string {
	if handler == nil {
		return ""
	}

	id := uuid.New().String()
	p.mu.Lock()
	p.subscriptions[id] = &subscription{id: id, filter: filter, handler: handler}
	p.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription by id.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	delete(p.subscriptions, id)
	p.mu.Unlock()
}

// SubscriberCount returns the number of active subscribers.
func (p *Publisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions)
}

// Close removes all subscriptions.
func (p *Publisher) Close() {
	p.mu.Lock()
	p.subscriptions = make(map[string]*subscription)
	p.mu.Unlock()
}
