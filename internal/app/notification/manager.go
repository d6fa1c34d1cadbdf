// Package notification provides the typed publish/subscribe channel used to
// broadcast enrichment results to any surface showing a product.
package notification

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Handler receives published events. seq is the broadcast sequence number.
type Handler func(seq uint64, e Event)

// subscription represents a subscriber's subscription.
type subscription struct {
	id      string
	kinds   map[Kind]bool // nil means all kinds
	handler Handler
}

func (s *subscription) wants(k Kind) bool {
	return s.kinds == nil || s.kinds[k]
}

// Manager manages subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	order         []string // subscription IDs in registration order
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe registers handler for the given kinds (all kinds if none given)
// and returns the subscription ID.
func (m *Manager) Subscribe(handler Handler, kinds ...Kind) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var filter map[Kind]bool
	if len(kinds) > 0 {
		filter = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			filter[k] = true
		}
	}

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:      id,
		kinds:   filter,
		handler: handler,
	}
	m.order = append(m.order, id)
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscriptions[subscriptionID]; !ok {
		return
	}
	delete(m.subscriptions, subscriptionID)
	for i, id := range m.order {
		if id == subscriptionID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Broadcast delivers e to every interested subscriber synchronously, in
// registration order. A panicking handler is logged and skipped.
// Returns the sequence number assigned to the event.
func (m *Manager) Broadcast(e Event) uint64 {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	seq := m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during delivery
	subs := make([]*subscription, 0, len(m.order))
	for _, id := range m.order {
		if sub := m.subscriptions[id]; sub.wants(e.Kind()) {
			subs = append(subs, sub)
		}
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		deliver(sub, seq, e)
	}
	return seq
}

func deliver(sub *subscription, seq uint64, e Event) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("notification: handler panicked: subscription_id=%s kind=%s panic=%v", sub.id, e.Kind(), r)
		}
	}()
	sub.handler(seq, e)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
	m.order = nil
}
