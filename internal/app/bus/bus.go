// Package bus provides the subscription bus that fans playback-state changes
// out to independently rendered surfaces.
package bus

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// Listener is notified after every playback-state mutation.
// Notify carries no payload; listeners read the current state themselves.
// Implementations must be comparable (use pointer receivers).
type Listener interface {
	Notify()
}

// ListenerFunc adapts a function to the Listener interface.
// Always use it through a pointer so that identity is stable.
type ListenerFunc struct {
	fn func()
}

// NewListenerFunc wraps fn as a Listener.
func NewListenerFunc(fn func()) *ListenerFunc {
	return &ListenerFunc{fn: fn}
}

// Notify calls the wrapped function.
func (l *ListenerFunc) Notify() {
	l.fn()
}

// Bus is a deduplicated listener registry with synchronous notification.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Listener]struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		listeners: make(map[Listener]struct{}),
	}
}

// Subscribe registers l. Registering the same listener twice has no additional effect.
func (b *Bus) Subscribe(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[l] = struct{}{}
}

// Unsubscribe removes l from the registry.
func (b *Bus) Unsubscribe(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, l)
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// NotifyAll invokes every registered listener in the calling goroutine.
// A panicking listener is logged and does not stop the others.
func (b *Bus) NotifyAll() {
	b.mu.RLock()
	// Copy so listeners may (un)subscribe while being notified
	listeners := make([]Listener, 0, len(b.listeners))
	for l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		notify(l)
	}
}

func notify(l Listener) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("bus: listener panicked: listener=%T panic=%v", l, r)
		}
	}()
	l.Notify()
}
