// Package event provides a typed fan-out emitter for observers of playback.
package event

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultBuffer is the per-listener channel capacity.
const DefaultBuffer = 64

// Emitter delivers values to every listener in emission order.
// A listener that falls a full buffer behind drops values rather than
// stalling the emitter.
type Emitter[T any] struct {
	// Name labels dropped-event log lines.
	Name string
	// Buffer overrides DefaultBuffer when positive.
	Buffer int

	mu        sync.Mutex
	listeners map[<-chan T]chan T
	closed    bool
}

// Listen registers a new listener.
func (e *Emitter[T]) Listen() <-chan T {
	e.mu.Lock()
	defer e.mu.Unlock()

	size := e.Buffer
	if size <= 0 {
		size = DefaultBuffer
	}
	ch := make(chan T, size)
	if e.closed {
		close(ch)
		return ch
	}
	if e.listeners == nil {
		e.listeners = make(map[<-chan T]chan T)
	}
	e.listeners[ch] = ch
	return ch
}

// Unlisten removes a listener and closes its channel.
func (e *Emitter[T]) Unlisten(ch <-chan T) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.listeners[ch]; ok {
		delete(e.listeners, ch)
		close(c)
	}
}

// Emit sends v to all listeners without blocking.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range e.listeners {
		select {
		case c <- v:
		default:
			log.Warn().Str("emitter", e.Name).Msg("Listener too slow, event dropped")
		}
	}
}

// Len returns the number of listeners.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Close closes every listener; later Listen calls get a closed channel.
func (e *Emitter[T]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, c := range e.listeners {
		delete(e.listeners, key)
		close(c)
	}
	e.closed = true
}
