package event

import (
	"reflect"
	"sync"
)

// queued is one emitted event tagged with the type it was emitted as.
type queued struct {
	t  reflect.Type
	ev any
}

// Bus is a double-buffered event bus. Events emitted in tick N are readable
// in tick N+1. SwapBuffers() is called at tick start by the dispatch system.
// Emit may be called from any goroutine; handlers run on the dispatching one.
// Events are delivered in emission order regardless of their type.
type Bus struct {
	mu       sync.Mutex
	front    []queued
	back     []queued
	handlers map[reflect.Type][]any
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]any)}
}

// Emit queues an event into the back buffer (will be readable next tick).
func Emit[T any](b *Bus, event T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	b.back = append(b.back, queued{t: t, ev: event})
	b.mu.Unlock()
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// SwapBuffers moves the back buffer to the front. Events still undelivered
// in the front buffer stay ahead of the new ones.
func (b *Bus) SwapBuffers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.front) == 0 {
		b.front, b.back = b.back, b.front[:0]
		return
	}
	b.front = append(b.front, b.back...)
	clear(b.back)
	b.back = b.back[:0]
}

// Pending reports how many events wait in the back buffer.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.back)
}

// DispatchAll delivers all front-buffer events to their subscribed handlers
// in the order they were emitted.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	events := b.front
	b.front = nil
	handlers := make([][]any, len(events))
	for i, q := range events {
		handlers[i] = b.handlers[q.t]
	}
	b.mu.Unlock()

	for i, q := range events {
		for _, h := range handlers[i] {
			// Subscribe and Emit key on the same type, so the call is safe.
			callHandler(h, q.ev)
		}
	}
}

func callHandler(handler any, event any) {
	reflect.ValueOf(handler).Call([]reflect.Value{reflect.ValueOf(event)})
}
