package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Key names an event and fixes its payload type.
type Key[T any] struct {
	name string
}

// NewKey declares an event key. Two keys with the same name address the same
// handler list, so names must be unique per payload type.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the wire name of the event.
func (k Key[T]) Name() string {
	return k.name
}

type subscription struct {
	id uint64
	fn func(any)
}

// Bus is a process-local handler registry. The zero value is not usable;
// construct with [NewBus].
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]subscription
	logger   *slog.Logger
}

// NewBus returns an empty bus. A nil logger falls back to slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// On registers fn for key and returns an idempotent unsubscribe function.
func On[T any](b *Bus, key Key[T], fn func(T)) func() {
	if b == nil || fn == nil {
		return func() {}
	}
	id := b.add(key.name, func(payload any) {
		fn(payload.(T))
	})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(key.name, id) })
	}
}

// Emit delivers payload to every handler currently registered for key.
func Emit[T any](b *Bus, key Key[T], payload T) {
	if b == nil {
		return
	}
	for _, sub := range b.snapshot(key.name) {
		b.dispatch(key.name, sub, payload)
	}
}

// Len returns the number of handlers registered under name.
func (b *Bus) Len(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Reset drops every registration. Existing unsubscribe functions become
// no-ops.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string][]subscription)
}

func (b *Bus) add(name string, fn func(any)) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[name] = append(b.handlers[name], subscription{id: b.nextID, fn: fn})
	return b.nextID
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[name]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, name)
		} else {
			b.handlers[name] = next
		}
		return
	}
}

func (b *Bus) snapshot(name string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.handlers[name]
	if len(subs) == 0 {
		return nil
	}
	out := make([]subscription, len(subs))
	copy(out, subs)
	return out
}

func (b *Bus) dispatch(name string, sub subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event_handler_panic",
				slog.String("event", name),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	sub.fn(payload)
}
