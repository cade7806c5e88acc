package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("broadcaster closed")

// Kind identifies what happened in the sending peer.
type Kind string

const (
	KindLogout         Kind = "logout"
	KindSessionExpired Kind = "session-expired"
	KindDataUpdated    Kind = "data-updated"
)

// Message is the wire form shared by all broadcasters.
type Message struct {
	Kind Kind `json:"kind"`
	// Origin is stamped by the sending broadcaster.
	Origin string `json:"origin"`
	Reason string `json:"reason,omitempty"`
	Topic  string `json:"topic,omitempty"`
	// At is the send time in unix milliseconds.
	At int64 `json:"at"`
}

// Handler receives messages from other peers.
type Handler func(Message)

// Broadcaster publishes to and receives from sibling peers.
type Broadcaster interface {
	// ID returns the origin stamped on published messages.
	ID() string
	Publish(ctx context.Context, msg Message) error
	// Subscribe registers fn and returns an idempotent unsubscribe.
	Subscribe(fn Handler) (func(), error)
	Close() error
}

// handlers is the subscriber list shared by the implementations.
type handlers struct {
	mu     sync.RWMutex
	nextID int64
	subs   []subscription
	logger *slog.Logger
}

type subscription struct {
	id int64
	fn Handler
}

func (h *handlers) add(fn Handler) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs = append(h.subs, subscription{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (h *handlers) dispatch(msg Message) {
	h.mu.RLock()
	snapshot := append([]subscription(nil), h.subs...)
	h.mu.RUnlock()

	for _, s := range snapshot {
		h.call(s.fn, msg)
	}
}

func (h *handlers) call(fn Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("broadcast_handler_panic", "kind", msg.Kind, "panic", r)
		}
	}()
	fn(msg)
}
