package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Hub links in-process peers. Each peer is an [Endpoint] returned by Join.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	logger    *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		endpoints: make(map[string]*Endpoint),
		logger:    logger,
	}
}

// Join attaches a new peer. Messages are delivered on a per-endpoint
// goroutine in publish order; buffer bounds how many may queue before new
// ones are dropped.
func (h *Hub) Join(buffer int) *Endpoint {
	if buffer <= 0 {
		buffer = 64
	}
	e := &Endpoint{
		id:       uuid.NewString(),
		hub:      h,
		inbox:    make(chan Message, buffer),
		done:     make(chan struct{}),
		handlers: handlers{logger: h.logger},
	}
	h.mu.Lock()
	h.endpoints[e.id] = e
	h.mu.Unlock()

	e.wg.Add(1)
	go e.run()
	return e
}

// Peers returns the number of joined endpoints.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.endpoints)
}

func (h *Hub) deliver(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, e := range h.endpoints {
		if id == msg.Origin {
			continue
		}
		select {
		case e.inbox <- msg:
		default:
			h.logger.Warn("broadcast_dropped", "peer", id, "kind", msg.Kind)
		}
	}
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	delete(h.endpoints, id)
	h.mu.Unlock()
}

// Endpoint is one peer of a [Hub].
type Endpoint struct {
	id       string
	hub      *Hub
	inbox    chan Message
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	handlers handlers
}

var _ Broadcaster = (*Endpoint)(nil)

func (e *Endpoint) ID() string { return e.id }

func (e *Endpoint) Publish(ctx context.Context, msg Message) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg.Origin = e.id
	e.hub.deliver(msg)
	return nil
}

func (e *Endpoint) Subscribe(fn Handler) (func(), error) {
	select {
	case <-e.done:
		return nil, ErrClosed
	default:
	}
	return e.handlers.add(fn), nil
}

// Close leaves the hub and waits for the delivery goroutine.
func (e *Endpoint) Close() error {
	e.once.Do(func() {
		e.hub.leave(e.id)
		close(e.done)
	})
	e.wg.Wait()
	return nil
}

func (e *Endpoint) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case msg := <-e.inbox:
			e.handlers.dispatch(msg)
		}
	}
}
