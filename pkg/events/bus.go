package events

import (
	"log/slog"
	"sync"
	"time"
)

// Handler receives delivered envelopes.
type Handler func(Envelope)

type subscription struct {
	id       int
	selector string
	handler  Handler
}

// Bus delivers envelopes to subscribers. Synchronous emission runs handlers
// inline; a panicking handler is logged and skipped, never propagated to the
// publisher. Asynchronous emission goes through a buffered queue.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int

	sessionID     string
	correlationID string

	queue   chan Envelope
	done    chan struct{}
	stopped chan struct{}
	logger  *slog.Logger
	closed  bool
}

// NewBus creates a bus with an async delivery queue of the given size.
func NewBus(queueSize int, logger *slog.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		queue:   make(chan Envelope, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}
	go b.pump()
	return b
}

// SetSession stamps subsequent envelopes with session and correlation ids.
func (b *Bus) SetSession(sessionID, correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionID = sessionID
	b.correlationID = correlationID
}

// Subscribe registers a handler for a type selector ("*" matches all).
// The returned function removes the subscription.
func (b *Bus) Subscribe(selector string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, selector: selector, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers the event synchronously to all matching subscribers.
func (b *Bus) Emit(t Type, payload any) {
	b.deliver(b.envelope(t, payload))
}

// EmitAsync queues the event for background delivery. Events are dropped
// with a log line when the queue is full.
func (b *Bus) EmitAsync(t Type, payload any) {
	env := b.envelope(t, payload)
	select {
	case b.queue <- env:
	default:
		b.logger.Warn("event queue full, dropping event", "type", string(t))
	}
}

func (b *Bus) envelope(t Type, payload any) Envelope {
	b.mu.RLock()
	sid, cid := b.sessionID, b.correlationID
	b.mu.RUnlock()
	return Envelope{
		Type:          t,
		Timestamp:     time.Now().UTC(),
		SessionID:     sid,
		CorrelationID: cid,
		Payload:       payload,
	}
}

func (b *Bus) deliver(env Envelope) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.selector != "*" && s.selector != string(env.Type) {
			continue
		}
		b.safeCall(s, env)
	}
}

func (b *Bus) safeCall(s subscription, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked, skipping",
				"selector", s.selector, "type", string(env.Type), "panic", r)
		}
	}()
	s.handler(env)
}

func (b *Bus) pump() {
	defer close(b.stopped)
	for {
		select {
		case env := <-b.queue:
			b.deliver(env)
		case <-b.done:
			// Drain whatever is queued before exiting.
			for {
				select {
				case env := <-b.queue:
					b.deliver(env)
				default:
					return
				}
			}
		}
	}
}

// Close drains the async queue and stops delivery.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)
	<-b.stopped
}
