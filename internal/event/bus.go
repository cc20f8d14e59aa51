package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the queue length used when NewBus gets 0.
	DefaultBufferSize = 256

	// drainTimeout bounds delivery of queued events after shutdown starts.
	drainTimeout = 5 * time.Second
)

type envelope struct {
	kind   Kind
	change StateChange
}

// Bus is an asynchronous, in-process event bus with a single dispatch worker.
type Bus struct {
	queue    chan envelope
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	handlers []namedHandler
	closed   bool

	emitted      atomic.Uint64
	delivered    atomic.Uint64
	handlerFails atomic.Uint64

	logger Logger
}

type namedHandler struct {
	name string
	h    Handler
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Emitted       uint64 `json:"emitted"`
	Delivered     uint64 `json:"delivered"`
	HandlerErrors uint64 `json:"handler_errors"`
	Queued        int    `json:"queued"`
}

// NewBus creates a bus with the given queue length.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		queue:  make(chan envelope, bufferSize),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	b.logger = logger
}

// Subscribe registers a handler. Handlers run in subscription order.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, namedHandler{name: name, h: h})
}

// Emit queues an event and returns without waiting for handlers.
//
// It blocks only while the queue is full, until ctx is done or the bus stops.
// A missing ID or timestamp on change is filled in.
func (b *Bus) Emit(ctx context.Context, kind Kind, change StateChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}

	// The read lock is held across the send so stop cannot mark the bus
	// closed, and drain cannot finish, while an accepted event is in flight.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.queue <- envelope{kind: kind, change: change}:
		b.emitted.Add(1)
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches queued events until ctx is cancelled, then delivers what is
// still queued (bounded by drainTimeout) and stops the bus.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case env := <-b.queue:
			b.dispatch(ctx, env)
		case <-ctx.Done():
			b.stop()
			b.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

// stop wakes emitters blocked on a full queue before taking the write lock,
// so every Emit that got the queue slot finishes before drain starts.
func (b *Bus) stop() {
	b.stopOnce.Do(func() { close(b.done) })
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *Bus) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	for {
		select {
		case env := <-b.queue:
			b.dispatch(ctx, env)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, env envelope) {
	b.mu.RLock()
	handlers := make([]namedHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, nh := range handlers {
		if err := safeHandle(ctx, nh.h, env); err != nil {
			b.handlerFails.Add(1)
			b.logger.Error("event handler failed",
				"handler", nh.name,
				"kind", string(env.kind),
				"feature", env.change.FeatureExternalID,
				"error", err,
			)
		}
	}
	b.delivered.Add(1)
}

func safeHandle(ctx context.Context, h Handler, env envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.Handle(ctx, env.kind, env.change)
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Emitted:       b.emitted.Load(),
		Delivered:     b.delivered.Load(),
		HandlerErrors: b.handlerFails.Load(),
		Queued:        len(b.queue),
	}
}
