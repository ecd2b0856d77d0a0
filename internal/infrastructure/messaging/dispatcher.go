package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher sits between the event bus and the application's event
// handlers. It adds what the bare bus does not give a handler: a
// middleware chain, retries with backoff, a per-handler timeout, and a
// dead letter queue for events no retry could save.
type Dispatcher struct {
	bus        shared.EventBus
	routes     map[shared.EventType][]route
	middleware []Middleware
	deadLetter *DeadLetterQueue
	logger     *slog.Logger
	slots      chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
}

// route is one registered handler with its delivery settings.
type route struct {
	name        string
	handler     shared.EventHandler
	async       bool
	maxAttempts int
	timeout     time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithWorkerPool bounds the number of concurrently running handlers.
func WithWorkerPool(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.slots = make(chan struct{}, size)
		}
	}
}

// WithDeadLetterQueue sets the dead letter queue capacity. Zero disables
// the queue.
func WithDeadLetterQueue(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.deadLetter = NewDeadLetterQueue(size)
		} else {
			d.deadLetter = nil
		}
	}
}

// NewDispatcher creates a dispatcher bound to the given bus.
func NewDispatcher(bus shared.EventBus, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		bus:        bus,
		routes:     make(map[shared.EventType][]route),
		deadLetter: NewDeadLetterQueue(1000),
		logger:     slog.Default(),
		slots:      make(chan struct{}, 10),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION AND MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultMaxAttempts    = 4
	defaultHandlerTimeout = 30 * time.Second
)

// Register adds an async handler for one event type.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.register(eventType, name, handler, true)
}

// RegisterSync adds a handler whose failures propagate to the publisher.
func (d *Dispatcher) RegisterSync(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.register(eventType, name, handler, false)
}

func (d *Dispatcher) register(eventType shared.EventType, name string, handler shared.EventHandler, async bool) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if name == "" {
		return errors.New("handler name cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.routes[eventType] = append(d.routes[eventType], route{
		name:        name,
		handler:     handler,
		async:       async,
		maxAttempts: defaultMaxAttempts,
		timeout:     defaultHandlerTimeout,
	})
	d.logger.Debug("registered handler",
		"event_type", eventType,
		"handler", name,
		"async", async,
	)

	return nil
}

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Use appends middleware to the chain. Middleware added first runs
// outermost.
func (d *Dispatcher) Use(mw Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middleware = append(d.middleware, mw)
}

// RecoveryMiddleware converts handler panics into errors.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic recovered",
						"event_type", event.EventType(),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs every handler execution with its duration.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)

			if err != nil {
				logger.Error("handler failed",
					"event_type", event.EventType(),
					"aggregate_id", event.AggregateID(),
					"duration", time.Since(start),
					"error", err,
				)
				return err
			}

			logger.Debug("handler completed",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"duration", time.Since(start),
			)
			return nil
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHING
// ══════════════════════════════════════════════════════════════════════════════

// Start subscribes the dispatcher to every event on the bus.
func (d *Dispatcher) Start() error {
	return d.bus.SubscribeAll(d.Dispatch)
}

// Dispatch routes one event through all handlers registered for its
// type. Async routes run in the background; errors from sync routes are
// collected and returned.
func (d *Dispatcher) Dispatch(event shared.Event) error {
	d.mu.RLock()
	routes := d.routes[event.EventType()]
	chain := d.middleware
	d.mu.RUnlock()

	var syncErrs []error
	for _, r := range routes {
		if r.async {
			go func(r route) {
				_ = d.deliver(event, r, chain)
			}(r)
			continue
		}
		if err := d.deliver(event, r, chain); err != nil {
			syncErrs = append(syncErrs, fmt.Errorf("%s: %w", r.name, err))
		}
	}

	return errors.Join(syncErrs...)
}

// deliver runs one route with middleware, retries and the timeout. When
// every attempt fails the event lands in the dead letter queue.
func (d *Dispatcher) deliver(event shared.Event, r route, chain []Middleware) error {
	select {
	case d.slots <- struct{}{}:
		defer func() { <-d.slots }()
	case <-d.ctx.Done():
		return d.ctx.Err()
	}

	handler := r.handler
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	err := retry.Do(d.ctx, func(ctx context.Context) error {
		return runWithTimeout(ctx, handler, event, r.timeout)
	},
		retry.WithMaxAttempts(r.maxAttempts),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			d.logger.Warn("handler attempt failed",
				"handler", r.name,
				"event_type", event.EventType(),
				"attempt", attempt,
				"next_in", delay,
				"error", err,
			)
		}),
	)
	if err == nil {
		return nil
	}

	if d.deadLetter != nil {
		d.deadLetter.Add(DeadLetterEntry{
			Event:       event,
			HandlerName: r.name,
			Error:       err,
			Attempts:    r.maxAttempts,
			FailedAt:    time.Now(),
		})
	}

	return fmt.Errorf("handler %s exhausted %d attempts: %w", r.name, r.maxAttempts, err)
}

func runWithTimeout(ctx context.Context, handler shared.EventHandler, event shared.Event, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- handler(event)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("handler timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels in-flight deliveries and pending retries.
func (d *Dispatcher) Stop() error {
	d.cancel()
	return nil
}

// DeadLetter exposes the queue of events that exhausted their retries.
func (d *Dispatcher) DeadLetter() *DeadLetterQueue {
	return d.deadLetter
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is one event that could not be processed.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue is a bounded FIFO of failed events. When full, the
// oldest entry is dropped to make room.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	cap     int
}

func NewDeadLetterQueue(capacity int) *DeadLetterQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &DeadLetterQueue{cap: capacity}
}

// Add appends an entry, evicting the oldest one at capacity.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.cap {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// Size returns the number of queued entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
