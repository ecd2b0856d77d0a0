// Package messaging carries domain events between the application layers.
// Two bus implementations are provided: an in-memory bus for a single
// process and a Redis Pub/Sub bridge for multi-instance deployments.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ErrEventBusClosed is returned when publishing or subscribing on a bus
// that has already been shut down.
var ErrEventBusClosed = errors.New("event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus fans events out to subscribed handlers inside a single
// process. Handlers run on a bounded worker pool when async mode is on.
type InMemoryEventBus struct {
	mu      sync.RWMutex
	subs    map[shared.EventType][]shared.EventHandler
	global  []shared.EventHandler
	async   bool
	slots   chan struct{}
	logger  *slog.Logger
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// InMemoryEventBusConfig configures an InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on the worker pool instead of inline.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent handler executions in async mode.
	WorkerPoolSize int

	Logger *slog.Logger
}

// DefaultInMemoryEventBusConfig returns the configuration used by the
// API process: async delivery with a small worker pool.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
	}
}

// NewInMemoryEventBus creates an in-memory event bus.
func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}

	return &InMemoryEventBus{
		subs:    make(map[shared.EventType][]shared.EventHandler),
		async:   cfg.AsyncMode,
		slots:   make(chan struct{}, cfg.WorkerPoolSize),
		logger:  cfg.Logger,
		closeCh: make(chan struct{}),
	}
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.subs[eventType] = append(b.subs[eventType], handler)
	return nil
}

// SubscribeAll registers a handler that receives every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.global = append(b.global, handler)
	return nil
}

// Publish delivers an event to type-specific and global subscribers.
// In async mode delivery errors are logged, not returned.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	targets := make([]shared.EventHandler, 0, len(b.subs[event.EventType()])+len(b.global))
	targets = append(targets, b.subs[event.EventType()]...)
	targets = append(targets, b.global...)
	b.mu.RUnlock()

	if len(targets) == 0 {
		b.logger.Debug("no handlers for event", "event_type", event.EventType())
		return nil
	}

	for _, h := range targets {
		if b.async {
			b.deliverAsync(event, h)
			continue
		}
		if err := h(event); err != nil {
			b.logger.Error("handler error",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"error", err,
			)
		}
	}

	return nil
}

func (b *InMemoryEventBus) deliverAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		select {
		case b.slots <- struct{}{}:
			defer func() { <-b.slots }()
		case <-b.closeCh:
			return
		}

		start := time.Now()
		if err := handler(event); err != nil {
			b.logger.Error("async handler error",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"duration", time.Since(start),
				"error", err,
			)
		}
	}()
}

// Close stops accepting events and waits for in-flight handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBus mirrors events across instances through Redis Pub/Sub.
// Local subscribers are served by an embedded InMemoryEventBus; remote
// instances see the serialized envelope and replay it on their own bus.
type RedisEventBus struct {
	client     RedisClient
	local      *InMemoryEventBus
	channel    string
	instanceID string
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
}

// RedisClient is the subset of Redis operations the bus needs. Kept as an
// interface so tests can run without a Redis server.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage is a single Pub/Sub message.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig configures a RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName is the Pub/Sub channel shared by all instances.
	ChannelName string

	// InstanceID filters out this instance's own messages. Generated
	// when empty.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig

	Logger *slog.Logger
}

// NewRedisEventBus creates the bus and starts its subscription loop.
func NewRedisEventBus(cfg RedisEventBusConfig) (*RedisEventBus, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.ChannelName == "" {
		cfg.ChannelName = "dojang-hub:events"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = "instance-" + uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	bus := &RedisEventBus{
		client:     cfg.Client,
		local:      NewInMemoryEventBus(cfg.LocalBusConfig),
		channel:    cfg.ChannelName,
		instanceID: cfg.InstanceID,
		logger:     cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	messages, err := bus.client.Subscribe(ctx, bus.channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", bus.channel, err)
	}

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.receiveLoop(messages)
	}()

	return bus, nil
}

// Subscribe registers a handler for one event type on the local bus.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events on the local bus.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish broadcasts the event to Redis and delivers it locally. A Redis
// failure degrades to local-only delivery rather than dropping the event.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	b.mu.RUnlock()

	data, err := json.Marshal(wireEvent{
		InstanceID:  b.instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(b.ctx, b.channel, string(data)); err != nil {
		b.logger.Error("redis publish failed, delivering locally only",
			"event_type", event.EventType(),
			"error", err,
		)
	}

	return b.local.Publish(event)
}

func (b *RedisEventBus) receiveLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.logger.Error("redis subscription error", "error", msg.Err)
				continue
			}
			b.replay(msg.Payload)
		}
	}
}

// replay reconstructs a remote event and runs it through local handlers.
// Messages published by this instance are skipped: they were already
// delivered locally at publish time.
func (b *RedisEventBus) replay(payload string) {
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		b.logger.Error("malformed event envelope", "error", err)
		return
	}

	if w.InstanceID == b.instanceID {
		return
	}

	if err := b.local.Publish(remoteEvent{w}); err != nil {
		b.logger.Error("failed to replay remote event",
			"event_type", w.EventType,
			"error", err,
		)
	}
}

// Close stops the subscription loop and drains local handlers.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	return b.local.Close()
}

// wireEvent is the serialized form of an event on the Redis channel.
type wireEvent struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// remoteEvent adapts a wireEvent back into the shared.Event interface.
type remoteEvent struct {
	w wireEvent
}

func (e remoteEvent) EventType() shared.EventType     { return e.w.EventType }
func (e remoteEvent) AggregateID() string             { return e.w.AggregateID }
func (e remoteEvent) OccurredAt() time.Time           { return e.w.OccurredAt }
func (e remoteEvent) Payload() map[string]interface{} { return e.w.Payload }
