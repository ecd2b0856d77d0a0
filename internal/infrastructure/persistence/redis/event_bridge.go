package redis

import (
	"context"

	"github.com/dojang-hub/dojang-exam-hub/internal/infrastructure/messaging"
)

// EventBusClient adapts Cache to messaging.RedisClient so that the Redis
// event bus can ride on the shared connection pool. The payload is passed
// through verbatim: the bus does its own envelope serialization.
type EventBusClient struct {
	cache *Cache
}

// NewEventBusClient creates an adapter over an existing cache connection.
func NewEventBusClient(cache *Cache) *EventBusClient {
	return &EventBusClient{cache: cache}
}

// Publish sends a raw message to a pub/sub channel.
func (c *EventBusClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.cache.Client().Publish(ctx, channel, message).Err()
}

// Subscribe listens on the given channels and forwards messages until the
// context is cancelled.
func (c *EventBusClient) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	pubsub := c.cache.Subscribe(ctx, channels...)

	// Confirm the subscription before handing the channel out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan messaging.RedisMessage, 64)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- messaging.RedisMessage{
					Channel: msg.Channel,
					Payload: msg.Payload,
				}
			}
		}
	}()

	return out, nil
}

// Close is a no-op: the underlying connection belongs to the Cache.
func (c *EventBusClient) Close() error {
	return nil
}
