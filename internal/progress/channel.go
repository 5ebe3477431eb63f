package progress

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Listener receives every value published after it subscribed.
type Listener[T any] func(ctx context.Context, value T) error

// Subscription identifies one registered listener.
type Subscription uint64

type subscriber[T any] struct {
	id       Subscription
	listener Listener[T]
}

// Channel holds the latest published value and the ordered set of listeners
// to notify. It is safe for concurrent use.
//
// Publishes are serialized: a single publisher's values reach every listener
// in publish order. Listeners run on the publisher's goroutine and must not
// publish on the Channel that invoked them.
type Channel[T any] struct {
	publishMu sync.Mutex

	mu     sync.Mutex
	value  T
	nextID Subscription
	subs   []subscriber[T]
	logger *zap.Logger
}

// NewChannel returns a Channel seeded with initial.
func NewChannel[T any](initial T, logger *zap.Logger) *Channel[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel[T]{value: initial, logger: logger}
}

// Current returns the last published value, or the initial value.
func (c *Channel[T]) Current() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Publish stores value and then invokes every listener subscribed at that
// moment. A listener that fails or panics is logged; the rest still run.
func (c *Channel[T]) Publish(ctx context.Context, value T) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	c.value = value
	subs := append([]subscriber[T](nil), c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		if err := c.notify(ctx, sub, value); err != nil {
			c.logger.Warn("progress listener failed",
				zap.Uint64("subscription", uint64(sub.id)),
				zap.Error(err),
			)
		}
	}
}

func (c *Channel[T]) notify(ctx context.Context, sub subscriber[T], value T) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()
	return sub.listener(ctx, value)
}

// Subscribe registers listener and returns its Subscription. Subscribing the
// same function twice yields two independent subscriptions.
func (c *Channel[T]) Subscribe(listener Listener[T]) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber[T]{id: id, listener: listener})
	return id
}

// Unsubscribe removes the listener registered under id. Unknown ids are ignored.
func (c *Channel[T]) Unsubscribe(id Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subs {
		if sub.id == id {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

// Len reports the number of active subscriptions.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
