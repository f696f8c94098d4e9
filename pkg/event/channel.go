package event

import (
	"fmt"
	"log/slog"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// HandlerFunc consumes one event. A returned error is logged and does not
// stop dispatch to the remaining handlers.
type HandlerFunc[T any] func(T) error

type handler[T any] struct {
	name     string
	priority uint8
	fn       HandlerFunc[T]
}

// Channel is a bounded FIFO of events of type T plus the ordered list of
// handlers they are dispatched to. Capacity is fixed at creation.
//
// A Channel is not safe for concurrent use; it belongs to the main loop.
type Channel[T any] struct {
	name string

	queue []T
	r, w  uint

	handlers []handler[T]
	single   HandlerFunc[T]

	drops      uint64
	dispatched uint64
	onDrop     func(channel string, total uint64)
	logger     *slog.Logger
}

// Option configures a Channel.
type Option[T any] func(*Channel[T])

// WithSingleConsumer makes fn the only consumer of the channel. Subscribe
// and Unsubscribe are then unsupported.
func WithSingleConsumer[T any](fn HandlerFunc[T]) Option[T] {
	return func(c *Channel[T]) { c.single = fn }
}

// WithMaxHandlers sets the size of the handler table. The default is 8.
func WithMaxHandlers[T any](n int) Option[T] {
	return func(c *Channel[T]) { c.handlers = make([]handler[T], 0, n) }
}

// WithLogger sets the logger used for handler errors.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(c *Channel[T]) { c.logger = l }
}

// WithDropHook is called with the running drop count whenever Post rejects
// an event.
func WithDropHook[T any](fn func(channel string, total uint64)) Option[T] {
	return func(c *Channel[T]) { c.onDrop = fn }
}

// NewChannel returns an empty channel holding at most capacity events.
func NewChannel[T any](name string, capacity int, opts ...Option[T]) (*Channel[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("channel %q capacity %d: %w", name, capacity, surfaceerr.ErrBadParameter)
	}
	c := &Channel[T]{
		name:     name,
		queue:    make([]T, capacity),
		handlers: make([]handler[T], 0, 8),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if cap(c.handlers) < 1 {
		return nil, fmt.Errorf("channel %q handler table: %w", name, surfaceerr.ErrBadParameter)
	}
	return c, nil
}

// Subscribe adds fn under a unique name. Priority 0 handlers run last in
// subscription order; higher priorities run first, ties in subscription
// order.
func (c *Channel[T]) Subscribe(name string, priority uint8, fn HandlerFunc[T]) error {
	if c.single != nil {
		return fmt.Errorf("subscribe %q to %s: %w", name, c.name, surfaceerr.ErrUnsupported)
	}
	if fn == nil {
		return fmt.Errorf("subscribe %q to %s: %w", name, c.name, surfaceerr.ErrNullReference)
	}
	for _, h := range c.handlers {
		if h.name == name {
			return fmt.Errorf("subscribe %q to %s: %w", name, c.name, surfaceerr.ErrDuplicate)
		}
	}
	if len(c.handlers) == cap(c.handlers) {
		return fmt.Errorf("subscribe %q to %s: handler table full: %w", name, c.name, surfaceerr.ErrBadParameter)
	}

	at := len(c.handlers)
	if priority != 0 {
		for i, h := range c.handlers {
			if h.priority < priority {
				at = i
				break
			}
		}
	}
	c.handlers = append(c.handlers, handler[T]{})
	copy(c.handlers[at+1:], c.handlers[at:])
	c.handlers[at] = handler[T]{name: name, priority: priority, fn: fn}
	return nil
}

// Unsubscribe removes the handler registered under name.
func (c *Channel[T]) Unsubscribe(name string) error {
	if c.single != nil {
		return fmt.Errorf("unsubscribe %q from %s: %w", name, c.name, surfaceerr.ErrUnsupported)
	}
	for i, h := range c.handlers {
		if h.name == name {
			copy(c.handlers[i:], c.handlers[i+1:])
			c.handlers[len(c.handlers)-1] = handler[T]{}
			c.handlers = c.handlers[:len(c.handlers)-1]
			return nil
		}
	}
	return fmt.Errorf("unsubscribe %q from %s: not subscribed: %w", name, c.name, surfaceerr.ErrUnsupported)
}

// Post copies evt into the queue. A full queue drops evt and returns
// surfaceerr.ErrQueueFull.
func (c *Channel[T]) Post(evt T) error {
	if c.w-c.r == uint(len(c.queue)) {
		c.drops++
		if c.onDrop != nil {
			c.onDrop(c.name, c.drops)
		}
		return surfaceerr.ErrQueueFull
	}
	c.queue[c.w%uint(len(c.queue))] = evt
	c.w++
	return nil
}

// PostImmediate dispatches evt to the handlers before returning, bypassing
// the queue.
func (c *Channel[T]) PostImmediate(evt T) error {
	if c.single == nil && len(c.handlers) == 0 {
		return fmt.Errorf("post immediate to %s: no handlers: %w", c.name, surfaceerr.ErrNullReference)
	}
	c.dispatch(evt)
	return nil
}

// Process dispatches the events queued when it was called and returns how
// many it dispatched. Events posted by handlers wait for the next call.
func (c *Channel[T]) Process() int {
	n := c.w - c.r
	var zero T
	for i := uint(0); i < n; i++ {
		at := c.r % uint(len(c.queue))
		evt := c.queue[at]
		c.queue[at] = zero
		c.r++
		c.dispatch(evt)
	}
	return int(n)
}

func (c *Channel[T]) dispatch(evt T) {
	c.dispatched++
	if c.single != nil {
		if err := c.single(evt); err != nil {
			c.logger.Warn("event handler failed", "channel", c.name, "error", err)
		}
		return
	}
	for _, h := range c.handlers {
		if err := h.fn(evt); err != nil {
			c.logger.Warn("event handler failed", "channel", c.name, "handler", h.name, "error", err)
		}
	}
}

// Name returns the channel name.
func (c *Channel[T]) Name() string { return c.name }

// Len returns the number of queued events.
func (c *Channel[T]) Len() int { return int(c.w - c.r) }

// Cap returns the queue capacity.
func (c *Channel[T]) Cap() int { return len(c.queue) }

// Drops returns the number of events rejected by Post.
func (c *Channel[T]) Drops() uint64 { return c.drops }

// Dispatched returns the number of events handed to handlers.
func (c *Channel[T]) Dispatched() uint64 { return c.dispatched }

// Handlers returns handler names in dispatch order.
func (c *Channel[T]) Handlers() []string {
	names := make([]string, len(c.handlers))
	for i, h := range c.handlers {
		names[i] = h.name
	}
	return names
}
