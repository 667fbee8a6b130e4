package stream

import (
	"context"
	"sync"
)

// Channel is an unbounded FIFO of events with a single producer and a single
// consumer. Push never blocks. The first terminal event closes the channel
// for writing; later pushes are dropped.
type Channel struct {
	mu         sync.Mutex
	queue      []Event
	terminated bool
	discarded  bool
	notify     chan struct{}
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	return &Channel{notify: make(chan struct{}, 1)}
}

// Push appends e and reports whether it was accepted. Events are dropped once
// a terminal event was accepted or the channel was discarded.
func (c *Channel) Push(e Event) bool {
	c.mu.Lock()
	if c.terminated || c.discarded {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, e)
	if IsTerminal(e) {
		c.terminated = true
	}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}

	return true
}

// Pop removes and returns the oldest event, blocking until one is available
// or ctx is done. After the terminal event has been popped, or after Discard,
// it returns ErrChannelDrained.
func (c *Channel) Pop(ctx context.Context) (Event, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			e := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return e, nil
		}
		done := c.terminated || c.discarded
		c.mu.Unlock()

		if done {
			return nil, ErrChannelDrained
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.notify:
		}
	}
}

// Len returns the number of queued events.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Terminated reports whether a terminal event has been accepted.
func (c *Channel) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Discard drops all queued events and rejects further pushes. A blocked Pop
// wakes up and returns ErrChannelDrained.
func (c *Channel) Discard() {
	c.mu.Lock()
	c.queue = nil
	c.discarded = true
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}
