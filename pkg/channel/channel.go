// Package channel provides bounded, interceptable in-process message channels.
//
// A SimpleChannel is a FIFO queue of messages guarded by an ordered pipeline of
// Interceptors. Every Send runs PreSend hooks (any of which may veto), enqueues
// the message when all accept, and then reports the outcome to every PostSend
// hook. Every Receive runs PreReceive hooks, dequeues when all accept, and always
// reports the (possibly nil) result to every PostReceive hook.
package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/rs/zerolog"
)

const (
	// NoWait makes Send and Receive try exactly once.
	NoWait time.Duration = 0
	// WaitForever makes Send and Receive block until they can complete.
	WaitForever time.Duration = -1
)

// Channel is the contract shared by all message channels.
type Channel interface {
	// Name identifies the channel in logs and metrics.
	Name() string
	// Send delivers msg, waiting up to timeout for queue space. It reports
	// whether the message was enqueued. A non-nil error means an interceptor
	// aborted the send.
	Send(msg *message.Message, timeout time.Duration) (bool, error)
	// Receive takes the next message, waiting up to timeout for one to arrive.
	// A nil message with a nil error means nothing was available.
	Receive(timeout time.Duration) (*message.Message, error)
}

// SimpleChannel is a FIFO Channel with an optional capacity bound and an
// append-only interceptor pipeline. It is safe for concurrent use.
type SimpleChannel struct {
	name   string
	queue  *queue
	logger zerolog.Logger

	mu           sync.RWMutex
	interceptors []Interceptor
}

// NewSimpleChannel creates a channel holding at most capacity messages. A
// capacity of 0 means unbounded.
func NewSimpleChannel(name string, capacity int, logger zerolog.Logger) (*SimpleChannel, error) {
	if name == "" {
		return nil, fmt.Errorf("channel name cannot be empty")
	}
	if capacity < 0 {
		return nil, fmt.Errorf("channel '%s' capacity cannot be negative: %d", name, capacity)
	}
	return &SimpleChannel{
		name:   name,
		queue:  newQueue(capacity),
		logger: logger.With().Str("component", "SimpleChannel").Str("channel", name).Logger(),
	}, nil
}

// Name returns the channel name.
func (c *SimpleChannel) Name() string {
	return c.name
}

// Capacity returns the configured bound, 0 meaning unbounded.
func (c *SimpleChannel) Capacity() int {
	return c.queue.capacity
}

// Size returns the number of queued messages.
func (c *SimpleChannel) Size() int {
	return c.queue.size()
}

// AddInterceptor appends i to the pipeline. Interceptors run in the order they
// were added.
func (c *SimpleChannel) AddInterceptor(i Interceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors = append(c.interceptors, i)
}

func (c *SimpleChannel) pipeline() []Interceptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interceptors
}

// Send runs the send pipeline for msg. PostSend hooks observe every attempt,
// including vetoed ones, with sent set to the final outcome.
func (c *SimpleChannel) Send(msg *message.Message, timeout time.Duration) (bool, error) {
	if msg == nil {
		return false, fmt.Errorf("cannot send nil message to channel '%s'", c.name)
	}
	if msg.Header == nil {
		msg.Header = message.Header{}
	}
	interceptors := c.pipeline()

	accepted := true
	for _, i := range interceptors {
		ok, err := i.PreSend(msg, c)
		if err != nil {
			return false, err
		}
		if !ok {
			c.logger.Debug().Str("msg_id", msg.ID.String()).Msg("Send vetoed by interceptor.")
			accepted = false
			break
		}
	}

	sent := false
	if accepted {
		sent = c.queue.offer(msg, timeout)
		if !sent {
			c.logger.Debug().Str("msg_id", msg.ID.String()).Dur("timeout", timeout).Msg("Channel full, message not sent.")
		}
	}

	for _, i := range interceptors {
		i.PostSend(msg, c, sent)
	}
	return sent, nil
}

// Receive runs the receive pipeline. PostReceive hooks observe every attempt,
// including vetoed and empty ones, with a nil message in those cases.
func (c *SimpleChannel) Receive(timeout time.Duration) (*message.Message, error) {
	interceptors := c.pipeline()

	accepted := true
	for _, i := range interceptors {
		ok, err := i.PreReceive(c)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.logger.Debug().Msg("Receive vetoed by interceptor.")
			accepted = false
			break
		}
	}

	var msg *message.Message
	if accepted {
		msg = c.queue.poll(timeout)
	}

	for _, i := range interceptors {
		i.PostReceive(msg, c)
	}
	return msg, nil
}
