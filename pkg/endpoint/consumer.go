// Package endpoint connects channels to message handlers with a pool of polling
// workers.
package endpoint

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/illmade-knight/go-integration/pkg/channel"
	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/rs/zerolog"
)

// Handler processes one message and optionally produces a reply. An Aggregator
// is a Handler.
type Handler interface {
	Handle(msg *message.Message) (*message.Message, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(msg *message.Message) (*message.Message, error)

// Handle calls f(msg).
func (f HandlerFunc) Handle(msg *message.Message) (*message.Message, error) {
	return f(msg)
}

// HandlingError is the payload of messages sent to the error channel. It keeps
// the failed message and, for panics, the stack at the point of failure.
type HandlingError struct {
	Message *message.Message
	Err     error
	stack   string
}

func (e *HandlingError) Error() string {
	return fmt.Sprintf("failed to handle message %s: %v", e.Message.ID, e.Err)
}

func (e *HandlingError) Unwrap() error {
	return e.Err
}

// Stack returns the captured stack trace, empty for ordinary errors.
func (e *HandlingError) Stack() string {
	return e.stack
}

// PollingConsumerConfig holds configuration for a PollingConsumer.
type PollingConsumerConfig struct {
	NumWorkers int
	// PollTimeout bounds each Receive so workers notice shutdown.
	PollTimeout time.Duration
	// SendTimeout bounds delivery of replies to the output channel. Zero means one
	// second; use channel.WaitForever to block.
	SendTimeout time.Duration
}

// PollingConsumer drains an input channel with a pool of workers, hands each
// message to a handler, forwards replies to an output channel, and reports
// failures to an error channel.
type PollingConsumer struct {
	cfg          PollingConsumerConfig
	input        channel.Channel
	handler      Handler
	output       channel.Channel
	errorChannel channel.Channel
	logger       zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPollingConsumer creates a new PollingConsumer. output and errorChannel may
// be nil; replies and failures are then only logged.
func NewPollingConsumer(
	cfg PollingConsumerConfig,
	input channel.Channel,
	handler Handler,
	output channel.Channel,
	errorChannel channel.Channel,
	logger zerolog.Logger,
) (*PollingConsumer, error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = time.Second
	}
	if input == nil {
		return nil, fmt.Errorf("input channel cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	return &PollingConsumer{
		cfg:          cfg,
		input:        input,
		handler:      handler,
		output:       output,
		errorChannel: errorChannel,
		logger:       logger.With().Str("component", "PollingConsumer").Str("input", input.Name()).Logger(),
	}, nil
}

// Start spawns the worker pool.
func (c *PollingConsumer) Start(ctx context.Context) error {
	if c.cancel != nil {
		return fmt.Errorf("polling consumer on '%s' already started", c.input.Name())
	}
	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.logger.Info().Int("worker_count", c.cfg.NumWorkers).Msg("Starting polling workers...")
	c.wg.Add(c.cfg.NumWorkers)
	for i := 0; i < c.cfg.NumWorkers; i++ {
		go c.worker(workerCtx, i)
	}
	return nil
}

// Stop signals the workers and waits for in-flight messages to finish, up to
// the context's deadline.
func (c *PollingConsumer) Stop(ctx context.Context) error {
	c.logger.Info().Msg("Stopping polling consumer...")
	if c.cancel != nil {
		c.cancel()
	}

	workerDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(workerDone)
	}()

	select {
	case <-workerDone:
		c.logger.Info().Msg("All polling workers completed gracefully.")
		return nil
	case <-ctx.Done():
		c.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for polling workers to finish.")
		return ctx.Err()
	}
}

func (c *PollingConsumer) worker(ctx context.Context, workerID int) {
	defer c.wg.Done()
	c.logger.Debug().Int("worker_id", workerID).Msg("Polling worker started.")
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug().Int("worker_id", workerID).Msg("Polling worker shutting down.")
			return
		default:
		}

		msg, err := c.input.Receive(c.cfg.PollTimeout)
		if err != nil {
			c.logger.Error().Err(err).Int("worker_id", workerID).Msg("Receive failed.")
			continue
		}
		if msg == nil {
			continue
		}
		c.process(msg)
	}
}

func (c *PollingConsumer) process(msg *message.Message) {
	reply, err := c.invoke(msg)
	if err != nil {
		c.logger.Error().Err(err).Str("msg_id", msg.ID.String()).Msg("Handler failed.")
		c.reportFailure(msg, err)
		return
	}
	if reply == nil {
		return
	}
	if c.output == nil {
		c.logger.Debug().Str("msg_id", reply.ID.String()).Msg("Handler produced a reply but no output channel is configured, dropping.")
		return
	}

	sent, err := c.output.Send(reply, c.cfg.SendTimeout)
	if err != nil {
		c.reportFailure(reply, fmt.Errorf("failed to send reply to '%s': %w", c.output.Name(), err))
		return
	}
	if !sent {
		c.reportFailure(reply, fmt.Errorf("output channel '%s' did not accept reply within %s", c.output.Name(), c.cfg.SendTimeout))
	}
}

// invoke calls the handler, converting a panic into an error with its stack.
func (c *PollingConsumer) invoke(msg *message.Message) (reply *message.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlingError{Message: msg, Err: fmt.Errorf("handler panic: %v", r), stack: string(debug.Stack())}
		}
	}()
	return c.handler.Handle(msg)
}

func (c *PollingConsumer) reportFailure(msg *message.Message, err error) {
	if c.errorChannel == nil {
		return
	}
	failure, ok := err.(*HandlingError)
	if !ok {
		failure = &HandlingError{Message: msg, Err: err}
	}
	sent, sendErr := c.errorChannel.Send(message.New(failure), channel.NoWait)
	if sendErr != nil || !sent {
		c.logger.Warn().Err(sendErr).Str("msg_id", msg.ID.String()).Msg("Could not deliver failure to error channel.")
	}
}
