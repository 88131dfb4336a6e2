package channel_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/illmade-knight/go-integration/pkg/channel"
	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tracedError struct {
	err   error
	stack string
}

func (e *tracedError) Error() string { return e.err.Error() }
func (e *tracedError) Unwrap() error { return e.err }
func (e *tracedError) Stack() string { return e.stack }

func TestErrorChannel(t *testing.T) {
	t.Run("Failures are logged at debug and always accepted", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
		errCh, err := channel.NewErrorChannel(0, logger)
		require.NoError(t, err)
		assert.Equal(t, channel.ErrorChannelName, errCh.Name())

		failure := fmt.Errorf("handler failed: %w", &tracedError{err: errors.New("boom"), stack: "goroutine 1 [running]"})

		// Act
		sent, err := errCh.Send(message.New(failure), channel.NoWait)

		// Assert
		require.NoError(t, err)
		assert.True(t, sent)
		out := buf.String()
		assert.Contains(t, out, "Error received.")
		assert.Contains(t, out, "handler failed: boom")
		assert.Contains(t, out, "goroutine 1 [running]")
	})

	t.Run("Non-error payloads are logged without a trace", func(t *testing.T) {
		var buf bytes.Buffer
		errCh, err := channel.NewErrorChannel(0, zerolog.New(&buf).Level(zerolog.DebugLevel))
		require.NoError(t, err)

		_, err = errCh.Send(message.New("plain failure text"), channel.NoWait)

		require.NoError(t, err)
		assert.Contains(t, buf.String(), "plain failure text")
		assert.NotContains(t, buf.String(), "trace")
	})

	t.Run("Full error channel warns instead of failing", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		errCh, err := channel.NewErrorChannel(1, zerolog.New(&buf).Level(zerolog.WarnLevel))
		require.NoError(t, err)
		_, _ = errCh.Send(message.New(errors.New("first")), channel.NoWait)
		assert.Empty(t, buf.String(), "nothing at warn level for a queued failure")

		// Act
		sent, err := errCh.Send(message.New(errors.New("second")), channel.NoWait)

		// Assert
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Contains(t, buf.String(), "Error channel has reached capacity")
		assert.Contains(t, buf.String(), `"level":"warn"`)
	})
}
