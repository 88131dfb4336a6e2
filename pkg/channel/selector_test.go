package channel_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/illmade-knight/go-integration/pkg/channel"
	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingSelector(accept bool, counter *atomic.Int32) channel.Selector {
	return channel.SelectorFunc(func(*message.Message) bool {
		counter.Add(1)
		return accept
	})
}

func TestSelectingInterceptor(t *testing.T) {
	t.Run("Single selector accepts", func(t *testing.T) {
		var counter atomic.Int32
		ch := newTestChannel(t, 0)
		ch.AddInterceptor(channel.NewSelectingInterceptor(countingSelector(true, &counter)))

		sent, err := ch.Send(message.New("test1"), channel.NoWait)

		require.NoError(t, err)
		assert.True(t, sent)
	})

	t.Run("Single selector rejects with a delivery error", func(t *testing.T) {
		var counter atomic.Int32
		ch := newTestChannel(t, 0)
		ch.AddInterceptor(channel.NewSelectingInterceptor(countingSelector(false, &counter)))
		msg := message.New("test1")

		sent, err := ch.Send(msg, channel.NoWait)

		assert.False(t, sent)
		require.Error(t, err)
		assert.True(t, errors.Is(err, channel.ErrDeliveryRejected))
		var deliveryErr *channel.DeliveryError
		require.ErrorAs(t, err, &deliveryErr)
		assert.Same(t, msg, deliveryErr.Message)
		assert.Equal(t, "test", deliveryErr.Channel)
		assert.Equal(t, 0, ch.Size())
	})

	t.Run("Multiple selectors accept", func(t *testing.T) {
		var counter atomic.Int32
		ch := newTestChannel(t, 0)
		ch.AddInterceptor(channel.NewSelectingInterceptor(
			countingSelector(true, &counter),
			countingSelector(true, &counter),
		))

		sent, err := ch.Send(message.New("test1"), channel.NoWait)

		require.NoError(t, err)
		assert.True(t, sent)
		assert.Equal(t, int32(2), counter.Load())
	})

	t.Run("Multiple selectors stop at the first rejection", func(t *testing.T) {
		var counter atomic.Int32
		ch := newTestChannel(t, 0)
		ch.AddInterceptor(channel.NewSelectingInterceptor(
			countingSelector(true, &counter),
			countingSelector(false, &counter),
			countingSelector(false, &counter),
			countingSelector(true, &counter),
		))

		_, err := ch.Send(message.New("test1"), channel.NoWait)

		require.ErrorIs(t, err, channel.ErrDeliveryRejected)
		assert.Equal(t, int32(2), counter.Load())
		assert.Contains(t, err.Error(), "selector 2 of 4")
	})
}
