package message_test

import (
	"testing"

	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Fresh header is empty and owned by the message", func(t *testing.T) {
		msg := message.New("payload")

		require.NotNil(t, msg.Header)
		assert.Equal(t, 0, msg.Header.Len())
		assert.Equal(t, "payload", msg.Payload)
		assert.False(t, msg.Timestamp.IsZero())
	})

	t.Run("Equal payloads are still distinct messages", func(t *testing.T) {
		a := message.New("same")
		b := message.New("same")

		assert.NotEqual(t, a.ID, b.ID)
		assert.NotSame(t, a, b)
	})
}

func TestNewWithHeader(t *testing.T) {
	// Arrange
	attrs := map[string]any{"correlationId": "order-1"}

	// Act
	msg := message.NewWithHeader(42, attrs)
	attrs["correlationId"] = "changed"

	// Assert
	v, ok := msg.Header.Get("correlationId")
	require.True(t, ok)
	assert.Equal(t, "order-1", v, "header must not alias the caller's map")
}

func TestHeader(t *testing.T) {
	h := message.Header{}

	h.Set("a", 1)
	h.Set("a", 2)
	v, ok := h.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, h.Len())

	h.Remove("a")
	_, ok = h.Get("a")
	assert.False(t, ok)
}

func TestMessage_String(t *testing.T) {
	msg := message.NewWithHeader("hello", map[string]any{"k": "v"})

	s := msg.String()

	assert.Contains(t, s, "Payload=hello")
	assert.Contains(t, s, "k:v")
	assert.Contains(t, s, msg.ID.String())
}
