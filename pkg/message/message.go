// Package message defines the unit of data that flows through channels and aggregators.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Header is the mutable attribute store carried by every Message. Interceptors
// annotate messages in place through it.
//
// A Header is owned by exactly one Message. Interceptors may read and write it
// during a pipeline call but must not retain it afterwards.
type Header map[string]any

// Get returns the attribute stored under name.
func (h Header) Get(name string) (any, bool) {
	v, ok := h[name]
	return v, ok
}

// Set stores value under name, replacing any previous value.
func (h Header) Set(name string, value any) {
	h[name] = value
}

// Remove deletes the attribute stored under name.
func (h Header) Remove(name string) {
	delete(h, name)
}

// Len returns the number of attributes.
func (h Header) Len() int {
	return len(h)
}

// Message is the canonical, in-process representation of an event. The payload is
// opaque to channels; the header travels with it for the Message's lifetime.
type Message struct {
	// ID uniquely identifies this Message. Two messages with equal payloads are
	// still distinct values.
	ID uuid.UUID

	// Payload is the message content. It is never inspected by channels.
	Payload any

	// Header holds attributes added by producers and interceptors. Use New or
	// NewWithHeader to get an allocated header; channels allocate one on send
	// for literal Messages.
	Header Header

	// Timestamp records when the Message was created.
	Timestamp time.Time
}

// New creates a Message with a fresh, empty header.
func New(payload any) *Message {
	return &Message{
		ID:        uuid.New(),
		Payload:   payload,
		Header:    make(Header),
		Timestamp: time.Now(),
	}
}

// NewWithHeader creates a Message whose header starts with a copy of attrs. The
// caller's map is not retained.
func NewWithHeader(payload any, attrs map[string]any) *Message {
	msg := New(payload)
	for k, v := range attrs {
		msg.Header[k] = v
	}
	return msg
}

// String renders the message for logs.
func (m *Message) String() string {
	return fmt.Sprintf("[Payload=%v][Header=%v][ID=%s]", m.Payload, map[string]any(m.Header), m.ID)
}
