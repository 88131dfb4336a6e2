package aggregator

import (
	"fmt"

	"github.com/illmade-knight/go-integration/pkg/message"
)

// InputShape declares what a Reducer receives.
type InputShape int

const (
	// InputPayloads hands the reducer the members' payloads, in arrival order.
	InputPayloads InputShape = iota
	// InputMessages hands the reducer the members themselves, in arrival order.
	InputMessages
)

func (s InputShape) String() string {
	switch s {
	case InputPayloads:
		return "payloads"
	case InputMessages:
		return "messages"
	default:
		return "unknown"
	}
}

// Reducer turns a completed group into at most one outgoing message. Its input
// shape is fixed when it is built.
//
// The reduction function may return a *message.Message, which is forwarded
// unchanged; nil, which produces no output; or any other value, which is
// wrapped in a new message with an empty header.
type Reducer struct {
	shape     InputShape
	payloadFn func(payloads []any) (any, error)
	messageFn func(members []*message.Message) (any, error)
}

// PayloadReducer builds a Reducer over member payloads.
func PayloadReducer(fn func(payloads []any) (any, error)) Reducer {
	return Reducer{shape: InputPayloads, payloadFn: fn}
}

// MessageReducer builds a Reducer over whole member messages.
func MessageReducer(fn func(members []*message.Message) (any, error)) Reducer {
	return Reducer{shape: InputMessages, messageFn: fn}
}

// Shape returns the declared input shape.
func (r Reducer) Shape() InputShape {
	return r.shape
}

func (r Reducer) validate() error {
	switch r.shape {
	case InputPayloads:
		if r.payloadFn == nil {
			return fmt.Errorf("%w: payload reducer function cannot be nil", ErrInvalidConfig)
		}
	case InputMessages:
		if r.messageFn == nil {
			return fmt.Errorf("%w: message reducer function cannot be nil", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown reducer input shape %d", ErrInvalidConfig, r.shape)
	}
	return nil
}

// Reduce invokes the reduction function on members and wraps its result.
func (r Reducer) Reduce(members []*message.Message) (*message.Message, error) {
	var (
		result any
		err    error
	)
	if r.shape == InputMessages {
		result, err = r.messageFn(members)
	} else {
		payloads := make([]any, len(members))
		for i, m := range members {
			payloads[i] = m.Payload
		}
		result, err = r.payloadFn(payloads)
	}
	if err != nil {
		return nil, err
	}
	return wrap(result), nil
}

func wrap(result any) *message.Message {
	switch v := result.(type) {
	case nil:
		return nil
	case *message.Message:
		return v
	default:
		return message.New(v)
	}
}
