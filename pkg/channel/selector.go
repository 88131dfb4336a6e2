package channel

import (
	"errors"
	"fmt"

	"github.com/illmade-knight/go-integration/pkg/message"
)

// ErrDeliveryRejected is the root of every DeliveryError.
var ErrDeliveryRejected = errors.New("message delivery rejected")

// DeliveryError reports a send that a policy refused. Unlike a plain veto it is
// returned to the caller as an error so the rejection cannot be ignored.
type DeliveryError struct {
	Message *message.Message
	Channel string
	Reason  string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery of message %s to channel '%s' rejected: %s", e.Message.ID, e.Channel, e.Reason)
}

func (e *DeliveryError) Unwrap() error {
	return ErrDeliveryRejected
}

// Selector decides whether a message may pass.
type Selector interface {
	Accept(msg *message.Message) bool
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(msg *message.Message) bool

// Accept calls f(msg).
func (f SelectorFunc) Accept(msg *message.Message) bool {
	return f(msg)
}

// SelectingInterceptor admits a message only if every selector accepts it.
// Selectors are evaluated in order and evaluation stops at the first rejection.
type SelectingInterceptor struct {
	InterceptorAdapter
	selectors []Selector
}

// NewSelectingInterceptor combines selectors with AND semantics.
func NewSelectingInterceptor(selectors ...Selector) *SelectingInterceptor {
	return &SelectingInterceptor{selectors: selectors}
}

// PreSend returns a *DeliveryError when any selector rejects msg.
func (s *SelectingInterceptor) PreSend(msg *message.Message, ch Channel) (bool, error) {
	for i, selector := range s.selectors {
		if !selector.Accept(msg) {
			return false, &DeliveryError{
				Message: msg,
				Channel: ch.Name(),
				Reason:  fmt.Sprintf("selector %d of %d did not accept the message", i+1, len(s.selectors)),
			}
		}
	}
	return true, nil
}
