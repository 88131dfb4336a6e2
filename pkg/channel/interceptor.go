package channel

import (
	"github.com/illmade-knight/go-integration/pkg/message"
)

// Interceptor observes or gates channel operations. Hooks run inline on the
// caller's goroutine and should be fast.
//
// Pre hooks return false to veto the operation. Returning an error aborts the
// operation outright: no further hooks run and the error reaches the caller.
type Interceptor interface {
	PreSend(msg *message.Message, ch Channel) (bool, error)
	PostSend(msg *message.Message, ch Channel, sent bool)
	PreReceive(ch Channel) (bool, error)
	// PostReceive is called after every receive attempt; msg is nil when
	// nothing was received.
	PostReceive(msg *message.Message, ch Channel)
}

// InterceptorAdapter accepts everything and observes nothing. Embed it to
// implement only the hooks you need.
type InterceptorAdapter struct{}

func (InterceptorAdapter) PreSend(*message.Message, Channel) (bool, error) { return true, nil }
func (InterceptorAdapter) PostSend(*message.Message, Channel, bool)        {}
func (InterceptorAdapter) PreReceive(Channel) (bool, error)                { return true, nil }
func (InterceptorAdapter) PostReceive(*message.Message, Channel)           {}

// InterceptorFuncs builds an Interceptor from optional functions. Nil fields
// behave like InterceptorAdapter.
type InterceptorFuncs struct {
	PreSendFunc     func(msg *message.Message, ch Channel) (bool, error)
	PostSendFunc    func(msg *message.Message, ch Channel, sent bool)
	PreReceiveFunc  func(ch Channel) (bool, error)
	PostReceiveFunc func(msg *message.Message, ch Channel)
}

func (f InterceptorFuncs) PreSend(msg *message.Message, ch Channel) (bool, error) {
	if f.PreSendFunc == nil {
		return true, nil
	}
	return f.PreSendFunc(msg, ch)
}

func (f InterceptorFuncs) PostSend(msg *message.Message, ch Channel, sent bool) {
	if f.PostSendFunc != nil {
		f.PostSendFunc(msg, ch, sent)
	}
}

func (f InterceptorFuncs) PreReceive(ch Channel) (bool, error) {
	if f.PreReceiveFunc == nil {
		return true, nil
	}
	return f.PreReceiveFunc(ch)
}

func (f InterceptorFuncs) PostReceive(msg *message.Message, ch Channel) {
	if f.PostReceiveFunc != nil {
		f.PostReceiveFunc(msg, ch)
	}
}

// HeaderEnricher stamps fixed attributes onto every message sent through the
// channel it is registered on.
type HeaderEnricher struct {
	InterceptorAdapter
	attrs     map[string]any
	overwrite bool
}

// NewHeaderEnricher copies attrs. When overwrite is false, attributes already
// present on a message are left alone.
func NewHeaderEnricher(attrs map[string]any, overwrite bool) *HeaderEnricher {
	copied := make(map[string]any, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return &HeaderEnricher{attrs: copied, overwrite: overwrite}
}

// PreSend sets the attributes and always accepts.
func (e *HeaderEnricher) PreSend(msg *message.Message, _ Channel) (bool, error) {
	for k, v := range e.attrs {
		if _, exists := msg.Header.Get(k); exists && !e.overwrite {
			continue
		}
		msg.Header.Set(k, v)
	}
	return true, nil
}
