package channel

import (
	"errors"

	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/rs/zerolog"
)

// ErrorChannelName is the name given to channels built by NewErrorChannel.
const ErrorChannelName = "errorChannel"

// NewErrorChannel creates the sink for failures. Its single interceptor logs
// everything that arrives and warns when a failure could not be queued. It
// never vetoes and never returns an error.
func NewErrorChannel(capacity int, logger zerolog.Logger) (*SimpleChannel, error) {
	ch, err := NewSimpleChannel(ErrorChannelName, capacity, logger)
	if err != nil {
		return nil, err
	}
	ch.AddInterceptor(&errorLoggingInterceptor{
		logger: logger.With().Str("component", "ErrorChannel").Logger(),
	})
	return ch, nil
}

type errorLoggingInterceptor struct {
	InterceptorAdapter
	logger zerolog.Logger
}

// PreSend makes failures visible at debug level even when nothing consumes the
// error channel.
func (l *errorLoggingInterceptor) PreSend(msg *message.Message, _ Channel) (bool, error) {
	evt := l.logger.Debug()
	if !evt.Enabled() {
		return true, nil
	}
	evt = evt.Str("msg_id", msg.ID.String()).Stringer("message", msg)
	if err, ok := msg.Payload.(error); ok {
		evt = evt.Err(err)
		var traced interface{ Stack() string }
		if errors.As(err, &traced) {
			evt = evt.Str("trace", traced.Stack())
		}
	}
	evt.Msg("Error received.")
	return true, nil
}

func (l *errorLoggingInterceptor) PostSend(msg *message.Message, ch Channel, sent bool) {
	if !sent {
		l.logger.Warn().Str("channel", ch.Name()).Str("msg_id", msg.ID.String()).
			Msg("Error channel has reached capacity. Is anything consuming it?")
	}
}
