package aggregator

import (
	"fmt"
	"strconv"

	"github.com/illmade-knight/go-integration/pkg/message"
)

// CompletionStrategy decides whether a correlation group is ready to be reduced.
// Implementations must be pure: they are called under the aggregator's lock,
// once per arrival, as the group grows.
type CompletionStrategy interface {
	IsComplete(members []*message.Message) bool
}

// CompletionFunc adapts a function to the CompletionStrategy interface.
type CompletionFunc func(members []*message.Message) bool

// IsComplete calls f(members).
func (f CompletionFunc) IsComplete(members []*message.Message) bool {
	return f(members)
}

// SizeCompletion completes a group once it holds exactly n members.
func SizeCompletion(n int) CompletionStrategy {
	return CompletionFunc(func(members []*message.Message) bool {
		return len(members) == n
	})
}

// SequenceSizeCompletion completes a group once its member count reaches the
// integer stored under header on the group's first member. Groups whose first
// member lacks a usable value never complete on their own.
func SequenceSizeCompletion(header string) CompletionStrategy {
	return CompletionFunc(func(members []*message.Message) bool {
		if len(members) == 0 {
			return false
		}
		raw, ok := members[0].Header.Get(header)
		if !ok {
			return false
		}
		size, err := toInt(raw)
		if err != nil || size <= 0 {
			return false
		}
		return len(members) >= size
	})
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported sequence size type %T", v)
	}
}

// CorrelationStrategy extracts the key that groups related messages. It is
// called exactly once per arriving message and must have no side effects.
type CorrelationStrategy[K comparable] func(msg *message.Message) (K, error)

// HeaderCorrelation correlates messages by the value of a header attribute,
// rendered as a string.
func HeaderCorrelation(header string) CorrelationStrategy[string] {
	return func(msg *message.Message) (string, error) {
		raw, ok := msg.Header.Get(header)
		if !ok || raw == nil {
			return "", fmt.Errorf("message %s has no '%s' header", msg.ID, header)
		}
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprint(raw), nil
	}
}
