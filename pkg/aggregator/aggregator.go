// Package aggregator correlates related messages into groups and reduces each
// completed group into a single outgoing message.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-integration/pkg/cache"
	"github.com/illmade-knight/go-integration/pkg/channel"
	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/rs/zerolog"
)

// ErrInvalidConfig marks wiring mistakes detected at construction time.
var ErrInvalidConfig = errors.New("invalid aggregator configuration")

const minReapInterval = time.Millisecond

// ReductionError reports a reducer failure. The group has already been removed
// from tracking, so Messages is the only remaining reference to its members.
type ReductionError struct {
	Key      any
	Messages []*message.Message
	Err      error
}

func (e *ReductionError) Error() string {
	return fmt.Sprintf("reduction of group '%v' (%d messages) failed: %v", e.Key, len(e.Messages), e.Err)
}

func (e *ReductionError) Unwrap() error {
	return e.Err
}

// Config holds configuration for an Aggregator.
type Config struct {
	// Name identifies the aggregator in logs.
	Name string
	// GroupTimeout is how long a group may stay open before it is expired and its
	// members discarded. Zero disables expiry.
	GroupTimeout time.Duration
	// ReapInterval is how often Start checks for expired groups. Defaults to
	// GroupTimeout / 2, and never less than a millisecond.
	ReapInterval time.Duration
	// CompletedKeyCacheSize, when positive, remembers that many recently completed
	// keys and discards late arrivals for them instead of opening a new group.
	CompletedKeyCacheSize int
	// DiscardChannel, when set, receives late arrivals and members of expired
	// groups.
	DiscardChannel channel.Channel
}

type group struct {
	members []*message.Message
	created time.Time
}

// Aggregator accumulates messages per correlation key and emits one reduced
// message per completed group. Handle is safe for concurrent use.
type Aggregator[K comparable] struct {
	cfg         Config
	correlation CorrelationStrategy[K]
	completion  CompletionStrategy
	reducer     Reducer
	completed   *cache.LRUSet[K]
	logger      zerolog.Logger

	mu     sync.Mutex
	groups map[K]*group

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates an Aggregator. Missing collaborators, an invalid reducer, or a
// completion strategy that treats an empty group as complete are reported as
// errors wrapping ErrInvalidConfig.
func New[K comparable](
	cfg Config,
	correlation CorrelationStrategy[K],
	completion CompletionStrategy,
	reducer Reducer,
	logger zerolog.Logger,
) (*Aggregator[K], error) {
	if correlation == nil {
		return nil, fmt.Errorf("%w: correlation strategy cannot be nil", ErrInvalidConfig)
	}
	if completion == nil {
		return nil, fmt.Errorf("%w: completion strategy cannot be nil", ErrInvalidConfig)
	}
	if err := reducer.validate(); err != nil {
		return nil, err
	}
	if completesEmptyGroup(completion) {
		return nil, fmt.Errorf("%w: completion strategy reports an empty group as complete", ErrInvalidConfig)
	}
	if cfg.GroupTimeout < 0 {
		return nil, fmt.Errorf("%w: group timeout cannot be negative", ErrInvalidConfig)
	}
	if cfg.Name == "" {
		cfg.Name = "aggregator"
	}
	if cfg.GroupTimeout > 0 && cfg.ReapInterval <= 0 {
		cfg.ReapInterval = max(cfg.GroupTimeout/2, minReapInterval)
	}

	a := &Aggregator[K]{
		cfg:         cfg,
		correlation: correlation,
		completion:  completion,
		reducer:     reducer,
		groups:      make(map[K]*group),
		logger:      logger.With().Str("component", "Aggregator").Str("aggregator", cfg.Name).Logger(),
	}
	if cfg.CompletedKeyCacheSize > 0 {
		completed, err := cache.NewLRUSet[K](cfg.CompletedKeyCacheSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		a.completed = completed
	}
	return a, nil
}

// completesEmptyGroup probes a strategy with no members. A strategy that panics
// on an empty group is assuming at least one member, which Handle guarantees.
func completesEmptyGroup(c CompletionStrategy) (complete bool) {
	defer func() {
		if recover() != nil {
			complete = false
		}
	}()
	return c.IsComplete(nil)
}

// isComplete evaluates the completion strategy, converting a panic into an
// error. Called with a.mu held.
func (a *Aggregator[K]) isComplete(members []*message.Message) (complete bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion strategy panicked on message %s: %v", members[len(members)-1].ID, r)
		}
	}()
	return a.completion.IsComplete(members), nil
}

// Handle adds msg to its correlation group. It returns nil while the group is
// still open, and the reduced message (which may itself be nil) once the group
// completes. Exactly one caller observes completion for any group.
func (a *Aggregator[K]) Handle(msg *message.Message) (*message.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("cannot aggregate a nil message")
	}
	key, err := a.correlation(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to correlate message %s: %w", msg.ID, err)
	}

	a.mu.Lock()
	if a.completed != nil && a.completed.Contains(key) {
		a.mu.Unlock()
		a.logger.Warn().Str("msg_id", msg.ID.String()).Interface("key", key).Msg("Message arrived for an already completed group, discarding.")
		a.discard(msg)
		return nil, nil
	}

	g, ok := a.groups[key]
	if !ok {
		g = &group{created: time.Now()}
		a.groups[key] = g
	}
	g.members = append(g.members, msg)

	complete, err := a.isComplete(g.members)
	if err != nil {
		// The member that triggered the failure is not kept.
		g.members = g.members[:len(g.members)-1]
		if len(g.members) == 0 {
			delete(a.groups, key)
		}
		a.mu.Unlock()
		a.logger.Error().Err(err).Str("msg_id", msg.ID.String()).Interface("key", key).Msg("Completion strategy failed, message rejected.")
		return nil, err
	}
	if !complete {
		size := len(g.members)
		a.mu.Unlock()
		a.logger.Debug().Str("msg_id", msg.ID.String()).Interface("key", key).Int("group_size", size).Msg("Message added to open group.")
		return nil, nil
	}

	// Removing the group inside the critical section makes this caller the only
	// one that can reduce it; later arrivals open a fresh group.
	delete(a.groups, key)
	if a.completed != nil {
		a.completed.Add(key)
	}
	a.mu.Unlock()

	members := g.members
	a.logger.Debug().Interface("key", key).Int("group_size", len(members)).Msg("Group complete, reducing.")

	out, err := a.reducer.Reduce(members)
	if err != nil {
		a.logger.Error().Err(err).Interface("key", key).Int("group_size", len(members)).Msg("Reducer failed, group dropped.")
		return nil, &ReductionError{Key: key, Messages: members, Err: err}
	}
	if out == nil {
		a.logger.Debug().Interface("key", key).Msg("Reducer returned no result.")
	}
	return out, nil
}

// GroupCount returns the number of open groups.
func (a *Aggregator[K]) GroupCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// GroupSize returns the number of members in the open group for key, or 0.
func (a *Aggregator[K]) GroupSize(key K) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if g, ok := a.groups[key]; ok {
		return len(g.members)
	}
	return 0
}

// ExpireGroups removes every open group created at least GroupTimeout before
// now, discarding its members. It returns the number of groups expired.
func (a *Aggregator[K]) ExpireGroups(now time.Time) int {
	if a.cfg.GroupTimeout <= 0 {
		return 0
	}

	type expiredGroup struct {
		key     K
		members []*message.Message
	}
	var expired []expiredGroup

	a.mu.Lock()
	for key, g := range a.groups {
		if now.Sub(g.created) >= a.cfg.GroupTimeout {
			expired = append(expired, expiredGroup{key: key, members: g.members})
			delete(a.groups, key)
		}
	}
	a.mu.Unlock()

	for _, e := range expired {
		a.logger.Warn().Interface("key", e.key).Int("group_size", len(e.members)).Msg("Group timed out before completion, discarding members.")
		for _, m := range e.members {
			a.discard(m)
		}
	}
	return len(expired)
}

// Start runs the background reaper that expires stale groups. It is a no-op
// when GroupTimeout is zero, and an error on a second call.
func (a *Aggregator[K]) Start(ctx context.Context) error {
	if a.cfg.GroupTimeout <= 0 {
		return nil
	}
	if a.cancel != nil {
		return fmt.Errorf("aggregator '%s' already started", a.cfg.Name)
	}
	reapCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.wg.Add(1)
	go a.reaper(reapCtx)
	a.logger.Info().Dur("group_timeout", a.cfg.GroupTimeout).Dur("reap_interval", a.cfg.ReapInterval).Msg("Group reaper started.")
	return nil
}

// Stop halts the reaper and waits for it to exit.
func (a *Aggregator[K]) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *Aggregator[K]) reaper(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.ExpireGroups(now)
		}
	}
}

func (a *Aggregator[K]) discard(msg *message.Message) {
	if a.cfg.DiscardChannel == nil {
		return
	}
	sent, err := a.cfg.DiscardChannel.Send(msg, channel.NoWait)
	if err != nil || !sent {
		a.logger.Warn().Err(err).Str("msg_id", msg.ID.String()).Str("channel", a.cfg.DiscardChannel.Name()).Msg("Failed to send message to discard channel.")
	}
}
