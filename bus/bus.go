package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

const (
	// DefaultHistoryCap is the history size that triggers compaction.
	DefaultHistoryCap = 1000
	// DefaultHistoryKeep is how many recent envelopes survive compaction.
	DefaultHistoryKeep = 500
)

// Handler consumes a delivered envelope. Returned errors are logged and
// counted but never fail the publish.
type Handler func(ctx context.Context, env Envelope) error

// Subscription identifies a registered handler.
type Subscription struct {
	id        string
	eventType EventType
}

// ID returns the subscription token.
func (s Subscription) ID() string { return s.id }

// EventType returns the event type the subscription listens to.
func (s Subscription) EventType() EventType { return s.eventType }

// SubscribeOption customizes a subscription.
type SubscribeOption func(*subscriber)

// WithAgent names the subscribing agent. Unicast envelopes are only
// delivered to the matching agent.
func WithAgent(name string) SubscribeOption {
	return func(s *subscriber) { s.agent = name }
}

// WithGroup places the subscriber in a group for multicast delivery.
func WithGroup(group string) SubscribeOption {
	return func(s *subscriber) { s.group = group }
}

type subscriber struct {
	id      string
	agent   string
	group   string
	handler Handler
}

func (s *subscriber) accepts(env Envelope) bool {
	if env.TargetAgent != "" && env.TargetAgent != s.agent {
		return false
	}
	if env.TargetGroup != "" && env.TargetGroup != s.group {
		return false
	}
	return true
}

// Observer receives bus counters. *metrics.Metrics satisfies it.
type Observer interface {
	EnvelopePublished(eventType string)
	EnvelopeDelivered(eventType string)
	EnvelopeExpired(eventType string)
	HandlerFailed(eventType string)
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published     int
	Delivered     int
	Expired       int
	HandlerErrors int
	Unrouted      int
	ByEventType   map[EventType]int
	HistorySize   int
	Subscriptions int
}

// Options configures a Bus.
type Options struct {
	HistoryCap  int
	HistoryKeep int
	Logger      logging.Logger
	Observer    Observer
	// Now is the clock used for expiry checks.
	Now func() time.Time
}

// Bus is an in-process publish/subscribe router for envelopes.
type Bus struct {
	opts Options

	mu          sync.RWMutex
	subscribers map[EventType][]*subscriber
	history     []Envelope
	stats       Stats
}

// New creates a Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{
		HistoryCap:  DefaultHistoryCap,
		HistoryKeep: DefaultHistoryKeep,
		Logger:      logging.NoOpLogger{},
		Now:         time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = DefaultHistoryCap
	}
	if opts.HistoryKeep <= 0 || opts.HistoryKeep > opts.HistoryCap {
		opts.HistoryKeep = opts.HistoryCap / 2
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Bus{
		opts:        opts,
		subscribers: make(map[EventType][]*subscriber),
		stats:       Stats{ByEventType: make(map[EventType]int)},
	}
}

// Subscribe registers handler for eventType and returns a token for Unsubscribe.
func (b *Bus) Subscribe(eventType EventType, handler Handler, opts ...SubscribeOption) Subscription {
	s := &subscriber{id: core.NewID(), handler: handler}
	for _, o := range opts {
		o(s)
	}
	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], s)
	b.mu.Unlock()
	return Subscription{id: s.id, eventType: eventType}
}

// Unsubscribe removes the subscription. It reports whether it was registered.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[sub.eventType]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscribers[sub.eventType] = append(subs[:i:i], subs[i+1:]...)
			if len(b.subscribers[sub.eventType]) == 0 {
				delete(b.subscribers, sub.eventType)
			}
			return true
		}
	}
	return false
}

// Publish validates env, records it in history and delivers it to every
// matching subscriber in registration order. Handler errors and panics are
// isolated. The returned error only reflects envelope problems.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	if env.Expired(b.opts.Now()) {
		b.mu.Lock()
		b.stats.Expired++
		b.mu.Unlock()
		b.observe(func(o Observer) { o.EnvelopeExpired(string(env.EventType)) })
		return fmt.Errorf("%w: %s", ErrEnvelopeExpired, env.ID)
	}
	env = env.clone()

	b.mu.Lock()
	b.history = append(b.history, env)
	if len(b.history) > b.opts.HistoryCap {
		keep := make([]Envelope, b.opts.HistoryKeep)
		copy(keep, b.history[len(b.history)-b.opts.HistoryKeep:])
		b.history = keep
	}
	b.stats.Published++
	b.stats.ByEventType[env.EventType]++
	subs := append([]*subscriber(nil), b.subscribers[env.EventType]...)
	b.mu.Unlock()
	b.observe(func(o Observer) { o.EnvelopePublished(string(env.EventType)) })

	delivered := 0
	for _, s := range subs {
		if !s.accepts(env) {
			continue
		}
		if env.Expired(b.opts.Now()) {
			b.mu.Lock()
			b.stats.Expired++
			b.mu.Unlock()
			b.observe(func(o Observer) { o.EnvelopeExpired(string(env.EventType)) })
			break
		}
		delivered++
		if err := b.deliver(ctx, s, env); err != nil {
			b.opts.Logger.Warn("bus handler failed", "event_type", env.EventType, "envelope_id", env.ID, "subscription", s.id, "error", err)
			b.mu.Lock()
			b.stats.HandlerErrors++
			b.mu.Unlock()
			b.observe(func(o Observer) { o.HandlerFailed(string(env.EventType)) })
		}
	}

	b.mu.Lock()
	b.stats.Delivered += delivered
	if delivered == 0 {
		b.stats.Unrouted++
	}
	b.mu.Unlock()
	for i := 0; i < delivered; i++ {
		b.observe(func(o Observer) { o.EnvelopeDelivered(string(env.EventType)) })
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, s *subscriber, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, env.clone())
}

// Request publishes env and waits for the first envelope of replyType whose
// CorrelationID is env.ID. It returns ctx.Err() if no reply arrives in time.
func (b *Bus) Request(ctx context.Context, env Envelope, replyType EventType) (Envelope, error) {
	if env.Pattern == "" || env.Pattern == PatternBroadcast {
		env.Pattern = PatternRequestResponse
	}
	replies := make(chan Envelope, 1)
	sub := b.Subscribe(replyType, func(_ context.Context, r Envelope) error {
		if r.CorrelationID != env.ID {
			return nil
		}
		select {
		case replies <- r:
		default:
		}
		return nil
	}, WithAgent(env.SourceAgent))
	defer b.Unsubscribe(sub)

	if err := b.Publish(ctx, env); err != nil {
		return Envelope{}, err
	}
	select {
	case r := <-replies:
		return r, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// History returns a copy of the retained envelopes, oldest first.
func (b *Bus) History() []Envelope {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Envelope, len(b.history))
	copy(out, b.history)
	return out
}

// Correlated returns retained envelopes belonging to a correlation chain.
func (b *Bus) Correlated(correlationID string) []Envelope {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Envelope
	for _, e := range b.history {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.stats
	s.ByEventType = make(map[EventType]int, len(b.stats.ByEventType))
	for k, v := range b.stats.ByEventType {
		s.ByEventType[k] = v
	}
	s.HistorySize = len(b.history)
	for _, subs := range b.subscribers {
		s.Subscriptions += len(subs)
	}
	return s
}

func (b *Bus) observe(fn func(Observer)) {
	if b.opts.Observer != nil {
		fn(b.opts.Observer)
	}
}
