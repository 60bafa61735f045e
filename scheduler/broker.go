package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xraph/cronsync"
)

// DefaultBufferSize is the default per-subscription event buffer.
const DefaultBufferSize = 256

// Broker fans schedule lifecycle events out to subscriptions. Delivery
// is non-blocking: a subscription whose buffer is full drops the event
// and the broker counts the drop, so one slow consumer never stalls the
// scheduler.
type Broker struct {
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscription

	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	bufferSize int
	closed     atomic.Bool
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscription event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithBrokerLogger sets the broker's logger.
func WithBrokerLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) { b.logger = logger }
}

// NewBroker creates an in-process event broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		logger:     slog.Default(),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscription under subscriberID. Subscribing
// the same id twice replaces (and closes) the previous subscription.
func (b *Broker) Subscribe(subscriberID string) (*Subscription, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("cronsync/scheduler: subscribe %q: %w", subscriberID, cronsync.ErrBrokerClosed)
	}
	sub := newSubscription(subscriberID, b.bufferSize)
	if prev, loaded := b.subscribers.Swap(subscriberID, sub); loaded {
		prev.(*Subscription).Close()
	}
	return sub, nil
}

// Unsubscribe removes and closes the subscription with the given id.
func (b *Broker) Unsubscribe(subscriberID string) {
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscription).Close()
	}
}

// Publish delivers evt to every live subscription.
func (b *Broker) Publish(evt Event) error {
	if b.closed.Load() {
		return fmt.Errorf("cronsync/scheduler: publish: %w", cronsync.ErrBrokerClosed)
	}
	b.subscribers.Range(func(_, value any) bool {
		sub := value.(*Subscription)
		if sub.send(evt) {
			b.totalPublished.Add(1)
		} else {
			b.totalDropped.Add(1)
			b.logger.Warn("dropped schedule event",
				slog.String("subscriber", sub.ID()),
				slog.String("cron_id", evt.ScheduleID().String()),
			)
		}
		return true
	})
	return nil
}

// Stats returns broker counters.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker counters.
type BrokerStats struct {
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Close shuts the broker down and closes every subscription. Safe to
// call multiple times.
func (b *Broker) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.subscribers.Range(func(key, value any) bool {
		value.(*Subscription).Close()
		b.subscribers.Delete(key)
		return true
	})
}

// Subscription receives lifecycle events from a Broker on a buffered
// channel.
type Subscription struct {
	id string
	ch chan Event

	// mu serializes send and Close so a send can never hit a channel
	// that Close has already closed. Sends are non-blocking, so the
	// critical section never waits on the consumer.
	mu     sync.Mutex
	closed bool
}

func newSubscription(id string, bufferSize int) *Subscription {
	return &Subscription{
		id: id,
		ch: make(chan Event, bufferSize),
	}
}

// ID returns the subscriber identifier.
func (s *Subscription) ID() string { return s.id }

// C returns the read-only event channel. The channel is closed when the
// subscription closes; consumers should range over it.
func (s *Subscription) C() <-chan Event { return s.ch }

// send attempts a non-blocking delivery. Returns false when the event
// was dropped (closed subscription or full buffer).
func (s *Subscription) send(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// Close closes the subscription channel. Safe to call multiple times,
// and safe to race with in-flight publishes.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
