// Package bus is the ordered, per-run fan-out event bus (spec.md C1). It
// carries the wire-shape events described in spec.md §4.1 and §6 to zero or
// more subscribers in insertion order, with no deduplication.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Event is the frame shape delivered to subscribers and, ultimately, to the
// stream multiplexer: {event, completion_id, agent_execution_id, seq, data}.
// Seq is allocated by the persistence gateway (store.Store.NextSeq) before
// Publish is called, so assignment order equals emission order (spec.md §5).
type Event struct {
	Type             string
	CompletionID     string
	AgentExecutionID string
	Seq              int
	Data             any
	At               time.Time
}

type (
	// Bus publishes orchestration events to registered subscribers in a
	// synchronous fan-out. Publish delivers to every current subscriber in
	// registration order and stops at the first subscriber error, so a
	// fatal subscriber (e.g. a persistence sink) can halt delivery.
	Bus interface {
		Publish(ctx context.Context, event Event) error
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber receives published events until its Subscription is closed.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a plain function to Subscriber.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription represents one active registration; Close is idempotent.
	Subscription interface {
		Close() error
	}
)

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

type bus struct {
	mu          sync.RWMutex
	subscribers map[*subscription]Subscriber
	order       []*subscription // registration order
}

type subscription struct {
	bus  *bus
	once sync.Once
}

// New constructs an empty, ready-to-use event bus.
func New() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.order))
	for _, s := range b.order {
		subs = append(subs, b.subscribers[s])
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.order = append(b.order, s)
	b.mu.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		for i, o := range s.bus.order {
			if o == s {
				s.bus.order = append(s.bus.order[:i:i], s.bus.order[i+1:]...)
				break
			}
		}
		s.bus.mu.Unlock()
	})
	return nil
}
