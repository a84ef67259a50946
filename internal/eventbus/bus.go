// Package eventbus implements the one-way, typed-topic publish/subscribe
// bus that replaces the cyclic references between the cognitive, EIDOS,
// advisory, and promotion stores: a store publishes a topic event after a
// write, and any other component that cares subscribes to it. Back
// references (e.g. promotion looking up an insight) are by key, never by
// holding a pointer back into another store.
package eventbus

import (
	"context"
	"sync"
)

// Topic is one of the closed set of event types the bus carries.
type Topic string

const (
	TopicInsightUpserted   Topic = "InsightUpserted"
	TopicStepSealed        Topic = "StepSealed"
	TopicDistillationCreated Topic = "DistillationCreated"
	TopicAdviceEmitted     Topic = "AdviceEmitted"
)

// Event is a single message on the bus. Payload is one of the model
// package's types (Insight, Step, Distillation, AdviceDecision); consumers
// type-assert it.
type Event struct {
	Topic   Topic
	Payload any
}

// SubscriptionID identifies a registered handler so it can be unsubscribed.
type SubscriptionID uint64

// HandlerFunc processes one bus Event. It must not block for long; the bus
// delivers to a per-subscription buffered channel and drops events rather
// than stall publishers when a subscriber falls behind.
type HandlerFunc func(Event)

const defaultHistorySize = 1000
const subscriberBufferSize = 100

type subscription struct {
	id      SubscriptionID
	topic   Topic // "" means wildcard (all topics)
	ch      chan Event
	done    chan struct{}
}

// Bus is an in-process, typed-topic event bus with bounded per-subscriber
// buffering and a bounded history ring of recent events, returned by
// History(); the /debug/stream websocket observer does not replay it.
type Bus struct {
	mu          sync.RWMutex
	subs        map[SubscriptionID]*subscription
	nextID      SubscriptionID
	history     []Event
	historyMax  int
	wg          sync.WaitGroup
	closeOnce   sync.Once
	closed      chan struct{}
}

// New constructs a Bus with the given bounded history size. A historyMax
// of 0 uses defaultHistorySize.
func New(historyMax int) *Bus {
	if historyMax <= 0 {
		historyMax = defaultHistorySize
	}
	return &Bus{
		subs:       make(map[SubscriptionID]*subscription),
		historyMax: historyMax,
		closed:     make(chan struct{}),
	}
}

// Subscribe registers handler for topic. An empty topic subscribes to all
// topics. The handler runs on its own goroutine, consuming from a bounded
// channel; if the channel is full, new events are dropped for that
// subscriber rather than blocking the publisher.
func (b *Bus) Subscribe(topic Topic, handler HandlerFunc) SubscriptionID {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscription{
		id:    id,
		topic: topic,
		ch:    make(chan Event, subscriberBufferSize),
		done:  make(chan struct{}),
	}
	b.subs[id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case ev := <-sub.ch:
				handler(ev)
			case <-sub.done:
				return
			case <-b.closed:
				return
			}
		}
	}()

	return id
}

// Unsubscribe removes a subscription and stops its goroutine.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// Publish delivers ev to every matching subscriber and appends it to the
// bounded history. Publish never blocks: a full subscriber channel drops
// the event for that subscriber only.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > b.historyMax {
		b.history = b.history[len(b.history)-b.historyMax:]
	}
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic == "" || s.topic == ev.Topic {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			// subscriber saturated; drop rather than block the publisher.
		}
	}
}

// History returns a copy of the bounded event history, oldest first.
func (b *Bus) History() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// Close cancels all subscriber goroutines and waits for them to exit, or
// until ctx is done.
func (b *Bus) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		close(b.closed)
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
