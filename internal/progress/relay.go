// Package progress bridges worker-emitted lifecycle events to live client
// streams. Publishing is fire-and-forget: no subscriber, no delivery, no
// history. The Relay interface keeps the transport pluggable so a multi-node
// deployment can swap the in-process registry for a shared pub/sub channel.
package progress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event kinds delivered on a task's stream.
const (
	KindPing     = "ping"
	KindProgress = "progress"
	KindComplete = "complete"
	KindError    = "error"
)

// Event is one typed notification on a task's stream.
type Event struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}

// Relay is the publish/subscribe bridge between workers and streams.
type Relay interface {
	// Subscribe registers a sink for the task's events. The caller drains
	// Events() until closed and must call Close when done.
	Subscribe(taskID uuid.UUID) (*Subscription, error)
	// Publish delivers an event to the task's current subscribers, if any.
	// Events published with no subscriber are dropped.
	Publish(ctx context.Context, taskID uuid.UUID, ev Event) error
}

// subscriptionBuffer bounds how far a slow consumer may lag before events
// are dropped on the floor rather than blocking the publisher.
const subscriptionBuffer = 16

// Subscription is one open sink, scoped to one client connection.
type Subscription struct {
	taskID  uuid.UUID
	ch      chan Event
	once    sync.Once
	closeFn func(*Subscription)
}

// Events returns the subscription's event channel. It is closed once the
// subscription ends.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close removes the subscription; no further events are delivered.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.closeFn(s) })
}

// MemoryRelay is the single-node Relay: an in-process registry of
// subscriptions keyed by task id. Multiple subscribers per task are
// supported even though one is the expected case.
type MemoryRelay struct {
	mu   sync.Mutex
	subs map[uuid.UUID][]*Subscription
}

func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{subs: make(map[uuid.UUID][]*Subscription)}
}

var _ Relay = (*MemoryRelay)(nil)

func (r *MemoryRelay) Subscribe(taskID uuid.UUID) (*Subscription, error) {
	sub := &Subscription{
		taskID:  taskID,
		ch:      make(chan Event, subscriptionBuffer),
		closeFn: r.remove,
	}
	r.mu.Lock()
	r.subs[taskID] = append(r.subs[taskID], sub)
	r.mu.Unlock()
	return sub, nil
}

func (r *MemoryRelay) Publish(_ context.Context, taskID uuid.UUID, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs[taskID] {
		select {
		case sub.ch <- ev:
		default:
			// Slow consumer: drop rather than block the worker.
		}
	}
	return nil
}

func (r *MemoryRelay) remove(sub *Subscription) {
	r.mu.Lock()
	list := r.subs[sub.taskID]
	for i, s := range list {
		if s == sub {
			r.subs[sub.taskID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.subs[sub.taskID]) == 0 {
		delete(r.subs, sub.taskID)
	}
	r.mu.Unlock()
	close(sub.ch)
}

// subscriberCount is used by tests to assert cleanup.
func (r *MemoryRelay) subscriberCount(taskID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[taskID])
}
