package flowcache

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/flowcache/flowcache/internal/broadcast"
)

// Subscription is a live stream of emissions from a [Store].
//
// The first value received on [Subscription.C] is the snapshot taken at
// subscription time; every later value is a live emission, delivered in
// publish order. Delivery happens on a dedicated goroutine, so a slow
// consumer never stalls writers or other subscribers.
//
// Call [Subscription.Unsubscribe] when done to release the delivery
// goroutine; afterwards C is closed and no further emissions arrive.
// Values already buffered in C at that point remain readable until drained.
type Subscription[T any] struct {
	id   string
	sub  *broadcast.Subscriber[T]
	out  chan T
	done chan struct{}
	once sync.Once
}

// newSubscription wires a broadcast subscriber into a snapshot-then-tail
// stream. snapshotSeq is the channel sequence observed when the snapshot
// was read: queued emissions at or below it are already reflected in the
// snapshot and are dropped so the stream never regresses.
func newSubscription[T any](sub *broadcast.Subscriber[T], snapshot T, snapshotSeq uint64, buffer int, logger *slog.Logger) *Subscription[T] {
	s := &Subscription[T]{
		id:   uuid.NewString(),
		sub:  sub,
		out:  make(chan T, buffer),
		done: make(chan struct{}),
	}
	go s.forward(snapshot, snapshotSeq, logger)
	return s
}

// C returns the channel emissions are delivered on.
//
// C is closed after [Subscription.Unsubscribe].
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// ID returns the subscription's unique identifier, useful for correlating
// log lines about one consumer.
func (s *Subscription[T]) ID() string {
	return s.id
}

// Unsubscribe detaches from the underlying stream and closes [Subscription.C].
//
// Unsubscribe is idempotent and safe to call concurrently with delivery.
// It does not remove or invalidate the underlying channel for other
// subscribers.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.sub.Close()
	})
}

// forward delivers the snapshot, then tails live emissions.
func (s *Subscription[T]) forward(snapshot T, snapshotSeq uint64, logger *slog.Logger) {
	defer close(s.out)

	if !s.deliver(snapshot) {
		return
	}

	for {
		m, ok := s.sub.Next()
		if !ok {
			logger.Debug("subscription closed", "subscription_id", s.id)
			return
		}
		if m.Seq <= snapshotSeq {
			// already reflected in the snapshot
			continue
		}
		if !s.deliver(m.Value) {
			return
		}
	}
}

// deliver sends one value to the consumer, aborting on unsubscribe.
func (s *Subscription[T]) deliver(v T) bool {
	select {
	case s.out <- v:
		return true
	case <-s.done:
		return false
	}
}
