// Package broadcast implements the multi-subscriber publish point used by
// the reactive store.
//
// A [Channel] fans every published value out to all currently attached
// subscribers. Emissions carry a per-channel sequence number assigned under
// the channel lock, so all subscribers observe one consistent total order.
// Each [Subscriber] owns an unbounded FIFO of pending emissions, so a slow
// consumer never blocks publishers or other subscribers.
package broadcast

import (
	"sync"

	"github.com/eapache/queue"
)

// Message pairs an emission with its position in the channel's total order.
//
// Sequence numbers start at 1 and increase by 1 per publish. A subscriber
// attached when the channel's sequence was N receives only messages with
// Seq > N.
type Message[T any] struct {
	// Seq is the emission's position in the channel's total order.
	Seq uint64

	// Value is the published value.
	Value T
}

// Channel is a multi-subscriber broadcast point.
//
// Every attached [Subscriber] receives every emission from the moment of
// attachment onward. Channel is safe for concurrent use: concurrent
// publishers are serialized by the channel lock, which is held only while
// enqueueing (never while a consumer drains), so publishing is non-blocking
// regardless of consumer speed.
type Channel[T any] struct {
	mu   sync.Mutex
	seq  uint64
	subs map[*Subscriber[T]]struct{}
}

// NewChannel creates an empty broadcast [Channel].
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{
		subs: make(map[*Subscriber[T]]struct{}),
	}
}

// Publish sends value to every attached subscriber and returns the sequence
// number assigned to the emission.
//
// Publish never blocks on consumers: it only appends to each subscriber's
// pending queue. Concurrent publishers are serialized; all subscribers see
// emissions in the same order.
func (c *Channel[T]) Publish(value T) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	m := Message[T]{Seq: c.seq, Value: value}
	for s := range c.subs {
		s.enqueue(m)
	}
	return c.seq
}

// Seq returns the sequence number of the most recent emission, or 0 if
// nothing has been published yet.
func (c *Channel[T]) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Subscribe attaches a new [Subscriber] to the channel.
//
// The subscriber receives every emission published after attachment.
// Call [Subscriber.Close] to detach; closing does not affect the channel
// or other subscribers.
func (c *Channel[T]) Subscribe() *Subscriber[T] {
	s := &Subscriber[T]{
		channel: c,
		pending: queue.New(),
	}
	s.cond = sync.NewCond(&s.mu)

	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	return s
}

// remove detaches a subscriber from the fan-out set.
func (c *Channel[T]) remove(s *Subscriber[T]) {
	c.mu.Lock()
	delete(c.subs, s)
	c.mu.Unlock()
}

// Subscribers returns the number of currently attached subscribers.
func (c *Channel[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Subscriber is a single attachment to a [Channel].
//
// Pending emissions are buffered in an unbounded FIFO; [Subscriber.Next]
// pops them in publish order. A Subscriber is intended to be drained by one
// consumer goroutine.
type Subscriber[T any] struct {
	channel *Channel[T]

	mu      sync.Mutex
	cond    *sync.Cond
	pending *queue.Queue // of Message[T]
	closed  bool
}

// enqueue appends a message to the pending queue and wakes the consumer.
// Called with the channel lock held; takes only the subscriber lock, so it
// never blocks on the consumer.
func (s *Subscriber[T]) enqueue(m Message[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.pending.Add(m)
	s.cond.Signal()
}

// Next blocks until an emission is available or the subscriber is closed.
//
// Messages are returned in publish order. After [Subscriber.Close], Next
// drains any remaining pending messages, then returns ok=false.
func (s *Subscriber[T]) Next() (Message[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.pending.Length() == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.pending.Length() == 0 {
		return Message[T]{}, false
	}
	return s.pending.Remove().(Message[T]), true
}

// Close detaches the subscriber from its channel.
//
// After Close, no further emissions are enqueued and a consumer blocked in
// [Subscriber.Next] is released. Close is idempotent and does not affect
// other subscribers.
func (s *Subscriber[T]) Close() {
	s.channel.remove(s)

	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
