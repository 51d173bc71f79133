// Package signal provides observable values with cancellable subscriptions.
package signal

import (
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
)

// Observable is the read-only side of a Signal.
type Observable[T any] interface {
	Get() T
	Subscribe() *Subscription[T]
}

// DefaultBuffer is the per-subscriber buffer size. Slow subscribers lose the
// oldest values first and always end up seeing the latest one.
const DefaultBuffer = 16

// Signal holds a current value and broadcasts every new value to subscribers.
type Signal[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   *hashmap.Map[uint64, *Subscription[T]]
	nextID atomic.Uint64
	buffer int
}

// New creates a Signal holding initial.
func New[T any](initial T) *Signal[T] {
	return &Signal[T]{
		value:  initial,
		subs:   hashmap.New[uint64, *Subscription[T]](),
		buffer: DefaultBuffer,
	}
}

// Get returns the current value.
func (s *Signal[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set stores v and delivers it to every subscriber. Never blocks.
func (s *Signal[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = v
	s.subs.Range(func(_ uint64, sub *Subscription[T]) bool {
		sub.ch.ForceSend(v)
		return true
	})
}

// Subscribe registers a subscriber. The current value is delivered first.
func (s *Signal[T]) Subscribe() *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscription[T]{
		id:     s.nextID.Add(1),
		signal: s,
		ch:     NewRingChannel[T](s.buffer),
	}
	sub.ch.ForceSend(s.value)
	s.subs.Set(sub.id, sub)
	return sub
}

// Subscribers returns the number of live subscriptions.
func (s *Signal[T]) Subscribers() int {
	return s.subs.Len()
}

func (s *Signal[T]) remove(sub *Subscription[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs.Del(sub.id) {
		sub.ch.Close()
	}
}

// Subscription is a handle on a Signal subscriber.
type Subscription[T any] struct {
	id     uint64
	signal *Signal[T]
	ch     *RingChannel[T]
	once   sync.Once
}

// C delivers values in publication order. It is closed by Cancel.
func (sub *Subscription[T]) C() <-chan T {
	return sub.ch.C()
}

// Cancel detaches the subscriber and closes C. Safe to call more than once.
func (sub *Subscription[T]) Cancel() {
	sub.once.Do(func() {
		sub.signal.remove(sub)
	})
}
