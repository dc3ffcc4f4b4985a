// Package stream provides multicast value streams used in place of observables.
//
// A Subject delivers values to subscriber callbacks, one at a time per
// subscriber. Replaying subjects carry state: a subscriber never sees an older
// value after a newer one, and values superseded while a callback was busy may
// be skipped. Plain subjects carry events and deliver every value. Callbacks
// run without the subject's lock held; a callback must not call Next on the
// subject that is delivering to it.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCompleted is returned by First when the stream completes before a
// matching value arrives.
var ErrCompleted = errors.New("stream completed")

// Observable is the read side of a stream.
type Observable[T any] interface {
	Subscribe(fn func(T)) *Subscription
}

// Option configures a Subject.
type Option[T any] func(*Subject[T])

// Replay makes the subject hand its latest value to new subscribers.
func Replay[T any]() Option[T] {
	return func(s *Subject[T]) {
		s.replay = true
	}
}

// Initial seeds the subject with a value. It implies Replay.
func Initial[T any](v T) Option[T] {
	return func(s *Subject[T]) {
		s.replay = true
		s.value = v
		s.hasValue = true
	}
}

// Distinct drops values equal to the last delivered one.
func Distinct[T comparable]() Option[T] {
	return func(s *Subject[T]) {
		s.equal = func(a, b T) bool { return a == b }
	}
}

// DistinctFunc drops values that eq reports equal to the last delivered one.
func DistinctFunc[T any](eq func(a, b T) bool) Option[T] {
	return func(s *Subject[T]) {
		s.equal = eq
	}
}

// Subject is a multicast stream.
type Subject[T any] struct {
	mu       sync.Mutex
	subs     []*subscriber[T]
	value    T
	hasValue bool
	seq      uint64
	replay   bool
	equal    func(a, b T) bool
	done     chan struct{}
	closed   bool
}

type subscriber[T any] struct {
	mu   sync.Mutex
	fn   func(T)
	last uint64
	gone atomic.Bool
}

// deliver hands v to the callback. For replaying subjects a value older than
// the last one delivered is dropped.
func (sub *subscriber[T]) deliver(seq uint64, v T, latestOnly bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.gone.Load() || (latestOnly && seq <= sub.last) {
		return
	}
	sub.last = seq
	sub.fn(v)
}

// NewSubject creates a subject with the given options.
func NewSubject[T any](opts ...Option[T]) *Subject[T] {
	s := &Subject[T]{
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewBehavior creates a subject that always holds a value.
func NewBehavior[T any](initial T, opts ...Option[T]) *Subject[T] {
	return NewSubject(append([]Option[T]{Initial(initial)}, opts...)...)
}

// NewReplay creates a subject that replays its latest value once it has one.
func NewReplay[T any](opts ...Option[T]) *Subject[T] {
	return NewSubject(append([]Option[T]{Replay[T]()}, opts...)...)
}

// Next publishes v to all subscribers.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.equal != nil && s.hasValue && s.equal(s.value, v) {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	s.value = v
	s.hasValue = true
	subs := append([]*subscriber[T](nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(seq, v, s.replay)
	}
}

// Complete ends the stream. Subscribers receive nothing afterwards and Done
// is closed. Calling Complete more than once has no effect.
func (s *Subject[T]) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		sub.detach()
	}
	s.subs = nil
	close(s.done)
}

// Completed reports whether Complete has been called.
func (s *Subject[T]) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed when the stream completes.
func (s *Subject[T]) Done() <-chan struct{} {
	return s.done
}

// Value returns the latest value, if any.
func (s *Subject[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.hasValue
}

// Subscribe registers fn. A replaying subject calls fn with its latest value
// before Subscribe returns.
func (s *Subject[T]) Subscribe(fn func(T)) *Subscription {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &Subscription{}
	}
	sub := &subscriber[T]{fn: fn}
	s.subs = append(s.subs, sub)
	seq, v, replay := s.seq, s.value, s.replay && s.hasValue
	s.mu.Unlock()

	if replay {
		sub.deliver(seq, v, false)
	}

	return &Subscription{cancel: func() { s.remove(sub) }}
}

func (s *Subject[T]) remove(sub *subscriber[T]) {
	s.mu.Lock()
	for i, o := range s.subs {
		if o == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	sub.detach()
}

// detach stops delivery. A callback already running is not waited for.
func (sub *subscriber[T]) detach() {
	sub.gone.Store(true)
}

// Subscription cancels a Subscribe call.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops delivery: no callback starts after it returns. A
// callback running on another goroutine may still be finishing. It is safe
// to call more than once, including from inside the callback.
func (sub *Subscription) Unsubscribe() {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		if sub.cancel != nil {
			sub.cancel()
		}
	})
}

// Group unsubscribes a set of subscriptions together.
type Group struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// Add tracks sub. Adding to a closed group unsubscribes sub immediately.
func (g *Group) Add(sub *Subscription) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
}

// Unsubscribe cancels every tracked subscription and closes the group.
func (g *Group) Unsubscribe() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.closed = true
	g.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// First waits for the first value from obs that satisfies pred.
// A nil pred accepts any value.
func First[T any](ctx context.Context, obs Observable[T], pred func(T) bool) (T, error) {
	found := make(chan T, 1)
	var once sync.Once
	sub := obs.Subscribe(func(v T) {
		if pred == nil || pred(v) {
			once.Do(func() { found <- v })
		}
	})
	defer sub.Unsubscribe()

	var done <-chan struct{}
	if d, ok := obs.(interface{ Done() <-chan struct{} }); ok {
		done = d.Done()
	}

	var zero T
	select {
	case v := <-found:
		return v, nil
	case <-done:
		select {
		case v := <-found:
			return v, nil
		default:
			return zero, ErrCompleted
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
