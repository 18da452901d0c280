// Package reactive provides the multicast channels and the small set of
// stream combinators the serial core is built on.
package reactive

import (
	"sync"
	"sync/atomic"
)

// Observer receives the notifications of a Source. Nil callbacks are
// skipped.
type Observer[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

func (o Observer[T]) emit(v T) {
	if o.Next != nil {
		o.Next(v)
	}
}

func (o Observer[T]) fail(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

func (o Observer[T]) finish() {
	if o.Complete != nil {
		o.Complete()
	}
}

// Source is anything that can be observed. Subscribe returns a function
// that detaches the observer; calling it more than once is harmless.
type Source[T any] interface {
	Subscribe(o Observer[T]) (unsubscribe func())
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc[T any] func(o Observer[T]) func()

func (f SourceFunc[T]) Subscribe(o Observer[T]) func() { return f(o) }

type opKind int

const (
	opNext opKind = iota
	opError
	opComplete
	opSubscribe
)

type op[T any] struct {
	kind  opKind
	value T
	err   error
	sub   *subscriber[T]
}

type subscriber[T any] struct {
	obs    Observer[T]
	active atomic.Bool
}

// Subject is a multicast channel. Notifications are delivered
// synchronously, in the order they were pushed, through a per-subject
// queue: a Next issued from inside an observer is queued behind the
// notification being delivered instead of recursing, and a Next issued
// from another goroutine while a delivery is in progress is handed to the
// goroutine already draining the queue.
//
// A replaying subject (see NewReplaySubject) re-delivers its latest value
// to every new subscriber.
type Subject[T any] struct {
	mu       sync.Mutex
	subs     []*subscriber[T]
	queue    []op[T]
	draining bool
	closed   bool
	terminal op[T]

	replay  bool
	last    T
	hasLast bool
}

// NewSubject returns a subject that replays nothing.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

// NewReplaySubject returns a subject that replays its latest value.
func NewReplaySubject[T any]() *Subject[T] {
	return &Subject[T]{replay: true}
}

// Next pushes a value to every current observer.
func (s *Subject[T]) Next(v T) { s.run(op[T]{kind: opNext, value: v}) }

// Error terminates the subject with err.
func (s *Subject[T]) Error(err error) { s.run(op[T]{kind: opError, err: err}) }

// Complete terminates the subject normally.
func (s *Subject[T]) Complete() { s.run(op[T]{kind: opComplete}) }

// Subscribe attaches o. The observer joins the delivery sequence at the
// point the subscription is processed; on a terminated subject it
// receives the replayed value (if any) and the terminal notification.
func (s *Subject[T]) Subscribe(o Observer[T]) func() {
	sub := &subscriber[T]{obs: o}
	sub.active.Store(true)
	s.run(op[T]{kind: opSubscribe, sub: sub})
	return func() { s.remove(sub) }
}

// Closed reports whether a terminal notification has been pushed.
func (s *Subject[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Observed returns the number of attached observers.
func (s *Subject[T]) Observed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if sub.active.Load() {
			n++
		}
	}
	for _, q := range s.queue {
		if q.kind == opSubscribe && q.sub.active.Load() {
			n++
		}
	}
	return n
}

func (s *Subject[T]) remove(sub *subscriber[T]) {
	if !sub.active.Swap(false) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.subs {
		if cur == sub {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *Subject[T]) run(o op[T]) {
	s.mu.Lock()
	s.queue = append(s.queue, o)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	settled := false
	defer func() {
		// An observer panicked mid-delivery; let the next push drain.
		if !settled {
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
		}
	}()

	for {
		if len(s.queue) == 0 {
			s.draining = false
			settled = true
			s.mu.Unlock()
			return
		}
		cur := s.queue[0]
		s.queue[0] = op[T]{}
		s.queue = s.queue[1:]

		var (
			targets  []*subscriber[T]
			replayed bool
			replay   T
			terminal op[T]
		)
		switch cur.kind {
		case opSubscribe:
			if !cur.sub.active.Load() {
				break
			}
			if s.replay && s.hasLast {
				replayed, replay = true, s.last
			}
			if s.closed {
				terminal = s.terminal
				cur.sub.active.Store(false)
			} else {
				s.subs = append(s.subs, cur.sub)
			}
		case opNext:
			if s.closed {
				break
			}
			if s.replay {
				s.last, s.hasLast = cur.value, true
			}
			targets = append(targets, s.subs...)
		case opError, opComplete:
			if s.closed {
				break
			}
			s.closed = true
			s.terminal = cur
			targets = s.subs
			s.subs = nil
		}
		s.mu.Unlock()

		switch cur.kind {
		case opSubscribe:
			if replayed {
				cur.sub.obs.emit(replay)
			}
			deliverTerminal(cur.sub.obs, terminal)
		case opNext:
			for _, sub := range targets {
				if sub.active.Load() {
					sub.obs.emit(cur.value)
				}
			}
		case opError, opComplete:
			for _, sub := range targets {
				if sub.active.Swap(false) {
					deliverTerminal(sub.obs, cur)
				}
			}
		}

		s.mu.Lock()
	}
}

func deliverTerminal[T any](o Observer[T], t op[T]) {
	switch t.kind {
	case opError:
		o.fail(t.err)
	case opComplete:
		o.finish()
	}
}
