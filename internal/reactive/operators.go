package reactive

import (
	"sync"
	"sync/atomic"
)

// teardown collects unsubscribe functions and runs them once. Functions
// added after it ran are invoked immediately.
type teardown struct {
	mu   sync.Mutex
	fns  []func()
	done bool
}

func (t *teardown) add(f func()) {
	if f == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		f()
		return
	}
	t.fns = append(t.fns, f)
	t.mu.Unlock()
}

func (t *teardown) run() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	fns := t.fns
	t.fns = nil
	t.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

// serial funnels notifications from several upstreams into a single
// observer, one at a time and in arrival order. Everything that arrives
// after the first terminal notification is dropped, which is what makes
// take-until cut a stream exactly at the notifier's event.
type serial[T any] struct {
	mu       sync.Mutex
	out      Observer[T]
	queue    []op[T]
	draining bool
	done     bool
	td       teardown
}

func newSerial[T any](out Observer[T]) *serial[T] {
	return &serial[T]{out: out}
}

func (s *serial[T]) next(v T)        { s.push(op[T]{kind: opNext, value: v}) }
func (s *serial[T]) error(err error) { s.push(op[T]{kind: opError, err: err}) }
func (s *serial[T]) complete()       { s.push(op[T]{kind: opComplete}) }

// cancel detaches the downstream observer without notifying it.
func (s *serial[T]) cancel() {
	s.mu.Lock()
	s.done = true
	s.queue = nil
	s.mu.Unlock()
	s.td.run()
}

func (s *serial[T]) push(e op[T]) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	if e.kind != opNext {
		s.done = true
	}
	s.queue = append(s.queue, e)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		cur := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if cur.kind == opNext {
			s.out.emit(cur.value)
		} else {
			s.td.run()
			deliverTerminal(s.out, cur)
		}

		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

// Filter forwards the values for which keep returns true.
func Filter[T any](src Source[T], keep func(T) bool) Source[T] {
	return SourceFunc[T](func(o Observer[T]) func() {
		return src.Subscribe(Observer[T]{
			Next: func(v T) {
				if keep(v) {
					o.emit(v)
				}
			},
			Error:    o.fail,
			Complete: o.finish,
		})
	})
}

// Map transforms every value with fn.
func Map[T, U any](src Source[T], fn func(T) U) Source[U] {
	return SourceFunc[U](func(o Observer[U]) func() {
		return src.Subscribe(Observer[T]{
			Next:     func(v T) { o.emit(fn(v)) },
			Error:    o.fail,
			Complete: o.finish,
		})
	})
}

// Merge interleaves the sources. It completes once all of them have
// completed and errors as soon as one of them errors.
func Merge[T any](srcs ...Source[T]) Source[T] {
	return SourceFunc[T](func(o Observer[T]) func() {
		s := newSerial(o)
		remaining := int32(len(srcs))
		if remaining == 0 {
			s.complete()
			return s.cancel
		}
		for _, src := range srcs {
			s.td.add(src.Subscribe(Observer[T]{
				Next:  s.next,
				Error: s.error,
				Complete: func() {
					if atomic.AddInt32(&remaining, -1) == 0 {
						s.complete()
					}
				},
			}))
		}
		return s.cancel
	})
}

// TakeUntil mirrors src until notifier emits its first value, then
// completes.
func TakeUntil[T, N any](src Source[T], notifier Source[N]) Source[T] {
	return SourceFunc[T](func(o Observer[T]) func() {
		s := newSerial(o)
		s.td.add(notifier.Subscribe(Observer[N]{
			Next:  func(N) { s.complete() },
			Error: s.error,
		}))
		s.td.add(src.Subscribe(Observer[T]{
			Next:     s.next,
			Error:    s.error,
			Complete: s.complete,
		}))
		return s.cancel
	})
}

// ThrowOn emits no values; it errors with mk(n) on the first value n of
// notifier and completes if notifier completes first.
func ThrowOn[T, N any](notifier Source[N], mk func(N) error) Source[T] {
	return SourceFunc[T](func(o Observer[T]) func() {
		s := newSerial(o)
		s.td.add(notifier.Subscribe(Observer[N]{
			Next:     func(n N) { s.error(mk(n)) },
			Error:    s.error,
			Complete: s.complete,
		}))
		return s.cancel
	})
}

// StartWith emits vals before subscribing to src.
func StartWith[T any](src Source[T], vals ...T) Source[T] {
	return SourceFunc[T](func(o Observer[T]) func() {
		for _, v := range vals {
			o.emit(v)
		}
		return src.Subscribe(o)
	})
}

// FlatMap subscribes to fn(v) for every value v of src and merges the
// results. It completes when src and every inner source have completed.
func FlatMap[T, U any](src Source[T], fn func(T) Source[U]) Source[U] {
	return SourceFunc[U](func(o Observer[U]) func() {
		s := newSerial(o)
		active := int32(1)
		done := func() {
			if atomic.AddInt32(&active, -1) == 0 {
				s.complete()
			}
		}
		s.td.add(src.Subscribe(Observer[T]{
			Next: func(v T) {
				atomic.AddInt32(&active, 1)
				s.td.add(fn(v).Subscribe(Observer[U]{
					Next:     s.next,
					Error:    s.error,
					Complete: done,
				}))
			},
			Error:    s.error,
			Complete: done,
		}))
		return s.cancel
	})
}

// Defer builds the source at subscription time.
func Defer[T any](build func() Source[T]) Source[T] {
	return SourceFunc[T](func(o Observer[T]) func() {
		return build().Subscribe(o)
	})
}

// Throw returns a source that errors immediately with err.
func Throw[T any](err error) Source[T] {
	return SourceFunc[T](func(o Observer[T]) func() {
		o.fail(err)
		return func() {}
	})
}

// Of returns a source that emits vals and completes.
func Of[T any](vals ...T) Source[T] {
	return SourceFunc[T](func(o Observer[T]) func() {
		for _, v := range vals {
			o.emit(v)
		}
		o.finish()
		return func() {}
	})
}

// Notification is one item read from a Chan.
type Notification[T any] struct {
	Value T
	Err   error
}

// Chan subscribes to src and exposes its values on a channel. The channel
// is closed after the terminal notification; an error is delivered as a
// final Notification with Err set. Deliveries block until read, so a slow
// reader applies back-pressure to the source. The returned stop function
// detaches from src and unblocks a pending delivery.
func Chan[T any](src Source[T], buffer int) (<-chan Notification[T], func()) {
	ch := make(chan Notification[T], buffer)
	quit := make(chan struct{})
	var once sync.Once
	send := func(n Notification[T]) bool {
		select {
		case ch <- n:
			return true
		case <-quit:
			return false
		}
	}
	unsub := src.Subscribe(Observer[T]{
		Next: func(v T) { send(Notification[T]{Value: v}) },
		Error: func(err error) {
			if send(Notification[T]{Err: err}) {
				close(ch)
			}
		},
		Complete: func() {
			select {
			case <-quit:
			default:
				close(ch)
			}
		},
	})
	return ch, func() {
		once.Do(func() {
			close(quit)
			unsub()
		})
	}
}
