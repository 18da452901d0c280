package reactive

import (
	"context"
	"sync"
	"time"
)

// IOCommandTimeout is the default deadline for a condition wait.
const IOCommandTimeout = 5 * time.Second

// Predicate reports whether the transition from prev to next satisfies a
// condition.
type Predicate[S any] func(prev, next S) bool

// WaitFor blocks until pred matches a pair of consecutive snapshots on
// changes and returns field of the newer snapshot. The sequence is seeded
// with current as the first "previous" snapshot, so the very first change
// after the call can match.
//
// A timeout is not an error: if nothing matches within timeout, or ctx is
// done first, WaitFor returns fallback.
func WaitFor[S, V any](
	ctx context.Context,
	current S,
	field func(S) V,
	pred Predicate[S],
	fallback V,
	changes Source[S],
	timeout time.Duration,
) V {
	got := make(chan V, 1)
	unsub := WaitForStream(current, field, pred, fallback, changes, timeout).
		Subscribe(Observer[V]{Next: func(v V) { got <- v }})
	defer unsub()

	select {
	case v := <-got:
		return v
	case <-ctx.Done():
		return fallback
	}
}

// WaitForStream is the streaming flavour of WaitFor: the returned source
// emits exactly one value (the matched field or fallback) and completes.
// Nothing happens until it is subscribed.
func WaitForStream[S, V any](
	current S,
	field func(S) V,
	pred Predicate[S],
	fallback V,
	changes Source[S],
	timeout time.Duration,
) Source[V] {
	if timeout <= 0 {
		timeout = IOCommandTimeout
	}
	return SourceFunc[V](func(o Observer[V]) func() {
		w := &waiter[S, V]{out: o, prev: current}
		w.mu.Lock()
		w.timer = time.AfterFunc(timeout, func() { w.settle(fallback, true) })
		w.mu.Unlock()
		unsub := changes.Subscribe(Observer[S]{
			Next: func(next S) {
				// Deliveries from one source never overlap, so prev
				// needs no lock of its own.
				prev := w.prev
				w.prev = next
				if pred(prev, next) {
					w.settle(field(next), true)
				}
			},
		})
		w.attach(unsub)
		return func() { w.settle(fallback, false) }
	})
}

type waiter[S, V any] struct {
	out  Observer[V]
	prev S

	mu      sync.Mutex
	timer   *time.Timer
	settled bool
	unsub   func()
}

func (w *waiter[S, V]) attach(unsub func()) {
	w.mu.Lock()
	if w.settled {
		w.mu.Unlock()
		unsub()
		return
	}
	w.unsub = unsub
	w.mu.Unlock()
}

// settle resolves the wait once; later calls are ignored.
func (w *waiter[S, V]) settle(v V, notify bool) {
	w.mu.Lock()
	if w.settled {
		w.mu.Unlock()
		return
	}
	w.settled = true
	unsub, timer := w.unsub, w.timer
	w.unsub = nil
	w.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if unsub != nil {
		unsub()
	}
	if notify {
		w.out.emit(v)
		w.out.finish()
	}
}
