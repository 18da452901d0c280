package reactive

import (
	"sync"
	"time"
)

// RetryDelay decides whether the attempt-th failure (counting from 1) of
// a source is retried, and after how long.
type RetryDelay func(err error, attempt int) (time.Duration, bool)

// Retry resubscribes to src when it errors, as long as delay allows it.
// Values from every attempt are forwarded; the last error is forwarded
// once delay gives up.
func Retry[T any](src Source[T], delay RetryDelay) Source[T] {
	return SourceFunc[T](func(o Observer[T]) func() {
		r := &retrier[T]{src: src, delay: delay, out: newSerial(o)}
		r.out.td.add(r.stop)
		r.subscribe()
		return r.out.cancel
	})
}

type retrier[T any] struct {
	src   Source[T]
	delay RetryDelay
	out   *serial[T]

	mu      sync.Mutex
	attempt int
	unsub   func()
	timer   *time.Timer
	stopped bool
}

func (r *retrier[T]) subscribe() {
	unsub := r.src.Subscribe(Observer[T]{
		Next:     r.out.next,
		Error:    r.fail,
		Complete: r.out.complete,
	})
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		unsub()
		return
	}
	r.unsub = unsub
	r.mu.Unlock()
}

func (r *retrier[T]) fail(err error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.attempt++
	d, ok := r.delay(err, r.attempt)
	if !ok {
		r.mu.Unlock()
		r.out.error(err)
		return
	}
	r.unsub = nil
	r.timer = time.AfterFunc(d, r.subscribe)
	r.mu.Unlock()
}

func (r *retrier[T]) stop() {
	r.mu.Lock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
	unsub := r.unsub
	r.unsub = nil
	r.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
