package reactive

import (
	"context"
	"errors"
)

// ErrNoValue is returned by Await when a source completes empty.
var ErrNoValue = errors.New("source completed without a value")

// Await subscribes to src and blocks until its first value, its terminal
// notification, or ctx is done, whichever comes first. The subscription
// is released before Await returns.
func Await[T any](ctx context.Context, src Source[T]) (T, error) {
	type result struct {
		v   T
		err error
	}
	got := make(chan result, 1)
	offer := func(r result) {
		select {
		case got <- r:
		default:
		}
	}
	unsub := src.Subscribe(Observer[T]{
		Next:     func(v T) { offer(result{v: v}) },
		Error:    func(err error) { offer(result{err: err}) },
		Complete: func() { offer(result{err: ErrNoValue}) },
	})
	defer unsub()

	select {
	case r := <-got:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
