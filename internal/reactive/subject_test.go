package reactive

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder[T any] struct {
	values   []T
	err      error
	complete bool
}

func (r *recorder[T]) observer() Observer[T] {
	return Observer[T]{
		Next:     func(v T) { r.values = append(r.values, v) },
		Error:    func(err error) { r.err = err },
		Complete: func() { r.complete = true },
	}
}

func TestSubjectDeliversInOrderToAllObservers(t *testing.T) {
	s := NewSubject[int]()
	var a, b recorder[int]
	s.Subscribe(a.observer())
	s.Subscribe(b.observer())

	s.Next(1)
	s.Next(2)
	s.Complete()

	if diff := cmp.Diff([]int{1, 2}, a.values); diff != "" {
		t.Fatalf("observer a (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2}, b.values); diff != "" {
		t.Fatalf("observer b (-want +got):\n%s", diff)
	}
	assert.True(t, a.complete)
	assert.True(t, b.complete)
	assert.True(t, s.Closed())
}

func TestSubjectUnsubscribeStopsDelivery(t *testing.T) {
	s := NewSubject[string]()
	var r recorder[string]
	unsub := s.Subscribe(r.observer())

	s.Next("a")
	unsub()
	unsub()
	s.Next("b")

	assert.Equal(t, []string{"a"}, r.values)
	assert.Equal(t, 0, s.Observed())
}

func TestSubjectReentrantNextIsQueued(t *testing.T) {
	s := NewSubject[int]()
	var seen []int
	s.Subscribe(Observer[int]{Next: func(v int) {
		seen = append(seen, v)
		if v == 1 {
			s.Next(3)
		}
	}})
	s.Subscribe(Observer[int]{Next: func(v int) { seen = append(seen, v*10) }})

	s.Next(1)
	s.Next(2)

	// 3 is delivered to both observers after 1 finished, before 2.
	assert.Equal(t, []int{1, 10, 3, 30, 2, 20}, seen)
}

func TestSubjectIgnoresNotificationsAfterTerminal(t *testing.T) {
	s := NewSubject[int]()
	var r recorder[int]
	s.Subscribe(r.observer())

	boom := errors.New("boom")
	s.Error(boom)
	s.Next(1)
	s.Complete()

	assert.Empty(t, r.values)
	assert.ErrorIs(t, r.err, boom)
	assert.False(t, r.complete)
}

func TestReplaySubjectReplaysLatest(t *testing.T) {
	s := NewReplaySubject[string]()
	s.Next("a")
	s.Next("b")

	var late recorder[string]
	s.Subscribe(late.observer())
	s.Next("c")

	assert.Equal(t, []string{"b", "c"}, late.values)

	s.Complete()
	var afterClose recorder[string]
	s.Subscribe(afterClose.observer())
	assert.Equal(t, []string{"c"}, afterClose.values)
	assert.True(t, afterClose.complete)
}

func TestPlainSubjectLateSubscriberGetsOnlyTerminal(t *testing.T) {
	s := NewSubject[int]()
	s.Next(1)
	s.Complete()

	var r recorder[int]
	s.Subscribe(r.observer())
	assert.Empty(t, r.values)
	assert.True(t, r.complete)
}

func TestChanClosesAfterError(t *testing.T) {
	s := NewSubject[int]()
	ch, stop := Chan[int](s, 4)
	defer stop()

	boom := errors.New("boom")
	s.Next(7)
	s.Error(boom)

	n := <-ch
	require.NoError(t, n.Err)
	assert.Equal(t, 7, n.Value)
	n = <-ch
	assert.ErrorIs(t, n.Err, boom)
	_, ok := <-ch
	assert.False(t, ok)
}
