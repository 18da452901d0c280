package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckleypaul/cloudeditor/internal/monitor"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
	"github.com/buckleypaul/cloudeditor/internal/status"
)

const port = "/dev/ttyACM0"

// fakeAgent hands out one subject per Open call so tests can drive each
// attempt.
type fakeAgent struct {
	mu       sync.Mutex
	opens    []*reactive.Subject[monitor.Event]
	openErrs []error
	closed   []string
	closeErr error
	sent     []string
}

func (f *fakeAgent) Open(string, int) reactive.Source[monitor.Event] {
	return reactive.Defer(func() reactive.Source[monitor.Event] {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.openErrs) > 0 {
			err := f.openErrs[0]
			f.openErrs = f.openErrs[1:]
			return reactive.Throw[monitor.Event](err)
		}
		sub := reactive.NewSubject[monitor.Event]()
		f.opens = append(f.opens, sub)
		return sub
	})
}

func (f *fakeAgent) Close(p string) reactive.Source[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, p)
	if f.closeErr != nil {
		return reactive.Throw[string](f.closeErr)
	}
	return reactive.Of(p)
}

func (f *fakeAgent) Send(p, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeAgent) stream(i int) *reactive.Subject[monitor.Event] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[i]
}

func collect(src reactive.Source[monitor.Event]) (*[]monitor.Event, *error, *bool) {
	var (
		events []monitor.Event
		err    error
		done   bool
	)
	src.Subscribe(reactive.Observer[monitor.Event]{
		Next:     func(ev monitor.Event) { events = append(events, ev) },
		Error:    func(e error) { err = e },
		Complete: func() { done = true },
	})
	return &events, &err, &done
}

func TestGetOnlyWhileStreaming(t *testing.T) {
	svc := New(&fakeAgent{}, nil)
	assert.Nil(t, svc.Get(status.Paused, port, 9600, nil))
	assert.Nil(t, svc.Get(status.Active, "", 9600, nil))
	assert.Nil(t, svc.Get(status.Active, port, 0, nil))
}

func TestGetFiltersMessagesAndSignalsReady(t *testing.T) {
	agent := &fakeAgent{}
	svc := New(agent, nil)
	ready := 0
	src := svc.Get(status.Starting, port, 9600, func() { ready++ })
	require.NotNil(t, src)
	assert.Same(t, src, svc.Get(status.Active, port, 9600, nil))

	events, _, _ := collect(src)
	raw := agent.stream(0)
	raw.Next(monitor.Event{Type: monitor.EventInfo, Value: monitor.ReadyValue})
	raw.Next(monitor.Event{Type: monitor.EventMessage, Value: "hello"})

	require.NoError(t, svc.Send(port, "ping"))

	assert.Equal(t, 1, ready)
	assert.Equal(t, []monitor.Event{
		{Type: monitor.EventMessage, Value: "hello"},
		{Type: monitor.EventMessage, Value: "ping", Meta: monitor.MetaSent},
	}, *events)
	assert.Equal(t, []string{"ping"}, agent.sent)
}

func TestDisconnectionIsNotRetried(t *testing.T) {
	agent := &fakeAgent{}
	svc := New(agent, nil)
	_, errp, _ := collect(svc.Get(status.Active, port, 9600, nil))

	agent.stream(0).Error(&monitor.BoardDisconnectionError{Port: port})
	assert.True(t, monitor.IsDisconnection(*errp))

	// The failed session is forgotten.
	next := svc.Get(status.Starting, port, 9600, nil)
	require.NotNil(t, next)
	assert.Len(t, agent.opens, 2)
}

func TestFailedOpenIsRetried(t *testing.T) {
	agent := &fakeAgent{openErrs: []error{monitor.ErrOpenFailed}}
	svc := New(agent, nil)
	ready := make(chan struct{}, 1)
	svc.Get(status.Starting, port, 9600, func() { ready <- struct{}{} })

	require.Eventually(t, func() bool {
		agent.mu.Lock()
		defer agent.mu.Unlock()
		return len(agent.opens) == 1
	}, 2*time.Second, 5*time.Millisecond)
	agent.stream(0).Next(monitor.Event{Type: monitor.EventInfo, Value: monitor.ReadyValue})
	<-ready
}

func TestRetryDelay(t *testing.T) {
	d, ok := retryDelay(monitor.ErrOpenFailed, 1)
	assert.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, d)
	d, ok = retryDelay(monitor.ErrOpenFailed, 4)
	assert.True(t, ok)
	assert.Equal(t, 1600*time.Millisecond, d)

	_, ok = retryDelay(monitor.ErrOpenFailed, 5)
	assert.False(t, ok)
	_, ok = retryDelay(&monitor.PortAlreadyOpenError{Port: port}, 1)
	assert.False(t, ok)
	_, ok = retryDelay(&monitor.BoardDisconnectionError{Port: port}, 1)
	assert.False(t, ok)
}

func TestCancelCompletesSession(t *testing.T) {
	agent := &fakeAgent{}
	svc := New(agent, nil)
	_, errp, done := collect(svc.Get(status.Active, port, 9600, nil))

	require.NoError(t, svc.Cancel(context.Background(), port))
	assert.Equal(t, []string{port}, agent.closed)
	assert.True(t, *done)
	assert.NoError(t, *errp)
	assert.Zero(t, agent.stream(0).Observed())
}

func TestErrorAfterClosingIsSwallowed(t *testing.T) {
	agent := &fakeAgent{}
	svc := New(agent, nil)
	_, errp, done := collect(svc.Get(status.Active, port, 9600, nil))

	svc.mu.Lock()
	cur := svc.cur
	svc.mu.Unlock()
	cur.raw.Next(monitor.Event{Type: monitor.EventInfo, Value: ClosingValue})
	agent.stream(0).Error(&monitor.BoardDisconnectionError{Port: port})

	assert.NoError(t, *errp)
	assert.True(t, *done)
}

func TestCancelReportsCloseFailure(t *testing.T) {
	agent := &fakeAgent{closeErr: monitor.ErrCloseFailed}
	svc := New(agent, nil)
	svc.Get(status.Active, port, 9600, nil)

	err := svc.Cancel(context.Background(), port)
	assert.ErrorIs(t, err, monitor.ErrCloseFailed)
	assert.NoError(t, svc.Cancel(context.Background(), ""))
}

type fakeNotifier struct{ calls []string }

func (f *fakeNotifier) SendActive() error {
	f.calls = append(f.calls, "active")
	return nil
}

func (f *fakeNotifier) SendInactive() error {
	f.calls = append(f.calls, "inactive")
	return nil
}

func TestEffectsDriveMachine(t *testing.T) {
	agent := &fakeAgent{}
	svc := New(agent, nil)
	notifier := &fakeNotifier{}
	m := status.NewMachine(Effects{Service: svc, Notifier: notifier})
	m.SetPort(port)

	cleared := 0
	svc.Clears().Subscribe(reactive.Observer[struct{}]{Next: func(struct{}) { cleared++ }})

	ctx := context.Background()
	for _, in := range []status.Input{status.Connected, status.Started, status.Restart} {
		_, err := m.Send(ctx, in)
		require.NoError(t, err)
	}
	assert.Equal(t, status.Starting, m.Current().Status)
	assert.Equal(t, []string{"active", "inactive"}, notifier.calls)
	assert.Equal(t, []string{port}, agent.closed)
	assert.Equal(t, 1, cleared)

	// Without an opener notifications are skipped.
	assert.NoError(t, Effects{Service: svc}.NotifyActive(ctx))
}

func TestCancelBeforeAnySession(t *testing.T) {
	agent := &fakeAgent{closeErr: errors.New("boom")}
	svc := New(agent, nil)
	assert.Error(t, svc.Cancel(context.Background(), port))
}
