// Package session keeps the single monitor session of a serial monitor
// view: it opens it through the agent with retries, filters its events
// for display and tears it down on request.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/buckleypaul/cloudeditor/internal/monitor"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
	"github.com/buckleypaul/cloudeditor/internal/status"
)

// ClosingValue marks the info event pushed when a session is cancelled.
// An error that follows it is the expected end of the session.
const ClosingValue = "closing"

// MaxRetries is how many failed opens are retried.
const MaxRetries = 4

// Agent is the port side a Service drives.
type Agent interface {
	Open(port string, baudRate int) reactive.Source[monitor.Event]
	Close(port string) reactive.Source[string]
	Send(port, data string) error
}

// Backoff is the delay before the attempt-th retry of a failed open.
func Backoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 100 * time.Millisecond
}

func retryDelay(err error, attempt int) (time.Duration, bool) {
	var pe *monitor.PortAlreadyOpenError
	if monitor.IsDisconnection(err) || errors.As(err, &pe) || attempt > MaxRetries {
		return 0, false
	}
	return Backoff(attempt), true
}

type session struct {
	port string
	raw  *reactive.Subject[monitor.Event]
	out  *reactive.Subject[monitor.Event]

	mu      sync.Mutex
	unsub   func()
	stopped bool
}

func (ss *session) attach(unsub func()) {
	ss.mu.Lock()
	if ss.stopped {
		ss.mu.Unlock()
		unsub()
		return
	}
	ss.unsub = unsub
	ss.mu.Unlock()
}

func (ss *session) stop() {
	ss.mu.Lock()
	ss.stopped = true
	unsub := ss.unsub
	ss.unsub = nil
	ss.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Service owns at most one live session.
type Service struct {
	agent  Agent
	logger *slog.Logger

	mu     sync.Mutex
	cur    *session
	clears *reactive.Subject[struct{}]
}

// New returns a service driving agent.
func New(agent Agent, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{agent: agent, logger: logger}
}

// Get returns the message events of the live session, opening one on port
// if there is none. It returns nil unless port and baudRate are set and
// st is a streaming status. onReady runs once the port is open.
//
// The returned source errors when the session fails, except after a
// cancellation, where it completes.
func (s *Service) Get(st status.Status, port string, baudRate int, onReady func()) reactive.Source[monitor.Event] {
	if port == "" || baudRate <= 0 || !st.Streaming() {
		return nil
	}
	s.mu.Lock()
	if s.cur != nil {
		out := s.cur.out
		s.mu.Unlock()
		return out
	}
	sess := s.newSession(port, onReady)
	s.cur = sess
	s.mu.Unlock()

	s.logger.Info("opening monitor session", "port", port, "baud", baudRate)
	sess.attach(reactive.Retry(s.agent.Open(port, baudRate), retryDelay).Subscribe(reactive.Observer[monitor.Event]{
		Next:     sess.raw.Next,
		Error:    sess.raw.Error,
		Complete: sess.raw.Complete,
	}))
	return sess.out
}

func (s *Service) newSession(port string, onReady func()) *session {
	sess := &session{
		port: port,
		raw:  reactive.NewSubject[monitor.Event](),
		out:  reactive.NewSubject[monitor.Event](),
	}

	closing := false
	finish := func() {
		s.mu.Lock()
		if s.cur == sess {
			s.cur = nil
		}
		s.mu.Unlock()
	}
	sess.raw.Subscribe(reactive.Observer[monitor.Event]{
		Next: func(ev monitor.Event) {
			closing = ev.Type == monitor.EventInfo && ev.Value == ClosingValue
			if ev.Type == monitor.EventInfo && ev.Value == monitor.ReadyValue && onReady != nil {
				onReady()
			}
			if ev.Type == monitor.EventMessage {
				sess.out.Next(ev)
			}
		},
		Error: func(err error) {
			finish()
			if closing {
				sess.out.Complete()
				return
			}
			s.logger.Warn("monitor session failed", "port", port, "error", err)
			sess.out.Error(err)
		},
		Complete: func() {
			finish()
			sess.out.Complete()
		},
	})
	return sess
}

// Send writes data to port and echoes it into the live session as a sent
// message.
func (s *Service) Send(port, data string) error {
	if err := s.agent.Send(port, data); err != nil {
		return err
	}
	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	if cur != nil {
		cur.raw.Next(monitor.Event{Type: monitor.EventMessage, Value: data, Meta: monitor.MetaSent})
	}
	return nil
}

// Cancel closes the session on port and waits for the port to be
// released. The live session, if any, completes.
func (s *Service) Cancel(ctx context.Context, port string) error {
	if port == "" {
		return nil
	}
	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	if cur != nil {
		cur.raw.Next(monitor.Event{Type: monitor.EventInfo, Value: ClosingValue})
	}

	_, err := reactive.Await(ctx, s.agent.Close(port))

	s.mu.Lock()
	if s.cur == cur {
		s.cur = nil
	}
	s.mu.Unlock()
	if cur != nil {
		cur.stop()
		cur.raw.Complete()
	}
	if err != nil {
		return err
	}
	s.logger.Info("monitor session closed", "port", port)
	return nil
}

// Clears returns the channel that fires whenever the rendered output
// should be dropped.
func (s *Service) Clears() *reactive.Subject[struct{}] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clears == nil {
		s.clears = reactive.NewSubject[struct{}]()
	}
	return s.clears
}

// Clear fires the clear channel.
func (s *Service) Clear() {
	s.Clears().Next(struct{}{})
}

// Reset forgets the live session and the clear channel without closing
// anything.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = nil
	s.clears = nil
}
