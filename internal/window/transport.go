package window

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by a Transport once either side closed it.
var ErrClosed = errors.New("window transport closed")

// Transport connects two windows. Receive blocks until a message arrives
// and reports the origin of the sending side.
type Transport interface {
	Post(ctx context.Context, env Envelope) error
	Receive(ctx context.Context) (Event, error)
	Close() error
}

type pipe struct {
	done chan struct{}
	once sync.Once
}

type pipeEnd struct {
	p      *pipe
	origin string
	in     chan Event
	peer   *pipeEnd
}

// Pipe returns the two ends of an in-memory transport. Messages posted on
// one end are received on the other with the poster's origin.
func Pipe(aOrigin, bOrigin string) (Transport, Transport) {
	p := &pipe{done: make(chan struct{})}
	a := &pipeEnd{p: p, origin: aOrigin, in: make(chan Event, 16)}
	b := &pipeEnd{p: p, origin: bOrigin, in: make(chan Event, 16)}
	a.peer, b.peer = b, a
	return a, b
}

func (e *pipeEnd) Post(ctx context.Context, env Envelope) error {
	select {
	case <-e.p.done:
		return ErrClosed
	default:
	}
	select {
	case e.peer.in <- Event{Origin: e.origin, Envelope: env}:
		return nil
	case <-e.p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *pipeEnd) Receive(ctx context.Context) (Event, error) {
	select {
	case ev := <-e.in:
		return ev, nil
	case <-e.p.done:
		return Event{}, ErrClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (e *pipeEnd) Close() error {
	e.p.once.Do(func() { close(e.p.done) })
	return nil
}

const postTimeout = 5 * time.Second

// outbox posts envelopes on a transport after the call that queued them
// has returned, in queue order. No goroutine outlives an empty queue.
type outbox struct {
	mu    sync.Mutex
	t     Transport
	queue []Envelope
	// idle is closed when the running flush empties the queue; nil while
	// no flush runs.
	idle   chan struct{}
	logger *slog.Logger
}

func newOutbox(t Transport, logger *slog.Logger) *outbox {
	return &outbox{t: t, logger: logger}
}

func (o *outbox) post(env Envelope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, env)
	if o.idle != nil {
		return
	}
	o.idle = make(chan struct{})
	go o.flush()
}

func (o *outbox) flush() {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			close(o.idle)
			o.idle = nil
			o.mu.Unlock()
			return
		}
		env := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
		err := o.t.Post(ctx, env)
		cancel()
		if err != nil {
			o.logger.Warn("window post failed", "type", string(env.Type), "error", err)
		}
	}
}

// wait blocks until everything queued so far has been posted.
func (o *outbox) wait() {
	o.mu.Lock()
	idle := o.idle
	o.mu.Unlock()
	if idle != nil {
		<-idle
	}
}
