// Package agent drives real serial ports and reports what happens to
// them through the shared device state.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/monitor"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
)

// DefaultBaudRate is used when an open request names none.
const DefaultBaudRate = 9600

var (
	ErrUploadInProgress = errors.New("an upload is in progress")
	ErrUnknownPort      = errors.New("port not found")
	ErrNotOpen          = errors.New("port is not open")
)

// PortOpener opens a port for reading and writing.
type PortOpener interface {
	Open(name string, baudRate int) (io.ReadWriteCloser, error)
}

type serialOpener struct{}

func (serialOpener) Open(name string, baudRate int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(name, mode)
}

// SerialOpener opens ports with 8N1 framing.
func SerialOpener() PortOpener { return serialOpener{} }

// Options configure an Agent. Zero values pick the defaults.
type Options struct {
	Opener       PortOpener
	List         func() ([]devicestate.Port, error)
	OpenTimeout  time.Duration
	CloseTimeout time.Duration
	Logger       *slog.Logger
}

type conn struct {
	name    string
	rw      io.ReadWriteCloser
	done    chan struct{}
	closing atomic.Bool
	writeMu sync.Mutex
}

// Agent owns the open ports of one device state scope.
type Agent struct {
	store        *devicestate.Store
	opener       PortOpener
	list         func() ([]devicestate.Port, error)
	openTimeout  time.Duration
	closeTimeout time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	conns map[string]*conn
	wg    sync.WaitGroup
}

// New returns an agent reporting into store.
func New(store *devicestate.Store, opts Options) *Agent {
	if opts.Opener == nil {
		opts.Opener = SerialOpener()
	}
	if opts.List == nil {
		opts.List = ListPorts
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = monitor.DefaultOpenTimeout
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = monitor.DefaultCloseTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Agent{
		store:        store,
		opener:       opts.Opener,
		list:         opts.List,
		openTimeout:  opts.OpenTimeout,
		closeTimeout: opts.CloseTimeout,
		logger:       opts.Logger,
		conns:        make(map[string]*conn),
	}
}

// Store returns the state the agent reports into.
func (a *Agent) Store() *devicestate.Store { return a.store }

// RefreshPorts lists the host's ports and records them, marking the
// ones this agent holds open.
func (a *Agent) RefreshPorts() ([]devicestate.Port, error) {
	ports, err := a.list()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	a.mu.Lock()
	for i := range ports {
		_, ports[i].IsOpen = a.conns[ports[i].Name]
	}
	a.mu.Unlock()

	a.store.Set(func(st *devicestate.State) { st.Ports = ports })
	return ports, nil
}

// WatchPorts refreshes the port list every interval until ctx is done,
// calling onChange whenever the set of port names changes.
func (a *Agent) WatchPorts(ctx context.Context, interval time.Duration, onChange func([]devicestate.Port)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		last []devicestate.Port
		seen bool
	)
	for {
		ports, err := a.RefreshPorts()
		if err != nil {
			a.logger.Warn("port scan failed", "error", err)
		} else if !seen || !sameNames(last, ports) {
			last, seen = ports, true
			if onChange != nil {
				onChange(ports)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func sameNames(a, b []devicestate.Port) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

// Open starts a monitor session on port. The returned source emits the
// session's events: an info "ready" event once the port is open, then
// the data read from it. Nothing happens until it is subscribed.
func (a *Agent) Open(port string, baudRate int) reactive.Source[monitor.Event] {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	return reactive.Defer(func() reactive.Source[monitor.Event] {
		st := a.store.State()
		if st.UploadStatus == devicestate.UploadInProgress {
			return reactive.Throw[monitor.Event](ErrUploadInProgress)
		}
		if _, ok := devicestate.FindPort(st.Ports, port); !ok {
			return reactive.Throw[monitor.Event](fmt.Errorf("%w: %s", ErrUnknownPort, port))
		}
		if sm, ok := devicestate.FindMonitor(st.SerialMonitors, port); ok && sm.Status == devicestate.SerialMonitorOpened {
			return reactive.Throw[monitor.Event](&monitor.PortAlreadyOpenError{Port: port})
		}

		changes := devicestate.StateChanges(a.store.Set, st)
		listen := monitor.ListenForOpen(a.store.Set, st, port, changes, a.openTimeout)
		return reactive.SourceFunc[monitor.Event](func(o reactive.Observer[monitor.Event]) func() {
			at := &openAttempt{}
			unsub := listen.Subscribe(reactive.Observer[monitor.Event]{
				Next: func(ev monitor.Event) {
					if ev.Type == monitor.EventInfo && ev.Value == monitor.ReadyValue {
						at.start()
					}
					if o.Next != nil {
						o.Next(ev)
					}
				},
				Error: func(err error) {
					a.abandon(at)
					if o.Error != nil {
						o.Error(err)
					}
				},
				Complete: o.Complete,
			})
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.connect(at, port, baudRate)
			}()
			return func() {
				unsub()
				a.abandon(at)
			}
		})
	})
}

// openAttempt ties a background open to the subscriber waiting on it.
// Once the subscriber has gone the port must not stay held.
type openAttempt struct {
	mu        sync.Mutex
	ready     bool
	abandoned bool
	c         *conn
}

func (at *openAttempt) start() {
	at.mu.Lock()
	at.ready = true
	at.mu.Unlock()
}

// abandon gives up on at unless its session already started. A port that
// was taken in the meantime is released.
func (a *Agent) abandon(at *openAttempt) {
	at.mu.Lock()
	if at.ready || at.abandoned {
		at.mu.Unlock()
		return
	}
	at.abandoned = true
	c := at.c
	at.mu.Unlock()

	if c != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.release(c)
		}()
	}
}

func (a *Agent) connect(at *openAttempt, port string, baudRate int) {
	rw, err := a.opener.Open(port, baudRate)
	if err != nil {
		a.logger.Warn("open port failed", "port", port, "baud", baudRate, "error", err)
		a.store.Set(func(st *devicestate.State) {
			st.SerialMonitors = putMonitor(st.SerialMonitors, devicestate.SerialMonitor{
				Status:   devicestate.SerialMonitorFailed,
				Port:     port,
				BaudRate: baudRate,
			})
		})
		return
	}

	at.mu.Lock()
	if at.abandoned {
		at.mu.Unlock()
		a.logger.Warn("open finished after its session gave up", "port", port)
		a.store.Set(func(st *devicestate.State) {
			if sm, ok := devicestate.FindMonitor(st.SerialMonitors, port); ok && sm.Status == devicestate.SerialMonitorOpened {
				return
			}
			st.SerialMonitors = putMonitor(st.SerialMonitors, devicestate.SerialMonitor{
				Status:   devicestate.SerialMonitorFailed,
				Port:     port,
				BaudRate: baudRate,
			})
		})
		rw.Close()
		return
	}
	c := &conn{name: port, rw: rw, done: make(chan struct{})}
	a.mu.Lock()
	if old, ok := a.conns[port]; ok {
		a.mu.Unlock()
		at.mu.Unlock()
		rw.Close()
		a.logger.Warn("port already held", "port", old.name)
		return
	}
	a.conns[port] = c
	a.mu.Unlock()
	at.c = c
	at.mu.Unlock()

	a.logger.Info("port opened", "port", port, "baud", baudRate)
	// The read loop must not publish data before the session has seen
	// OPENED and subscribed to the port's messages.
	a.store.SetSync(func(st *devicestate.State) {
		st.SerialMonitors = putMonitor(st.SerialMonitors, devicestate.SerialMonitor{
			Status:   devicestate.SerialMonitorOpened,
			Port:     port,
			BaudRate: baudRate,
		})
		st.Ports = markOpen(st.Ports, port, true)
	})

	a.wg.Add(1)
	go a.readLoop(c)
}

func (a *Agent) readLoop(c *conn) {
	defer a.wg.Done()
	defer close(c.done)

	buf := make([]byte, 1024)
	for {
		n, err := c.rw.Read(buf)
		if n > 0 {
			monitor.NextMessage(a.store.Set, a.store.State(), devicestate.SerialMessage{
				Port: c.name,
				Data: string(buf[:n]),
			})
		}
		if err == nil {
			continue
		}
		if c.closing.Load() {
			return
		}
		a.logger.Warn("port disconnected", "port", c.name, "error", err)
		a.forget(c)
		c.rw.Close()
		monitor.NextDisconnect(a.store.Set, a.store.State(), c.name)
		return
	}
}

// forget drops c from the open set and the registry.
func (a *Agent) forget(c *conn) {
	a.mu.Lock()
	if a.conns[c.name] == c {
		delete(a.conns, c.name)
	}
	a.mu.Unlock()
	a.store.Set(func(st *devicestate.State) {
		st.SerialMonitors = dropMonitor(st.SerialMonitors, c.name)
		st.Ports = markOpen(st.Ports, c.name, false)
	})
}

// Close ends the session on port. The returned source emits port once
// the registry no longer lists it, or errors with monitor.ErrCloseFailed.
func (a *Agent) Close(port string) reactive.Source[string] {
	return reactive.Defer(func() reactive.Source[string] {
		st := a.store.State()
		changes := devicestate.StateChanges(a.store.Set, st)
		listen := monitor.ListenForClose(st, port, changes, a.closeTimeout)
		return reactive.SourceFunc[string](func(o reactive.Observer[string]) func() {
			unsub := listen.Subscribe(o)
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.disconnect(port)
			}()
			return unsub
		})
	})
}

func (a *Agent) disconnect(port string) {
	a.mu.Lock()
	c := a.conns[port]
	delete(a.conns, port)
	a.mu.Unlock()

	if c != nil {
		a.closeConn(c)
	}
	a.store.Set(func(st *devicestate.State) {
		st.SerialMonitors = dropMonitor(st.SerialMonitors, port)
		st.Ports = markOpen(st.Ports, port, false)
	})
}

// release closes c if it is still the port's open session.
func (a *Agent) release(c *conn) {
	a.mu.Lock()
	if a.conns[c.name] != c {
		a.mu.Unlock()
		return
	}
	delete(a.conns, c.name)
	a.mu.Unlock()

	a.closeConn(c)
	a.store.Set(func(st *devicestate.State) {
		st.SerialMonitors = dropMonitor(st.SerialMonitors, c.name)
		st.Ports = markOpen(st.Ports, c.name, false)
	})
}

func (a *Agent) closeConn(c *conn) {
	c.closing.Store(true)
	if err := c.rw.Close(); err != nil {
		a.logger.Warn("close port", "port", c.name, "error", err)
	}
	<-c.done
	a.logger.Info("port closed", "port", c.name)
}

// Send writes data to the open port.
func (a *Agent) Send(port, data string) error {
	a.mu.Lock()
	c := a.conns[port]
	a.mu.Unlock()
	if c == nil {
		return fmt.Errorf("send to %s: %w", port, ErrNotOpen)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := io.WriteString(c.rw, data); err != nil {
		return fmt.Errorf("send to %s: %w", port, err)
	}
	return nil
}

// Shutdown closes every open port and waits for the agent's goroutines.
func (a *Agent) Shutdown() {
	a.mu.Lock()
	ports := make([]string, 0, len(a.conns))
	for name := range a.conns {
		ports = append(ports, name)
	}
	a.mu.Unlock()
	for _, p := range ports {
		a.disconnect(p)
	}
	a.wg.Wait()
}

func putMonitor(monitors []devicestate.SerialMonitor, sm devicestate.SerialMonitor) []devicestate.SerialMonitor {
	out := make([]devicestate.SerialMonitor, 0, len(monitors)+1)
	for _, m := range monitors {
		if m.Port != sm.Port {
			out = append(out, m)
		}
	}
	return append(out, sm)
}

func dropMonitor(monitors []devicestate.SerialMonitor, port string) []devicestate.SerialMonitor {
	out := make([]devicestate.SerialMonitor, 0, len(monitors))
	for _, m := range monitors {
		if m.Port != port {
			out = append(out, m)
		}
	}
	return out
}

func markOpen(ports []devicestate.Port, name string, open bool) []devicestate.Port {
	out := make([]devicestate.Port, len(ports))
	copy(out, ports)
	for i := range out {
		if out[i].Name == name {
			out[i].IsOpen = open
		}
	}
	return out
}
