package window

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
)

var (
	ErrNoPort          = errors.New("no port selected")
	ErrNoDeviceName    = errors.New("can't retrieve device name")
	ErrNoPorts         = errors.New("no ports are available")
	ErrPortUnavailable = errors.New("selected port is not available")
	ErrClosing         = errors.New("selected port is currently closing")
	ErrAlreadyOpen     = errors.New("serial monitor window already open")
)

// PortCloser closes a monitored port. The returned source emits the port
// once it is closed.
type PortCloser interface {
	Close(port string) reactive.Source[string]
}

// ParentOptions configure a Parent.
type ParentOptions struct {
	// ChildOrigin is the only origin messages are accepted from.
	ChildOrigin string
	// Export returns the state handed to the child with its config.
	Export func() devicestate.Snapshot
	Closer PortCloser
	// InstanceID identifies this editor; empty means a fresh ULID.
	InstanceID string
	Logger     *slog.Logger
}

// Parent is the editor's end of the conversation. It serves at most one
// child at a time.
type Parent struct {
	opts   ParentOptions
	logger *slog.Logger

	mu         sync.Mutex
	child      Transport
	out        *outbox
	deviceName string
	port       string
	devices    []devicestate.Device
	uploading  bool
	active     bool
	closing    bool
}

// NewParent returns a parent with no child attached.
func NewParent(opts ParentOptions) *Parent {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.InstanceID == "" {
		opts.InstanceID = ulid.Make().String()
	}
	return &Parent{opts: opts, logger: opts.Logger}
}

// InstanceID returns the id handed to children that ask for it.
func (p *Parent) InstanceID() string { return p.opts.InstanceID }

// Select sets the board the next child is configured for.
func (p *Parent) Select(deviceName, port string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceName = deviceName
	p.port = port
}

// Selected returns the board the next child is configured for.
func (p *Parent) Selected() (deviceName, port string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceName, p.port
}

// SetDevices records the listed boards and forwards them to the child.
func (p *Parent) SetDevices(devices []devicestate.Device) {
	p.mu.Lock()
	p.devices = append([]devicestate.Device(nil), devices...)
	out := p.out
	p.mu.Unlock()
	p.push(out, TypeDevicesUpdate, devices)
}

// SetUploading forwards the upload flag to the child.
func (p *Parent) SetUploading(uploading bool) {
	p.mu.Lock()
	p.uploading = uploading
	out := p.out
	p.mu.Unlock()
	p.push(out, TypeIsUploading, uploading)
}

func (p *Parent) push(out *outbox, t MessageType, payload any) {
	if out == nil {
		return
	}
	env, err := envelope(t, payload)
	if err != nil {
		p.logger.Error("encode window message", "type", string(t), "error", err)
		return
	}
	out.post(env)
}

// Active reports whether the child last said it was streaming.
func (p *Parent) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Closing reports whether a close triggered by the child unloading is
// still in flight.
func (p *Parent) Closing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closing
}

// Attached reports whether a child is connected.
func (p *Parent) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.child != nil
}

// Open attaches t as the child window. It fails when no board is selected
// or the selected port is not listed or still closing.
func (p *Parent) Open(t Transport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.port == "":
		return ErrNoPort
	case p.deviceName == "":
		return ErrNoDeviceName
	case len(p.devices) == 0:
		return ErrNoPorts
	case !listed(p.devices, p.port):
		return ErrPortUnavailable
	case p.closing:
		return ErrClosing
	case p.child != nil:
		return ErrAlreadyOpen
	}
	p.child = t
	p.out = newOutbox(t, p.logger)
	p.logger.Info("serial monitor window attached", "port", p.port)
	return nil
}

func listed(devices []devicestate.Device, port string) bool {
	for _, d := range devices {
		if d.PortName == port {
			return true
		}
	}
	return false
}

// Serve dispatches messages from t until ctx is done or t closes, then
// detaches t.
func (p *Parent) Serve(ctx context.Context, t Transport) error {
	p.mu.Lock()
	var out *outbox
	if p.child == t {
		out = p.out
	}
	p.mu.Unlock()
	defer p.detach(t, out)
	for {
		ev, err := t.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		p.dispatch(t, ev)
	}
}

func (p *Parent) detach(t Transport, out *outbox) {
	p.mu.Lock()
	if p.child == t {
		p.child = nil
		p.out = nil
	}
	p.mu.Unlock()
	if out != nil {
		out.wait()
	}
}

// Flush waits until every message queued for the child has been posted.
func (p *Parent) Flush() {
	p.mu.Lock()
	out := p.out
	p.mu.Unlock()
	if out != nil {
		out.wait()
	}
}

func (p *Parent) dispatch(t Transport, ev Event) {
	if ev.Origin != p.opts.ChildOrigin {
		p.logger.Debug("dropping message from unexpected origin", "origin", ev.Origin)
		return
	}
	if !ev.Envelope.Type.Known() {
		p.logger.Debug("dropping unknown message", "type", string(ev.Envelope.Type))
		return
	}
	switch ev.Envelope.Type {
	case TypeConfigRequest:
		p.sendConfig()
	case TypeActive:
		p.setActive(true)
	case TypeInactive:
		p.setActive(false)
	case TypeUnload:
		p.unload(t)
	case TypeIDRequest:
		p.mu.Lock()
		out := p.out
		p.mu.Unlock()
		if out != nil {
			out.post(Envelope{Type: TypeIDResponse, ID: p.opts.InstanceID})
		}
	default:
		p.logger.Debug("ignoring message", "type", string(ev.Envelope.Type))
	}
}

func (p *Parent) setActive(active bool) {
	p.mu.Lock()
	p.active = active
	p.mu.Unlock()
}

func (p *Parent) sendConfig() {
	p.mu.Lock()
	out := p.out
	cfg := Config{
		DeviceName: p.deviceName,
		Port:       p.port,
		Devices:    append([]devicestate.Device(nil), p.devices...),
	}
	ready := out != nil && cfg.DeviceName != "" && cfg.Port != "" && cfg.Devices != nil
	p.mu.Unlock()
	if !ready {
		return
	}
	if p.opts.Export != nil {
		cfg.State = p.opts.Export()
	}
	p.push(out, TypeConfig, cfg)
}

// unload closes the active port on the child's behalf and forgets the
// child.
func (p *Parent) unload(t Transport) {
	p.mu.Lock()
	port := p.port
	closeIt := port != "" && p.active && p.opts.Closer != nil
	if closeIt {
		p.closing = true
	}
	if p.child == t {
		p.child = nil
		p.out = nil
	}
	p.mu.Unlock()

	if !closeIt {
		return
	}
	p.logger.Info("closing port after monitor window unload", "port", port)
	var once sync.Once
	done := func() {
		once.Do(func() {
			p.mu.Lock()
			p.closing = false
			p.active = false
			p.mu.Unlock()
		})
	}
	p.opts.Closer.Close(port).Subscribe(reactive.Observer[string]{
		Next: func(string) { done() },
		Error: func(err error) {
			p.logger.Warn("close after unload failed", "port", port, "error", err)
			done()
		},
		Complete: done,
	})
}
