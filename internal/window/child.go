package window

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
)

// ChildHandlers receive what the parent pushes to a child. Nil handlers
// are skipped.
type ChildHandlers struct {
	Config    func(Config)
	Devices   func([]devicestate.Device)
	Uploading func(bool)
}

// Child is the monitor window's end of the conversation.
type Child struct {
	opener   Transport
	target   string
	handlers ChildHandlers
	logger   *slog.Logger
	out      *outbox

	mu         sync.Mutex
	instanceID string
}

// NewChild returns a child talking to opener, which may be nil when the
// window was not opened by another one. Only messages from parentOrigin
// are accepted.
func NewChild(opener Transport, parentOrigin string, h ChildHandlers, logger *slog.Logger) *Child {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Child{opener: opener, target: parentOrigin, handlers: h, logger: logger}
	if opener != nil {
		c.out = newOutbox(opener, logger)
	}
	return c
}

func (c *Child) post(t MessageType) error {
	if c.opener == nil {
		return fmt.Errorf("%s: %w", t, ErrNoOpener)
	}
	c.out.post(Envelope{Type: t})
	return nil
}

func (c *Child) SendConfigRequest() error { return c.post(TypeConfigRequest) }
func (c *Child) SendUnload() error        { return c.post(TypeUnload) }
func (c *Child) SendActive() error        { return c.post(TypeActive) }
func (c *Child) SendInactive() error      { return c.post(TypeInactive) }
func (c *Child) SendIDRequest() error     { return c.post(TypeIDRequest) }

// Flush waits until every message sent so far has been posted.
func (c *Child) Flush() {
	if c.out != nil {
		c.out.wait()
	}
}

// InstanceID returns the editor instance id received from the parent.
func (c *Child) InstanceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instanceID
}

// Serve dispatches incoming messages until ctx is done or the transport
// closes.
func (c *Child) Serve(ctx context.Context) error {
	if c.opener == nil {
		return ErrNoOpener
	}
	for {
		ev, err := c.opener.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.dispatch(ev)
	}
}

func (c *Child) dispatch(ev Event) {
	if ev.Origin != c.target {
		c.logger.Debug("dropping message from unexpected origin", "origin", ev.Origin)
		return
	}
	env := ev.Envelope
	if !env.Type.Known() {
		c.logger.Debug("dropping unknown message", "type", string(env.Type))
		return
	}
	switch env.Type {
	case TypeConfig:
		var cfg Config
		if !c.decode(env, &cfg) {
			return
		}
		if c.handlers.Config != nil {
			c.handlers.Config(cfg)
		}
	case TypeDevicesUpdate:
		var devices []devicestate.Device
		if !c.decode(env, &devices) {
			return
		}
		if c.handlers.Devices != nil {
			c.handlers.Devices(devices)
		}
	case TypeIsUploading:
		var uploading bool
		if !c.decode(env, &uploading) {
			return
		}
		if c.handlers.Uploading != nil {
			c.handlers.Uploading(uploading)
		}
	case TypeIDResponse:
		if env.ID == "" {
			return
		}
		c.mu.Lock()
		c.instanceID = env.ID
		c.mu.Unlock()
	default:
		c.logger.Debug("ignoring message", "type", string(env.Type))
	}
}

func (c *Child) decode(env Envelope, v any) bool {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		c.logger.Warn("malformed window message", "type", string(env.Type), "error", err)
		return false
	}
	return true
}
