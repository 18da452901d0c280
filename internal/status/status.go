// Package status implements the composite status of a serial monitor
// view and the side effects of moving between statuses.
package status

import (
	"context"
	"fmt"
	"sync"
)

// Status is the view's composite status.
type Status int

const (
	Connecting Status = iota
	Starting
	Active
	Paused
	ActiveUnreachable
	PausedUnreachable
	Uploading
	Unavailable
)

var statusNames = [...]string{
	Connecting:        "connecting",
	Starting:          "starting",
	Active:            "active",
	Paused:            "paused",
	ActiveUnreachable: "active-unreachable",
	PausedUnreachable: "paused-unreachable",
	Uploading:         "uploading",
	Unavailable:       "unavailable",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Streaming reports whether a session should be open in status s.
func (s Status) Streaming() bool {
	return s == Starting || s == Active
}

// Input drives a transition.
type Input string

const (
	Connected      Input = "CONNECTED"
	Toggle         Input = "TOGGLE"
	Restart        Input = "RESTART"
	UploadStarted  Input = "UPLOAD_STARTED"
	NotReachable   Input = "NOT_REACHABLE"
	Started        Input = "STARTED"
	UploadFinished Input = "UPLOAD_FINISHED"
)

// Effects are the side effects a transition may run before it commits.
type Effects interface {
	NotifyActive(ctx context.Context) error
	NotifyInactive(ctx context.Context) error
	// CancelSession closes the session on port and waits for it.
	CancelSession(ctx context.Context, port string) error
	// ClearOutput drops the rendered output.
	ClearOutput(ctx context.Context) error
}

type effect func(ctx context.Context, fx Effects, port string) error

func notifyActive(ctx context.Context, fx Effects, _ string) error { return fx.NotifyActive(ctx) }

func notifyInactive(ctx context.Context, fx Effects, _ string) error {
	return fx.NotifyInactive(ctx)
}

func cancelSession(ctx context.Context, fx Effects, port string) error {
	if err := fx.CancelSession(ctx, port); err != nil {
		return err
	}
	return fx.NotifyInactive(ctx)
}

func clearOutput(ctx context.Context, fx Effects, _ string) error { return fx.ClearOutput(ctx) }

type node struct {
	next    Status
	enabled bool
	before  []effect
}

var graph = map[Status]map[Input]node{
	Connecting: {
		Connected: {next: Starting},
	},
	Starting: {
		Started:      {next: Active, enabled: true, before: []effect{notifyActive}},
		NotReachable: {next: Unavailable},
	},
	Active: {
		Toggle:        {next: Paused, enabled: true, before: []effect{cancelSession}},
		Restart:       {next: Starting, before: []effect{cancelSession, clearOutput}},
		UploadStarted: {next: Uploading, before: []effect{cancelSession}},
		NotReachable:  {next: ActiveUnreachable, before: []effect{notifyInactive}},
	},
	Paused: {
		Toggle:       {next: Starting},
		NotReachable: {next: PausedUnreachable, before: []effect{notifyInactive}},
	},
	ActiveUnreachable: {
		Restart: {next: Starting},
	},
	PausedUnreachable: {
		Restart: {next: Paused},
	},
	Uploading: {
		UploadFinished: {next: Starting, before: []effect{clearOutput}},
	},
	Unavailable: {},
}

// Transition reports where input leads from s. ok is false when the pair
// has no transition.
func Transition(s Status, input Input) (next Status, enabled bool, ok bool) {
	n, ok := graph[s][input]
	if !ok {
		return s, false, false
	}
	return n.next, n.enabled, true
}

// Snapshot is the committed state of a Machine.
type Snapshot struct {
	Status  Status
	Enabled bool
}

// Machine holds the status of one view. Sends are serialized; an effect
// must not call Send on its own machine.
type Machine struct {
	mu       sync.Mutex
	sendMu   sync.Mutex
	current  Snapshot
	port     string
	fx       Effects
	onCommit func(prev, next Snapshot, input Input)
}

// NewMachine returns a machine in Connecting with output disabled.
func NewMachine(fx Effects) *Machine {
	return &Machine{fx: fx, current: Snapshot{Status: Connecting}}
}

// OnCommit registers fn to be called after every committed transition.
func (m *Machine) OnCommit(fn func(prev, next Snapshot, input Input)) {
	m.mu.Lock()
	m.onCommit = fn
	m.mu.Unlock()
}

// SetPort sets the port effects act on.
func (m *Machine) SetPort(port string) {
	m.mu.Lock()
	m.port = port
	m.mu.Unlock()
}

// Port returns the port effects act on.
func (m *Machine) Port() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

// Current returns the committed state.
func (m *Machine) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Send runs the effects of the transition for input in order and then
// commits it. Inputs with no transition from the current status leave
// the machine untouched. If an effect fails the transition is not
// committed and the error is returned.
func (m *Machine) Send(ctx context.Context, input Input) (Snapshot, error) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	prev := m.Current()
	n, ok := graph[prev.Status][input]
	if !ok {
		return prev, nil
	}

	port := m.Port()
	for _, fn := range n.before {
		if err := fn(ctx, m.fx, port); err != nil {
			return prev, fmt.Errorf("%s on %s: %w", input, prev.Status, err)
		}
	}

	next := Snapshot{Status: n.next, Enabled: n.enabled}
	m.mu.Lock()
	m.current = next
	hook := m.onCommit
	m.mu.Unlock()
	if hook != nil {
		hook(prev, next, input)
	}
	return next, nil
}
