// Package monitor manages serial monitor sessions on top of the shared
// device state: it waits for the registry to confirm an open or a close
// and scopes the shared message stream to a single port.
package monitor

import (
	"time"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
)

const (
	// DefaultOpenTimeout bounds the wait for the registry to report a
	// port as opened. The update is expected almost at once after the
	// open command, so this is a liveness check rather than a round trip.
	DefaultOpenTimeout = 100 * time.Millisecond
	// DefaultCloseTimeout bounds the wait for a port to leave the
	// registry.
	DefaultCloseTimeout = 5 * time.Second
)

// EventType distinguishes session events.
type EventType string

const (
	EventInfo    EventType = "info"
	EventMessage EventType = "message"
)

// ReadyValue is the value of the info event emitted once a session opens.
const ReadyValue = "ready"

// MetaSent marks a message event echoing data written to the port.
const MetaSent = "sent"

// Event is one item of a session stream.
type Event struct {
	Type  EventType `json:"type"`
	Value string    `json:"value"`
	Meta  string    `json:"meta,omitempty"`
}

func serialMonitors(st devicestate.State) []devicestate.SerialMonitor {
	return st.SerialMonitors
}

// OpenPredicate matches a snapshot in which port is registered as opened.
func OpenPredicate(port string) reactive.Predicate[devicestate.State] {
	return func(_, next devicestate.State) bool {
		sm, ok := devicestate.FindMonitor(next.SerialMonitors, port)
		return ok && sm.Status == devicestate.SerialMonitorOpened
	}
}

// ClosePredicate matches a snapshot in which port is neither registered
// nor marked open in the port list.
func ClosePredicate(port string) reactive.Predicate[devicestate.State] {
	return func(_, next devicestate.State) bool {
		if _, ok := devicestate.FindMonitor(next.SerialMonitors, port); ok {
			return false
		}
		p, ok := devicestate.FindPort(next.Ports, port)
		return !ok || !p.IsOpen
	}
}

// ListenForOpen waits up to timeout for port to be reported as opened.
// It then emits an info "ready" event followed by a message event for
// every chunk of data read from port, and errors with a
// BoardDisconnectionError when the port disconnects. If the port never
// opens it errors with ErrOpenFailed.
//
// The wait starts when the returned source is subscribed, so subscribe
// before issuing the open command.
func ListenForOpen(
	set devicestate.Setter,
	st devicestate.State,
	port string,
	changes reactive.Source[devicestate.State],
	timeout time.Duration,
) reactive.Source[Event] {
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}
	wait := reactive.WaitForStream(st, serialMonitors, OpenPredicate(port), st.SerialMonitors, changes, timeout)

	return reactive.FlatMap(wait, func(updated []devicestate.SerialMonitor) reactive.Source[Event] {
		sm, ok := devicestate.FindMonitor(updated, port)
		if !ok || sm.Status != devicestate.SerialMonitorOpened {
			return reactive.Throw[Event](ErrOpenFailed)
		}
		data, err := MessagesByPort(set, st, updated, port)
		if err != nil {
			return reactive.Throw[Event](err)
		}
		messages := reactive.Map(data, func(d string) Event {
			return Event{Type: EventMessage, Value: d}
		})
		return reactive.StartWith(messages, Event{Type: EventInfo, Value: ReadyValue})
	})
}

// ListenForClose waits up to timeout for port to leave the registry and
// emits port once it has. If it is still registered at the deadline the
// source errors with ErrCloseFailed.
func ListenForClose(
	st devicestate.State,
	port string,
	changes reactive.Source[devicestate.State],
	timeout time.Duration,
) reactive.Source[string] {
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}
	wait := reactive.WaitForStream(st, serialMonitors, ClosePredicate(port), st.SerialMonitors, changes, timeout)

	return reactive.FlatMap(wait, func(updated []devicestate.SerialMonitor) reactive.Source[string] {
		if _, ok := devicestate.FindMonitor(updated, port); ok {
			return reactive.Throw[string](ErrCloseFailed)
		}
		return reactive.Of(port)
	})
}
