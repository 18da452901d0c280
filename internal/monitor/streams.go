package monitor

import (
	"fmt"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
)

// Messages returns the scope's serial message channel.
func Messages(set devicestate.Setter, st devicestate.State) *reactive.Subject[devicestate.SerialMessage] {
	return reactive.GetOrCreate(set, st, devicestate.SerialMessagesHandle)
}

// NextMessage publishes data read from a port.
func NextMessage(set devicestate.Setter, st devicestate.State, msg devicestate.SerialMessage) {
	reactive.NextOn(set, st, devicestate.SerialMessagesHandle, msg)
}

// Disconnects returns the scope's disconnection channel, keyed by port.
func Disconnects(set devicestate.Setter, st devicestate.State) *reactive.Subject[string] {
	return reactive.GetOrCreate(set, st, devicestate.SerialDisconnectsHandle)
}

// NextDisconnect publishes that port went away.
func NextDisconnect(set devicestate.Setter, st devicestate.State, port string) {
	reactive.NextOn(set, st, devicestate.SerialDisconnectsHandle, port)
}

// MessagesByPort returns the data read from port. The stream errors with
// a BoardDisconnectionError on the first disconnection of port, and no
// data published after that disconnection is delivered.
func MessagesByPort(
	set devicestate.Setter,
	st devicestate.State,
	monitors []devicestate.SerialMonitor,
	port string,
) (reactive.Source[string], error) {
	msgs := Messages(set, st)
	disconnects := Disconnects(set, st)

	if _, ok := devicestate.FindMonitor(monitors, port); !ok {
		return nil, fmt.Errorf("%w with port %s", ErrUnknownMonitor, port)
	}

	gone := reactive.Filter[string](disconnects, func(p string) bool { return p == port })
	data := reactive.Map(
		reactive.Filter[devicestate.SerialMessage](msgs, func(m devicestate.SerialMessage) bool {
			return m.Port == port
		}),
		func(m devicestate.SerialMessage) string { return m.Data },
	)

	return reactive.Merge(
		reactive.TakeUntil(data, gone),
		reactive.ThrowOn[string](gone, func(string) error {
			return &BoardDisconnectionError{Port: port}
		}),
	), nil
}
