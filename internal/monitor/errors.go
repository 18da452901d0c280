package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrOpenFailed is returned when the registry never reported the port
	// as opened.
	ErrOpenFailed = errors.New("could not open serial monitor")
	// ErrCloseFailed is returned when the port was still registered after
	// the close deadline.
	ErrCloseFailed = errors.New("could not close serial monitor")
	// ErrUnknownMonitor is returned when a stream is requested for a port
	// that has no registry entry.
	ErrUnknownMonitor = errors.New("cannot find serial monitor")
)

// BoardDisconnectionError terminates a session whose board went away.
type BoardDisconnectionError struct {
	Port string
}

func (e *BoardDisconnectionError) Error() string {
	if e.Port == "" {
		return "board disconnected"
	}
	return fmt.Sprintf("board disconnected from %s", e.Port)
}

// PortAlreadyOpenError is returned when opening a port that is already
// open.
type PortAlreadyOpenError struct {
	Port string
}

func (e *PortAlreadyOpenError) Error() string {
	return fmt.Sprintf("port %s is already open", e.Port)
}

// IsDisconnection reports whether err is, or wraps, a
// BoardDisconnectionError.
func IsDisconnection(err error) bool {
	var de *BoardDisconnectionError
	return errors.As(err, &de)
}
