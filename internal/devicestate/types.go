package devicestate

// Port is a serial port known to the agent.
type Port struct {
	Name         string `json:"portName"`
	IsOpen       bool   `json:"isOpen"`
	IsUSB        bool   `json:"isUSB,omitempty"`
	VID          string `json:"vendorId,omitempty"`
	PID          string `json:"productId,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
}

// SerialMonitorStatus is the registry status of one port's monitor.
type SerialMonitorStatus string

const (
	SerialMonitorNone   SerialMonitorStatus = "NONE"
	SerialMonitorOpened SerialMonitorStatus = "OPENED"
	SerialMonitorFailed SerialMonitorStatus = "FAILED"
	SerialMonitorClosed SerialMonitorStatus = "CLOSED"
)

// SerialMonitor is the registry entry for a monitored port.
type SerialMonitor struct {
	Status   SerialMonitorStatus `json:"status"`
	Port     string              `json:"port"`
	BaudRate int                 `json:"baudRate"`
}

// SerialMessage is a chunk of data read from a port.
type SerialMessage struct {
	Port string
	Data string
}

// UploadStatus tracks the upload currently driven by the agent.
type UploadStatus string

const (
	UploadIdle       UploadStatus = ""
	UploadInProgress UploadStatus = "IN_PROG"
	UploadDone       UploadStatus = "DONE"
	UploadError      UploadStatus = "ERROR"
)

// UploadSignal is an out-of-band marker carried by an upload chunk.
type UploadSignal string

const (
	// SignalEnd resets the accumulated upload output.
	SignalEnd UploadSignal = "END"
	// SignalCompileStreamUpdate replaces the accumulated output.
	SignalCompileStreamUpdate UploadSignal = "COMPILE_STREAM_UPDATE"
)

// UploadMeta carries the signal of an upload chunk.
type UploadMeta struct {
	Signal UploadSignal `json:"signal"`
}

// UploadChunk is one item of the upload response stream.
type UploadChunk struct {
	Value string      `json:"value"`
	Meta  *UploadMeta `json:"meta,omitempty"`
}

// FindMonitor returns the registry entry for port.
func FindMonitor(monitors []SerialMonitor, port string) (SerialMonitor, bool) {
	for _, sm := range monitors {
		if sm.Port == port {
			return sm, true
		}
	}
	return SerialMonitor{}, false
}

// FindPort returns the port named name.
func FindPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Device is a board as the editor lists it: a display name on a port.
type Device struct {
	Name     string `json:"name"`
	PortName string `json:"portName"`
	FQBN     string `json:"fqbn,omitempty"`
}
