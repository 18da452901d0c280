package agent

import (
	"go.bug.st/serial/enumerator"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
)

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]devicestate.Port, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var result []devicestate.Port
	for _, p := range ports {
		result = append(result, devicestate.Port{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
		})
	}
	return result, nil
}

// Devices maps ports to the boards shown to a monitor window. USB ports
// are named after their vendor and product ids.
func Devices(ports []devicestate.Port) []devicestate.Device {
	devices := make([]devicestate.Device, 0, len(ports))
	for _, p := range ports {
		name := "Serial Port"
		if p.IsUSB && p.VID != "" {
			name = "USB " + p.VID + ":" + p.PID
		}
		devices = append(devices, devicestate.Device{Name: name, PortName: p.Name})
	}
	return devices
}
