package status

import "github.com/buckleypaul/cloudeditor/internal/devicestate"

func hasDevice(devices []devicestate.Device, port, name string) bool {
	for _, d := range devices {
		if d.PortName == port && d.Name == name {
			return true
		}
	}
	return false
}

// ReconcileDevices returns the inputs a device list update implies for
// the selected board. A paused view gets no disconnection from its
// stream, so a vanished board is reported as NOT_REACHABLE; a board that
// was missing from prev and is listed in next asks for a RESTART.
// prev is nil for the first update.
func ReconcileDevices(port, name string, current Status, prev, next []devicestate.Device) []Input {
	if port == "" || name == "" {
		return nil
	}
	var inputs []Input
	if current == Paused && !hasDevice(next, port, name) {
		inputs = append(inputs, NotReachable)
	}
	if prev != nil && next != nil && !hasDevice(prev, port, name) && hasDevice(next, port, name) {
		inputs = append(inputs, Restart)
	}
	return inputs
}
