// Package window carries the messages exchanged between the editor
// window that owns a serial port (the parent) and the monitor window it
// opened (the child).
package window

import (
	"encoding/json"
	"errors"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
)

// MessageType names a window message.
type MessageType string

const (
	TypeConfigRequest MessageType = "serialMonitorConfigRequest"
	TypeConfig        MessageType = "serialMonitorConfig"
	TypeDevicesUpdate MessageType = "devicesUpdate"
	TypeActive        MessageType = "serialMonitorActive"
	TypeInactive      MessageType = "serialMonitorInactive"
	TypeIsUploading   MessageType = "isUploading"
	TypeUnload        MessageType = "serialMonitorUnload"
	TypeIDRequest     MessageType = "request_cloud_editor_instance_id"
	TypeIDResponse    MessageType = "send_cloud_editor_instance_id"
)

// Known reports whether t is part of the vocabulary.
func (t MessageType) Known() bool {
	switch t {
	case TypeConfigRequest, TypeConfig, TypeDevicesUpdate, TypeActive, TypeInactive,
		TypeIsUploading, TypeUnload, TypeIDRequest, TypeIDResponse:
		return true
	}
	return false
}

// Envelope is one message on the wire.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ID      string          `json:"id,omitempty"`
}

// Event is an envelope as received, tagged with the sender's origin.
type Event struct {
	Origin   string
	Envelope Envelope
}

// Config is what the parent hands a child on request.
type Config struct {
	DeviceName string               `json:"initialSelectedDeviceName"`
	Port       string               `json:"initialSelectedPort"`
	Devices    []devicestate.Device `json:"initialDevices"`
	State      devicestate.Snapshot `json:"state"`
}

var ErrNoOpener = errors.New("message can only be sent from a child window")

func envelope(t MessageType, payload any) (Envelope, error) {
	env := Envelope{Type: t}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}
