package meter

import (
	"fmt"
	"strings"
)

// Status enumerates the connection states of a Meter.
type Status int

const (
	Disconnected Status = iota
	Scanning
	Connecting
	Connected
	Error
	BluetoothDisabled
	BluetoothNotSupported
	PermissionsRequired
)

var statusNames = map[Status]string{
	Disconnected:          "Disconnected",
	Scanning:              "Scanning",
	Connecting:            "Connecting",
	Connected:             "Connected",
	Error:                 "Error",
	BluetoothDisabled:     "BluetoothDisabled",
	BluetoothNotSupported: "BluetoothNotSupported",
	PermissionsRequired:   "PermissionsRequired",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if strings.EqualFold(name, string(text)) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown connection status '%s'", text)
}

// Gating reports whether s is derived from the host environment rather than from a session.
func (s Status) Gating() bool {
	return s == BluetoothDisabled || s == BluetoothNotSupported || s == PermissionsRequired
}

// ConnectionState is the current status plus, for Error, a human readable message.
type ConnectionState struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

func stateOf(status Status) ConnectionState {
	return ConnectionState{Status: status}
}

// ErrorState returns an Error state carrying message.
func ErrorState(message string) ConnectionState {
	return ConnectionState{Status: Error, Message: message}
}

func (c ConnectionState) String() string {
	if c.Status == Error {
		return "Error: " + c.Message
	}
	return c.Status.String()
}
