// Package environment answers whether the host can run a Bluetooth session at all: is there a
// radio, is it switched on, and may this process open Bluetooth sockets.
package environment

// Environment is queried before every scan. Results are not cached.
type Environment interface {
	// Supported reports whether the host has a usable radio for the transport.
	Supported() bool
	// Enabled reports whether the radio is powered and not blocked.
	Enabled() bool
	// PermissionsGranted reports whether this process may open the transport's sockets.
	PermissionsGranted() bool
}

// Static is an Environment with fixed answers. The zero value denies everything; use Ready for
// transports that need no radio, such as serial ports and the simulator.
type Static struct {
	IsSupported bool
	IsEnabled   bool
	IsPermitted bool
}

// Ready is an Environment in which every check passes.
var Ready = Static{IsSupported: true, IsEnabled: true, IsPermitted: true}

func (s Static) Supported() bool          { return s.IsSupported }
func (s Static) Enabled() bool            { return s.IsEnabled }
func (s Static) PermissionsGranted() bool { return s.IsPermitted }
