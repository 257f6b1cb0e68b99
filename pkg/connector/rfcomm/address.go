// Package rfcomm opens Serial Port Profile links over Bluetooth Classic RFCOMM sockets and lists
// devices already paired with the local BlueZ adapter.
package rfcomm

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultChannel is the RFCOMM channel the firmware registers its SPP service on.
const DefaultChannel uint8 = 1

// Address is a Bluetooth device address in display order (most significant byte first).
type Address [6]byte

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (or with '-' or '_' separators).
func ParseAddress(s string) (Address, error) {
	var addr Address
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' || r == '_' })
	if len(fields) != len(addr) {
		return addr, fmt.Errorf("rfcomm: invalid device address '%s'", s)
	}
	for i, field := range fields {
		if len(field) != 2 {
			return addr, fmt.Errorf("rfcomm: invalid device address '%s'", s)
		}
		b, err := hex.DecodeString(field)
		if err != nil {
			return addr, fmt.Errorf("rfcomm: invalid device address '%s'", s)
		}
		addr[i] = b[0]
	}
	return addr, nil
}

// bdaddr returns the address in the little-endian byte order the kernel expects.
func (a Address) bdaddr() [6]uint8 {
	var out [6]uint8
	for i := range a {
		out[i] = a[len(a)-1-i]
	}
	return out
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}
