//go:build !linux

package ble

import (
	"github.com/go-ble/ble"

	"github.com/tomjod/forcemeter/pkg/protocol"
)

func newDevice(_ int) (ble.Device, error) {
	return nil, protocol.ErrNotSupported
}
