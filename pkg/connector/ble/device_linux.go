package ble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

// Passive scanning is enough: the local name is part of the advertisement itself.
var scanParams = cmd.LESetScanParameters{
	LEScanType:           0,    // Passive scanning
	LEScanInterval:       0x10, // 10ms
	LEScanWindow:         0x10, // 10ms
	OwnAddressType:       0,    // Static
	ScanningFilterPolicy: 0,    // Accept all advertisements
}

func newDevice(id int) (ble.Device, error) {
	device, err := linux.NewDevice(
		ble.OptDeviceID(id),
		ble.OptListenerTimeout(bleTimeout),
		ble.OptDialerTimeout(bleTimeout),
		ble.OptScanParams(scanParams),
	)
	if err != nil {
		return nil, err
	}
	return device, nil
}
