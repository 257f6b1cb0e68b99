// Package ble discovers the force meter by the local name it advertises over Bluetooth Low Energy.
//
// The firmware advertises the same name on LE that it uses for its Classic SPP service, so an LE
// scan is a fast way to learn the device address before dialing RFCOMM.
package ble

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/connector"
)

const bleTimeout = 20 * time.Second

// Scanner reports LE advertisements that carry a local name.
type Scanner struct {
	adapterID int

	lock   sync.Mutex
	device ble.Device
}

// NewScanner returns a Scanner bound to the HCI adapter named by id ("hci0", "1", or "" for the
// default adapter). The adapter is opened lazily on the first scan.
func NewScanner(id string) (*Scanner, error) {
	adapterID, err := ParseAdapterID(id)
	if err != nil {
		return nil, err
	}
	return &Scanner{adapterID: adapterID}, nil
}

// ParseAdapterID converts "hciN" or "N" into N.
func ParseAdapterID(id string) (int, error) {
	if id == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, "hci"))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("ble: invalid adapter id '%s'", id)
	}
	return n, nil
}

func (s *Scanner) open() (ble.Device, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.device != nil {
		log.Debug("Reusing existing BLE device")
		return s.device, nil
	}
	log.Debug("Opening BLE adapter hci%d", s.adapterID)
	device, err := newDevice(s.adapterID)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to enable device: %w", err)
	}
	s.device = device
	return device, nil
}

func (s *Scanner) Scan(ctx context.Context, found func(connector.Candidate)) error {
	device, err := s.open()
	if err != nil {
		return err
	}
	handler := func(a ble.Advertisement) {
		if a.LocalName() == "" {
			return
		}
		found(connector.Candidate{
			Address: strings.ToUpper(a.Addr().String()),
			Name:    a.LocalName(),
			RSSI:    int16(a.RSSI()),
		})
	}
	err = device.Scan(ctx, false, handler)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Close releases the HCI adapter. A later Scan reopens it.
func (s *Scanner) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.device == nil {
		return nil
	}
	device := s.device
	s.device = nil
	if err := device.Stop(); err != nil {
		return fmt.Errorf("ble: failed to stop device: %w", err)
	}
	log.Debug("Closed BLE adapter")
	return nil
}
