package connector

import (
	"context"
	"io"
	"sync"
)

// DefaultDeviceName is the name the force meter firmware advertises.
const DefaultDeviceName = "ESP32_Fuerza_HQ"

// SerialPortProfileUUID identifies the Serial Port Profile service record the firmware exposes.
const SerialPortProfileUUID = "00001101-0000-1000-8000-00805F9B34FB"

// BufferSize is the number of outbound notifications that can be queued per subscriber.
const BufferSize = 5

// Candidate is a device reported by a Scanner. It is only used to pick a device and to dial it.
type Candidate struct {
	Address string
	Name    string
	RSSI    int16
}

// Scanner discovers nearby devices.
type Scanner interface {
	// Scan reports candidates to found until ctx is done or the scanner has nothing more to
	// report. A canceled ctx is not an error.
	//
	// found may be invoked from a goroutine other than the caller's.
	Scan(ctx context.Context, found func(Candidate)) error
}

// Dialer opens a byte-stream Link to a Candidate.
type Dialer interface {
	// Dial blocks until the link is open, ctx is done or the attempt fails. On failure any socket
	// created along the way must already be closed.
	Dial(ctx context.Context, candidate Candidate) (Link, error)
}

// Link is an open serial-style session with a device.
type Link interface {
	io.Reader
	io.Writer

	// Close terminates the link and unblocks pending reads.
	//
	// Repeated calls to Close() must be idempotent.
	Close() error

	// Candidate returns the device the link was dialed to.
	Candidate() Candidate
}

type link struct {
	io.ReadWriteCloser
	candidate Candidate
	closeOnce sync.Once
	closeErr  error
}

// NewLink adapts rwc into a Link whose Close is idempotent.
func NewLink(rwc io.ReadWriteCloser, candidate Candidate) Link {
	return &link{ReadWriteCloser: rwc, candidate: candidate}
}

func (l *link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.ReadWriteCloser.Close()
	})
	return l.closeErr
}

func (l *link) Candidate() Candidate {
	return l.candidate
}

// StaticScanner reports a fixed list of candidates, e.g. a device whose address is already known.
type StaticScanner []Candidate

func (s StaticScanner) Scan(ctx context.Context, found func(Candidate)) error {
	for _, c := range s {
		if ctx.Err() != nil {
			return nil
		}
		found(c)
	}
	return nil
}
