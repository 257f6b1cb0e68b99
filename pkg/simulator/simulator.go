// Package simulator provides an in-process force meter for development without hardware. A
// Device is both the Scanner that finds it and the Dialer that connects to it; the link speaks
// the same wire protocol as the real firmware.
package simulator

import (
	"bufio"
	"context"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/connector"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

// DefaultInterval is how often a connected Device emits a reading.
const DefaultInterval = 500 * time.Millisecond

// Address is the fake hardware address of simulated devices.
const Address = "00:00:5E:00:53:01"

// Device is a simulated force meter. Each Dial opens an independent link.
type Device struct {
	candidate connector.Candidate
	interval  time.Duration

	lock    sync.Mutex
	rand    *rand.Rand
	factorA float32
	factorB float32
	links   int
}

// New returns a Device advertising name.
func New(name string) *Device {
	return &Device{
		candidate: connector.Candidate{Address: Address, Name: name, RSSI: -42},
		interval:  DefaultInterval,
		rand:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		factorA:   1,
		factorB:   1,
	}
}

// WithInterval sets the reading period. It must be called before the first Dial.
func (d *Device) WithInterval(interval time.Duration) *Device {
	d.interval = interval
	return d
}

// WithSeed makes readings reproducible.
func (d *Device) WithSeed(seed uint64) *Device {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.rand = rand.New(rand.NewPCG(seed, 0x5eed))
	return d
}

// Candidate returns how the Device appears to a scanner.
func (d *Device) Candidate() connector.Candidate {
	return d.candidate
}

// Factors returns the current calibration factors.
func (d *Device) Factors() (a, b float32) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.factorA, d.factorB
}

// Links returns the number of links currently open.
func (d *Device) Links() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.links
}

// Scan reports the Device once.
func (d *Device) Scan(ctx context.Context, found func(connector.Candidate)) error {
	if ctx.Err() != nil {
		return nil
	}
	found(d.candidate)
	return nil
}

// Dial connects to the Device. Only the Device's own address is accepted.
func (d *Device) Dial(ctx context.Context, candidate connector.Candidate) (connector.Link, error) {
	if candidate.Address != d.candidate.Address {
		return nil, &protocol.ConnectError{Address: candidate.Address, Err: protocol.ErrDeviceNotFound}
	}
	if err := ctx.Err(); err != nil {
		return nil, &protocol.ConnectError{Address: candidate.Address, Err: err}
	}
	local, remote := net.Pipe()
	d.lock.Lock()
	d.links++
	d.lock.Unlock()
	go d.serve(remote)
	return connector.NewLink(local, candidate), nil
}

// next draws a reading in the ranges a seated athlete produces.
func (d *Device) next() protocol.ForceReading {
	d.lock.Lock()
	defer d.lock.Unlock()
	primary := (d.rand.Float32()*25 + 20) / d.factorA
	secondary := (d.rand.Float32()*40 + 30) / d.factorB
	r := protocol.ForceReading{Primary: primary, Secondary: secondary}
	r.Ratio = r.ComputedRatio()
	return r
}

type conn struct {
	net.Conn
	lock sync.Mutex
}

func (c *conn) send(b []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, err := c.Write(b)
	return err
}

func (d *Device) serve(remote net.Conn) {
	c := &conn{Conn: remote}
	done := make(chan struct{})
	defer func() {
		d.lock.Lock()
		d.links--
		d.lock.Unlock()
	}()
	defer remote.Close()

	go func() {
		defer close(done)
		lines := bufio.NewScanner(remote)
		for lines.Scan() {
			if reply := d.handle(lines.Text()); reply != nil {
				if err := c.send(reply); err != nil {
					return
				}
			}
		}
	}()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.send(protocol.EncodeFrame(d.next())); err != nil {
				log.Debug("Simulator link closed: %s", err)
				return
			}
		}
	}
}

// handle executes one command line and returns the bytes to send back.
func (d *Device) handle(line string) []byte {
	line = strings.TrimSpace(line)
	log.Debug("Simulator RX: %q", line)
	if line == "t" {
		return append(protocol.EncodeFrame(protocol.ForceReading{}), protocol.ACK)
	}
	name, value, ok := strings.Cut(line, "=")
	if !ok || (name != "i" && name != "q") {
		return nil
	}
	factor, err := strconv.ParseFloat(value, 32)
	if err != nil || factor == 0 {
		return nil
	}
	d.lock.Lock()
	if name == "i" {
		d.factorA = float32(factor)
	} else {
		d.factorB = float32(factor)
	}
	d.lock.Unlock()
	return []byte{protocol.ACK}
}
