// Package serial links to the force meter through an OS serial device: an RFCOMM port bound with
// `rfcomm bind` or a USB-serial adapter wired to the firmware's UART.
package serial

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/connector"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

// DefaultBaudRate matches the firmware's Serial/SerialBT configuration.
const DefaultBaudRate = 115200

// Opener opens a serial port. Tests replace it to avoid real hardware.
type Opener func(name string, mode *serial.Mode) (io.ReadWriteCloser, error)

func openPort(name string, mode *serial.Mode) (io.ReadWriteCloser, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	// Drop bytes buffered before we attached; they are usually half a frame.
	if err := port.ResetInputBuffer(); err != nil {
		log.Debug("Could not flush %s: %s", name, err)
	}
	return port, nil
}

// Dialer opens the serial port named by Candidate.Address.
type Dialer struct {
	Mode serial.Mode
	Open Opener
}

// NewDialer returns a Dialer using 8N1 framing at baudRate (DefaultBaudRate if zero).
func NewDialer(baudRate int) *Dialer {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	return &Dialer{
		Mode: serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		Open: openPort,
	}
}

func (d *Dialer) Dial(ctx context.Context, candidate connector.Candidate) (connector.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, &protocol.ConnectError{Address: candidate.Address, Err: err}
	}
	open := d.Open
	if open == nil {
		open = openPort
	}
	log.Debug("Opening %s at %d baud...", candidate.Address, d.Mode.BaudRate)
	mode := d.Mode
	port, err := open(candidate.Address, &mode)
	if err != nil {
		return nil, &protocol.ConnectError{Address: candidate.Address, Err: err}
	}
	if err := ctx.Err(); err != nil {
		port.Close()
		return nil, &protocol.ConnectError{Address: candidate.Address, Err: err}
	}
	return connector.NewLink(port, candidate), nil
}

// Port describes one serial device found on the host.
type Port struct {
	Name    string
	Product string
	Serial  string
	USB     bool
}

// Lister enumerates serial ports.
type Lister func() ([]Port, error)

// ListPorts returns the serial devices reported by the OS enumerator, falling back to well-known
// device globs when the enumerator returns nothing.
func ListPorts() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		ports := make([]Port, 0, len(details))
		seen := make(map[string]struct{}, len(details))
		for _, p := range details {
			if p == nil || p.Name == "" {
				continue
			}
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			ports = append(ports, Port{Name: p.Name, Product: p.Product, Serial: p.SerialNumber, USB: p.IsUSB})
		}
		sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
		return ports, nil
	}
	if err != nil {
		log.Debug("Serial enumerator failed: %s", err)
	}
	var names []string
	switch runtime.GOOS {
	case "windows":
		return nil, err
	case "darwin":
		names = listByGlob("/dev/cu.*")
	default:
		names = listByGlob("/dev/rfcomm*", "/dev/ttyUSB*", "/dev/ttyACM*")
	}
	ports := make([]Port, 0, len(names))
	for _, name := range names {
		ports = append(ports, Port{Name: name})
	}
	return ports, nil
}

func listByGlob(patterns ...string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		for _, m := range matches {
			if _, err := os.Stat(m); err != nil {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// Scanner reports every serial port as a candidate. The candidate name is the USB product string
// when the OS provides one; otherwise it is Alias (if set) for RFCOMM-bound ports, or the device
// file's base name.
type Scanner struct {
	// Alias names RFCOMM-bound ports, which carry no product string.
	Alias string
	List  Lister
}

func (s Scanner) Scan(ctx context.Context, found func(connector.Candidate)) error {
	list := s.List
	if list == nil {
		list = ListPorts
	}
	ports, err := list()
	if err != nil {
		return err
	}
	for _, port := range ports {
		if ctx.Err() != nil {
			return nil
		}
		found(connector.Candidate{Address: port.Name, Name: s.nameOf(port)})
	}
	return nil
}

func (s Scanner) nameOf(port Port) string {
	if port.Product != "" {
		return port.Product
	}
	base := filepath.Base(port.Name)
	if s.Alias != "" && strings.HasPrefix(base, "rfcomm") {
		return s.Alias
	}
	return base
}
