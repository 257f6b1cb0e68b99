/*
Package meter is the public face of a force meter connection. A [Meter] owns the connection state
machine, runs device discovery, and manages at most one transport session at a time.

	m := meter.New(scanner, dialer, env, meter.Config{DeviceName: connector.DefaultDeviceName})
	defer m.Release()

	states := m.SubscribeState(ctx)
	if err := m.StartScan(); err != nil {
		panic(err)
	}
	for state := range states {
		if state.Status == meter.Connected {
			break
		}
	}
	if err := m.SendTareCommand(); err != nil {
		log.Warning("tare: %s", err)
	}

State transitions:

	Disconnected -> Scanning -> Connecting -> Connected -> Disconnected
	any -> Error (scan or connect failure; recovered only by a new StartScan)
	StartScan -> BluetoothDisabled | BluetoothNotSupported | PermissionsRequired (environment gating)

A link that drops mid-session returns the Meter to Disconnected rather than Error.
*/
package meter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/internal/session"
	"github.com/tomjod/forcemeter/pkg/connector"
	"github.com/tomjod/forcemeter/pkg/environment"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

// Config tunes a Meter.
type Config struct {
	// DeviceName is the only candidate name discovery accepts.
	DeviceName string
	// ScanTimeout ends a scan that has not found the device. Zero scans until Disconnect.
	ScanTimeout time.Duration
	// JoinTimeout bounds how long teardown waits for session workers.
	JoinTimeout time.Duration
}

// Meter connects to a single force meter and publishes its state and readings.
type Meter struct {
	config  Config
	scanner connector.Scanner
	dialer  connector.Dialer
	env     environment.Environment

	state   *observable[ConnectionState]
	reading *observable[*protocol.ForceReading]
	acks    *observable[uint64]

	// teardownLock serializes operations that join session workers. It is always acquired before
	// lock, and lock is never held while joining.
	teardownLock sync.Mutex

	lock     sync.Mutex
	session  *session.Session
	scan     *discovery
	released bool
}

// New creates a Meter in the Disconnected state.
func New(scanner connector.Scanner, dialer connector.Dialer, env environment.Environment, config Config) *Meter {
	if config.DeviceName == "" {
		config.DeviceName = connector.DefaultDeviceName
	}
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = session.DefaultJoinTimeout
	}
	return &Meter{
		config:  config,
		scanner: scanner,
		dialer:  dialer,
		env:     env,
		state:   newObservable(stateOf(Disconnected)),
		reading: newObservable[*protocol.ForceReading](nil),
		acks:    newObservable[uint64](0),
	}
}

// DeviceName returns the name discovery is looking for.
func (m *Meter) DeviceName() string {
	return m.config.DeviceName
}

// State returns the current connection state.
func (m *Meter) State() ConnectionState {
	return m.state.Load()
}

// Reading returns the latest verified reading. ok is false before the first frame of a session and
// after the session ends.
func (m *Meter) Reading() (reading protocol.ForceReading, ok bool) {
	if r := m.reading.Load(); r != nil {
		return *r, true
	}
	return protocol.ForceReading{}, false
}

// Acks returns the number of acknowledgments received from the device.
func (m *Meter) Acks() uint64 {
	return m.acks.Load()
}

// SubscribeState streams the current state followed by every transition until ctx is done or the
// Meter is released.
func (m *Meter) SubscribeState(ctx context.Context) <-chan ConnectionState {
	return m.state.Subscribe(ctx)
}

// SubscribeReadings streams readings. A nil value means the reading was cleared because the
// session ended.
func (m *Meter) SubscribeReadings(ctx context.Context) <-chan *protocol.ForceReading {
	return m.reading.Subscribe(ctx)
}

// SubscribeAcks streams the running acknowledgment count.
func (m *Meter) SubscribeAcks(ctx context.Context) <-chan uint64 {
	return m.acks.Subscribe(ctx)
}

// Device returns the candidate of the live session, if any.
func (m *Meter) Device() (connector.Candidate, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session == nil {
		return connector.Candidate{}, false
	}
	return m.session.Candidate(), true
}

// Stats returns frame decoder counters for the live session.
func (m *Meter) Stats() protocol.DecoderStats {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session == nil {
		return protocol.DecoderStats{}
	}
	return m.session.Stats()
}

// Readiness re-evaluates the environment. blocked is true when a scan would be refused, in which
// case state is the gating state StartScan would publish.
func (m *Meter) Readiness() (state ConnectionState, blocked bool) {
	switch {
	case !m.env.Supported():
		return stateOf(BluetoothNotSupported), true
	case !m.env.PermissionsGranted():
		return stateOf(PermissionsRequired), true
	case !m.env.Enabled():
		return stateOf(BluetoothDisabled), true
	}
	return stateOf(Disconnected), false
}

func (m *Meter) setState(state ConnectionState) {
	previous := m.state.Load()
	m.state.Store(state)
	if previous != state {
		log.Info("Connection state: %s -> %s", previous, state)
	}
}

// StartScan begins discovery and returns immediately. The first candidate named DeviceName is
// dialed. If the environment blocks scanning the corresponding gating state is published instead
// and nothing else happens. A scan already in progress is left alone; a live session is torn down
// first.
func (m *Meter) StartScan() error {
	m.teardownLock.Lock()
	defer m.teardownLock.Unlock()

	m.lock.Lock()
	if m.released {
		m.lock.Unlock()
		return protocol.ErrReleased
	}
	gate, blocked := m.Readiness()
	if !blocked {
		if status := m.state.Load().Status; status == Scanning || status == Connecting {
			m.lock.Unlock()
			log.Debug("Ignoring scan request while %s", status)
			return nil
		}
	}
	previous := m.detach()
	m.lock.Unlock()

	if previous != nil {
		previous.Close(m.config.JoinTimeout)
		m.reading.Store(nil)
		if !blocked {
			m.setState(stateOf(Disconnected))
		}
	}
	if blocked {
		log.Warning("Cannot scan: %s", gate)
		m.setState(gate)
		return nil
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if m.config.ScanTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), m.config.ScanTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	run := newDiscovery(ctx, cancel, m.scanner, m.config.DeviceName)

	m.lock.Lock()
	m.scan = run
	m.setState(stateOf(Scanning))
	m.lock.Unlock()

	log.Info("Scanning for %s...", m.config.DeviceName)
	go m.discover(run)
	return nil
}

// detach stops discovery and takes ownership of the live session. Callers hold lock.
func (m *Meter) detach() *session.Session {
	if m.scan != nil {
		m.scan.stop()
		m.scan = nil
	}
	s := m.session
	m.session = nil
	return s
}

func (m *Meter) discover(run *discovery) {
	candidate, err := run.run()

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.scan != run {
		// Stopped by Disconnect or Release.
		return
	}
	m.scan = nil
	if err != nil {
		log.Warning("Scan failed: %s", err)
		if errors.Is(err, protocol.ErrDeviceNotFound) {
			m.setState(ErrorState(fmt.Sprintf("%s: %s", err, m.config.DeviceName)))
		} else {
			m.setState(ErrorState("Scan failed: " + err.Error()))
		}
		return
	}
	if m.state.Load().Status != Scanning {
		return
	}
	m.setState(stateOf(Connecting))
	m.session = session.Start(m.dialer, *candidate, events{m})
}

// SendTareCommand asks the device to zero both channels.
func (m *Meter) SendTareCommand() error {
	return m.send(protocol.Tare())
}

// CalibrateChannelA sets the primary channel's calibration factor.
func (m *Meter) CalibrateChannelA(factor float32) error {
	return m.send(protocol.CalibrateChannelA(factor))
}

// CalibrateChannelB sets the secondary channel's calibration factor.
func (m *Meter) CalibrateChannelB(factor float32) error {
	return m.send(protocol.CalibrateChannelB(factor))
}

// send writes a command on the caller's goroutine. Write failures are returned but leave the
// connection state unchanged.
func (m *Meter) send(command []byte) error {
	m.lock.Lock()
	s, released, status := m.session, m.released, m.state.Load().Status
	m.lock.Unlock()
	if released {
		return protocol.ErrReleased
	}
	if s == nil || status != Connected {
		return protocol.ErrNotConnected
	}
	return s.Write(command)
}

// Disconnect stops discovery, tears down the live session, clears the latest reading, and
// publishes Disconnected. It is safe to call at any time and from several goroutines; each call
// returns after the teardown has completed.
func (m *Meter) Disconnect() {
	m.teardownLock.Lock()
	defer m.teardownLock.Unlock()
	m.disconnect()
}

func (m *Meter) disconnect() {
	m.lock.Lock()
	s := m.detach()
	m.lock.Unlock()

	// Close the link before clearing the reading so that nothing published afterwards survives.
	if s != nil {
		log.Info("Disconnecting from %s", s.Candidate().Address)
		s.Close(m.config.JoinTimeout)
	}

	m.lock.Lock()
	m.reading.Store(nil)
	m.setState(stateOf(Disconnected))
	m.lock.Unlock()
}

// Release disconnects and frees the scanner. Subscriptions are closed. Release is idempotent;
// other operations return ErrReleased afterwards.
func (m *Meter) Release() {
	m.teardownLock.Lock()
	defer m.teardownLock.Unlock()

	m.lock.Lock()
	released := m.released
	m.released = true
	m.lock.Unlock()
	if released {
		return
	}

	m.disconnect()
	if closer, ok := m.scanner.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warning("Error releasing scanner: %s", err)
		}
	}
	m.state.Close()
	m.reading.Close()
	m.acks.Close()
}

// events adapts session callbacks. Every callback ignores sessions that are no longer current, so
// a torn down session cannot change state or publish a late reading.
type events struct {
	m *Meter
}

func (e events) Connected(s *session.Session) {
	e.m.lock.Lock()
	defer e.m.lock.Unlock()
	if e.m.session != s {
		return
	}
	e.m.setState(stateOf(Connected))
}

func (e events) ConnectFailed(s *session.Session, err error) {
	e.m.lock.Lock()
	defer e.m.lock.Unlock()
	if e.m.session != s {
		return
	}
	e.m.session = nil
	e.m.setState(ErrorState("Connection failed: " + err.Error()))
}

func (e events) Reading(s *session.Session, r protocol.ForceReading) {
	e.m.lock.Lock()
	defer e.m.lock.Unlock()
	if e.m.session != s {
		return
	}
	e.m.reading.Store(&r)
}

func (e events) Ack(s *session.Session) {
	e.m.lock.Lock()
	defer e.m.lock.Unlock()
	if e.m.session != s {
		return
	}
	e.m.acks.Update(func(n uint64) uint64 { return n + 1 })
}

func (e events) Ended(s *session.Session, err error) {
	e.m.lock.Lock()
	defer e.m.lock.Unlock()
	if e.m.session != s {
		return
	}
	e.m.session = nil
	e.m.reading.Store(nil)
	e.m.setState(stateOf(Disconnected))
}
