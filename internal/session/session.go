// Package session owns one link to a force meter: a connect worker that dials the device, a read
// loop that feeds the frame decoder, and a teardown that closes the link and joins both workers
// with a bounded wait.
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/connector"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

// DefaultJoinTimeout bounds how long Close waits for the workers to exit.
const DefaultJoinTimeout = 500 * time.Millisecond

const readBufferSize = 1024

// Handler receives session events. Calls come from the session's worker goroutines, never
// concurrently for the same session, and in the order listed for a given session: Connected or
// ConnectFailed first, then any number of Reading and Ack, then at most one Ended.
//
// Events are not delivered after Close has been called, with the exception of an event whose
// delivery was already in progress.
type Handler interface {
	Connected(s *Session)
	ConnectFailed(s *Session, err error)
	Reading(s *Session, r protocol.ForceReading)
	Ack(s *Session)
	// Ended reports that the read loop stopped because the link failed or the device closed it.
	// err is io.EOF for a clean end of stream.
	Ended(s *Session, err error)
}

// Session is a single attempt to talk to a device, from dial to teardown. It is not reused.
type Session struct {
	candidate connector.Candidate
	dialer    connector.Dialer
	handler   Handler
	cancel    context.CancelFunc

	lock   sync.Mutex
	link   connector.Link
	closed bool

	writeLock sync.Mutex
	closeOnce sync.Once

	connectDone chan struct{}
	readDone    chan struct{}
	stats       atomic.Pointer[protocol.DecoderStats]
}

// Start launches the connect worker and returns immediately.
func Start(dialer connector.Dialer, candidate connector.Candidate, handler Handler) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		candidate:   candidate,
		dialer:      dialer,
		handler:     handler,
		cancel:      cancel,
		connectDone: make(chan struct{}),
		readDone:    make(chan struct{}),
	}
	s.stats.Store(&protocol.DecoderStats{})
	go s.connect(ctx)
	return s
}

// Candidate returns the device this session dials.
func (s *Session) Candidate() connector.Candidate {
	return s.candidate
}

// Stats returns decoder counters for the current read loop.
func (s *Session) Stats() protocol.DecoderStats {
	return *s.stats.Load()
}

// Done is closed once no worker can touch the link anymore.
func (s *Session) Done() <-chan struct{} {
	return s.readDone
}

func (s *Session) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

func (s *Session) connect(ctx context.Context) {
	defer close(s.connectDone)
	log.Info("Connecting to %s (%s)...", s.candidate.Name, s.candidate.Address)
	link, err := s.dialer.Dial(ctx, s.candidate)
	if err != nil {
		close(s.readDone)
		if s.isClosed() {
			log.Debug("Connect to %s abandoned: %s", s.candidate.Address, err)
			return
		}
		log.Warning("Connect to %s failed: %s", s.candidate.Address, err)
		s.handler.ConnectFailed(s, err)
		return
	}

	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		log.Debug("Session closed while dialing %s; dropping link", s.candidate.Address)
		link.Close()
		close(s.readDone)
		return
	}
	s.link = link
	s.lock.Unlock()

	log.Info("Connected to %s", s.candidate.Address)
	s.handler.Connected(s)
	go s.readLoop(link)
}

func (s *Session) readLoop(link connector.Link) {
	defer close(s.readDone)
	defer link.Close()

	decoder := protocol.NewDecoder(func(r protocol.ForceReading) {
		s.handler.Reading(s, r)
	})
	decoder.OnAck = func() {
		log.Info("ACK received")
		s.handler.Ack(s)
	}
	decoder.OnReject = func(reason error) {
		log.Debug("Dropped frame: %s", reason)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := link.Read(buf)
		if s.isClosed() {
			return
		}
		if n > 0 {
			log.Debug("RX: %02x", buf[:n])
			decoder.Write(buf[:n])
			stats := decoder.Stats()
			s.stats.Store(&stats)
		}
		if err != nil {
			if s.isClosed() {
				return
			}
			if errors.Is(err, io.EOF) {
				log.Info("Device closed the link")
			} else {
				log.Warning("Read from %s failed: %s", s.candidate.Address, err)
			}
			s.handler.Ended(s, err)
			return
		}
	}
}

// Write sends p to the device. A failed write does not end the session.
func (s *Session) Write(p []byte) error {
	s.lock.Lock()
	link, closed := s.link, s.closed
	s.lock.Unlock()
	if link == nil || closed {
		return protocol.ErrNotConnected
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	log.Debug("TX: %q", p)
	n, err := link.Write(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		log.Warning("Write to %s failed: %s", s.candidate.Address, err)
		return protocol.WriteError(err)
	}
	return nil
}

// Close cancels a pending dial, closes the link (which unblocks the read loop), and waits up to
// timeout for both workers to exit. It returns false if the wait timed out; the workers then exit
// on their own without touching shared state.
//
// Close may be called any number of times from any goroutine.
func (s *Session) Close(timeout time.Duration) bool {
	s.closeOnce.Do(func() {
		s.lock.Lock()
		s.closed = true
		link := s.link
		s.lock.Unlock()

		s.cancel()
		if link != nil {
			if err := link.Close(); err != nil {
				log.Debug("Error closing %s: %s", s.candidate.Address, err)
			}
		}
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for _, done := range []chan struct{}{s.connectDone, s.readDone} {
		select {
		case <-done:
		case <-timer.C:
			log.Warning("Session workers for %s did not exit within %s", s.candidate.Address, timeout)
			return false
		}
	}
	return true
}
