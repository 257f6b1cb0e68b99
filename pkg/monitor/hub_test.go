package monitor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tomjod/forcemeter/pkg/connector"
	"github.com/tomjod/forcemeter/pkg/meter"
	"github.com/tomjod/forcemeter/pkg/monitor"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

// chattyMeter publishes whatever is sent on push as state updates.
type chattyMeter struct {
	push chan meter.ConnectionState
}

func forward[T any](ctx context.Context, in <-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case v := <-in:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (c *chattyMeter) DeviceName() string                     { return connector.DefaultDeviceName }
func (c *chattyMeter) State() meter.ConnectionState           { return meter.ErrorState("busy") }
func (c *chattyMeter) Reading() (protocol.ForceReading, bool) { return protocol.ForceReading{}, false }
func (c *chattyMeter) Stats() protocol.DecoderStats           { return protocol.DecoderStats{} }
func (c *chattyMeter) StartScan() error                       { return nil }
func (c *chattyMeter) SendTareCommand() error                 { return nil }
func (c *chattyMeter) CalibrateChannelA(float32) error        { return nil }
func (c *chattyMeter) CalibrateChannelB(float32) error        { return nil }
func (c *chattyMeter) Disconnect()                            {}

func (c *chattyMeter) SubscribeState(ctx context.Context) <-chan meter.ConnectionState {
	return forward(ctx, c.push)
}

func (c *chattyMeter) SubscribeReadings(ctx context.Context) <-chan *protocol.ForceReading {
	return forward(ctx, make(chan *protocol.ForceReading))
}

func (c *chattyMeter) SubscribeAcks(ctx context.Context) <-chan uint64 {
	return forward(ctx, make(chan uint64))
}

var _ = Describe("A client that stops reading", func() {
	var (
		s      *monitor.Server
		server *httptest.Server
		push   chan meter.ConnectionState
		pushed atomic.Int64
		closed bool
	)

	startServer := func(writeWait time.Duration) {
		DeferCleanup(monitor.SetWriteWait(writeWait))
		m := &chattyMeter{push: make(chan meter.ConnectionState)}
		s = monitor.New(context.Background(), m, 0)
		closed = false
		DeferCleanup(func() {
			if !closed {
				s.Close()
			}
		})
		server = httptest.NewServer(s)
		DeferCleanup(server.Close)
		push = m.push
	}

	// startPushing floods the feed with 4 KB state messages until the test ends.
	startPushing := func() {
		pushed.Store(0)
		stop := make(chan struct{})
		DeferCleanup(func() { close(stop) })
		state := meter.ErrorState(strings.Repeat("x", 4096))
		go func() {
			for {
				select {
				case push <- state:
					pushed.Add(1)
				case <-stop:
					return
				}
			}
		}()
	}

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(conn.Close)
		return conn
	}

	clients := func() int {
		rr := httptest.NewRecorder()
		s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/state", nil))
		var reply struct {
			Response monitor.StateResponse `json:"response"`
		}
		Expect(json.Unmarshal(rr.Body.Bytes(), &reply)).To(Succeed())
		return reply.Response.Clients
	}

	stalled := func() bool {
		before := pushed.Load()
		time.Sleep(300 * time.Millisecond)
		return before > 0 && pushed.Load() == before
	}

	It("does not block Close", func() {
		startServer(time.Minute)
		dial()
		Eventually(clients).Should(Equal(1))
		startPushing()
		Eventually(stalled).WithTimeout(30 * time.Second).Should(BeTrue())

		done := make(chan struct{})
		go func() {
			s.Close()
			close(done)
		}()
		Eventually(done).WithTimeout(2 * time.Second).Should(BeClosed())
		closed = true
	})

	It("is dropped without starving other clients", func() {
		startServer(200 * time.Millisecond)
		dial()
		reader := dial()
		go func() {
			for {
				if _, _, err := reader.ReadMessage(); err != nil {
					return
				}
			}
		}()
		Eventually(clients).Should(Equal(2))
		startPushing()
		Eventually(clients).WithTimeout(30 * time.Second).Should(Equal(1))

		before := pushed.Load()
		Eventually(pushed.Load).Should(BeNumerically(">", before+100))
	})
})
