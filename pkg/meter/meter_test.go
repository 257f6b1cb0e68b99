package meter_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/tomjod/forcemeter/mocks"
	"github.com/tomjod/forcemeter/pkg/connector"
	"github.com/tomjod/forcemeter/pkg/meter"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

var (
	target   = connector.Candidate{Address: "24:6F:28:AA:BB:01", Name: connector.DefaultDeviceName, RSSI: -60}
	twin     = connector.Candidate{Address: "24:6F:28:AA:BB:02", Name: connector.DefaultDeviceName, RSSI: -40}
	stranger = connector.Candidate{Address: "11:22:33:44:55:66", Name: "Headphones", RSSI: -30}
)

// device is the far end of a piped link.
type device struct {
	conn     net.Conn
	received chan []byte
}

func newDevice() (*device, connector.Link) {
	local, remote := net.Pipe()
	d := &device{conn: remote, received: make(chan []byte, 16)}
	go func() {
		defer close(d.received)
		buf := make([]byte, 64)
		for {
			n, err := remote.Read(buf)
			if err != nil {
				return
			}
			d.received <- append([]byte(nil), buf[:n]...)
		}
	}()
	return d, connector.NewLink(local, target)
}

func (d *device) send(b []byte) {
	go d.conn.Write(b)
}

// scanUntilCanceled reports candidates and then keeps scanning until the run is stopped.
func scanUntilCanceled(candidates ...connector.Candidate) func(context.Context, func(connector.Candidate)) error {
	return func(ctx context.Context, found func(connector.Candidate)) error {
		for _, c := range candidates {
			found(c)
		}
		<-ctx.Done()
		return nil
	}
}

var _ = Describe("Meter", func() {
	var (
		ctrl    *gomock.Controller
		scanner *mocks.ConnectorScanner
		dialer  *mocks.ConnectorDialer
		env     *mocks.Environment
		m       *meter.Meter

		supported, permitted, enabled bool
	)

	state := func() meter.ConnectionState {
		return m.State()
	}

	status := func() meter.Status {
		return m.State().Status
	}

	hasReading := func() bool {
		_, ok := m.Reading()
		return ok
	}

	connect := func() *device {
		d, link := newDevice()
		scanner.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(scanUntilCanceled(target))
		dialer.EXPECT().Dial(gomock.Any(), target).Return(link, nil)
		Expect(m.StartScan()).To(Succeed())
		Eventually(status).Should(Equal(meter.Connected))
		return d
	}

	BeforeEach(func() {
		supported, permitted, enabled = true, true, true
		ctrl = gomock.NewController(GinkgoT())
		scanner = mocks.NewConnectorScanner(ctrl)
		dialer = mocks.NewConnectorDialer(ctrl)
		env = mocks.NewEnvironment(ctrl)
		env.EXPECT().Supported().DoAndReturn(func() bool { return supported }).AnyTimes()
		env.EXPECT().PermissionsGranted().DoAndReturn(func() bool { return permitted }).AnyTimes()
		env.EXPECT().Enabled().DoAndReturn(func() bool { return enabled }).AnyTimes()
		m = meter.New(scanner, dialer, env, meter.Config{JoinTimeout: time.Second})
		DeferCleanup(func() {
			m.Release()
			ctrl.Finish()
		})
	})

	It("starts disconnected", func() {
		Expect(state()).To(Equal(meter.ConnectionState{Status: meter.Disconnected}))
		Expect(hasReading()).To(BeFalse())
		Expect(m.DeviceName()).To(Equal(connector.DefaultDeviceName))
	})

	Context("when the environment blocks scanning", func() {
		It("reports a missing radio first", func() {
			supported, permitted, enabled = false, false, false
			Expect(m.StartScan()).To(Succeed())
			Expect(status()).To(Equal(meter.BluetoothNotSupported))
		})

		It("reports missing permissions before a disabled radio", func() {
			permitted, enabled = false, false
			Expect(m.StartScan()).To(Succeed())
			Expect(status()).To(Equal(meter.PermissionsRequired))
		})

		It("reports a disabled radio", func() {
			enabled = false
			Expect(m.StartScan()).To(Succeed())
			Expect(status()).To(Equal(meter.BluetoothDisabled))
			Consistently(status, 100*time.Millisecond).Should(Equal(meter.BluetoothDisabled))
		})

		It("scans once the radio is enabled", func() {
			enabled = false
			Expect(m.StartScan()).To(Succeed())
			Expect(status()).To(Equal(meter.BluetoothDisabled))
			enabled = true
			connect()
		})
	})

	Context("when discovering", func() {
		It("connects to the first matching device", func() {
			d, link := newDevice()
			scanner.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(scanUntilCanceled(stranger, target, twin))
			dialer.EXPECT().Dial(gomock.Any(), target).Return(link, nil)

			states := m.SubscribeState(context.Background())
			Expect(m.StartScan()).To(Succeed())
			Eventually(states).Should(Receive(Equal(meter.ConnectionState{Status: meter.Disconnected})))
			Eventually(states).Should(Receive(Equal(meter.ConnectionState{Status: meter.Scanning})))
			Eventually(states).Should(Receive(Equal(meter.ConnectionState{Status: meter.Connecting})))
			Eventually(states).Should(Receive(Equal(meter.ConnectionState{Status: meter.Connected})))

			device, ok := m.Device()
			Expect(ok).To(BeTrue())
			Expect(device).To(Equal(target))
			d.conn.Close()
		})

		It("ignores a second scan request while scanning", func() {
			scanner.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(scanUntilCanceled()).Times(1)
			Expect(m.StartScan()).To(Succeed())
			Expect(m.StartScan()).To(Succeed())
			Expect(status()).To(Equal(meter.Scanning))
			m.Disconnect()
			Expect(status()).To(Equal(meter.Disconnected))
		})

		It("cancels an unbounded scan on disconnect", func() {
			scans := make(chan context.Context, 1)
			scanner.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ func(connector.Candidate)) error {
				scans <- ctx
				<-ctx.Done()
				return ctx.Err()
			})
			Expect(m.StartScan()).To(Succeed())
			var scanCtx context.Context
			Eventually(scans).Should(Receive(&scanCtx))
			_, bounded := scanCtx.Deadline()
			Expect(bounded).To(BeFalse())
			m.Disconnect()
			Expect(scanCtx.Err()).To(MatchError(context.Canceled))
		})

		It("reports a device that never appears", func() {
			scanner.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, found func(connector.Candidate)) error {
				found(stranger)
				return nil
			})
			Expect(m.StartScan()).To(Succeed())
			Eventually(state).Should(Equal(meter.ErrorState("device not found: " + connector.DefaultDeviceName)))
		})

		It("treats a scan timeout as not found", func() {
			m = meter.New(scanner, dialer, env, meter.Config{ScanTimeout: 50 * time.Millisecond})
			scanner.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ func(connector.Candidate)) error {
				<-ctx.Done()
				return ctx.Err()
			})
			Expect(m.StartScan()).To(Succeed())
			Eventually(state).Should(Equal(meter.ErrorState("device not found: " + connector.DefaultDeviceName)))
		})

		It("reports scanner failures", func() {
			scanner.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(errors.New("adapter busy"))
			Expect(m.StartScan()).To(Succeed())
			Eventually(state).Should(Equal(meter.ErrorState("Scan failed: adapter busy")))
		})

		It("reports dial failures", func() {
			scanner.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(scanUntilCanceled(target))
			dialer.EXPECT().Dial(gomock.Any(), target).Return(nil, errors.New("host is down"))
			Expect(m.StartScan()).To(Succeed())
			Eventually(status).Should(Equal(meter.Error))
			Expect(state().Message).To(HavePrefix("Connection failed: "))
			Expect(state().Message).To(ContainSubstring("host is down"))
			Expect(m.SendTareCommand()).To(MatchError(protocol.ErrNotConnected))
		})

		It("recovers from an error with a new scan", func() {
			scanner.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(errors.New("adapter busy"))
			Expect(m.StartScan()).To(Succeed())
			Eventually(status).Should(Equal(meter.Error))
			connect()
		})
	})

	Context("when connected", func() {
		var d *device

		BeforeEach(func() {
			d = connect()
		})

		It("publishes verified readings", func() {
			readings := m.SubscribeReadings(context.Background())
			Eventually(readings).Should(Receive(BeNil()))

			d.send(protocol.EncodeFrame(protocol.ForceReading{Primary: 10, Secondary: 20, Ratio: 0.5}))
			var r *protocol.ForceReading
			Eventually(readings).Should(Receive(&r))
			Expect(*r).To(Equal(protocol.ForceReading{Primary: 10, Secondary: 20, Ratio: 0.5}))

			latest, ok := m.Reading()
			Expect(ok).To(BeTrue())
			Expect(latest.Primary).To(BeNumerically("==", 10))
			Eventually(func() uint64 { return m.Stats().Accepted }).Should(BeNumerically("==", 1))
		})

		It("drops corrupted frames", func() {
			frame := protocol.EncodeFrame(protocol.ForceReading{Primary: 1, Secondary: 2, Ratio: 0.5})
			frame[5] ^= 0x10
			d.send(frame)
			Eventually(func() uint64 { return m.Stats().Rejected }).Should(BeNumerically(">=", 1))
			Expect(hasReading()).To(BeFalse())
		})

		It("counts acknowledgments", func() {
			d.send([]byte{protocol.ACK})
			Eventually(m.Acks).Should(BeNumerically("==", 1))
		})

		It("streams the acknowledgment count", func() {
			acks := m.SubscribeAcks(context.Background())
			Eventually(acks).Should(Receive(Equal(uint64(0))))
			d.send([]byte{protocol.ACK, protocol.ACK})
			Eventually(acks).Should(Receive(Equal(uint64(2))))
		})

		It("sends commands to the device", func() {
			Expect(m.SendTareCommand()).To(Succeed())
			Eventually(d.received).Should(Receive(Equal([]byte("t\n"))))
			Expect(m.CalibrateChannelA(2280.5)).To(Succeed())
			Eventually(d.received).Should(Receive(Equal([]byte("i=2280.5\n"))))
			Expect(m.CalibrateChannelB(-7050)).To(Succeed())
			Eventually(d.received).Should(Receive(Equal([]byte("q=-7050.0\n"))))
		})

		It("returns to disconnected when the device hangs up", func() {
			d.send(protocol.EncodeFrame(protocol.ForceReading{Primary: 1, Secondary: 2, Ratio: 0.5}))
			Eventually(hasReading).Should(BeTrue())
			d.conn.Close()
			Eventually(status).Should(Equal(meter.Disconnected))
			Expect(hasReading()).To(BeFalse())
			Expect(m.SendTareCommand()).To(MatchError(protocol.ErrNotConnected))
		})

		It("tears down the link on disconnect", func() {
			d.send(protocol.EncodeFrame(protocol.ForceReading{Primary: 1, Secondary: 2, Ratio: 0.5}))
			Eventually(hasReading).Should(BeTrue())
			m.Disconnect()
			Expect(status()).To(Equal(meter.Disconnected))
			Expect(hasReading()).To(BeFalse())
			Eventually(d.received).Should(BeClosed())
			_, ok := m.Device()
			Expect(ok).To(BeFalse())
		})

		It("survives concurrent disconnects", func() {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					m.Disconnect()
				}()
			}
			wg.Wait()
			Expect(status()).To(Equal(meter.Disconnected))
		})

		It("reconnects when asked to scan again", func() {
			states := m.SubscribeState(context.Background())
			Eventually(states).Should(Receive(Equal(meter.ConnectionState{Status: meter.Connected})))
			connect()
			Eventually(states).Should(Receive(Equal(meter.ConnectionState{Status: meter.Disconnected})))
			Eventually(states).Should(Receive(Equal(meter.ConnectionState{Status: meter.Scanning})))
			Eventually(d.received).Should(BeClosed())
		})

		It("tears down the link when the radio is switched off", func() {
			enabled = false
			Expect(m.StartScan()).To(Succeed())
			Expect(status()).To(Equal(meter.BluetoothDisabled))
			Eventually(d.received).Should(BeClosed())
			Expect(hasReading()).To(BeFalse())
		})
	})

	Context("when released", func() {
		It("is idempotent", func() {
			m.Release()
			m.Release()
			Expect(status()).To(Equal(meter.Disconnected))
		})

		It("rejects further operations", func() {
			m.Release()
			Expect(m.StartScan()).To(MatchError(protocol.ErrReleased))
			Expect(m.SendTareCommand()).To(MatchError(protocol.ErrReleased))
			Expect(m.CalibrateChannelA(1)).To(MatchError(protocol.ErrReleased))
		})

		It("closes subscriptions", func() {
			states := m.SubscribeState(context.Background())
			readings := m.SubscribeReadings(context.Background())
			m.Release()
			Eventually(states).Should(BeClosed())
			Eventually(readings).Should(BeClosed())
		})

		It("disconnects a live session", func() {
			d := connect()
			m.Release()
			Eventually(d.received).Should(BeClosed())
			Expect(status()).To(Equal(meter.Disconnected))
		})
	})

	It("rejects commands while disconnected", func() {
		Expect(m.SendTareCommand()).To(MatchError(protocol.ErrNotConnected))
		Expect(m.CalibrateChannelB(1)).To(MatchError(protocol.ErrNotConnected))
	})

	It("ends subscriptions with their context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		states := m.SubscribeState(ctx)
		cancel()
		Eventually(states).Should(BeClosed())
	})
})
