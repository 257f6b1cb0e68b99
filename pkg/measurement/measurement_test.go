package measurement_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tomjod/forcemeter/pkg/measurement"
	"github.com/tomjod/forcemeter/pkg/meter"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

type fakeSource struct {
	state      meter.ConnectionState
	readings   chan *protocol.ForceReading
	subscribed chan struct{}
}

func newFakeSource(status meter.Status) *fakeSource {
	return &fakeSource{
		state:      meter.ConnectionState{Status: status},
		readings:   make(chan *protocol.ForceReading, 16),
		subscribed: make(chan struct{}),
	}
}

func (f *fakeSource) State() meter.ConnectionState {
	return f.state
}

func (f *fakeSource) SubscribeReadings(ctx context.Context) <-chan *protocol.ForceReading {
	f.readings <- &protocol.ForceReading{Primary: 999, Secondary: 999}
	close(f.subscribed)
	return f.readings
}

var _ = Describe("Session", func() {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	It("summarizes readings", func() {
		s := &measurement.Session{ProfileID: 7, Leg: measurement.LegLeft, Start: start}
		s.Add(protocol.ForceReading{Primary: 20, Secondary: 40})
		s.Add(protocol.ForceReading{Primary: 30, Secondary: 60})
		s.Add(protocol.ForceReading{Primary: 40, Secondary: 50})
		Expect(s.Len()).To(Equal(3))

		m := s.Measurement("warm-up", start.Add(12500*time.Millisecond))
		Expect(m.ProfileID).To(Equal(int64(7)))
		Expect(m.PrimaryAvg).To(BeNumerically("~", 30, 1e-5))
		Expect(m.PrimaryMax).To(BeNumerically("==", 40))
		Expect(m.SecondaryAvg).To(BeNumerically("~", 50, 1e-5))
		Expect(m.SecondaryMax).To(BeNumerically("==", 60))
		Expect(m.Ratio).To(BeNumerically("~", 0.6, 1e-5))
		Expect(m.DurationSeconds).To(Equal(12))
		Expect(m.Timestamp).To(Equal(start))
		Expect(m.Notes).To(Equal("warm-up"))
		Expect(m.Leg).To(Equal(measurement.LegLeft))
		Expect(m.ID).To(HaveLen(26))
	})

	It("yields zeros for an empty session", func() {
		s := &measurement.Session{ProfileID: 1, Start: start}
		m := s.Measurement("", start)
		Expect(m.PrimaryAvg).To(BeZero())
		Expect(m.SecondaryMax).To(BeZero())
		Expect(m.Ratio).To(BeZero())
		Expect(m.Leg).To(Equal(measurement.LegRight))
	})

	It("reports a zero ratio when the secondary channel is idle", func() {
		s := &measurement.Session{Start: start}
		s.Add(protocol.ForceReading{Primary: 5})
		Expect(s.Measurement("", start).Ratio).To(BeZero())
	})

	It("issues sortable ids", func() {
		Expect(measurement.NewID(start) < measurement.NewID(start.Add(time.Millisecond))).To(BeTrue())
	})
})

var _ = Describe("ParseLeg", func() {
	DescribeTable("accepts",
		func(input string, expected measurement.Leg) {
			Expect(measurement.ParseLeg(input)).To(Equal(expected))
		},
		Entry("empty", "", measurement.LegRight),
		Entry("left", "left", measurement.LegLeft),
		Entry("short right", "R", measurement.LegRight),
		Entry("capitalized", "Left", measurement.LegLeft),
	)

	It("rejects anything else", func() {
		_, err := measurement.ParseLeg("both")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Wire encoding", func() {
	It("preserves every field", func() {
		m := &measurement.Measurement{
			ID:              "01HQ4Z3V4N8Q4W8Y3G0V6Y2J9K",
			ProfileID:       42,
			PrimaryAvg:      31.5,
			PrimaryMax:      44.25,
			SecondaryAvg:    52,
			SecondaryMax:    69.5,
			Ratio:           0.6057692,
			Timestamp:       time.UnixMilli(1709287200123),
			DurationSeconds: 15,
			Notes:           "after rehab",
			Leg:             measurement.LegLeft,
		}
		encoded, err := m.MarshalBinary()
		Expect(err).NotTo(HaveOccurred())

		var decoded measurement.Measurement
		Expect(decoded.UnmarshalBinary(encoded)).To(Succeed())
		Expect(decoded.Timestamp.Equal(m.Timestamp)).To(BeTrue())
		decoded.Timestamp = m.Timestamp
		Expect(&decoded).To(Equal(m))
	})

	It("skips unknown fields", func() {
		m := &measurement.Measurement{ID: "x", Leg: measurement.LegRight}
		encoded, _ := m.MarshalBinary()
		encoded = protowire.AppendTag(encoded, 99, protowire.VarintType)
		encoded = protowire.AppendVarint(encoded, 5)
		var decoded measurement.Measurement
		Expect(decoded.UnmarshalBinary(encoded)).To(Succeed())
		Expect(decoded.ID).To(Equal("x"))
	})

	It("rejects truncated input", func() {
		m := &measurement.Measurement{ID: "01HQ4Z3V4N8Q4W8Y3G0V6Y2J9K"}
		encoded, _ := m.MarshalBinary()
		var decoded measurement.Measurement
		Expect(decoded.UnmarshalBinary(encoded[:5])).To(MatchError(measurement.ErrMalformed))
	})
})

var _ = Describe("Recorder", func() {
	It("refuses to record while disconnected", func() {
		r := measurement.NewRecorder(newFakeSource(meter.Disconnected))
		_, err := r.Record(context.Background(), measurement.NewSession(1, ""), time.Second, "")
		Expect(err).To(MatchError(protocol.ErrNotConnected))
	})

	It("records readings that arrive during the session", func() {
		source := newFakeSource(meter.Connected)
		r := measurement.NewRecorder(source)
		session := measurement.NewSession(3, measurement.LegRight)
		go func() {
			<-source.subscribed
			source.readings <- &protocol.ForceReading{Primary: 10, Secondary: 20}
			source.readings <- &protocol.ForceReading{Primary: 30, Secondary: 40}
		}()
		m, err := r.Record(context.Background(), session, 200*time.Millisecond, "test")
		Expect(err).NotTo(HaveOccurred())
		Expect(session.Len()).To(Equal(2))
		Expect(m.PrimaryMax).To(BeNumerically("==", 30))
		Expect(m.PrimaryAvg).To(BeNumerically("==", 20))
	})

	It("returns a partial measurement when the link drops", func() {
		source := newFakeSource(meter.Connected)
		r := measurement.NewRecorder(source)
		go func() {
			<-source.subscribed
			source.readings <- &protocol.ForceReading{Primary: 10, Secondary: 20}
			source.readings <- nil
		}()
		m, err := r.Record(context.Background(), measurement.NewSession(3, ""), 5*time.Second, "")
		Expect(err).To(MatchError(protocol.ErrNotConnected))
		Expect(m.PrimaryAvg).To(BeNumerically("==", 10))
	})

	It("stops when the caller cancels", func() {
		ctx, cancel := context.WithCancel(context.Background())
		r := measurement.NewRecorder(newFakeSource(meter.Connected))
		cancel()
		_, err := r.Record(ctx, measurement.NewSession(3, ""), 5*time.Second, "")
		Expect(err).To(MatchError(context.Canceled))
	})
})
