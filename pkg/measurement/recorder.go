package measurement

import (
	"context"
	"fmt"
	"time"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/meter"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

// Source is the part of a meter.Meter a Recorder needs.
type Source interface {
	State() meter.ConnectionState
	SubscribeReadings(ctx context.Context) <-chan *protocol.ForceReading
}

// Recorder captures timed sessions from a Source.
type Recorder struct {
	source Source
	now    func() time.Time
}

func NewRecorder(source Source) *Recorder {
	return &Recorder{source: source, now: time.Now}
}

// Record collects readings into session until duration elapses or ctx is done. Only readings that
// arrive after Record is called are counted.
//
// If the link drops, Record returns the partial measurement together with ErrNotConnected.
func (r *Recorder) Record(ctx context.Context, session *Session, duration time.Duration, notes string) (*Measurement, error) {
	if r.source.State().Status != meter.Connected {
		return nil, protocol.ErrNotConnected
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	readings := r.source.SubscribeReadings(ctx)
	// The first value is whatever reading was already current.
	<-readings

	finish := func() (*Measurement, error) {
		m := session.Measurement(notes, r.now())
		if err := parent.Err(); err != nil {
			return m, err
		}
		if ctx.Err() == nil {
			// Subscription closed without our context ending: the meter was released.
			return m, protocol.ErrReleased
		}
		return m, nil
	}

	log.Info("Recording for %s (profile %d, %s leg)", duration, session.ProfileID, session.Leg)
	for {
		select {
		case reading, ok := <-readings:
			if !ok {
				return finish()
			}
			if reading == nil {
				m := session.Measurement(notes, r.now())
				return m, fmt.Errorf("recording stopped after %d readings: %w", session.Len(), protocol.ErrNotConnected)
			}
			session.Add(*reading)
		case <-ctx.Done():
			return finish()
		}
	}
}
