// Package measurement turns a stream of force readings into a persisted Measurement: the average
// and peak of each channel over a timed session, plus the ratio of the averages.
package measurement

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tomjod/forcemeter/pkg/protocol"
)

// Leg identifies which leg a measurement was taken on.
type Leg string

const (
	LegLeft  Leg = "Left"
	LegRight Leg = "Right"
)

// DefaultLeg is used when a session does not name one.
const DefaultLeg = LegRight

// ParseLeg accepts "left" or "right" in any case. An empty string yields DefaultLeg.
func ParseLeg(s string) (Leg, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultLeg, nil
	case "left", "l":
		return LegLeft, nil
	case "right", "r":
		return LegRight, nil
	}
	return "", fmt.Errorf("unrecognized leg '%s' (expected Left or Right)", s)
}

// Measurement is the summary of one session.
type Measurement struct {
	ID              string    `json:"id"`
	ProfileID       int64     `json:"profile_id"`
	PrimaryAvg      float32   `json:"primary_avg"`
	PrimaryMax      float32   `json:"primary_max"`
	SecondaryAvg    float32   `json:"secondary_avg"`
	SecondaryMax    float32   `json:"secondary_max"`
	Ratio           float32   `json:"ratio"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds int       `json:"duration_seconds"`
	Notes           string    `json:"notes,omitempty"`
	Leg             Leg       `json:"leg"`
}

func (m *Measurement) String() string {
	return fmt.Sprintf("%s profile=%d leg=%s primary=%.2f/%.2f secondary=%.2f/%.2f ratio=%.3f (%ds)",
		m.ID, m.ProfileID, m.Leg, m.PrimaryAvg, m.PrimaryMax, m.SecondaryAvg, m.SecondaryMax, m.Ratio,
		m.DurationSeconds)
}

// NewID returns a lexically sortable identifier for a measurement started at t.
func NewID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Session accumulates readings. It is safe for concurrent use.
type Session struct {
	ProfileID int64
	Leg       Leg
	Start     time.Time

	lock      sync.Mutex
	primary   []float64
	secondary []float64
}

// NewSession starts a session at the current time.
func NewSession(profileID int64, leg Leg) *Session {
	if leg == "" {
		leg = DefaultLeg
	}
	return &Session{ProfileID: profileID, Leg: leg, Start: time.Now()}
}

// Add appends a reading.
func (s *Session) Add(r protocol.ForceReading) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.primary = append(s.primary, float64(r.Primary))
	s.secondary = append(s.secondary, float64(r.Secondary))
}

// Len returns the number of readings added so far.
func (s *Session) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.primary)
}

// Duration returns the time elapsed between Start and now, truncated to whole seconds.
func (s *Session) Duration(now time.Time) time.Duration {
	return now.Sub(s.Start).Truncate(time.Second)
}

// Measurement summarizes the session as of now. An empty session yields zero statistics.
func (s *Session) Measurement(notes string, now time.Time) *Measurement {
	s.lock.Lock()
	defer s.lock.Unlock()
	leg := s.Leg
	if leg == "" {
		leg = DefaultLeg
	}
	m := &Measurement{
		ID:              NewID(s.Start),
		ProfileID:       s.ProfileID,
		Timestamp:       s.Start,
		DurationSeconds: int(s.Duration(now) / time.Second),
		Notes:           notes,
		Leg:             leg,
	}
	if len(s.primary) == 0 {
		return m
	}
	m.PrimaryAvg = float32(stat.Mean(s.primary, nil))
	m.PrimaryMax = float32(floats.Max(s.primary))
	m.SecondaryAvg = float32(stat.Mean(s.secondary, nil))
	m.SecondaryMax = float32(floats.Max(s.secondary))
	if m.SecondaryAvg > 0 {
		m.Ratio = m.PrimaryAvg / m.SecondaryAvg
	}
	return m
}
