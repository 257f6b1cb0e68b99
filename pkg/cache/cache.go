package cache

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/tomjod/forcemeter/pkg/measurement"
	"github.com/tomjod/forcemeter/pkg/store"
)

type History struct {
	MaxEntries   int
	Measurements map[string]*measurement.Measurement `json:"measurements"`
	// Path, if set, is rewritten after every change.
	Path string `json:"-"`
	lock sync.Mutex
}

var _ store.Store = (*History)(nil)

// New returns a History that holds up to maxEntries measurements.
//
// Set maxEntries to zero for an unbounded history.
func New(maxEntries int) *History {
	return &History{
		MaxEntries:   maxEntries,
		Measurements: make(map[string]*measurement.Measurement),
	}
}

// Open loads the History stored at filename, or starts an empty one if the file does not exist.
// Later changes are written back to filename.
func Open(filename string, maxEntries int) (*History, error) {
	h, err := ImportFromFile(filename)
	if os.IsNotExist(err) {
		h, err = New(maxEntries), nil
	}
	if err != nil {
		return nil, err
	}
	h.MaxEntries = maxEntries
	h.Path = filename
	return h, nil
}

// Import a History using data in r.
// The data should previously have been generated using [History.Export].
func Import(r io.Reader) (*History, error) {
	var h History
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&h); err != nil {
		return nil, err
	}
	if h.Measurements == nil {
		h.Measurements = make(map[string]*measurement.Measurement)
	}
	return &h, nil
}

// ImportFromFile reads a History from disk.
func ImportFromFile(filename string) (*History, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes a serialized History to w.
func (h *History) Export(w io.Writer) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.export(w)
}

func (h *History) export(w io.Writer) error {
	return json.NewEncoder(w).Encode(h)
}

// ExportToFile writes a History to disk.
func (h *History) ExportToFile(filename string) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.exportToFile(filename)
}

func (h *History) exportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return h.export(file)
}

// persist writes the History back to Path. Callers hold lock.
func (h *History) persist() error {
	if h.Path == "" {
		return nil
	}
	return h.exportToFile(h.Path)
}

// Save adds or replaces m.
func (h *History) Save(_ context.Context, m *measurement.Measurement) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if m.ID == "" {
		m.ID = measurement.NewID(m.Timestamp)
	}
	if m.Leg == "" {
		m.Leg = measurement.DefaultLeg
	}
	stored := *m
	h.Measurements[m.ID] = &stored
	if h.MaxEntries > 0 && len(h.Measurements) > h.MaxEntries {
		// Eviction is linear; histories are small.
		oldest := m.ID
		oldestTime := m.Timestamp
		for id, entry := range h.Measurements {
			if entry.Timestamp.Before(oldestTime) || (entry.Timestamp.Equal(oldestTime) && id < oldest) {
				oldest = id
				oldestTime = entry.Timestamp
			}
		}
		delete(h.Measurements, oldest)
	}
	return h.persist()
}

// Get returns a copy of the measurement with the given id.
func (h *History) Get(_ context.Context, id string) (*measurement.Measurement, error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	m, ok := h.Measurements[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (h *History) Delete(_ context.Context, id string) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.Measurements[id]; !ok {
		return store.ErrNotFound
	}
	delete(h.Measurements, id)
	return h.persist()
}

func (h *History) ForProfile(_ context.Context, profileID int64) ([]*measurement.Measurement, error) {
	return h.list(profileID, 0), nil
}

func (h *History) Recent(_ context.Context, profileID int64, limit int) ([]*measurement.Measurement, error) {
	if limit <= 0 {
		return nil, nil
	}
	return h.list(profileID, limit), nil
}

func (h *History) Count(_ context.Context, profileID int64) (int, error) {
	return len(h.list(profileID, 0)), nil
}

// Close flushes the History to Path.
func (h *History) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.persist()
}

// list returns copies of matching measurements, newest first. A limit of zero means no limit.
func (h *History) list(profileID int64, limit int) []*measurement.Measurement {
	h.lock.Lock()
	defer h.lock.Unlock()

	var out []*measurement.Measurement
	for _, m := range h.Measurements {
		if profileID == store.AllProfiles || m.ProfileID == profileID {
			copied := *m
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
