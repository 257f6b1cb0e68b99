package protocol

import "fmt"

// ForceReading is one decoded telemetry sample. Primary and Secondary are the two independently
// measured force channels; Ratio is the device's own primary/secondary estimate.
type ForceReading struct {
	Primary   float32 `json:"primary"`
	Secondary float32 `json:"secondary"`
	Ratio     float32 `json:"ratio"`
}

// ComputedRatio recomputes Primary/Secondary, returning 0 when Secondary is not positive.
func (r ForceReading) ComputedRatio() float32 {
	if r.Secondary > 0 {
		return r.Primary / r.Secondary
	}
	return 0
}

func (r ForceReading) String() string {
	return fmt.Sprintf("primary=%.2f secondary=%.2f ratio=%.3f", r.Primary, r.Secondary, r.Ratio)
}
