package monitor

import "time"

// SetWriteWait overrides the per-write deadline and returns a function that restores it.
func SetWriteWait(d time.Duration) (restore func()) {
	old := writeWait
	writeWait = d
	return func() { writeWait = old }
}
