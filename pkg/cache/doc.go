// Package cache keeps measurement history in a single JSON file, for setups where a database is
// unwanted (a USB stick, a shared folder, a quick field session).
//
// A [History] holds up to MaxEntries measurements. When a save would exceed that limit, the
// measurement with the oldest timestamp is evicted.
//
// If a History is exported using its [History.Export] or [History.ExportToFile] methods, the file
// contains athlete data; access controls should be used accordingly.
package cache
