package environment

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tomjod/forcemeter/internal/log"
)

// Sysfs queries Bluetooth controllers and rfkill switches through /sys.
type Sysfs struct {
	// Root is prepended to every sysfs path; empty means "/".
	Root string
	// Adapter restricts checks to one controller, e.g. "hci0". Empty means any controller.
	Adapter string
	// Probe reports whether a Bluetooth socket may be opened. Nil selects the platform probe.
	Probe func() ProbeResult
}

// ProbeResult is the outcome of trying to open a Bluetooth socket.
type ProbeResult int

const (
	ProbeOK ProbeResult = iota
	ProbeUnsupported
	ProbeDenied
)

// NewSysfs returns an Environment for the given adapter on the running host.
func NewSysfs(adapter string) *Sysfs {
	return &Sysfs{Adapter: adapter}
}

func (s *Sysfs) path(elem ...string) string {
	root := s.Root
	if root == "" {
		root = "/"
	}
	return filepath.Join(append([]string{root, "sys", "class"}, elem...)...)
}

func (s *Sysfs) controllers() []string {
	if s.Adapter != "" {
		if _, err := os.Stat(s.path("bluetooth", s.Adapter)); err != nil {
			return nil
		}
		return []string{s.Adapter}
	}
	entries, err := os.ReadDir(s.path("bluetooth"))
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		// Connection entries such as hci0:256 live alongside the controllers.
		if strings.HasPrefix(entry.Name(), "hci") && !strings.Contains(entry.Name(), ":") {
			names = append(names, entry.Name())
		}
	}
	return names
}

func (s *Sysfs) probe() ProbeResult {
	if s.Probe != nil {
		return s.Probe()
	}
	return probeSocket()
}

func (s *Sysfs) Supported() bool {
	if len(s.controllers()) == 0 {
		log.Debug("No Bluetooth controller found under %s", s.path("bluetooth"))
		return false
	}
	return s.probe() != ProbeUnsupported
}

// Enabled reports false when every Bluetooth rfkill switch is soft or hard blocked.
func (s *Sysfs) Enabled() bool {
	entries, err := os.ReadDir(s.path("rfkill"))
	if err != nil {
		// No rfkill support in the kernel means nothing can block the radio.
		return len(s.controllers()) > 0
	}
	seen := false
	for _, entry := range entries {
		dir := s.path("rfkill", entry.Name())
		if readTrimmed(filepath.Join(dir, "type")) != "bluetooth" {
			continue
		}
		seen = true
		if readTrimmed(filepath.Join(dir, "soft")) == "0" && readTrimmed(filepath.Join(dir, "hard")) == "0" {
			return true
		}
	}
	if !seen {
		return len(s.controllers()) > 0
	}
	log.Debug("All Bluetooth rfkill switches are blocked")
	return false
}

func (s *Sysfs) PermissionsGranted() bool {
	return s.probe() != ProbeDenied
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
