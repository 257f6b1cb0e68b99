package rfcomm

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/connector"
)

// DefaultStorageDir is where BlueZ keeps per-adapter pairing records.
const DefaultStorageDir = "/var/lib/bluetooth"

// PairedScanner reports devices already paired with the local adapters, read from BlueZ storage
// (<dir>/<adapter>/<device>/info). Classic SPP devices are normally paired once and then dialed
// directly, so this is the cheapest way to resolve a device name into an address.
type PairedScanner struct {
	Dir string
}

func (p PairedScanner) Scan(ctx context.Context, found func(connector.Candidate)) error {
	dir := p.Dir
	if dir == "" {
		dir = DefaultStorageDir
	}
	adapters, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, adapter := range adapters {
		if _, err := ParseAddress(adapter.Name()); err != nil || !adapter.IsDir() {
			continue
		}
		devices, err := os.ReadDir(filepath.Join(dir, adapter.Name()))
		if err != nil {
			log.Warning("Skipping adapter %s: %s", adapter.Name(), err)
			continue
		}
		sort.Slice(devices, func(i, j int) bool { return devices[i].Name() < devices[j].Name() })
		for _, device := range devices {
			if ctx.Err() != nil {
				return nil
			}
			addr, err := ParseAddress(device.Name())
			if err != nil || !device.IsDir() {
				continue
			}
			name, err := readDeviceName(filepath.Join(dir, adapter.Name(), device.Name(), "info"))
			if err != nil {
				log.Debug("No name recorded for %s: %s", addr, err)
				continue
			}
			found(connector.Candidate{Address: addr.String(), Name: name})
		}
	}
	return nil
}

// readDeviceName extracts Name= (or Alias= if no name is recorded) from the [General] group of a
// BlueZ info file.
func readDeviceName(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var name, alias, group string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			group = line[1 : len(line)-1]
			continue
		}
		if group != "General" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "Name":
			name = value
		case "Alias":
			alias = value
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if name == "" {
		name = alias
	}
	if name == "" {
		return "", os.ErrNotExist
	}
	return name, nil
}
