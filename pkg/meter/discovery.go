package meter

import (
	"context"
	"errors"
	"sync"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/connector"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

// discovery is a single scan run. The first candidate whose name equals target wins; the scan is
// stopped as soon as it is seen.
type discovery struct {
	target  string
	scanner connector.Scanner
	ctx     context.Context
	cancel  context.CancelFunc
}

func newDiscovery(ctx context.Context, cancel context.CancelFunc, scanner connector.Scanner, target string) *discovery {
	return &discovery{target: target, scanner: scanner, ctx: ctx, cancel: cancel}
}

// run blocks until a match is found, the scanner gives up, or the run is stopped. It returns
// ErrDeviceNotFound when the scanner finished without reporting the target.
func (d *discovery) run() (*connector.Candidate, error) {
	defer d.cancel()

	var lock sync.Mutex
	var match *connector.Candidate
	err := d.scanner.Scan(d.ctx, func(c connector.Candidate) {
		if c.Name != d.target {
			log.Debug("Ignoring %s (%s)", c.Name, c.Address)
			return
		}
		lock.Lock()
		defer lock.Unlock()
		if match != nil {
			return
		}
		log.Info("Found %s at %s (RSSI %d)", c.Name, c.Address, c.RSSI)
		match = &c
		d.cancel()
	})

	lock.Lock()
	defer lock.Unlock()
	if match != nil {
		return match, nil
	}
	// A scanner that gives up because the run ended reports that as an error of its own.
	switch ctxErr := d.ctx.Err(); {
	case errors.Is(ctxErr, context.Canceled):
		return nil, context.Canceled
	case ctxErr != nil:
		return nil, protocol.ErrDeviceNotFound
	case err != nil:
		return nil, err
	}
	return nil, protocol.ErrDeviceNotFound
}

func (d *discovery) stop() {
	d.cancel()
}
