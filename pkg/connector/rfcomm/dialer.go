package rfcomm

import (
	"context"
	"time"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/connector"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

const defaultPollInterval = 100 * time.Millisecond

// Dialer connects to the SPP service of a Candidate whose Address is a Bluetooth device address.
type Dialer struct {
	Channel uint8
	// PollInterval bounds how long a pending connect waits before re-checking ctx.
	PollInterval time.Duration
}

// NewDialer returns a Dialer for the given RFCOMM channel. A zero channel selects DefaultChannel.
func NewDialer(channel uint8) *Dialer {
	if channel == 0 {
		channel = DefaultChannel
	}
	return &Dialer{Channel: channel, PollInterval: defaultPollInterval}
}

func (d *Dialer) Dial(ctx context.Context, candidate connector.Candidate) (connector.Link, error) {
	addr, err := ParseAddress(candidate.Address)
	if err != nil {
		return nil, &protocol.ConnectError{Address: candidate.Address, Err: err}
	}
	poll := d.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	log.Debug("Dialing %s (%s) on RFCOMM channel %d...", addr, candidate.Name, d.Channel)
	file, err := dial(ctx, addr, d.Channel, poll)
	if err != nil {
		return nil, &protocol.ConnectError{Address: candidate.Address, Err: err}
	}
	return connector.NewLink(file, candidate), nil
}
