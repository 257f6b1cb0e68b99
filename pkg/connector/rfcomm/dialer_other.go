//go:build !linux

package rfcomm

import (
	"context"
	"os"
	"time"

	"github.com/tomjod/forcemeter/pkg/protocol"
)

func dial(ctx context.Context, addr Address, channel uint8, poll time.Duration) (*os.File, error) {
	return nil, protocol.ErrNotSupported
}
