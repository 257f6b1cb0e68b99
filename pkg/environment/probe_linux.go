package environment

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/tomjod/forcemeter/internal/log"
)

// probeSocket opens and immediately closes an RFCOMM socket.
func probeSocket() ProbeResult {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err == nil {
		unix.Close(fd)
		return ProbeOK
	}
	log.Debug("Bluetooth socket probe failed: %s", err)
	switch {
	case errors.Is(err, unix.EAFNOSUPPORT), errors.Is(err, unix.EPROTONOSUPPORT):
		return ProbeUnsupported
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return ProbeDenied
	}
	return ProbeOK
}
