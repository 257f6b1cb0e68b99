package rfcomm

import (
	"context"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// dial opens a non-blocking RFCOMM socket and waits for the connect to complete. The returned file
// is registered with the runtime poller, so closing it unblocks a pending Read.
func dial(ctx context.Context, addr Address, channel uint8, poll time.Duration) (*os.File, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	err = unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: addr.bdaddr(), Channel: channel})
	if err == unix.EINPROGRESS {
		err = waitConnected(ctx, fd, poll)
	} else if err != nil {
		err = os.NewSyscallError("connect", err)
	}
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), "rfcomm:"+addr.String()), nil
}

func waitConnected(ctx context.Context, fd int, poll time.Duration) error {
	timeout := int(poll / time.Millisecond)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, timeout)
		if err == unix.EINTR || n == 0 {
			continue
		}
		if err != nil {
			return os.NewSyscallError("poll", err)
		}
		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return os.NewSyscallError("getsockopt", err)
		}
		if soErr != 0 {
			return os.NewSyscallError("connect", syscall.Errno(soErr))
		}
		return nil
	}
}
