package protocol

import (
	"errors"
	"fmt"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// MayHaveSucceeded returns true if the Error was triggered by a command that might have reached
	// the device. For example, a write that fails halfway through a line may still have been
	// executed by the firmware.
	MayHaveSucceeded() bool

	// Temporary returns true if the Error might be the result of a transient condition, such as a
	// busy radio or a device that is still booting.
	Temporary() bool
}

var (
	// ErrNotConnected indicates a command was issued while no session was live.
	ErrNotConnected = NewError("force meter not connected", false, false)
	// ErrReleased indicates the meter was used after Release.
	ErrReleased = NewError("force meter has been released", false, false)
	// ErrNotSupported indicates the selected transport is unavailable on this platform.
	ErrNotSupported = NewError("transport not supported on this platform", false, false)
	// ErrDeviceNotFound indicates discovery finished without a candidate matching the target name.
	ErrDeviceNotFound = NewError("device not found", false, true)

	// Frame diagnostics. These never leave the decoder as failures; they are passed to the
	// rejection hook.
	ErrBadLength     = errors.New("frame length mismatch")
	ErrBadTerminator = errors.New("frame missing end marker")
	ErrBadChecksum   = errors.New("frame checksum mismatch")
)

type CommandError struct {
	Err               error
	PossibleSuccess   bool
	PossibleTemporary bool
}

func NewError(message string, mayHaveSucceeded bool, temporary bool) error {
	return &CommandError{Err: errors.New(message), PossibleSuccess: mayHaveSucceeded, PossibleTemporary: temporary}
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) MayHaveSucceeded() bool {
	return e.PossibleSuccess
}

func (e *CommandError) Temporary() bool {
	return e.PossibleTemporary
}

// ConnectError indicates a link to the device could not be opened.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Address == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

func (e *ConnectError) MayHaveSucceeded() bool {
	return false
}

func (e *ConnectError) Temporary() bool {
	return true
}

// WriteError wraps a failed command write. Part of the command may have reached the device.
func WriteError(err error) error {
	return &CommandError{Err: fmt.Errorf("write failed: %w", err), PossibleSuccess: true, PossibleTemporary: true}
}

// MayHaveSucceeded returns true if err is an Error that indicates the command may have been
// executed but the client did not receive a confirmation from the device.
func MayHaveSucceeded(err error) bool {
	var commErr Error
	if errors.As(err, &commErr) && commErr.MayHaveSucceeded() {
		return true
	}
	return false
}

// Temporary returns true if err is an Error that indicates the command failed due to possibly
// transient conditions that do not require user action to resolve.
func Temporary(err error) bool {
	var commErr Error
	if errors.As(err, &commErr) && commErr.Temporary() {
		return true
	}
	return false
}

// ShouldRetry returns true if the client should retry to issue the command that triggered an error.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var e Error
	if errors.As(err, &e) {
		if e.MayHaveSucceeded() {
			return false
		}
		if e.Temporary() {
			return true
		}
	}
	return false
}
