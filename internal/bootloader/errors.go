package bootloader

import (
	"errors"
	"fmt"

	"github.com/muurk/cc2538-bd/internal/protocol"
)

var (
	// ErrHandshakeFailed is wrapped by every *HandshakeError
	ErrHandshakeFailed = errors.New("bootloader handshake failed")

	// ErrFrameRejected is wrapped by every *FrameRejectedError
	ErrFrameRejected = errors.New("frame rejected by device")

	// ErrNotConnected is returned when a command is issued outside the Ready state
	ErrNotConnected = errors.New("bootloader session not connected")

	// Re-exported so callers can match transport and codec failures
	// without importing the protocol package.
	ErrTransportTimeout = protocol.ErrTransportTimeout
)

// HandshakeError is returned when the device does not answer the sync
// sequence with an ACK.
type HandshakeError struct {
	Attempts int
	Got      []byte // Bytes received instead of 00 CC, if any
	Err      error  // Underlying transport error, if any
}

func (e *HandshakeError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v after %d attempt(s): %v", ErrHandshakeFailed, e.Attempts, e.Err)
	case len(e.Got) > 0:
		return fmt.Sprintf("%v after %d attempt(s): expected 00 CC, got % X", ErrHandshakeFailed, e.Attempts, e.Got)
	default:
		return fmt.Sprintf("%v after %d attempt(s): no response", ErrHandshakeFailed, e.Attempts)
	}
}

func (e *HandshakeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrHandshakeFailed, e.Err}
	}
	return []error{ErrHandshakeFailed}
}

// FrameRejectedError is returned when the device NACKs a command frame.
type FrameRejectedError struct {
	Command protocol.Opcode
}

func (e *FrameRejectedError) Error() string {
	return fmt.Sprintf("%v: %v", ErrFrameRejected, e.Command)
}

func (e *FrameRejectedError) Unwrap() error {
	return ErrFrameRejected
}

// AckError is returned when the two bytes after a command are neither
// ACK nor NACK.
type AckError struct {
	Command protocol.Opcode
	Got     []byte
	Err     error // Read failure after the bad lead byte, if any
}

func (e *AckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid acknowledge for %v: % X: %v", e.Command, e.Got, e.Err)
	}
	return fmt.Sprintf("invalid acknowledge for %v: % X", e.Command, e.Got)
}

func (e *AckError) Unwrap() error {
	return e.Err
}

// DeviceStatusError is returned when GET_STATUS reports anything but SUCCESS.
type DeviceStatusError struct {
	Command protocol.Opcode
	Status  protocol.Status
}

func (e *DeviceStatusError) Error() string {
	return fmt.Sprintf("%v failed with device status %v (0x%02X)", e.Command, e.Status, byte(e.Status))
}

// EraseFailedError is returned when the device cannot erase a page.
type EraseFailedError struct {
	Address uint32
	Err     error
}

func (e *EraseFailedError) Error() string {
	return fmt.Sprintf("erase failed at 0x%08X: %v", e.Address, e.Err)
}

func (e *EraseFailedError) Unwrap() error {
	return e.Err
}

// ImageTooLargeError is returned before any device I/O when an image does
// not fit the target region.
type ImageTooLargeError struct {
	Size     int
	Capacity int
}

func (e *ImageTooLargeError) Error() string {
	return fmt.Sprintf("image too large: %d bytes, region holds %d", e.Size, e.Capacity)
}

// AlignmentError is returned for erase ranges that are not page aligned or
// fall outside the flash region.
type AlignmentError struct {
	Address uint32
	Size    uint32
	Reason  string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("invalid range 0x%08X+%d: %s", e.Address, e.Size, e.Reason)
}

// VerifyError is returned when the device CRC32 does not match the image.
type VerifyError struct {
	Address  uint32
	Size     uint32
	Expected uint32
	Actual   uint32
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verification failed for 0x%08X+%d: expected CRC32 0x%08X, device reports 0x%08X",
		e.Address, e.Size, e.Expected, e.Actual)
}
