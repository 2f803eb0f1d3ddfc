package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportTimeout is returned when the device does not answer in time
	ErrTransportTimeout = errors.New("transport timeout")

	// ErrMalformedFrame is returned for frames whose length byte is unusable
	ErrMalformedFrame = errors.New("malformed frame")
)

// TimeoutError records which read ran out of time and how far it got.
type TimeoutError struct {
	Op   string // e.g. "read ack"
	Want int    // Bytes expected
	Got  int    // Bytes received before the timeout
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %v (got %d of %d bytes)", e.Op, ErrTransportTimeout, e.Got, e.Want)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTransportTimeout
}

// ChecksumMismatchError is returned when a response frame fails its checksum
type ChecksumMismatchError struct {
	Expected byte // Checksum byte sent by the device
	Actual   byte // Checksum computed over the received payload
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: device sent 0x%02X, payload sums to 0x%02X", e.Expected, e.Actual)
}

// UnexpectedStatusError is returned when GET_STATUS answers with an unknown code
type UnexpectedStatusError struct {
	Code byte
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status code 0x%02X", e.Code)
}

// PayloadTooLargeError is returned when a payload does not fit a single frame
type PayloadTooLargeError struct {
	Size int
	Max  int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload too large: %d bytes (max %d)", e.Size, e.Max)
}
