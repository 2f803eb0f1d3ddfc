package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Frame layout constants
const (
	// FrameOverhead is the length and checksum bytes preceding every payload
	FrameOverhead = 2

	// MaxPayloadSize is the largest payload (opcode included) the ROM accepts
	MaxPayloadSize = 252

	// DefaultMaxPolls bounds how many empty or zero length reads are tolerated
	// while waiting for a response frame to start.
	DefaultMaxPolls = 8
)

// Handshake bytes exchanged with the ROM bootloader
var (
	SyncBytes = []byte{0x55, 0x55}
	AckBytes  = []byte{0x00, 0xCC}
	NackBytes = []byte{0x00, 0x33}
)

// Frame is a length+checksum delimited bootloader envelope
type Frame struct {
	Length   byte   // len(Payload) + 2
	Checksum byte   // sum(Payload) mod 256
	Payload  []byte // Command or response bytes
}

// Checksum returns the sum of all bytes modulo 256.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}

// Encode wraps payload in a frame. No escaping is applied; framing relies
// purely on the length prefix.
func Encode(payload []byte) (Frame, error) {
	if len(payload) == 0 {
		return Frame{}, fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}
	if len(payload) > MaxPayloadSize {
		return Frame{}, &PayloadTooLargeError{Size: len(payload), Max: MaxPayloadSize}
	}

	p := make([]byte, len(payload))
	copy(p, payload)

	return Frame{
		Length:   byte(len(p) + FrameOverhead),
		Checksum: Checksum(p),
		Payload:  p,
	}, nil
}

// Bytes returns the wire representation length‖checksum‖payload
func (f Frame) Bytes() []byte {
	out := make([]byte, 0, len(f.Payload)+FrameOverhead)
	out = append(out, f.Length, f.Checksum)
	return append(out, f.Payload...)
}

// String returns a debug representation of the frame
func (f Frame) String() string {
	return fmt.Sprintf("Frame{Length=%d, Checksum=0x%02X, Payload=% X}", f.Length, f.Checksum, f.Payload)
}

// DecodeFrame validates a complete in-memory frame and returns its payload.
func DecodeFrame(raw []byte) ([]byte, error) {
	if len(raw) < FrameOverhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(raw))
	}
	if raw[0] == 0 {
		return nil, fmt.Errorf("%w: length not yet available", ErrMalformedFrame)
	}
	if int(raw[0]) != len(raw) {
		return nil, fmt.Errorf("%w: length byte %d, frame has %d bytes", ErrMalformedFrame, raw[0], len(raw))
	}

	payload := raw[FrameOverhead:]
	if sum := Checksum(payload); sum != raw[1] {
		return nil, &ChecksumMismatchError{Expected: raw[1], Actual: sum}
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// ReadResponse reads one response frame from the device.
//
// The length byte is polled while it reads as zero (device not ready) or the
// read times out, at most maxPolls times. A checksum mismatch is returned as
// *ChecksumMismatchError and the frame is not acknowledged, leaving the caller
// to decide what to do. A valid frame is acknowledged before returning.
func ReadResponse(rw io.ReadWriter, maxPolls int) ([]byte, error) {
	if maxPolls < 1 {
		maxPolls = DefaultMaxPolls
	}

	var length byte
	var b [1]byte
	for poll := 0; length == 0; poll++ {
		if poll >= maxPolls {
			return nil, &TimeoutError{Op: "read response length", Want: 1}
		}
		n, err := rw.Read(b[:])
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read response length: %w", err)
		}
		if n == 1 {
			length = b[0]
		}
	}

	if length < FrameOverhead {
		return nil, fmt.Errorf("%w: length byte %d", ErrMalformedFrame, length)
	}

	// checksum byte followed by length-2 payload bytes
	rest := make([]byte, int(length)-1)
	if err := ReadFull(rw, rest, "read response body"); err != nil {
		return nil, err
	}

	received := rest[0]
	payload := rest[1:]
	if sum := Checksum(payload); sum != received {
		return nil, &ChecksumMismatchError{Expected: received, Actual: sum}
	}

	if _, err := rw.Write(AckBytes); err != nil {
		return nil, fmt.Errorf("write response ack: %w", err)
	}

	return payload, nil
}

// ReadFull reads exactly len(buf) bytes. A read returning no data and no
// error means the transport timed out.
func ReadFull(r io.Reader, buf []byte, op string) error {
	got := 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n == 0 {
			return &TimeoutError{Op: op, Want: len(buf), Got: got}
		}
	}
	return nil
}
