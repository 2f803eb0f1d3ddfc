package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// scriptedPort replays canned device bytes one Read call at a time and
// records everything written to it. An empty chunk simulates a read timeout.
type scriptedPort struct {
	reads  [][]byte
	writes bytes.Buffer
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		return 0, io.EOF
	}
	chunk := p.reads[0]
	n := copy(b, chunk)
	if n < len(chunk) {
		p.reads[0] = chunk[n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	return p.writes.Write(b)
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    byte
	}{
		{name: "single opcode", payload: []byte{0x20}, want: 0x20},
		{name: "wraps modulo 256", payload: []byte{0xFF, 0x02}, want: 0x01},
		{name: "download command", payload: []byte{0x21, 0x00, 0x20, 0x00, 0x00, 0x00, 0x00, 0x08, 0x00}, want: 0x49},
		{name: "empty", payload: nil, want: 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.payload); got != tt.want {
				t.Errorf("Checksum() = 0x%02X, want 0x%02X", got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		wantErr bool
		verify  func(t *testing.T, f Frame)
	}{
		{
			name:    "ping",
			payload: []byte{0x20},
			verify: func(t *testing.T, f Frame) {
				want := []byte{0x03, 0x20, 0x20}
				if !bytes.Equal(f.Bytes(), want) {
					t.Errorf("Bytes() = % X, want % X", f.Bytes(), want)
				}
			},
		},
		{
			name:    "length is payload plus two",
			payload: bytes.Repeat([]byte{0x01}, 100),
			verify: func(t *testing.T, f Frame) {
				if f.Length != 102 {
					t.Errorf("Length = %d, want 102", f.Length)
				}
				if f.Checksum != 100 {
					t.Errorf("Checksum = %d, want 100", f.Checksum)
				}
			},
		},
		{
			name:    "maximum payload",
			payload: make([]byte, MaxPayloadSize),
			verify: func(t *testing.T, f Frame) {
				if int(f.Length) != MaxPayloadSize+2 {
					t.Errorf("Length = %d, want %d", f.Length, MaxPayloadSize+2)
				}
			},
		},
		{
			name:    "payload too large",
			payload: make([]byte, MaxPayloadSize+1),
			wantErr: true,
		},
		{
			name:    "empty payload",
			payload: []byte{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Encode(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Encode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.verify != nil {
				tt.verify(t, f)
			}
		})
	}
}

func TestEncodeCopiesPayload(t *testing.T) {
	payload := []byte{0x24, 0x01, 0x02}
	f, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	payload[1] = 0xFF
	if f.Payload[1] != 0x01 {
		t.Error("Encode() must not alias the caller's slice")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x20},
		{0x23},
		{0x26, 0x00, 0x20, 0x00, 0x00, 0x00, 0x00, 0x08, 0x00},
		bytes.Repeat([]byte{0xAA}, 129),
		bytes.Repeat([]byte{0xFF}, MaxPayloadSize),
	}

	for _, p := range payloads {
		f, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode(%d bytes) error = %v", len(p), err)
		}
		got, err := DecodeFrame(f.Bytes())
		if err != nil {
			t.Fatalf("DecodeFrame(%d bytes) error = %v", len(p), err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("round trip of %d bytes changed the payload", len(p))
		}
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		checkFn func(t *testing.T, err error)
	}{
		{
			name: "too short",
			raw:  []byte{0x03},
			checkFn: func(t *testing.T, err error) {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Errorf("error = %v, want ErrMalformedFrame", err)
				}
			},
		},
		{
			name: "zero length means not ready",
			raw:  []byte{0x00, 0x00, 0x40},
			checkFn: func(t *testing.T, err error) {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Errorf("error = %v, want ErrMalformedFrame", err)
				}
			},
		},
		{
			name: "length disagrees with frame size",
			raw:  []byte{0x05, 0x40, 0x40},
			checkFn: func(t *testing.T, err error) {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Errorf("error = %v, want ErrMalformedFrame", err)
				}
			},
		},
		{
			name: "bad checksum",
			raw:  []byte{0x03, 0x41, 0x40},
			checkFn: func(t *testing.T, err error) {
				var csErr *ChecksumMismatchError
				if !errors.As(err, &csErr) {
					t.Fatalf("error = %v, want *ChecksumMismatchError", err)
				}
				if csErr.Expected != 0x41 || csErr.Actual != 0x40 {
					t.Errorf("mismatch = {0x%02X, 0x%02X}, want {0x41, 0x40}", csErr.Expected, csErr.Actual)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.raw)
			if err == nil {
				t.Fatal("DecodeFrame() expected error, got nil")
			}
			tt.checkFn(t, err)
		})
	}
}

func TestReadResponse(t *testing.T) {
	t.Run("valid frame is acked", func(t *testing.T) {
		port := &scriptedPort{reads: [][]byte{{0x03, 0x40, 0x40}}}

		payload, err := ReadResponse(port, DefaultMaxPolls)
		if err != nil {
			t.Fatalf("ReadResponse() error = %v", err)
		}
		if !bytes.Equal(payload, []byte{0x40}) {
			t.Errorf("payload = % X, want 40", payload)
		}
		if !bytes.Equal(port.writes.Bytes(), AckBytes) {
			t.Errorf("written = % X, want ACK % X", port.writes.Bytes(), AckBytes)
		}
	})

	t.Run("zero length bytes are skipped", func(t *testing.T) {
		port := &scriptedPort{reads: [][]byte{{0x00}, {0x00}, {0x06, 0xB9, 0x00, 0x00, 0xB9, 0x00}}}

		payload, err := ReadResponse(port, DefaultMaxPolls)
		if err != nil {
			t.Fatalf("ReadResponse() error = %v", err)
		}
		if !bytes.Equal(payload, []byte{0x00, 0x00, 0xB9, 0x00}) {
			t.Errorf("payload = % X", payload)
		}
	})

	t.Run("corrupted checksum is not acked", func(t *testing.T) {
		port := &scriptedPort{reads: [][]byte{{0x03, 0x41, 0x40}}}

		_, err := ReadResponse(port, DefaultMaxPolls)
		var csErr *ChecksumMismatchError
		if !errors.As(err, &csErr) {
			t.Fatalf("error = %v, want *ChecksumMismatchError", err)
		}
		if port.writes.Len() != 0 {
			t.Errorf("wrote % X after a checksum mismatch, want nothing", port.writes.Bytes())
		}
	})

	t.Run("device never answers", func(t *testing.T) {
		port := &scriptedPort{reads: [][]byte{{0x00}, {0x00}, {0x00}}}

		_, err := ReadResponse(port, 3)
		if !errors.Is(err, ErrTransportTimeout) {
			t.Fatalf("error = %v, want ErrTransportTimeout", err)
		}
	})

	t.Run("truncated body times out", func(t *testing.T) {
		port := &scriptedPort{reads: [][]byte{{0x06, 0x10, 0x01}}}

		_, err := ReadResponse(port, DefaultMaxPolls)
		var tErr *TimeoutError
		if !errors.As(err, &tErr) {
			t.Fatalf("error = %v, want *TimeoutError", err)
		}
		if tErr.Want != 5 || tErr.Got != 2 {
			t.Errorf("timeout = got %d of %d, want 2 of 5", tErr.Got, tErr.Want)
		}
	})

	t.Run("length byte of one is malformed", func(t *testing.T) {
		port := &scriptedPort{reads: [][]byte{{0x01}}}

		_, err := ReadResponse(port, DefaultMaxPolls)
		if !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("error = %v, want ErrMalformedFrame", err)
		}
	})
}
