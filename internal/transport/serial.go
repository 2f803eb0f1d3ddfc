package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// serialPort adapts go.bug.st/serial, whose Read already returns (0, nil)
// on timeout.
type serialPort struct {
	port serial.Port
}

// OpenSerial opens a native serial port at 8N1 without flow control.
func OpenSerial(name string, opts Options) (Transport, error) {
	opts = opts.withDefaults()

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", name, err)
	}

	// Stale bytes from a previous session would be taken for an ACK
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", name, err)
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}

	return &serialPort{port: port}, nil
}

func (s *serialPort) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialPort) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialPort) Close() error                { return s.port.Close() }

func (s *serialPort) SetReadTimeout(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

func (s *serialPort) Flush() error {
	return s.port.Drain()
}
