//go:build !windows

package transport

import (
	"fmt"
	"time"

	"github.com/pkg/term"
)

// termPort drives a tty through raw termios. VMIN=0/VTIME makes a read
// return empty when the timeout passes.
type termPort struct {
	t *term.Term
}

// OpenTerm opens dev in raw mode at the configured speed.
func OpenTerm(dev string, opts Options) (Transport, error) {
	opts = opts.withDefaults()

	t, err := term.Open(dev,
		term.RawMode,
		term.Speed(opts.BaudRate),
		term.ReadTimeout(opts.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("opening term(%s): %w", dev, err)
	}

	// term.Flush discards pending input and output
	if err := t.Flush(); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("flushing term(%s): %w", dev, err)
	}

	return &termPort{t: t}, nil
}

func (p *termPort) Read(b []byte) (int, error)  { return p.t.Read(b) }
func (p *termPort) Write(b []byte) (int, error) { return p.t.Write(b) }
func (p *termPort) Close() error                { return p.t.Close() }

func (p *termPort) SetReadTimeout(d time.Duration) error {
	return p.t.SetReadTimeout(d)
}

// Flush is a no-op: a tty write returns once the driver holds the bytes.
func (p *termPort) Flush() error { return nil }
