package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaudRate is the rate the CC2538 ROM bootloader auto-detects most reliably
const DefaultBaudRate = 115200

// DefaultReadTimeout bounds every read unless the caller sets another
const DefaultReadTimeout = 1 * time.Second

// TermPrefix selects the raw termios backend, e.g. "term:/dev/ttyUSB0"
const TermPrefix = "term:"

// Transport is a duplex byte stream to the device.
//
// Read must return (0, nil) or (0, io.EOF) when the read timeout expires
// without data rather than blocking past it.
type Transport interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds each subsequent Read
	SetReadTimeout(d time.Duration) error

	// Flush blocks until written bytes have left the host
	Flush() error
}

// Options configures how a transport is opened
type Options struct {
	BaudRate    int
	ReadTimeout time.Duration
	Logger      *zap.Logger
}

// DefaultOptions returns 115200 baud with a one second read timeout.
func DefaultOptions() Options {
	return Options{
		BaudRate:    DefaultBaudRate,
		ReadTimeout: DefaultReadTimeout,
		Logger:      zap.NewNop(),
	}
}

func (o Options) withDefaults() Options {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Kind names the backend an address resolves to
type Kind string

const (
	KindSerial Kind = "serial"
	KindTerm   Kind = "term"
	KindBridge Kind = "bridge"
)

// Resolve reports which backend Open would use for address, and the address
// as that backend expects it.
func Resolve(address string) (Kind, string, error) {
	switch {
	case address == "":
		return "", "", fmt.Errorf("no port given")
	case strings.HasPrefix(address, "ws://"), strings.HasPrefix(address, "wss://"):
		return KindBridge, address, nil
	case strings.HasPrefix(address, TermPrefix):
		dev := strings.TrimPrefix(address, TermPrefix)
		if dev == "" {
			return "", "", fmt.Errorf("no device after %q", TermPrefix)
		}
		return KindTerm, dev, nil
	default:
		return KindSerial, address, nil
	}
}

// Open connects to the device at address and wraps the result so that every
// byte crossing it is logged at debug level.
//
// Addresses:
//   - ws://host:port/path or wss://... : network serial bridge
//   - term:/dev/ttyX                    : raw termios (unix only)
//   - anything else                     : native serial port (COM3, /dev/ttyUSB0)
func Open(ctx context.Context, address string, opts Options) (Transport, error) {
	opts = opts.withDefaults()

	kind, target, err := Resolve(address)
	if err != nil {
		return nil, err
	}

	var t Transport
	switch kind {
	case KindBridge:
		t, err = DialBridge(ctx, target, opts)
	case KindTerm:
		t, err = OpenTerm(target, opts)
	default:
		t, err = OpenSerial(target, opts)
	}
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("Transport opened",
		zap.String("kind", string(kind)),
		zap.String("address", target),
		zap.Int("baud", opts.BaudRate),
		zap.Duration("read_timeout", opts.ReadTimeout),
	)

	return WithLogging(t, opts.Logger), nil
}
