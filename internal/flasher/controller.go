package flasher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muurk/cc2538-bd/internal/bootloader"
	"github.com/muurk/cc2538-bd/internal/transport"
	"go.uber.org/zap"
)

var (
	// ErrEmptyImage is returned by Flash for a zero-length image
	ErrEmptyImage = errors.New("image is empty")

	// ErrInvalidRegion wraps flash region geometry errors found before any device I/O
	ErrInvalidRegion = errors.New("invalid flash region")
)

// DialFunc opens the transport to the device.
type DialFunc func(ctx context.Context) (transport.Transport, error)

// Config holds the settings for one flashing run.
type Config struct {
	// Port is the serial device, term: path or ws:// bridge URL
	Port string

	// BaudRate for the UART. Default: 115200
	BaudRate int

	// Timeout bounds the handshake and every command read. Default: 1s
	Timeout time.Duration

	// EraseTimeout bounds each read while a page erase runs. Default: 3s
	EraseTimeout time.Duration

	// Region is the target flash. Default: 512 KiB CC2538
	Region bootloader.FlashRegion

	// Start is where the image is written. Default: Region.Start
	Start uint32

	// ChunkSize is the data per SEND_DATA. Default: 128
	ChunkSize int

	// WriteCCA writes the customer configuration area after programming
	WriteCCA bool

	// CCAEntry is the application entry written to the CCA. Default: Start
	CCAEntry uint32

	// Verify compares the device CRC32 with the image after programming
	Verify bool

	// Dial replaces transport.Open, mainly for tests
	Dial DialFunc
}

// DefaultConfig returns a Config for a 512 KiB CC2538 at 115200 baud.
func DefaultConfig() Config {
	return Config{
		BaudRate:     transport.DefaultBaudRate,
		Timeout:      transport.DefaultReadTimeout,
		EraseTimeout: bootloader.DefaultEraseTimeout,
		Region:       bootloader.CC2538SF53,
		Start:        bootloader.CC2538SF53.Start,
		ChunkSize:    bootloader.DefaultChunkSize,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaudRate <= 0 {
		c.BaudRate = def.BaudRate
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.EraseTimeout <= 0 {
		c.EraseTimeout = def.EraseTimeout
	}
	if c.Region == (bootloader.FlashRegion{}) {
		c.Region = def.Region
	}
	if c.Start == 0 {
		c.Start = c.Region.Start
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.CCAEntry == 0 {
		c.CCAEntry = c.Start
	}
	return c
}

// Result summarises a flashing run. On failure it describes how far the
// run got before the error.
type Result struct {
	ChipID       uint16
	PagesErased  int
	BytesWritten int
	CCAWritten   bool
	Verified     bool
	Reset        bool
	Duration     time.Duration
}

// Controller drives complete flashing, dump and info runs.
type Controller struct {
	config Config
	logger *zap.Logger
}

// NewController creates a controller with the given configuration.
func NewController(config Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		config: config.withDefaults(),
		logger: logger,
	}
}

// Config returns the effective configuration
func (c *Controller) Config() Config {
	return c.config
}

// connect opens the transport, performs the handshake and returns a
// programmer over the session. The caller must Disconnect the session.
func (c *Controller) connect(ctx context.Context) (*bootloader.Session, *bootloader.Programmer, error) {
	dial := c.config.Dial
	if dial == nil {
		dial = func(ctx context.Context) (transport.Transport, error) {
			return transport.Open(ctx, c.config.Port, transport.Options{
				BaudRate:    c.config.BaudRate,
				ReadTimeout: c.config.Timeout,
				Logger:      c.logger.Named("transport"),
			})
		}
	}

	t, err := dial(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", c.config.Port, err)
	}

	s, err := bootloader.NewSession(t,
		bootloader.WithLogger(c.logger.Named("session")),
		bootloader.WithChunkSize(c.config.ChunkSize),
		bootloader.WithCommandTimeout(c.config.Timeout),
		bootloader.WithEraseTimeout(c.config.EraseTimeout),
	)
	if err != nil {
		_ = t.Close()
		return nil, nil, err
	}

	if err := s.Connect(c.config.Timeout); err != nil {
		_ = s.Disconnect()
		return nil, nil, err
	}

	p, err := bootloader.NewProgrammer(s, c.config.Region,
		bootloader.WithLogger(c.logger.Named("programmer")),
	)
	if err != nil {
		_ = s.Disconnect()
		return nil, nil, err
	}

	return s, p, nil
}

func (c *Controller) validate(size int) error {
	cfg := c.config
	if err := cfg.Region.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRegion, err)
	}
	if size == 0 {
		return ErrEmptyImage
	}
	if cfg.Start < cfg.Region.Start || cfg.Start >= cfg.Region.End() {
		return &bootloader.AlignmentError{Address: cfg.Start, Size: uint32(size), Reason: "outside flash region " + cfg.Region.String()}
	}
	if (cfg.Start-cfg.Region.Start)%cfg.Region.PageSize != 0 {
		return &bootloader.AlignmentError{Address: cfg.Start, Size: uint32(size), Reason: "address is not on a page boundary"}
	}

	capacity := int(cfg.Region.End() - cfg.Start)
	if cfg.WriteCCA {
		capacity -= int(cfg.Region.PageSize)
	}
	if size > capacity {
		return &bootloader.ImageTooLargeError{Size: size, Capacity: max(capacity, 0)}
	}
	return nil
}

// Flash writes image to the device:
//  1. Validate the image against the region (no device I/O on failure)
//  2. Connect and read the chip ID
//  3. Erase the pages the image spans
//  4. Program the image
//  5. Optionally write the CCA and verify the CRC32
//  6. Reset into the new image and disconnect
//
// The first error stops the run; the device is left as it was at that point.
func (c *Controller) Flash(ctx context.Context, image []byte) (*Result, error) {
	startTime := time.Now()
	result := &Result{}

	if err := c.validate(len(image)); err != nil {
		return result, err
	}

	c.logger.Info("flashing image",
		zap.String("port", c.config.Port),
		zap.Int("bytes", len(image)),
		zap.String("start", fmt.Sprintf("0x%08X", c.config.Start)),
		zap.Bool("cca", c.config.WriteCCA),
		zap.Bool("verify", c.config.Verify),
	)

	s, p, err := c.connect(ctx)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := s.Disconnect(); err != nil {
			c.logger.Debug("disconnect failed", zap.Error(err))
		}
		result.Duration = time.Since(startTime)
	}()

	rawID, err := s.GetChipID()
	if err != nil {
		return result, fmt.Errorf("get chip id: %w", err)
	}
	result.ChipID = bootloader.ChipID(rawID)
	c.logger.Info("chip detected", zap.String("chip_id", fmt.Sprintf("0x%04X", result.ChipID)))

	eraseStart, eraseSize := c.config.Region.PageSpan(c.config.Start, uint32(len(image)))
	if err := p.EraseRegion(ctx, eraseStart, eraseSize); err != nil {
		return result, err
	}
	result.PagesErased = int(eraseSize / c.config.Region.PageSize)

	if err := p.ProgramRegion(ctx, c.config.Start, image); err != nil {
		return result, err
	}
	result.BytesWritten = len(image)

	if c.config.WriteCCA {
		if err := p.WriteCCA(ctx, bootloader.NewCCAFooter(c.config.CCAEntry)); err != nil {
			return result, err
		}
		result.CCAWritten = true
		result.PagesErased++
	}

	if c.config.Verify {
		if err := p.VerifyCRC(ctx, c.config.Start, image); err != nil {
			return result, err
		}
		result.Verified = true
	}

	if err := s.Reset(); err != nil {
		return result, fmt.Errorf("reset: %w", err)
	}
	result.Reset = true

	return result, nil
}

// Dump reads length bytes at addr. Nothing is erased, written or reset.
func (c *Controller) Dump(ctx context.Context, addr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, fmt.Errorf("nothing to read: length is zero")
	}

	s, p, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Disconnect()

	c.logger.Info("reading memory",
		zap.String("address", fmt.Sprintf("0x%08X", addr)),
		zap.Uint32("length", length),
	)
	return p.ReadRegion(ctx, addr, length)
}

// Info connects and reports the chip ID and die flash size.
func (c *Controller) Info(ctx context.Context) (bootloader.ChipInfo, error) {
	s, p, err := c.connect(ctx)
	if err != nil {
		return bootloader.ChipInfo{}, err
	}
	defer s.Disconnect()

	info, err := p.ReadChipInfo(ctx)
	if err != nil {
		return info, err
	}
	if info.FlashSize != c.config.Region.Size {
		c.logger.Warn("die flash size differs from the configured region",
			zap.Uint32("die_bytes", info.FlashSize),
			zap.Uint32("region_bytes", c.config.Region.Size),
		)
	}
	return info, nil
}

// Ping connects and checks the bootloader answers PING.
func (c *Controller) Ping(ctx context.Context) (time.Duration, error) {
	s, _, err := c.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer s.Disconnect()

	start := time.Now()
	if err := s.Ping(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// IsValidationError reports whether err was raised before any device I/O.
func IsValidationError(err error) bool {
	var tooLarge *bootloader.ImageTooLargeError
	var align *bootloader.AlignmentError
	return errors.As(err, &tooLarge) || errors.As(err, &align) ||
		errors.Is(err, ErrEmptyImage) || errors.Is(err, ErrInvalidRegion)
}
