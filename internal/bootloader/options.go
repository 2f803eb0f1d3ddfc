package bootloader

import (
	"fmt"
	"time"

	"github.com/muurk/cc2538-bd/internal/protocol"
	"go.uber.org/zap"
)

const (
	// DefaultChunkSize is the SEND_DATA payload used when none is configured
	DefaultChunkSize = 128

	// DefaultSyncAttempts is how many times the sync bytes are sent
	DefaultSyncAttempts = 1

	// DefaultHandshakeTimeout bounds the wait for the sync ACK
	DefaultHandshakeTimeout = 1 * time.Second

	// DefaultEraseTimeout bounds each read while the device is erasing a page
	DefaultEraseTimeout = 3 * time.Second
)

// Config holds session and programmer settings.
type Config struct {
	// Logger receives frame dumps at debug and progress at info (optional)
	Logger *zap.Logger

	// ChunkSize is the data carried by each SEND_DATA, 1..251
	ChunkSize int

	// MaxPolls bounds zero length reads while waiting for a response
	MaxPolls int

	// SyncAttempts is how many times Connect sends the sync bytes
	SyncAttempts int

	// CommandTimeout is the transport read timeout used once connected
	CommandTimeout time.Duration

	// EraseTimeout is the transport read timeout while an erase runs
	EraseTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		Logger:         zap.NewNop(),
		ChunkSize:      DefaultChunkSize,
		MaxPolls:       protocol.DefaultMaxPolls,
		SyncAttempts:   DefaultSyncAttempts,
		CommandTimeout: DefaultHandshakeTimeout,
		EraseTimeout:   DefaultEraseTimeout,
	}
}

func (c Config) validate() error {
	if c.ChunkSize < 1 || c.ChunkSize > protocol.MaxSendDataSize {
		return fmt.Errorf("chunk size %d out of range 1..%d", c.ChunkSize, protocol.MaxSendDataSize)
	}
	if c.MaxPolls < 1 {
		return fmt.Errorf("max polls must be at least 1, got %d", c.MaxPolls)
	}
	if c.SyncAttempts < 1 {
		return fmt.Errorf("sync attempts must be at least 1, got %d", c.SyncAttempts)
	}
	return nil
}

// Option is a functional option for configuring a Session or Programmer.
type Option func(*Config)

// WithLogger sets the logger for bootloader operations.
//
// Example:
//
//	s := bootloader.NewSession(port, bootloader.WithLogger(logging.Named("session")))
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithChunkSize sets the data bytes per SEND_DATA (1..251).
func WithChunkSize(size int) Option {
	return func(c *Config) {
		c.ChunkSize = size
	}
}

// WithMaxPolls bounds how many not-ready reads are tolerated per response.
func WithMaxPolls(n int) Option {
	return func(c *Config) {
		c.MaxPolls = n
	}
}

// WithSyncAttempts sets how many times the sync bytes are sent before
// Connect gives up.
func WithSyncAttempts(n int) Option {
	return func(c *Config) {
		c.SyncAttempts = n
	}
}

// WithCommandTimeout sets the per-read timeout used for ordinary commands.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CommandTimeout = d
	}
}

// WithEraseTimeout sets the per-read timeout while a page erase runs.
func WithEraseTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.EraseTimeout = d
	}
}
