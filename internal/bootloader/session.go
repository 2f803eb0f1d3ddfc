package bootloader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/muurk/cc2538-bd/internal/logging"
	"github.com/muurk/cc2538-bd/internal/protocol"
	"github.com/muurk/cc2538-bd/internal/transport"
	"go.uber.org/zap"
)

// State is the connection state of a Session
type State int

const (
	StateDisconnected State = iota
	StateHandshaking
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session speaks the ROM bootloader protocol over a transport it owns.
//
// A Session is not safe for concurrent use; the bootloader is half duplex
// and every command must complete before the next is sent.
type Session struct {
	t      transport.Transport
	config Config
	logger *zap.Logger
	state  State
}

// NewSession wraps t. The transport is closed by Disconnect.
func NewSession(t transport.Transport, opts ...Option) (*Session, error) {
	if t == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Session{
		t:      t,
		config: cfg,
		logger: cfg.Logger,
		state:  StateDisconnected,
	}, nil
}

// State returns the current connection state
func (s *Session) State() State {
	return s.state
}

// Config returns the settings the session was built with
func (s *Session) Config() Config {
	return s.config
}

// Connect sends the 0x55 0x55 sync sequence, which also lets the ROM
// auto-detect the baud rate, and waits up to timeout for the ACK.
func (s *Session) Connect(timeout time.Duration) error {
	if s.t == nil {
		return ErrNotConnected
	}
	if s.state == StateReady {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	s.state = StateHandshaking
	if err := s.t.SetReadTimeout(timeout); err != nil {
		s.state = StateDisconnected
		return &HandshakeError{Err: fmt.Errorf("set read timeout: %w", err)}
	}

	var last *HandshakeError
	for attempt := 1; attempt <= s.config.SyncAttempts; attempt++ {
		s.logger.Debug("Sending sync", zap.Int("attempt", attempt))

		got, err := s.sync()
		if err == nil {
			s.state = StateReady
			s.logger.Info("Bootloader connected", zap.Int("attempts", attempt))
			if err := s.t.SetReadTimeout(s.config.CommandTimeout); err != nil {
				s.state = StateDisconnected
				return &HandshakeError{Attempts: attempt, Err: fmt.Errorf("set read timeout: %w", err)}
			}
			return nil
		}

		last = &HandshakeError{Attempts: attempt, Got: got}
		if got == nil && !errors.Is(err, protocol.ErrTransportTimeout) {
			last.Err = err
			break
		}
	}

	s.state = StateDisconnected
	s.logger.Warn("Bootloader handshake failed", zap.Error(last))
	return last
}

func (s *Session) sync() ([]byte, error) {
	if _, err := s.t.Write(protocol.SyncBytes); err != nil {
		return nil, fmt.Errorf("write sync: %w", err)
	}
	if err := s.t.Flush(); err != nil {
		return nil, fmt.Errorf("flush sync: %w", err)
	}

	buf := make([]byte, 2)
	if err := protocol.ReadFull(s.t, buf, "read sync ack"); err != nil {
		var tErr *protocol.TimeoutError
		if errors.As(err, &tErr) {
			return buf[:tErr.Got], err
		}
		return nil, err
	}
	if !bytes.Equal(buf, protocol.AckBytes) {
		return buf, fmt.Errorf("unexpected sync response % X", buf)
	}
	return buf, nil
}

// SendCommand frames cmd, writes it and waits for the device's
// acknowledgement. It returns false with a nil error on NACK.
func (s *Session) SendCommand(cmd protocol.Command) (bool, error) {
	if s.state != StateReady {
		return false, ErrNotConnected
	}

	frame, err := cmd.Encode()
	if err != nil {
		return false, fmt.Errorf("encode %v: %w", cmd.Opcode(), err)
	}
	if err := s.write(cmd.String(), frame.Bytes()); err != nil {
		return false, err
	}

	return s.readAck(cmd.Opcode())
}

func (s *Session) write(label string, raw []byte) error {
	logging.LogFrame(s.logger, "tx", label, raw)
	if _, err := s.t.Write(raw); err != nil {
		return fmt.Errorf("write %s: %w", label, err)
	}
	if err := s.t.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", label, err)
	}
	return nil
}

// readAck reads the two byte ACK/NACK. The ROM may pad with zero bytes
// while busy, so leading zeros are skipped up to MaxPolls times.
func (s *Session) readAck(op protocol.Opcode) (bool, error) {
	buf := make([]byte, 2)
	what := fmt.Sprintf("read %v ack", op)
	if err := protocol.ReadFull(s.t, buf[:1], what); err != nil {
		return false, err
	}
	for polls := 1; buf[0] == 0; polls++ {
		if err := protocol.ReadFull(s.t, buf[1:], what); err != nil {
			return false, err
		}
		switch buf[1] {
		case protocol.AckBytes[1]:
			return true, nil
		case protocol.NackBytes[1]:
			s.logger.Debug("Command rejected", zap.Stringer("command", op))
			return false, nil
		case 0:
			if polls >= s.config.MaxPolls {
				return false, &protocol.TimeoutError{Op: what, Want: 2, Got: 0}
			}
			continue
		}
		return false, &AckError{Command: op, Got: append([]byte(nil), buf...)}
	}

	// First byte was neither a pad nor the ACK lead-in
	if err := protocol.ReadFull(s.t, buf[1:], what); err != nil {
		return false, &AckError{Command: op, Got: []byte{buf[0]}, Err: err}
	}
	return false, &AckError{Command: op, Got: append([]byte(nil), buf...)}
}

// Receive reads one response frame and acknowledges it.
func (s *Session) Receive() ([]byte, error) {
	if s.state != StateReady {
		return nil, ErrNotConnected
	}
	payload, err := protocol.ReadResponse(s.t, s.config.MaxPolls)
	if err != nil {
		return nil, err
	}
	logging.LogFrame(s.logger, "rx", "response", payload)
	return payload, nil
}

// GetLastStatus asks the device for the result of the previous command.
func (s *Session) GetLastStatus() (protocol.Status, error) {
	if err := s.mustSend(protocol.GetStatus()); err != nil {
		return 0, err
	}

	payload, err := s.Receive()
	if err != nil {
		return 0, fmt.Errorf("read status: %w", err)
	}
	if len(payload) != 1 {
		return 0, fmt.Errorf("read status: %w: %d byte response", protocol.ErrMalformedFrame, len(payload))
	}
	return protocol.ParseStatus(payload[0])
}

// mustSend sends cmd and turns a NACK into *FrameRejectedError.
func (s *Session) mustSend(cmd protocol.Command) error {
	ok, err := s.SendCommand(cmd)
	if err != nil {
		return err
	}
	if !ok {
		return &FrameRejectedError{Command: cmd.Opcode()}
	}
	return nil
}

// Exec sends a status-bearing command and requires both an ACK and a
// SUCCESS status.
func (s *Session) Exec(cmd protocol.Command) error {
	if err := s.mustSend(cmd); err != nil {
		return err
	}
	status, err := s.GetLastStatus()
	if err != nil {
		return err
	}
	if status != protocol.StatusSuccess {
		return &DeviceStatusError{Command: cmd.Opcode(), Status: status}
	}
	return nil
}

// Ping checks that the bootloader still answers.
func (s *Session) Ping() error {
	return s.mustSend(protocol.Ping())
}

// GetChipID returns the raw 4-byte GET_CHIP_ID response.
func (s *Session) GetChipID() ([]byte, error) {
	if err := s.mustSend(protocol.GetChipID()); err != nil {
		return nil, err
	}
	id, err := s.Receive()
	if err != nil {
		return nil, fmt.Errorf("read chip id: %w", err)
	}
	if len(id) != 4 {
		return nil, fmt.Errorf("read chip id: %w: %d byte response", protocol.ErrMalformedFrame, len(id))
	}
	return id, nil
}

// ChipID extracts the part number the way the ROM reports it (bytes 2..3).
func ChipID(raw []byte) uint16 {
	if len(raw) < 4 {
		return 0
	}
	return binary.BigEndian.Uint16(raw[2:4])
}

// CRC32 asks the device to checksum size bytes at addr.
func (s *Session) CRC32(addr, size uint32) (uint32, error) {
	if err := s.mustSend(protocol.CRC32(addr, size)); err != nil {
		return 0, err
	}
	resp, err := s.Receive()
	if err != nil {
		return 0, fmt.Errorf("read crc32: %w", err)
	}
	if len(resp) != 4 {
		return 0, fmt.Errorf("read crc32: %w: %d byte response", protocol.ErrMalformedFrame, len(resp))
	}
	return binary.BigEndian.Uint32(resp), nil
}

// MemoryRead reads one access of width bytes at addr.
func (s *Session) MemoryRead(addr uint32, width protocol.AccessWidth) ([]byte, error) {
	if err := s.mustSend(protocol.MemoryRead(addr, width)); err != nil {
		return nil, err
	}
	data, err := s.Receive()
	if err != nil {
		return nil, fmt.Errorf("read memory 0x%08X: %w", addr, err)
	}
	if len(data) < int(width) {
		return nil, fmt.Errorf("read memory 0x%08X: %w: %d byte response", addr, protocol.ErrMalformedFrame, len(data))
	}
	return data[:width], nil
}

// Reset writes the RESET frame without waiting for an acknowledgement; the
// device reboots and may never send one.
func (s *Session) Reset() error {
	if s.state != StateReady {
		return ErrNotConnected
	}
	frame, err := protocol.Reset().Encode()
	if err != nil {
		return err
	}
	if err := s.write("RESET", frame.Bytes()); err != nil {
		return err
	}
	s.logger.Info("Device reset")
	return nil
}

// SetReadTimeout changes the transport read timeout for slow operations.
func (s *Session) SetReadTimeout(d time.Duration) error {
	if s.t == nil {
		return ErrNotConnected
	}
	return s.t.SetReadTimeout(d)
}

// Disconnect closes the transport. Calling it more than once is safe.
func (s *Session) Disconnect() error {
	if s.t == nil {
		return nil
	}
	err := s.t.Close()
	s.t = nil
	s.state = StateDisconnected
	s.logger.Debug("Session closed")
	return err
}
