package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the bridge
	bridgeWriteWait = 10 * time.Second

	// Time allowed to establish the websocket connection
	bridgeHandshakeTimeout = 10 * time.Second
)

// ErrBridgeClosed is returned by Read and Write after the bridge connection
// has gone away.
var ErrBridgeClosed = errors.New("bridge connection closed")

// bridgePort relays the UART byte stream through a websocket serial bridge.
// Each binary message carries raw UART bytes in one direction.
//
// gorilla/websocket treats a read deadline as fatal to the connection, so a
// single pump goroutine owns ReadMessage and Read waits on its channel.
type bridgePort struct {
	conn   *websocket.Conn
	logger *zap.Logger

	incoming chan []byte
	done     chan struct{}

	mu       sync.Mutex
	pending  []byte
	timeout  time.Duration
	readErr  error
	closeOne sync.Once
}

// DialBridge connects to a websocket serial bridge exposing the UART as
// binary messages, such as 'cc2538-bd bridge' on the host wired to the board.
func DialBridge(ctx context.Context, url string, opts Options) (Transport, error) {
	opts = opts.withDefaults()

	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: bridgeHandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial bridge %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial bridge %s: %w", url, err)
	}

	b := &bridgePort{
		conn:     conn,
		logger:   opts.Logger,
		incoming: make(chan []byte, 64),
		done:     make(chan struct{}),
		timeout:  opts.ReadTimeout,
	}
	go b.pump()

	return b, nil
}

func (b *bridgePort) pump() {
	defer close(b.incoming)
	for {
		msgType, data, err := b.conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			b.readErr = err
			b.mu.Unlock()
			b.logger.Debug("Bridge read loop stopped", zap.Error(err))
			return
		}
		if msgType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		select {
		case b.incoming <- data:
		case <-b.done:
			return
		}
	}
}

func (b *bridgePort) Read(p []byte) (int, error) {
	b.mu.Lock()
	if len(b.pending) > 0 {
		n := copy(p, b.pending)
		b.pending = b.pending[n:]
		b.mu.Unlock()
		return n, nil
	}
	timeout := b.timeout
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-b.incoming:
		if !ok {
			return 0, b.closedErr()
		}
		n := copy(p, data)
		if n < len(data) {
			b.mu.Lock()
			b.pending = append(b.pending, data[n:]...)
			b.mu.Unlock()
		}
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

func (b *bridgePort) Write(p []byte) (int, error) {
	if err := b.conn.SetWriteDeadline(time.Now().Add(bridgeWriteWait)); err != nil {
		return 0, fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := b.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, fmt.Errorf("bridge write: %w", err)
		}
		return 0, fmt.Errorf("%w: %v", ErrBridgeClosed, err)
	}
	return len(p), nil
}

func (b *bridgePort) SetReadTimeout(d time.Duration) error {
	b.mu.Lock()
	b.timeout = d
	b.mu.Unlock()
	return nil
}

// Flush is a no-op: WriteMessage returns once the frame is on the socket.
func (b *bridgePort) Flush() error { return nil }

func (b *bridgePort) Close() error {
	var err error
	b.closeOne.Do(func() {
		close(b.done)
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = b.conn.Close()
	})
	return err
}

func (b *bridgePort) closedErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return fmt.Errorf("%w: %v", ErrBridgeClosed, b.readErr)
	}
	return ErrBridgeClosed
}
