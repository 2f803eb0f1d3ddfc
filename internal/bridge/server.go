package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/cc2538-bd/internal/logging"
	"github.com/muurk/cc2538-bd/internal/transport"
)

const (
	// DefaultPath is where clients connect, e.g. ws://host:8080/uart
	DefaultPath = "/uart"

	// Time allowed to write a message to the client
	writeWait = 10 * time.Second

	// relayReadTimeout bounds each UART read so the relay notices a closed
	// client quickly
	relayReadTimeout = 50 * time.Millisecond

	// Maximum message size accepted from a client
	maxMessageSize = 4096
)

// ErrBusy is returned to a second client while the UART is in use.
var ErrBusy = errors.New("uart already in use by another client")

// OpenFunc opens the local UART for one client session.
type OpenFunc func(ctx context.Context) (transport.Transport, error)

// Config holds the bridge server configuration
type Config struct {
	Host string
	Port int
	Path string // Default: /uart

	// Device is the local UART, in any form transport.Open accepts
	Device   string
	BaudRate int

	// CertPath and KeyPath enable TLS (wss://) when both are set
	CertPath string
	KeyPath  string

	// Open replaces transport.Open, mainly for tests
	Open OpenFunc
}

// Server exposes one local UART to websocket clients, one client at a
// time. Every binary message carries raw UART bytes; the UART is opened
// when a client connects and closed when it leaves.
type Server struct {
	config    Config
	logger    *zap.Logger
	tlsConfig *tls.Config
	upgrader  websocket.Upgrader

	listener net.Listener
	http     *http.Server
	wg       sync.WaitGroup

	mu          sync.Mutex
	activeConns map[string]*websocket.Conn
}

// New creates a bridge server. Nothing listens until Listen or Start.
func New(config Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.Open == nil {
		if config.Device == "" {
			return nil, fmt.Errorf("no UART device configured")
		}
		if kind, _, err := transport.Resolve(config.Device); err != nil {
			return nil, err
		} else if kind == transport.KindBridge {
			return nil, fmt.Errorf("cannot bridge another bridge: %s", config.Device)
		}
	}

	s := &Server{
		config:      config,
		logger:      logger,
		activeConns: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
			// Bridges are used from CLIs, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	if config.CertPath != "" || config.KeyPath != "" {
		tlsConfig, err := NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		s.tlsConfig = tlsConfig
	}

	return s, nil
}

// Listen opens the listening socket.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))

	var (
		listener net.Listener
		err      error
	)
	if s.tlsConfig != nil {
		listener, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleUpgrade)
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Addr returns the listening address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the address clients should dial.
func (s *Server) URL() string {
	scheme := "ws"
	if s.tlsConfig != nil {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s", scheme, s.Addr(), s.config.Path)
}

// Start listens (if needed) and serves until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.logger.Info("Serial bridge listening",
		zap.String("url", s.URL()),
		zap.String("device", s.config.Device),
		zap.Int("baud", s.config.BaudRate),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.http.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown requested, stopping bridge...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr

	s.mu.Lock()
	busy := len(s.activeConns) > 0
	s.mu.Unlock()
	if busy {
		s.logger.Warn("Rejected client, UART busy", zap.String("remote_addr", remoteAddr))
		http.Error(w, ErrBusy.Error(), http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	// Track active connection; a client racing the busy check loses here
	s.mu.Lock()
	if len(s.activeConns) > 0 {
		s.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrBusy.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	s.activeConns[remoteAddr] = conn
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.activeConns, remoteAddr)
		s.mu.Unlock()
		s.wg.Done()
		s.logger.Info("Client disconnected", zap.String("remote_addr", remoteAddr))
	}()

	s.logger.Info("Client connected", zap.String("remote_addr", remoteAddr))

	if err := s.relay(r.Context(), conn); err != nil {
		s.logger.Info("Relay stopped",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
	}
}

func (s *Server) openDevice(ctx context.Context) (transport.Transport, error) {
	if s.config.Open != nil {
		return s.config.Open(ctx)
	}
	return transport.Open(ctx, s.config.Device, transport.Options{
		BaudRate:    s.config.BaudRate,
		ReadTimeout: relayReadTimeout,
		Logger:      s.logger.Named("uart"),
	})
}

// relay copies bytes both ways until the client goes away or the UART
// fails. The UART is closed before relay returns.
func (s *Server) relay(ctx context.Context, conn *websocket.Conn) error {
	port, err := s.openDevice(ctx)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "cannot open uart"),
			time.Now().Add(time.Second))
		return fmt.Errorf("failed to open %s: %w", s.config.Device, err)
	}
	defer port.Close()

	if err := port.SetReadTimeout(relayReadTimeout); err != nil {
		return fmt.Errorf("failed to set uart read timeout: %w", err)
	}

	done := make(chan struct{})
	uartErr := make(chan error, 1)
	go func() {
		uartErr <- s.uartToClient(port, conn, done)
	}()

	clientErr := s.clientToUART(conn, port)
	close(done)
	if err := <-uartErr; err != nil {
		return err
	}
	return clientErr
}

func (s *Server) clientToUART(conn *websocket.Conn, port transport.Transport) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		logging.LogBytes(s.logger, "client->uart", data)
		if _, err := port.Write(data); err != nil {
			return fmt.Errorf("uart write: %w", err)
		}
	}
}

func (s *Server) uartToClient(port transport.Transport, conn *websocket.Conn, done <-chan struct{}) error {
	buf := make([]byte, 1024)
	for {
		select {
		case <-done:
			return nil
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			logging.LogBytes(s.logger, "uart->client", buf[:n])
			if werr := conn.SetWriteDeadline(time.Now().Add(writeWait)); werr != nil {
				return werr
			}
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				// Client gone; clientToUART sees it too
				return nil
			}
		}
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("uart read: %w", err)
		}
	}
}

// Shutdown stops accepting clients and closes the active one.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	// Hijacked websocket connections are not closed by http.Server
	s.mu.Lock()
	for addr, conn := range s.activeConns {
		s.logger.Info("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	s.mu.Unlock()

	err := s.http.Shutdown(ctx)

	// Wait for relays to release the UART
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All connections closed gracefully")
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout, forcing close")
	}

	return err
}

// GetActiveConnections returns the number of connected clients
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
