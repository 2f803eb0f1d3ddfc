package transport

import (
	"time"

	"github.com/muurk/cc2538-bd/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggedTransport struct {
	Transport
	logger *zap.Logger
}

// WithLogging returns t with every read and write hex-dumped at debug level.
// Loggers without debug enabled return t unchanged.
func WithLogging(t Transport, logger *zap.Logger) Transport {
	if logger == nil || !logger.Core().Enabled(zapcore.DebugLevel) {
		return t
	}
	return &loggedTransport{Transport: t, logger: logger}
}

func (l *loggedTransport) Read(p []byte) (int, error) {
	n, err := l.Transport.Read(p)
	if n > 0 {
		logging.LogBytes(l.logger, "rx", p[:n])
	}
	return n, err
}

func (l *loggedTransport) Write(p []byte) (int, error) {
	logging.LogBytes(l.logger, "tx", p)
	return l.Transport.Write(p)
}

func (l *loggedTransport) SetReadTimeout(d time.Duration) error {
	l.logger.Debug("Read timeout changed", zap.Duration("timeout", d))
	return l.Transport.SetReadTimeout(d)
}
