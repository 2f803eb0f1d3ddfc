//go:build windows

package transport

import "errors"

// ErrTermUnsupported is returned for term: addresses on Windows
var ErrTermUnsupported = errors.New("raw termios transport is not available on windows")

// OpenTerm is unavailable on windows; use a plain COM port name instead.
func OpenTerm(dev string, opts Options) (Transport, error) {
	return nil, ErrTermUnsupported
}
