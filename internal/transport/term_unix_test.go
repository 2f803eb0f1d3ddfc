//go:build !windows

package transport

import "testing"

var _ Transport = (*termPort)(nil)

func TestTermFlushKeepsPendingData(t *testing.T) {
	// Flush must not reach tcflush, which would discard queued bytes
	p := &termPort{}
	if err := p.Flush(); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}
