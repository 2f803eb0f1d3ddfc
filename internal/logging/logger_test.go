package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		env       string
		wantDebug bool
		wantInfo  bool
	}{
		{name: "silent by default", level: "", env: "", wantDebug: false, wantInfo: false},
		{name: "explicit debug", level: "debug", wantDebug: true, wantInfo: true},
		{name: "explicit warn", level: "warn", wantDebug: false, wantInfo: false},
		{name: "from environment", level: "", env: "info", wantDebug: false, wantInfo: true},
		{name: "unknown level falls back to info", level: "loud", wantDebug: false, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(LogLevelEnvVar, tt.env)

			if err := Initialize(tt.level); err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}
			core := GetLogger().Core()
			if got := core.Enabled(zapcore.DebugLevel); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := core.Enabled(zapcore.InfoLevel); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
		})
	}
}

func TestLogFrame(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	LogFrame(l, "tx", "PING", []byte{0x03, 0x20, 0x20})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["hex"] != "032020" {
		t.Errorf("hex = %v, want 032020", fields["hex"])
	}
	if fields["frame"] != "PING" {
		t.Errorf("frame = %v, want PING", fields["frame"])
	}
}

func TestLogBytesSkippedAboveDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	LogBytes(zap.New(core), "rx", []byte{0x00, 0xCC})
	LogBytes(nil, "rx", []byte{0x00, 0xCC})

	if logs.Len() != 0 {
		t.Errorf("got %d entries at info level, want 0", logs.Len())
	}
}

func TestHexDumpTruncates(t *testing.T) {
	data := make([]byte, 300)
	got := hexDump(data)
	if len(got) != 512+3 {
		t.Errorf("len(hexDump(300 bytes)) = %d, want %d", len(got), 512+3)
	}
	if hexDump(nil) != "" {
		t.Error("hexDump(nil) should be empty")
	}
}
