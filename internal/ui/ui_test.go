package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestHeaderRender(t *testing.T) {
	h := NewHeader("Flash image", "cc2538-bd flash",
		Field{Key: "Port", Value: "/dev/ttyUSB0"},
		Field{Key: "Profile", Value: "cc2538-512k"},
	).SetWidth(80)

	out := h.Render()
	for _, want := range []string{"FLASH IMAGE", "cc2538-bd flash", "/dev/ttyUSB0", "cc2538-512k"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Port") > strings.Index(out, "Profile") {
		t.Error("params should render in the order given")
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Image flashed", Field{Key: "Bytes", Value: "2000"}),
			want:   []string{"SUCCESS", "Image flashed", "Bytes", "2000"},
		},
		{
			name: "failure with hint",
			result: NewFailureResult("Flash failed", errors.New("sync failed"),
				"The device did not answer.\nTroubleshooting:\n  • Reset the board"),
			want: []string{"FAILED", "sync failed", "Troubleshooting:", "The device did not answer.", "• Reset the board"},
		},
		{
			name:   "warning",
			result: NewWarningResult("Output file exists", Field{Key: "File", Value: "dump.bin"}),
			want:   []string{"WARNING", "dump.bin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).Render()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("Render() missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestFailureHintTitleNotRepeated(t *testing.T) {
	out := NewFailureResult("x", errors.New("e"), "Troubleshooting:\n• a").SetWidth(80).Render()
	if n := strings.Count(out, "Troubleshooting:"); n != 1 {
		t.Errorf("Troubleshooting: appears %d times, want 1", n)
	}
}

func TestResultDetailOrder(t *testing.T) {
	out := NewSuccessResult("Done").AddDetail("First", "1").AddDetail("Second", "2").Render()
	if strings.Index(out, "First") > strings.Index(out, "Second") {
		t.Error("details should render in insertion order")
	}
}

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out)
	p.Header("Ping", "cc2538-bd ping")
	p.Success("Bootloader answered", Field{Key: "Round trip", Value: "3ms"})

	for _, want := range []string{"PING", "Bootloader answered", "3ms"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "y", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got := Confirm(strings.NewReader(tt.input), &out, "Erase flash", []string{"Pages will be erased"})
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
