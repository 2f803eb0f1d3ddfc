package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestCommandPayloads(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{name: "ping", cmd: Ping(), want: []byte{0x20}},
		{name: "get status", cmd: GetStatus(), want: []byte{0x23}},
		{name: "reset", cmd: Reset(), want: []byte{0x25}},
		{name: "get chip id", cmd: GetChipID(), want: []byte{0x28}},
		{name: "set xosc", cmd: SetXOSC(), want: []byte{0x29}},
		{
			name: "download",
			cmd:  Download(0x00200000, 2048),
			want: []byte{0x21, 0x00, 0x20, 0x00, 0x00, 0x00, 0x00, 0x08, 0x00},
		},
		{
			name: "erase",
			cmd:  Erase(0x00200800, 0x1000),
			want: []byte{0x26, 0x00, 0x20, 0x08, 0x00, 0x00, 0x00, 0x10, 0x00},
		},
		{
			name: "crc32",
			cmd:  CRC32(0x00200000, 0x7D0),
			want: []byte{0x27, 0x00, 0x20, 0x00, 0x00, 0x00, 0x00, 0x07, 0xD0},
		},
		{
			name: "run",
			cmd:  Run(0x00200123),
			want: []byte{0x22, 0x00, 0x20, 0x01, 0x23},
		},
		{
			name: "memory read",
			cmd:  MemoryRead(0x400D3014, Width32),
			want: []byte{0x2A, 0x40, 0x0D, 0x30, 0x14, 0x04},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.Payload(); !bytes.Equal(got, tt.want) {
				t.Errorf("Payload() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestSendData(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{name: "single byte", size: 1},
		{name: "default chunk", size: 128},
		{name: "maximum chunk", size: MaxSendDataSize},
		{name: "over maximum", size: MaxSendDataSize + 1, wantErr: true},
		{name: "empty", size: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0x5A}, tt.size)
			cmd, err := SendData(data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SendData() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cmd.Opcode() != OpSendData {
				t.Errorf("Opcode() = %v, want SEND_DATA", cmd.Opcode())
			}
			if !bytes.Equal(cmd.Args(), data) {
				t.Error("Args() does not match the chunk")
			}
			if _, err := cmd.Encode(); err != nil {
				t.Errorf("Encode() error = %v", err)
			}
		})
	}
}

func TestSendDataTooLarge(t *testing.T) {
	_, err := SendData(make([]byte, 300))
	var tooLarge *PayloadTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("error = %v, want *PayloadTooLargeError", err)
	}
	if tooLarge.Size != 300 || tooLarge.Max != MaxSendDataSize {
		t.Errorf("PayloadTooLargeError = %+v", tooLarge)
	}
}

func TestMemoryWrite(t *testing.T) {
	cmd, err := MemoryWrite(0x20000000, []byte{0x11, 0x22, 0x33, 0x44}, Width32)
	if err != nil {
		t.Fatalf("MemoryWrite() error = %v", err)
	}
	want := []byte{0x2B, 0x20, 0x00, 0x00, 0x00, 0x11, 0x22, 0x33, 0x44, 0x04}
	if got := cmd.Payload(); !bytes.Equal(got, want) {
		t.Errorf("Payload() = % X, want % X", got, want)
	}

	if _, err := MemoryWrite(0x20000000, []byte{0x11, 0x22, 0x33}, Width32); err == nil {
		t.Error("MemoryWrite() with unaligned length expected error")
	}
	if _, err := MemoryWrite(0x20000000, nil, Width8); err == nil {
		t.Error("MemoryWrite() with no data expected error")
	}
}

func TestCommandArgsAreImmutable(t *testing.T) {
	cmd := Download(0x00200000, 128)
	args := cmd.Args()
	args[0] = 0xFF
	if cmd.Args()[0] != 0x00 {
		t.Error("mutating Args() changed the command")
	}
}

func TestOpcodeHasStatus(t *testing.T) {
	withStatus := []Opcode{OpDownload, OpSendData, OpErase, OpMemoryWrite, OpCRC32}
	withoutStatus := []Opcode{OpPing, OpRun, OpGetStatus, OpReset, OpGetChipID, OpSetXOSC, OpMemoryRead}

	for _, op := range withStatus {
		if !op.HasStatus() {
			t.Errorf("%v.HasStatus() = false, want true", op)
		}
	}
	for _, op := range withoutStatus {
		if op.HasStatus() {
			t.Errorf("%v.HasStatus() = true, want false", op)
		}
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{cmd: Ping(), want: "PING"},
		{cmd: Download(0x00200000, 2048), want: "DOWNLOAD (addr=0x00200000, size=2048)"},
		{cmd: Run(0x00200000), want: "RUN (addr=0x00200000)"},
		{cmd: NewCommand(Opcode(0x7F)), want: "Opcode(0x7F)"},
	}

	for _, tt := range tests {
		if got := tt.cmd.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      byte
		want    Status
		wantErr bool
	}{
		{in: 0x40, want: StatusSuccess},
		{in: 0x41, want: StatusUnknownCmd},
		{in: 0x42, want: StatusInvalidCmd},
		{in: 0x43, want: StatusInvalidAddr},
		{in: 0x44, want: StatusFlashFail},
		{in: 0x45, wantErr: true},
		{in: 0x00, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(0x%02X) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			var unexpected *UnexpectedStatusError
			if !errors.As(err, &unexpected) || unexpected.Code != tt.in {
				t.Errorf("ParseStatus(0x%02X) error = %v, want *UnexpectedStatusError", tt.in, err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(0x%02X) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
