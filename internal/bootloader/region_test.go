package bootloader

import (
	"bytes"
	"testing"
)

func TestFlashRegionValidate(t *testing.T) {
	tests := []struct {
		name    string
		region  FlashRegion
		wantErr bool
	}{
		{name: "512k preset", region: CC2538SF53},
		{name: "256k preset", region: CC2538SF23},
		{name: "128k preset", region: CC2538NF11},
		{name: "zero page size", region: FlashRegion{Start: 0x200000, Size: 4096}, wantErr: true},
		{name: "zero size", region: FlashRegion{Start: 0x200000, PageSize: 2048}, wantErr: true},
		{name: "unaligned start", region: FlashRegion{Start: 0x200100, Size: 4096, PageSize: 2048}, wantErr: true},
		{name: "partial page", region: FlashRegion{Start: 0x200000, Size: 5000, PageSize: 2048}, wantErr: true},
		{name: "overflow", region: FlashRegion{Start: 0xFFFFF800, Size: 4096, PageSize: 2048}, wantErr: true},
		{name: "single page", region: FlashRegion{Start: 0x200000, Size: 2048, PageSize: 2048}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.region.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFlashRegionGeometry(t *testing.T) {
	r := CC2538SF53

	if r.End() != 0x00280000 {
		t.Errorf("End() = 0x%08X, want 0x00280000", r.End())
	}
	if r.Pages() != 256 {
		t.Errorf("Pages() = %d, want 256", r.Pages())
	}
	if r.LastPage() != 0x0027F800 {
		t.Errorf("LastPage() = 0x%08X, want 0x0027F800", r.LastPage())
	}
	if r.CCAAddress() != 0x0027FFD4 {
		t.Errorf("CCAAddress() = 0x%08X, want 0x0027FFD4", r.CCAAddress())
	}
	if !r.Contains(r.Start, r.Size) {
		t.Error("region should contain itself")
	}
	if r.Contains(r.Start, r.Size+1) {
		t.Error("region should not contain one byte past its end")
	}
}

func TestPageSpan(t *testing.T) {
	tests := []struct {
		name      string
		addr      uint32
		size      uint32
		wantStart uint32
		wantSize  uint32
	}{
		{name: "partial page", addr: 0x200000, size: 2000, wantStart: 0x200000, wantSize: 2048},
		{name: "exact pages", addr: 0x200000, size: 4096, wantStart: 0x200000, wantSize: 4096},
		{name: "one byte over", addr: 0x200000, size: 4097, wantStart: 0x200000, wantSize: 6144},
		{name: "straddles boundary", addr: 0x200700, size: 0x200, wantStart: 0x200000, wantSize: 4096},
		{name: "empty", addr: 0x200800, size: 0, wantStart: 0x200800, wantSize: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, size := CC2538SF53.PageSpan(tt.addr, tt.size)
			if start != tt.wantStart || size != tt.wantSize {
				t.Errorf("PageSpan() = (0x%08X, %d), want (0x%08X, %d)", start, size, tt.wantStart, tt.wantSize)
			}
		})
	}
}

func TestCCAFooterBytes(t *testing.T) {
	f := NewCCAFooter(0x00200000)
	b := f.Bytes()

	if len(b) != CCASize {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), CCASize)
	}
	want := []byte{
		0xFF, 0xFF, 0xFF, 0xFF, // backdoor enabled
		0x00, 0x00, 0x00, 0x00, // image valid
		0x00, 0x00, 0x20, 0x00, // entry 0x00200000, little-endian
	}
	if !bytes.Equal(b[:12], want) {
		t.Errorf("header = % X, want % X", b[:12], want)
	}
	if !bytes.Equal(b[12:], bytes.Repeat([]byte{0xFF}, CCALockBitsSize)) {
		t.Error("lock bits should all be 0xFF")
	}
}
