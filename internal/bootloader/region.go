package bootloader

import (
	"encoding/binary"
	"fmt"
)

// CC2538 flash geometry
const (
	DefaultPageSize   = 2048
	DefaultFlashStart = 0x00200000

	// CCASize is the customer configuration area at the end of flash
	CCASize = 44

	// CCALockBitsSize is the number of page/debug lock bytes in the CCA
	CCALockBitsSize = 32

	// BackdoorEnabled is the bootloader config word with the backdoor
	// enabled on PA7, active low.
	BackdoorEnabled uint32 = 0xFFFFFFFF

	// ImageValid marks the application as bootable
	ImageValid uint32 = 0
)

// FlashRegion describes a contiguous, page-erasable flash area.
type FlashRegion struct {
	Start    uint32
	Size     uint32
	PageSize uint32
}

// Built-in regions for the CC2538 family
var (
	CC2538SF53 = FlashRegion{Start: DefaultFlashStart, Size: 512 * 1024, PageSize: DefaultPageSize}
	CC2538SF23 = FlashRegion{Start: DefaultFlashStart, Size: 256 * 1024, PageSize: DefaultPageSize}
	CC2538NF11 = FlashRegion{Start: DefaultFlashStart, Size: 128 * 1024, PageSize: DefaultPageSize}
)

// Presets maps profile names to built-in regions.
var Presets = map[string]FlashRegion{
	"cc2538-512k": CC2538SF53,
	"cc2538-256k": CC2538SF23,
	"cc2538-128k": CC2538NF11,
}

// End returns the first address past the region
func (r FlashRegion) End() uint32 {
	return r.Start + r.Size
}

// Pages returns the number of pages in the region
func (r FlashRegion) Pages() uint32 {
	if r.PageSize == 0 {
		return 0
	}
	return r.Size / r.PageSize
}

// LastPage returns the address of the final page, which holds the CCA
func (r FlashRegion) LastPage() uint32 {
	return r.End() - r.PageSize
}

// CCAAddress returns where the footer lives
func (r FlashRegion) CCAAddress() uint32 {
	return r.End() - CCASize
}

// Contains reports whether [addr, addr+size) lies inside the region.
func (r FlashRegion) Contains(addr, size uint32) bool {
	if addr < r.Start || addr > r.End() {
		return false
	}
	return uint64(addr)+uint64(size) <= uint64(r.End())
}

// Validate checks the region geometry.
func (r FlashRegion) Validate() error {
	if r.PageSize == 0 {
		return fmt.Errorf("flash region: page size is zero")
	}
	if r.Size == 0 {
		return fmt.Errorf("flash region: size is zero")
	}
	if r.Start%r.PageSize != 0 {
		return fmt.Errorf("flash region: start 0x%08X is not aligned to %d byte pages", r.Start, r.PageSize)
	}
	if r.Size%r.PageSize != 0 {
		return fmt.Errorf("flash region: size %d is not a multiple of the %d byte page", r.Size, r.PageSize)
	}
	if uint64(r.Start)+uint64(r.Size) > 1<<32 {
		return fmt.Errorf("flash region: 0x%08X+%d overflows the address space", r.Start, r.Size)
	}
	return nil
}

// PageSpan returns the page-aligned range covering [addr, addr+size).
func (r FlashRegion) PageSpan(addr, size uint32) (uint32, uint32) {
	if size == 0 {
		return addr - (addr-r.Start)%r.PageSize, 0
	}
	first := addr - (addr-r.Start)%r.PageSize
	end := uint64(addr) + uint64(size)
	span := (end - uint64(first) + uint64(r.PageSize) - 1) / uint64(r.PageSize) * uint64(r.PageSize)
	return first, uint32(span)
}

func (r FlashRegion) String() string {
	return fmt.Sprintf("0x%08X-0x%08X (%d KiB, %d byte pages)", r.Start, r.End(), r.Size/1024, r.PageSize)
}

// CCAFooter is the customer configuration area the ROM reads at reset to
// decide whether to boot the application or stay in the bootloader.
type CCAFooter struct {
	BootloaderConfig uint32
	ImageValid       uint32
	EntryAddress     uint32
	LockBits         [CCALockBitsSize]byte
}

// NewCCAFooter returns a footer marking the image at entry valid, with the
// backdoor enabled and every page unlocked.
func NewCCAFooter(entry uint32) CCAFooter {
	f := CCAFooter{
		BootloaderConfig: BackdoorEnabled,
		ImageValid:       ImageValid,
		EntryAddress:     entry,
	}
	for i := range f.LockBits {
		f.LockBits[i] = 0xFF
	}
	return f
}

// Bytes returns the 44 byte little-endian footer image
func (f CCAFooter) Bytes() []byte {
	b := make([]byte, 0, CCASize)
	b = binary.LittleEndian.AppendUint32(b, f.BootloaderConfig)
	b = binary.LittleEndian.AppendUint32(b, f.ImageValid)
	b = binary.LittleEndian.AppendUint32(b, f.EntryAddress)
	return append(b, f.LockBits[:]...)
}
