package bootloader

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/muurk/cc2538-bd/internal/protocol"
	"go.uber.org/zap"
)

// FlashCtrlDieCfg0 is the FLASH_CTRL_DIECFG0 register; bits 6:4 encode the
// flash size of the die.
const FlashCtrlDieCfg0 uint32 = 0x400D3014

// ChipInfo describes the connected part.
type ChipInfo struct {
	RawID     []byte // GET_CHIP_ID response as sent by the ROM
	ID        uint16 // Part number, e.g. 0xB964 for CC2538
	DieConfig uint32 // FLASH_CTRL_DIECFG0
	FlashSize uint32 // Bytes of flash reported by the die
}

// Programmer erases, programs and reads flash through a connected Session.
//
// Every long operation is split into pages; the context is checked only
// between pages so a cancelled run never leaves a half-written page.
type Programmer struct {
	s      *Session
	region FlashRegion
	config Config
	logger *zap.Logger
}

// NewProgrammer creates a Programmer for region. Options override the
// session's configuration for this programmer only.
//
// Example:
//
//	prog, err := bootloader.NewProgrammer(session, bootloader.CC2538SF53,
//	    bootloader.WithChunkSize(248),
//	)
func NewProgrammer(s *Session, region FlashRegion, opts ...Option) (*Programmer, error) {
	if s == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}

	cfg := s.Config()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Programmer{
		s:      s,
		region: region,
		config: cfg,
		logger: cfg.Logger,
	}, nil
}

// Region returns the flash region being programmed
func (p *Programmer) Region() FlashRegion {
	return p.region
}

// Capacity returns how many image bytes fit from start. When the CCA is
// going to be written the final page is reserved for it.
func (p *Programmer) Capacity(start uint32, withCCA bool) int {
	end := p.region.End()
	if withCCA {
		end = p.region.LastPage()
	}
	if start < p.region.Start || start >= end {
		return 0
	}
	return int(end - start)
}

// CheckFits returns *ImageTooLargeError if size bytes do not fit at start.
func (p *Programmer) CheckFits(start uint32, size int, withCCA bool) error {
	if capacity := p.Capacity(start, withCCA); size > capacity {
		return &ImageTooLargeError{Size: size, Capacity: capacity}
	}
	return nil
}

func (p *Programmer) checkPageAligned(addr, size uint32) error {
	if (addr-p.region.Start)%p.region.PageSize != 0 || addr < p.region.Start {
		return &AlignmentError{Address: addr, Size: size, Reason: fmt.Sprintf("address is not on a %d byte page boundary", p.region.PageSize)}
	}
	if !p.region.Contains(addr, size) {
		return &AlignmentError{Address: addr, Size: size, Reason: "outside flash region " + p.region.String()}
	}
	return nil
}

// EraseRegion erases [start, start+size) one page at a time in ascending
// order, checking the device status after every page.
func (p *Programmer) EraseRegion(ctx context.Context, start, size uint32) error {
	if size == 0 {
		return nil
	}
	if err := p.checkPageAligned(start, size); err != nil {
		return err
	}
	if size%p.region.PageSize != 0 {
		return &AlignmentError{Address: start, Size: size, Reason: fmt.Sprintf("size is not a multiple of %d", p.region.PageSize)}
	}

	if err := p.s.SetReadTimeout(p.config.EraseTimeout); err != nil {
		return fmt.Errorf("set erase timeout: %w", err)
	}
	defer func() {
		_ = p.s.SetReadTimeout(p.config.CommandTimeout)
	}()

	pages := size / p.region.PageSize
	p.logger.Info("Erasing flash",
		zap.String("start", fmt.Sprintf("0x%08X", start)),
		zap.Uint32("pages", pages),
	)

	for addr := start; addr < start+size; addr += p.region.PageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.erasePage(addr); err != nil {
			return err
		}
	}

	return nil
}

func (p *Programmer) erasePage(addr uint32) error {
	err := p.s.Exec(protocol.Erase(addr, p.region.PageSize))
	var statusErr *DeviceStatusError
	if errors.As(err, &statusErr) && statusErr.Status == protocol.StatusFlashFail {
		return &EraseFailedError{Address: addr, Err: statusErr}
	}
	if err != nil {
		return fmt.Errorf("erase page 0x%08X: %w", addr, err)
	}

	p.logger.Debug("Page erased", zap.String("address", fmt.Sprintf("0x%08X", addr)))
	return nil
}

// ProgramRegion writes data at start, which must be page aligned. The data
// is split per page: one DOWNLOAD announcing a full page, then SEND_DATA
// chunks of at most ChunkSize. The last page is not padded.
//
// The capacity check happens before any device I/O.
func (p *Programmer) ProgramRegion(ctx context.Context, start uint32, data []byte) error {
	if err := p.checkPageAligned(start, 0); err != nil {
		return err
	}
	if err := p.CheckFits(start, len(data), false); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	p.logger.Info("Programming flash",
		zap.String("start", fmt.Sprintf("0x%08X", start)),
		zap.Int("bytes", len(data)),
		zap.Int("chunk_size", p.config.ChunkSize),
	)

	pageSize := int(p.region.PageSize)
	for offset := 0; offset < len(data); offset += pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(offset+pageSize, len(data))
		addr := start + uint32(offset)
		if err := p.programPage(addr, data[offset:end]); err != nil {
			return err
		}
	}

	return nil
}

func (p *Programmer) programPage(addr uint32, page []byte) error {
	if err := p.s.Exec(protocol.Download(addr, p.region.PageSize)); err != nil {
		return fmt.Errorf("download 0x%08X: %w", addr, err)
	}

	for pos := 0; pos < len(page); pos += p.config.ChunkSize {
		chunk := page[pos:min(pos+p.config.ChunkSize, len(page))]
		cmd, err := protocol.SendData(chunk)
		if err != nil {
			return err
		}
		if err := p.s.Exec(cmd); err != nil {
			return fmt.Errorf("send data 0x%08X: %w", addr+uint32(pos), err)
		}
	}

	p.logger.Debug("Page written",
		zap.String("address", fmt.Sprintf("0x%08X", addr)),
		zap.Int("bytes", len(page)),
	)
	return nil
}

// ReadWord reads the 32-bit word at addr. The ROM sends it most
// significant byte first.
func (p *Programmer) ReadWord(addr uint32) (uint32, error) {
	raw, err := p.s.MemoryRead(addr, protocol.Width32)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(raw), nil
}

// ReadRegion reads size bytes from start, which must be word aligned, and
// returns them in memory order.
func (p *Programmer) ReadRegion(ctx context.Context, start, size uint32) ([]byte, error) {
	if start%4 != 0 {
		return nil, &AlignmentError{Address: start, Size: size, Reason: "address is not word aligned"}
	}
	if uint64(start)+uint64(size) > 1<<32 {
		return nil, &AlignmentError{Address: start, Size: size, Reason: "range overflows the address space"}
	}

	out := make([]byte, 0, (size+3)&^3)
	for off := uint32(0); off < size; off += 4 {
		if off%p.region.PageSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		word, err := p.ReadWord(start + off)
		if err != nil {
			return nil, err
		}
		out = binary.LittleEndian.AppendUint32(out, word)
	}

	return out[:size], nil
}

// WriteCCA erases the final page and writes footer at the end of flash.
func (p *Programmer) WriteCCA(ctx context.Context, footer CCAFooter) error {
	if p.region.PageSize < CCASize {
		return &AlignmentError{Address: p.region.LastPage(), Size: p.region.PageSize, Reason: "page is smaller than the CCA"}
	}
	if err := p.EraseRegion(ctx, p.region.LastPage(), p.region.PageSize); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := p.region.CCAAddress()
	if err := p.s.Exec(protocol.Download(addr, CCASize)); err != nil {
		return fmt.Errorf("download CCA 0x%08X: %w", addr, err)
	}
	cmd, err := protocol.SendData(footer.Bytes())
	if err != nil {
		return err
	}
	if err := p.s.Exec(cmd); err != nil {
		return fmt.Errorf("send CCA: %w", err)
	}

	p.logger.Info("CCA written",
		zap.String("address", fmt.Sprintf("0x%08X", addr)),
		zap.String("entry", fmt.Sprintf("0x%08X", footer.EntryAddress)),
	)
	return nil
}

// VerifyCRC compares the device's CRC32 over the written range with the
// IEEE CRC32 of data.
func (p *Programmer) VerifyCRC(ctx context.Context, start uint32, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	want := crc32.ChecksumIEEE(data)
	got, err := p.s.CRC32(start, uint32(len(data)))
	if err != nil {
		return fmt.Errorf("crc32: %w", err)
	}
	if got != want {
		return &VerifyError{Address: start, Size: uint32(len(data)), Expected: want, Actual: got}
	}

	p.logger.Info("CRC32 verified", zap.String("crc32", fmt.Sprintf("0x%08X", got)))
	return nil
}

// ReadChipInfo returns the chip ID and the flash size from DIECFG0.
func (p *Programmer) ReadChipInfo(ctx context.Context) (ChipInfo, error) {
	if err := ctx.Err(); err != nil {
		return ChipInfo{}, err
	}

	raw, err := p.s.GetChipID()
	if err != nil {
		return ChipInfo{}, err
	}
	info := ChipInfo{RawID: raw, ID: ChipID(raw)}

	cfg, err := p.ReadWord(FlashCtrlDieCfg0)
	if err != nil {
		return info, fmt.Errorf("read DIECFG0: %w", err)
	}
	info.DieConfig = cfg
	info.FlashSize = FlashSizeFromDieConfig(cfg)

	return info, nil
}

// FlashSizeFromDieConfig decodes DIECFG0 bits 6:4: codes 1..4 are
// multiples of 128 KiB, anything else is a 64 KiB part.
func FlashSizeFromDieConfig(cfg uint32) uint32 {
	code := (cfg >> 4) & 0x7
	if code >= 1 && code <= 4 {
		return code * 128 * 1024
	}
	return 64 * 1024
}
