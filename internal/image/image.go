// Package image loads firmware images for flashing and writes memory dumps.
//
// Raw binaries are taken as-is. Intel HEX files are flattened into a binary
// starting at the flash base address, with gaps filled with 0xFF (erased
// flash), so the bootloader only ever sees contiguous bytes.
package image

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
)

// Format is the on-disk encoding of an image
type Format string

const (
	FormatBinary   Format = "bin"
	FormatIntelHex Format = "hex"
)

// hexLineLength is the data bytes per record when writing Intel HEX
const hexLineLength = 16

// Image is a flattened firmware image.
type Image struct {
	Path   string
	Format Format
	Base   uint32 // Address of Data[0]
	Data   []byte

	// Entry comes from the start linear address record, when present
	Entry    uint32
	HasEntry bool
}

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex", ".ihx":
		return FormatIntelHex
	default:
		return FormatBinary
	}
}

// Load reads path and flattens it to a binary based at base.
func Load(path string, base uint32) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, err := Parse(f, DetectFormat(path), base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img.Path = path
	return img, nil
}

// Parse reads an image in the given format.
func Parse(r io.Reader, format Format, base uint32) (*Image, error) {
	switch format {
	case FormatIntelHex:
		return parseHex(r, base)
	case FormatBinary:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("image is empty")
		}
		return &Image{Format: FormatBinary, Base: base, Data: data}, nil
	default:
		return nil, fmt.Errorf("unknown image format %q", format)
	}
}

func parseHex(r io.Reader, base uint32) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("invalid Intel HEX: %w", err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("Intel HEX file has no data records")
	}

	var end uint64
	for _, s := range segments {
		if s.Address < base {
			return nil, fmt.Errorf("data at 0x%08X lies below the flash base 0x%08X", s.Address, base)
		}
		if e := uint64(s.Address) + uint64(len(s.Data)); e > end {
			end = e
		}
	}

	img := &Image{
		Format: FormatIntelHex,
		Base:   base,
		Data:   mem.ToBinary(base, uint32(end-uint64(base)), 0xFF),
	}
	if entry, ok := mem.GetStartAddress(); ok {
		img.Entry = entry
		img.HasEntry = true
	}
	return img, nil
}

// WriteHex writes data as Intel HEX records starting at addr.
func WriteHex(w io.Writer, addr uint32, data []byte) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(addr, data); err != nil {
		return fmt.Errorf("failed to build hex image: %w", err)
	}
	return mem.DumpIntelHex(w, hexLineLength)
}

// WriteFile saves a dump, as Intel HEX when path ends in .hex and raw
// bytes otherwise.
func WriteFile(path string, addr uint32, data []byte) error {
	if DetectFormat(path) == FormatBinary {
		return os.WriteFile(path, data, 0644)
	}

	var buf bytes.Buffer
	if err := WriteHex(&buf, addr, data); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
