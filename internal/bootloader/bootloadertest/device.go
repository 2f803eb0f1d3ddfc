// Package bootloadertest provides a simulated CC2538 ROM bootloader that
// satisfies transport.Transport, for use in tests.
//
// The device decodes every frame the host writes, keeps a flash image, and
// queues the bytes the real ROM would send back. Reads never block: an
// empty queue reads as a timeout.
package bootloadertest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"sync"
	"time"

	"github.com/muurk/cc2538-bd/internal/protocol"
)

// Default identity of the simulated part
var (
	DefaultChipID    = []byte{0x00, 0x00, 0xB9, 0x64}
	DefaultDieConfig = uint32(0x00000040) // flash size code 4: 512 KiB
)

// Device is a scripted CC2538 ROM bootloader.
type Device struct {
	mu sync.Mutex

	FlashStart uint32
	Flash      []byte

	ChipID    []byte
	DieConfig uint32

	// SyncReply replaces the 00 CC handshake answer; an empty non-nil
	// slice keeps the device silent.
	SyncReply []byte

	// Nack lists opcodes the device refuses with 00 33
	Nack map[protocol.Opcode]bool

	// Status forces the GET_STATUS result after the given opcode
	Status map[protocol.Opcode]protocol.Status

	// FailEraseAt makes ERASE of the page at this address report FLASH_FAIL
	FailEraseAt uint32
	FailErase   bool

	// CorruptResponses flips the checksum of every response frame
	CorruptResponses bool

	// ZeroPad is how many 0x00 bytes precede each response frame
	ZeroPad int

	// CRCOverride, when set, is returned by CRC32 instead of the real value
	CRCOverride *uint32

	// Recorded traffic
	Commands    []protocol.Command
	WriteCalls  int
	HostAcks    int
	Syncs       int
	ResetSeen   bool
	Closed      bool
	ReadTimeout time.Duration

	in          []byte
	out         bytes.Buffer
	synced      bool
	lastStatus  protocol.Status
	dlAddr      uint32
	dlRemaining uint32
}

// New returns a device with size bytes of erased flash at start.
func New(start, size uint32) *Device {
	flash := make([]byte, size)
	for i := range flash {
		flash[i] = 0xFF
	}
	return &Device{
		FlashStart: start,
		Flash:      flash,
		ChipID:     append([]byte(nil), DefaultChipID...),
		DieConfig:  DefaultDieConfig,
		Nack:       map[protocol.Opcode]bool{},
		Status:     map[protocol.Opcode]protocol.Status{},
		lastStatus: protocol.StatusSuccess,
	}
}

// Read returns queued device bytes, or (0, nil) when none are pending.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out.Len() == 0 {
		return 0, nil
	}
	return d.out.Read(p)
}

// Write feeds host bytes to the simulated ROM.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.WriteCalls++
	d.in = append(d.in, p...)
	d.process()
	return len(p), nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	d.Closed = true
	d.mu.Unlock()
	return nil
}

func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	d.ReadTimeout = t
	d.mu.Unlock()
	return nil
}

func (d *Device) Flush() error { return nil }

// Count returns how many times op was received.
func (d *Device) Count(op protocol.Opcode) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.Commands {
		if c.Opcode() == op {
			n++
		}
	}
	return n
}

// Opcodes returns the received opcodes in order.
func (d *Device) Opcodes() []protocol.Opcode {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := make([]protocol.Opcode, len(d.Commands))
	for i, c := range d.Commands {
		ops[i] = c.Opcode()
	}
	return ops
}

// Received returns the commands carrying op, in order.
func (d *Device) Received(op protocol.Opcode) []protocol.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	var cmds []protocol.Command
	for _, c := range d.Commands {
		if c.Opcode() == op {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

// Pending returns how many device bytes the host has not read yet.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.out.Len()
}

// Memory returns a copy of size bytes of flash at addr.
func (d *Device) Memory(addr, size uint32) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	off := addr - d.FlashStart
	return append([]byte(nil), d.Flash[off:off+size]...)
}

func (d *Device) process() {
	for len(d.in) > 0 {
		if !d.synced {
			if len(d.in) < 2 {
				return
			}
			if d.in[0] == 0x55 && d.in[1] == 0x55 {
				d.Syncs++
				d.in = d.in[2:]
				if d.SyncReply != nil {
					d.out.Write(d.SyncReply)
					continue
				}
				d.synced = true
				d.out.Write(protocol.AckBytes)
				continue
			}
			d.in = d.in[1:]
			continue
		}

		// Host acknowledgement of a response frame
		if d.in[0] == 0x00 {
			if len(d.in) < 2 {
				return
			}
			d.HostAcks++
			d.in = d.in[2:]
			continue
		}

		length := int(d.in[0])
		if len(d.in) < length {
			return
		}
		raw := d.in[:length]
		d.in = d.in[length:]

		payload, err := protocol.DecodeFrame(raw)
		if err != nil {
			d.out.Write(protocol.NackBytes)
			continue
		}
		cmd := protocol.NewCommand(protocol.Opcode(payload[0]), payload[1:]...)
		d.Commands = append(d.Commands, cmd)
		d.handle(cmd)
	}
}

func (d *Device) handle(cmd protocol.Command) {
	op := cmd.Opcode()
	if d.Nack[op] {
		d.out.Write(protocol.NackBytes)
		return
	}
	d.out.Write(protocol.AckBytes)

	args := cmd.Args()
	status := protocol.StatusSuccess

	switch op {
	case protocol.OpGetStatus:
		d.respond([]byte{byte(d.lastStatus)})
		return
	case protocol.OpGetChipID:
		d.respond(d.ChipID)
		return
	case protocol.OpReset:
		d.ResetSeen = true
		return
	case protocol.OpPing:
		return
	case protocol.OpErase:
		addr, size := addrSize(args)
		switch {
		case d.FailErase && addr == d.FailEraseAt:
			status = protocol.StatusFlashFail
		case !d.inFlash(addr, size):
			status = protocol.StatusInvalidAddr
		default:
			off := addr - d.FlashStart
			for i := uint32(0); i < size; i++ {
				d.Flash[off+i] = 0xFF
			}
		}
	case protocol.OpDownload:
		addr, size := addrSize(args)
		if !d.inFlash(addr, size) {
			status = protocol.StatusInvalidAddr
			break
		}
		d.dlAddr, d.dlRemaining = addr, size
	case protocol.OpSendData:
		if uint32(len(args)) > d.dlRemaining {
			status = protocol.StatusInvalidCmd
			break
		}
		off := d.dlAddr - d.FlashStart
		for i, b := range args {
			d.Flash[off+uint32(i)] &= b
		}
		d.dlAddr += uint32(len(args))
		d.dlRemaining -= uint32(len(args))
	case protocol.OpCRC32:
		addr, size := addrSize(args)
		var sum uint32
		switch {
		case d.CRCOverride != nil:
			sum = *d.CRCOverride
		case d.inFlash(addr, size):
			off := addr - d.FlashStart
			sum = crc32.ChecksumIEEE(d.Flash[off : off+size])
		}
		d.respond(binary.BigEndian.AppendUint32(nil, sum))
	case protocol.OpMemoryRead:
		addr := binary.BigEndian.Uint32(args[0:4])
		d.respond(d.readWord(addr))
		return
	}

	if forced, ok := d.Status[op]; ok {
		status = forced
	}
	if op.HasStatus() {
		d.lastStatus = status
	}
}

// readWord answers MEMORY_READ the way the ROM does: most significant byte
// first.
func (d *Device) readWord(addr uint32) []byte {
	if addr == 0x400D3014 {
		return binary.BigEndian.AppendUint32(nil, d.DieConfig)
	}
	if d.inFlash(addr, 4) {
		off := addr - d.FlashStart
		word := binary.LittleEndian.Uint32(d.Flash[off : off+4])
		return binary.BigEndian.AppendUint32(nil, word)
	}
	return []byte{0, 0, 0, 0}
}

func (d *Device) respond(payload []byte) {
	for i := 0; i < d.ZeroPad; i++ {
		d.out.WriteByte(0x00)
	}
	sum := protocol.Checksum(payload)
	if d.CorruptResponses {
		sum ^= 0xFF
	}
	d.out.WriteByte(byte(len(payload) + protocol.FrameOverhead))
	d.out.WriteByte(sum)
	d.out.Write(payload)
}

func (d *Device) inFlash(addr, size uint32) bool {
	end := uint64(d.FlashStart) + uint64(len(d.Flash))
	return addr >= d.FlashStart && uint64(addr)+uint64(size) <= end
}

func addrSize(args []byte) (uint32, uint32) {
	if len(args) < 8 {
		return 0, 0
	}
	return binary.BigEndian.Uint32(args[0:4]), binary.BigEndian.Uint32(args[4:8])
}
