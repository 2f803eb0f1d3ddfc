package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Opcode identifies a bootloader command
type Opcode byte

// Bootloader command opcodes
const (
	OpPing        Opcode = 0x20
	OpDownload    Opcode = 0x21
	OpRun         Opcode = 0x22
	OpGetStatus   Opcode = 0x23
	OpSendData    Opcode = 0x24
	OpReset       Opcode = 0x25
	OpErase       Opcode = 0x26
	OpCRC32       Opcode = 0x27
	OpGetChipID   Opcode = 0x28
	OpSetXOSC     Opcode = 0x29
	OpMemoryRead  Opcode = 0x2A
	OpMemoryWrite Opcode = 0x2B
)

const (
	// MaxSendDataSize is the most data one SEND_DATA can carry (opcode takes one byte)
	MaxSendDataSize = MaxPayloadSize - 1

	// MaxMemoryWriteSize is the largest word aligned MEMORY_WRITE data block
	MaxMemoryWriteSize = 244
)

// AccessWidth selects the bus access width of MEMORY_READ/MEMORY_WRITE
type AccessWidth byte

const (
	Width8  AccessWidth = 1
	Width32 AccessWidth = 4
)

var opcodeNames = map[Opcode]string{
	OpPing:        "PING",
	OpDownload:    "DOWNLOAD",
	OpRun:         "RUN",
	OpGetStatus:   "GET_STATUS",
	OpSendData:    "SEND_DATA",
	OpReset:       "RESET",
	OpErase:       "ERASE",
	OpCRC32:       "CRC32",
	OpGetChipID:   "GET_CHIP_ID",
	OpSetXOSC:     "SET_XOSC",
	OpMemoryRead:  "MEMORY_READ",
	OpMemoryWrite: "MEMORY_WRITE",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02X)", byte(o))
}

// HasStatus reports whether the device records a result for GET_STATUS
// after this command.
func (o Opcode) HasStatus() bool {
	switch o {
	case OpDownload, OpSendData, OpErase, OpMemoryWrite, OpCRC32:
		return true
	}
	return false
}

// Command is an opcode plus its encoded arguments. It is immutable.
type Command struct {
	op   Opcode
	args []byte
}

// NewCommand builds a command from an opcode and raw argument bytes.
func NewCommand(op Opcode, args ...byte) Command {
	a := make([]byte, len(args))
	copy(a, args)
	return Command{op: op, args: a}
}

// Opcode returns the command opcode
func (c Command) Opcode() Opcode { return c.op }

// Args returns a copy of the argument bytes
func (c Command) Args() []byte {
	a := make([]byte, len(c.args))
	copy(a, c.args)
	return a
}

// Payload returns opcode‖args, the bytes carried inside a frame
func (c Command) Payload() []byte {
	p := make([]byte, 0, len(c.args)+1)
	p = append(p, byte(c.op))
	return append(p, c.args...)
}

// Encode frames the command for the wire
func (c Command) Encode() (Frame, error) {
	return Encode(c.Payload())
}

func (c Command) String() string {
	switch c.op {
	case OpDownload, OpErase, OpCRC32:
		if len(c.args) == 8 {
			return fmt.Sprintf("%v (addr=0x%08X, size=%d)", c.op,
				binary.BigEndian.Uint32(c.args[0:4]), binary.BigEndian.Uint32(c.args[4:8]))
		}
	case OpRun:
		if len(c.args) == 4 {
			return fmt.Sprintf("%v (addr=0x%08X)", c.op, binary.BigEndian.Uint32(c.args))
		}
	case OpMemoryRead:
		if len(c.args) == 5 {
			return fmt.Sprintf("%v (addr=0x%08X, width=%d)", c.op, binary.BigEndian.Uint32(c.args[0:4]), c.args[4])
		}
	case OpSendData:
		return fmt.Sprintf("%v [%d bytes]", c.op, len(c.args))
	}
	if len(c.args) == 0 {
		return c.op.String()
	}
	return fmt.Sprintf("%v [%d]=(%s)", c.op, len(c.args), hex.EncodeToString(c.args))
}

func addrSize(addr, size uint32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], addr)
	binary.BigEndian.PutUint32(b[4:8], size)
	return b
}

// Ping checks that the bootloader is alive
func Ping() Command { return NewCommand(OpPing) }

// GetStatus asks for the result of the previous command
func GetStatus() Command { return NewCommand(OpGetStatus) }

// Reset reboots the device
func Reset() Command { return NewCommand(OpReset) }

// GetChipID asks for the 4-byte chip identifier
func GetChipID() Command { return NewCommand(OpGetChipID) }

// SetXOSC switches the device to the external 32 MHz oscillator
func SetXOSC() Command { return NewCommand(OpSetXOSC) }

// Download announces where the following SEND_DATA bytes go and how many
// there will be.
func Download(addr, size uint32) Command {
	return NewCommand(OpDownload, addrSize(addr, size)...)
}

// Erase erases size bytes of flash starting at addr
func Erase(addr, size uint32) Command {
	return NewCommand(OpErase, addrSize(addr, size)...)
}

// CRC32 asks the device for the CRC32 of size bytes at addr
func CRC32(addr, size uint32) Command {
	return NewCommand(OpCRC32, addrSize(addr, size)...)
}

// Run jumps to addr
func Run(addr uint32) Command {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, addr)
	return NewCommand(OpRun, b...)
}

// SendData carries data for a preceding DOWNLOAD.
func SendData(data []byte) (Command, error) {
	if len(data) == 0 {
		return Command{}, fmt.Errorf("send data: empty chunk")
	}
	if len(data) > MaxSendDataSize {
		return Command{}, &PayloadTooLargeError{Size: len(data), Max: MaxSendDataSize}
	}
	return NewCommand(OpSendData, data...), nil
}

// MemoryRead reads one access of the given width at addr
func MemoryRead(addr uint32, width AccessWidth) Command {
	b := make([]byte, 5)
	binary.BigEndian.PutUint32(b[0:4], addr)
	b[4] = byte(width)
	return NewCommand(OpMemoryRead, b...)
}

// MemoryWrite writes data at addr using the given access width.
func MemoryWrite(addr uint32, data []byte, width AccessWidth) (Command, error) {
	if len(data) == 0 {
		return Command{}, fmt.Errorf("memory write: empty data")
	}
	if len(data) > MaxMemoryWriteSize {
		return Command{}, &PayloadTooLargeError{Size: len(data), Max: MaxMemoryWriteSize}
	}
	if width == Width32 && len(data)%4 != 0 {
		return Command{}, fmt.Errorf("memory write: %d bytes is not a multiple of the 32-bit access width", len(data))
	}

	b := make([]byte, 0, 4+len(data)+1)
	b = binary.BigEndian.AppendUint32(b, addr)
	b = append(b, data...)
	b = append(b, byte(width))
	return NewCommand(OpMemoryWrite, b...), nil
}
