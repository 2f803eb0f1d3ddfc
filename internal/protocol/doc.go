// Package protocol implements the CC2538 ROM bootloader wire format.
//
// The bootloader is reached over a UART at 115200 8N1. Every command and
// every response travels in the same envelope:
//
//   - Length: 1 byte, payload size + 2
//   - Checksum: 1 byte, sum of the payload bytes modulo 256
//   - Payload: opcode followed by big-endian arguments (commands), or
//     response data
//
// No byte stuffing is applied. A length byte of zero means the device has
// nothing to send yet, so readers poll past it.
//
// # Acknowledgements
//
// Each frame is acknowledged with two bytes: 0x00 0xCC (ACK) or 0x00 0x33
// (NACK). The host acknowledges response frames the same way. An ACK only
// confirms the frame was received intact; whether the command worked is
// reported by a follow-up GET_STATUS.
//
// # Usage Example
//
//	frame, err := protocol.Download(0x00200000, 2048).Encode()
//	if err != nil {
//	    return err
//	}
//	if _, err := port.Write(frame.Bytes()); err != nil {
//	    return err
//	}
//
//	// later, for commands that return data
//	payload, err := protocol.ReadResponse(port, protocol.DefaultMaxPolls)
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use. Reading a
// response is not: a transport must only be driven by one caller.
package protocol
