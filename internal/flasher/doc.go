// Package flasher runs complete operations against a CC2538 in its ROM
// bootloader: flash an image, dump memory, report chip information.
//
// A Controller opens the transport, performs the handshake, and owns the
// resulting session until the operation ends. Every run disconnects, even
// on failure; nothing is retried.
//
// # Flash Sequence
//
//	validate size → connect → GET_CHIP_ID → erase image pages →
//	program → [CCA] → [CRC32 verify] → RESET → disconnect
//
// Validation errors (*bootloader.ImageTooLargeError, *bootloader.AlignmentError)
// are returned before the port is opened.
//
// # Usage
//
//	c := flasher.NewController(flasher.Config{
//	    Port:     "/dev/ttyUSB0",
//	    Region:   bootloader.CC2538SF53,
//	    WriteCCA: true,
//	}, logger)
//
//	result, err := c.Flash(ctx, image)
//	if err != nil {
//	    fmt.Println(flasher.TroubleshootingHint(err))
//	}
package flasher
