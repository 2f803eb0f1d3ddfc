package flasher

import (
	"context"
	"errors"
	"strings"

	"github.com/muurk/cc2538-bd/internal/bootloader"
	"github.com/muurk/cc2538-bd/internal/protocol"
)

// TroubleshootingHint returns user-facing advice for an error from Flash,
// Dump, Info or Ping. It returns an empty string when there is nothing
// useful to add.
func TroubleshootingHint(err error) string {
	if err == nil {
		return ""
	}

	var (
		hsErr       *bootloader.HandshakeError
		tooLarge    *bootloader.ImageTooLargeError
		eraseErr    *bootloader.EraseFailedError
		statusErr   *bootloader.DeviceStatusError
		verifyErr   *bootloader.VerifyError
		alignErr    *bootloader.AlignmentError
		ackErr      *bootloader.AckError
		checksumErr *protocol.ChecksumMismatchError
		unexpected  *protocol.UnexpectedStatusError
	)

	switch {
	case errors.As(err, &hsErr):
		return strings.Join([]string{
			"The device did not answer the bootloader sync.",
			"Troubleshooting:",
			"  • Hold the backdoor pin (PA7 on most boards) low while resetting the chip",
			"  • Check that the CCA allows the bootloader backdoor or that flash is blank",
			"  • Verify TX/RX are not swapped and the adapter shares ground with the board",
			"  • Make sure no other program has the serial port open",
		}, "\n")

	case errors.As(err, &tooLarge):
		return strings.Join([]string{
			"The image does not fit the selected flash region.",
			"Troubleshooting:",
			"  • Check --profile or --flash-size matches your part",
			"  • With --cca the last page is reserved for the configuration area",
			"  • Make sure you are flashing a raw .bin or .hex, not an ELF file",
		}, "\n")

	case errors.As(err, &alignErr):
		return strings.Join([]string{
			"The requested address range is not valid for this flash.",
			"Troubleshooting:",
			"  • Flash addresses start at 0x00200000 on the CC2538",
			"  • --flash-start must be on a 2048 byte page boundary",
			"  • dump --address must be a multiple of 4",
		}, "\n")

	case errors.As(err, &eraseErr):
		return strings.Join([]string{
			"The device failed to erase a flash page.",
			"Troubleshooting:",
			"  • The page may be write protected by the CCA lock bits",
			"  • Check the supply voltage is stable during erase",
		}, "\n")

	case errors.As(err, &verifyErr):
		return strings.Join([]string{
			"The CRC32 read back from the device does not match the image.",
			"Troubleshooting:",
			"  • Run the flash again; a page may have been left partially written",
			"  • Check for locked pages in the CCA",
		}, "\n")

	case errors.As(err, &statusErr):
		if statusErr.Status == protocol.StatusInvalidAddr {
			return "The device rejected an address. Check --flash-start and --flash-size match the part."
		}
		return "The device reported a failure status. Reset the board into the bootloader and try again."

	case errors.As(err, &checksumErr), errors.As(err, &ackErr), errors.As(err, &unexpected):
		return strings.Join([]string{
			"The serial link is corrupting data.",
			"Troubleshooting:",
			"  • Try a shorter cable or a different USB-serial adapter",
			"  • Lower the baud rate with --baud 57600",
		}, "\n")

	case errors.Is(err, bootloader.ErrFrameRejected):
		return "The device refused a command frame (NACK). Reset the board into the bootloader and retry."

	case errors.Is(err, protocol.ErrTransportTimeout):
		return strings.Join([]string{
			"The device stopped responding.",
			"Troubleshooting:",
			"  • Increase --timeout (erasing large regions can be slow)",
			"  • Check the board did not reset or lose power",
		}, "\n")

	case errors.Is(err, context.Canceled):
		return "Cancelled between pages. Flash again to restore a consistent image."
	}

	return ""
}
