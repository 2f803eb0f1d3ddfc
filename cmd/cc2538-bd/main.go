// Cc2538-bd flashes and inspects TI CC2538 parts through the ROM serial
// bootloader.
//
// The chip must already be in bootloader mode: either its flash is blank,
// or the backdoor pin configured in the CCA was held at the active level
// during reset. cc2538-bd then talks to the ROM over the UART:
//
//   - flash: erase, program, optionally write the CCA and verify, reset
//   - dump: read a memory range to a .bin or .hex file
//   - info: chip ID and flash size
//   - ping: check the bootloader answers
//   - bridge: share a local UART with remote hosts over websocket
//
// Ports may be a serial device (/dev/ttyUSB0, COM3), a raw termios device
// (term:/dev/ttyACM0) or a websocket serial bridge (ws://host:port/uart).
//
// See 'cc2538-bd --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/cc2538-bd/internal/logging"
	"github.com/muurk/cc2538-bd/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cc2538-bd",
	Short: "CC2538 ROM serial bootloader utility",
	Long: `Flash and inspect TI CC2538 chips through the ROM serial bootloader.

The chip must be in bootloader mode before a command is run: hold the
backdoor pin (PA7 on most boards) low while resetting, or start from blank
flash. Settings not given on the command line come from the config file
(see 'cc2538-bd config show').`,
	Version:       version.Version,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			return logging.Initialize("debug")
		}
		// Silent unless CC2538_BD_LOG_LEVEL is set
		return logging.InitializeFromEnv()
	},
	Example: `  # Flash a binary to a 512 KiB part
  cc2538-bd flash --port /dev/ttyUSB0 firmware.bin

  # Flash, write the CCA footer and verify the CRC32
  cc2538-bd flash -p /dev/ttyUSB0 --cca --verify firmware.hex

  # Read the first 4 KiB of flash
  cc2538-bd dump -p /dev/ttyUSB0 --address 0x00200000 --length 4096 --output head.bin`,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cc2538-bd %s\n", version.Full())
	},
}
