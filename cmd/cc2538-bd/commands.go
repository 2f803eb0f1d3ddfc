package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/cc2538-bd/internal/config"
	"github.com/muurk/cc2538-bd/internal/flasher"
	"github.com/muurk/cc2538-bd/internal/image"
	"github.com/muurk/cc2538-bd/internal/logging"
	"github.com/muurk/cc2538-bd/internal/ui"
)

// Command flags
var (
	portName    string
	baudRate    int
	timeoutStr  string
	profileName string
	verbose     bool

	imageFile  string
	flashStart string
	flashSize  string
	chunkSize  int
	writeCCA   bool
	ccaEntry   string
	verifyCRC  bool
	assumeYes  bool

	dumpAddress string
	dumpLength  string
	dumpOutput  string
)

func init() {
	// Common flags for all commands (persistent on root)
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port, term:<device> or ws:// bridge URL")
	rootCmd.PersistentFlags().IntVar(&baudRate, "baud", 115200, "UART baud rate")
	rootCmd.PersistentFlags().StringVar(&timeoutStr, "timeout", "1s", "Handshake and per-read timeout (e.g., 500ms, 2s)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Flash profile (default from config, else cc2538-512k)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every frame to stderr")

	rootCmd.AddCommand(flashCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(configCmd)
}

// parseAddress accepts decimal or 0x-prefixed hex.
func parseAddress(flag, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", flag, s, err)
	}
	return uint32(v), nil
}

// commandContext is cancelled on Ctrl+C; running operations stop at the
// next page boundary.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// buildConfig merges command line flags over the config file and profile.
func buildConfig(cmd *cobra.Command) (flasher.Config, error) {
	registry, err := config.LoadRegistry()
	if err != nil {
		return flasher.Config{}, err
	}

	profile, err := registry.Profile(profileName)
	if err != nil {
		return flasher.Config{}, err
	}

	cfg := flasher.DefaultConfig()
	cfg.Port = portName
	if cfg.Port == "" {
		cfg.Port = registry.Defaults.Port
	}
	if cfg.Port == "" {
		return cfg, fmt.Errorf("no port given: use --port or set defaults.port in the config file")
	}

	cfg.BaudRate = baudRate
	if !cmd.Flags().Changed("baud") && registry.Defaults.BaudRate > 0 {
		cfg.BaudRate = registry.Defaults.BaudRate
	}

	cfg.Timeout = registry.Defaults.Timeout()
	if cmd.Flags().Changed("timeout") {
		if cfg.Timeout, err = time.ParseDuration(timeoutStr); err != nil {
			return cfg, fmt.Errorf("invalid timeout value: %w", err)
		}
	}

	cfg.Region = profile.Region()
	if cmd.Flags().Changed("flash-start") {
		if cfg.Region.Start, err = parseAddress("flash-start", flashStart); err != nil {
			return cfg, err
		}
	}
	if cmd.Flags().Changed("flash-size") {
		if cfg.Region.Size, err = parseAddress("flash-size", flashSize); err != nil {
			return cfg, err
		}
	}
	cfg.Start = cfg.Region.Start

	if profile.ChunkSize > 0 {
		cfg.ChunkSize = profile.ChunkSize
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}

	cfg.WriteCCA = profile.WriteCCA || writeCCA
	cfg.CCAEntry = profile.CCAEntry
	cfg.Verify = profile.Verify || verifyCRC

	return cfg, nil
}

// newController builds the controller with the global logger.
func newController(cfg flasher.Config) *flasher.Controller {
	return flasher.NewController(cfg, logging.GetLogger())
}

// flashCmd implements the 'flash' command
var flashCmd = &cobra.Command{
	Use:   "flash [image]",
	Short: "Erase, program and reset into a firmware image",
	Long: `Write a firmware image to flash through the ROM bootloader.

This command will:
  1. Check the image fits the flash region (nothing is sent if it does not)
  2. Connect and read the chip ID
  3. Erase only the pages the image covers
  4. Program the image page by page
  5. Write the CCA footer (--cca) and check the CRC32 (--verify)
  6. Reset the chip into the new image

Raw .bin files are written as-is at --flash-start. Intel HEX files are
flattened from --flash-start with gaps filled with 0xFF; their start
address record, if present, is the default --cca-entry.

With --cca the last flash page is erased and the 44-byte customer
configuration area is written: backdoor enabled, image valid, and the
application entry point.`,
	Example: `  # Flash a binary
  cc2538-bd flash -p /dev/ttyUSB0 firmware.bin

  # Flash a 256 KiB part, write the CCA and verify
  cc2538-bd flash -p /dev/ttyUSB0 --profile cc2538-256k --cca --verify firmware.hex

  # Through a network serial bridge without the confirmation prompt
  cc2538-bd flash -p ws://192.168.1.20:8080/uart -y firmware.bin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFlash,
}

func init() {
	flashCmd.Flags().StringVarP(&imageFile, "file", "f", "", "Image file (.bin or .hex)")
	flashCmd.Flags().StringVar(&flashStart, "flash-start", "0x00200000", "Flash region start address")
	flashCmd.Flags().StringVar(&flashSize, "flash-size", "0x80000", "Flash region size in bytes")
	flashCmd.Flags().IntVar(&chunkSize, "chunk-size", 128, "Bytes per SEND_DATA (1-251)")
	flashCmd.Flags().BoolVar(&writeCCA, "cca", false, "Write the CCA footer in the last page")
	flashCmd.Flags().StringVar(&ccaEntry, "cca-entry", "", "Application entry address for the CCA (default: flash start)")
	flashCmd.Flags().BoolVar(&verifyCRC, "verify", false, "Compare the device CRC32 with the image")
	flashCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
}

func runFlash(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true
	printer := ui.NewPrinter(os.Stdout)

	path := imageFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no image given: pass a file or use --file")
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		printer.Failure("Invalid arguments", err, "")
		return err
	}

	img, err := image.Load(path, cfg.Region.Start)
	if err != nil {
		printer.Failure("Cannot load image", err, "")
		return err
	}
	cfg.Start = img.Base

	switch {
	case cmd.Flags().Changed("cca-entry"):
		if cfg.CCAEntry, err = parseAddress("cca-entry", ccaEntry); err != nil {
			return err
		}
	case img.HasEntry:
		cfg.CCAEntry = img.Entry
	}

	ctrl := newController(cfg)
	cfg = ctrl.Config()

	params := []ui.Field{
		{Key: "Port", Value: cfg.Port},
		{Key: "Image", Value: fmt.Sprintf("%s (%d bytes, %s)", path, len(img.Data), img.Format)},
		{Key: "Flash", Value: cfg.Region.String()},
		{Key: "Start", Value: fmt.Sprintf("0x%08X", cfg.Start)},
	}
	if cfg.WriteCCA {
		params = append(params, ui.Field{Key: "CCA entry", Value: fmt.Sprintf("0x%08X", cfg.CCAEntry)})
	}
	printer.Header("Flash image", "cc2538-bd flash", params...)

	if !assumeYes && ui.IsTerminal(os.Stdin) {
		pages := (len(img.Data) + int(cfg.Region.PageSize) - 1) / int(cfg.Region.PageSize)
		warnings := []string{
			fmt.Sprintf("%d flash pages from 0x%08X will be erased", pages, cfg.Start),
			"Do not disconnect or reset the board until the run finishes",
		}
		if cfg.WriteCCA {
			warnings = append(warnings, "The last flash page will be replaced by a new CCA")
		}
		if !ui.Confirm(os.Stdin, os.Stdout, "Flash write", warnings) {
			return fmt.Errorf("cancelled")
		}
	}

	ctx, cancel := commandContext()
	defer cancel()

	result, err := ctrl.Flash(ctx, img.Data)
	if err != nil {
		if flasher.IsValidationError(err) {
			printer.Failure("Image rejected", err, flasher.TroubleshootingHint(err))
		} else {
			printer.Failure("Flash failed", err, flasher.TroubleshootingHint(err))
		}
		return err
	}

	details := []ui.Field{
		{Key: "Chip ID", Value: fmt.Sprintf("0x%04X", result.ChipID)},
		{Key: "Pages erased", Value: strconv.Itoa(result.PagesErased)},
		{Key: "Bytes written", Value: strconv.Itoa(result.BytesWritten)},
	}
	if result.CCAWritten {
		details = append(details, ui.Field{Key: "CCA", Value: fmt.Sprintf("written, entry 0x%08X", cfg.CCAEntry)})
	}
	if result.Verified {
		details = append(details, ui.Field{Key: "CRC32", Value: "matches"})
	}
	details = append(details, ui.Field{Key: "Duration", Value: result.Duration.Round(time.Millisecond).String()})
	printer.Success("Image flashed, device reset", details...)
	return nil
}

// dumpCmd implements the 'dump' command
var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Read a memory range to a file",
	Long: `Read memory through MEMORY_READ and save it.

The address must be word aligned. Output ending in .hex is written as
Intel HEX at the read address; anything else is raw bytes. Nothing is
erased, written or reset.`,
	Example: `  # Dump all of a 512 KiB part
  cc2538-bd dump -p /dev/ttyUSB0 --address 0x00200000 --length 0x80000 --output flash.bin

  # Dump the CCA as Intel HEX
  cc2538-bd dump -p /dev/ttyUSB0 --address 0x0027FFD4 --length 44 --output cca.hex`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpAddress, "address", "0x00200000", "Start address (word aligned)")
	dumpCmd.Flags().StringVar(&dumpLength, "length", "", "Bytes to read (required)")
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "", "Output file, .bin or .hex (required)")
	dumpCmd.MarkFlagRequired("length")
	dumpCmd.MarkFlagRequired("output")
}

func runDump(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true
	printer := ui.NewPrinter(os.Stdout)

	addr, err := parseAddress("address", dumpAddress)
	if err != nil {
		return err
	}
	length, err := parseAddress("length", dumpLength)
	if err != nil {
		return err
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		printer.Failure("Invalid arguments", err, "")
		return err
	}

	printer.Header("Memory dump", "cc2538-bd dump",
		ui.Field{Key: "Port", Value: cfg.Port},
		ui.Field{Key: "Range", Value: fmt.Sprintf("0x%08X - 0x%08X", addr, uint64(addr)+uint64(length))},
		ui.Field{Key: "Output", Value: dumpOutput},
	)

	// Safety check: Warn if output file already exists
	if _, err := os.Stat(dumpOutput); err == nil {
		printer.Warning("Output file exists",
			ui.Field{Key: "File", Value: dumpOutput},
			ui.Field{Key: "Action", Value: "Will be overwritten"},
		)
	}

	ctx, cancel := commandContext()
	defer cancel()

	start := time.Now()
	data, err := newController(cfg).Dump(ctx, addr, length)
	if err != nil {
		printer.Failure("Memory dump failed", err, flasher.TroubleshootingHint(err))
		return err
	}

	if err := image.WriteFile(dumpOutput, addr, data); err != nil {
		printer.Failure("Cannot write output", err, "")
		return err
	}

	printer.Success("Memory dumped",
		ui.Field{Key: "Bytes", Value: strconv.Itoa(len(data))},
		ui.Field{Key: "Output", Value: dumpOutput},
		ui.Field{Key: "Duration", Value: time.Since(start).Round(time.Millisecond).String()},
	)
	return nil
}

// infoCmd implements the 'info' command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show chip ID and flash size",
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true
	printer := ui.NewPrinter(os.Stdout)

	cfg, err := buildConfig(cmd)
	if err != nil {
		printer.Failure("Invalid arguments", err, "")
		return err
	}

	printer.Header("Chip info", "cc2538-bd info", ui.Field{Key: "Port", Value: cfg.Port})

	ctx, cancel := commandContext()
	defer cancel()

	info, err := newController(cfg).Info(ctx)
	if err != nil {
		printer.Failure("Cannot read chip info", err, flasher.TroubleshootingHint(err))
		return err
	}

	printer.Success("Bootloader connected",
		ui.Field{Key: "Chip ID", Value: fmt.Sprintf("0x%04X", info.ID)},
		ui.Field{Key: "Raw ID", Value: fmt.Sprintf("% X", info.RawID)},
		ui.Field{Key: "DIECFG0", Value: fmt.Sprintf("0x%08X", info.DieConfig)},
		ui.Field{Key: "Flash size", Value: fmt.Sprintf("%d KiB", info.FlashSize/1024)},
	)
	if info.FlashSize != cfg.Region.Size {
		printer.Warning("Profile does not match the chip",
			ui.Field{Key: "Profile size", Value: fmt.Sprintf("%d KiB", cfg.Region.Size/1024)},
			ui.Field{Key: "Chip size", Value: fmt.Sprintf("%d KiB", info.FlashSize/1024)},
		)
	}
	return nil
}

// pingCmd implements the 'ping' command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the bootloader answers",
	RunE:  runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true
	printer := ui.NewPrinter(os.Stdout)

	cfg, err := buildConfig(cmd)
	if err != nil {
		printer.Failure("Invalid arguments", err, "")
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	rtt, err := newController(cfg).Ping(ctx)
	if err != nil {
		printer.Failure("No answer from "+cfg.Port, err, flasher.TroubleshootingHint(err))
		return err
	}

	printer.Success("Bootloader answered",
		ui.Field{Key: "Port", Value: cfg.Port},
		ui.Field{Key: "Round trip", Value: rtt.Round(time.Microsecond).String()},
	)
	return nil
}

// configCmd groups the config file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the cc2538-bd config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with an example profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		printer := ui.NewPrinter(os.Stdout)

		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			printer.Warning("Config file already exists", ui.Field{Key: "File", Value: path})
			return nil
		}

		if err := config.CreateDefaultConfig(); err != nil {
			printer.Failure("Cannot create config", err, "")
			return err
		}
		printer.Success("Config file created", ui.Field{Key: "File", Value: path})
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config and available profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		registry, err := config.LoadRegistry()
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(registry)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}

		fmt.Printf("# %s\n%s\n", path, out)
		fmt.Println("# profiles:")
		for _, name := range registry.ProfileNames() {
			p, err := registry.Profile(name)
			if err != nil {
				fmt.Printf("#   %-16s %v\n", name, err)
				continue
			}
			fmt.Printf("#   %-16s %s  %s\n", name, p.Region(), p.Description)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a default (port, baud, timeout, profile)",
	Example: `  cc2538-bd config set port /dev/ttyUSB0
  cc2538-bd config set timeout 2s
  cc2538-bd config set profile cc2538-256k`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		printer := ui.NewPrinter(os.Stdout)

		registry, err := config.GetGlobalRegistry()
		if err != nil {
			return err
		}
		if err := registry.SetDefault(args[0], args[1]); err != nil {
			printer.Failure("Invalid setting", err, "")
			return err
		}
		if err := config.SaveGlobal(); err != nil {
			printer.Failure("Cannot save config", err, "")
			return err
		}

		path, _ := config.GetConfigPath()
		printer.Success("Default updated",
			ui.Field{Key: args[0], Value: args[1]},
			ui.Field{Key: "File", Value: path},
		)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
