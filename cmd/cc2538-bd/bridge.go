package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/cc2538-bd/internal/bridge"
	"github.com/muurk/cc2538-bd/internal/config"
	"github.com/muurk/cc2538-bd/internal/logging"
	"github.com/muurk/cc2538-bd/internal/ui"
)

var (
	bridgeListen   string
	bridgePath     string
	bridgeCert     string
	bridgeKey      string
	bridgeLogLevel string
)

// bridgeCmd implements the 'bridge' command
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Share a local UART as a websocket serial bridge",
	Long: `Serve the UART given by --port to remote cc2538-bd clients.

The UART is opened when a client connects and released when it leaves.
Only one client is served at a time; others are refused with HTTP 409.
Remote hosts use the printed URL as their --port.`,
	Example: `  # On the machine wired to the board
  cc2538-bd bridge -p /dev/ttyUSB0 --listen :8080

  # From anywhere else
  cc2538-bd flash -p ws://pi.local:8080/uart firmware.bin`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeListen, "listen", ":8080", "Listen address (host:port, empty host = all interfaces)")
	bridgeCmd.Flags().StringVar(&bridgePath, "path", bridge.DefaultPath, "URL path clients connect to")
	bridgeCmd.Flags().StringVar(&bridgeCert, "cert", "", "TLS certificate file (serves wss:// with --key)")
	bridgeCmd.Flags().StringVar(&bridgeKey, "key", "", "TLS private key file")
	bridgeCmd.Flags().StringVar(&bridgeLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(bridgeCmd)
}

// parseListen splits host:port, accepting a bare port.
func parseListen(s string) (string, int, error) {
	if _, err := strconv.Atoi(s); err == nil {
		s = ":" + s
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --listen %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid --listen port %q", portStr)
	}
	return host, port, nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	printer := ui.NewPrinter(os.Stdout)

	// A server is useless without its log, so default to info here
	if !verbose {
		if err := logging.Initialize(bridgeLogLevel); err != nil {
			return err
		}
	}

	registry, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	device := portName
	if device == "" {
		device = registry.Defaults.Port
	}
	baud := baudRate
	if !cmd.Flags().Changed("baud") && registry.Defaults.BaudRate > 0 {
		baud = registry.Defaults.BaudRate
	}

	host, port, err := parseListen(bridgeListen)
	if err != nil {
		printer.Failure("Invalid arguments", err, "")
		return err
	}

	srv, err := bridge.New(bridge.Config{
		Host:     host,
		Port:     port,
		Path:     bridgePath,
		Device:   device,
		BaudRate: baud,
		CertPath: bridgeCert,
		KeyPath:  bridgeKey,
	}, logging.Named("bridge"))
	if err != nil {
		printer.Failure("Cannot start bridge", err, "")
		return err
	}
	if err := srv.Listen(); err != nil {
		printer.Failure("Cannot start bridge", err, "")
		return err
	}

	printer.Header("Serial Bridge", "bridge",
		ui.Field{Key: "UART", Value: device},
		ui.Field{Key: "Baud", Value: strconv.Itoa(baud)},
		ui.Field{Key: "URL", Value: srv.URL()},
	)

	ctx, cancel := commandContext()
	defer cancel()
	return srv.Start(ctx)
}
