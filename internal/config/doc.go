// Package config provides user configuration for cc2538-bd.
//
// The configuration is a small YAML file holding default connection
// settings and named flash profiles. Built-in profiles exist for every
// CC2538 flash size (cc2538-512k, cc2538-256k, cc2538-128k); user profiles
// with the same name replace them.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/cc2538-bd/config.yaml or $HOME/.config/cc2538-bd/config.yaml
//   - macOS: $HOME/.config/cc2538-bd/config.yaml
//   - Windows: %LOCALAPPDATA%\cc2538-bd\config.yaml
//
// # Example
//
//	version: 1
//	defaults:
//	  port: /dev/ttyUSB0
//	  baud_rate: 115200
//	  timeout_ms: 1000
//	  profile: my-board
//	profiles:
//	  my-board:
//	    flash_start: 0x00200000
//	    flash_size: 0x00080000
//	    write_cca: true
//	    verify: true
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
