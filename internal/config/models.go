package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/muurk/cc2538-bd/internal/bootloader"
)

// DefaultProfile is used when neither --profile nor the config file names one
const DefaultProfile = "cc2538-512k"

// Registry represents the entire user configuration file.
type Registry struct {
	Version  int                 `yaml:"version"`
	Defaults *Defaults           `yaml:"defaults,omitempty"`
	Profiles map[string]*Profile `yaml:"profiles,omitempty"` // Keyed by profile name
}

// Defaults are applied when the matching command line flag is not given.
type Defaults struct {
	Port      string `yaml:"port,omitempty"`       // e.g. /dev/ttyUSB0, COM3, term:/dev/ttyACM0, ws://host/uart
	BaudRate  int    `yaml:"baud_rate,omitempty"`  // UART speed
	TimeoutMS int    `yaml:"timeout_ms,omitempty"` // Handshake and per-read timeout
	Profile   string `yaml:"profile,omitempty"`    // Profile used by flash/dump/info
}

// Profile describes one target part or board.
type Profile struct {
	Description string `yaml:"description,omitempty"`
	FlashStart  uint32 `yaml:"flash_start"`
	FlashSize   uint32 `yaml:"flash_size"`
	PageSize    uint32 `yaml:"page_size,omitempty"`  // Default: 2048
	ChunkSize   int    `yaml:"chunk_size,omitempty"` // SEND_DATA bytes, default 128
	WriteCCA    bool   `yaml:"write_cca,omitempty"`  // Write the CCA footer after flashing
	CCAEntry    uint32 `yaml:"cca_entry,omitempty"`  // Default: FlashStart
	Verify      bool   `yaml:"verify,omitempty"`     // CRC32 check after flashing
}

// Region returns the flash region the profile describes.
func (p *Profile) Region() bootloader.FlashRegion {
	pageSize := p.PageSize
	if pageSize == 0 {
		pageSize = bootloader.DefaultPageSize
	}
	return bootloader.FlashRegion{Start: p.FlashStart, Size: p.FlashSize, PageSize: pageSize}
}

// Validate checks the profile describes a usable region.
func (p *Profile) Validate() error {
	if err := p.Region().Validate(); err != nil {
		return err
	}
	if p.ChunkSize < 0 || p.ChunkSize > 251 {
		return fmt.Errorf("chunk_size %d out of range 1..251", p.ChunkSize)
	}
	return nil
}

// BuiltinProfiles returns a profile for every built-in CC2538 flash size.
func BuiltinProfiles() map[string]*Profile {
	descriptions := map[string]string{
		"cc2538-512k": "CC2538SF53 / CC2538NF53, 512 KiB flash",
		"cc2538-256k": "CC2538SF23 / CC2538NF23, 256 KiB flash",
		"cc2538-128k": "CC2538NF11, 128 KiB flash",
	}

	profiles := make(map[string]*Profile, len(bootloader.Presets))
	for name, region := range bootloader.Presets {
		profiles[name] = &Profile{
			Description: descriptions[name],
			FlashStart:  region.Start,
			FlashSize:   region.Size,
			PageSize:    region.PageSize,
		}
	}
	return profiles
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:  1,
		Defaults: defaultDefaults(),
		Profiles: make(map[string]*Profile),
	}
}

func defaultDefaults() *Defaults {
	return &Defaults{
		BaudRate:  115200,
		TimeoutMS: 1000,
		Profile:   DefaultProfile,
	}
}

// Timeout returns the default timeout as a duration.
func (d *Defaults) Timeout() time.Duration {
	if d == nil || d.TimeoutMS <= 0 {
		return time.Second
	}
	return time.Duration(d.TimeoutMS) * time.Millisecond
}

// DefaultKeys lists the keys SetDefault accepts
var DefaultKeys = []string{"port", "baud", "timeout", "profile"}

// SetDefault sets one entry of the defaults section from its text form.
// Timeouts take a Go duration ("1s", "500ms").
func (r *Registry) SetDefault(key, value string) error {
	if r.Defaults == nil {
		r.Defaults = defaultDefaults()
	}

	switch key {
	case "port":
		r.Defaults.Port = value
	case "baud":
		baud, err := strconv.Atoi(value)
		if err != nil || baud <= 0 {
			return fmt.Errorf("invalid baud rate %q", value)
		}
		r.Defaults.BaudRate = baud
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d < time.Millisecond {
			return fmt.Errorf("invalid timeout %q", value)
		}
		r.Defaults.TimeoutMS = int(d / time.Millisecond)
	case "profile":
		if _, err := r.Profile(value); err != nil {
			return err
		}
		r.Defaults.Profile = value
	default:
		return fmt.Errorf("unknown key %q (valid: %v)", key, DefaultKeys)
	}
	return nil
}

// Profile looks up a profile by name. User profiles shadow the built-in
// ones; an empty name selects the default profile.
func (r *Registry) Profile(name string) (*Profile, error) {
	if name == "" {
		name = DefaultProfile
		if r.Defaults != nil && r.Defaults.Profile != "" {
			name = r.Defaults.Profile
		}
	}

	if p, ok := r.Profiles[name]; ok && p != nil {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		return p, nil
	}
	if p, ok := BuiltinProfiles()[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("unknown profile %q (available: %v)", name, r.ProfileNames())
}

// SetProfile adds or replaces a user profile.
func (r *Registry) SetProfile(name string, p *Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}
	if r.Profiles == nil {
		r.Profiles = make(map[string]*Profile)
	}
	r.Profiles[name] = p
	return nil
}

// ProfileNames lists built-in and user profile names, sorted.
func (r *Registry) ProfileNames() []string {
	seen := make(map[string]bool)
	for name := range BuiltinProfiles() {
		seen[name] = true
	}
	for name := range r.Profiles {
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
