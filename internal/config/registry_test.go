package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/cc2538-bd/internal/bootloader"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	// Should not be empty
	if configDir == "" {
		t.Error("GetConfigDir() returned empty string")
	}

	if !strings.Contains(configDir, "cc2538-bd") {
		t.Errorf("GetConfigDir() = %v, should contain 'cc2538-bd'", configDir)
	}

	// Platform-specific checks
	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin", "linux":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	// Should end with config.yaml
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}
	if reg.Profiles == nil {
		t.Error("NewRegistry().Profiles should be initialized")
	}
	if reg.Defaults == nil {
		t.Fatal("NewRegistry().Defaults should be initialized")
	}
	if reg.Defaults.BaudRate != 115200 {
		t.Errorf("Defaults.BaudRate = %d, want 115200", reg.Defaults.BaudRate)
	}
	if reg.Defaults.Timeout() != time.Second {
		t.Errorf("Defaults.Timeout() = %v, want 1s", reg.Defaults.Timeout())
	}
}

func TestRegistryProfile(t *testing.T) {
	reg := NewRegistry()
	custom := &Profile{FlashStart: 0x00200000, FlashSize: 0x00040000, WriteCCA: true}
	if err := reg.SetProfile("my-board", custom); err != nil {
		t.Fatalf("SetProfile() error = %v", err)
	}
	shadow := &Profile{FlashStart: 0x00200000, FlashSize: 0x00010000}
	if err := reg.SetProfile("cc2538-128k", shadow); err != nil {
		t.Fatalf("SetProfile() error = %v", err)
	}

	tests := []struct {
		name     string
		profile  string
		wantSize uint32
		wantErr  bool
	}{
		{name: "empty selects default", profile: "", wantSize: bootloader.CC2538SF53.Size},
		{name: "built in", profile: "cc2538-256k", wantSize: bootloader.CC2538SF23.Size},
		{name: "user profile", profile: "my-board", wantSize: 0x00040000},
		{name: "user shadows built in", profile: "cc2538-128k", wantSize: 0x00010000},
		{name: "unknown", profile: "cc2650", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := reg.Profile(tt.profile)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Profile(%q) error = %v, wantErr %v", tt.profile, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p.FlashSize != tt.wantSize {
				t.Errorf("FlashSize = 0x%X, want 0x%X", p.FlashSize, tt.wantSize)
			}
		})
	}
}

func TestRegistryProfileUsesConfiguredDefault(t *testing.T) {
	reg := NewRegistry()
	reg.Defaults.Profile = "cc2538-128k"

	p, err := reg.Profile("")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.FlashSize != bootloader.CC2538NF11.Size {
		t.Errorf("FlashSize = 0x%X, want 0x%X", p.FlashSize, bootloader.CC2538NF11.Size)
	}
}

func TestSetProfileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		profile *Profile
	}{
		{name: "unaligned start", profile: &Profile{FlashStart: 0x00200001, FlashSize: 0x00080000}},
		{name: "zero size", profile: &Profile{FlashStart: 0x00200000}},
		{name: "chunk too large", profile: &Profile{FlashStart: 0x00200000, FlashSize: 0x00080000, ChunkSize: 252}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			if err := reg.SetProfile("bad", tt.profile); err == nil {
				t.Error("SetProfile() expected error, got nil")
			}
			if _, ok := reg.Profiles["bad"]; ok {
				t.Error("invalid profile was stored")
			}
		})
	}
}

func TestProfileRegion(t *testing.T) {
	p := &Profile{FlashStart: 0x00200000, FlashSize: 0x00080000}
	region := p.Region()
	if region.PageSize != bootloader.DefaultPageSize {
		t.Errorf("PageSize = %d, want default %d", region.PageSize, bootloader.DefaultPageSize)
	}
	if region != bootloader.CC2538SF53 {
		t.Errorf("Region() = %v, want %v", region, bootloader.CC2538SF53)
	}
}

func TestProfileNames(t *testing.T) {
	reg := NewRegistry()
	_ = reg.SetProfile("zz-board", &Profile{FlashStart: 0x00200000, FlashSize: 0x00080000})

	got := reg.ProfileNames()
	want := []string{"cc2538-128k", "cc2538-256k", "cc2538-512k", "zz-board"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ProfileNames() = %v, want %v", got, want)
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	testConfigPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.Defaults.Port = "/dev/ttyUSB0"
	reg.Defaults.TimeoutMS = 2500
	if err := reg.SetProfile("board", &Profile{
		Description: "Test board",
		FlashStart:  0x00200000,
		FlashSize:   0x00080000,
		WriteCCA:    true,
		CCAEntry:    0x00200100,
		Verify:      true,
	}); err != nil {
		t.Fatalf("SetProfile() error = %v", err)
	}

	if err := reg.SaveTo(testConfigPath); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	if _, err := os.Stat(testConfigPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}

	loaded, err := LoadFrom(testConfigPath)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if loaded.Defaults.Port != "/dev/ttyUSB0" {
		t.Errorf("Defaults.Port = %q, want /dev/ttyUSB0", loaded.Defaults.Port)
	}
	if loaded.Defaults.Timeout() != 2500*time.Millisecond {
		t.Errorf("Defaults.Timeout() = %v, want 2.5s", loaded.Defaults.Timeout())
	}

	board := loaded.Profiles["board"]
	if board == nil {
		t.Fatal("profile should exist in loaded registry")
	}
	if !board.WriteCCA || !board.Verify || board.CCAEntry != 0x00200100 {
		t.Errorf("loaded profile = %+v", board)
	}
}

func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		verify  func(t *testing.T, reg *Registry)
	}{
		{
			name: "hex addresses",
			content: `version: 1
profiles:
  hex-board:
    flash_start: 0x00200000
    flash_size: 0x40000
    chunk_size: 248
`,
			verify: func(t *testing.T, reg *Registry) {
				p, err := reg.Profile("hex-board")
				if err != nil {
					t.Fatalf("Profile() error = %v", err)
				}
				if p.FlashStart != 0x00200000 || p.FlashSize != 0x40000 || p.ChunkSize != 248 {
					t.Errorf("profile = %+v", p)
				}
				if reg.Defaults == nil {
					t.Error("missing defaults section should be filled in")
				}
			},
		},
		{
			name:    "unsupported version",
			content: "version: 2\n",
			wantErr: true,
		},
		{
			name:    "not yaml",
			content: "profiles: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			reg, err := LoadFrom(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadFrom() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.verify != nil {
				tt.verify(t, reg)
			}
		})
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	reg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if reg.Version != 1 || reg.Defaults == nil {
		t.Errorf("missing file should yield defaults, got %+v", reg)
	}
}

func BenchmarkGetConfigDir(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = GetConfigDir()
	}
}

func TestSetDefault(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr bool
		check   func(d *Defaults) bool
	}{
		{key: "port", value: "/dev/ttyACM0", check: func(d *Defaults) bool { return d.Port == "/dev/ttyACM0" }},
		{key: "baud", value: "460800", check: func(d *Defaults) bool { return d.BaudRate == 460800 }},
		{key: "timeout", value: "2500ms", check: func(d *Defaults) bool { return d.TimeoutMS == 2500 }},
		{key: "profile", value: "cc2538-256k", check: func(d *Defaults) bool { return d.Profile == "cc2538-256k" }},
		{key: "baud", value: "fast", wantErr: true},
		{key: "baud", value: "0", wantErr: true},
		{key: "timeout", value: "1", wantErr: true},
		{key: "profile", value: "no-such-board", wantErr: true},
		{key: "colour", value: "blue", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			r := NewRegistry()
			err := r.SetDefault(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetDefault() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !tt.check(r.Defaults) {
				t.Errorf("Defaults = %+v after setting %s", *r.Defaults, tt.key)
			}
		})
	}
}
