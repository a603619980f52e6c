package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Mode selects how aggressive the daemon behaves. Passive mode captures
// only; semi and aggressive modes additionally run attack-capable children.
type Mode string

const (
	ModePassive    Mode = "passive"
	ModeSemi       Mode = "semi"
	ModeAggressive Mode = "aggressive"
)

// Paths contains directory configuration.
type Paths struct {
	BaseDir string `toml:"base_dir"`
	MetaDir string `toml:"meta_dir"`
	LogDir  string `toml:"log_dir"`
}

// Interface contains radio interface configuration.
type Interface struct {
	Name             string `toml:"name"`
	Channels         []int  `toml:"channels"`
	ChannelHop       bool   `toml:"channel_hop"`
	DwellMillis      int    `toml:"dwell_millis"`
	RegulatoryDomain string `toml:"regulatory_domain"`
	MACRandomization bool   `toml:"mac_randomization"`
}

// Naming controls SSID-based capture renaming.
type Naming struct {
	BySSID       bool   `toml:"by_ssid"`
	Template     string `toml:"template"`
	MaxNameLen   int    `toml:"max_name_len"`
	AllowUnicode bool   `toml:"allow_unicode"`
	Whitespace   string `toml:"whitespace"`
}

// Tools holds paths to the external capture and conversion binaries.
type Tools struct {
	HcxdumptoolPath   string `toml:"hcxdumptool_path"`
	HcxpcapngtoolPath string `toml:"hcxpcapngtool_path"`
}

// Capture contains capture pass configuration.
type Capture struct {
	OutDirName          string `toml:"out_dir_name"`
	DurationSeconds     int    `toml:"duration_seconds"`
	MinBytesForConvert  int64  `toml:"min_bytes_for_convert"`
	SimulateBytesPerCap int64  `toml:"simulate_bytes_per_capture"`
	SimulateDwellSecs   int    `toml:"simulate_dwell_secs"`
	Naming              Naming `toml:"naming"`
	Tools               Tools  `toml:"tools"`
}

// Rotation bounds how many raw captures are retained per day partition.
type Rotation struct {
	MaxArchives int `toml:"max_archives"`
}

// Storage contains quota enforcement configuration.
type Storage struct {
	Enabled       bool  `toml:"enabled"`
	MaxDays       int   `toml:"max_days"`
	MaxBytes      int64 `toml:"max_bytes"`
	LowSpaceBytes int64 `toml:"low_space_bytes"`
}

// Supervisor contains child process restart policy.
type Supervisor struct {
	Enabled            bool    `toml:"enabled"`
	BackoffInitialSecs float64 `toml:"backoff_initial_secs"`
	BackoffCapSecs     float64 `toml:"backoff_cap_secs"`
	JitterFrac         float64 `toml:"jitter_frac"`
	FaultInjection     bool    `toml:"fault_injection"`
	// GiveUpAfter stops restarting a child after this many failures.
	// Zero keeps the always-retry policy.
	GiveUpAfter int `toml:"give_up_after"`
}

// Child describes one supervised long-running process.
type Child struct {
	Name       string            `toml:"name"`
	Command    []string          `toml:"command"`
	Env        map[string]string `toml:"env"`
	Enabled    bool              `toml:"enabled"`
	AttackOnly bool              `toml:"attack_only"`
}

// Plugins lists enabled extension modules and their options.
type Plugins struct {
	Enabled []string                  `toml:"enabled"`
	Options map[string]map[string]any `toml:"options"`
}

// Listener describes one HTTP listener binding.
type Listener struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Server groups the health and metrics listeners.
type Server struct {
	Health  Listener `toml:"health"`
	Metrics Listener `toml:"metrics"`
}

// Catalog contains the capture catalog database settings.
type Catalog struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Hardware contains adapter hotplug monitoring settings.
type Hardware struct {
	MonitorEnabled bool `toml:"monitor_enabled"`
}

// Logging contains log output configuration.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Run contains service loop timing.
type Run struct {
	RuntimeMinutes   int  `toml:"runtime_minutes"`
	TickSeconds      int  `toml:"tick_seconds"`
	StopGraceSeconds int  `toml:"stop_grace_seconds"`
	DryRun           bool `toml:"dry_run"`
}

// Config encapsulates all configuration values for kestrel.
//
// Configuration sections by subsystem:
//   - Paths: evidence base dir, meta dir, log dir
//   - Interface: radio interface and channel plan
//   - Capture: capture pass timing, tools, naming
//   - Rotation: per-day raw capture retention
//   - Storage: day/byte quotas and low-space threshold
//   - Supervisor + Children: child processes and restart policy
//   - Plugins: extension modules and options
//   - Server: health and metrics listeners
//   - Catalog: capture catalog database
//   - Hardware: adapter hotplug monitoring
//   - Logging / Run: log output and service loop timing
type Config struct {
	Mode       Mode       `toml:"mode"`
	Paths      Paths      `toml:"paths"`
	Interface  Interface  `toml:"interface"`
	Capture    Capture    `toml:"capture"`
	Rotation   Rotation   `toml:"rotation"`
	Storage    Storage    `toml:"storage"`
	Supervisor Supervisor `toml:"supervisor"`
	Children   []Child    `toml:"children"`
	Plugins    Plugins    `toml:"plugins"`
	Server     Server     `toml:"server"`
	Catalog    Catalog    `toml:"catalog"`
	Hardware   Hardware   `toml:"hardware"`
	Logging    Logging    `toml:"logging"`
	Run        Run        `toml:"run"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/kestrel/config.toml")
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. When no file exists
// at the resolved location the defaults are returned with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("kestrel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the base, meta, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.BaseDir, c.Paths.MetaDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}
