package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMode()
	c.normalizeInterface()
	c.normalizeCapture()
	c.normalizeChildren()
	c.normalizeServer()
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeRun()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if c.Paths.MetaDir, err = expandPath(c.Paths.MetaDir); err != nil {
		return fmt.Errorf("paths.meta_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMode() {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	if c.Mode == "" {
		c.Mode = ModePassive
	}
}

func (c *Config) normalizeInterface() {
	c.Interface.Name = strings.TrimSpace(c.Interface.Name)
	c.Interface.RegulatoryDomain = strings.ToUpper(strings.TrimSpace(c.Interface.RegulatoryDomain))
	if c.Interface.DwellMillis <= 0 {
		c.Interface.DwellMillis = defaultDwellMillis
	}
	if len(c.Interface.Channels) == 0 {
		c.Interface.Channels = []int{1, 6, 11}
	}
}

func (c *Config) normalizeCapture() {
	c.Capture.OutDirName = strings.TrimSpace(c.Capture.OutDirName)
	if c.Capture.OutDirName == "" {
		c.Capture.OutDirName = defaultOutDirName
	}
	if c.Capture.DurationSeconds <= 0 {
		c.Capture.DurationSeconds = defaultCaptureDuration
	}
	if c.Capture.MinBytesForConvert <= 0 {
		c.Capture.MinBytesForConvert = defaultMinConvertBytes
	}
	if c.Capture.SimulateBytesPerCap <= 0 {
		c.Capture.SimulateBytesPerCap = defaultSimulateBytes
	}
	if strings.TrimSpace(c.Capture.Tools.HcxdumptoolPath) == "" {
		c.Capture.Tools.HcxdumptoolPath = defaultHcxdumptoolPath
	}
	if strings.TrimSpace(c.Capture.Tools.HcxpcapngtoolPath) == "" {
		c.Capture.Tools.HcxpcapngtoolPath = defaultHcxpcapngtoolPath
	}
	if c.Capture.Naming.MaxNameLen <= 0 {
		c.Capture.Naming.MaxNameLen = 80
	}
	if strings.TrimSpace(c.Capture.Naming.Whitespace) == "" {
		c.Capture.Naming.Whitespace = "-"
	}
	if strings.TrimSpace(c.Capture.Naming.Template) == "" {
		c.Capture.Naming.Template = "{ssid}-{bssid}-ch{channel}"
	}
}

func (c *Config) normalizeChildren() {
	for i := range c.Children {
		c.Children[i].Name = strings.TrimSpace(c.Children[i].Name)
	}
}

func (c *Config) normalizeServer() {
	c.Server.Health.Bind = strings.TrimSpace(c.Server.Health.Bind)
	if c.Server.Health.Bind == "" {
		c.Server.Health.Bind = defaultHealthBind
	}
	c.Server.Metrics.Bind = strings.TrimSpace(c.Server.Metrics.Bind)
	if c.Server.Metrics.Bind == "" {
		c.Server.Metrics.Bind = defaultMetricsBind
	}
}

func (c *Config) normalizeCatalog() error {
	if strings.TrimSpace(c.Catalog.Path) == "" {
		c.Catalog.Path = defaultCatalogPath
	}
	expanded, err := expandPath(c.Catalog.Path)
	if err != nil {
		return fmt.Errorf("catalog.path: %w", err)
	}
	c.Catalog.Path = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeRun() {
	if c.Run.RuntimeMinutes <= 0 {
		c.Run.RuntimeMinutes = defaultRuntimeMinutes
	}
	if c.Run.TickSeconds <= 0 {
		c.Run.TickSeconds = defaultTickSeconds
	}
	if c.Run.StopGraceSeconds <= 0 {
		c.Run.StopGraceSeconds = defaultStopGraceSeconds
	}
}

// ExpandPath resolves ~ and relative paths to absolute locations.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", trimmed, err)
	}
	return abs, nil
}
