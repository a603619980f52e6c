// Package testsupport provides shared helpers for package tests: temp-dir
// configs, stub external binaries, and sized files.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"kestrel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults to dry-run with short timings and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BaseDir = filepath.Join(base, "evidence")
	cfgVal.Paths.MetaDir = filepath.Join(base, "meta")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Catalog.Path = filepath.Join(base, "meta", "catalog.db")
	cfgVal.Server.Health.Bind = "127.0.0.1:0"
	cfgVal.Server.Metrics.Bind = "127.0.0.1:0"
	cfgVal.Run.DryRun = true
	cfgVal.Run.RuntimeMinutes = 1
	cfgVal.Run.TickSeconds = 1
	cfgVal.Capture.DurationSeconds = 1
	cfgVal.Capture.SimulateDwellSecs = 0
	cfgVal.Hardware.MonitorEnabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithMode sets the operating mode on the test config.
func WithMode(mode config.Mode) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mode = mode
	}
}

// WithChildren adds supervised child definitions to the test config.
func WithChildren(children ...config.Child) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Children = append(b.cfg.Children, children...)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"hcxdumptool", "hcxpcapngtool", "iw", "ip"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.BaseDir)
}
