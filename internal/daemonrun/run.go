// Package daemonrun boots the capture daemon: locking, logging, hardware
// setup, and the orchestrator service loop.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"kestrel/internal/capture"
	"kestrel/internal/catalog"
	"kestrel/internal/config"
	"kestrel/internal/deps"
	"kestrel/internal/httpapi"
	"kestrel/internal/hwmon"
	"kestrel/internal/iface"
	"kestrel/internal/ipc"
	"kestrel/internal/logging"
	"kestrel/internal/orchestrator"
	"kestrel/internal/plugin"
	"kestrel/internal/storage"
	"kestrel/internal/supervisor"
)

// SocketName is the IPC socket file created under the meta dir.
const SocketName = "kestreld.sock"

// PidFileName is the pid marker created under the meta dir.
const PidFileName = "kestreld.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// SocketPath returns the IPC socket location for a config.
func SocketPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.MetaDir, SocketName)
}

// Run starts the kestrel daemon and blocks until the service loop drains.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	stamp := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("kestrel-%s.log", stamp))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.MetaDir, "kestreld.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another kestrel daemon instance is already running")
	}
	defer func() { _ = lock.Unlock() }()

	pidPath := filepath.Join(cfg.Paths.MetaDir, PidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "kestrel-*.log", Exclude: []string{logPath}},
	)
	logDependencySnapshot(logger, cfg)

	var store *catalog.Store
	if cfg.Catalog.Enabled {
		store, err = catalog.Open(cfg.Catalog.Path)
		if err != nil {
			logger.Warn("capture catalog unavailable",
				logging.Error(err),
				logging.String(logging.FieldEventType, "catalog_open_failed"),
				logging.String(logging.FieldImpact, "captures will not be recorded for audit"),
			)
		} else {
			defer store.Close()
		}
	}

	loaded, shutdowns := plugin.LoadEnabled(cfg.Plugins.Enabled, cfg.Plugins.Options, logger)

	sup := supervisor.New(supervisor.Options{
		BackoffInitialSecs: cfg.Supervisor.BackoffInitialSecs,
		BackoffCapSecs:     cfg.Supervisor.BackoffCapSecs,
		JitterFrac:         cfg.Supervisor.JitterFrac,
		FaultInjection:     cfg.Supervisor.FaultInjection,
		GiveUpAfter:        cfg.Supervisor.GiveUpAfter,
	}, logger)
	children := childSpecs(cfg, logger)
	if cfg.Supervisor.Enabled {
		for _, child := range children {
			if child.Enabled {
				sup.Start(child)
			}
		}
	}

	radio := setupRadio(signalCtx, cfg, logger)
	runner := buildRunner(cfg)
	extract := buildExtractor(cfg)

	orch := orchestrator.New(orchestrator.Deps{
		Config:     cfg,
		Logger:     logger,
		Runner:     runner,
		Enforcer:   &storage.Enforcer{},
		Supervisor: sup,
		Children:   children,
		Catalog:    store,
		Radio:      radio,
		Extract:    extract,
		Shutdowns:  shutdowns,
		PidPath:    pidPath,
		RunID:      runID,
		Plugins:    loaded,
	})

	api := httpapi.New(orch, sup, store, logger)
	if err := api.Start(cfg.Server); err != nil {
		return err
	}
	defer api.Stop(context.Background())

	var monitor *hwmon.AdapterMonitor
	if cfg.Hardware.MonitorEnabled && !cfg.Run.DryRun {
		monitor = hwmon.NewAdapterMonitor(cfg.Interface.Name, logger, orch.SetAdapterPresent)
		if err := monitor.Start(signalCtx); err != nil {
			logger.Warn("adapter monitor start failed", logging.Error(err))
		}
		defer monitor.Stop()
	}

	ipcServer, err := ipc.NewServer(signalCtx, SocketPath(cfg), orch, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	go func() {
		<-signalCtx.Done()
		orch.RequestStop()
	}()

	logger.Info("kestrel daemon started",
		logging.String(logging.FieldRunID, runID),
		logging.String("mode", string(cfg.Mode)),
		logging.Bool("dry_run", cfg.Run.DryRun),
		logging.Int("plugins", len(loaded)),
	)

	err = orch.Run(signalCtx)
	logger.Info("kestrel daemon shut down")
	return err
}

// childSpecs filters configured children by mode: attack-capable children
// run only outside passive mode.
func childSpecs(cfg *config.Config, logger *slog.Logger) []supervisor.ChildSpec {
	var specs []supervisor.ChildSpec
	for _, child := range cfg.Children {
		if child.AttackOnly && cfg.Mode == config.ModePassive {
			logger.Info("attack-capable child suppressed in passive mode",
				logging.String(logging.FieldChild, child.Name),
			)
			continue
		}
		specs = append(specs, supervisor.ChildSpec{
			Name:    child.Name,
			Command: child.Command,
			Env:     child.Env,
			Enabled: child.Enabled,
		})
	}
	return specs
}

// setupRadio performs the one-shot interface configuration. Skipped
// entirely in dry-run; individual step failures degrade with warnings.
func setupRadio(ctx context.Context, cfg *config.Config, logger *slog.Logger) *iface.Setup {
	if cfg.Run.DryRun {
		return nil
	}
	radio := iface.New(cfg.Interface.Name)

	if err := radio.SetRegulatoryDomain(ctx, cfg.Interface.RegulatoryDomain); err != nil {
		logger.Warn("regulatory domain setup failed", logging.Error(err))
	}
	if cfg.Interface.MACRandomization {
		if err := radio.RandomizeMAC(ctx); err != nil {
			logger.Warn("MAC randomization failed", logging.Error(err))
		}
	}
	if err := radio.SetMonitorMode(ctx); err != nil {
		logger.Warn("monitor mode setup failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify the adapter supports monitor mode and the daemon runs as root"),
			logging.String(logging.FieldImpact, "capture passes will likely produce empty files"),
		)
	}
	return radio
}

func buildRunner(cfg *config.Config) *capture.Runner {
	return &capture.Runner{
		Tool:          cfg.Capture.Tools.HcxdumptoolPath,
		Interface:     cfg.Interface.Name,
		Grace:         time.Duration(cfg.Run.StopGraceSeconds) * time.Second,
		Simulate:      cfg.Run.DryRun,
		SimulateBytes: cfg.Capture.SimulateBytesPerCap,
		SimulateDwell: time.Duration(cfg.Capture.SimulateDwellSecs) * time.Second,
	}
}

func buildExtractor(cfg *config.Config) orchestrator.Extractor {
	if !cfg.Capture.Naming.BySSID {
		return nil
	}
	if cfg.Run.DryRun {
		return orchestrator.SimulatedExtractor()
	}
	// Frame parsing is out of scope; without an external identifier the
	// rename path counts skips.
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	args := []any{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		args = append(args, logging.Bool(status.Name+"_available", status.Available))
	}
	logger.Info("dependency snapshot", args...)
}
