// Package orchestrator runs the capture service loop: one tick performs a
// capture pass, housekeeping, and supervision, then publishes counters for
// the health and metrics listeners. All tick-internal failures degrade to
// counters and warnings; the loop itself never aborts mid-run.
package orchestrator

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kestrel/internal/capture"
	"kestrel/internal/catalog"
	"kestrel/internal/config"
	"kestrel/internal/hwmon"
	"kestrel/internal/iface"
	"kestrel/internal/logging"
	"kestrel/internal/plugin"
	"kestrel/internal/services"
	"kestrel/internal/storage"
	"kestrel/internal/supervisor"
)

// Extractor pulls the primary network identity out of a finished capture
// file. A nil extractor disables SSID-based renaming.
type Extractor func(ctx context.Context, path string) (capture.NetworkInfo, error)

// SimulatedExtractor fabricates network identities for dry runs so the
// rename path stays exercised without radio hardware.
func SimulatedExtractor() Extractor {
	var seq atomic.Int64
	return func(_ context.Context, _ string) (capture.NetworkInfo, error) {
		n := seq.Add(1)
		return capture.NetworkInfo{
			SSID:    "SimNet-" + strconv.FormatInt(n, 10),
			BSSID:   "02:00:00:00:00:01",
			Channel: 1,
		}, nil
	}
}

// Deps carries everything the orchestrator drives. Catalog, Radio, and
// Extract are optional.
type Deps struct {
	Config     *config.Config
	Logger     *slog.Logger
	Runner     *capture.Runner
	Enforcer   *storage.Enforcer
	Supervisor *supervisor.Supervisor
	Children   []supervisor.ChildSpec
	Catalog    *catalog.Store
	Radio      *iface.Setup
	Extract    Extractor
	Shutdowns  []plugin.Shutdowner
	PidPath    string
	RunID      string
	Plugins    []string
}

// Orchestrator owns the service loop and the published runtime state.
type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Deps

	mu    sync.Mutex
	state RuntimeState

	stopFlag   atomic.Bool
	rotateFlag atomic.Bool
	drained    atomic.Bool

	hopIndex int

	// wait and now are injectable for deterministic tests.
	wait func(ctx context.Context, d time.Duration)
	now  func() time.Time

	// readTemperature is injectable; defaults to sysfs.
	readTemperature func() (float64, bool)
}

// New constructs an Orchestrator in the initializing phase.
func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		cfg:    deps.Config,
		logger: logging.NewComponentLogger(deps.Logger, "orchestrator"),
		deps:   deps,
		wait: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
		now:             time.Now,
		readTemperature: hwmon.ReadTemperature,
	}
	o.state = RuntimeState{
		Phase:          PhaseInitializing,
		Mode:           string(deps.Config.Mode),
		RunID:          deps.RunID,
		DryRun:         deps.Config.Run.DryRun,
		AdapterPresent: true,
		PluginsEnabled: len(deps.Plugins),
	}
	return o
}

// RequestStop asks the loop to stop after the current tick. Edge
// triggered; repeated requests coalesce.
func (o *Orchestrator) RequestStop() {
	o.stopFlag.Store(true)
}

// RequestRotate asks the current capture pass to end early so files
// rotate now. Coalesces until the end of the tick consumes it.
func (o *Orchestrator) RequestRotate() {
	o.rotateFlag.Store(true)
}

// SetAdapterPresent records adapter hotplug state from the hardware
// monitor.
func (o *Orchestrator) SetAdapterPresent(present bool) {
	o.update(func(s *RuntimeState) { s.AdapterPresent = present })
	if !present {
		o.logger.Warn("capture adapter removed",
			logging.String(logging.FieldEventType, "adapter_removed"),
			logging.String(logging.FieldImpact, "capture passes will fail until the adapter returns"),
		)
	}
}

// Run drives the service loop until a stop request, the run deadline, or
// context cancellation, then drains. Run returns only after the drain
// completes.
func (o *Orchestrator) Run(ctx context.Context) error {
	started := o.now()
	o.update(func(s *RuntimeState) {
		s.Phase = PhaseRunning
		s.StartedAt = started
	})
	o.logger.Info("service loop started",
		logging.String(logging.FieldRunID, o.deps.RunID),
		logging.String("mode", string(o.cfg.Mode)),
		logging.Bool("dry_run", o.cfg.Run.DryRun),
		logging.String(logging.FieldEventType, "run_started"),
	)

	var deadline time.Time
	if o.cfg.Run.RuntimeMinutes > 0 {
		deadline = started.Add(time.Duration(o.cfg.Run.RuntimeMinutes) * time.Minute)
	}
	interval := time.Duration(o.cfg.Run.TickSeconds) * time.Second

	for {
		o.tick(ctx)

		// Stop is observed only here, at the end of a completed tick.
		if o.stopFlag.Load() || ctx.Err() != nil {
			break
		}
		if !deadline.IsZero() && !o.now().Before(deadline) {
			o.logger.Info("run deadline reached",
				logging.String(logging.FieldEventType, "run_deadline"),
			)
			break
		}
		o.wait(ctx, interval)
		if o.stopFlag.Load() || ctx.Err() != nil {
			break
		}
	}

	o.drain()
	return nil
}

// interrupted reports whether the in-flight capture pass should end early.
func (o *Orchestrator) interrupted() bool {
	return o.stopFlag.Load() || o.rotateFlag.Load()
}

// degradeOrEscalate applies the central tick error policy: failures log
// and count in place, except configuration errors, which stop the run at
// the next tick boundary since retrying cannot fix them.
func (o *Orchestrator) degradeOrEscalate(err error, message string, attrs ...any) {
	attrs = append(attrs, logging.Error(err))
	if services.Classify(err) == services.SeverityFatal {
		attrs = append(attrs,
			logging.String(logging.FieldImpact, "run stopping after this tick"),
			logging.String(logging.FieldErrorHint, "fix the configuration and restart the daemon"),
		)
		o.logger.Error(message, attrs...)
		o.RequestStop()
		return
	}
	o.logger.Warn(message, attrs...)
}

func (o *Orchestrator) tick(ctx context.Context) {
	o.update(func(s *RuntimeState) { s.Ticks++ })

	o.hopChannel(ctx)
	o.capturePass(ctx)
	o.superviseChildren()
	o.enforceQuota()
	o.observeEnvironment()
	o.publish()

	// A rotate request only ever shortens the pass it interrupted.
	o.rotateFlag.Store(false)
}

func (o *Orchestrator) hopChannel(ctx context.Context) {
	channels := o.cfg.Interface.Channels
	if len(channels) == 0 {
		return
	}
	channel := channels[o.hopIndex%len(channels)]
	if o.cfg.Interface.ChannelHop {
		o.hopIndex++
	}
	if o.deps.Radio != nil {
		if err := o.deps.Radio.SetChannel(ctx, channel); err != nil {
			o.degradeOrEscalate(err, "channel hop failed",
				logging.Int("channel", channel),
				logging.String(logging.FieldEventType, "channel_hop_failed"),
			)
			return
		}
	}
	o.update(func(s *RuntimeState) { s.CurrentChannel = channel })

	// Let the radio settle on the new channel before the pass starts.
	if dwell := time.Duration(o.cfg.Interface.DwellMillis) * time.Millisecond; dwell > 0 && o.deps.Radio != nil {
		o.wait(ctx, dwell)
	}
}

func (o *Orchestrator) capturePass(ctx context.Context) {
	dest, err := capture.NextCapturePath(o.cfg.Paths.BaseDir, o.cfg.Capture.OutDirName, o.now())
	if err != nil {
		o.degradeOrEscalate(err, "capture path allocation failed",
			logging.String(logging.FieldEventType, "capture_path_failed"),
		)
		return
	}

	duration := time.Duration(o.cfg.Capture.DurationSeconds) * time.Second
	result, err := o.deps.Runner.Run(ctx, dest, duration, o.interrupted)
	if err != nil {
		o.degradeOrEscalate(err, "capture pass failed",
			logging.String(logging.FieldEventType, "capture_failed"),
		)
		return
	}

	if seq, ok := captureSeq(result.Path); ok {
		o.update(func(s *RuntimeState) { s.LastCaptureSeq = seq })
	}
	if result.Simulated {
		o.update(func(s *RuntimeState) { s.SimulatedTotal++ })
	}

	o.rotateArchives(filepath.Dir(result.Path))

	if result.Bytes < o.cfg.Capture.MinBytesForConvert {
		// Too small to hold a handshake; not worth a rename or a convert.
		o.update(func(s *RuntimeState) {
			s.RenameSkippedTotal++
			s.ConvertSkippedTotal++
		})
		o.logger.Debug("capture below convert threshold",
			logging.Int64("bytes", result.Bytes),
			logging.String("path", result.Path),
		)
		return
	}

	o.update(func(s *RuntimeState) { s.HandshakesTotal++ })

	catalogID := o.recordCapture(ctx, result)
	finalPath := o.renameCapture(ctx, result.Path, catalogID)
	o.convertCapture(ctx, finalPath, result.Simulated, catalogID)
}

func (o *Orchestrator) rotateArchives(dir string) {
	files := capture.ListCaptures(dir)
	removed := capture.Rotate(files, o.cfg.Rotation.MaxArchives)
	if removed > 0 {
		o.update(func(s *RuntimeState) { s.RotationsTotal += int64(removed) })
		o.logger.Info("rotated capture archives",
			logging.Int("removed", removed),
			logging.String(logging.FieldEventType, "archives_rotated"),
		)
	}
}

// renameCapture applies SSID-based naming when an extractor is available.
// Returns the file's final path.
func (o *Orchestrator) renameCapture(ctx context.Context, path string, catalogID int64) string {
	naming := o.cfg.Capture.Naming
	if !naming.BySSID || o.deps.Extract == nil {
		o.update(func(s *RuntimeState) { s.RenameSkippedTotal++ })
		return path
	}

	info, err := o.deps.Extract(ctx, path)
	if err != nil || strings.TrimSpace(info.SSID) == "" {
		o.update(func(s *RuntimeState) { s.RenameSkippedTotal++ })
		if err != nil {
			o.logger.Debug("network identity extraction failed", logging.Error(err))
		}
		return path
	}

	name := capture.SafeFilename(info, capture.NamingOptions{
		Template:     naming.Template,
		MaxNameLen:   naming.MaxNameLen,
		AllowUnicode: naming.AllowUnicode,
		Whitespace:   naming.Whitespace,
	})
	dest := filepath.Join(filepath.Dir(path), name+".pcapng")
	final, err := capture.RenameWithCollisionGuard(path, dest)
	if err != nil {
		o.degradeOrEscalate(err, "capture rename failed",
			logging.String("path", path),
			logging.String(logging.FieldEventType, "rename_failed"),
		)
		o.update(func(s *RuntimeState) { s.RenameSkippedTotal++ })
		return path
	}

	o.update(func(s *RuntimeState) {
		s.RenameTotal++
		s.LastSSID = info.SSID
	})
	if o.deps.Catalog != nil && catalogID > 0 {
		if err := o.deps.Catalog.UpdatePath(ctx, catalogID, final); err != nil {
			o.logger.Warn("catalog path update failed", logging.Error(err))
		}
	}
	return final
}

func (o *Orchestrator) convertCapture(ctx context.Context, path string, simulated bool, catalogID int64) {
	if simulated {
		// Placeholder files carry no frames worth converting.
		o.update(func(s *RuntimeState) { s.ConvertSkippedTotal++ })
		return
	}
	tool := o.cfg.Capture.Tools.HcxpcapngtoolPath
	if tool == "" {
		o.update(func(s *RuntimeState) { s.ConvertSkippedTotal++ })
		return
	}

	dest := strings.TrimSuffix(path, filepath.Ext(path)) + ".22000"
	if err := capture.Convert(ctx, tool, path, dest); err != nil {
		o.update(func(s *RuntimeState) { s.ConvertFailedTotal++ })
		o.degradeOrEscalate(err, "capture conversion failed",
			logging.String("path", path),
			logging.String(logging.FieldEventType, "convert_failed"),
		)
		return
	}

	o.update(func(s *RuntimeState) { s.ConvertTotal++ })
	if o.deps.Catalog != nil && catalogID > 0 {
		if err := o.deps.Catalog.MarkConverted(ctx, catalogID); err != nil {
			o.logger.Warn("catalog convert update failed", logging.Error(err))
		}
	}
}

func (o *Orchestrator) recordCapture(ctx context.Context, result capture.PassResult) int64 {
	if o.deps.Catalog == nil {
		return 0
	}
	snapshot := o.Snapshot()
	id, err := o.deps.Catalog.RecordCapture(ctx, catalog.Capture{
		Path:      result.Path,
		Channel:   snapshot.CurrentChannel,
		Bytes:     result.Bytes,
		Simulated: result.Simulated,
	})
	if err != nil {
		o.logger.Warn("catalog insert failed", logging.Error(err))
		return 0
	}
	return id
}

func (o *Orchestrator) superviseChildren() {
	if !o.cfg.Supervisor.Enabled || o.deps.Supervisor == nil {
		return
	}
	for _, child := range o.deps.Children {
		o.deps.Supervisor.Poll(child)
	}
}

func (o *Orchestrator) enforceQuota() {
	if o.deps.Enforcer == nil {
		return
	}
	stats := o.deps.Enforcer.EnforceQuota(storage.Params{
		Root:          o.cfg.Paths.BaseDir,
		MaxDays:       o.cfg.Storage.MaxDays,
		MaxBytes:      o.cfg.Storage.MaxBytes,
		LowSpaceBytes: o.cfg.Storage.LowSpaceBytes,
		Enabled:       o.cfg.Storage.Enabled,
	})
	o.update(func(s *RuntimeState) {
		s.EvidenceBytes = stats.TotalBytes
		s.FreeBytes = stats.FreeBytes
		s.LowSpace = stats.LowSpace
		s.QuotaEventsTotal += int64(stats.QuotaEvents)
		s.PrunedDaysTotal += int64(stats.PrunedDays)
		s.LowSpaceWarningsTotal += int64(stats.LowSpaceWarnings)
	})
	if stats.LowSpace {
		o.logger.Warn("storage free space below threshold",
			logging.Int64("free_bytes", stats.FreeBytes),
			logging.String(logging.FieldEventType, "low_space"),
			logging.String(logging.FieldErrorHint, "lower storage quotas or swap the storage card"),
		)
	}
}

func (o *Orchestrator) observeEnvironment() {
	celsius, ok := o.readTemperature()
	logs := dirBytes(o.cfg.Paths.LogDir)
	o.update(func(s *RuntimeState) {
		s.TemperatureC = celsius
		s.TemperatureOK = ok
		s.LogsBytesTotal = logs
	})
}

func (o *Orchestrator) publish() {
	snapshot := o.Snapshot()
	if err := writeStats(o.cfg.Paths.MetaDir, snapshot); err != nil {
		// Best effort: status artifacts never fail a tick.
		o.logger.Debug("stats artifact write failed", logging.Error(err))
	}
	o.logger.Info("tick complete",
		logging.Int64("tick", snapshot.Ticks),
		logging.Int64("handshakes", snapshot.HandshakesTotal),
		logging.Int("channel", snapshot.CurrentChannel),
		logging.Int64("evidence_bytes", snapshot.EvidenceBytes),
	)
}

// drain runs exactly once: pid marker removal, plugin shutdown, child
// termination, and a final stats artifact.
func (o *Orchestrator) drain() {
	if !o.drained.CompareAndSwap(false, true) {
		return
	}
	o.update(func(s *RuntimeState) { s.Phase = PhaseDraining })
	o.logger.Info("draining", logging.String(logging.FieldEventType, "drain_started"))

	if o.deps.PidPath != "" {
		if err := os.Remove(o.deps.PidPath); err != nil && !os.IsNotExist(err) {
			o.logger.Warn("pid marker removal failed", logging.Error(err))
		}
	}

	plugin.ShutdownAll(o.deps.Shutdowns, o.logger)

	if o.deps.Supervisor != nil {
		grace := time.Duration(o.cfg.Run.StopGraceSeconds) * time.Second
		o.deps.Supervisor.StopAll(grace)
	}

	o.update(func(s *RuntimeState) { s.Phase = PhaseStopped })
	if err := writeStats(o.cfg.Paths.MetaDir, o.Snapshot()); err != nil {
		o.logger.Debug("final stats artifact write failed", logging.Error(err))
	}
	o.logger.Info("stopped", logging.String(logging.FieldEventType, "run_stopped"))
}

// captureSeq parses the numeric index out of an indexed capture filename.
func captureSeq(path string) (int64, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "capture-") || !strings.HasSuffix(base, ".pcapng") {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(base, "capture-"), ".pcapng")
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func dirBytes(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
