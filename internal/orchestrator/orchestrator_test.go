package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kestrel/internal/capture"
	"kestrel/internal/catalog"
	"kestrel/internal/config"
	"kestrel/internal/iface"
	"kestrel/internal/logging"
	"kestrel/internal/storage"
	"kestrel/internal/supervisor"
	"kestrel/internal/testsupport"
)

func newTestOrchestrator(t *testing.T, cfg *config.Config, mutate func(*Deps)) *Orchestrator {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	deps := Deps{
		Config: cfg,
		Logger: logging.NewNop(),
		Runner: &capture.Runner{
			Simulate:      true,
			SimulateBytes: cfg.Capture.SimulateBytesPerCap,
		},
		Enforcer: &storage.Enforcer{
			FreeSpace: func(string) (int64, error) { return 50 << 30, nil },
		},
		Supervisor: supervisor.New(supervisor.Options{
			BackoffInitialSecs: 0.001,
			BackoffCapSecs:     0.001,
		}, logging.NewNop()),
		RunID: "test-run",
	}
	if mutate != nil {
		mutate(&deps)
	}
	o := New(deps)
	o.wait = func(context.Context, time.Duration) {}
	o.readTemperature = func() (float64, bool) { return 47.5, true }
	return o
}

func TestSingleTickSimulatedPass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capture.Naming.BySSID = true
	o := newTestOrchestrator(t, cfg, func(d *Deps) {
		d.Extract = SimulatedExtractor()
	})

	o.tick(context.Background())

	s := o.Snapshot()
	if s.Ticks != 1 {
		t.Fatalf("ticks = %d, want 1", s.Ticks)
	}
	if s.HandshakesTotal != 1 {
		t.Fatalf("handshakes = %d, want 1", s.HandshakesTotal)
	}
	if s.SimulatedTotal != 1 {
		t.Fatalf("simulated = %d, want 1", s.SimulatedTotal)
	}
	if s.ConvertSkippedTotal != 1 {
		t.Fatalf("convert skipped = %d, want 1 (simulated captures are not converted)", s.ConvertSkippedTotal)
	}
	if s.RenameTotal != 1 || s.LastSSID != "SimNet-1" {
		t.Fatalf("rename = %d last ssid = %q", s.RenameTotal, s.LastSSID)
	}
	if s.CurrentChannel != cfg.Interface.Channels[0] {
		t.Fatalf("channel = %d, want %d", s.CurrentChannel, cfg.Interface.Channels[0])
	}
	if !s.TemperatureOK || s.TemperatureC != 47.5 {
		t.Fatalf("temperature = %v ok=%v", s.TemperatureC, s.TemperatureOK)
	}

	day := capture.DayDir(cfg.Paths.BaseDir, time.Now())
	renamed := filepath.Join(day, cfg.Capture.OutDirName, "SimNet-1-02-00-00-00-00-01-ch1.pcapng")
	if _, err := os.Stat(renamed); err != nil {
		t.Fatalf("renamed capture missing: %v", err)
	}
}

func TestTinyCaptureSkipsRenameAndConvert(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capture.Naming.BySSID = true
	cfg.Capture.SimulateBytesPerCap = 16
	o := newTestOrchestrator(t, cfg, func(d *Deps) {
		d.Runner = &capture.Runner{Simulate: true, SimulateBytes: 16}
		d.Extract = SimulatedExtractor()
	})

	o.tick(context.Background())

	s := o.Snapshot()
	if s.HandshakesTotal != 0 {
		t.Fatalf("handshakes = %d, want 0 for tiny capture", s.HandshakesTotal)
	}
	if s.RenameSkippedTotal != 1 || s.ConvertSkippedTotal != 1 {
		t.Fatalf("skip counters = rename %d convert %d, want 1/1", s.RenameSkippedTotal, s.ConvertSkippedTotal)
	}
	if s.RenameTotal != 0 {
		t.Fatalf("rename = %d, want 0", s.RenameTotal)
	}
}

func TestRealToolPassConvertsAndCatalogs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capture.Naming.BySSID = true
	dir := t.TempDir()

	dumptool := filepath.Join(dir, "dumptool")
	if err := os.WriteFile(dumptool, []byte("#!/bin/sh\nhead -c 2048 /dev/zero > \"$4\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	convtool := filepath.Join(dir, "convtool")
	if err := os.WriteFile(convtool, []byte("#!/bin/sh\nprintf hash > \"$2\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.Capture.Tools.HcxpcapngtoolPath = convtool

	store, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	o := newTestOrchestrator(t, cfg, func(d *Deps) {
		d.Runner = &capture.Runner{Tool: dumptool, Interface: "wlan0", Grace: time.Second}
		d.Extract = func(context.Context, string) (capture.NetworkInfo, error) {
			return capture.NetworkInfo{SSID: "FieldNet", BSSID: "aa:bb:cc:dd:ee:ff", Channel: 6}, nil
		}
		d.Catalog = store
	})
	cfg.Capture.DurationSeconds = 1

	o.tick(context.Background())

	s := o.Snapshot()
	if s.HandshakesTotal != 1 || s.ConvertTotal != 1 || s.ConvertFailedTotal != 0 {
		t.Fatalf("counters = %+v", s)
	}
	if s.RenameTotal != 1 || s.LastSSID != "FieldNet" {
		t.Fatalf("rename = %d last ssid = %q", s.RenameTotal, s.LastSSID)
	}

	day := capture.DayDir(cfg.Paths.BaseDir, time.Now())
	converted := filepath.Join(day, cfg.Capture.OutDirName, "FieldNet-aa-bb-cc-dd-ee-ff-ch6.22000")
	if _, err := os.Stat(converted); err != nil {
		t.Fatalf("converted artifact missing: %v", err)
	}

	counts, err := store.AggregateCounts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts.Captures != 1 || counts.Converted != 1 {
		t.Fatalf("catalog counts = %+v", counts)
	}
	recent, err := store.Recent(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(recent[0].Path, "FieldNet-aa-bb-cc-dd-ee-ff-ch6.pcapng") {
		t.Fatalf("catalog path not updated after rename: %q", recent[0].Path)
	}
}

func TestStopObservedAtEndOfTick(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	pid := filepath.Join(cfg.Paths.MetaDir, "kestreld.pid")
	o := newTestOrchestrator(t, cfg, func(d *Deps) {
		d.PidPath = pid
	})
	if err := os.WriteFile(pid, []byte("12345\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	o.RequestStop()
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := o.Snapshot()
	if s.Phase != PhaseStopped {
		t.Fatalf("phase = %q, want stopped", s.Phase)
	}
	if s.Ticks != 1 {
		t.Fatalf("ticks = %d, want exactly 1 (stop observed at end of tick)", s.Ticks)
	}
	if _, err := os.Stat(pid); !os.IsNotExist(err) {
		t.Fatal("pid marker should be removed during drain")
	}
}

func TestRunDeadlineStopsLoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Run.RuntimeMinutes = 1
	o := newTestOrchestrator(t, cfg, nil)

	start := time.Now()
	first := true
	o.now = func() time.Time {
		if first {
			first = false
			return start
		}
		return start.Add(10 * time.Minute)
	}

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := o.Snapshot()
	if s.Phase != PhaseStopped {
		t.Fatalf("phase = %q, want stopped", s.Phase)
	}
	if s.Ticks != 1 {
		t.Fatalf("ticks = %d, want 1 before deadline break", s.Ticks)
	}
}

func TestRotateFlagConsumedPerTick(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newTestOrchestrator(t, cfg, nil)

	o.RequestRotate()
	if !o.interrupted() {
		t.Fatal("rotate request should interrupt the in-flight pass")
	}
	o.tick(context.Background())
	if o.interrupted() {
		t.Fatal("rotate flag should be consumed at end of tick")
	}
}

func TestStatsArtifactWritten(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newTestOrchestrator(t, cfg, nil)

	o.tick(context.Background())

	raw, err := os.ReadFile(filepath.Join(cfg.Paths.MetaDir, StatsFileName))
	if err != nil {
		t.Fatalf("stats artifact missing: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("stats artifact not valid JSON: %v", err)
	}
	if doc["ticks"] != float64(1) {
		t.Fatalf("stats ticks = %v, want 1", doc["ticks"])
	}
	if doc["run_id"] != "test-run" {
		t.Fatalf("stats run_id = %v", doc["run_id"])
	}
}

func TestQuotaCountersAccumulate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.MaxDays = 1
	o := newTestOrchestrator(t, cfg, nil)

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.BaseDir, "2025-01-01", "old.pcapng"), 128)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.BaseDir, "2025-01-02", "newer.pcapng"), 128)

	o.tick(context.Background())

	s := o.Snapshot()
	// Today's partition from the simulated pass plus the two seeded days,
	// keeping only the newest one prunes two.
	if s.PrunedDaysTotal != 2 {
		t.Fatalf("pruned days = %d, want 2", s.PrunedDaysTotal)
	}
	if s.QuotaEventsTotal != 2 {
		t.Fatalf("quota events = %d, want 2", s.QuotaEventsTotal)
	}
	if s.FreeBytes != 50<<30 {
		t.Fatalf("free bytes = %d", s.FreeBytes)
	}
}

func TestConfigurationErrorStopsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newTestOrchestrator(t, cfg, func(d *Deps) {
		// A live pass with no interface is a misconfiguration that no
		// retry can fix.
		d.Runner = &capture.Runner{Tool: "hcxdumptool", Interface: ""}
	})

	o.tick(context.Background())

	if !o.stopFlag.Load() {
		t.Fatal("configuration error should stop the run at the tick boundary")
	}
	if got := o.Snapshot().HandshakesTotal; got != 0 {
		t.Fatalf("handshakes = %d, want 0", got)
	}
}

func TestExternalToolFailureDegrades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newTestOrchestrator(t, cfg, func(d *Deps) {
		d.Runner = &capture.Runner{Tool: filepath.Join(t.TempDir(), "absent"), Interface: "wlan0"}
	})

	o.tick(context.Background())

	if o.stopFlag.Load() {
		t.Fatal("tool failure must degrade, not stop the run")
	}
	if got := o.Snapshot().Ticks; got != 1 {
		t.Fatalf("ticks = %d, want 1", got)
	}
}

func TestChannelHopDwellPacesRadio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Interface.DwellMillis = 250
	o := newTestOrchestrator(t, cfg, func(d *Deps) {
		d.Radio = &iface.Setup{
			Interface: "wlan0",
			Run: func(context.Context, string, ...string) ([]byte, error) {
				return nil, nil
			},
		}
	})
	var waits []time.Duration
	o.wait = func(_ context.Context, d time.Duration) { waits = append(waits, d) }

	o.hopChannel(context.Background())

	if len(waits) != 1 || waits[0] != 250*time.Millisecond {
		t.Fatalf("waits = %v, want one 250ms settle after tuning", waits)
	}
	if got := o.Snapshot().CurrentChannel; got != cfg.Interface.Channels[0] {
		t.Fatalf("channel = %d, want %d", got, cfg.Interface.Channels[0])
	}
}

func TestAdapterPresenceGauge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	o := newTestOrchestrator(t, cfg, nil)

	if !o.Snapshot().AdapterPresent {
		t.Fatal("adapter should start present")
	}
	o.SetAdapterPresent(false)
	if o.Snapshot().AdapterPresent {
		t.Fatal("gauge should track removal")
	}
	o.SetAdapterPresent(true)
	if !o.Snapshot().AdapterPresent {
		t.Fatal("gauge should track return")
	}
}
