package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"kestrel/internal/logging"
)

type stubPlugin struct {
	initErr     error
	initialized bool
	shutdownErr error
	shutdowns   *int
}

func (s *stubPlugin) Init(map[string]any) error {
	s.initialized = s.initErr == nil
	return s.initErr
}

func (s *stubPlugin) Shutdown() error {
	if s.shutdowns != nil {
		*s.shutdowns++
	}
	return s.shutdownErr
}

func TestLoadEnabledIsolatesFailures(t *testing.T) {
	good := &stubPlugin{}
	bad := &stubPlugin{initErr: errors.New("boom")}
	Register("test-good", func() Plugin { return good })
	Register("test-bad", func() Plugin { return bad })
	t.Cleanup(func() {
		delete(registry, "test-good")
		delete(registry, "test-bad")
	})

	loaded, shutdowns := LoadEnabled([]string{"test-bad", "no-such-plugin", "test-good"}, nil, logging.NewNop())
	if len(loaded) != 1 || loaded[0] != "test-good" {
		t.Fatalf("loaded = %v, want [test-good]", loaded)
	}
	if !good.initialized {
		t.Fatal("surviving plugin should be initialized")
	}
	if len(shutdowns) != 1 {
		t.Fatalf("shutdowns = %d, want 1", len(shutdowns))
	}
}

func TestShutdownAllIsolatesFailures(t *testing.T) {
	count := 0
	failing := &stubPlugin{shutdowns: &count, shutdownErr: errors.New("boom")}
	fine := &stubPlugin{shutdowns: &count}
	ShutdownAll([]Shutdowner{failing, fine}, logging.NewNop())
	if count != 2 {
		t.Fatalf("shutdown calls = %d, want 2", count)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("test-dup", func() Plugin { return &stubPlugin{} })
	t.Cleanup(func() { delete(registry, "test-dup") })
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate Register should panic")
		}
	}()
	Register("test-dup", func() Plugin { return &stubPlugin{} })
}

func TestBeaconLifecycle(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "run", "beacon")
	loaded, shutdowns := LoadEnabled([]string{"beacon"},
		map[string]map[string]any{"beacon": {"path": marker}}, logging.NewNop())
	if len(loaded) != 1 {
		t.Fatalf("loaded = %v, want [beacon]", loaded)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("beacon marker missing: %v", err)
	}

	ShutdownAll(shutdowns, logging.NewNop())
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("beacon marker should be removed on shutdown")
	}
}

func TestBeaconRequiresPath(t *testing.T) {
	loaded, _ := LoadEnabled([]string{"beacon"}, nil, logging.NewNop())
	if len(loaded) != 0 {
		t.Fatalf("loaded = %v, want empty", loaded)
	}
}

func TestAutobackupCopiesArtifacts(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "backup")
	if err := os.WriteFile(filepath.Join(src, "net.22000"), []byte("hash"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "raw.pcapng"), []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	options := map[string]map[string]any{
		"autobackup": {"source_dir": src, "dest_dir": dest},
	}
	loaded, shutdowns := LoadEnabled([]string{"autobackup"}, options, logging.NewNop())
	if len(loaded) != 1 {
		t.Fatalf("loaded = %v, want [autobackup]", loaded)
	}
	ShutdownAll(shutdowns, logging.NewNop())

	if _, err := os.Stat(filepath.Join(dest, "net.22000")); err != nil {
		t.Fatalf("artifact not backed up: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "raw.pcapng")); !os.IsNotExist(err) {
		t.Fatal("raw capture should not be backed up")
	}
}
