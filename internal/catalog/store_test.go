package catalog

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndAggregate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.RecordCapture(ctx, Capture{
		Path: "/captures/2025-03-14/handshakes/capture-00000.pcapng",
		SSID: "HomeNet", BSSID: "aa:bb:cc:dd:ee:ff", Channel: 6, Bytes: 4096,
	})
	if err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}
	if _, err := store.RecordCapture(ctx, Capture{
		Path: "/captures/2025-03-14/handshakes/capture-00001.pcapng",
		Bytes: 1024, Simulated: true,
	}); err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}
	if err := store.MarkConverted(ctx, id); err != nil {
		t.Fatalf("MarkConverted: %v", err)
	}

	counts, err := store.AggregateCounts(ctx)
	if err != nil {
		t.Fatalf("AggregateCounts: %v", err)
	}
	if counts.Captures != 2 || counts.Converted != 1 || counts.Simulated != 1 || counts.Bytes != 5120 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestUpdatePathAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.RecordCapture(ctx, Capture{Path: "/old/capture-00000.pcapng", Channel: 11})
	if err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}
	if err := store.UpdatePath(ctx, id, "/old/HomeNet.pcapng"); err != nil {
		t.Fatalf("UpdatePath: %v", err)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent rows = %d, want 1", len(recent))
	}
	if recent[0].Path != "/old/HomeNet.pcapng" || recent[0].Channel != 11 {
		t.Fatalf("recent row = %+v", recent[0])
	}
	if recent[0].CreatedAt.IsZero() {
		t.Fatal("created_at should round-trip")
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.RecordCapture(context.Background(), Capture{Path: "/p"}); err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	counts, err := reopened.AggregateCounts(context.Background())
	if err != nil {
		t.Fatalf("AggregateCounts: %v", err)
	}
	if counts.Captures != 1 {
		t.Fatalf("captures after reopen = %d, want 1", counts.Captures)
	}
}
