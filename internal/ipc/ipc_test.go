package ipc

import (
	"context"
	"path/filepath"
	"testing"

	"kestrel/internal/logging"
	"kestrel/internal/orchestrator"
)

type fakeController struct {
	state   orchestrator.RuntimeState
	rotates int
	stops   int
}

func (f *fakeController) Snapshot() orchestrator.RuntimeState { return f.state }
func (f *fakeController) RequestRotate()                      { f.rotates++ }
func (f *fakeController) RequestStop()                        { f.stops++ }

func startTestServer(t *testing.T, ctrl Controller) string {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "kestreld.sock")
	srv, err := NewServer(context.Background(), socket, ctrl, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return socket
}

func TestStatusRoundTrip(t *testing.T) {
	ctrl := &fakeController{state: orchestrator.RuntimeState{
		Phase:           orchestrator.PhaseRunning,
		Mode:            "passive",
		RunID:           "run-1",
		HandshakesTotal: 7,
		CurrentChannel:  11,
	}}
	socket := startTestServer(t, ctrl)

	client, err := Dial(socket)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.State.Phase != orchestrator.PhaseRunning {
		t.Fatalf("phase = %q", resp.State.Phase)
	}
	if resp.State.HandshakesTotal != 7 || resp.State.CurrentChannel != 11 {
		t.Fatalf("state = %+v", resp.State)
	}
}

func TestRotateAndStop(t *testing.T) {
	ctrl := &fakeController{}
	socket := startTestServer(t, ctrl)

	client, err := Dial(socket)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	rotate, err := client.RotateNow()
	if err != nil {
		t.Fatalf("RotateNow: %v", err)
	}
	if !rotate.Accepted {
		t.Fatal("rotate should be accepted")
	}
	stop, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !stop.Stopping {
		t.Fatal("stop should be acknowledged")
	}
	if ctrl.rotates != 1 || ctrl.stops != 1 {
		t.Fatalf("controller calls = rotate %d stop %d", ctrl.rotates, ctrl.stops)
	}
}

func TestServerReplacesStaleSocket(t *testing.T) {
	ctrl := &fakeController{}
	socket := filepath.Join(t.TempDir(), "kestreld.sock")

	first, err := NewServer(context.Background(), socket, ctrl, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	first.Close()

	second, err := NewServer(context.Background(), socket, ctrl, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer over stale socket: %v", err)
	}
	second.Close()
}
