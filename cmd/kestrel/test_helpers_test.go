package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"kestrel/internal/ipc"
	"kestrel/internal/logging"
	"kestrel/internal/orchestrator"
)

type fakeController struct {
	state   orchestrator.RuntimeState
	rotates atomic.Int64
	stops   atomic.Int64
}

func (f *fakeController) Snapshot() orchestrator.RuntimeState { return f.state }
func (f *fakeController) RequestRotate()                      { f.rotates.Add(1) }
func (f *fakeController) RequestStop()                        { f.stops.Add(1) }

type cliTestEnv struct {
	controller *fakeController
	server     *ipc.Server
	socketPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	ctrl := &fakeController{
		state: orchestrator.RuntimeState{
			Phase:           orchestrator.PhaseRunning,
			Mode:            "passive",
			RunID:           "cli-test-run",
			Ticks:           3,
			CurrentChannel:  6,
			AdapterPresent:  true,
			HandshakesTotal: 2,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(t.TempDir(), "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, ctrl, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &cliTestEnv{
		controller: ctrl,
		server:     srv,
		socketPath: socketPath,
	}
}

func runCLI(t *testing.T, args []string, socket string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
