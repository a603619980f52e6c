package capture

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"kestrel/internal/services"
)

// pollInterval bounds how long a stop or rotate request waits before the
// running pass notices it.
const pollInterval = 200 * time.Millisecond

// Runner drives a single capture pass of the external capture tool. In
// simulation mode no process is launched; a zero-filled placeholder file
// stands in for the capture.
type Runner struct {
	Tool          string
	Interface     string
	ExtraArgs     []string
	Grace         time.Duration
	Simulate      bool
	SimulateBytes int64
	SimulateDwell time.Duration

	sleep func(time.Duration)
}

// PassResult summarizes one completed capture pass.
type PassResult struct {
	Path        string
	Bytes       int64
	Simulated   bool
	Interrupted bool
}

// Run performs one capture pass writing to dest, ending when duration
// elapses, interrupt reports true, or the context is canceled. The tool
// receives SIGTERM first and SIGKILL after the grace window.
func (r *Runner) Run(ctx context.Context, dest string, duration time.Duration, interrupt func() bool) (PassResult, error) {
	if interrupt == nil {
		interrupt = func() bool { return false }
	}
	if r.Simulate {
		return r.simulate(ctx, dest, interrupt)
	}
	if strings.TrimSpace(r.Interface) == "" {
		return PassResult{}, services.Wrap(services.ErrConfiguration, "capture", "run", "no capture interface configured", nil)
	}

	args := []string{"-i", r.Interface, "-w", dest}
	args = append(args, r.ExtraArgs...)
	cmd := exec.Command(r.Tool, args...)
	if err := cmd.Start(); err != nil {
		return PassResult{}, services.Wrap(services.ErrExternalTool, "capture", "run", "start capture tool", err)
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	result := PassResult{Path: dest}
	deadline := time.Now().Add(duration)
poll:
	for {
		select {
		case <-done:
			break poll
		case <-ctx.Done():
			result.Interrupted = true
			break poll
		case <-time.After(pollInterval):
			if interrupt() {
				result.Interrupted = true
				break poll
			}
			if !time.Now().Before(deadline) {
				break poll
			}
		}
	}

	r.terminate(cmd, done)
	if info, err := os.Stat(dest); err == nil {
		result.Bytes = info.Size()
	}
	return result, nil
}

// terminate asks the tool to exit and escalates to SIGKILL after the
// grace window.
func (r *Runner) terminate(cmd *exec.Cmd, done <-chan struct{}) {
	select {
	case <-done:
		return
	default:
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	grace := r.Grace
	if grace <= 0 {
		grace = 3 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		<-done
	}
}

func (r *Runner) simulate(ctx context.Context, dest string, interrupt func() bool) (PassResult, error) {
	size := r.SimulateBytes
	if size < 0 {
		size = 0
	}
	if err := os.WriteFile(dest, make([]byte, size), 0o644); err != nil {
		return PassResult{}, services.Wrap(services.ErrStorage, "capture", "simulate", "write placeholder capture", err)
	}
	result := PassResult{Path: dest, Bytes: size, Simulated: true}

	sleep := r.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	remaining := r.SimulateDwell
	for remaining > 0 {
		if interrupt() || ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		step := pollInterval
		if remaining < step {
			step = remaining
		}
		sleep(step)
		remaining -= step
	}
	return result, nil
}
