package supervisor

import (
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"kestrel/internal/logging"
)

// ChildSpec describes one supervised process. Specs are immutable; build
// them once from configuration.
type ChildSpec struct {
	Name    string
	Command []string
	Env     map[string]string
	Enabled bool
}

// childState tracks one child's runtime. Owned exclusively by the
// Supervisor; callers only see the metric snapshots.
type childState struct {
	cmd       *exec.Cmd
	done      chan struct{}
	exited    bool
	failures  int
	backoff   float64
	lastStart time.Time
	restarts  int
	gaveUp    bool
}

// Options configures restart policy.
type Options struct {
	BackoffInitialSecs float64
	BackoffCapSecs     float64
	JitterFrac         float64
	FaultInjection     bool
	// GiveUpAfter stops restarting a child once its failure count reaches
	// this value. Zero means never give up.
	GiveUpAfter int
	// OnGiveUp, when set, is invoked once per abandoned child so the
	// orchestrator can apply its own demotion policy.
	OnGiveUp func(name string)
}

// Supervisor starts, monitors, and restarts child processes. The service
// loop drives Start/Poll while the metrics listener reads the counter
// snapshots from its own goroutine, so all child state sits behind mu.
// Backoff sleeps and stop waits happen outside the lock.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]*childState

	restartsTotal  map[string]int
	failuresTotal  map[string]int
	backoffSeconds map[string]float64

	// sleep and jitterRand are injectable for deterministic tests.
	sleep      func(time.Duration)
	jitterRand *rand.Rand
}

// New constructs a Supervisor with the given restart policy.
func New(opts Options, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		opts:           opts,
		logger:         logging.NewComponentLogger(logger, "supervisor"),
		states:         make(map[string]*childState),
		restartsTotal:  make(map[string]int),
		failuresTotal:  make(map[string]int),
		backoffSeconds: make(map[string]float64),
		sleep:          time.Sleep,
		jitterRand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start launches the child if it is not already alive. Idempotent: a call
// against a live child is a no-op. A successful launch resets backoff to
// the initial value and increments the restart counter.
func (s *Supervisor) Start(spec ChildSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked(spec)
}

func (s *Supervisor) startLocked(spec ChildSpec) {
	state := s.stateLocked(spec.Name)
	if s.aliveLocked(state) {
		return
	}
	if len(spec.Command) == 0 {
		s.failLocked(spec.Name, state)
		return
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for key, value := range spec.Env {
			cmd.Env = append(cmd.Env, key+"="+value)
		}
	}
	if err := cmd.Start(); err != nil {
		s.failLocked(spec.Name, state)
		s.logger.Warn("child start failed",
			logging.String(logging.FieldChild, spec.Name),
			logging.Error(err),
			logging.String(logging.FieldEventType, "child_start_failed"),
			logging.String(logging.FieldErrorHint, "check the child command path and permissions"),
		)
		return
	}

	done := make(chan struct{})
	state.cmd = cmd
	state.done = done
	state.exited = false
	state.lastStart = time.Now()
	state.backoff = s.opts.BackoffInitialSecs
	state.restarts++
	s.restartsTotal[spec.Name]++
	s.backoffSeconds[spec.Name] = state.backoff

	// Reap in the background so liveness checks can poll without blocking.
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	s.logger.Info("child started",
		logging.String(logging.FieldChild, spec.Name),
		logging.Int("restarts", state.restarts),
		logging.String(logging.FieldEventType, "child_started"),
	)
}

// Poll checks one child's liveness and restarts it after a backoff when it
// has crashed. Disabled specs are ignored. Faults never surface as errors;
// they only move counters.
func (s *Supervisor) Poll(spec ChildSpec) {
	if !spec.Enabled {
		return
	}

	s.mu.Lock()
	state := s.stateLocked(spec.Name)
	if state.gaveUp {
		s.mu.Unlock()
		return
	}

	crashed := s.opts.FaultInjection || state.cmd == nil || !s.aliveLocked(state)
	if !crashed {
		s.mu.Unlock()
		return
	}

	s.failLocked(spec.Name, state)

	if s.opts.GiveUpAfter > 0 && state.failures >= s.opts.GiveUpAfter {
		state.gaveUp = true
		failures := state.failures
		s.mu.Unlock()
		s.logger.Warn("child abandoned after repeated failures",
			logging.String(logging.FieldChild, spec.Name),
			logging.Int("failures", failures),
			logging.String(logging.FieldEventType, "child_abandoned"),
			logging.String(logging.FieldErrorHint, "inspect the child command; restart the daemon to retry"),
		)
		if s.opts.OnGiveUp != nil {
			s.opts.OnGiveUp(spec.Name)
		}
		return
	}

	delay := s.jittered(state.backoff)
	s.mu.Unlock()

	s.sleep(delay)
	s.Start(spec)
}

// StopAll requests graceful termination of every live child, waiting up to
// grace before force-killing. All failures are swallowed.
func (s *Supervisor) StopAll(grace time.Duration) {
	type target struct {
		name string
		proc *os.Process
		done chan struct{}
	}

	s.mu.Lock()
	var targets []target
	for name, state := range s.states {
		if !s.aliveLocked(state) || state.cmd.Process == nil {
			continue
		}
		targets = append(targets, target{name: name, proc: state.cmd.Process, done: state.done})
	}
	s.mu.Unlock()

	for _, t := range targets {
		_ = t.proc.Signal(syscall.SIGTERM)
		select {
		case <-t.done:
		case <-time.After(grace):
			_ = t.proc.Kill()
		}
		s.logger.Info("child stopped",
			logging.String(logging.FieldChild, t.name),
			logging.String(logging.FieldEventType, "child_stopped"),
		)
	}
}

// Running reports whether the named child is currently alive.
func (s *Supervisor) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[name]
	if !ok {
		return false
	}
	return s.aliveLocked(state)
}

// RestartsTotal returns a copy of the per-child restart counters.
func (s *Supervisor) RestartsTotal() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyIntMap(s.restartsTotal)
}

// FailuresTotal returns a copy of the per-child failure counters.
func (s *Supervisor) FailuresTotal() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyIntMap(s.failuresTotal)
}

// BackoffSeconds returns a copy of the per-child current backoff gauges.
func (s *Supervisor) BackoffSeconds() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.backoffSeconds))
	for k, v := range s.backoffSeconds {
		out[k] = v
	}
	return out
}

func (s *Supervisor) stateLocked(name string) *childState {
	state, ok := s.states[name]
	if !ok {
		state = &childState{}
		s.states[name] = state
	}
	return state
}

func (s *Supervisor) aliveLocked(state *childState) bool {
	if state == nil || state.cmd == nil || state.done == nil {
		return false
	}
	select {
	case <-state.done:
		state.exited = true
		return false
	default:
		return true
	}
}

// failLocked records one crash: failure counters move and backoff doubles
// up to the cap (or starts at the initial value).
func (s *Supervisor) failLocked(name string, state *childState) {
	state.failures++
	s.failuresTotal[name]++
	if state.backoff == 0 {
		state.backoff = s.opts.BackoffInitialSecs
	} else {
		state.backoff = min(state.backoff*2, s.opts.BackoffCapSecs)
	}
	s.backoffSeconds[name] = state.backoff
}

// jittered perturbs base by ±JitterFrac, floor-clamped to zero. Callers
// hold mu; jitterRand is not safe for concurrent use.
func (s *Supervisor) jittered(baseSecs float64) time.Duration {
	delta := baseSecs * s.opts.JitterFrac
	perturbed := baseSecs + (s.jitterRand.Float64()*2-1)*delta
	if perturbed < 0 {
		perturbed = 0
	}
	return time.Duration(perturbed * float64(time.Second))
}

func copyIntMap(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
