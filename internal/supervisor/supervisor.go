// Package supervisor runs a fixed pool of thread-per-worker processes
// and keeps individual workers alive across crashes. Worker count is
// fixed by configuration, never auto-scaled.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/deploy"
	"github.com/quayside/quayside/internal/metrics"
	"github.com/quayside/quayside/internal/recipe"
	"github.com/quayside/quayside/internal/runtimecfg"
)

// ErrStartupFatal marks unrecoverable startup conditions: missing entry
// point, port already bound, insufficient permissions. These abort the
// supervisor entirely instead of retrying forever.
var ErrStartupFatal = errors.New("supervisor startup fatal")

// threadsPerCore bounds oversubscription for blocking-I/O workloads.
// Browser automation spends its time waiting, so the cap is generous;
// it exists to catch thrashing configurations, not to size the pool.
const threadsPerCore = 128

// Config controls the worker pool.
type Config struct {
	// Workers is the fixed worker-process count. Default 2.
	Workers int
	// ThreadsPerWorker is each worker's internal thread pool. Default 8.
	ThreadsPerWorker int
	// Capacity caps Workers x ThreadsPerWorker. Zero derives it from
	// the host CPU count.
	Capacity int
	// RestartBackoff is the pause before relaunching a crashed worker.
	RestartBackoff time.Duration
	// StartupWindow classifies a first-launch exit inside it as fatal
	// (a worker that cannot bind its port dies immediately).
	StartupWindow time.Duration
	// DrainTimeout bounds graceful shutdown before the worker is killed.
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.ThreadsPerWorker <= 0 {
		c.ThreadsPerWorker = 8
	}
	if c.Capacity <= 0 {
		c.Capacity = runtime.NumCPU() * threadsPerCore
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = time.Second
	}
	if c.StartupWindow <= 0 {
		c.StartupWindow = 3 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
	return c
}

type worker struct {
	id       string
	state    State
	restarts int
}

// Supervisor owns the worker pool.
type Supervisor struct {
	spec     WorkerSpec
	cfg      Config
	launcher Launcher
	clock    deploy.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	workers []*worker
}

// New validates the pool configuration and creates a Supervisor.
func New(spec WorkerSpec, cfg Config, launcher Launcher, clock deploy.Clock, logger *zap.Logger) (*Supervisor, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("%w: no entry point command", ErrStartupFatal)
	}
	if launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if demand := cfg.Workers * cfg.ThreadsPerWorker; demand > cfg.Capacity {
		return nil, fmt.Errorf("worker pool demands %d threads, host capacity is %d", demand, cfg.Capacity)
	}

	workers := make([]*worker, cfg.Workers)
	for i := range workers {
		workers[i] = &worker{id: fmt.Sprintf("worker-%d", i), state: StateStarting}
	}
	return &Supervisor{
		spec:     spec,
		cfg:      cfg,
		launcher: launcher,
		clock:    clock,
		logger:   logger,
		workers:  workers,
	}, nil
}

// DefaultCommand builds the thread-per-worker entry command for a single
// supervised worker, bound to the resolved address. Every worker binds
// the same port, so each master needs its own SO_REUSEPORT listener
// (--reuse-port); without it only the first bind succeeds and the rest
// crash-loop on EADDRINUSE. The kernel arbitrates the shared accept
// queue across listeners.
func DefaultCommand(res runtimecfg.Resolution, threads int) []string {
	if threads <= 0 {
		threads = 8
	}
	return []string{
		"gunicorn",
		"--bind", res.BindAddr,
		"--reuse-port",
		"--workers", "1",
		"--worker-class", "gthread",
		"--threads", fmt.Sprintf("%d", threads),
		recipe.EntryPoint,
	}
}

// Run supervises the pool until the context finishes or a startup-fatal
// condition aborts it. The returned error is nil on graceful shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fatalCh := make(chan error, len(s.workers))
	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			s.supervise(runCtx, w, fatalCh)
		}(w)
	}

	var fatal error
	select {
	case <-ctx.Done():
	case fatal = <-fatalCh:
		cancel()
	}
	wg.Wait()
	if fatal != nil {
		return fatal
	}
	return nil
}

// supervise runs one worker's lifecycle loop: starting -> serving ->
// (draining | crashed) -> terminated.
func (s *Supervisor) supervise(ctx context.Context, w *worker, fatalCh chan<- error) {
	firstAttempt := true
	for {
		if ctx.Err() != nil {
			s.setState(w, StateTerminated)
			return
		}
		s.setState(w, StateStarting)

		proc, err := s.launcher.Launch(ctx, s.spec)
		if err != nil {
			if firstAttempt || launchErrIsFatal(err) {
				s.setState(w, StateTerminated)
				fatalCh <- fmt.Errorf("%w: %s: %v", ErrStartupFatal, w.id, err)
				return
			}
			s.logger.Warn("worker relaunch failed", zap.String("worker", w.id), zap.Error(err))
			if !s.pause(ctx) {
				s.setState(w, StateTerminated)
				return
			}
			continue
		}

		startedAt := s.clock.Now()
		s.setState(w, StateServing)
		s.logger.Info("worker serving", zap.String("worker", w.id), zap.Int("pid", proc.PID()))

		waitErr := s.waitOrDrain(ctx, w, proc)
		if ctx.Err() != nil {
			s.setState(w, StateTerminated)
			return
		}

		s.setState(w, StateCrashed)
		if firstAttempt && s.clock.Now().Sub(startedAt) < s.cfg.StartupWindow {
			// Immediate first exit: port already bound, bad entry
			// point, or permissions. Not worth a retry loop.
			s.setState(w, StateTerminated)
			fatalCh <- fmt.Errorf("%w: %s exited during startup: %v", ErrStartupFatal, w.id, waitErr)
			return
		}
		firstAttempt = false

		restarts := s.recordRestart(w)
		s.logger.Error("worker crashed, restarting",
			zap.String("worker", w.id),
			zap.Int("restarts", restarts),
			zap.Error(waitErr),
		)
		if s.allDown() {
			s.logger.Error("all workers simultaneously unhealthy, restarting process group")
		}
		if !s.pause(ctx) {
			s.setState(w, StateTerminated)
			return
		}
	}
}

// waitOrDrain blocks until the process exits. If the context finishes
// first the worker is drained: SIGTERM, a bounded wait, then SIGKILL.
func (s *Supervisor) waitOrDrain(ctx context.Context, w *worker, proc Process) error {
	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	s.setState(w, StateDraining)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn("drain signal failed", zap.String("worker", w.id), zap.Error(err))
	}
	select {
	case <-done:
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn("drain timeout, killing worker", zap.String("worker", w.id))
		if err := proc.Signal(syscall.SIGKILL); err != nil {
			s.logger.Warn("kill failed", zap.String("worker", w.id), zap.Error(err))
		}
		<-done
	}
	return nil
}

func (s *Supervisor) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.cfg.RestartBackoff):
		return true
	}
}

func (s *Supervisor) setState(w *worker, next State) {
	s.mu.Lock()
	w.state = next
	serving := 0
	for _, other := range s.workers {
		if other.state == StateServing {
			serving++
		}
	}
	s.mu.Unlock()
	metrics.SetWorkersServing(serving)
}

// recordRestart bumps a worker's restart count under the pool lock;
// Restarts() readers observe the field concurrently.
func (s *Supervisor) recordRestart(w *worker) int {
	s.mu.Lock()
	w.restarts++
	n := w.restarts
	s.mu.Unlock()
	metrics.IncWorkerRestart(w.id)
	return n
}

// allDown reports whether no worker is currently serving.
func (s *Supervisor) allDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		if w.state == StateServing {
			return false
		}
	}
	return true
}

// WorkerStates snapshots worker states for the status API.
func (s *Supervisor) WorkerStates() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.workers))
	for _, w := range s.workers {
		out[w.id] = string(w.state)
	}
	return out
}

// Restarts snapshots per-worker restart counts.
func (s *Supervisor) Restarts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.workers))
	for _, w := range s.workers {
		out[w.id] = w.restarts
	}
	return out
}

// launchErrIsFatal classifies launch errors that no amount of retrying
// can fix.
func launchErrIsFatal(err error) bool {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return true
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	return errors.Is(err, syscall.EADDRINUSE)
}
