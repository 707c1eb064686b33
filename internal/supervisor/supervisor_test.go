package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/runtimecfg"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeProc struct {
	exitCh     chan error
	exitOnce   sync.Once
	exitOnTerm bool
	pid        int
}

func newFakeProc(pid int, exitOnTerm bool) *fakeProc {
	return &fakeProc{exitCh: make(chan error, 1), exitOnTerm: exitOnTerm, pid: pid}
}

func (p *fakeProc) Wait() error { return <-p.exitCh }

func (p *fakeProc) Signal(sig os.Signal) error {
	if sig == syscall.SIGTERM && p.exitOnTerm {
		p.exit(nil)
	}
	if sig == syscall.SIGKILL {
		p.exit(errors.New("killed"))
	}
	return nil
}

func (p *fakeProc) PID() int { return p.pid }

func (p *fakeProc) exit(err error) {
	p.exitOnce.Do(func() { p.exitCh <- err })
}

type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	err      error
	procs    chan *fakeProc
}

func newFakeLauncher(buffer int) *fakeLauncher {
	return &fakeLauncher{procs: make(chan *fakeProc, buffer)}
}

func (l *fakeLauncher) Launch(_ context.Context, _ WorkerSpec) (Process, error) {
	l.mu.Lock()
	l.launches++
	n := l.launches
	err := l.err
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p := newFakeProc(1000+n, true)
	l.procs <- p
	return p, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func testConfig() Config {
	return Config{
		Workers:          2,
		ThreadsPerWorker: 1,
		RestartBackoff:   time.Millisecond,
		StartupWindow:    3 * time.Second,
		DrainTimeout:     time.Second,
	}
}

func waitProc(t *testing.T, l *fakeLauncher) *fakeProc {
	t.Helper()
	select {
	case p := <-l.procs:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker launch")
		return nil
	}
}

func TestNewRejectsMissingEntryPoint(t *testing.T) {
	t.Parallel()

	_, err := New(WorkerSpec{}, testConfig(), newFakeLauncher(1), newFakeClock(), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartupFatal)
}

func TestNewRejectsOversubscribedPool(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Workers = 4
	cfg.ThreadsPerWorker = 8
	cfg.Capacity = 16
	_, err := New(WorkerSpec{Command: []string{"serve"}}, cfg, newFakeLauncher(1), newFakeClock(), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity")
}

func TestCrashedWorkerIsRestartedIndividually(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	launcher := newFakeLauncher(8)
	s, err := New(WorkerSpec{Command: []string{"serve"}}, testConfig(), launcher, clk, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	first := waitProc(t, launcher)
	second := waitProc(t, launcher)
	_ = second

	// Past the startup window, a crash is recoverable.
	clk.Advance(time.Minute)
	first.exit(errors.New("segfault in renderer"))

	replacement := waitProc(t, launcher)
	require.NotNil(t, replacement)
	assert.Equal(t, 3, launcher.launchCount(), "exactly one worker relaunched")

	total := 0
	for _, n := range s.Restarts() {
		total += n
	}
	assert.Equal(t, 1, total)

	cancel()
	require.NoError(t, <-done, "group keeps serving through a single crash")
}

func TestLaunchNotFoundIsStartupFatal(t *testing.T) {
	t.Parallel()

	launcher := newFakeLauncher(1)
	launcher.err = fmt.Errorf("start worker: %w", exec.ErrNotFound)
	s, err := New(WorkerSpec{Command: []string{"definitely-missing"}}, testConfig(), launcher, newFakeClock(), zap.NewNop())
	require.NoError(t, err)

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartupFatal)
}

func TestImmediateFirstExitIsStartupFatal(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	launcher := newFakeLauncher(8)
	s, err := New(WorkerSpec{Command: []string{"serve"}}, testConfig(), launcher, clk, zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	// Both workers exit instantly, as with a port that is already bound.
	waitProc(t, launcher).exit(errors.New("bind: address already in use"))
	waitProc(t, launcher).exit(errors.New("bind: address already in use"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStartupFatal)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not abort on startup-fatal exit")
	}
}

func TestGracefulShutdownDrainsWorkers(t *testing.T) {
	t.Parallel()

	launcher := newFakeLauncher(8)
	s, err := New(WorkerSpec{Command: []string{"serve"}}, testConfig(), launcher, newFakeClock(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitProc(t, launcher)
	waitProc(t, launcher)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
	for id, state := range s.WorkerStates() {
		assert.Equal(t, string(StateTerminated), state, "worker %s", id)
	}
}

func TestDefaultCommandUsesResolvedBindAddress(t *testing.T) {
	t.Parallel()

	res, err := runtimecfg.Resolve(func(string) string { return "8080" }, 5000)
	require.NoError(t, err)

	cmd := DefaultCommand(res, 8)
	assert.Equal(t, []string{
		"gunicorn",
		"--bind", "0.0.0.0:8080",
		"--reuse-port",
		"--workers", "1",
		"--worker-class", "gthread",
		"--threads", "8",
		"app:app",
	}, cmd)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Workers all bind the resolved port, exactly as the default gunicorn
// command does with --reuse-port. Without per-listener SO_REUSEPORT the
// second worker loses the bind race and crash-loops on EADDRINUSE
// instead of serving.
func TestPoolSharesListenPortAcrossWorkers(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	script := fmt.Sprintf(`import socket, time
s = socket.socket(socket.AF_INET, socket.SOCK_STREAM)
s.setsockopt(socket.SOL_SOCKET, socket.SO_REUSEPORT, 1)
s.bind(("127.0.0.1", %d))
s.listen()
time.sleep(60)`, port)

	s, err := New(
		WorkerSpec{Command: []string{"python3", "-c", script}},
		testConfig(),
		NewExecLauncher(),
		realClock{},
		zap.NewNop(),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		serving := 0
		for _, state := range s.WorkerStates() {
			if state == string(StateServing) {
				serving++
			}
		}
		if serving == 2 {
			break
		}
		select {
		case err := <-done:
			t.Fatalf("supervisor exited before both workers served: %v", err)
		case <-deadline:
			t.Fatalf("both workers never served at once: states=%v restarts=%v",
				s.WorkerStates(), s.Restarts())
		case <-time.After(20 * time.Millisecond):
		}
	}

	total := 0
	for _, n := range s.Restarts() {
		total += n
	}
	assert.Equal(t, 0, total, "no worker should crash-loop on the shared port")

	cancel()
	require.NoError(t, <-done)
}

// Run with -race: Restarts and WorkerStates are read continuously while
// one worker crash-loops, so an unsynchronized restart-count write
// trips the detector.
func TestRestartsReadableDuringCrashLoop(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	launcher := newFakeLauncher(64)
	cfg := testConfig()
	cfg.Workers = 1
	s, err := New(WorkerSpec{Command: []string{"serve"}}, cfg, launcher, clk, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			s.Restarts()
			s.WorkerStates()
		}
	}()

	const crashes = 20
	for i := 0; i < crashes; i++ {
		proc := waitProc(t, launcher)
		clk.Advance(time.Minute)
		proc.exit(errors.New("segfault in renderer"))
	}
	waitProc(t, launcher)

	close(stop)
	readers.Wait()

	total := 0
	for _, n := range s.Restarts() {
		total += n
	}
	assert.Equal(t, crashes, total)

	cancel()
	require.NoError(t, <-done)
}
