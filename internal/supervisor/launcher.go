package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Process is a launched worker process.
type Process interface {
	Wait() error
	Signal(sig os.Signal) error
	PID() int
}

// Launcher starts worker processes. The seam keeps the supervisor
// testable without spawning real processes.
type Launcher interface {
	Launch(ctx context.Context, spec WorkerSpec) (Process, error)
}

// WorkerSpec describes the process one worker runs.
type WorkerSpec struct {
	Command []string
	Env     []string
	Dir     string
}

// ExecLauncher launches workers through os/exec.
type ExecLauncher struct{}

// NewExecLauncher creates an ExecLauncher.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{}
}

// Launch starts the worker process. Startup-fatal conditions such as a
// missing entry point or permission denial surface here as Start errors.
func (ExecLauncher) Launch(_ context.Context, spec WorkerSpec) (Process, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("worker command is empty")
	}
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	// A nil Env inherits the parent environment; a non-nil Env is the
	// child's entire environment, not an overlay.
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	cmd.Dir = spec.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Own process group so a drain signal reaches the worker's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}
