package provision

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// ExecRunner runs provisioning commands through os/exec.
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{logger: logger}
}

// Run executes a command and surfaces combined output on failure.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.logger.Error("command failed",
			zap.String("command", name),
			zap.Strings("args", args),
			zap.ByteString("output", out),
		)
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}
