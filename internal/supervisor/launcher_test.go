package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// A non-nil WorkerSpec.Env must be the child's entire environment, not
// an overlay on os.Environ(). The shell command exits non-zero if the
// marker variable is missing or a parent variable leaked through.
func TestExecLauncherUsesSpecEnvVerbatim(t *testing.T) {
	t.Setenv("QS_PARENT_ONLY", "1")

	launcher := NewExecLauncher()
	proc, err := launcher.Launch(context.Background(), WorkerSpec{
		Command: []string{"/bin/sh", "-c", `[ "$QS_WORKER_MARK" = "1" ] && [ -z "$QS_PARENT_ONLY" ]`},
		Env:     []string{"QS_WORKER_MARK=1"},
	})
	require.NoError(t, err)
	require.NoError(t, proc.Wait())
}

func TestExecLauncherNilEnvInheritsParent(t *testing.T) {
	t.Setenv("QS_INHERITED", "1")

	launcher := NewExecLauncher()
	proc, err := launcher.Launch(context.Background(), WorkerSpec{
		Command: []string{"/bin/sh", "-c", `[ "$QS_INHERITED" = "1" ]`},
	})
	require.NoError(t, err)
	require.NoError(t, proc.Wait())
}
