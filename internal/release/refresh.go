package release

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// containerAPI is the slice of the Docker client the refresher uses.
type containerAPI interface {
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
}

// DockerRefresher brings the service back online by restarting its
// container, which re-enters the image's start command and health check.
type DockerRefresher struct {
	cli         containerAPI
	containerID string
	stopSeconds int
	logger      *zap.Logger
}

// NewDockerRefresher connects to the local daemon.
func NewDockerRefresher(containerID string, logger *zap.Logger) (*DockerRefresher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewDockerRefresherWithClient(cli, containerID, logger)
}

// NewDockerRefresherWithClient constructs a refresher around an existing
// client (primarily for testing).
func NewDockerRefresherWithClient(cli containerAPI, containerID string, logger *zap.Logger) (*DockerRefresher, error) {
	if cli == nil {
		return nil, fmt.Errorf("docker client is required")
	}
	if containerID == "" {
		return nil, fmt.Errorf("container id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DockerRefresher{
		cli:         cli,
		containerID: containerID,
		stopSeconds: 10,
		logger:      logger,
	}, nil
}

// Refresh restarts the service container.
func (r *DockerRefresher) Refresh(ctx context.Context) error {
	timeout := r.stopSeconds
	if err := r.cli.ContainerRestart(ctx, r.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("restart container %s: %w", r.containerID, err)
	}
	r.logger.Info("service refreshed", zap.String("container", r.containerID))
	return nil
}

// RefreshFunc adapts a function to the Refresher interface.
type RefreshFunc func(ctx context.Context) error

// Refresh invokes the wrapped function.
func (f RefreshFunc) Refresh(ctx context.Context) error {
	return f(ctx)
}
