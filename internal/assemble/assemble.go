// Package assemble turns a validated build recipe into an immutable
// container image via the Docker Engine API.
package assemble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/deploy"
	"github.com/quayside/quayside/internal/metrics"
	"github.com/quayside/quayside/internal/recipe"
)

// ErrBuildFailed marks a daemon-side build failure. The image is never
// tagged or published when this is returned.
var ErrBuildFailed = errors.New("image build failed")

// imageBuilder is the slice of the Docker client the assembler uses.
type imageBuilder interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

// Assembler builds images from recipes.
type Assembler struct {
	cli    imageBuilder
	clock  deploy.Clock
	logger *zap.Logger
}

// New creates an Assembler connected to the local Docker daemon.
func New(clock deploy.Clock, logger *zap.Logger) (*Assembler, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewWithClient(cli, clock, logger)
}

// NewWithClient creates an Assembler around an existing client
// (primarily for testing).
func NewWithClient(cli imageBuilder, clock deploy.Clock, logger *zap.Logger) (*Assembler, error) {
	if cli == nil {
		return nil, fmt.Errorf("docker client is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{cli: cli, clock: clock, logger: logger}, nil
}

// Result describes a completed build.
type Result struct {
	ImageTag   string
	Dockerfile string
	Log        []string
	Duration   time.Duration
}

// Build validates and renders the recipe, writes the Dockerfile into the
// context directory, and drives the daemon build. Validation failures
// never reach the daemon; daemon failures abort before any tag exists.
func (a *Assembler) Build(ctx context.Context, r *recipe.Recipe, contextDir, tag string) (Result, error) {
	if tag == "" {
		return Result{}, fmt.Errorf("image tag is required")
	}
	rendered, err := r.Render()
	if err != nil {
		return Result{}, fmt.Errorf("assemble %q: %w", tag, err)
	}
	for _, warn := range r.Warnings() {
		a.logger.Warn("recipe warning", zap.String("warning", warn))
	}

	dockerfile := fmt.Sprintf("Dockerfile.%s", r.Variant.Name)
	dockerfilePath := filepath.Join(contextDir, dockerfile)
	if err := os.WriteFile(dockerfilePath, []byte(rendered), 0o644); err != nil {
		return Result{}, fmt.Errorf("write rendered dockerfile: %w", err)
	}
	defer os.Remove(dockerfilePath)

	tar, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("tar build context: %w", err)
	}
	defer tar.Close()

	start := a.clock.Now()
	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  dockerfile,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("start image build: %w", err)
	}
	defer resp.Body.Close()

	log, err := drainBuildStream(resp.Body)
	if err != nil {
		metrics.ObserveBuild(r.Variant.Name, "failed", a.clock.Now().Sub(start))
		return Result{}, fmt.Errorf("build %q: %w", tag, err)
	}

	res := Result{
		ImageTag:   tag,
		Dockerfile: rendered,
		Log:        log,
		Duration:   a.clock.Now().Sub(start),
	}
	metrics.ObserveBuild(r.Variant.Name, "succeeded", res.Duration)
	a.logger.Info("image built",
		zap.String("tag", tag),
		zap.String("variant", r.Variant.Name),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// buildMessage is one line of the daemon's JSON build stream.
type buildMessage struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// drainBuildStream consumes the build output and fails closed on the
// first daemon-reported error.
func drainBuildStream(r io.Reader) ([]string, error) {
	var log []string
	dec := json.NewDecoder(r)
	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return log, nil
			}
			return log, fmt.Errorf("decode build stream: %w", err)
		}
		if line := strings.TrimRight(msg.Stream, "\n"); line != "" {
			log = append(log, line)
		}
		if msg.Error != "" {
			detail := msg.ErrorDetail.Message
			if detail == "" {
				detail = msg.Error
			}
			return log, fmt.Errorf("%w: %s", ErrBuildFailed, detail)
		}
	}
}
