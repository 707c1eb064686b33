// Package provision installs the OS libraries and browser runtime a
// headless-browser workload needs, deterministically and idempotently.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/recipe"
)

// ErrAlreadyProvisioned reports a clean no-op: the marker file says the
// target filesystem is already provisioned.
var ErrAlreadyProvisioned = errors.New("filesystem already provisioned")

// ErrPartialState reports a filesystem that holds engine binaries without
// a completed-provision marker. Re-running over that state could corrupt
// it silently, so it is refused instead.
var ErrPartialState = errors.New("partially provisioned state detected")

// Step is one ordered provisioning command.
type Step struct {
	Name string
	Argv []string
}

// Runner executes provisioning commands. The seam keeps Apply testable
// and lets callers dry-run a plan.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Config controls the provisioner.
type Config struct {
	Variant recipe.Variant
	// MarkerPath records a completed provision. Default
	// /var/lib/quayside/provisioned.
	MarkerPath string
	// EnginePath is the browser binary the engine install produces.
	EnginePath string
}

// Provisioner lays down the OS package set and the browser engine.
type Provisioner struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

// New creates a Provisioner.
func New(cfg Config, runner Runner, logger *zap.Logger) (*Provisioner, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MarkerPath == "" {
		cfg.MarkerPath = "/var/lib/quayside/provisioned"
	}
	if cfg.EnginePath == "" {
		cfg.EnginePath = "/root/.cache/ms-playwright"
	}
	return &Provisioner{cfg: cfg, runner: runner, logger: logger}, nil
}

// Plan returns the ordered install steps. Generic OS libraries come
// first so unrelated application changes keep reusing that layer; the
// engine install-with-deps runs last because it is the step most likely
// to pull library versions the generic list omits. The cache purge
// closes the plan.
func (p *Provisioner) Plan() []Step {
	steps := []Step{
		{Name: "refresh package metadata", Argv: []string{"apt-get", "update"}},
		{
			Name: "install os packages",
			Argv: append([]string{"apt-get", "install", "-y", "--no-install-recommends"},
				p.cfg.Variant.OSPackages()...),
		},
	}
	if !p.cfg.Variant.EngineBundled {
		steps = append(steps, Step{
			Name: "install browser engine",
			Argv: []string{"python", "-m", "playwright", "install", "--with-deps", "chromium"},
		})
	}
	steps = append(steps, Step{
		Name: "purge package caches",
		Argv: []string{"rm", "-rf", "/var/lib/apt/lists"},
	})
	return steps
}

// Apply executes the plan. Any step failure is fatal; there is no
// partial-success mode. On success a marker file is written so re-runs
// become reported no-ops.
func (p *Provisioner) Apply(ctx context.Context) error {
	switch err := p.checkState(); {
	case errors.Is(err, ErrAlreadyProvisioned):
		p.logger.Info("provision skipped", zap.String("marker", p.cfg.MarkerPath))
		return err
	case err != nil:
		return err
	}

	for _, step := range p.Plan() {
		p.logger.Info("provision step", zap.String("step", step.Name))
		if err := p.runner.Run(ctx, step.Argv[0], step.Argv[1:]...); err != nil {
			return fmt.Errorf("provision step %q: %w", step.Name, err)
		}
	}

	if err := p.writeMarker(); err != nil {
		return fmt.Errorf("write provision marker: %w", err)
	}
	p.logger.Info("provision complete", zap.String("variant", p.cfg.Variant.Name))
	return nil
}

// checkState classifies the target filesystem before any command runs.
func (p *Provisioner) checkState() error {
	if _, err := os.Stat(p.cfg.MarkerPath); err == nil {
		return ErrAlreadyProvisioned
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat provision marker: %w", err)
	}
	if p.cfg.Variant.EngineBundled {
		return nil
	}
	if _, err := os.Stat(p.cfg.EnginePath); err == nil {
		return fmt.Errorf("%w: engine present at %s without marker %s",
			ErrPartialState, p.cfg.EnginePath, p.cfg.MarkerPath)
	}
	return nil
}

func (p *Provisioner) writeMarker() error {
	if err := os.MkdirAll(filepath.Dir(p.cfg.MarkerPath), 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf("variant=%s\n", p.cfg.Variant.Name)
	return os.WriteFile(p.cfg.MarkerPath, []byte(content), 0o644)
}
