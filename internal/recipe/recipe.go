// Package recipe models container build recipes for headless-browser
// workloads as a single template parameterized by variant, instead of
// hand-maintained near-duplicate Dockerfiles that drift apart.
package recipe

import (
	"fmt"
	"time"
)

// StageKind identifies a build stage within a recipe.
type StageKind string

const (
	StageBase          StageKind = "base"
	StageOSPackages    StageKind = "os-packages"
	StageRuntimeDeps   StageKind = "runtime-deps"
	StageEngineInstall StageKind = "engine-install"
	StageCopySource    StageKind = "copy-source"
	StagePrivilegeDrop StageKind = "privilege-drop"
	StageExpose        StageKind = "expose"
	StageHealthcheck   StageKind = "healthcheck"
	StageCommand       StageKind = "command"
)

// Stage is one ordered step of a build recipe.
type Stage struct {
	Kind StageKind
	// Requires lists stages that must appear earlier in the recipe.
	Requires []StageKind
	// Provisioning stages must not run after the privilege drop.
	Provisioning bool
}

// HealthPolicy is the health-check contract baked into the image and
// evaluated by the hosting platform from first startup until teardown.
type HealthPolicy struct {
	Interval    time.Duration
	Timeout     time.Duration
	StartPeriod time.Duration
	Retries     int
}

// DefaultHealthPolicy allows for slow browser-engine and worker-pool
// initialization before failures start counting.
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		StartPeriod: 40 * time.Second,
		Retries:     3,
	}
}

// Variant selects one concrete rendering of the recipe template.
type Variant struct {
	Name        string
	BaseImage   string
	DefaultPort int
	// DropPrivileges switches to a non-root user before the run stage.
	// Variants that keep root are surfaced through Warnings, not failed:
	// the inconsistency is inherited, not standardized away.
	DropPrivileges bool
	// EngineBundled marks base images that already ship the browser
	// engine and its shared libraries (no engine install stage).
	EngineBundled bool
	Workers       int
	WorkerThreads int
	Health        HealthPolicy
}

// Recipe is a validated, ordered list of build stages for one variant.
type Recipe struct {
	Variant Variant
	Stages  []Stage
}

// Built-in variants mirror the hosting targets the service deploys to.
var (
	// VariantStandard self-installs the engine and serves on 5000.
	VariantStandard = Variant{
		Name:           "standard",
		BaseImage:      "python:3.11-slim",
		DefaultPort:    5000,
		DropPrivileges: true,
		Workers:        2,
		WorkerThreads:  8,
		Health:         DefaultHealthPolicy(),
	}
	// VariantRender targets platforms that assign ports dynamically and
	// default to 10000 when none is supplied.
	VariantRender = Variant{
		Name:           "render",
		BaseImage:      "python:3.11-slim",
		DefaultPort:    10000,
		DropPrivileges: true,
		Workers:        2,
		WorkerThreads:  8,
		Health:         DefaultHealthPolicy(),
	}
	// VariantBundled uses a base image with the engine pre-installed.
	// It historically runs as the image default user.
	VariantBundled = Variant{
		Name:           "bundled",
		BaseImage:      "mcr.microsoft.com/playwright/python:v1.44.0-jammy",
		DefaultPort:    5000,
		DropPrivileges: false,
		EngineBundled:  true,
		Workers:        2,
		WorkerThreads:  8,
		Health:         DefaultHealthPolicy(),
	}
)

// Variants returns the built-in variants keyed by name.
func Variants() map[string]Variant {
	return map[string]Variant{
		VariantStandard.Name: VariantStandard,
		VariantRender.Name:   VariantRender,
		VariantBundled.Name:  VariantBundled,
	}
}

// Lookup resolves a built-in variant by name.
func Lookup(name string) (Variant, error) {
	v, ok := Variants()[name]
	if !ok {
		return Variant{}, fmt.Errorf("unknown recipe variant %q", name)
	}
	return v, nil
}

// New assembles and validates a Recipe for the given variant.
func New(v Variant) (*Recipe, error) {
	if v.Name == "" {
		return nil, fmt.Errorf("variant name is required")
	}
	if v.BaseImage == "" {
		return nil, fmt.Errorf("variant %q: base image is required", v.Name)
	}
	if v.DefaultPort <= 0 || v.DefaultPort > 65535 {
		return nil, fmt.Errorf("variant %q: default port %d out of range", v.Name, v.DefaultPort)
	}
	if v.Workers <= 0 {
		v.Workers = 2
	}
	if v.WorkerThreads <= 0 {
		v.WorkerThreads = 8
	}
	if v.Health == (HealthPolicy{}) {
		v.Health = DefaultHealthPolicy()
	}

	stages := []Stage{
		{Kind: StageBase, Provisioning: true},
		{Kind: StageOSPackages, Requires: []StageKind{StageBase}, Provisioning: true},
		{Kind: StageRuntimeDeps, Requires: []StageKind{StageOSPackages}, Provisioning: true},
	}
	if !v.EngineBundled {
		stages = append(stages, Stage{
			Kind:         StageEngineInstall,
			Requires:     []StageKind{StageRuntimeDeps},
			Provisioning: true,
		})
	}
	copyRequires := []StageKind{StageRuntimeDeps}
	if !v.EngineBundled {
		copyRequires = append(copyRequires, StageEngineInstall)
	}
	stages = append(stages, Stage{Kind: StageCopySource, Requires: copyRequires})
	if v.DropPrivileges {
		stages = append(stages, Stage{Kind: StagePrivilegeDrop, Requires: []StageKind{StageCopySource}})
	}
	stages = append(stages,
		Stage{Kind: StageExpose},
		Stage{Kind: StageHealthcheck},
		Stage{Kind: StageCommand, Requires: copyRequires},
	)

	r := &Recipe{Variant: v, Stages: stages}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate enforces the recipe ordering invariants: every stage's
// requirements appear earlier (acyclic ordering), the dependency layers
// precede the source copy, and no provisioning stage follows the
// privilege drop.
func (r *Recipe) Validate() error {
	seen := make(map[StageKind]int, len(r.Stages))
	dropAt := -1
	for i, st := range r.Stages {
		if _, dup := seen[st.Kind]; dup {
			return fmt.Errorf("variant %q: duplicate stage %s", r.Variant.Name, st.Kind)
		}
		for _, req := range st.Requires {
			if _, ok := seen[req]; !ok {
				return fmt.Errorf("variant %q: stage %s requires %s which has not run yet",
					r.Variant.Name, st.Kind, req)
			}
		}
		if st.Kind == StagePrivilegeDrop {
			dropAt = i
		}
		if st.Provisioning && dropAt >= 0 {
			return fmt.Errorf("variant %q: provisioning stage %s after privilege drop",
				r.Variant.Name, st.Kind)
		}
		seen[st.Kind] = i
	}

	deps, depsOK := seen[StageRuntimeDeps]
	src, srcOK := seen[StageCopySource]
	if !depsOK || !srcOK || deps > src {
		return fmt.Errorf("variant %q: dependency install must precede source copy", r.Variant.Name)
	}
	return nil
}

// Warnings reports recipe properties that are suspicious but deliberately
// not treated as validation failures.
func (r *Recipe) Warnings() []string {
	var warns []string
	if !r.Variant.DropPrivileges {
		warns = append(warns, fmt.Sprintf(
			"variant %q runs the service as the image default user; no privilege drop stage",
			r.Variant.Name))
	}
	return warns
}
