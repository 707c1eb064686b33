// Package release orchestrates one deployment event: apply pending
// schema migrations, then bring the service back online. The ordering
// is strict; a failed migration must never be followed by a traffic
// cutover onto a schema-incompatible service.
package release

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/deploy"
	"github.com/quayside/quayside/internal/metrics"
)

// SchemaMigrator applies pending schema migrations.
type SchemaMigrator interface {
	Apply(ctx context.Context) (int, error)
}

// Refresher starts or refreshes the running service.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config controls optional orchestrator behavior.
type Config struct {
	// Topic receives deploy events when a publisher is wired.
	Topic string
	// ArtifactPrefix namespaces archived release records.
	ArtifactPrefix string
}

// Orchestrator sequences a release.
type Orchestrator struct {
	migrator  SchemaMigrator
	refresher Refresher
	publisher deploy.Publisher
	artifacts deploy.ArtifactStore
	idGen     deploy.IDGenerator
	clock     deploy.Clock
	logger    *zap.Logger
	cfg       Config
}

// New creates an Orchestrator. Publisher and artifact store are
// optional; migrator, refresher, idGen, and clock are not.
func New(
	migrator SchemaMigrator,
	refresher Refresher,
	publisher deploy.Publisher,
	artifacts deploy.ArtifactStore,
	idGen deploy.IDGenerator,
	clock deploy.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if migrator == nil {
		return nil, fmt.Errorf("migrator is required")
	}
	if refresher == nil {
		return nil, fmt.Errorf("refresher is required")
	}
	if idGen == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		migrator:  migrator,
		refresher: refresher,
		publisher: publisher,
		artifacts: artifacts,
		idGen:     idGen,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// Run executes one release. The returned record reflects the outcome
// even when the release fails.
func (o *Orchestrator) Run(ctx context.Context) (deploy.ReleaseRecord, error) {
	id, err := o.idGen.NewID()
	if err != nil {
		return deploy.ReleaseRecord{}, fmt.Errorf("mint release id: %w", err)
	}
	rec := deploy.ReleaseRecord{
		ID:        id,
		Status:    deploy.ReleaseStatusMigrating,
		StartedAt: o.clock.Now(),
	}
	o.logger.Info("release started", zap.String("release_id", rec.ID))

	applied, err := o.migrator.Apply(ctx)
	if err != nil {
		return o.fail(ctx, rec, fmt.Errorf("apply migrations: %w", err))
	}
	o.logger.Info("migrations applied",
		zap.String("release_id", rec.ID),
		zap.Int("applied", applied),
	)

	if err := o.refresher.Refresh(ctx); err != nil {
		return o.fail(ctx, rec, fmt.Errorf("refresh service: %w", err))
	}

	rec.Status = deploy.ReleaseStatusRefreshed
	rec.FinishedAt = o.clock.Now()
	metrics.IncRelease(string(rec.Status))
	o.logger.Info("release refreshed", zap.String("release_id", rec.ID))

	o.publishEvent(ctx, rec, applied)
	o.archiveRecord(ctx, rec)
	return rec, nil
}

func (o *Orchestrator) fail(ctx context.Context, rec deploy.ReleaseRecord, err error) (deploy.ReleaseRecord, error) {
	rec.Status = deploy.ReleaseStatusFailed
	rec.FinishedAt = o.clock.Now()
	rec.Error = err.Error()
	metrics.IncRelease(string(rec.Status))
	o.logger.Error("release failed", zap.String("release_id", rec.ID), zap.Error(err))
	o.archiveRecord(ctx, rec)
	return rec, err
}

// publishEvent is best-effort: a deployment that succeeded is not
// failed retroactively because the event bus is down.
func (o *Orchestrator) publishEvent(ctx context.Context, rec deploy.ReleaseRecord, applied int) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"release_id":         rec.ID,
		"status":             string(rec.Status),
		"migrations_applied": applied,
		"started_at":         rec.StartedAt,
		"finished_at":        rec.FinishedAt,
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		o.logger.Warn("deploy event publish failed", zap.String("release_id", rec.ID), zap.Error(err))
	}
}

func (o *Orchestrator) archiveRecord(ctx context.Context, rec deploy.ReleaseRecord) {
	if o.artifacts == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		o.logger.Warn("marshal release record failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/release.json", o.cfg.ArtifactPrefix, rec.ID)
	if o.cfg.ArtifactPrefix == "" {
		path = fmt.Sprintf("releases/%s/release.json", rec.ID)
	}
	uri, err := o.artifacts.PutObject(ctx, path, "application/json", data)
	if err != nil {
		o.logger.Warn("archive release record failed", zap.String("release_id", rec.ID), zap.Error(err))
		return
	}
	o.logger.Info("release record archived", zap.String("release_id", rec.ID), zap.String("uri", uri))
}
