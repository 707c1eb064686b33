// Package app initializes and holds long-lived application services,
// acting as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/clock/system"
	"github.com/quayside/quayside/internal/config"
	"github.com/quayside/quayside/internal/deploy"
	"github.com/quayside/quayside/internal/id/uuid"
	"github.com/quayside/quayside/internal/logging"
	"github.com/quayside/quayside/internal/metrics"
	memorypublisher "github.com/quayside/quayside/internal/publisher/memory"
	pubsubpublisher "github.com/quayside/quayside/internal/publisher/pubsub"
	gcsstorage "github.com/quayside/quayside/internal/storage/gcs"
	localstorage "github.com/quayside/quayside/internal/storage/local"
	memorystorage "github.com/quayside/quayside/internal/storage/memory"
)

// App holds the shared, long-lived services of the tool. It is built
// once at startup and handed to the commands that need it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     deploy.Clock
	idGen     deploy.IDGenerator
	publisher deploy.Publisher
	artifacts deploy.ArtifactStore

	pubsubClient *pubsub.Client
	gcsClient    *storage.Client
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the wall clock.
func (a *App) Clock() deploy.Clock { return a.clock }

// IDGen returns the identifier generator.
func (a *App) IDGen() deploy.IDGenerator { return a.idGen }

// Publisher returns the deploy-event publisher, nil when disabled.
func (a *App) Publisher() deploy.Publisher { return a.publisher }

// Artifacts returns the configured artifact store.
func (a *App) Artifacts() deploy.ArtifactStore { return a.artifacts }

// New builds the service container from configuration. It fails fast
// when any backend cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		idGen:  uuid.New(),
	}

	switch cfg.Storage.Backend {
	case "memory":
		a.artifacts = memorystorage.NewArtifactStore()
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local artifact store: %w", err)
		}
		a.artifacts = store
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.gcsClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs artifact store: %w", err)
		}
		a.artifacts = store
		logger.Info("using gcs artifact store", zap.String("bucket", cfg.Storage.GCSBucket))
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	if cfg.PubSub.Enabled {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		a.pubsubClient = client
		pub, err := pubsubpublisher.New(client)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.publisher = pub
		logger.Info("using pubsub publisher", zap.String("topic", cfg.PubSub.TopicName))
	} else {
		a.publisher = memorypublisher.New()
	}

	return a, nil
}

// Close shuts down all services in the container.
func (a *App) Close() {
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("closing pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("closing gcs client", zap.Error(err))
		}
	}
	// Sync flushes buffered log entries; stderr sync errors are benign.
	_ = a.logger.Sync()
}
