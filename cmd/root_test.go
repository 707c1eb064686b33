package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/clock/system"
	"github.com/quayside/quayside/internal/config"
	"github.com/quayside/quayside/internal/deploy"
	"github.com/quayside/quayside/internal/id/uuid"
	memorypublisher "github.com/quayside/quayside/internal/publisher/memory"
	memorystorage "github.com/quayside/quayside/internal/storage/memory"
)

type fakeApp struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     deploy.Clock
	idGen     deploy.IDGenerator
	publisher deploy.Publisher
	artifacts deploy.ArtifactStore
	closed    bool
}

func (a *fakeApp) Close()                          { a.closed = true }
func (a *fakeApp) Config() config.Config           { return a.cfg }
func (a *fakeApp) Logger() *zap.Logger             { return a.logger }
func (a *fakeApp) Clock() deploy.Clock             { return a.clock }
func (a *fakeApp) IDGen() deploy.IDGenerator       { return a.idGen }
func (a *fakeApp) Publisher() deploy.Publisher     { return a.publisher }
func (a *fakeApp) Artifacts() deploy.ArtifactStore { return a.artifacts }

func withFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	fake := &fakeApp{
		cfg:       cfg,
		logger:    zap.NewNop(),
		clock:     system.New(),
		idGen:     uuid.New(),
		publisher: memorypublisher.New(),
		artifacts: memorystorage.NewArtifactStore(),
	}
	orig := newApp
	newApp = func(context.Context) (App, error) { return fake, nil }
	t.Cleanup(func() { newApp = orig })
	return fake
}

func TestRenderCommandPrintsDockerfile(t *testing.T) {
	fake := withFakeApp(t)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"render", "standard"})

	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "FROM python:3.11-slim")
	require.Contains(t, out.String(), "HEALTHCHECK")
	require.True(t, fake.closed)
}

func TestRenderCommandRejectsUnknownVariant(t *testing.T) {
	withFakeApp(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"render", "mystery"})

	require.Error(t, root.Execute())
}

func TestVersionCommandSkipsAppInit(t *testing.T) {
	orig := newApp
	newApp = func(context.Context) (App, error) {
		t.Fatal("version must not initialize services")
		return nil, nil
	}
	t.Cleanup(func() { newApp = orig })

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "quayside")
}
