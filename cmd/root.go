// Package cmd defines and implements the CLI commands for the quayside
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/app"
	"github.com/quayside/quayside/internal/config"
	"github.com/quayside/quayside/internal/deploy"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface the commands use. It lets the
// tests inject a mock container.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Clock() deploy.Clock
	IDGen() deploy.IDGenerator
	Publisher() deploy.Publisher
	Artifacts() deploy.ArtifactStore
}

// newApp is the application factory, a variable so tests can replace it.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quayside",
		Short: "Provision, build, and supervise the headless-browser web service",
		Long: `quayside prepares hosts and images for a browser-automation web
service and keeps the service alive once deployed. It provisions the
browser engine and its OS dependencies, assembles container images from
build recipes, supervises worker processes, probes readiness, and
orchestrates schema migrations during releases.`,

		// Runs after flags are parsed but before the subcommand's
		// RunE; builds the service container and injects it.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newProvisionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newProbeCmd())
	cmd.AddCommand(newReleaseCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "quayside: %v\n", err)
		os.Exit(1)
	}
}
