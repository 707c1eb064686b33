package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quayside/quayside/internal/release"
)

// newReleaseCmd creates the 'release' subcommand. It applies pending
// schema migrations and then refreshes the service container;
// migration failure aborts the release before any traffic is affected.
func newReleaseCmd() *cobra.Command {
	var skipRefresh bool

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Apply schema migrations and refresh the running service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			logger := appInstance.Logger().Named("release")

			migrator, err := release.NewMigrator(cmd.Context(), cfg.Release.DSN, logger)
			if err != nil {
				return fmt.Errorf("init migrator: %w", err)
			}
			defer migrator.Close()

			var refresher release.Refresher
			if skipRefresh {
				refresher = release.RefreshFunc(func(ctx context.Context) error { return nil })
			} else {
				refresher, err = release.NewDockerRefresher(cfg.Release.ContainerID, logger)
				if err != nil {
					return fmt.Errorf("init refresher: %w", err)
				}
			}

			orch, err := release.New(
				migrator,
				refresher,
				appInstance.Publisher(),
				appInstance.Artifacts(),
				appInstance.IDGen(),
				appInstance.Clock(),
				release.Config{
					Topic:          cfg.PubSub.TopicName,
					ArtifactPrefix: cfg.Storage.Prefix,
				},
				logger,
			)
			if err != nil {
				return fmt.Errorf("init orchestrator: %w", err)
			}

			rec, err := orch.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("release %s: %w", rec.ID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "release %s: %s\n", rec.ID, rec.Status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipRefresh, "skip-refresh", false, "apply migrations without restarting the service")
	return cmd
}
