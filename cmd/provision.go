package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quayside/quayside/internal/provision"
	"github.com/quayside/quayside/internal/recipe"
)

// newProvisionCmd creates the 'provision' subcommand. It installs the
// browser engine and its OS dependency set on the current filesystem,
// then launch-verifies the engine.
func newProvisionCmd() *cobra.Command {
	var (
		dryRun     bool
		skipVerify bool
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Install the browser engine and OS dependencies on this host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			logger := appInstance.Logger().Named("provision")

			variant, err := recipe.Lookup(cfg.Image.Variant)
			if err != nil {
				return err
			}

			prov, err := provision.New(provision.Config{
				Variant:    variant,
				MarkerPath: cfg.Provision.MarkerPath,
				EnginePath: cfg.Provision.EnginePath,
			}, provision.NewExecRunner(logger), logger)
			if err != nil {
				return fmt.Errorf("init provisioner: %w", err)
			}

			if dryRun {
				for _, step := range prov.Plan() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", step.Name, step.Argv)
				}
				return nil
			}

			if err := prov.Apply(cmd.Context()); err != nil {
				if errors.Is(err, provision.ErrAlreadyProvisioned) {
					fmt.Fprintln(cmd.OutOrStdout(), "already provisioned, nothing to do")
					return nil
				}
				return err
			}

			if skipVerify {
				return nil
			}
			verifyTimeout := time.Duration(cfg.Provision.VerifyTimeoutSeconds) * time.Second
			if err := provision.Verify(cmd.Context(), provision.VerifyConfig{Timeout: verifyTimeout}, logger); err != nil {
				return fmt.Errorf("engine verification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "provisioned and verified")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the provisioning plan without running it")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "skip the engine launch check")
	return cmd
}
