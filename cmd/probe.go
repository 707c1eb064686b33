package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quayside/quayside/internal/probe"
	"github.com/quayside/quayside/internal/recipe"
	"github.com/quayside/quayside/internal/runtimecfg"
)

// newProbeCmd creates the 'probe' subcommand: a one-shot readiness
// check against the resolved service port, usable from cron or CI.
func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run one readiness probe against the service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			target := cfg.Probe.Target
			if target == "" {
				variant, err := recipe.Lookup(cfg.Image.Variant)
				if err != nil {
					return err
				}
				res, err := runtimecfg.FromEnv(variant.DefaultPort)
				if err != nil {
					return fmt.Errorf("resolve runtime port: %w", err)
				}
				target = res.ProbeURL
			}

			interval, timeout, _ := cfg.ProbePolicy()
			prober, err := probe.New(target, probe.Policy{
				Interval: interval,
				Timeout:  timeout,
				// No grace for a one-shot check: the caller asked
				// whether the service is healthy right now.
				FailureThreshold: 1,
			}, appInstance.Clock(), appInstance.Logger().Named("probe"))
			if err != nil {
				return fmt.Errorf("init prober: %w", err)
			}

			status := prober.Check(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", target, status)
			if status != probe.StatusHealthy {
				return fmt.Errorf("service is %s", status)
			}
			return nil
		},
	}
	return cmd
}
