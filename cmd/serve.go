package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/api"
	"github.com/quayside/quayside/internal/probe"
	"github.com/quayside/quayside/internal/recipe"
	"github.com/quayside/quayside/internal/runtimecfg"
	"github.com/quayside/quayside/internal/supervisor"
)

// newServeCmd creates the 'supervise' subcommand. It resolves the
// runtime port, starts the supervised worker pool, probes readiness,
// and exposes the operator status server until interrupted.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "supervise",
		Aliases: []string{"serve"},
		Short:   "Run and supervise the web service worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			logger := appInstance.Logger()

			variant, err := recipe.Lookup(cfg.Image.Variant)
			if err != nil {
				return err
			}
			res, err := runtimecfg.FromEnv(variant.DefaultPort)
			if err != nil {
				return fmt.Errorf("resolve runtime port: %w", err)
			}
			logger.Info("runtime configuration resolved",
				zap.Int("port", res.Port),
				zap.String("bind", res.BindAddr),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Env stays nil so workers inherit the process environment,
			// PORT included.
			spec := supervisor.WorkerSpec{
				Command: supervisor.DefaultCommand(res, cfg.Supervisor.ThreadsPerWorker),
			}
			sup, err := supervisor.New(spec, supervisor.Config{
				Workers:          cfg.Supervisor.Workers,
				ThreadsPerWorker: cfg.Supervisor.ThreadsPerWorker,
				Capacity:         cfg.Supervisor.Capacity,
				RestartBackoff:   cfg.RestartBackoff(),
				StartupWindow:    cfg.StartupWindow(),
				DrainTimeout:     cfg.DrainTimeout(),
			}, supervisor.NewExecLauncher(), appInstance.Clock(), logger.Named("supervisor"))
			if err != nil {
				return fmt.Errorf("init supervisor: %w", err)
			}

			target := cfg.Probe.Target
			if target == "" {
				target = res.ProbeURL
			}
			interval, timeout, grace := cfg.ProbePolicy()
			prober, err := probe.New(target, probe.Policy{
				Interval:         interval,
				Timeout:          timeout,
				GracePeriod:      grace,
				FailureThreshold: cfg.Probe.FailureThreshold,
			}, appInstance.Clock(), logger.Named("probe"))
			if err != nil {
				return fmt.Errorf("init prober: %w", err)
			}

			apiKey := ""
			if cfg.Auth.Enabled {
				apiKey = cfg.Auth.APIKey
			}
			server := api.NewServer(sup, prober, api.Config{
				ListenAddr: cfg.ListenAddr(),
				APIKey:     apiKey,
			}, logger.Named("api"))

			go prober.Run(ctx)
			go func() {
				if err := server.Serve(ctx); err != nil {
					logger.Error("status server failed", zap.Error(err))
					stop()
				}
			}()

			if err := sup.Run(ctx); err != nil {
				return fmt.Errorf("supervise workers: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	return cmd
}
