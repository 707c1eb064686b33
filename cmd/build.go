package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/assemble"
	"github.com/quayside/quayside/internal/recipe"
)

// newBuildCmd creates the 'build' subcommand, which assembles the
// configured variant into a tagged container image.
func newBuildCmd() *cobra.Command {
	var (
		tag        string
		contextDir string
	)

	cmd := &cobra.Command{
		Use:   "build [variant]",
		Short: "Assemble a container image from a build recipe",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			logger := appInstance.Logger()

			name := cfg.Image.Variant
			if len(args) == 1 {
				name = args[0]
			}
			if tag == "" {
				tag = cfg.Image.Tag
			}
			if contextDir == "" {
				contextDir = cfg.Image.ContextDir
			}

			variant, err := recipe.Lookup(name)
			if err != nil {
				return err
			}
			rec, err := recipe.New(variant)
			if err != nil {
				return fmt.Errorf("build recipe for %q: %w", name, err)
			}

			assembler, err := assemble.New(appInstance.Clock(), logger.Named("assemble"))
			if err != nil {
				return fmt.Errorf("init assembler: %w", err)
			}
			res, err := assembler.Build(cmd.Context(), rec, contextDir, tag)
			if err != nil {
				return err
			}
			archiveBuild(cmd.Context(), appInstance, name, res)

			logger.Info("image ready",
				zap.String("tag", res.ImageTag),
				zap.Duration("duration", res.Duration),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "built %s\n", res.ImageTag)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "image tag (defaults to image.tag from config)")
	cmd.Flags().StringVar(&contextDir, "context", "", "build context directory (defaults to image.context_dir)")
	return cmd
}

// archiveBuild stores the rendered Dockerfile and build log. Archiving
// is best-effort: a finished image is not failed because the artifact
// store is down.
func archiveBuild(ctx context.Context, appInstance App, variant string, res assemble.Result) {
	logger := appInstance.Logger()
	id, err := appInstance.IDGen().NewID()
	if err != nil {
		logger.Warn("mint build id failed", zap.Error(err))
		return
	}
	store := appInstance.Artifacts()
	prefix := fmt.Sprintf("builds/%s/%s", variant, id)
	if _, err := store.PutObject(ctx, prefix+"/Dockerfile", "text/plain", []byte(res.Dockerfile)); err != nil {
		logger.Warn("archive dockerfile failed", zap.Error(err))
		return
	}
	if _, err := store.PutObject(ctx, prefix+"/build.log", "text/plain", []byte(strings.Join(res.Log, "\n"))); err != nil {
		logger.Warn("archive build log failed", zap.Error(err))
		return
	}
	logger.Info("build artifacts archived", zap.String("prefix", prefix))
}
