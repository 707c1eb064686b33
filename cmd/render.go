package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quayside/quayside/internal/recipe"
)

// newRenderCmd creates the 'render' subcommand. It turns a build
// recipe into Dockerfile text without touching the Docker daemon,
// which makes the layer plan reviewable before any build runs.
func newRenderCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render [variant]",
		Short: "Render a build recipe to a Dockerfile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			name := appInstance.Config().Image.Variant
			if len(args) == 1 {
				name = args[0]
			}
			variant, err := recipe.Lookup(name)
			if err != nil {
				return err
			}
			rec, err := recipe.New(variant)
			if err != nil {
				return fmt.Errorf("build recipe for %q: %w", name, err)
			}
			for _, warn := range rec.Warnings() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warn)
			}
			rendered, err := rec.Render()
			if err != nil {
				return fmt.Errorf("render recipe for %q: %w", name, err)
			}

			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), rendered)
				return nil
			}
			if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
				return fmt.Errorf("write dockerfile: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the Dockerfile to a file instead of stdout")
	return cmd
}
