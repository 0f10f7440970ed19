package commands

import (
	"github.com/leapstack-labs/leapbuild/internal/clean"
	"github.com/leapstack-labs/leapbuild/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewCleanCommand creates the clean command.
func NewCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete the build output directory",
		Long: `Delete the root build output directory and everything in it.

Clean does not need a valid project graph, so it also works when the
declared dependencies contain a cycle. A build directory that does not exist
is already clean. Do not run clean while an evaluation is writing to the
same directory.`,
		Example: `  leapbuild clean
  leapbuild clean --build-dir /tmp/out`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutEngine(cmd)
			r := cmdCtx.Renderer
			buildDir := cmdCtx.Cfg.BuildDir

			if err := clean.New(nil, cmdCtx.Logger).Clean(buildDir); err != nil {
				return err
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]string{"removed": buildDir})
			}
			r.Success("Removed " + displayPath(cmdCtx.Cfg.ProjectRoot, buildDir))
			return nil
		},
	}
}
