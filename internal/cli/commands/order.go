package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapbuild/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewOrderCommand creates the order command.
func NewOrderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the evaluation order",
		Long: `Print every project in the order it would be evaluated.

Every project appears after all projects it evaluates after. Projects that
could go in either order are sorted by name, so the output is stable.`,
		Example: `  leapbuild order
  leapbuild order --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewGraphContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			r := cmdCtx.Renderer
			order := cmdCtx.Engine.Order()

			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(output.OrderOutput{Order: nonNil(order)})
			case output.ModeMarkdown:
				r.Println(output.FormatHeader(1, "Evaluation Order"))
				r.Println("")
				for i, name := range order {
					r.Printf("%d. %s\n", i+1, name)
				}
			default:
				styles := r.Styles()
				for i, name := range order {
					r.Printf("%s %s\n", styles.Muted.Render(fmt.Sprintf("%3d", i+1)), styles.ProjectName.Render(name))
				}
			}
			return nil
		},
	}
}

// NewPathsCommand creates the paths command.
func NewPathsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print each project's output directory",
		Long: `Print the build output directory allocated to every project.

Directories are derived from the root build directory and the project name;
nothing is created.`,
		Example: `  leapbuild paths
  leapbuild paths --build-dir /tmp/out --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewGraphContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			r := cmdCtx.Renderer
			eng := cmdCtx.Engine

			paths := eng.Paths()
			entries := make([]output.PathEntry, len(paths))
			rows := make([][]string, len(paths))
			for i, p := range paths {
				entries[i] = output.PathEntry{Name: p.Name, Dir: p.Dir}
				rows[i] = []string{p.Name, p.Dir}
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(output.PathsOutput{BuildDir: eng.BuildDir(), Paths: entries})
			}
			if len(rows) == 0 {
				r.Muted("No projects declared")
				return nil
			}
			r.Table([]string{"Project", "Output Directory"}, rows)
			return nil
		},
	}
}
