package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapbuild/internal/cli/output"
	"github.com/leapstack-labs/leapbuild/internal/dag"
	"github.com/spf13/cobra"
)

// GraphQuerier provides read-only access to the project graph.
type GraphQuerier interface {
	DependenciesOf(string) []string
	DependentsOf(string) []string
	ProjectCount() int
	EdgeCount() int
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	var selected []string
	var downstream bool

	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the project graph",
		Long: `Display the project graph grouped by level.

A project at level N only evaluates after projects at lower levels.
Use --select to focus on some projects and everything they need.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the graph
  leapbuild dag

  # Show what evaluating core would touch
  leapbuild dag --select core --downstream

  # Output as JSON
  leapbuild dag --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd, parseSelection(nil, selected), downstream)
		},
	}

	cmd.Flags().StringSliceVarP(&selected, "select", "s", nil, "Projects to focus on (comma-separated)")
	cmd.Flags().BoolVar(&downstream, "downstream", false, "Include projects evaluating after the selection")

	return cmd
}

func runDAG(cmd *cobra.Command, selected []string, downstream bool) error {
	cmdCtx, cleanup, err := NewGraphContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer

	graph, err := cmdCtx.Engine.Selection(selected, downstream)
	if err != nil {
		return err
	}

	levels, err := graph.ExecutionLevels()
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return dagJSON(r, graph, levels)
	case output.ModeMarkdown:
		return dagMarkdown(r, graph, levels)
	default:
		return dagText(r, graph, levels)
	}
}

var _ GraphQuerier = (*dag.Graph)(nil)

// dagText outputs the graph in styled text format.
func dagText(r *output.Renderer, graph GraphQuerier, levels [][]string) error {
	styles := r.Styles()

	r.Header(1, "Project Graph")

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, name := range level {
			deps := graph.DependenciesOf(name)
			dependents := graph.DependentsOf(name)

			r.Printf("  %s\n", styles.ProjectName.Render(name))
			if len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("after:"), strings.Join(deps, ", "))
			}
			if len(dependents) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("before:"), strings.Join(dependents, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d projects, %d dependencies", graph.ProjectCount(), graph.EdgeCount())))
	return nil
}

// dagMarkdown outputs the graph in markdown format.
func dagMarkdown(r *output.Renderer, graph GraphQuerier, levels [][]string) error {
	r.Println(output.FormatHeader(1, "Project Graph"))
	r.Println("")

	for i, level := range levels {
		levelName := fmt.Sprintf("Level %d", i)
		if i == 0 {
			levelName = "Level 0 (Roots)"
		}
		r.Println(output.FormatHeader(2, levelName))

		for _, name := range level {
			r.Printf("- %s\n", name)
			if deps := graph.DependenciesOf(name); len(deps) > 0 {
				r.Printf("  - after: %s\n", strings.Join(deps, ", "))
			}
			if dependents := graph.DependentsOf(name); len(dependents) > 0 {
				r.Printf("  - before: %s\n", strings.Join(dependents, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Projects", fmt.Sprintf("%d", graph.ProjectCount())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", graph.EdgeCount())))
	return nil
}

// dagJSON outputs the graph in JSON format.
func dagJSON(r *output.Renderer, graph GraphQuerier, levels [][]string) error {
	dagOutput := output.DAGOutput{
		Levels:        make([]output.DAGLevel, 0, len(levels)),
		TotalProjects: graph.ProjectCount(),
		TotalEdges:    graph.EdgeCount(),
	}

	for i, level := range levels {
		dagLevel := output.DAGLevel{
			Level:    i,
			Projects: make([]output.DAGNode, 0, len(level)),
		}
		for _, name := range level {
			dagLevel.Projects = append(dagLevel.Projects, output.DAGNode{
				Name:      name,
				DependsOn: nonNil(graph.DependenciesOf(name)),
				UsedBy:    nonNil(graph.DependentsOf(name)),
			})
		}
		dagOutput.Levels = append(dagOutput.Levels, dagLevel)
	}

	return r.JSON(dagOutput)
}
