package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapbuild/internal/cli/output"
	"github.com/leapstack-labs/leapbuild/internal/engine"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all projects and their dependencies",
		Long: `List every declared project with its source directory, how it is
evaluated, and the projects it evaluates after.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List all projects
  leapbuild list

  # List projects as JSON
  leapbuild list --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewGraphContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	projects := collectProjects(cmdCtx.Engine)
	r := cmdCtx.Renderer

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(output.ListOutput{
			Name:     cmdCtx.Cfg.Name,
			BuildDir: cmdCtx.Engine.BuildDir(),
			Projects: projects,
		})
	case output.ModeMarkdown:
		return listMarkdown(r, cmdCtx.Cfg.Name, projects)
	default:
		return listText(r, cmdCtx.Cfg.ProjectRoot, projects)
	}
}

func collectProjects(eng *engine.Engine) []output.ProjectInfo {
	g := eng.Graph()
	order := eng.Order()
	projects := make([]output.ProjectInfo, 0, len(order))

	for _, name := range order {
		info := output.ProjectInfo{
			Name:      name,
			Kind:      "none",
			DependsOn: nonNil(g.DependenciesOf(name)),
			UsedBy:    nonNil(g.DependentsOf(name)),
		}
		if spec, ok := eng.Spec(name); ok {
			info.Dir = spec.Dir
			switch {
			case spec.Command != "":
				info.Kind = "command"
			case spec.Script != "":
				info.Kind = "script"
			}
		}
		projects = append(projects, info)
	}
	return projects
}

func listText(r *output.Renderer, root string, projects []output.ProjectInfo) error {
	styles := r.Styles()

	if len(projects) == 0 {
		r.Warning("No projects declared")
		return nil
	}

	r.Header(1, fmt.Sprintf("Projects (%d)", len(projects)))
	for _, p := range projects {
		r.Printf("  %s %s\n", styles.ProjectName.Render(p.Name), styles.Muted.Render("["+p.Kind+"]"))
		if p.Dir != "" {
			r.Printf("    %s %s\n", styles.Muted.Render("dir:"), displayPath(root, p.Dir))
		}
		if len(p.DependsOn) > 0 {
			r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(p.DependsOn, ", "))
		}
	}
	return nil
}

func listMarkdown(r *output.Renderer, name string, projects []output.ProjectInfo) error {
	r.Println(output.FormatHeader(1, "Projects"))
	r.Println("")
	r.Println(output.FormatKeyValue("Build", name))
	r.Println(output.FormatKeyValue("Total", fmt.Sprintf("%d", len(projects))))
	r.Println("")

	rows := make([][]string, len(projects))
	for i, p := range projects {
		rows[i] = []string{p.Name, p.Kind, strings.Join(p.DependsOn, ", ")}
	}
	if len(rows) > 0 {
		r.Table([]string{"Project", "Kind", "Depends On"}, rows)
	}
	return nil
}

// displayPath shortens path relative to root when it lives under it.
func displayPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
