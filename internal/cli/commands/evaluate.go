package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapbuild/internal/cli/output"
	"github.com/leapstack-labs/leapbuild/internal/engine"
	"github.com/leapstack-labs/leapbuild/internal/state"
	"github.com/spf13/cobra"
)

// EvaluateOptions holds options for the evaluate command.
type EvaluateOptions struct {
	Select     []string
	Downstream bool
	Watch      bool
	Debounce   time.Duration
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand() *cobra.Command {
	opts := &EvaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate [project...]",
		Short: "Evaluate all projects or specific projects",
		Long: `Evaluate projects in dependency order, one at a time.

By default every project is evaluated. Naming projects (or using --select)
evaluates those projects and everything they evaluate after. Use --downstream
to also evaluate projects that evaluate after the selection.

Evaluation stops at the first failing project; projects already evaluated
keep their output. Every run is recorded in the history database.`,
		Example: `  # Evaluate everything
  leapbuild evaluate

  # Evaluate core and its dependencies
  leapbuild evaluate core

  # Evaluate core, its dependencies and its dependents
  leapbuild evaluate --select core --downstream

  # Re-evaluate whenever leapbuild.yaml or a build script changes
  leapbuild evaluate --watch`,
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Select = parseSelection(args, opts.Select)
			return runEvaluate(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Select, "select", "s", nil, "Projects to evaluate (comma-separated)")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", false, "Include projects evaluating after the selection")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-evaluate when the configuration or a build script changes")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 300*time.Millisecond, "Quiet period before a change triggers evaluation")

	return cmd
}

func runEvaluate(cmd *cobra.Command, opts *EvaluateOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runOpts := engine.RunOptions{Select: opts.Select, Downstream: opts.Downstream}
	evalErr := evaluateOnce(ctx, cmdCtx.Engine, cmdCtx.Renderer, runOpts)

	if !opts.Watch {
		return evalErr
	}
	return watchAndEvaluate(ctx, cmd, cmdCtx, runOpts, opts.Debounce)
}

// evaluateOnce runs one evaluation and renders its outcome.
func evaluateOnce(ctx context.Context, eng *engine.Engine, r *output.Renderer, opts engine.RunOptions) error {
	start := time.Now()

	if r.EffectiveMode() != output.ModeJSON {
		if planned, err := eng.Planned(opts); err == nil {
			r.Muted(fmt.Sprintf("Evaluating %d project(s) in %s", len(planned), eng.Environment()))
		}
	}

	result, err := eng.Evaluate(ctx, opts)
	if result == nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if jsonErr := r.JSON(runToOutput(result.Run, result.Projects)); jsonErr != nil {
			return jsonErr
		}
		return err
	}

	for _, pr := range result.Projects {
		detail := fmt.Sprintf("%dms", pr.DurationMS)
		if pr.Error != "" {
			detail += ": " + pr.Error
		}
		r.StatusLine(pr.Project, string(pr.Status), detail)
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		r.Println("")
		r.Println(r.Styles().Error.Render(fmt.Sprintf("Run %s failed after %s", result.Run.ID, elapsed)))
		return err
	}
	r.Println("")
	r.Success(fmt.Sprintf("Run %s completed in %s", result.Run.ID, elapsed))
	return nil
}

func runToOutput(run *state.Run, projects []*state.ProjectRun) output.RunOutput {
	out := output.RunOutput{
		ID:          run.ID,
		Environment: run.Environment,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
	for _, pr := range projects {
		out.Projects = append(out.Projects, output.ProjectRunInfo{
			Project:    pr.Project,
			Status:     string(pr.Status),
			OutputDir:  pr.OutputDir,
			DurationMS: pr.DurationMS,
			Error:      pr.Error,
		})
	}
	return out
}
