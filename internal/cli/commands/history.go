package commands

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/leapbuild/internal/cli/output"
	"github.com/leapstack-labs/leapbuild/internal/state"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent evaluation runs",
		Long: `Show recent evaluation runs, newest first.

Pass a run id to see the outcome of every project evaluated in that run.`,
		Example: `  # Last 10 runs
  leapbuild history

  # Details of one run
  leapbuild history 7c9e6679-7425-40de-944b-e07fc1f90ae7`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 1 {
				return showRun(cmd, cmdCtx, args[0])
			}
			return listRuns(cmd, cmdCtx, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")

	return cmd
}

func listRuns(cmd *cobra.Command, cmdCtx *CommandContext, limit int) error {
	r := cmdCtx.Renderer

	runs, err := cmdCtx.Engine.History(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		out := output.HistoryOutput{Runs: make([]output.RunOutput, 0, len(runs))}
		for _, run := range runs {
			out.Runs = append(out.Runs, runToOutput(run, nil))
		}
		return r.JSON(out)
	}

	if len(runs) == 0 {
		r.Muted("No runs recorded yet")
		return nil
	}

	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			run.ID,
			string(run.Status),
			run.Environment,
			run.StartedAt.Local().Format(time.DateTime),
			runDuration(run),
		}
	}
	r.Table([]string{"Run", "Status", "Env", "Started", "Duration"}, rows)
	return nil
}

func showRun(cmd *cobra.Command, cmdCtx *CommandContext, id string) error {
	r := cmdCtx.Renderer

	result, err := cmdCtx.Engine.RunDetails(cmd.Context(), id)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(runToOutput(result.Run, result.Projects))
	}

	run := result.Run
	r.Header(1, "Run "+run.ID)
	r.Println(output.FormatKeyValue("Status", string(run.Status)))
	r.Println(output.FormatKeyValue("Environment", run.Environment))
	r.Println(output.FormatKeyValue("Started", run.StartedAt.Local().Format(time.DateTime)))
	r.Println(output.FormatKeyValue("Duration", runDuration(run)))
	if run.Error != "" {
		r.Println(output.FormatKeyValue("Error", run.Error))
	}
	r.Println("")

	for _, pr := range result.Projects {
		detail := fmt.Sprintf("%dms", pr.DurationMS)
		if pr.Error != "" {
			detail += ": " + pr.Error
		}
		r.StatusLine(pr.Project, string(pr.Status), detail)
	}
	return nil
}

func runDuration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
