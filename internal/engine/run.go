package engine

// run.go - Evaluation orchestration and history recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leapstack-labs/leapbuild/internal/dag"
	"github.com/leapstack-labs/leapbuild/internal/layout"
	"github.com/leapstack-labs/leapbuild/internal/scheduler"
	"github.com/leapstack-labs/leapbuild/internal/state"
)

// RunOptions narrows an evaluation.
type RunOptions struct {
	// Select limits evaluation to these projects and their upstream closure
	Select []string
	// Downstream also evaluates everything that evaluates after Select
	Downstream bool
}

// RunResult is the recorded outcome of an evaluation.
type RunResult struct {
	Run      *state.Run
	Projects []*state.ProjectRun
}

// Evaluate runs every planned project in topological order and records the
// run in the history store. On failure the result is still returned, with the
// *scheduler.EvaluationError as error.
func (e *Engine) Evaluate(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if e.store == nil {
		return nil, ErrNoHistory
	}
	plan, err := e.Selection(opts.Select, opts.Downstream)
	if err != nil {
		return nil, err
	}
	planned, err := plan.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.Info("starting run", "environment", e.environment, "projects", len(planned))

	run, err := e.store.CreateRun(ctx, e.environment)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("created run", "run_id", run.ID)

	runErr := e.execute(ctx, run.ID, planned, opts)

	// Bookkeeping outlives cancellation of the run itself.
	ctx = context.WithoutCancel(ctx)
	if runErr != nil {
		e.logger.Info("run failed", "run_id", run.ID, "error", runErr.Error())
		_ = e.store.CompleteRun(ctx, run.ID, state.RunStatusFailed, runErr.Error())
	} else {
		e.logger.Info("run completed", "run_id", run.ID)
		_ = e.store.CompleteRun(ctx, run.ID, state.RunStatusCompleted, "")
	}

	if e.historyKeep > 0 {
		if err := e.store.PruneRuns(ctx, e.historyKeep); err != nil {
			e.logger.Warn("failed to prune history", "error", err)
		}
	}

	result, err := e.RunDetails(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return result, runErr
}

func (e *Engine) execute(ctx context.Context, runID string, planned []string, opts RunOptions) error {
	if err := layout.Prepare(ctx, e.dirs, e.buildDir, planned); err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Config{
		Logger:   e.logger,
		Observer: &historyObserver{engine: e, runID: runID},
	})
	fn := e.evaluator()

	if len(opts.Select) == 0 {
		return sched.Evaluate(ctx, e.graph, fn)
	}

	targets := opts.Select
	if opts.Downstream {
		targets = e.graph.Affected(opts.Select)
	}
	wanted := make(map[string]bool, len(targets))
	for _, name := range targets {
		wanted[name] = true
	}
	for _, name := range planned {
		if !wanted[name] {
			continue
		}
		if err := sched.EvaluateProject(ctx, e.graph, name, fn); err != nil {
			return err
		}
	}
	return nil
}

// historyObserver writes one project run per finished evaluation.
type historyObserver struct {
	engine *Engine
	runID  string
	mu     sync.Mutex
}

func (o *historyObserver) Started(_ context.Context, p *dag.Project) {
	o.engine.logger.Info("evaluating project", "project", p.Name)
}

func (o *historyObserver) Finished(ctx context.Context, p *dag.Project, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pr := &state.ProjectRun{
		RunID:      o.runID,
		Project:    p.Name,
		OutputDir:  layout.Resolve(o.engine.buildDir, p.Name),
		Status:     state.ProjectRunStatusDone,
		StartedAt:  time.Now().Add(-elapsed),
		DurationMS: elapsed.Milliseconds(),
	}
	if err != nil {
		pr.Status = state.ProjectRunStatusFailed
		pr.Error = err.Error()
	}

	if recErr := o.engine.store.RecordProjectRun(context.WithoutCancel(ctx), pr); recErr != nil {
		o.engine.logger.Warn("failed to record project run", "project", p.Name, "error", recErr)
	}
}

// History returns the most recent runs, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]*state.Run, error) {
	if e.store == nil {
		return nil, ErrNoHistory
	}
	return e.store.ListRuns(ctx, limit)
}

// RunDetails returns a run and its project outcomes.
func (e *Engine) RunDetails(ctx context.Context, runID string) (*RunResult, error) {
	if e.store == nil {
		return nil, ErrNoHistory
	}
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	projects, err := e.store.GetProjectRuns(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunResult{Run: run, Projects: projects}, nil
}

// Planned returns the projects an evaluation with opts would touch, in order.
func (e *Engine) Planned(opts RunOptions) ([]string, error) {
	plan, err := e.Selection(opts.Select, opts.Downstream)
	if err != nil {
		return nil, err
	}
	return plan.TopologicalOrder()
}
