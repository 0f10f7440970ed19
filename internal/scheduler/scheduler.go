// Package scheduler evaluates the projects of a sealed graph one at a time,
// in topological order, invoking each project's evaluator exactly once.
//
// Evaluation is strictly sequential. The only cancellation point is before a
// run starts; once the first evaluator is invoked the run continues until it
// completes or an evaluator fails. A failure halts the scheduler: projects
// after the failing one are never evaluated, and projects already Done are
// not rolled back.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapbuild/internal/dag"
)

// EvaluatorFunc evaluates a single project.
type EvaluatorFunc func(ctx context.Context, p *dag.Project) error

// Observer is notified around every evaluator invocation.
type Observer interface {
	Started(ctx context.Context, p *dag.Project)
	Finished(ctx context.Context, p *dag.Project, elapsed time.Duration, err error)
}

// Config holds scheduler configuration.
type Config struct {
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Observer receives start/finish callbacks (optional)
	Observer Observer
}

// Scheduler tracks per-project evaluation state for a single run.
type Scheduler struct {
	mu       sync.Mutex
	states   map[string]State
	failed   *EvaluationError
	logger   *slog.Logger
	observer Observer
}

// New creates a scheduler with every project Pending.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		states:   make(map[string]State),
		logger:   logger,
		observer: cfg.Observer,
	}
}

// Evaluate invokes fn for every project of the sealed graph in topological
// order. Projects already Done are skipped.
func (s *Scheduler) Evaluate(ctx context.Context, g *dag.Graph, fn EvaluatorFunc) error {
	if err := s.halted(); err != nil {
		return err
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Debug("evaluating projects", "count", len(order))
	return s.evaluateAll(ctx, g, order, fn)
}

// EvaluateProject evaluates name after its upstream closure. It is a no-op
// when name is already Done, and it may be called from inside an evaluator
// to request that another project be evaluated first.
func (s *Scheduler) EvaluateProject(ctx context.Context, g *dag.Graph, name string, fn EvaluatorFunc) error {
	if err := s.halted(); err != nil {
		return err
	}
	if _, ok := g.Project(name); !ok {
		return &dag.UnknownProjectError{Name: name}
	}

	switch s.State(name) {
	case StateDone:
		return nil
	case StateInProgress:
		return &ReentrantEvaluationError{Project: name}
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}

	wanted := make(map[string]bool)
	wanted[name] = true
	for _, up := range g.Upstream(name) {
		wanted[up] = true
	}
	subset := make([]string, 0, len(wanted))
	for _, n := range order {
		if wanted[n] {
			subset = append(subset, n)
		}
	}
	return s.evaluateAll(ctx, g, subset, fn)
}

func (s *Scheduler) evaluateAll(ctx context.Context, g *dag.Graph, order []string, fn EvaluatorFunc) error {
	for _, name := range order {
		if err := s.evaluateOne(ctx, g, name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) evaluateOne(ctx context.Context, g *dag.Graph, name string, fn EvaluatorFunc) error {
	if failed := s.halted(); failed != nil {
		return failed
	}

	switch s.State(name) {
	case StateDone:
		s.logger.Debug("project already evaluated", "project", name)
		return nil
	case StateInProgress:
		return &ReentrantEvaluationError{Project: name}
	}

	p, ok := g.Project(name)
	if !ok {
		return &dag.UnknownProjectError{Name: name}
	}

	if err := s.transition(name, StatePending, StateInProgress); err != nil {
		return err
	}
	if s.observer != nil {
		s.observer.Started(ctx, p)
	}

	s.logger.Debug("evaluating project", "project", name)
	start := time.Now()
	// The lock is not held here: fn may call back into EvaluateProject.
	evalErr := fn(ctx, p)
	elapsed := time.Since(start)

	if s.observer != nil {
		s.observer.Finished(ctx, p, elapsed, evalErr)
	}

	if evalErr != nil {
		failure := &EvaluationError{Project: name, Cause: evalErr}
		s.mu.Lock()
		if s.failed == nil {
			s.failed = failure
		}
		failure = s.failed
		s.mu.Unlock()

		s.logger.Error("project evaluation failed", "project", name, "error", evalErr)
		return failure
	}

	// A nested request failed and fn swallowed the error. The project stays
	// InProgress like any other interrupted evaluation.
	if failed := s.halted(); failed != nil {
		return failed
	}

	if err := s.transition(name, StateInProgress, StateDone); err != nil {
		return err
	}
	s.logger.Debug("project evaluated", "project", name, "elapsed", elapsed)
	return nil
}

// State returns the current state of a project.
func (s *Scheduler) State(name string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(name)
}

// Snapshot returns a copy of every project state recorded so far.
// Projects never touched are absent and implicitly Pending.
func (s *Scheduler) Snapshot() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]State, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// Err returns the failure that halted the scheduler, if any.
func (s *Scheduler) Err() error {
	if err := s.halted(); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) halted() *EvaluationError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}
