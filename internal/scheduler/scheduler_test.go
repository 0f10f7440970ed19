package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leapstack-labs/leapbuild/internal/dag"
	"github.com/leapstack-labs/leapbuild/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedGraph(t *testing.T, projects []string, edges [][2]string) *dag.Graph {
	t.Helper()
	g := dag.NewGraph(&dag.Root{Name: "root"})
	for _, p := range projects {
		require.NoError(t, g.AddProject(p, nil))
	}
	for _, e := range edges {
		require.NoError(t, g.AddDependency(e[0], e[1]))
	}
	require.NoError(t, g.Seal())
	return g
}

// recorder collects the order evaluators were invoked in.
type recorder struct {
	calls  []string
	failOn string
}

func (r *recorder) eval(_ context.Context, p *dag.Project) error {
	r.calls = append(r.calls, p.Name)
	if p.Name == r.failOn {
		return errors.New("boom")
	}
	return nil
}

func newTestScheduler(t *testing.T) *Scheduler {
	return New(Config{Logger: testutil.NewTestLogger(t)})
}

func TestScheduler_EvaluatesInOrder(t *testing.T) {
	g := sealedGraph(t,
		[]string{"app", "core", "utils"},
		[][2]string{{"app", "core"}, {"core", "utils"}},
	)
	s := newTestScheduler(t)
	rec := &recorder{}

	require.NoError(t, s.Evaluate(context.Background(), g, rec.eval))
	assert.Equal(t, []string{"utils", "core", "app"}, rec.calls)

	for _, name := range []string{"app", "core", "utils"} {
		assert.Equal(t, StateDone, s.State(name))
	}
}

func TestScheduler_FailFast(t *testing.T) {
	g := sealedGraph(t,
		[]string{"app", "core", "docs", "utils"},
		[][2]string{{"app", "core"}, {"core", "utils"}},
	)
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"docs", "utils", "core", "app"}, order)

	s := newTestScheduler(t)
	rec := &recorder{failOn: "utils"}

	err = s.Evaluate(context.Background(), g, rec.eval)
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "utils", evalErr.Project)
	assert.EqualError(t, evalErr.Cause, "boom")

	// Nothing ordered after the failing project is evaluated.
	assert.Equal(t, []string{"docs", "utils"}, rec.calls)
	assert.Equal(t, StateDone, s.State("docs"))
	assert.Equal(t, StateInProgress, s.State("utils"))
	assert.Equal(t, StatePending, s.State("core"))
	assert.Equal(t, StatePending, s.State("app"))
}

func TestScheduler_HaltedAfterFailure(t *testing.T) {
	g := sealedGraph(t, []string{"a", "b"}, nil)
	s := newTestScheduler(t)
	rec := &recorder{failOn: "a"}

	first := s.Evaluate(context.Background(), g, rec.eval)
	require.Error(t, first)

	second := s.Evaluate(context.Background(), g, rec.eval)
	assert.Same(t, first, second)
	assert.Same(t, first, s.Err())
	assert.Equal(t, []string{"a"}, rec.calls, "halted scheduler never invokes the evaluator")

	assert.Equal(t, first, s.EvaluateProject(context.Background(), g, "b", rec.eval))
}

func TestScheduler_Idempotent(t *testing.T) {
	g := sealedGraph(t,
		[]string{"app", "core"},
		[][2]string{{"app", "core"}},
	)
	s := newTestScheduler(t)
	rec := &recorder{}

	require.NoError(t, s.Evaluate(context.Background(), g, rec.eval))
	require.NoError(t, s.Evaluate(context.Background(), g, rec.eval))
	require.NoError(t, s.EvaluateProject(context.Background(), g, "core", rec.eval))

	assert.Equal(t, []string{"core", "app"}, rec.calls)
	assert.NoError(t, s.Err())
}

func TestScheduler_EvaluateProjectPullsUpstream(t *testing.T) {
	g := sealedGraph(t,
		[]string{"app", "core", "utils", "docs"},
		[][2]string{{"app", "core"}, {"core", "utils"}},
	)
	s := newTestScheduler(t)
	rec := &recorder{}

	require.NoError(t, s.EvaluateProject(context.Background(), g, "core", rec.eval))
	assert.Equal(t, []string{"utils", "core"}, rec.calls)
	assert.Equal(t, StatePending, s.State("docs"))

	require.NoError(t, s.Evaluate(context.Background(), g, rec.eval))
	assert.Equal(t, []string{"utils", "core", "docs", "app"}, rec.calls)

	err := s.EvaluateProject(context.Background(), g, "ghost", rec.eval)
	assert.ErrorIs(t, err, dag.ErrUnknownProject)
}

// TestScheduler_EvaluateAfterFromEvaluator models a project that asks for
// another project to be evaluated first from inside its own evaluator.
func TestScheduler_EvaluateAfterFromEvaluator(t *testing.T) {
	g := sealedGraph(t,
		[]string{"app", "lib"},
		[][2]string{{"lib", "app"}},
	)
	s := newTestScheduler(t)
	var calls []string

	var fn EvaluatorFunc
	fn = func(ctx context.Context, p *dag.Project) error {
		calls = append(calls, p.Name)
		if p.Name == "lib" {
			// Redundant with the declared edge: app is already Done.
			return s.EvaluateProject(ctx, g, "app", fn)
		}
		return nil
	}

	require.NoError(t, s.Evaluate(context.Background(), g, fn))
	assert.Equal(t, []string{"app", "lib"}, calls)
}

func TestScheduler_SwallowedNestedFailureHalts(t *testing.T) {
	g := sealedGraph(t, []string{"a", "b", "c", "z"}, nil)
	s := newTestScheduler(t)
	var calls []string

	var fn EvaluatorFunc
	fn = func(ctx context.Context, p *dag.Project) error {
		calls = append(calls, p.Name)
		switch p.Name {
		case "b":
			// The nested failure is ignored here on purpose.
			_ = s.EvaluateProject(ctx, g, "z", fn)
		case "z":
			return errors.New("z failed")
		}
		return nil
	}

	err := s.Evaluate(context.Background(), g, fn)
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "z", evalErr.Project)
	assert.EqualError(t, evalErr.Cause, "z failed")
	assert.Equal(t, []string{"a", "b", "z"}, calls)
	assert.Equal(t, s.Err(), err)

	assert.Equal(t, StateDone, s.State("a"))
	assert.Equal(t, StateInProgress, s.State("b"))
	assert.Equal(t, StatePending, s.State("c"))

	// Later requests report the same failure without evaluating anything.
	assert.Equal(t, err, s.EvaluateProject(context.Background(), g, "c", fn))
	assert.Equal(t, []string{"a", "b", "z"}, calls)
}

func TestScheduler_ReentrantRequestFails(t *testing.T) {
	g := sealedGraph(t, []string{"app"}, nil)
	s := newTestScheduler(t)

	var fn EvaluatorFunc
	fn = func(ctx context.Context, p *dag.Project) error {
		return s.EvaluateProject(ctx, g, p.Name, fn)
	}

	err := s.Evaluate(context.Background(), g, fn)
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)

	var reentrant *ReentrantEvaluationError
	require.ErrorAs(t, err, &reentrant)
	assert.Equal(t, "app", reentrant.Project)
}

func TestScheduler_CancelledBeforeStart(t *testing.T) {
	g := sealedGraph(t, []string{"a"}, nil)
	s := newTestScheduler(t)
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Evaluate(ctx, g, rec.eval)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.calls)
}

func TestScheduler_RequiresSealedGraph(t *testing.T) {
	g := dag.NewGraph(nil)
	require.NoError(t, g.AddProject("a", nil))

	s := newTestScheduler(t)
	err := s.Evaluate(context.Background(), g, (&recorder{}).eval)
	assert.ErrorIs(t, err, dag.ErrNotSealed)
}

type observerStub struct {
	started  []string
	finished []string
	errs     []error
}

func (o *observerStub) Started(_ context.Context, p *dag.Project) {
	o.started = append(o.started, p.Name)
}

func (o *observerStub) Finished(_ context.Context, p *dag.Project, _ time.Duration, err error) {
	o.finished = append(o.finished, p.Name)
	o.errs = append(o.errs, err)
}

func TestScheduler_Observer(t *testing.T) {
	g := sealedGraph(t, []string{"a", "b", "c"}, nil)
	obs := &observerStub{}
	s := New(Config{Logger: testutil.NewTestLogger(t), Observer: obs})

	err := s.Evaluate(context.Background(), g, (&recorder{failOn: "b"}).eval)
	require.Error(t, err)

	assert.Equal(t, []string{"a", "b"}, obs.started)
	assert.Equal(t, []string{"a", "b"}, obs.finished)
	assert.NoError(t, obs.errs[0])
	assert.EqualError(t, obs.errs[1], "boom")
}

func TestScheduler_Snapshot(t *testing.T) {
	g := sealedGraph(t, []string{"a", "b"}, nil)
	s := newTestScheduler(t)
	require.NoError(t, s.EvaluateProject(context.Background(), g, "a", (&recorder{}).eval))

	snap := s.Snapshot()
	assert.Equal(t, map[string]State{"a": StateDone}, snap)

	snap["a"] = StatePending
	assert.Equal(t, StateDone, s.State("a"), "snapshot is a copy")
	assert.True(t, IsTerminal(s.State("a")))
	assert.False(t, IsTerminal(s.State("b")))
}

func TestScheduler_TransitionRules(t *testing.T) {
	s := newTestScheduler(t)

	require.NoError(t, s.transition("x", StatePending, StateInProgress))
	assert.Error(t, s.transition("x", StatePending, StateInProgress), "stale from-state")
	assert.Error(t, s.transition("x", StateInProgress, StatePending), "no backward step")
	require.NoError(t, s.transition("x", StateInProgress, StateDone))
	assert.Error(t, s.transition("x", StateDone, StateInProgress), "done is terminal")
}
