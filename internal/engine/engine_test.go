package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapbuild/internal/clean"
	"github.com/leapstack-labs/leapbuild/internal/dag"
	"github.com/leapstack-labs/leapbuild/internal/scheduler"
	"github.com/leapstack-labs/leapbuild/internal/state"
	"github.com/leapstack-labs/leapbuild/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestEngine builds an engine over a temporary root with an in-memory store.
func newTestEngine(t *testing.T, projects []ProjectSpec, edges [][2]string) *Engine {
	t.Helper()
	root := t.TempDir()
	eng, err := New(Config{
		Name:        "test",
		ProjectRoot: root,
		BuildDir:    filepath.Join(root, "build"),
		Environment: "dev",
		Projects:    projects,
		Edges:       edges,
		Logger:      testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

// appCoreUtils is app -> core -> utils, every project appending its name to a
// shared log so the evaluation order is observable on disk.
func appCoreUtils(logFile string) []ProjectSpec {
	cmd := `echo "$LEAPBUILD_PROJECT" >> ` + logFile
	return []ProjectSpec{
		{Name: "app", Command: cmd},
		{Name: "core", Command: cmd},
		{Name: "utils", Command: cmd},
	}
}

var appCoreUtilsEdges = [][2]string{{"app", "core"}, {"core", "utils"}}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Fields(string(data))
}

func TestNew(t *testing.T) {
	eng := newTestEngine(t, appCoreUtils("/dev/null"), appCoreUtilsEdges)

	assert.Equal(t, []string{"utils", "core", "app"}, eng.Order())
	assert.Equal(t, [][]string{{"utils"}, {"core"}, {"app"}}, eng.Levels())
	assert.Equal(t, "dev", eng.Environment())
	assert.True(t, eng.Graph().Sealed())
	assert.Equal(t, "test", eng.Graph().RootInfo().Name)
}

func TestNew_GraphErrors(t *testing.T) {
	root := t.TempDir()
	base := Config{BuildDir: filepath.Join(root, "build")}

	t.Run("cycle", func(t *testing.T) {
		cfg := base
		cfg.Projects = []ProjectSpec{{Name: "a"}, {Name: "b"}}
		cfg.Edges = [][2]string{{"a", "b"}, {"b", "a"}}
		_, err := New(cfg)
		var cycleErr *dag.CycleDetectedError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, []string{"a", "b"}, cycleErr.Cycle)
	})

	t.Run("duplicate", func(t *testing.T) {
		cfg := base
		cfg.Projects = []ProjectSpec{{Name: "a"}, {Name: "a"}}
		_, err := New(cfg)
		assert.ErrorIs(t, err, dag.ErrDuplicateProject)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		cfg := base
		cfg.Projects = []ProjectSpec{{Name: "a"}}
		cfg.Edges = [][2]string{{"a", "ghost"}}
		_, err := New(cfg)
		assert.ErrorIs(t, err, dag.ErrUnknownProject)
		assert.ErrorContains(t, err, `project "a"`)
	})

	t.Run("missing build dir", func(t *testing.T) {
		_, err := New(Config{})
		assert.ErrorContains(t, err, "build directory is required")
	})
}

func TestEngine_Paths(t *testing.T) {
	eng := newTestEngine(t, appCoreUtils("/dev/null"), appCoreUtilsEdges)

	paths := eng.Paths()
	require.Len(t, paths, 3)
	assert.Equal(t, ProjectPath{Name: "utils", Dir: filepath.Join(eng.BuildDir(), "utils")}, paths[0])
	assert.Equal(t, "app", paths[2].Name)
}

func TestEngine_Evaluate(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "order.log")
	eng := newTestEngine(t, appCoreUtils(logFile), appCoreUtilsEdges)

	result, err := eng.Evaluate(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"utils", "core", "app"}, readLines(t, logFile))
	assert.Equal(t, state.RunStatusCompleted, result.Run.Status)
	require.Len(t, result.Projects, 3)
	for i, name := range []string{"utils", "core", "app"} {
		assert.Equal(t, name, result.Projects[i].Project)
		assert.Equal(t, state.ProjectRunStatusDone, result.Projects[i].Status)
		assert.DirExists(t, result.Projects[i].OutputDir)
	}
}

func TestEngine_EvaluateFailFast(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "order.log")
	projects := appCoreUtils(logFile)
	projects[1].Command = "exit 3" // core

	eng := newTestEngine(t, projects, appCoreUtilsEdges)

	result, err := eng.Evaluate(context.Background(), RunOptions{})
	require.Error(t, err)

	var evalErr *scheduler.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "core", evalErr.Project)

	var exitErr interface{ ExitCode() int }
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode())

	assert.Equal(t, []string{"utils"}, readLines(t, logFile), "app is never evaluated")

	require.NotNil(t, result)
	assert.Equal(t, state.RunStatusFailed, result.Run.Status)
	assert.Contains(t, result.Run.Error, `evaluate project "core"`)
	require.Len(t, result.Projects, 2)
	assert.Equal(t, state.ProjectRunStatusDone, result.Projects[0].Status)
	assert.Equal(t, state.ProjectRunStatusFailed, result.Projects[1].Status)
}

func TestEngine_CommandEnvironment(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "core")
	require.NoError(t, os.MkdirAll(srcDir, 0750))

	var stdout bytes.Buffer
	eng, err := New(Config{
		BuildDir:    filepath.Join(root, "build"),
		Environment: "prod",
		Stdout:      &stdout,
		Projects: []ProjectSpec{{
			Name:    "core",
			Dir:     srcDir,
			Command: `echo "$LEAPBUILD_PROJECT $LEAPBUILD_ENV $FLAVOR $(pwd)"; echo done > "$LEAPBUILD_BUILD_DIR/out.txt"`,
			Env:     map[string]string{"FLAVOR": "release", EnvProject: "spoofed"},
		}},
	})
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.Evaluate(context.Background(), RunOptions{})
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(srcDir)
	require.NoError(t, err)
	out := stdout.String()
	assert.True(t, strings.HasPrefix(out, "[core] core prod release "), out)
	assert.Contains(t, out, resolved)
	assert.FileExists(t, filepath.Join(root, "build", "core", "out.txt"))
}

func TestEngine_ScriptEvaluator(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"utils/build.star": `write_file("lib.txt", "utils-" + env)`,
		"core/build.star": `
lib = read_file("utils/lib.txt")
write_json("manifest.json", {"name": project.name, "deps": project.dependencies, "lib": lib})
print("packaged", project.name)
`,
	})

	var stdout bytes.Buffer
	eng, err := New(Config{
		BuildDir:    filepath.Join(root, "build"),
		Environment: "dev",
		Stdout:      &stdout,
		Projects: []ProjectSpec{
			{Name: "core", Dir: filepath.Join(root, "core"), Script: filepath.Join(root, "core", "build.star")},
			{Name: "utils", Dir: filepath.Join(root, "utils"), Script: filepath.Join(root, "utils", "build.star")},
		},
		Edges:  [][2]string{{"core", "utils"}},
		Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.Evaluate(context.Background(), RunOptions{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "build", "core", "manifest.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"core","deps":["utils"],"lib":"utils-dev"}`, string(data))
	assert.Equal(t, "[core] packaged core\n", stdout.String())
	assert.Equal(t, []string{filepath.Join(root, "core", "build.star"), filepath.Join(root, "utils", "build.star")}, eng.ScriptFiles())
}

func TestEngine_ScriptFailure(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"x/build.star": `fail("broken")`})

	eng := newTestEngine(t, []ProjectSpec{{Name: "x", Script: filepath.Join(root, "x/build.star")}}, nil)
	_, err := eng.Evaluate(context.Background(), RunOptions{})
	assert.ErrorContains(t, err, "broken")
	assert.ErrorContains(t, err, `evaluate project "x"`)
}

func TestEngine_EvaluateSelected(t *testing.T) {
	projects := []ProjectSpec{{Name: "app"}, {Name: "core"}, {Name: "docs"}, {Name: "utils"}}
	edges := [][2]string{{"app", "core"}, {"core", "utils"}}

	tests := []struct {
		name      string
		opts      RunOptions
		wantRun   []string
		wantErrIs error
	}{
		{
			name:    "select pulls upstream",
			opts:    RunOptions{Select: []string{"core"}},
			wantRun: []string{"utils", "core"},
		},
		{
			name:    "downstream adds dependents",
			opts:    RunOptions{Select: []string{"core"}, Downstream: true},
			wantRun: []string{"utils", "core", "app"},
		},
		{
			name:    "independent project",
			opts:    RunOptions{Select: []string{"docs"}},
			wantRun: []string{"docs"},
		},
		{
			name:      "unknown project",
			opts:      RunOptions{Select: []string{"ghost"}},
			wantErrIs: dag.ErrUnknownProject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t, projects, edges)

			planned, err := eng.Planned(tt.opts)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				_, err = eng.Evaluate(context.Background(), tt.opts)
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRun, planned)

			result, err := eng.Evaluate(context.Background(), tt.opts)
			require.NoError(t, err)
			var ran []string
			for _, pr := range result.Projects {
				ran = append(ran, pr.Project)
			}
			assert.Equal(t, tt.wantRun, ran)
		})
	}
}

func TestEngine_EvaluateCancelled(t *testing.T) {
	eng := newTestEngine(t, appCoreUtils("/dev/null"), appCoreUtilsEdges)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Evaluate(ctx, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)

	runs, err := eng.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "a run cancelled before it starts is not recorded")
}

func TestEngine_HistoryPrune(t *testing.T) {
	root := t.TempDir()
	eng, err := New(Config{
		BuildDir:    filepath.Join(root, "build"),
		StatePath:   filepath.Join(root, ".leapbuild", "state.db"),
		HistoryKeep: 2,
		Projects:    []ProjectSpec{{Name: "a"}},
	})
	require.NoError(t, err)
	defer eng.Close()

	var last *RunResult
	for i := 0; i < 3; i++ {
		last, err = eng.Evaluate(context.Background(), RunOptions{})
		require.NoError(t, err)
	}

	runs, err := eng.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, last.Run.ID, runs[0].ID)
	assert.FileExists(t, filepath.Join(root, ".leapbuild", "state.db"))

	details, err := eng.RunDetails(context.Background(), last.Run.ID)
	require.NoError(t, err)
	assert.Len(t, details.Projects, 1)

	_, err = eng.RunDetails(context.Background(), "missing")
	assert.ErrorContains(t, err, "run not found")
}

type failingRemover struct{}

func (failingRemover) RemoveAll(string) error { return errors.New("device busy") }

func TestEngine_Clean(t *testing.T) {
	eng := newTestEngine(t, appCoreUtils("/dev/null"), appCoreUtilsEdges)

	_, err := eng.Evaluate(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.DirExists(t, eng.BuildDir())

	require.NoError(t, eng.Clean())
	assert.NoDirExists(t, eng.BuildDir())
	assert.NoError(t, eng.Clean(), "cleaning a missing directory succeeds")

	root := t.TempDir()
	failing, err := New(Config{BuildDir: filepath.Join(root, "build"), Remover: failingRemover{}})
	require.NoError(t, err)
	defer failing.Close()

	err = failing.Clean()
	var cleanErr *clean.CleanError
	require.ErrorAs(t, err, &cleanErr)
	assert.Equal(t, filepath.Join(root, "build"), cleanErr.Path)
}

func TestLinePrefixer(t *testing.T) {
	var buf bytes.Buffer
	w := prefixWriter(&buf, "core")

	_, _ = w.Write([]byte("one\ntw"))
	_, _ = w.Write([]byte("o\nthree\n"))
	assert.Equal(t, "[core] one\n[core] two\n[core] three\n", buf.String())
}

func TestLinePrefixer_SharedWriter(t *testing.T) {
	root := t.TempDir()
	var buf bytes.Buffer
	eng, err := New(Config{
		BuildDir: filepath.Join(root, "build"),
		Projects: []ProjectSpec{{Name: "x", Command: `printf 'out'; printf 'err\n' >&2; echo done`}},
		Stdout:   &buf,
		Stderr:   &buf,
	})
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.Evaluate(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "[x] outerr\n[x] done\n", buf.String())
}

func TestSameWriter(t *testing.T) {
	var a, b bytes.Buffer
	tests := []struct {
		name string
		x, y io.Writer
		want bool
	}{
		{"same buffer", &a, &a, true},
		{"different buffers", &a, &b, false},
		{"different types", &a, io.Discard, false},
		{"nil", nil, nil, false},
		{"non-comparable", writerFunc(nil), writerFunc(nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameWriter(tt.x, tt.y))
		})
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestEngine_GraphOnly(t *testing.T) {
	root := t.TempDir()
	statePath := filepath.Join(root, ".leapbuild", "state.db")
	eng, err := New(Config{
		BuildDir:  filepath.Join(root, "build"),
		StatePath: statePath,
		GraphOnly: true,
		Projects:  appCoreUtils("/dev/null"),
		Edges:     appCoreUtilsEdges,
	})
	require.NoError(t, err)
	defer eng.Close()

	assert.Equal(t, []string{"utils", "core", "app"}, eng.Order())
	assert.Nil(t, eng.Store())

	_, err = eng.Evaluate(context.Background(), RunOptions{})
	require.ErrorIs(t, err, ErrNoHistory)
	_, err = eng.History(context.Background(), 10)
	require.ErrorIs(t, err, ErrNoHistory)
	_, err = eng.RunDetails(context.Background(), "any")
	require.ErrorIs(t, err, ErrNoHistory)

	assert.NoDirExists(t, filepath.Dir(statePath))
	assert.NoDirExists(t, eng.BuildDir())
}

func TestEngine_CleanLogsOnce(t *testing.T) {
	root := t.TempDir()
	var logs bytes.Buffer
	eng, err := New(Config{
		BuildDir:  filepath.Join(root, "build"),
		GraphOnly: true,
		Logger:    slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.Clean())
	assert.Equal(t, 1, strings.Count(logs.String(), "cleaning build directory"), logs.String())
}
