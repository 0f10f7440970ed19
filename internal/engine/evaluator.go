package engine

// evaluator.go - Per-project evaluation: shell commands and Starlark scripts

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"reflect"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapbuild/internal/dag"
	"github.com/leapstack-labs/leapbuild/internal/layout"
	"github.com/leapstack-labs/leapbuild/internal/scheduler"
	starctx "github.com/leapstack-labs/leapbuild/internal/starlark"
)

// Environment variables exported to every project command.
const (
	EnvProject      = "LEAPBUILD_PROJECT"
	EnvBuildDir     = "LEAPBUILD_BUILD_DIR"
	EnvRootBuildDir = "LEAPBUILD_ROOT_BUILD_DIR"
	EnvEnvironment  = "LEAPBUILD_ENV"
)

// evaluator returns the callback the scheduler invokes once per project.
// A project declaring neither a command nor a script only gets its output
// directory.
func (e *Engine) evaluator() scheduler.EvaluatorFunc {
	return func(ctx context.Context, p *dag.Project) error {
		spec, ok := p.Data.(*ProjectSpec)
		if !ok {
			return fmt.Errorf("project %q has no declaration", p.Name)
		}

		switch {
		case spec.Command != "":
			return e.runCommand(ctx, p, spec)
		case spec.Script != "":
			return e.runScript(ctx, p, spec)
		default:
			e.logger.Debug("nothing to evaluate", "project", p.Name)
			return nil
		}
	}
}

func (e *Engine) runCommand(ctx context.Context, p *dag.Project, spec *ProjectSpec) error {
	buildDir := layout.Resolve(e.buildDir, p.Name)

	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command) //nolint:gosec // commands come from the build declaration
	cmd.Dir = workDir(spec.Dir, buildDir)
	cmd.Env = append(os.Environ(), e.projectEnv(p, spec)...)
	cmd.Stdout = prefixWriter(e.stdout, p.Name)
	cmd.Stderr = cmd.Stdout
	if !sameWriter(e.stdout, e.stderr) {
		cmd.Stderr = prefixWriter(e.stderr, p.Name)
	}

	e.logger.Debug("running command", "project", p.Name, "dir", cmd.Dir, "command", spec.Command)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func (e *Engine) runScript(ctx context.Context, p *dag.Project, spec *ProjectSpec) error {
	info := &starctx.ProjectInfo{
		Name:         p.Name,
		Dir:          spec.Dir,
		BuildDir:     layout.Resolve(e.buildDir, p.Name),
		RootBuildDir: e.buildDir,
		Dependencies: p.Dependencies(),
		Vars:         spec.Env,
	}

	out := prefixWriter(e.stdout, p.Name)
	sc := starctx.NewContext(info, e.environment, starctx.WithPrint(func(msg string) {
		_, _ = io.WriteString(out, msg+"\n")
	}))

	e.logger.Debug("running script", "project", p.Name, "script", spec.Script)
	if _, err := sc.ExecFile(ctx, spec.Script, nil); err != nil {
		return err
	}
	return nil
}

// projectEnv returns the variables added to a command's environment,
// declared variables first so the reserved ones cannot be overridden.
func (e *Engine) projectEnv(p *dag.Project, spec *ProjectSpec) []string {
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+4)
	for _, k := range keys {
		env = append(env, k+"="+spec.Env[k])
	}
	return append(env,
		EnvProject+"="+p.Name,
		EnvBuildDir+"="+layout.Resolve(e.buildDir, p.Name),
		EnvRootBuildDir+"="+e.buildDir,
		EnvEnvironment+"="+e.environment,
	)
}

// workDir prefers the project source directory and falls back to its build
// directory when the source directory does not exist.
func workDir(dir, buildDir string) string {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return buildDir
}

// prefixWriter tags every line with the project name.
func prefixWriter(w io.Writer, project string) io.Writer {
	if w == io.Discard {
		return w
	}
	return &linePrefixer{w: w, prefix: "[" + project + "] "}
}

// sameWriter reports whether a and b are the same destination. Writers of
// non-comparable types are never considered the same.
func sameWriter(a, b io.Writer) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}

type linePrefixer struct {
	w       io.Writer
	prefix  string
	midLine bool
}

func (l *linePrefixer) Write(p []byte) (int, error) {
	var b strings.Builder
	for _, line := range strings.SplitAfter(string(p), "\n") {
		if line == "" {
			continue
		}
		if !l.midLine {
			b.WriteString(l.prefix)
		}
		b.WriteString(line)
		l.midLine = !strings.HasSuffix(line, "\n")
	}
	if _, err := io.WriteString(l.w, b.String()); err != nil {
		return 0, err
	}
	return len(p), nil
}
