package engine

// graph.go - Project graph construction and read-only views

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapbuild/internal/dag"
	"github.com/leapstack-labs/leapbuild/internal/layout"
)

// buildGraph declares every project, then every edge, then seals.
func buildGraph(cfg Config) (*dag.Graph, map[string]*ProjectSpec, error) {
	g := dag.NewGraph(&dag.Root{Name: cfg.Name, Dir: cfg.ProjectRoot})
	specs := make(map[string]*ProjectSpec, len(cfg.Projects))

	for i := range cfg.Projects {
		spec := &cfg.Projects[i]
		if err := g.AddProject(spec.Name, spec); err != nil {
			return nil, nil, err
		}
		specs[spec.Name] = spec
	}

	for _, edge := range cfg.Edges {
		if err := g.AddDependency(edge[0], edge[1]); err != nil {
			return nil, nil, fmt.Errorf("project %q: %w", edge[0], err)
		}
	}

	if err := g.Seal(); err != nil {
		return nil, nil, err
	}
	return g, specs, nil
}

// Order returns the evaluation order of every project.
func (e *Engine) Order() []string {
	order, _ := e.graph.TopologicalOrder()
	return order
}

// Levels groups projects into levels whose members depend only on earlier levels.
func (e *Engine) Levels() [][]string {
	levels, _ := e.graph.ExecutionLevels()
	return levels
}

// ProjectPath pairs a project with its output directory.
type ProjectPath struct {
	Name string `json:"name"`
	Dir  string `json:"dir"`
}

// Paths returns the output directory of every project, in evaluation order.
func (e *Engine) Paths() []ProjectPath {
	order := e.Order()
	paths := make([]ProjectPath, len(order))
	for i, name := range order {
		paths[i] = ProjectPath{Name: name, Dir: layout.Resolve(e.buildDir, name)}
	}
	return paths
}

// Spec returns the declaration of a project.
func (e *Engine) Spec(name string) (*ProjectSpec, bool) {
	spec, ok := e.specs[name]
	return spec, ok
}

// Selection returns the sealed subgraph a selective evaluation would touch:
// the selected projects, their upstream closure and, with downstream set,
// every project that transitively evaluates after them.
func (e *Engine) Selection(selected []string, downstream bool) (*dag.Graph, error) {
	if len(selected) == 0 {
		return e.graph, nil
	}
	for _, name := range selected {
		if _, ok := e.graph.Project(name); !ok {
			return nil, &dag.UnknownProjectError{Name: name}
		}
	}

	targets := selected
	if downstream {
		targets = e.graph.Affected(selected)
	}

	names := slices.Clone(targets)
	for _, name := range targets {
		names = append(names, e.graph.Upstream(name)...)
	}
	slices.Sort(names)
	return e.graph.Subgraph(slices.Compact(names))
}

// ScriptFiles returns every build script referenced by a project, sorted.
func (e *Engine) ScriptFiles() []string {
	var files []string
	for _, spec := range e.specs {
		if spec.Script != "" {
			files = append(files, spec.Script)
		}
	}
	slices.Sort(files)
	return files
}
