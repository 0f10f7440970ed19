// Package dag provides the project graph used to order subproject evaluation.
// It supports cycle detection at seal time, deterministic topological ordering,
// and read-only queries over the sealed structure.
package dag

import (
	"container/heap"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Root is the shared, read-only description of the build every project
// belongs to.
type Root struct {
	// Name of the root build
	Name string
	// Dir is the directory the build was declared in
	Dir string
}

// Project is a single subproject in the graph.
type Project struct {
	// Name is the unique identifier of the project
	Name string
	// Data holds caller-owned project settings
	Data any

	root *Root
	deps []string
}

// Root returns the build the project belongs to.
func (p *Project) Root() *Root {
	return p.root
}

// Dependencies returns the projects this project evaluates after, sorted.
func (p *Project) Dependencies() []string {
	return slices.Clone(p.deps)
}

// Graph holds projects and "evaluates after" edges.
// An edge from A to B means A evaluates after B.
//
// A graph is mutable until Seal succeeds; afterwards it is immutable and safe
// for any number of concurrent readers.
type Graph struct {
	mu         sync.RWMutex
	root       *Root
	projects   map[string]*Project
	deps       map[string][]string // project -> projects it evaluates after
	dependents map[string][]string // project -> projects evaluating after it
	sealed     bool
	order      []string
}

// NewGraph creates an empty graph for the given root.
func NewGraph(root *Root) *Graph {
	if root == nil {
		root = &Root{}
	}
	return &Graph{
		root:       root,
		projects:   make(map[string]*Project),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// ValidateName reports whether name can identify a project.
// Names become a single path component of the project's output directory.
func ValidateName(name string) error {
	switch {
	case name == "":
		return &InvalidProjectNameError{Name: name, Reason: "name is empty"}
	case name == "." || name == "..":
		return &InvalidProjectNameError{Name: name, Reason: "name is a relative path element"}
	case strings.ContainsAny(name, `/\`):
		return &InvalidProjectNameError{Name: name, Reason: "name contains a path separator"}
	case strings.ContainsRune(name, 0):
		return &InvalidProjectNameError{Name: name, Reason: "name contains a NUL byte"}
	}
	return nil
}

// AddProject registers a project.
func (g *Graph) AddProject(name string, data any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sealed {
		return &GraphSealedError{Op: "add project"}
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, exists := g.projects[name]; exists {
		return &DuplicateProjectError{Name: name}
	}

	g.projects[name] = &Project{Name: name, Data: data, root: g.root}
	g.deps[name] = []string{}
	g.dependents[name] = []string{}
	return nil
}

// AddDependency records that from evaluates after to.
// Repeated declarations of the same edge are recorded once.
func (g *Graph) AddDependency(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sealed {
		return &GraphSealedError{Op: "add dependency"}
	}
	if _, exists := g.projects[from]; !exists {
		return &UnknownProjectError{Name: from}
	}
	if _, exists := g.projects[to]; !exists {
		return &UnknownProjectError{Name: to}
	}

	g.deps[from] = insertSorted(g.deps[from], to)
	g.dependents[to] = insertSorted(g.dependents[to], from)
	return nil
}

// Seal validates acyclicity and freezes the graph. Sealing an already sealed
// graph is a no-op.
func (g *Graph) Seal() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sealed {
		return nil
	}
	if cycle := g.findCycle(); cycle != nil {
		return &CycleDetectedError{Cycle: cycle}
	}

	g.order = g.kahnOrder()
	for name, p := range g.projects {
		p.deps = slices.Clone(g.deps[name])
	}
	g.sealed = true
	return nil
}

// Sealed reports whether Seal has succeeded.
func (g *Graph) Sealed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sealed
}

// RootInfo returns the root shared by all projects.
func (g *Graph) RootInfo() *Root {
	return g.root
}

// TopologicalOrder returns project names so that every project follows the
// projects it evaluates after. Unconstrained projects appear in ascending
// name order.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.sealed {
		return nil, &NotSealedError{Op: "topological order"}
	}
	return slices.Clone(g.order), nil
}

// findCycle runs a depth-first traversal tracking the recursion stack.
// Projects and their dependencies are visited in ascending name order so the
// reported cycle is stable.
func (g *Graph) findCycle() []string {
	visited := make(map[string]bool, len(g.projects))
	onStack := make(map[string]bool)
	var stack []string
	var cycle []string

	var dfs func(name string) bool
	dfs = func(name string) bool {
		visited[name] = true
		onStack[name] = true
		stack = append(stack, name)

		for _, dep := range g.deps[name] {
			if onStack[dep] {
				start := slices.Index(stack, dep)
				cycle = slices.Clone(stack[start:])
				return true
			}
			if !visited[dep] {
				if dfs(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		onStack[name] = false
		return false
	}

	for _, name := range g.sortedNames() {
		if !visited[name] && dfs(name) {
			return cycle
		}
	}
	return nil
}

// kahnOrder computes the topological order with a min-heap ready queue.
func (g *Graph) kahnOrder() []string {
	indeg := make(map[string]int, len(g.projects))
	ready := &nameHeap{}
	for name := range g.projects {
		indeg[name] = len(g.deps[name])
		if indeg[name] == 0 {
			heap.Push(ready, name)
		}
	}

	order := make([]string, 0, len(g.projects))
	for ready.Len() > 0 {
		name := heap.Pop(ready).(string)
		order = append(order, name)
		for _, dependent := range g.dependents[name] {
			indeg[dependent]--
			if indeg[dependent] == 0 {
				heap.Push(ready, dependent)
			}
		}
	}
	return order
}

// Project returns a project by name.
func (g *Graph) Project(name string) (*Project, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.projects[name]
	return p, ok
}

// Projects returns all projects sorted by name.
func (g *Graph) Projects() []*Project {
	g.mu.RLock()
	defer g.mu.RUnlock()

	projects := make([]*Project, 0, len(g.projects))
	for _, name := range g.sortedNames() {
		projects = append(projects, g.projects[name])
	}
	return projects
}

// DependenciesOf returns the projects name evaluates after.
func (g *Graph) DependenciesOf(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.deps[name])
}

// DependentsOf returns the projects that evaluate after name.
func (g *Graph) DependentsOf(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.dependents[name])
}

// ProjectCount returns the number of projects in the graph.
func (g *Graph) ProjectCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.projects)
}

// EdgeCount returns the number of dependency edges in the graph.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, deps := range g.deps {
		count += len(deps)
	}
	return count
}

// ExecutionLevels groups projects by depth.
// Level 0 holds projects with no dependencies; a project at level N only
// depends on projects at levels below N.
func (g *Graph) ExecutionLevels() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.sealed {
		return nil, &NotSealedError{Op: "execution levels"}
	}

	assigned := make(map[string]int, len(g.order))
	var levels [][]string
	// Order guarantees dependencies are assigned before their dependents.
	for _, name := range g.order {
		level := 0
		for _, dep := range g.deps[name] {
			if assigned[dep]+1 > level {
				level = assigned[dep] + 1
			}
		}
		assigned[name] = level
		for len(levels) <= level {
			levels = append(levels, []string{})
		}
		levels[level] = append(levels[level], name)
	}

	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Affected returns the given projects plus everything downstream of them.
// Unknown names are ignored.
func (g *Graph) Affected(names []string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	affected := make(map[string]bool)
	var mark func(name string)
	mark = func(name string) {
		if affected[name] {
			return
		}
		affected[name] = true
		for _, dependent := range g.dependents[name] {
			mark(dependent)
		}
	}

	for _, name := range names {
		if _, ok := g.projects[name]; ok {
			mark(name)
		}
	}
	return sortedKeys(affected)
}

// Upstream returns every project name transitively evaluates after.
func (g *Graph) Upstream(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	upstream := make(map[string]bool)
	var mark func(n string)
	mark = func(n string) {
		for _, dep := range g.deps[n] {
			if !upstream[dep] {
				upstream[dep] = true
				mark(dep)
			}
		}
	}
	mark(name)
	return sortedKeys(upstream)
}

// Roots returns projects with no dependencies.
func (g *Graph) Roots() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var roots []string
	for _, name := range g.sortedNames() {
		if len(g.deps[name]) == 0 {
			roots = append(roots, name)
		}
	}
	return roots
}

// Leaves returns projects nothing else evaluates after.
func (g *Graph) Leaves() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var leaves []string
	for _, name := range g.sortedNames() {
		if len(g.dependents[name]) == 0 {
			leaves = append(leaves, name)
		}
	}
	return leaves
}

// Subgraph returns a new sealed graph holding only the named projects and the
// edges between them.
func (g *Graph) Subgraph(names []string) (*Graph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sub := NewGraph(g.root)
	include := make(map[string]bool, len(names))
	for _, name := range names {
		p, ok := g.projects[name]
		if !ok {
			return nil, &UnknownProjectError{Name: name}
		}
		if include[name] {
			continue
		}
		include[name] = true
		if err := sub.AddProject(name, p.Data); err != nil {
			return nil, err
		}
	}

	for name := range include {
		for _, dep := range g.deps[name] {
			if include[dep] {
				if err := sub.AddDependency(name, dep); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := sub.Seal(); err != nil {
		return nil, err
	}
	return sub, nil
}

func (g *Graph) sortedNames() []string {
	names := make([]string, 0, len(g.projects))
	for name := range g.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func insertSorted(list []string, s string) []string {
	i, found := slices.BinarySearch(list, s)
	if found {
		return list
	}
	return slices.Insert(list, i, s)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type nameHeap []string

func (h nameHeap) Len() int           { return len(h) }
func (h nameHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h nameHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nameHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *nameHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
