// Package config provides shared project declaration types for leapbuild.
// It is decoupled from CLI concerns so the engine can consume declarations
// without importing flag or file loading code.
package config

import (
	"sort"
	"strings"
)

// ProjectConfig declares a single subproject.
type ProjectConfig struct {
	Name string `koanf:"name"`
	// Dir is the project source directory (default: <project root>/<name>)
	Dir       string   `koanf:"dir"`
	DependsOn []string `koanf:"depends_on"`
	// Command is run through the shell to evaluate the project
	Command string `koanf:"command"`
	// Script is a Starlark file evaluated instead of Command
	Script string            `koanf:"script"`
	Env    map[string]string `koanf:"env"`
}

// NormalizeProjectName strips the Gradle-style leading ':' from a project
// path and surrounding whitespace.
func NormalizeProjectName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), ":")
}

// DependencyEdges returns every declared "evaluates after" edge as
// (from, to) pairs, sorted. Per-project depends_on and the global
// evaluationDependsOn list both contribute; duplicates are merged.
func DependencyEdges(projects []ProjectConfig, evaluationDependsOn []string) [][2]string {
	seen := make(map[[2]string]bool)
	var edges [][2]string
	add := func(from, to string) {
		e := [2]string{from, to}
		if from == "" || to == "" || seen[e] {
			return
		}
		seen[e] = true
		edges = append(edges, e)
	}

	for _, p := range projects {
		for _, dep := range p.DependsOn {
			add(p.Name, dep)
		}
	}
	for _, target := range evaluationDependsOn {
		for _, p := range projects {
			// A project never evaluates after itself through the global list.
			if p.Name != target {
				add(p.Name, target)
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}
