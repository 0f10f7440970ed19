// Package config provides configuration management for the leapbuild CLI.
package config

import sharedcfg "github.com/leapstack-labs/leapbuild/internal/config"

// Config holds all CLI configuration options.
type Config struct {
	// Name of the root build
	Name string `koanf:"name"`
	// BuildDir is the root build-output directory
	BuildDir string `koanf:"build_dir"`
	// StatePath is the SQLite evaluation history database
	StatePath    string `koanf:"state_path"`
	Environment  string `koanf:"environment"`
	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`
	// HistoryKeep is how many runs the history store retains
	HistoryKeep int `koanf:"history_keep"`
	// EvaluationDependsOn lists projects every other project evaluates after
	EvaluationDependsOn []string        `koanf:"evaluation_depends_on"`
	Projects            []ProjectConfig `koanf:"projects"`

	// ProjectRoot is the directory paths are resolved against. Not loaded.
	ProjectRoot string `koanf:"-"`
}

// ProjectConfig is an alias for the shared project declaration.
// This allows CLI code to use config.ProjectConfig without importing internal/config.
type ProjectConfig = sharedcfg.ProjectConfig

// Default configuration values.
const (
	DefaultName        = "build"
	DefaultBuildDir    = "build"
	DefaultStateFile   = ".leapbuild/state.db"
	DefaultEnv         = "dev"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultHistoryKeep = 50
)

// NormalizeProjectName strips the Gradle-style leading ':' from a project
// path and surrounding whitespace.
func NormalizeProjectName(name string) string {
	return sharedcfg.NormalizeProjectName(name)
}

// DependencyEdges returns every declared "evaluates after" edge as
// (from, to) pairs. Per-project depends_on and the root-level
// evaluation_depends_on both contribute; duplicates are merged.
func (c *Config) DependencyEdges() [][2]string {
	return sharedcfg.DependencyEdges(c.Projects, c.EvaluationDependsOn)
}

// ProjectByName returns the declared project with the given name.
func (c *Config) ProjectByName(name string) (*ProjectConfig, bool) {
	for i := range c.Projects {
		if c.Projects[i].Name == name {
			return &c.Projects[i], true
		}
	}
	return nil, false
}
