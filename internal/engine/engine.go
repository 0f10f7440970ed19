// Package engine orchestrates project evaluation.
// It builds the project graph, prepares output directories, drives the
// scheduler and records evaluation history.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapbuild/internal/clean"
	"github.com/leapstack-labs/leapbuild/internal/config"
	"github.com/leapstack-labs/leapbuild/internal/dag"
	"github.com/leapstack-labs/leapbuild/internal/layout"
	"github.com/leapstack-labs/leapbuild/internal/state"
)

// ProjectSpec declares a single project and how to evaluate it.
type ProjectSpec = config.ProjectConfig

// ErrNoHistory is returned by operations that need the history store on an
// engine opened with GraphOnly.
var ErrNoHistory = errors.New("history store not opened")

// Config holds engine configuration.
type Config struct {
	// Name of the root build
	Name string
	// ProjectRoot is the directory the build was declared in
	ProjectRoot string
	// BuildDir is the root build output directory
	BuildDir string
	// StatePath is the path to the SQLite history database (":memory:" if empty)
	StatePath string
	// Environment is the current environment (dev, staging, prod)
	Environment string
	// HistoryKeep is how many runs to retain (0 keeps everything)
	HistoryKeep int
	// GraphOnly skips opening the history store. Evaluate, History and
	// RunDetails then fail with ErrNoHistory.
	GraphOnly bool

	Projects []ProjectSpec
	// Edges are (from, to) pairs: from evaluates after to
	Edges [][2]string

	// Stdout and Stderr receive command and script output (discarded if nil)
	Stdout io.Writer
	Stderr io.Writer
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger

	// DirMaker and Remover override filesystem access (optional)
	DirMaker layout.DirMaker
	Remover  clean.Remover
}

// Engine evaluates the projects of one build.
type Engine struct {
	logger *slog.Logger
	store  state.Store

	name        string
	buildDir    string
	environment string
	historyKeep int

	graph  *dag.Graph
	specs  map[string]*ProjectSpec
	stdout io.Writer
	stderr io.Writer

	dirs    layout.DirMaker
	cleaner *clean.Task
}

// New creates an engine: it opens and migrates the history store and builds
// and seals the project graph.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine", "build_dir", cfg.BuildDir, "environment", cfg.Environment)

	if cfg.BuildDir == "" {
		return nil, fmt.Errorf("build directory is required")
	}

	graph, specs, err := buildGraph(cfg)
	if err != nil {
		return nil, err
	}

	var store state.Store
	if !cfg.GraphOnly {
		store, err = openStore(cfg.StatePath, logger)
		if err != nil {
			return nil, err
		}
	}

	env := cfg.Environment
	if env == "" {
		env = "dev"
	}

	dirs := cfg.DirMaker
	if dirs == nil {
		dirs = layout.OSDirMaker{}
	}
	remover := cfg.Remover
	if remover == nil {
		remover = clean.OSRemover{}
	}

	stdout, stderr := cfg.Stdout, cfg.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	return &Engine{
		logger:      logger,
		store:       store,
		name:        cfg.Name,
		buildDir:    cfg.BuildDir,
		environment: env,
		historyKeep: cfg.HistoryKeep,
		graph:       graph,
		specs:       specs,
		stdout:      stdout,
		stderr:      stderr,
		dirs:        dirs,
		cleaner:     clean.New(remover, logger),
	}, nil
}

func openStore(statePath string, logger *slog.Logger) (state.Store, error) {
	if statePath == "" {
		statePath = ":memory:"
	}
	if statePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(statePath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(statePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return store, nil
}

// Close releases the history store.
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Graph returns the sealed project graph.
func (e *Engine) Graph() *dag.Graph {
	return e.graph
}

// BuildDir returns the root build output directory.
func (e *Engine) BuildDir() string {
	return e.buildDir
}

// Environment returns the environment runs are recorded under.
func (e *Engine) Environment() string {
	return e.environment
}

// Store returns the history store, or nil for a GraphOnly engine.
func (e *Engine) Store() state.Store {
	return e.store
}

// Clean deletes the root build output directory.
func (e *Engine) Clean() error {
	return e.cleaner.Clean(e.buildDir)
}
