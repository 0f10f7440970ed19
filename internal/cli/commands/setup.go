package commands

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapbuild/internal/cli/config"
	"github.com/leapstack-labs/leapbuild/internal/cli/output"
	"github.com/leapstack-labs/leapbuild/internal/engine"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)

	eng, err := createEngine(cmdCtx.Cfg, cmdCtx.Logger, cmdCtx.Renderer)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		_ = eng.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewGraphContext creates a CommandContext whose engine only holds the
// project graph. The history store is never opened, so read-only commands
// leave no state behind.
func NewGraphContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)

	engCfg := engineConfig(cmdCtx.Cfg, cmdCtx.Logger)
	engCfg.GraphOnly = true
	eng, err := engine.New(engCfg)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	return cmdCtx, func() { _ = eng.Close() }, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't need the graph or history.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to defaults.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	cwd, _ := os.Getwd()
	return &config.Config{
		Name:         config.DefaultName,
		BuildDir:     filepath.Join(cwd, config.DefaultBuildDir),
		StatePath:    filepath.Join(cwd, config.DefaultStateFile),
		Environment:  config.DefaultEnv,
		OutputFormat: config.DefaultOutput,
		HistoryKeep:  config.DefaultHistoryKeep,
		ProjectRoot:  cwd,
	}
}

// engineConfig maps the loaded configuration onto the engine.
func engineConfig(cfg *config.Config, logger *slog.Logger) engine.Config {
	return engine.Config{
		Name:        cfg.Name,
		ProjectRoot: cfg.ProjectRoot,
		BuildDir:    cfg.BuildDir,
		StatePath:   cfg.StatePath,
		Environment: cfg.Environment,
		HistoryKeep: cfg.HistoryKeep,
		Projects:    cfg.Projects,
		Edges:       cfg.DependencyEdges(),
		Logger:      logger,
	}
}

// createEngine builds an engine whose project output goes to stdout, or to
// stderr when stdout carries JSON.
func createEngine(cfg *config.Config, logger *slog.Logger, r *output.Renderer) (*engine.Engine, error) {
	engCfg := engineConfig(cfg, logger)

	var projectOut io.Writer = r.Writer()
	if r.EffectiveMode() == output.ModeJSON {
		projectOut = r.ErrWriter()
	}
	engCfg.Stdout = projectOut
	engCfg.Stderr = r.ErrWriter()

	return engine.New(engCfg)
}

// parseSelection merges positional args and --select values into normalized
// project names.
func parseSelection(args, selected []string) []string {
	var names []string
	for _, raw := range append(append([]string{}, selected...), args...) {
		for _, part := range strings.Split(raw, ",") {
			if name := config.NormalizeProjectName(part); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
