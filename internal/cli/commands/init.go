package commands

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapbuild/internal/cli/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed templates/build.star
var starterScript []byte

// starterConfig is the leapbuild.yaml written by init.
type starterConfig struct {
	Name     string           `yaml:"name"`
	BuildDir string           `yaml:"build_dir"`
	Projects []starterProject `yaml:"projects"`
}

type starterProject struct {
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	Command   string   `yaml:"command,omitempty"`
	Script    string   `yaml:"script,omitempty"`
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new leapbuild workspace",
		Long: `Initialize a new leapbuild workspace.

This creates:
  - leapbuild.yaml declaring two projects, core and app
  - app/build.star, a Starlark build script for app

core runs a shell command; app evaluates after core and reads its output.`,
		Example: `  # Initialize in current directory
  leapbuild init

  # Initialize in a new directory
  leapbuild init my-workspace

  # Force overwrite existing config
  leapbuild init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(NewCommandContextWithoutEngine(cmd), dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(cmdCtx *CommandContext, dir string, force bool) error {
	r := cmdCtx.Renderer

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, config.ConfigFileNames[0])
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileNames[0])
	}

	data, err := yaml.Marshal(starterConfig{
		Name:     filepath.Base(absOrSelf(dir)),
		BuildDir: config.DefaultBuildDir,
		Projects: []starterProject{
			{
				Name:    "core",
				Command: `mkdir -p "$LEAPBUILD_BUILD_DIR" && echo 1.0.0 > "$LEAPBUILD_BUILD_DIR/version.txt"`,
			},
			{
				Name:      "app",
				DependsOn: []string{"core"},
				Script:    "build.star",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	cmdCtx.Logger.Debug("wrote configuration", "path", configPath)
	r.StatusLine(config.ConfigFileNames[0], "success", "")

	scriptPath := filepath.Join(dir, "app", "build.star")
	if _, err := os.Stat(scriptPath); err != nil || force {
		if err := os.MkdirAll(filepath.Dir(scriptPath), 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(scriptPath), err)
		}
		if err := os.WriteFile(scriptPath, starterScript, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", scriptPath, err)
		}
		r.StatusLine(filepath.Join("app", "build.star"), "success", "")
	}

	r.Println("")
	r.Success("leapbuild workspace initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  leapbuild list       View projects and dependencies")
	r.Println("  leapbuild order      Print the evaluation order")
	r.Println("  leapbuild evaluate   Evaluate every project")

	return nil
}

func absOrSelf(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
