package config

import (
	"fmt"
	"strings"
)

var validOutputs = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
// Graph structure (unknown dependencies, cycles) is checked when the graph
// is built, not here.
func (c *Config) Validate() error {
	if c.BuildDir == "" {
		return fmt.Errorf("build_dir is required")
	}

	valid := false
	for _, o := range validOutputs {
		if c.OutputFormat == o {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid output format %q (expected one of: %s)", c.OutputFormat, strings.Join(validOutputs, ", "))
	}

	for _, p := range c.Projects {
		if p.Name == "" {
			return fmt.Errorf("project without a name in %s", configFileDisplay())
		}
		if p.Command != "" && p.Script != "" {
			return fmt.Errorf("project %q: command and script are mutually exclusive", p.Name)
		}
	}
	return nil
}

func configFileDisplay() string {
	if configFileUsed != "" {
		return configFileUsed
	}
	return "leapbuild.yaml"
}
