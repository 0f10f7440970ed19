package starlark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"
)

// Predeclared returns all predeclared/builtin globals for build script execution.
// This includes: project, env, write_file, write_json, read_file
func Predeclared(project *ProjectInfo, env string) starlark.StringDict {
	globals := starlark.StringDict{
		"env": starlark.String(env),
	}

	if project != nil {
		globals["project"] = project.ToStarlark()
		globals["write_file"] = starlark.NewBuiltin("write_file", writeFile(project.BuildDir))
		globals["write_json"] = starlark.NewBuiltin("write_json", writeJSON(project.BuildDir))
		globals["read_file"] = starlark.NewBuiltin("read_file", readFile(project.RootBuildDir))
	}

	return globals
}

type builtinFunc func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

// confine resolves rel under base and rejects paths that would leave it.
func confine(base, rel string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("no directory to resolve %q against", rel)
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q escapes %s", rel, base)
	}
	return filepath.Join(base, rel), nil
}

func write(base, rel string, data []byte) (starlark.Value, error) {
	path, err := confine(base, rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, err
	}
	return starlark.String(path), nil
}

// writeFile writes content to a path relative to the project build directory
// and returns the absolute path written.
func writeFile(buildDir string) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var rel, content string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &rel, "content", &content); err != nil {
			return nil, err
		}
		v, err := write(buildDir, rel, []byte(content))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return v, nil
	}
}

// writeJSON encodes value as indented JSON relative to the project build directory.
func writeJSON(buildDir string) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var rel string
		var value starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &rel, "value", &value); err != nil {
			return nil, err
		}
		goVal, err := ToGo(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		data, err := json.MarshalIndent(goVal, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		v, err := write(buildDir, rel, append(data, '\n'))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return v, nil
	}
}

// readFile reads a path relative to the root build directory, so scripts can
// consume what their dependencies produced. Returns None if it does not exist.
func readFile(rootBuildDir string) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var rel string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &rel); err != nil {
			return nil, err
		}
		path, err := confine(rootBuildDir, rel)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		data, err := os.ReadFile(path) //nolint:gosec // confined to the build directory
		if os.IsNotExist(err) {
			return starlark.None, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.String(data), nil
	}
}
