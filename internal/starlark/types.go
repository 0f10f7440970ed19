// Package starlark provides the Starlark runtime for project build scripts.
package starlark

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ProjectInfo describes the project a build script is evaluating.
// Exposed as the "project" global in Starlark execution.
type ProjectInfo struct {
	Name         string   // Project name
	Dir          string   // Project source directory
	BuildDir     string   // Project output directory
	RootBuildDir string   // Root build output directory
	Dependencies []string // Projects evaluated before this one
	Vars         map[string]string
}

// ToStarlark converts ProjectInfo to a frozen Starlark struct value.
func (p *ProjectInfo) ToStarlark() starlark.Value {
	deps := make([]starlark.Value, len(p.Dependencies))
	for i, d := range p.Dependencies {
		deps[i] = starlark.String(d)
	}

	vars := starlark.NewDict(len(p.Vars))
	keys := make([]string, 0, len(p.Vars))
	for k := range p.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_ = vars.SetKey(starlark.String(k), starlark.String(p.Vars[k]))
	}

	s := starlarkstruct.FromStringDict(starlark.String("project"), starlark.StringDict{
		"name":           starlark.String(p.Name),
		"dir":            starlark.String(p.Dir),
		"build_dir":      starlark.String(p.BuildDir),
		"root_build_dir": starlark.String(p.RootBuildDir),
		"dependencies":   starlark.Tuple(deps),
		"vars":           vars,
	})
	s.Freeze()
	return s
}

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool, []any, map[string]any, or nil
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return val.String(), nil
		}
		return i64, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.Bool:
		return bool(val), nil

	case starlark.Indexable:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %T", item[0])
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}
