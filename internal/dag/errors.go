package dag

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds. Every typed error below unwraps to one of these so callers
// can use either errors.Is or errors.As.
var (
	ErrDuplicateProject   = errors.New("duplicate project")
	ErrUnknownProject     = errors.New("unknown project")
	ErrInvalidProjectName = errors.New("invalid project name")
	ErrCycleDetected      = errors.New("cycle detected")
	ErrGraphSealed        = errors.New("graph is sealed")
	ErrNotSealed          = errors.New("graph is not sealed")
)

// DuplicateProjectError is returned when a project name is registered twice.
type DuplicateProjectError struct {
	Name string
}

func (e *DuplicateProjectError) Error() string {
	return fmt.Sprintf("duplicate project %q", e.Name)
}

func (e *DuplicateProjectError) Unwrap() error { return ErrDuplicateProject }

// UnknownProjectError is returned when an operation references a project
// that was never registered.
type UnknownProjectError struct {
	Name string
}

func (e *UnknownProjectError) Error() string {
	return fmt.Sprintf("unknown project %q", e.Name)
}

func (e *UnknownProjectError) Unwrap() error { return ErrUnknownProject }

// InvalidProjectNameError is returned for names that cannot be used as a
// single output directory component.
type InvalidProjectNameError struct {
	Name   string
	Reason string
}

func (e *InvalidProjectNameError) Error() string {
	return fmt.Sprintf("invalid project name %q: %s", e.Name, e.Reason)
}

func (e *InvalidProjectNameError) Unwrap() error { return ErrInvalidProjectName }

// CycleDetectedError names the members of one cycle in the order the
// traversal discovered them.
type CycleDetectedError struct {
	Cycle []string
}

func (e *CycleDetectedError) Error() string {
	if len(e.Cycle) == 0 {
		return ErrCycleDetected.Error()
	}
	path := append(append([]string{}, e.Cycle...), e.Cycle[0])
	return fmt.Sprintf("cycle detected: %s", strings.Join(path, " -> "))
}

func (e *CycleDetectedError) Unwrap() error { return ErrCycleDetected }

// GraphSealedError is returned when a sealed graph is mutated.
type GraphSealedError struct {
	Op string
}

func (e *GraphSealedError) Error() string {
	return fmt.Sprintf("%s: graph is sealed", e.Op)
}

func (e *GraphSealedError) Unwrap() error { return ErrGraphSealed }

// NotSealedError is returned when an operation requires a sealed graph.
type NotSealedError struct {
	Op string
}

func (e *NotSealedError) Error() string {
	return fmt.Sprintf("%s: graph is not sealed", e.Op)
}

func (e *NotSealedError) Unwrap() error { return ErrNotSealed }
