// Package clean removes a build-output tree.
//
// Cleaning is destructive and irreversible. Callers must make sure no
// evaluation is running against the same root; this package does not lock.
package clean

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrUnsafePath is the cause of a CleanError for paths that are never removed.
var ErrUnsafePath = errors.New("refusing to remove unsafe path")

// CleanError reports a failed removal. It is never retried here.
type CleanError struct {
	Path  string
	Cause error
}

func (e *CleanError) Error() string {
	return fmt.Sprintf("clean %s: %v", e.Path, e.Cause)
}

func (e *CleanError) Unwrap() error { return e.Cause }

// Remover deletes a path and everything below it.
type Remover interface {
	RemoveAll(path string) error
}

// OSRemover removes paths from the local filesystem.
type OSRemover struct{}

// RemoveAll implements Remover.
func (OSRemover) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Task removes a root build directory.
type Task struct {
	remover Remover
	logger  *slog.Logger
}

// New creates a clean task. A nil remover uses the local filesystem and a nil
// logger discards output.
func New(remover Remover, logger *slog.Logger) *Task {
	if remover == nil {
		remover = OSRemover{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Task{remover: remover, logger: logger}
}

// Clean removes root recursively. A root that does not exist is already clean.
func (t *Task) Clean(root string) error {
	if err := checkSafe(root); err != nil {
		return &CleanError{Path: root, Cause: err}
	}

	t.logger.Info("cleaning build directory", "path", root)
	if err := t.remover.RemoveAll(root); err != nil {
		t.logger.Error("clean failed", "path", root, "error", err)
		return &CleanError{Path: root, Cause: err}
	}
	return nil
}

func checkSafe(root string) error {
	if root == "" {
		return fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	cleaned := filepath.Clean(root)
	if cleaned == "." || cleaned == ".." {
		return fmt.Errorf("%w: %s is the working directory or its parent", ErrUnsafePath, root)
	}
	if cleaned == filepath.Dir(cleaned) && filepath.IsAbs(cleaned) {
		return fmt.Errorf("%w: %s is a filesystem root", ErrUnsafePath, root)
	}
	return nil
}
