// Package layout computes isolated build-output directories for projects.
//
// Resolve is pure: it never touches the filesystem. Creating directories is
// the job of a DirMaker, invoked through Prepare.
package layout

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// DefaultPrepareConcurrency bounds concurrent directory creation in Prepare.
const DefaultPrepareConcurrency = 8

// Resolve returns the output directory of project name under root.
// Distinct valid project names always resolve to distinct directories.
func Resolve(root, name string) string {
	return filepath.Join(root, name)
}

// DirMaker creates directories.
type DirMaker interface {
	MkdirAll(path string, perm os.FileMode) error
}

// OSDirMaker creates directories on the local filesystem.
type OSDirMaker struct{}

// MkdirAll implements DirMaker.
func (OSDirMaker) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Prepare creates the output directory of every named project under root.
// The first failure cancels the remaining work and is returned.
func Prepare(ctx context.Context, fs DirMaker, root string, names []string) error {
	if fs == nil {
		fs = OSDirMaker{}
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(DefaultPrepareConcurrency)

	for _, name := range names {
		dir := Resolve(root, name)
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			if err := fs.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory %s: %w", dir, err)
			}
			return nil
		})
	}

	return eg.Wait()
}
