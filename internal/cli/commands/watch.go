package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/leapbuild/internal/cli/config"
	"github.com/leapstack-labs/leapbuild/internal/engine"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// watchAndEvaluate re-evaluates every time the configuration file or a build
// script changes, until interrupted. Evaluations never overlap. The set of
// watched files is fixed when watching starts.
func watchAndEvaluate(ctx context.Context, cmd *cobra.Command, cmdCtx *CommandContext, opts engine.RunOptions, debounce time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := cmdCtx.Renderer
	files := watchTargets(config.GetConfigFileUsed(), cmdCtx.Engine.ScriptFiles())
	if len(files) == 0 {
		return fmt.Errorf("nothing to watch: no config file or build scripts")
	}

	r.Muted(fmt.Sprintf("Watching %d file(s) for changes (Ctrl+C to stop)", len(files)))

	changes := make(chan string, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return watchFiles(gctx, cmdCtx.Logger, files, debounce, changes)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case file := <-changes:
				r.Println("")
				r.Muted("Change detected: " + displayPath(cmdCtx.Cfg.ProjectRoot, file))

				eng, err := reloadEngine(cmd, cmdCtx)
				if err != nil {
					r.Warning(err.Error())
					continue
				}
				if err := evaluateOnce(gctx, eng, r, opts); err != nil {
					r.Warning(err.Error())
				}
				_ = eng.Close()
			}
		}
	})

	return g.Wait()
}

// reloadEngine re-reads configuration so edits to leapbuild.yaml take effect.
func reloadEngine(cmd *cobra.Command, cmdCtx *CommandContext) (*engine.Engine, error) {
	cfg, err := config.LoadConfig(config.GetConfigFileUsed(), cmd.Root().PersistentFlags())
	if err != nil {
		return nil, fmt.Errorf("reload configuration: %w", err)
	}
	cmdCtx.Cfg = cfg
	return createEngine(cfg, cmdCtx.Logger, cmdCtx.Renderer)
}

// watchTargets returns the cleaned, de-duplicated set of files to watch.
func watchTargets(configFile string, scripts []string) []string {
	var files []string
	if configFile != "" {
		files = append(files, configFile)
	}
	files = append(files, scripts...)

	for i, f := range files {
		if abs, err := filepath.Abs(f); err == nil {
			files[i] = abs
		}
	}
	slices.Sort(files)
	return slices.Compact(files)
}

// watchFiles sends a file name on changes once writes to it have been quiet
// for debounce. Parent directories are watched so editors that replace files
// by renaming are still seen.
func watchFiles(ctx context.Context, logger *slog.Logger, files []string, debounce time.Duration, changes chan<- string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	wanted := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		wanted[filepath.Clean(f)] = true
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	// Debounce timer
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(event.Name)
			if !wanted[name] {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				logger.Debug("file changed", "file", name)
				select {
				case changes <- name:
				default:
					// An evaluation is already pending.
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
