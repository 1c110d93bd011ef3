package cliapp

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/telemetry"
)

// runFullExportWatch re-runs a full export whenever the model or profile
// file is written, debounced by 500ms the way the corpus's file watcher
// collapses a burst of writes into one onChange call.
func runFullExportWatch(ctx context.Context) error {
	logger := newLogger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, p := range []string{flagFullModel, flagFullProfile} {
		if err := watcher.Add(filepath.Dir(p)); err != nil {
			logger.Warn("watch.add.failed", "path", p, "error", err)
		}
	}

	if err := runOneFullExport(ctx); err != nil {
		logger.Error("fullExport run failed", "error", err)
	}

	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	trigger := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watchedPath(ev.Name, flagFullModel, flagFullProfile) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch.error", "error", err)
		case <-trigger:
			if err := runOneFullExport(ctx); err != nil {
				logger.Error("fullExport run failed", "error", err)
			}
		}
	}
}

func watchedPath(changed, model, profile string) bool {
	abs := func(p string) string {
		a, err := filepath.Abs(p)
		if err != nil {
			return p
		}
		return a
	}
	c := abs(changed)
	return c == abs(model) || c == abs(profile)
}

// packageArtifacts zips every regular file under outputDirectory (excluding
// the archive itself) via internal/telemetry.
func packageArtifacts(outputDirectory, destZipPath string) error {
	var paths []string
	err := filepath.Walk(outputDirectory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || path == destZipPath {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	return telemetry.Package(outputDirectory, destZipPath, paths)
}
