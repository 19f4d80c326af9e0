package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDelay debounces bursts of file events.
const DefaultReloadDelay = 500 * time.Millisecond

// ManifestWatcher re-parses a manifest whenever it changes on disk.
type ManifestWatcher struct {
	parser      *ManifestParser
	logger      zerolog.Logger
	reloadDelay time.Duration
}

// NewManifestWatcher creates a manifest watcher.
func NewManifestWatcher(logger zerolog.Logger) *ManifestWatcher {
	return &ManifestWatcher{
		parser:      NewManifestParser(),
		logger:      logger.With().Str("component", "manifest-watcher").Logger(),
		reloadDelay: DefaultReloadDelay,
	}
}

// Watch calls fn with the manifest at path after every change until ctx is
// done. Invalid manifests are logged and skipped so that a half-saved file
// does not stop the watch. Watch blocks.
func (w *ManifestWatcher) Watch(ctx context.Context, path string, fn func(context.Context, *Manifest) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watching the directory survives editors that replace the file on save.
	dir := path
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat manifest %s: %w", path, err)
	}
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.Info().Str("path", path).Msg("Started watching manifest")

	reload := make(chan struct{}, 1)
	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !w.relevant(path, event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Manifest changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.reloadDelay, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			w.apply(ctx, path, fn)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *ManifestWatcher) relevant(path, changed string) bool {
	files, err := manifestFiles(path)
	if err != nil {
		return false
	}
	changed = filepath.Clean(changed)
	for _, f := range files {
		if filepath.Clean(f) == changed {
			return true
		}
	}
	return false
}

func (w *ManifestWatcher) apply(ctx context.Context, path string, fn func(context.Context, *Manifest) error) {
	manifest, err := w.parser.Parse(path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", path).Msg("Failed to reload manifest")
		return
	}

	if err := fn(ctx, manifest); err != nil {
		w.logger.Error().Err(err).Str("path", path).Msg("Failed to apply reloaded manifest")
		return
	}

	w.logger.Info().
		Str("path", path).
		Int("datasources", len(manifest.Datasources)).
		Msg("Manifest reloaded")
}
