package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher imports script files as they appear in a drop directory. Files are
// expected under the usual <Program>/<Module##>/<Day##>/<persona>.json
// layout inside the watched tree; anything else is logged and skipped.
type Watcher struct {
	importer *Importer
	dir      string
	logger   zerolog.Logger

	// settle is how long a file must sit unchanged before import, so a
	// half-written upload is not read mid-copy.
	settle time.Duration
}

// NewWatcher builds a watcher over dir.
func NewWatcher(importer *Importer, dir string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		importer: importer,
		dir:      dir,
		logger:   logger,
		settle:   200 * time.Millisecond,
	}
}

// Run watches the drop directory until the context is cancelled. It blocks.
// Subdirectories are watched as they are created, so a full
// Program/Module/Day tree can be dropped in.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer fsw.Close()

	if err := addRecursive(fsw, w.dir); err != nil {
		return err
	}
	w.logger.Info().Str("dir", w.dir).Msg("watching for script drops")

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				// New directories join the watch set.
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if addErr := fsw.Add(event.Name); addErr != nil {
						w.logger.Error().Err(addErr).Str("dir", event.Name).Msg("failed to watch new directory")
					}
					continue
				}
			}
			if isScriptFile(event.Name) && (event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write)) {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")
		case now := <-ticker.C:
			for path, seen := range pending {
				if now.Sub(seen) < w.settle {
					continue
				}
				delete(pending, path)
				w.importOne(ctx, path)
			}
		}
	}
}

func (w *Watcher) importOne(ctx context.Context, path string) {
	jobID, err := w.importer.ImportFile(ctx, path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", path).Msg("import failed")
		return
	}
	w.logger.Info().Str("path", path).Str("job_id", jobID).Msg("import complete")
}

func isScriptFile(path string) bool {
	return strings.HasSuffix(path, ".json")
}

// addRecursive registers dir and any existing subdirectories.
func addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
}
