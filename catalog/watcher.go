package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"media_ingest/fileio"
	"media_ingest/milog"
)

// Watcher announces files that appear in a storage directory, including
// ones copied in by hand while the server runs.
type Watcher struct {
	dir     string
	catalog Catalog
	watcher *fsnotify.Watcher
}

func NewWatcher(dir string, cat Catalog) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, catalog: cat, watcher: w}, nil
}

// Run consumes events until ctx is done. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	milog.Infof("watching %s for new files", w.dir)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.handle(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			milog.Warnf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	name := filepath.Base(path)
	if fileio.IsPartFile(name) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	added, err := w.catalog.Announce(ctx, name)
	if err != nil {
		milog.Errorw("catalog announce failed", "name", name, "error", err)
		return
	}
	if added {
		milog.Infow("catalog picked up file", "name", name)
	}
}
