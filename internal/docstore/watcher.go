package docstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/collabdocs/trackd/internal/logger"
)

// StorageEvent reports a change observed in the storage tree.
type StorageEvent struct {
	Address  string `json:"address"`
	FileName string `json:"fileName"`
	Op       string `json:"op"`
}

// Watcher observes the storage root and its client shards and reports
// document-level create, write, rename and remove events. History trees
// are intentionally not descended into; commits already announce
// themselves through the callback path.
type Watcher struct {
	manager *Manager
	watcher *fsnotify.Watcher
	notify  func(StorageEvent)
}

func NewWatcher(manager *Manager, notify func(StorageEvent)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(manager.Root()); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	w := &Watcher{manager: manager, watcher: fsWatcher, notify: notify}
	entries, err := os.ReadDir(manager.Root())
	if err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.addShard(filepath.Join(manager.Root(), entry.Name()))
		}
	}
	return w, nil
}

func (w *Watcher) addShard(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		logger.Warn("watcher: cannot watch %s: %v", dir, err)
	}
}

// Run pumps filesystem events until ctx is cancelled, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.manager.Root(), event.Name)
	if err != nil || rel == "." {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	// A directory created at the top level is a new client shard.
	if len(parts) == 1 {
		if event.Op.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.addShard(event.Name)
			}
		}
		return
	}
	if len(parts) != 2 || strings.HasSuffix(parts[1], historySuffix) {
		return
	}
	if w.notify != nil {
		w.notify(StorageEvent{Address: parts[0], FileName: parts[1], Op: event.Op.String()})
	}
}
