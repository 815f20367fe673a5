package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watcher reports library roots whose contents changed, once per quiet period.
//
// fsnotify watches single directories, so every subdirectory is added on registration and
// directories created later are added as their events arrive.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   *log.Logger
	onChange func(libraryID int64)

	mu    sync.Mutex
	roots map[string]int64
}

// NewWatcher creates a watcher that calls onChange after debounce has passed without new events for a library.
func NewWatcher(debounce time.Duration, logger *log.Logger, onChange func(libraryID int64)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 5 * time.Second
	}
	return &Watcher{
		fs:       fw,
		debounce: debounce,
		logger:   logger,
		onChange: onChange,
		roots:    make(map[string]int64),
	}, nil
}

// Add watches root and all of its subdirectories for the given library.
func (w *Watcher) Add(libraryID int64, root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.roots[root] = libraryID
	w.mu.Unlock()

	return w.addTree(root)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// libraryFor returns the library whose root contains path.
func (w *Watcher) libraryFor(path string) (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for root, id := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return id, true
		}
	}
	return 0, false
}

// Run processes events until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	pending := make(map[int64]time.Time)
	ticker := time.NewTicker(w.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			id, ok := w.libraryFor(event.Name)
			if !ok {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[id] = time.Now()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)

		case now := <-ticker.C:
			for id, last := range pending {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(pending, id)
				w.logger.Debug("library changed", "library_id", id)
				w.onChange(id)
			}
		}
	}
}
