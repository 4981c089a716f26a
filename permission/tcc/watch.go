package tcc

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of writes tccd makes per decision.
const DefaultDebounce = 250 * time.Millisecond

// Watcher calls onChange after any of the watched databases changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	onChange func()
	debounce func(func())
	logger   *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts watching the directories holding paths. Directories that
// cannot be watched are skipped; an error is returned only if none can.
func Watch(paths []string, delay time.Duration, onChange func(), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if delay <= 0 {
		delay = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fw,
		files:    make(map[string]bool),
		onChange: onChange,
		debounce: debounce.New(delay),
		logger:   logger,
		done:     make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		w.files[filepath.Clean(p)] = true
		dirs[filepath.Dir(p)] = true
	}
	watched := 0
	var lastErr error
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			logger.Debug("cannot watch privacy database directory", "dir", dir, "error", err)
			lastErr = err
			continue
		}
		watched++
	}
	if watched == 0 {
		fw.Close()
		if lastErr == nil {
			lastErr = fmt.Errorf("no directories to watch")
		}
		return nil, fmt.Errorf("watch privacy databases: %w", lastErr)
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				w.debounce(w.onChange)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("privacy database watcher error", "error", err)
		}
	}
}

// relevant matches the database itself and its -wal/-shm companions.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	name := filepath.Clean(ev.Name)
	name = strings.TrimSuffix(strings.TrimSuffix(name, "-wal"), "-shm")
	return w.files[name]
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
