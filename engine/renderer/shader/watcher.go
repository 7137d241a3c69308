package shader

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/fsnotify/fsnotify"
)

// DefaultWatchLag is how long a file must be quiet before a change triggers a reload. Editors usually write a
// file in several steps.
const DefaultWatchLag = 100 * time.Millisecond

// Watcher reloads library shaders when their source or include files change on disk.
type Watcher struct {
	lib     Library
	watch   *fsnotify.Watcher
	lag     time.Duration
	done    chan struct{}
	stopped sync.WaitGroup

	mu      sync.Mutex
	dirs    map[string]bool
	pending map[string]*time.Timer
}

// NewWatcher starts watching the directories of every file the library depends on.
//
// Parameters:
//   - lib: the library to reload
//   - lag: debounce interval, DefaultWatchLag when zero
//
// Returns:
//   - *Watcher: the running watcher; call Close to stop it
//   - error: an error creating the OS watcher
func NewWatcher(lib Library, lag time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if lag <= 0 {
		lag = DefaultWatchLag
	}
	w := &Watcher{
		lib:     lib,
		watch:   fw,
		lag:     lag,
		done:    make(chan struct{}),
		dirs:    make(map[string]bool),
		pending: make(map[string]*time.Timer),
	}
	if err := w.Sync(); err != nil {
		fw.Close()
		return nil, err
	}
	lib.OnReload(func(Shader) {
		if err := w.Sync(); err != nil {
			logger.Logger().Warn("shader watcher sync failed", "error", err)
		}
	})

	w.stopped.Add(1)
	go w.run()
	return w, nil
}

// Sync adds the directories of files the library started depending on since the last call, such as a new
// include.
func (w *Watcher) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, path := range w.lib.Paths() {
		dir := filepath.Dir(path)
		if w.dirs[dir] {
			continue
		}
		if err := w.watch.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
		logger.Logger().Debug("watching shader directory", "dir", dir)
	}
	return nil
}

func (w *Watcher) run() {
	defer w.stopped.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watch.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule(event.Name)
			}
		case err, ok := <-w.watch.Errors:
			if !ok {
				return
			}
			logger.Logger().Error("shader watcher error", "error", err)
		}
	}
}

// schedule debounces reloads per file.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.lag)
		return
	}
	w.pending[path] = time.AfterFunc(w.lag, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		if _, err := w.lib.Reload(path); err != nil {
			logger.Logger().Error("shader hot reload failed", "path", path, "error", err)
		}
	})
}

// Close stops the watcher. Pending reloads are dropped.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watch.Close()
	w.stopped.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	return err
}
