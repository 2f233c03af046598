package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"preview-watcher/internal/logging"
	"preview-watcher/internal/metrics"
)

// DefaultDebounce is the quiet period after the last write before a file is reported.
const DefaultDebounce = 250 * time.Millisecond

// PushWatcher reports changes from fsnotify. Bursts of writes to one path are
// coalesced into a single event once the path has been quiet for debounce.
// Subtrees that could not be subscribed or walked are rescanned and
// resubscribed every retry interval until that succeeds.
type PushWatcher struct {
	scanner
	debounce time.Duration
	retry    time.Duration
	resync   bool

	fsw *fsnotify.Watcher
	// addWatch subscribes one directory; nil means fsw.Add.
	addWatch func(string) error

	mu     sync.Mutex
	timers map[string]*time.Timer
	fired  chan string
	done   chan struct{}
	ready  chan struct{}
}

// NewPushWatcher creates a PushWatcher. A non-positive retry uses
// DefaultPollInterval.
func NewPushWatcher(root string, debounce, retry time.Duration, excluder *Excluder, resync bool) *PushWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if retry <= 0 {
		retry = DefaultPollInterval
	}
	return &PushWatcher{
		scanner: scanner{
			root:     root,
			excluder: excluder,
			state:    NewWatchState(),
			failed:   make(map[string]struct{}),
		},
		debounce: debounce,
		retry:    retry,
		resync:   resync,
		timers:   make(map[string]*time.Timer),
		fired:    make(chan string, 256),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once subscriptions are installed and the initial walk is done.
func (w *PushWatcher) Ready() <-chan struct{} {
	return w.ready
}

// Run implements Watcher.
func (w *PushWatcher) Run(ctx context.Context, out chan<- Event) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return &WatchError{Op: "subscribe", Path: w.root, Err: err}
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	defer func() {
		close(w.done)
		w.stopTimers()
		if err := fsw.Close(); err != nil {
			logging.Warn("failed to close fsnotify watcher: %v", err)
		}
	}()

	emit := func(ev Event) error { return send(ctx, out, ev) }

	// Subscribe before the initial walk so files created during it are not lost.
	w.subscribeTree(w.root)

	if w.resync {
		logging.Info("Forced resync: emitting every existing file under %s", w.root)
		err = w.fullPass(ctx, emit)
	} else {
		start := time.Now()
		err = w.fullPass(ctx, discard)
		logging.Info("Baseline seeded: %d files, %d directories in %v",
			w.state.Files(), w.state.Directories(), time.Since(start))
	}
	if err != nil {
		return ignoreCancel(err)
	}

	logging.Info("Monitoring folder '%s' and its subfolders...", w.root)
	close(w.ready)

	retry := time.NewTicker(w.retry)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Push watcher stopped")
			return nil

		case <-retry.C:
			if err := w.retryFailed(ctx, emit); err != nil {
				return ignoreCancel(err)
			}

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if err := w.handle(ctx, ev, emit); err != nil {
				return ignoreCancel(err)
			}

		case path := <-w.fired:
			if err := w.emitFile(path, emit); err != nil {
				return ignoreCancel(err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			reportError(&WatchError{Op: "notify", Path: w.root, Err: err})
		}
	}
}

func (w *PushWatcher) handle(ctx context.Context, ev fsnotify.Event, emit emitFunc) error {
	if w.excluder.Excluded(ev.Name) {
		return nil
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancelTimer(ev.Name)
		w.state.Forget(ev.Name)
		return nil

	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return w.directoryCreated(ctx, ev.Name, emit)
		}
		w.schedule(ev.Name)

	case ev.Has(fsnotify.Write):
		w.schedule(ev.Name)
	}
	return nil
}

// directoryCreated subscribes to a new directory and reports files that were
// written into it before the subscription existed.
func (w *PushWatcher) directoryCreated(ctx context.Context, dir string, emit emitFunc) error {
	w.subscribeTree(dir)
	_, err := w.scan(ctx, dir, emit)
	metrics.WatchedDirectories.Set(float64(w.state.Directories()))
	return err
}

// subscribeTree adds a watch for dir and every visible directory below it.
func (w *PushWatcher) subscribeTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			reportError(&WatchError{Op: "subscribe", Path: path, Err: err})
			if d == nil || d.IsDir() {
				w.markFailed(path)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.excluder.Excluded(path) {
			return filepath.SkipDir
		}
		if err := w.subscribe(path); err != nil {
			reportError(&WatchError{Op: "subscribe", Path: path, Err: err})
			w.markFailed(path)
			return filepath.SkipDir
		}
		return nil
	})
}

func (w *PushWatcher) subscribe(dir string) error {
	if w.addWatch != nil {
		return w.addWatch(dir)
	}
	return w.fsw.Add(dir)
}

// retryFailed resubscribes and rescans every subtree skipped after a
// WatchError, emitting whatever changed while it was unwatched. Subtrees
// that fail again stay queued; vanished ones are dropped.
func (w *PushWatcher) retryFailed(ctx context.Context, emit emitFunc) error {
	dirs := w.takeFailed()
	for _, dir := range dirs {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			w.state.Forget(dir)
			continue
		}
		w.subscribeTree(dir)
		if _, err := w.scan(ctx, dir, emit); err != nil {
			return err
		}
	}
	if len(dirs) > 0 {
		metrics.WatchedDirectories.Set(float64(w.state.Directories()))
	}
	return nil
}

func (w *PushWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.fired <- path:
		case <-w.done:
		}
	})
}

func (w *PushWatcher) cancelTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *PushWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// emitFile reports a debounced path if it still exists and its directory
// has been registered.
func (w *PushWatcher) emitFile(path string, emit emitFunc) error {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			reportError(&WatchError{Op: "notify", Path: path, Err: err})
		}
		return nil
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != w.root && w.state.MarkDirectory(dir) {
		if err := emit(Event{Kind: DirectoryAppeared, Path: dir}); err != nil {
			return err
		}
	}

	w.state.ObserveFile(path, info.ModTime())
	return emit(Event{Kind: FileChanged, Path: path, ModTime: info.ModTime()})
}
