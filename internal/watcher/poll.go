package watcher

import (
	"context"
	"errors"
	"time"

	"preview-watcher/internal/logging"
)

// DefaultPollInterval is used when PollWatcher is given a non-positive interval.
const DefaultPollInterval = time.Second

// PollWatcher diffs full tree walks against its WatchState.
type PollWatcher struct {
	scanner
	interval time.Duration
	resync   bool
}

// NewPollWatcher creates a PollWatcher. With resync set, the first pass emits
// every existing file.
func NewPollWatcher(root string, interval time.Duration, excluder *Excluder, resync bool) *PollWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollWatcher{
		scanner:  scanner{root: root, excluder: excluder, state: NewWatchState()},
		interval: interval,
		resync:   resync,
	}
}

// State exposes the watcher's cache for inspection by tests and health checks.
func (w *PollWatcher) State() *WatchState {
	return w.state
}

// Run implements Watcher.
func (w *PollWatcher) Run(ctx context.Context, out chan<- Event) error {
	emit := func(ev Event) error { return send(ctx, out, ev) }

	if w.resync {
		logging.Info("Forced resync: emitting every existing file under %s", w.root)
		if err := w.fullPass(ctx, emit); err != nil {
			return ignoreCancel(err)
		}
	} else {
		if err := w.Seed(ctx); err != nil {
			return ignoreCancel(err)
		}
	}

	logging.Info("Monitoring folder '%s' and its subfolders (poll every %v)...", w.root, w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("Poll watcher stopped")
			return nil
		case <-ticker.C:
			if err := w.fullPass(ctx, emit); err != nil {
				return ignoreCancel(err)
			}
		}
	}
}

// Seed records the current tree as the baseline without emitting events.
func (w *PollWatcher) Seed(ctx context.Context) error {
	start := time.Now()
	if err := w.fullPass(ctx, discard); err != nil {
		return err
	}
	logging.Info("Baseline seeded: %d files, %d directories in %v",
		w.state.Files(), w.state.Directories(), time.Since(start))
	return nil
}

// Pass performs a single walk, emitting changes to out. It is used by the
// one-shot scan command.
func (w *PollWatcher) Pass(ctx context.Context, out chan<- Event) error {
	return w.fullPass(ctx, func(ev Event) error { return send(ctx, out, ev) })
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
