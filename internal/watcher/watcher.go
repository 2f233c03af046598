package watcher

import (
	"fmt"
	"time"
)

// Modes accepted by New.
const (
	ModePush = "push"
	ModePoll = "poll"
)

// Options configures New.
type Options struct {
	Root         string
	Mode         string
	// PollInterval paces poll passes, and in push mode the retry of
	// subtrees that could not be subscribed.
	PollInterval time.Duration
	Debounce     time.Duration
	Resync       bool
	Exclude      []string
	// SkipDirs are absolute directories never watched, such as the preview
	// and database directories when they live under Root.
	SkipDirs []string
}

// New builds the Watcher selected by opts.Mode.
func New(opts Options) (Watcher, error) {
	ex, err := NewExcluder(opts.Root, opts.Exclude, opts.SkipDirs)
	if err != nil {
		return nil, err
	}

	switch opts.Mode {
	case ModePush, "":
		return NewPushWatcher(opts.Root, opts.Debounce, opts.PollInterval, ex, opts.Resync), nil
	case ModePoll:
		return NewPollWatcher(opts.Root, opts.PollInterval, ex, opts.Resync), nil
	default:
		return nil, fmt.Errorf("unknown watch mode %q", opts.Mode)
	}
}
