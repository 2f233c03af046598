package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"preview-watcher/internal/logging"
)

// RetryConfig bounds how often a filesystem call is repeated after a stale
// NFS handle.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver labels metrics; the package default is used when nil.
	VolumeResolver *VolumeResolver
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c *RetryConfig) resolveVolume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Resolve(path)
}

// delay returns the pause before retry n (zero based), doubling up to MaxBackoff.
func (c *RetryConfig) delay(n int) time.Duration {
	d := c.InitialBackoff
	for i := 0; i < n && d < c.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, c.MaxBackoff)
}

func isNFSStaleError(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// attemptLog reports one retried operation to the installed Observer.
type attemptLog struct {
	op, volume string
	obs        Observer
	started    time.Time
}

func (a attemptLog) record(fn func(o Observer)) {
	if a.obs != nil {
		fn(a.obs)
	}
}

func (a attemptLog) done() {
	a.record(func(o Observer) {
		o.ObserveRetryDuration(a.op, a.volume, time.Since(a.started).Seconds())
	})
}

// withRetry calls fn until it returns something other than ESTALE or
// MaxRetries extra attempts have been made.
func withRetry[T any](op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	a := attemptLog{op: op, volume: config.resolveVolume(path), obs: observe(), started: time.Now()}
	defer a.done()

	for n := 0; ; n++ {
		v, err := fn()
		switch {
		case err == nil:
			if n > 0 {
				logging.Info("Filesystem %s of %s recovered after %d retries", op, path, n)
				a.record(func(o Observer) { o.ObserveRetrySuccess(op, a.volume) })
			}
			return v, nil
		case !isNFSStaleError(err):
			return v, err
		}

		a.record(func(o Observer) { o.ObserveStaleError(op, a.volume) })
		if n == config.MaxRetries {
			logging.Warn("Filesystem %s of %s still stale after %d retries: %v", op, path, n, err)
			a.record(func(o Observer) { o.ObserveRetryFailure(op, a.volume) })
			return v, err
		}

		wait := config.delay(n)
		a.record(func(o Observer) { o.ObserveRetryAttempt(op, a.volume) })
		logging.Debug("Filesystem %s of %s hit a stale handle, retry %d/%d in %v",
			op, path, n+1, config.MaxRetries, wait)
		time.Sleep(wait)
	}
}

// StatWithRetry is os.Stat with stale handle retries.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, func() (os.FileInfo, error) { return os.Stat(path) })
}

// OpenWithRetry is os.Open with stale handle retries.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, func() (*os.File, error) { return os.Open(path) })
}

// ReadDirWithRetry is os.ReadDir with stale handle retries.
func ReadDirWithRetry(path string, config RetryConfig) ([]os.DirEntry, error) {
	return withRetry("readdir", path, config, func() ([]os.DirEntry, error) { return os.ReadDir(path) })
}
