package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"preview-watcher/internal/logging"
	"preview-watcher/internal/metrics"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the janitor once a day at midnight.
const DefaultSchedule = "@daily"

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a five-field cron expression or a descriptor such
// as "@daily" or "@every 6h".
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Janitor removes bundles older than a retention window.
type Janitor struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewJanitor returns a Janitor for dir keeping bundles for days days.
func NewJanitor(dir string, days int) *Janitor {
	if days < 0 {
		days = 0
	}
	return &Janitor{
		dir:    dir,
		maxAge: time.Duration(days) * 24 * time.Hour,
		now:    time.Now,
	}
}

// Sweep deletes every regular file in the bundle directory whose
// modification time is older than the retention window.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if os.IsNotExist(err) {
		metrics.JanitorRunsTotal.WithLabelValues("success").Inc()
		return 0, nil
	}
	if err != nil {
		metrics.JanitorRunsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to list bundle directory: %w", err)
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(j.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logging.Error("Error deleting zip %s: %v", path, err)
			continue
		}
		logging.Info("Deleted Zip File: %s", path)
		removed++
	}

	metrics.JanitorRunsTotal.WithLabelValues("success").Inc()
	metrics.JanitorFilesRemoved.Add(float64(removed))
	return removed, nil
}

func (j *Janitor) sweepAndLog() {
	removed, err := j.Sweep()
	if err != nil {
		logging.Error("Bundle janitor failed: %v", err)
		return
	}
	logging.Debug("Bundle janitor removed %d file(s)", removed)
}

// Start sweeps once and then schedules further sweeps. It is an error to
// start a running janitor.
func (j *Janitor) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return fmt.Errorf("janitor already running")
	}

	j.sweepAndLog()

	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(sched, cron.FuncJob(j.sweepAndLog))
	c.Start()

	j.cron = c
	j.running = true
	logging.Info("Bundle janitor scheduled (%s), next run at %s", schedule, sched.Next(j.now()).Format(time.RFC3339))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// end.
func (j *Janitor) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.running = false
	j.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
