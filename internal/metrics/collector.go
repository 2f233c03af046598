package metrics

import (
	"context"
	"sync"
	"time"

	"preview-watcher/internal/logging"
)

// StatsProvider reports store totals.
type StatsProvider interface {
	GetStats(ctx context.Context) (Stats, error)
	UpdateDBMetrics()
}

// Stats holds the row counts of the store.
type Stats struct {
	Directories     int64
	Artifacts       int64
	ErrorLogEntries int64
}

// maxCollectTime caps one GetStats call when the interval is long.
const maxCollectTime = 10 * time.Second

// Collector copies store totals into gauges, once at Start and then on
// every interval tick.
type Collector struct {
	provider StatsProvider
	interval time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{provider: provider, interval: interval, done: make(chan struct{})}
}

func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

// Stop ends the loop and waits for an in-flight collection. Calling it more
// than once, or without Start, is harmless.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		<-c.done
	})
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		c.collectWith(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Collector) collect() {
	c.collectWith(context.Background())
}

func (c *Collector) collectWith(parent context.Context) {
	if c.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, min(c.interval, maxCollectTime))
	defer cancel()

	stats, err := c.provider.GetStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}
	DirectoriesTotal.Set(float64(stats.Directories))
	ArtifactsTotal.Set(float64(stats.Artifacts))
	ErrorLogEntriesTotal.Set(float64(stats.ErrorLogEntries))
	c.provider.UpdateDBMetrics()

	logging.Debug("Store totals: %d directories, %d artifacts, %d error log rows",
		stats.Directories, stats.Artifacts, stats.ErrorLogEntries)
}
