package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"preview-watcher/internal/logging"
	"preview-watcher/internal/metrics"
)

// Config holds memory backpressure configuration
type Config struct {
	// MemoryLimitBytes is the soft limit; 0 falls back to GOMEMLIMIT.
	MemoryLimitBytes int64

	// HighWaterMark is the fraction of the limit below which a paused monitor resumes.
	HighWaterMark float64

	// CriticalWaterMark is the fraction of the limit at which decoding pauses.
	CriticalWaterMark float64

	CheckInterval time.Duration
}

// DefaultConfig pauses at 85% of the limit and resumes below 70%.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     2 * time.Second,
	}
}

// Monitor samples heap usage and holds decoders back while it runs hot.
// Full-resolution PSB and TIFF rasters can be several hundred megabytes each,
// so workers call Wait before decoding.
type Monitor struct {
	config    Config
	limit     int64
	readAlloc func() uint64

	stop     chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	lastAlloc uint64
	// resume is non-nil while paused and closed when usage recovers.
	resume chan struct{}
}

// NewMonitor creates a Monitor. Without a configured limit or GOMEMLIMIT it
// never pauses.
func NewMonitor(config Config) *Monitor {
	limit := resolveLimit(config.MemoryLimitBytes)
	if limit == 0 {
		logging.Debug("Memory monitor: no limit, backpressure disabled")
	}
	return &Monitor{
		config:    config,
		limit:     limit,
		readAlloc: heapAlloc,
		stop:      make(chan struct{}),
	}
}

func resolveLimit(configured int64) int64 {
	if configured > 0 {
		return configured
	}
	// SetMemoryLimit(-1) only reads; math.MaxInt64 means unset.
	if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
		logging.Info("Memory monitor using GOMEMLIMIT: %s", formatBytes(l))
		return l
	}
	return 0
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Alloc
}

// Start samples every CheckInterval until Stop. It does nothing without a limit.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop ends sampling and releases every waiter. It may be called repeatedly.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) sample() {
	alloc := m.readAlloc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAlloc = alloc
	if m.limit <= 0 {
		return
	}

	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	paused := m.resume != nil
	if !paused && usage >= m.config.CriticalWaterMark {
		logging.Warn("Memory critical (%.1f%% of limit), pausing decodes", usage*100)
		m.resume = make(chan struct{})
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	} else if paused && usage < m.config.HighWaterMark {
		logging.Info("Memory recovered (%.1f%% of limit), resuming decodes", usage*100)
		close(m.resume)
		m.resume = nil
		metrics.MemoryPaused.Set(0)
	}
}

// Wait blocks while decodes are paused. It returns ctx.Err() if ctx ends
// first. A nil or stopped Monitor never blocks.
func (m *Monitor) Wait(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	resume := m.resume
	m.mu.Unlock()
	if resume == nil {
		return nil
	}

	select {
	case <-resume:
	case <-m.stop:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// IsPaused reports whether decodes are held back.
func (m *Monitor) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resume != nil
}

// Usage is the last sample as a fraction of the limit, 0 without a limit.
func (m *Monitor) Usage() float64 {
	if m.limit == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.lastAlloc) / float64(m.limit)
}
