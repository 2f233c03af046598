package memory

import (
	"context"
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(limit int64, alloc *uint64) *Monitor {
	m := NewMonitor(Config{
		MemoryLimitBytes:  limit,
		HighWaterMark:     0.5,
		CriticalWaterMark: 0.8,
		CheckInterval:     time.Hour,
	})
	m.readAlloc = func() uint64 { return *alloc }
	return m
}

func TestMonitorPausesAndResumes(t *testing.T) {
	alloc := uint64(10)
	m := newTestMonitor(100, &alloc)

	m.sample()
	assert.False(t, m.IsPaused())
	assert.InDelta(t, 0.1, m.Usage(), 0.0001)

	alloc = 90
	m.sample()
	require.True(t, m.IsPaused())

	released := make(chan error, 1)
	go func() { released <- m.Wait(context.Background()) }()

	select {
	case <-released:
		t.Fatal("Wait returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	// Between the water marks the monitor stays paused
	alloc = 60
	m.sample()
	assert.True(t, m.IsPaused())

	alloc = 40
	m.sample()
	assert.False(t, m.IsPaused())

	select {
	case err := <-released:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after recovery")
	}
}

func TestMonitorWaitHonoursContext(t *testing.T) {
	alloc := uint64(95)
	m := newTestMonitor(100, &alloc)
	m.sample()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	alloc := uint64(95)
	m := newTestMonitor(100, &alloc)
	m.sample()

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()

	m.Stop()
	m.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop did not release waiter")
	}
}

func TestMonitorNil(t *testing.T) {
	var m *Monitor
	assert.NoError(t, m.Wait(context.Background()))
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"", DefaultMemoryRatio},
		{"0.5", 0.5},
		{"1", 1},
		{"0", DefaultMemoryRatio},
		{"1.5", DefaultMemoryRatio},
		{"half", DefaultMemoryRatio},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRatio(tt.input))
		})
	}
}

func TestConfigureFromEnv(t *testing.T) {
	original := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(original)

	t.Run("nothing set", func(t *testing.T) {
		t.Setenv("GOMEMLIMIT", "")
		t.Setenv("MEMORY_LIMIT", "")
		result := ConfigureFromEnv()
		assert.False(t, result.Configured)
		assert.Equal(t, "none", result.Source)
	})

	t.Run("container limit", func(t *testing.T) {
		t.Setenv("GOMEMLIMIT", "")
		t.Setenv("MEMORY_LIMIT", "1073741824")
		t.Setenv("MEMORY_RATIO", "0.5")
		result := ConfigureFromEnv()
		assert.True(t, result.Configured)
		assert.Equal(t, "MEMORY_LIMIT", result.Source)
		assert.Equal(t, int64(536870912), result.GoMemLimit)
		assert.Equal(t, int64(536870912), debug.SetMemoryLimit(-1))
	})

	t.Run("invalid limit", func(t *testing.T) {
		t.Setenv("GOMEMLIMIT", "")
		t.Setenv("MEMORY_LIMIT", "lots")
		result := ConfigureFromEnv()
		assert.False(t, result.Configured)
	})
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KiB", formatBytes(1024))
	assert.Equal(t, "1.5 GiB", formatBytes(1536*1024*1024))
}
