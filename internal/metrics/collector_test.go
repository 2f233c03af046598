package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockStatsProvider struct {
	mu        sync.Mutex
	stats     Stats
	err       error
	calls     int
	dbUpdates int
}

func (m *mockStatsProvider) GetStats(context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.stats, m.err
}

func (m *mockStatsProvider) UpdateDBMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dbUpdates++
}

func (m *mockStatsProvider) counts() (calls, dbUpdates int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.dbUpdates
}

func TestCollectorCollectsOnStart(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{Directories: 3, Artifacts: 12, ErrorLogEntries: 2}}
	collector := NewCollector(provider, time.Hour)

	collector.Start()
	deadline := time.Now().Add(time.Second)
	for {
		if calls, _ := provider.counts(); calls > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("collector did not collect on start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	collector.Stop()

	if got := gaugeValue(t, DirectoriesTotal); got != 3 {
		t.Errorf("DirectoriesTotal = %v, want 3", got)
	}
	if got := gaugeValue(t, ArtifactsTotal); got != 12 {
		t.Errorf("ArtifactsTotal = %v, want 12", got)
	}
	if _, updates := provider.counts(); updates != 1 {
		t.Errorf("UpdateDBMetrics calls = %d, want 1", updates)
	}
}

func TestCollectorTicks(t *testing.T) {
	provider := &mockStatsProvider{}
	collector := NewCollector(provider, 10*time.Millisecond)

	collector.Start()
	time.Sleep(60 * time.Millisecond)
	collector.Stop()

	if calls, _ := provider.counts(); calls < 2 {
		t.Errorf("GetStats calls = %d, want at least 2", calls)
	}
}

func TestCollectorSkipsOnError(t *testing.T) {
	provider := &mockStatsProvider{err: errors.New("database is locked")}
	collector := NewCollector(provider, time.Hour)

	collector.collect()

	if _, updates := provider.counts(); updates != 0 {
		t.Errorf("UpdateDBMetrics called %d times after a stats error", updates)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	collector := NewCollector(nil, time.Hour)
	collector.collect()
}

func TestCollectorStopIsIdempotent(t *testing.T) {
	NewCollector(&mockStatsProvider{}, time.Hour).Stop()

	collector := NewCollector(&mockStatsProvider{}, time.Hour)
	collector.Start()
	collector.Stop()
	collector.Stop()
}
