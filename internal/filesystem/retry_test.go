package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

type recordingObserver struct {
	mu       sync.Mutex
	attempts int
	success  int
	failures int
	stale    int
}

func (r *recordingObserver) ObserveRetryAttempt(string, string) {
	r.mu.Lock()
	r.attempts++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveRetrySuccess(string, string) {
	r.mu.Lock()
	r.success++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveRetryFailure(string, string) {
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveRetryDuration(string, string, float64) {}

func (r *recordingObserver) ObserveStaleError(string, string) {
	r.mu.Lock()
	r.stale++
	r.mu.Unlock()
}

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
}

func TestRetryConfigDelay(t *testing.T) {
	config := DefaultRetryConfig()
	want := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}
	for n, w := range want {
		if got := config.delay(n); got != w {
			t.Errorf("delay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ESTALE", syscall.ESTALE, true},
		{"wrapped ESTALE", &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, true},
		{"ENOENT", syscall.ENOENT, false},
		{"generic", os.ErrNotExist, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Resolve(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"watch":    "/data",
		"previews": "/data/.previews",
		"zips":     "/zips",
		"database": "",
	})

	tests := []struct {
		path string
		want string
	}{
		{"/data", "watch"},
		{"/data/docs/a.png", "watch"},
		{"/data/.previews/docs/a.jpeg", "previews"},
		{"/data/.previews", "previews"},
		{"/zips/bundle.zip", "zips"},
		{"/datastore/file", "unknown"},
		{"/", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := vr.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Nil(t *testing.T) {
	var vr *VolumeResolver
	if got := vr.Resolve("/data/a.png"); got != "unknown" {
		t.Errorf("nil resolver Resolve() = %q, want unknown", got)
	}
}

func TestRetryConfig_ResolveVolume(t *testing.T) {
	original := defaultResolver
	defer func() { defaultResolver = original }()

	SetDefaultVolumeResolver(NewVolumeResolver(map[string]string{"default": "/data"}))

	config := fastConfig()
	if got := config.resolveVolume("/data/a.png"); got != "default" {
		t.Errorf("resolveVolume() = %q, want default", got)
	}

	config.VolumeResolver = NewVolumeResolver(map[string]string{"override": "/data"})
	if got := config.resolveVolume("/data/a.png"); got != "override" {
		t.Errorf("resolveVolume() = %q, want override", got)
	}
}

func TestWithRetry_RecoversFromStaleHandle(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	calls := 0
	got, err := withRetry("stat", "/data/a.png", fastConfig(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("stat: %w", syscall.ESTALE)
		}
		return "ok", nil
	})

	if err != nil || got != "ok" {
		t.Fatalf("withRetry() = (%q, %v), want (ok, nil)", got, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if obs.stale != 2 || obs.attempts != 2 || obs.success != 1 || obs.failures != 0 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	calls := 0
	_, err := withRetry("open", "/data/a.png", fastConfig(), func() (int, error) {
		calls++
		return 0, syscall.ESTALE
	})

	if err != syscall.ESTALE {
		t.Errorf("withRetry() error = %v, want ESTALE", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if obs.failures != 1 {
		t.Errorf("failures = %d, want 1", obs.failures)
	}
}

func TestStatWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	info, err := StatWithRetry(testFile, fastConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error = %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("Size() = %d, want 4", info.Size())
	}

	start := time.Now()
	_, err = StatWithRetry(filepath.Join(tmpDir, "missing.txt"), DefaultRetryConfig())
	if !os.IsNotExist(err) {
		t.Errorf("StatWithRetry() error = %v, want not-exist", err)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("non-stale error was retried (took %v)", elapsed)
	}
}

func TestOpenWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("content"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	file, err := OpenWithRetry(testFile, fastConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry() error = %v", err)
	}
	file.Close()

	if _, err := OpenWithRetry(filepath.Join(tmpDir, "missing"), fastConfig()); !os.IsNotExist(err) {
		t.Errorf("OpenWithRetry() error = %v, want not-exist", err)
	}
}

func TestReadDirWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"a.png", "b.tif"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ReadDirWithRetry(tmpDir, fastConfig())
	if err != nil {
		t.Fatalf("ReadDirWithRetry() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func BenchmarkVolumeResolver_Resolve(b *testing.B) {
	vr := NewVolumeResolver(map[string]string{
		"watch":    "/data",
		"previews": "/previews",
		"zips":     "/zips",
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vr.Resolve("/data/projects/2024/cover.psb")
	}
}
