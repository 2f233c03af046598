package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preview-watcher/internal/database"
	"preview-watcher/internal/preview"
	"preview-watcher/internal/watcher"
)

type fixture struct {
	root     string
	previews string
	db       *database.Database
	orch     *Orchestrator
}

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		root:     filepath.Join(base, "watch"),
		previews: filepath.Join(base, "previews"),
		db:       setupTestDB(t),
	}
	require.NoError(t, os.MkdirAll(f.root, 0o755))
	renderer := preview.NewRenderer(preview.RendererConfig{Quality: 80, MaxDimension: 1200})
	f.orch = NewOrchestrator(f.root, f.previews, f.db, preview.NewDecoder(), renderer)
	return f
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xc0
	}
	img.Set(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func countArtifacts(t *testing.T, db *database.Database) int64 {
	t.Helper()
	stats, err := db.GetStats(context.Background())
	require.NoError(t, err)
	return stats.Artifacts
}

// scan runs one poll pass through a pool and returns the results.
func (f *fixture) scan(t *testing.T, resync bool) []Result {
	t.Helper()
	ex, err := watcher.NewExcluder(f.root, nil, []string{f.previews})
	require.NoError(t, err)
	w := watcher.NewPollWatcher(f.root, 0, ex, resync)
	ctx := context.Background()
	if !resync {
		require.NoError(t, w.Seed(ctx))
	}

	events := make(chan watcher.Event, 64)
	require.NoError(t, w.Pass(ctx, events))
	close(events)

	var mu sync.Mutex
	var results []Result
	pool := NewPool(f.orch, PoolOptions{Workers: 3, OnResult: func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}})
	require.NoError(t, pool.Run(ctx, events))
	return results
}

func TestScanScenario(t *testing.T) {
	f := newFixture(t)
	writePNG(t, filepath.Join(f.root, "docs", "a.png"), 400, 300)
	writePNG(t, filepath.Join(f.root, "docs", ".hidden.png"), 10, 10)

	results := f.scan(t, true)
	require.Len(t, results, 1)
	assert.Equal(t, StateRecorded, results[0].State)

	ctx := context.Background()
	dirs, err := f.db.ListDirectories(ctx)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "docs", dirs[0].Path)

	artifacts, err := f.db.ListArtifactsByDirectory(ctx, dirs[0].ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, filepath.Join(f.previews, "docs", "a.jpeg"), artifacts[0].PreviewPath)
	assert.Equal(t, filepath.Join(f.root, "docs", "a.png"), artifacts[0].OriginalPath)
	assert.Equal(t, "a", artifacts[0].Name)
	assert.Positive(t, artifacts[0].OriginalSize)
	assert.Nil(t, artifacts[0].DPI)
	assert.Nil(t, artifacts[0].Dimension)
	assert.Nil(t, artifacts[0].Pixels)
	assert.FileExists(t, artifacts[0].PreviewPath)
	assert.NoFileExists(t, filepath.Join(f.previews, "docs", ".hidden.jpeg"))

	// A rescan with nothing changed adds nothing.
	assert.Empty(t, f.scan(t, false))

	// A forced resync re-renders but records nothing new.
	again := f.scan(t, true)
	require.Len(t, again, 1)
	assert.Equal(t, StateSkippedDuplicate, again[0].State)

	assert.Equal(t, int64(1), countArtifacts(t, f.db))
	dirs, err = f.db.ListDirectories(ctx)
	require.NoError(t, err)
	assert.Len(t, dirs, 1)
}

func TestDedupGuard(t *testing.T) {
	f := newFixture(t)
	src := filepath.Join(f.root, "a.png")
	writePNG(t, src, 50, 50)
	ctx := context.Background()

	first := f.orch.Process(ctx, src)
	require.NoError(t, first.Err)
	assert.Equal(t, StateRecorded, first.State)

	info, err := os.Stat(first.PreviewPath)
	require.NoError(t, err)
	require.NoError(t, os.Remove(first.PreviewPath))

	second := f.orch.Process(ctx, src)
	require.NoError(t, second.Err)
	assert.Equal(t, StateSkippedDuplicate, second.State)
	assert.FileExists(t, second.PreviewPath, "preview is rewritten even when the row exists")
	assert.Positive(t, info.Size())

	assert.Equal(t, int64(1), countArtifacts(t, f.db))
}

func TestErrorIsolation(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"one.png", "two.png", "three.png"} {
		writePNG(t, filepath.Join(f.root, "batch", name), 20, 20)
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "batch", "broken.png"), []byte("not a png"), 0o644))

	results := f.scan(t, true)
	require.Len(t, results, 4)

	states := map[string]State{}
	for _, r := range results {
		states[filepath.Base(r.Path)] = r.State
	}
	assert.Equal(t, StateFailed, states["broken.png"])
	assert.Equal(t, StateRecorded, states["one.png"])
	assert.Equal(t, StateRecorded, states["two.png"])
	assert.Equal(t, StateRecorded, states["three.png"])
	assert.Equal(t, int64(3), countArtifacts(t, f.db))

	entries, err := f.db.RecentErrorLog(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Message, "Error processing file "+filepath.Join(f.root, "batch", "broken.png")+": "))
}

func TestFailedDecodeStopsBeforeRender(t *testing.T) {
	f := newFixture(t)
	src := filepath.Join(f.root, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("plain text"), 0o644))

	res := f.orch.Process(context.Background(), src)
	assert.Equal(t, StateFailed, res.State)

	var decErr *preview.DecodeError
	assert.ErrorAs(t, res.Err, &decErr)
	assert.NotEmpty(t, res.DirectoryID, "directory is resolved before decoding")
	assert.NoFileExists(t, res.PreviewPath)
}

func TestHiddenPathsAreIgnored(t *testing.T) {
	f := newFixture(t)
	for _, rel := range []string{".hidden.png", ".cache/x.png"} {
		src := filepath.Join(f.root, rel)
		writePNG(t, src, 5, 5)
		res := f.orch.Process(context.Background(), src)
		assert.ErrorIs(t, res.Err, ErrHidden)
		assert.Equal(t, StateDetected, res.State)
	}
	assert.Equal(t, int64(0), countArtifacts(t, f.db))
}

func TestPreviewCollisionLastWriterWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	png1 := filepath.Join(f.root, "docs", "a.png")
	writePNG(t, png1, 30, 30)
	// Content is sniffed, so PNG bytes under a .gif name still decode.
	other := filepath.Join(f.root, "docs", "a.gif")
	writePNG(t, other, 60, 20)

	first := f.orch.Process(ctx, png1)
	second := f.orch.Process(ctx, other)
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, first.PreviewPath, second.PreviewPath)

	f2, err := os.Open(second.PreviewPath)
	require.NoError(t, err)
	defer func() { _ = f2.Close() }()
	cfg, _, err := image.DecodeConfig(f2)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Width, "the later source owns the preview file")

	owner, err := f.db.FindPreviewOwner(ctx, first.PreviewPath, other)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, png1, owner.OriginalPath)
}

// flakyStore fails directory lookups but otherwise delegates to a real database.
type flakyStore struct {
	*database.Database
}

func (flakyStore) FindDirectoryByPath(context.Context, string) (*database.Directory, error) {
	return nil, errors.New("connection refused")
}

func TestDirectoryFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	store := flakyStore{f.db}
	orch := NewOrchestrator(f.root, f.previews, store, preview.NewDecoder(),
		preview.NewRenderer(preview.RendererConfig{Quality: 60, MaxDimension: 100}))

	src := filepath.Join(f.root, "docs", "a.png")
	writePNG(t, src, 10, 10)

	res := orch.Process(context.Background(), src)
	require.NoError(t, res.Err)
	assert.Equal(t, StateRecorded, res.State)
	assert.Empty(t, res.DirectoryID)

	entries, err := f.db.RecentErrorLog(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "Error registering directory")

	_, err = orch.RegisterDirectory(context.Background(), filepath.Join(f.root, "docs"))
	assert.Error(t, err)
}

func TestRegisterDirectory(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.root, "new")

	id1, err := f.orch.RegisterDirectory(context.Background(), dir)
	require.NoError(t, err)
	id2, err := f.orch.RegisterDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "a", displayName("/data/docs/a.png"))
	assert.Equal(t, "a.b", displayName("/data/a.b.tif"))
	assert.Equal(t, "README", displayName("/data/README"))
}
