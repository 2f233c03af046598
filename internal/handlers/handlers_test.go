package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"preview-watcher/internal/bundle"
	"preview-watcher/internal/database"
	"preview-watcher/internal/notify"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages map[string][]notify.Message
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{messages: make(map[string][]notify.Message)}
}

func (f *fakeNotifier) Notify(_ context.Context, clientID string, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[clientID] = append(f.messages[clientID], msg)
	return nil
}

func (f *fakeNotifier) ServeWS(w http.ResponseWriter, _ *http.Request, clientID string) {
	writeText(w, http.StatusTeapot, clientID)
}

func (f *fakeNotifier) received(clientID string) []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Message(nil), f.messages[clientID]...)
}

type fixture struct {
	db       *database.Database
	watch    string
	previews string
	zips     string
	dirID    string
	a, b     database.PreviewArtifact
}

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// newFixture records docs/a.png and docs/b.png with previews on disk.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		db:       setupTestDB(t),
		watch:    filepath.Join(root, "watch"),
		previews: filepath.Join(root, "previews"),
		zips:     filepath.Join(root, "zips"),
		dirID:    uuid.NewString(),
	}
	ctx := context.Background()

	_, err := f.db.CreateDirectory(ctx, &database.Directory{ID: f.dirID, Name: "docs", Path: "docs"})
	require.NoError(t, err)

	record := func(name string) database.PreviewArtifact {
		orig := filepath.Join(f.watch, "docs", name+".png")
		prev := filepath.Join(f.previews, "docs", name+".jpeg")
		writePNG(t, orig)
		require.NoError(t, os.MkdirAll(filepath.Dir(prev), 0o755))
		require.NoError(t, os.WriteFile(prev, []byte("jpeg-"+name), 0o644))
		dirID := f.dirID
		a := database.PreviewArtifact{
			ID:           uuid.NewString(),
			DirectoryID:  &dirID,
			PreviewPath:  prev,
			OriginalPath: orig,
			OriginalSize: 10,
			Name:         name,
		}
		_, err := f.db.CreateArtifact(ctx, &a)
		require.NoError(t, err)
		return a
	}
	f.a = record("a")
	f.b = record("b")
	return f
}

func (f *fixture) handlers(notifier Notifier, opts Options) *Handlers {
	opts.WatchDir = f.watch
	opts.PreviewDir = f.previews
	if opts.ZipDir == "" {
		opts.ZipDir = f.zips
	}
	return New(f.db, notifier, opts)
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func get(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDownloadValidation(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(nil, Options{ZipsEnabled: true})

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"missing directory", "/download", http.StatusBadRequest, "Missing directory parameter"},
		{"blank ids", "/download?directory=,,", http.StatusBadRequest, "Missing directory parameter"},
		{"bad mode", "/download?directory=x&mode=thumbnail", http.StatusBadRequest, "Invalid mode parameter"},
		{"async without notifier", "/download?directory=x&client=c1", http.StatusInternalServerError, "Asynchronous downloads are not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(h.Download, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestDownloadStreamsDirectory(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(nil, Options{})

	rec := get(h.Download, "/download?directory="+f.dirID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.ElementsMatch(t, []string{"a.png", "b.png"}, zipNames(t, rec.Body.Bytes()))
}

func TestDownloadPreviewMode(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(nil, Options{})

	rec := get(h.Download, "/download?mode=preview&directory="+f.a.ID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"a.jpeg"}, zipNames(t, rec.Body.Bytes()))
}

func TestDownloadRemovesTemporaryZip(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(nil, Options{})
	tmp := t.TempDir()
	h.streamBuilder = bundle.NewBuilder(tmp)

	rec := get(h.Download, "/download?directory="+f.a.ID+","+f.b.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadMissingIDs(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(nil, Options{})

	emptyDir := uuid.NewString()
	_, err := f.db.CreateDirectory(context.Background(), &database.Directory{ID: emptyDir, Name: "empty", Path: "empty"})
	require.NoError(t, err)

	rec := get(h.Download, "/download?directory=nope,"+f.a.ID+","+emptyDir+",gone")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"nope", emptyDir, "gone"}, body["missing"])
}

func TestDownloadPermissions(t *testing.T) {
	f := newFixture(t)

	var gotAuth string
	var gotIDs []string
	perm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req permissionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotIDs = req.IDs
		_ = json.NewEncoder(w).Encode(permissionResponse{Allowed: []string{f.a.ID}})
	}))
	defer perm.Close()

	h := f.handlers(nil, Options{PermissionsURL: perm.URL})

	req := httptest.NewRequest(http.MethodGet, "/download?directory="+f.a.ID+","+f.b.ID, nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.Download(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"missing":["`+f.b.ID+`"]}`, rec.Body.String())
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, []string{f.a.ID, f.b.ID}, gotIDs)
}

func TestDownloadPermissionServiceFailure(t *testing.T) {
	f := newFixture(t)
	perm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer perm.Close()

	h := f.handlers(nil, Options{PermissionsURL: perm.URL})
	rec := get(h.Download, "/download?directory="+f.a.ID)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	perm.Close()
	rec = get(h.Download, "/download?directory="+f.a.ID)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDownloadAsyncNotifiesClient(t *testing.T) {
	f := newFixture(t)
	notifier := newFakeNotifier()
	h := f.handlers(notifier, Options{ZipsEnabled: true})

	rec := get(h.Download, "/download?client=c1&directory="+f.dirID)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"status":"processing"}`, rec.Body.String())

	require.Eventually(t, func() bool { return len(notifier.received("c1")) == 1 }, 5*time.Second, 20*time.Millisecond)
	msg := notifier.received("c1")[0]
	assert.Equal(t, notify.StatusReady, msg.Status)
	require.True(t, strings.HasPrefix(msg.ZipPath, ZipRoute), msg.ZipPath)

	name := strings.TrimPrefix(msg.ZipPath, ZipRoute)
	assert.FileExists(t, filepath.Join(f.zips, name))

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, msg.ZipPath, nil), map[string]string{"name": name})
	zipRec := httptest.NewRecorder()
	h.ServeZip(zipRec, req)
	require.Equal(t, http.StatusOK, zipRec.Code)
	assert.ElementsMatch(t, []string{"a.png", "b.png"}, zipNames(t, zipRec.Body.Bytes()))

	h.Shutdown(context.Background())
}

func TestServeZipRejectsTraversal(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(nil, Options{})
	for _, name := range []string{"../etc/passwd", ".hidden.zip", ""} {
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/zips/x", nil), map[string]string{"name": name})
		rec := httptest.NewRecorder()
		h.ServeZip(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
	}
}

func TestListDirectories(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(nil, Options{})

	rec := get(h.ListDirectories, "/api/directories")
	require.Equal(t, http.StatusOK, rec.Code)

	var dirs []database.Directory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dirs))
	require.Len(t, dirs, 1)
	assert.Equal(t, "docs", dirs[0].Path)
}

func TestListDirectoriesEmpty(t *testing.T) {
	h := New(setupTestDB(t), nil, Options{})
	rec := get(h.ListDirectories, "/api/directories")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestListPreviews(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(nil, Options{})

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": f.dirID})
	rec := httptest.NewRecorder()
	h.ListPreviews(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var previews []PreviewListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &previews))
	require.Len(t, previews, 2)
	assert.Equal(t, "a", previews[0].Name)
	assert.Equal(t, "/files/originals/docs/a.png", previews[0].OriginalURL)
	assert.Equal(t, "/files/previews/docs/a.jpeg", previews[0].PreviewURL)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "unknown"})
	rec = httptest.NewRecorder()
	h.ListPreviews(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeFiles(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(nil, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(f.watch, "docs", ".secret.png"), []byte("x"), 0o644))

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		path       string
		wantStatus int
		wantType   string
	}{
		{"original", h.ServeOriginal, "docs/a.png", http.StatusOK, "image/png"},
		{"preview", h.ServePreview, "docs/a.jpeg", http.StatusOK, "image/jpeg"},
		{"traversal", h.ServeOriginal, "../previews/docs/a.jpeg", http.StatusNotFound, ""},
		{"hidden", h.ServeOriginal, "docs/.secret.png", http.StatusNotFound, ""},
		{"directory", h.ServeOriginal, "docs", http.StatusNotFound, ""},
		{"missing", h.ServePreview, "docs/zzz.jpeg", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/files/x", nil), map[string]string{"path": tt.path})
			rec := httptest.NewRecorder()
			tt.handler(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestWebSocketHandler(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handlers(nil, Options{}).WebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws/c1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/ws/c1", nil), map[string]string{"clientID": "c1"})
	rec = httptest.NewRecorder()
	f.handlers(newFakeNotifier(), Options{}).WebSocket(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "c1", rec.Body.String())
}

type fixedQueue int

func (q fixedQueue) Queued() int { return int(q) }

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	h := f.handlers(nil, Options{})

	rec := get(h.HealthCheck, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetReady(true)
	h.SetQueue(fixedQueue(3))
	rec = get(h.HealthCheck, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, statusHealthy, resp.Status)
	assert.Equal(t, 3, resp.Queued)
	assert.Equal(t, int64(1), resp.Directories)
	assert.Equal(t, int64(2), resp.Artifacts)

	require.NoError(t, f.db.Close())
	rec = get(h.HealthCheck, "/health")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, statusDegraded, resp.Status)
}

func TestProbes(t *testing.T) {
	h := New(setupTestDB(t), nil, Options{})

	assert.Equal(t, http.StatusOK, get(h.LivenessCheck, "/livez").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(h.ReadinessCheck, "/readyz").Code)
	h.SetReady(true)
	assert.Equal(t, http.StatusOK, get(h.ReadinessCheck, "/readyz").Code)

	rec := httptest.NewRecorder()
	h.LivenessCheck(rec, httptest.NewRequest(http.MethodHead, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestGetVersion(t *testing.T) {
	h := New(setupTestDB(t), nil, Options{})
	rec := get(h.GetVersion, "/version")
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"version"`)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitIDs(" a, b ,a,,"))
	assert.Nil(t, splitIDs(","))
}

func TestContainedPath(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "data")
	tests := []struct {
		rel  string
		want string
		ok   bool
	}{
		{"docs/a.png", filepath.Join(root, "docs", "a.png"), true},
		{"../etc/passwd", filepath.Join(root, "etc", "passwd"), true},
		{"", root, true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, ok := containedPath(root, tt.rel)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	_, ok := containedPath("", "a")
	assert.False(t, ok)
}

func TestFileURL(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "data")
	assert.Equal(t, "/files/originals/a%20b/c.png", fileURL(OriginalsRoute, root, filepath.Join(root, "a b", "c.png")))
	assert.Empty(t, fileURL(OriginalsRoute, root, filepath.Join(string(filepath.Separator), "other", "c.png")))
	assert.Empty(t, fileURL(OriginalsRoute, "", "/x"))
}
