package handlers

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"preview-watcher/internal/bundle"
	"preview-watcher/internal/database"
	"preview-watcher/internal/metrics"
	"preview-watcher/internal/notify"
)

// Store is the read side of the database used by the HTTP surface.
type Store interface {
	GetDirectory(ctx context.Context, id string) (*database.Directory, error)
	ListDirectories(ctx context.Context) ([]database.Directory, error)
	ListArtifactsByDirectory(ctx context.Context, directoryID string) ([]database.PreviewArtifact, error)
	GetArtifactsByIDs(ctx context.Context, ids []string) ([]database.PreviewArtifact, error)
	GetStats(ctx context.Context) (metrics.Stats, error)
	Ping(ctx context.Context) error
}

// Notifier pushes bundle notifications and serves WebSocket clients.
type Notifier interface {
	Notify(ctx context.Context, clientID string, msg notify.Message) error
	ServeWS(w http.ResponseWriter, r *http.Request, clientID string)
}

// QueueReporter exposes the pipeline backlog.
type QueueReporter interface {
	Queued() int
}

// Options configures Handlers.
type Options struct {
	WatchDir   string
	PreviewDir string
	ZipDir     string

	// ZipsEnabled is false when ZIP_DIR is unusable; asynchronous
	// downloads are then rejected.
	ZipsEnabled bool

	// PermissionsURL, when set, is asked which ids a request may download.
	PermissionsURL string
	HTTPClient     *http.Client
}

// Handlers holds the dependencies of every HTTP handler.
type Handlers struct {
	store    Store
	notifier Notifier
	opts     Options

	streamBuilder *bundle.Builder
	asyncBuilder  *bundle.Builder
	permissions   *permissionClient

	ready   atomic.Bool
	queue   atomic.Value // QueueReporter
	started time.Time

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New creates Handlers. notifier may be nil, which disables asynchronous
// downloads and the WebSocket endpoint.
func New(store Store, notifier Notifier, opts Options) *Handlers {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handlers{
		store:         store,
		notifier:      notifier,
		opts:          opts,
		streamBuilder: bundle.NewBuilder(""),
		started:       time.Now(),
		bgCtx:         ctx,
		bgCancel:      cancel,
	}
	if opts.ZipsEnabled && opts.ZipDir != "" {
		h.asyncBuilder = bundle.NewBuilder(opts.ZipDir)
	}
	if opts.PermissionsURL != "" {
		h.permissions = newPermissionClient(opts.PermissionsURL, opts.HTTPClient)
	}
	return h
}

// SetReady marks the watcher as running.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetQueue attaches the pipeline backlog reported by the health check.
func (h *Handlers) SetQueue(q QueueReporter) {
	h.queue.Store(q)
}

func (h *Handlers) queued() int {
	if q, ok := h.queue.Load().(QueueReporter); ok && q != nil {
		return q.Queued()
	}
	return 0
}

// Shutdown cancels in-progress asynchronous bundles and waits for them to
// exit or for ctx to end.
func (h *Handlers) Shutdown(ctx context.Context) {
	h.bgCancel()
	done := make(chan struct{})
	go func() {
		h.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
