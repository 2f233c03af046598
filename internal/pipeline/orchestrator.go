package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"preview-watcher/internal/database"
	"preview-watcher/internal/filesystem"
	"preview-watcher/internal/logging"
	"preview-watcher/internal/mediatypes"
	"preview-watcher/internal/metrics"
	"preview-watcher/internal/preview"
	"preview-watcher/internal/registry"
)

// State is a step of the per-file state machine.
type State string

const (
	StateDetected          State = "DETECTED"
	StateDirectoryResolved State = "DIRECTORY_RESOLVED"
	StateDecoded           State = "DECODED"
	StateRendered          State = "RENDERED"
	StateRecorded          State = "RECORDED"
	StateSkippedDuplicate  State = "SKIPPED_DUPLICATE"
	StateFailed            State = "FAILED"
)

// ErrHidden is returned for paths with a hidden element; they are never processed.
var ErrHidden = errors.New("hidden path")

// Result is the outcome of one Process call. State is the last state reached.
type Result struct {
	Path        string
	State       State
	PreviewPath string
	DirectoryID string
	Err         error
}

// Store is the persistence the orchestrator needs.
type Store interface {
	registry.DirectoryStore
	registry.ArtifactStore
	FindPreviewOwner(ctx context.Context, previewPath, originalPath string) (*database.PreviewArtifact, error)
	AppendErrorLog(ctx context.Context, message string) error
}

// Decoder produces rasters; *preview.Decoder satisfies it.
type Decoder interface {
	Decode(ctx context.Context, path string) (*preview.Raster, error)
}

// Renderer writes previews; *preview.Renderer satisfies it.
type Renderer interface {
	Render(ctx context.Context, raster *preview.Raster, outputPath string) error
}

// Orchestrator processes single files end to end.
type Orchestrator struct {
	root        string
	previewRoot string
	store       Store
	dirs        *registry.DirectoryRegistry
	files       *registry.FileRegistry
	decoder     Decoder
	renderer    Renderer
}

// NewOrchestrator wires the registries over store.
func NewOrchestrator(root, previewRoot string, store Store, decoder Decoder, renderer Renderer) *Orchestrator {
	return &Orchestrator{
		root:        filepath.Clean(root),
		previewRoot: filepath.Clean(previewRoot),
		store:       store,
		dirs:        registry.NewDirectoryRegistry(root, store),
		files:       registry.NewFileRegistry(store),
		decoder:     decoder,
		renderer:    renderer,
	}
}

// Process runs path through the pipeline. It never panics on per-file
// failures; they are reported in the Result and the error log.
func (o *Orchestrator) Process(ctx context.Context, path string) Result {
	res := Result{Path: path, State: StateDetected}
	if hiddenBelow(o.root, path) {
		res.Err = ErrHidden
		return res
	}
	logging.Info("Processing %s...", path)

	out, err := preview.OutputPath(o.root, o.previewRoot, path)
	if err != nil {
		return o.fail(ctx, res, err)
	}
	res.PreviewPath = out

	dirID, err := o.dirs.EnsureRegistered(ctx, filepath.Dir(path))
	if err != nil {
		// Non-fatal: the artifact is recorded without a directory.
		o.logError(ctx, fmt.Sprintf("Error registering directory %s: %v", filepath.Dir(path), err))
	}
	res.DirectoryID = dirID
	res.State = StateDirectoryResolved

	raster, err := o.decoder.Decode(ctx, path)
	if err != nil {
		return o.fail(ctx, res, err)
	}
	res.State = StateDecoded

	o.warnCollision(ctx, out, path)

	logging.Debug("Converting %s (%s)", path, raster.Strategy)
	if err := o.renderer.Render(ctx, raster, out); err != nil {
		return o.fail(ctx, res, err)
	}
	res.State = StateRendered
	logging.Info("Conversion of %s completed successfully!", path)

	registered, err := o.files.IsAlreadyRegistered(ctx, path)
	if err != nil {
		return o.fail(ctx, res, err)
	}
	if registered {
		logging.Info("File %s is already registered. Skipping re-save.", path)
		return o.finish(res, StateSkippedDuplicate)
	}

	artifact := &database.PreviewArtifact{
		ID:           uuid.NewString(),
		PreviewPath:  out,
		OriginalPath: path,
		OriginalSize: o.sourceSize(path),
		Name:         displayName(path),
		CreatedAt:    time.Now(),
	}
	if dirID != "" {
		artifact.DirectoryID = &dirID
	}

	inserted, err := o.files.Record(ctx, artifact)
	if err != nil {
		return o.fail(ctx, res, err)
	}
	if !inserted {
		logging.Info("File %s was registered concurrently. Skipping re-save.", path)
		return o.finish(res, StateSkippedDuplicate)
	}
	return o.finish(res, StateRecorded)
}

// RegisterDirectory records a directory reported by the watcher.
func (o *Orchestrator) RegisterDirectory(ctx context.Context, dir string) (string, error) {
	id, err := o.dirs.EnsureRegistered(ctx, dir)
	if err != nil {
		o.logError(ctx, fmt.Sprintf("Error registering directory %s: %v", dir, err))
		return "", err
	}
	return id, nil
}

func (o *Orchestrator) warnCollision(ctx context.Context, previewPath, path string) {
	owner, err := o.store.FindPreviewOwner(ctx, previewPath, path)
	if err != nil {
		logging.Debug("Could not check preview ownership for %s: %v", previewPath, err)
		return
	}
	if owner != nil {
		logging.Warn("Preview %s already belongs to %s; %s overwrites it", previewPath, owner.OriginalPath, path)
	}
}

func (o *Orchestrator) sourceSize(path string) int64 {
	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		logging.Warn("Could not read size of %s: %v", path, err)
		return 0
	}
	return info.Size()
}

func (o *Orchestrator) fail(ctx context.Context, res Result, err error) Result {
	res.Err = err
	o.logError(ctx, fmt.Sprintf("Error processing file %s: %v", res.Path, err))
	return o.finish(res, StateFailed)
}

func (o *Orchestrator) finish(res Result, state State) Result {
	res.State = state
	metrics.PipelineResultsTotal.WithLabelValues(string(state)).Inc()
	return res
}

// logError writes message locally and, best effort, to the error log table.
// It still writes during shutdown.
func (o *Orchestrator) logError(ctx context.Context, message string) {
	logging.Error("%s", message)
	if err := o.store.AppendErrorLog(context.WithoutCancel(ctx), message); err != nil {
		logging.Warn("failed to record error log entry: %v", err)
	}
}

// displayName is the file name without its extension.
func displayName(path string) string {
	base := filepath.Base(path)
	if stem := strings.TrimSuffix(base, filepath.Ext(base)); stem != "" {
		return stem
	}
	return base
}

// hiddenBelow reports whether any element of path below root is hidden.
func hiddenBelow(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return mediatypes.IsHidden(filepath.Base(path))
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if mediatypes.IsHidden(part) {
			return true
		}
	}
	return false
}
