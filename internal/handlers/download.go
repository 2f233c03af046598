package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"sort"

	"preview-watcher/internal/bundle"
	"preview-watcher/internal/database"
	"preview-watcher/internal/logging"
	"preview-watcher/internal/metrics"
	"preview-watcher/internal/notify"
	"preview-watcher/internal/streaming"
)

// Download modes.
const (
	ModeOriginal = "original"
	ModePreview  = "preview"
)

// ZipRoute is the URL prefix asynchronous bundles are fetched from.
const ZipRoute = "/zips/"

// Download bundles the files behind a list of ids into a ZIP.
//
//	GET /download?directory=<id,...>&mode=original|preview[&client=<id>]
//
// Each id is a directory id (every artifact recorded under it) or an
// artifact id. Without client the archive is streamed back. With client the
// handler answers 201 and the client is notified over its WebSocket once
// the archive is ready.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	raw := q.Get("directory")
	if raw == "" {
		writeText(w, http.StatusBadRequest, "Missing directory parameter")
		return
	}
	ids := splitIDs(raw)
	if len(ids) == 0 {
		writeText(w, http.StatusBadRequest, "Missing directory parameter")
		return
	}

	mode := q.Get("mode")
	if mode == "" {
		mode = ModeOriginal
	}
	if mode != ModeOriginal && mode != ModePreview {
		writeText(w, http.StatusBadRequest, "Invalid mode parameter")
		return
	}

	clientID := q.Get("client")
	if clientID != "" && (h.notifier == nil || h.asyncBuilder == nil) {
		logging.Error("Asynchronous download requested but ZIP_DIR or the notifier is unavailable")
		writeText(w, http.StatusInternalServerError, "Asynchronous downloads are not configured")
		return
	}

	ctx := r.Context()
	denied := map[string]bool{}
	if h.permissions != nil {
		allowed, err := h.permissions.Allowed(ctx, r.Header.Get("Authorization"), mode, ids)
		if err != nil {
			logging.Error("Permission check failed: %v", err)
			writeText(w, http.StatusBadGateway, "Permission service unavailable")
			return
		}
		for _, id := range ids {
			if !allowed[id] {
				denied[id] = true
			}
		}
	}

	files, missing, err := h.resolve(ctx, ids, denied, mode)
	if err != nil {
		logging.Error("Failed to resolve download ids: %v", err)
		writeText(w, http.StatusInternalServerError, "Failed to resolve download")
		return
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusNotFound, map[string][]string{"missing": missing})
		return
	}

	if clientID != "" {
		h.bg.Add(1)
		go h.buildAsync(clientID, files)
		writeJSON(w, http.StatusCreated, map[string]string{"status": "processing"})
		return
	}

	h.stream(w, r, files)
}

// resolve maps ids to files on disk. Ids that are denied, unknown, or have
// no files for mode are returned as missing, in request order.
func (h *Handlers) resolve(ctx context.Context, ids []string, denied map[string]bool, mode string) ([]string, []string, error) {
	var files []string
	var missing []string
	var artifactIDs []string

	for _, id := range ids {
		if denied[id] {
			missing = append(missing, id)
			continue
		}
		dir, err := h.store.GetDirectory(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if dir == nil {
			artifactIDs = append(artifactIDs, id)
			continue
		}
		artifacts, err := h.store.ListArtifactsByDirectory(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		dirFiles := h.filesFor(artifacts, mode)
		if len(dirFiles) == 0 {
			missing = append(missing, id)
			continue
		}
		files = append(files, dirFiles...)
	}

	if len(artifactIDs) > 0 {
		artifacts, err := h.store.GetArtifactsByIDs(ctx, artifactIDs)
		if err != nil {
			return nil, nil, err
		}
		byID := make(map[string]database.PreviewArtifact, len(artifacts))
		for _, a := range artifacts {
			byID[a.ID] = a
		}
		for _, id := range artifactIDs {
			a, ok := byID[id]
			if !ok {
				missing = append(missing, id)
				continue
			}
			found := h.filesFor([]database.PreviewArtifact{a}, mode)
			if len(found) == 0 {
				missing = append(missing, id)
				continue
			}
			files = append(files, found...)
		}
	}

	sort.SliceStable(missing, func(i, j int) bool { return indexOf(ids, missing[i]) < indexOf(ids, missing[j]) })
	return files, missing, nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return len(list)
}

// filesFor picks the original or preview path of each artifact, keeping
// only paths inside the configured roots.
func (h *Handlers) filesFor(artifacts []database.PreviewArtifact, mode string) []string {
	var out []string
	for _, a := range artifacts {
		p, root := a.OriginalPath, h.opts.WatchDir
		if mode == ModePreview {
			p, root = a.PreviewPath, h.opts.PreviewDir
		}
		if p == "" || root == "" || !within(root, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (h *Handlers) stream(w http.ResponseWriter, r *http.Request, files []string) {
	b, err := h.streamBuilder.Build(r.Context(), files)
	if err != nil {
		metrics.BundlesTotal.WithLabelValues("stream", "error").Inc()
		if errors.Is(err, bundle.ErrEmpty) {
			writeText(w, http.StatusNotFound, "No files available")
			return
		}
		logging.Error("Failed to build ZIP: %v", err)
		writeText(w, http.StatusInternalServerError, "Failed to build ZIP")
		return
	}
	defer func() {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			logging.Warn("Failed to remove temporary ZIP %s: %v", b.Path, err)
		}
	}()

	if _, err := streaming.ServeAttachment(w, r, b.Path, b.Name, "application/zip", streaming.DefaultConfig()); err != nil {
		metrics.BundlesTotal.WithLabelValues("stream", "error").Inc()
		if !errors.Is(err, streaming.ErrClientGone) {
			logging.Warn("ZIP stream to %s ended early: %v", r.RemoteAddr, err)
		}
		return
	}
	metrics.BundlesTotal.WithLabelValues("stream", "success").Inc()
}

func (h *Handlers) buildAsync(clientID string, files []string) {
	defer h.bg.Done()

	b, err := h.asyncBuilder.Build(h.bgCtx, files)
	if err != nil {
		metrics.BundlesTotal.WithLabelValues("async", "error").Inc()
		logging.Error("Failed to build ZIP for client %s: %v", clientID, err)
		return
	}
	metrics.BundlesTotal.WithLabelValues("async", "success").Inc()

	msg := notify.Message{Status: notify.StatusReady, ZipPath: path.Join(ZipRoute, b.Name)}
	if err := h.notifier.Notify(context.WithoutCancel(h.bgCtx), clientID, msg); err != nil {
		logging.Error("Failed to notify client %s: %v", clientID, err)
	}
}
