package handlers

import (
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"preview-watcher/internal/filesystem"
	"preview-watcher/internal/logging"
	"preview-watcher/internal/mediatypes"

	"github.com/gorilla/mux"
)

// URL prefixes of the file routes.
const (
	OriginalsRoute = "/files/originals/"
	PreviewsRoute  = "/files/previews/"
)

// fileURL maps an absolute path under root to its URL below prefix.
func fileURL(prefix, root, abs string) string {
	if root == "" || abs == "" || !within(root, abs) {
		return ""
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return prefix + strings.Join(parts, "/")
}

// ServeOriginal serves a source file from the watch root.
func (h *Handlers) ServeOriginal(w http.ResponseWriter, r *http.Request) {
	h.serveFrom(w, r, h.opts.WatchDir, mux.Vars(r)["path"], "no-cache")
}

// ServePreview serves a generated JPEG from the preview root.
func (h *Handlers) ServePreview(w http.ResponseWriter, r *http.Request) {
	h.serveFrom(w, r, h.opts.PreviewDir, mux.Vars(r)["path"], "public, max-age=3600")
}

// ServeZip serves an asynchronous bundle by name.
func (h *Handlers) ServeZip(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
	h.serveFrom(w, r, h.opts.ZipDir, name, "no-store")
}

func (h *Handlers) serveFrom(w http.ResponseWriter, r *http.Request, root, rel, cacheControl string) {
	full, ok := containedPath(root, rel)
	if !ok || hasHiddenSegment(rel) {
		http.NotFound(w, r)
		return
	}

	f, err := filesystem.OpenWithRetry(full, filesystem.DefaultRetryConfig())
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Failed to open %s: %v", full, err)
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if ct := mediatypes.GetMimeType(mediatypes.Ext(full)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", cacheControl)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func hasHiddenSegment(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if mediatypes.IsHidden(part) {
			return true
		}
	}
	return false
}
