package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"preview-watcher/internal/logging"
)

// writeJSON encodes v as JSON. Encoding errors are logged since the status
// line has already been sent.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeText writes a plain text body with status.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

// splitIDs splits a comma separated list, dropping blanks and duplicates
// while keeping order.
func splitIDs(raw string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// containedPath joins a slash separated request path onto root and rejects
// anything that would escape it.
func containedPath(root, rel string) (string, bool) {
	if root == "" {
		return "", false
	}
	cleaned := filepath.Clean("/" + filepath.FromSlash(rel))
	full := filepath.Join(root, cleaned)
	return full, within(root, full)
}

// within reports whether path is root or below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
