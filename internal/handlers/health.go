package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"preview-watcher/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`
	Queued   int    `json:"queued"`

	Directories int64 `json:"directories"`
	Artifacts   int64 `json:"artifacts"`
	Errors      int64 `json:"errors"`

	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports watcher readiness and store reachability. It answers
// 503 until the watcher is running.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:       statusHealthy,
		Ready:        h.ready.Load(),
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Database:     "ok",
		Queued:       h.queued(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if err := h.store.Ping(ctx); err != nil {
		resp.Database = err.Error()
		resp.Status = statusDegraded
	} else if stats, err := h.store.GetStats(ctx); err == nil {
		resp.Directories = stats.Directories
		resp.Artifacts = stats.Artifacts
		resp.Errors = stats.ErrorLogEntries
	}

	if !resp.Ready {
		resp.Status = statusStarting
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// LivenessCheck always answers 200 while the process serves HTTP.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessCheck answers 200 once the watcher is running.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready.Load() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}
