package main

import (
	"net/http"

	"preview-watcher/internal/handlers"
	"preview-watcher/internal/middleware"
	"preview-watcher/internal/startup"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func authConfig(cfg *startup.Config) middleware.AuthConfig {
	return middleware.AuthConfig{
		Token:     cfg.AuthToken,
		TokenHash: cfg.AuthTokenHash,
		// Browsers cannot set headers on a WebSocket handshake.
		QueryTokenPaths: []string{"/ws/"},
	}
}

func setupRouter(h *handlers.Handlers, cfg *startup.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes (no auth required)
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	protect := middleware.BearerAuth(authConfig(cfg))

	r.Handle("/download", protect(http.HandlerFunc(h.Download))).Methods("GET")
	r.Handle("/zips/{name}", protect(http.HandlerFunc(h.ServeZip))).Methods("GET", "HEAD")
	r.Handle("/ws/{clientID}", protect(http.HandlerFunc(h.WebSocket))).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(protect)
	api.HandleFunc("/directories", h.ListDirectories).Methods("GET")
	api.HandleFunc("/directories/{id}/previews", h.ListPreviews).Methods("GET")

	files := r.PathPrefix("/files").Subrouter()
	files.Use(protect)
	files.HandleFunc("/originals/{path:.*}", h.ServeOriginal).Methods("GET", "HEAD")
	files.HandleFunc("/previews/{path:.*}", h.ServePreview).Methods("GET", "HEAD")

	// Static files
	if cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}

// socketRouter serves only the notification endpoint, for SOCKET_PORT.
func socketRouter(h *handlers.Handlers, cfg *startup.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	r.Handle("/ws/{clientID}", middleware.BearerAuth(authConfig(cfg))(http.HandlerFunc(h.WebSocket))).Methods("GET")
	return r
}

func metricsRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

// wrapHandler applies the outer middleware chain. CORS runs first so that
// preflight requests and rejections both carry the allow headers.
func wrapHandler(router http.Handler, cfg *startup.Config) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = cfg.LogStaticFiles
	loggingConfig.LogHealthChecks = cfg.LogHealthChecks

	handler := middleware.Compression(middleware.DefaultCompressionConfig())(router)
	handler = middleware.Logger(loggingConfig)(handler)
	return middleware.CORS(cfg.WebURL)(handler)
}
