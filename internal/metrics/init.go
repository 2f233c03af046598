package metrics

// InitializeMetrics pre-populates expected label combinations so every series
// is exported from the first scrape.
func InitializeMetrics() {
	for _, state := range []string{"RECORDED", "SKIPPED_DUPLICATE", "FAILED"} {
		PipelineResultsTotal.WithLabelValues(state)
	}

	for _, strategy := range []string{"psb", "complex_tiff", "simple_tiff", "generic"} {
		PreviewDecodeDuration.WithLabelValues(strategy)
	}

	for _, backend := range []string{"vips", "stdlib", "vips_icc", "magick", "tiff_fallback"} {
		PreviewRenderDuration.WithLabelValues(backend)
		PreviewRendersTotal.WithLabelValues(backend, "success")
		PreviewRendersTotal.WithLabelValues(backend, "error")
	}

	for _, kind := range []string{"file", "directory"} {
		WatcherEventsTotal.WithLabelValues(kind)
	}

	for _, delivery := range []string{"stream", "async"} {
		BundlesTotal.WithLabelValues(delivery, "success")
		BundlesTotal.WithLabelValues(delivery, "error")
	}

	for _, status := range []string{"success", "error"} {
		JanitorRunsTotal.WithLabelValues(status)
	}

	for _, delivery := range []string{"sent", "pending", "replayed", "error"} {
		NotificationsTotal.WithLabelValues(delivery)
	}

	for _, status := range []string{"success", "failure", "unconfigured"} {
		AuthAttemptsTotal.WithLabelValues(status)
	}

	for _, op := range []string{"migrate", "find_directory", "create_directory", "artifact_exists",
		"create_artifact", "append_error_log", "save_pending", "list_pending", "delete_pending",
		"list_directories", "list_artifacts", "get_artifacts", "find_preview_owner", "list_error_log", "count"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, op := range []string{"stat", "open", "readdir"} {
		for _, vol := range []string{"watch", "previews", "zips", "database", "unknown"} {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}
}
