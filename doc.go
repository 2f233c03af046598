// Command preview-watcher watches a directory tree, renders bounded JPEG
// previews for every image that appears in it and records directories and
// previews in a relational store. The same process serves the HTTP API used
// to browse the store, download ZIP bundles of originals or previews and
// receive WebSocket notifications when an asynchronous bundle is ready.
//
// Commands:
//
//	preview-watcher [serve]   run the watcher, pipeline and HTTP server (default)
//	preview-watcher scan      process the tree once and exit
//	preview-watcher clean-zips delete expired bundles once and exit
//	preview-watcher version   print build information
//
// Flags:
//
//	--config FILE  YAML file overlaid by environment variables (CONFIG_FILE)
//	--mode MODE    push or poll (WATCH_MODE)
//	--resync       process every existing file (FORCE_RESYNC)
//
// Configuration is read from the environment; see the startup package for
// the full list of variables and their defaults.
package main
