// Package pipeline turns watcher events into recorded previews.
//
// Orchestrator.Process runs one file through the states
//
//	DETECTED -> DIRECTORY_RESOLVED -> DECODED -> RENDERED -> RECORDED
//	                                                      -> SKIPPED_DUPLICATE
//	(any stage)                                           -> FAILED
//
// and is the only place where stage errors become log lines and error_log
// rows. A failed file is not retried until the watcher reports it again.
//
// Pool feeds events to a bounded set of workers. Repeated events for a path
// that is already queued or running are coalesced, and shutdown drains the
// queue within a grace period.
package pipeline
