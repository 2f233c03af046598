/*
Package streaming copies large files such as ZIP bundles to HTTP clients
without letting a stalled client hold a handler forever.

Each chunk is written under its own deadline through http.ResponseController,
so a client that stops reading fails with ErrWriteTimeout, and a request
whose context ends fails with ErrClientGone.

	n, err := streaming.ServeAttachment(w, r, bundle.Path, "previews.zip", "application/zip", streaming.DefaultConfig())
	if errors.Is(err, streaming.ErrClientGone) {
		return
	}
*/
package streaming
