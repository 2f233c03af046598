/*
Package filesystem wraps os.Stat, os.Open and os.ReadDir with retry logic for
stale NFS file handles.

Watched trees frequently live on network shares. When the server side changes
under an open handle the kernel reports ESTALE (errno 116); those errors are
retried with exponential backoff, every other error is returned immediately.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Defaults: 3 retries, 50ms initial backoff, 500ms cap.

Metric labels come from a VolumeResolver ("watch", "previews", "zips",
"database") and are recorded through the Observer installed with SetObserver.
*/
package filesystem
