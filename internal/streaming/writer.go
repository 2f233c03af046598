package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"preview-watcher/internal/logging"
)

var (
	// ErrWriteTimeout means a chunk could not be written before its deadline.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone means the request context ended mid-stream.
	ErrClientGone = errors.New("client disconnected")
)

// Config controls chunked streaming.
type Config struct {
	// WriteTimeout bounds each chunk write. Zero disables deadlines.
	WriteTimeout time.Duration
	// ChunkSize is the copy buffer size.
	ChunkSize int
	// OnProgress, if set, is called after every chunk.
	OnProgress func(written int64, elapsed time.Duration)
}

// DefaultConfig writes 64KB chunks with a 30 second deadline each.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// Copy streams src to w and returns the number of bytes written.
func Copy(ctx context.Context, w http.ResponseWriter, src io.Reader, cfg Config) (int64, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}

	rc := http.NewResponseController(w)
	deadlines := cfg.WriteTimeout > 0
	buf := make([]byte, cfg.ChunkSize)
	start := time.Now()
	var written int64

	defer func() {
		if deadlines {
			_ = rc.SetWriteDeadline(time.Time{})
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return written, ErrClientGone
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if deadlines {
				if err := rc.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
					if !errors.Is(err, http.ErrNotSupported) {
						return written, err
					}
					deadlines = false
				}
			}

			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				if errors.Is(err, os.ErrDeadlineExceeded) {
					return written, ErrWriteTimeout
				}
				if ctx.Err() != nil {
					return written, ErrClientGone
				}
				return written, err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
			if cfg.OnProgress != nil {
				cfg.OnProgress(written, time.Since(start))
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("failed to read stream source: %w", readErr)
		}
	}
}

// ServeAttachment streams the file at path as a download named name.
func ServeAttachment(w http.ResponseWriter, r *http.Request, path, name, contentType string, cfg Config) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	start := time.Now()
	n, err := Copy(r.Context(), w, f, cfg)
	logging.Debug("Streamed %s: %d of %d bytes in %v", name, n, info.Size(), time.Since(start))
	return n, err
}
