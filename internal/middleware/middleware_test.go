package middleware

import (
	"bufio"
	"bytes"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, body)
	})
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := newStatusWriter(rec)
	assert.Equal(t, http.StatusOK, sw.statusCode)

	sw.WriteHeader(http.StatusNotFound)
	sw.WriteHeader(http.StatusInternalServerError)
	n, err := sw.Write([]byte("missing"))
	require.NoError(t, err)

	assert.Equal(t, 7, n)
	assert.Equal(t, http.StatusNotFound, sw.statusCode)
	assert.Equal(t, int64(7), sw.bytesWritten)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	server, client := net.Pipe()
	_ = client.Close()
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

func TestStatusWriterHijack(t *testing.T) {
	_, _, err := newStatusWriter(httptest.NewRecorder()).Hijack()
	assert.Error(t, err, "recorder cannot be hijacked")

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	sw := newStatusWriter(rec)
	conn, _, err := sw.Hijack()
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, rec.hijacked)
	assert.True(t, sw.hijacked)
	assert.Equal(t, http.StatusSwitchingProtocols, sw.statusCode)
}

func TestLoggerWritesW3CLine(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	handler := Logger(DefaultLoggingConfig())(okHandler("hello"))
	req := httptest.NewRequest(http.MethodGet, "/download?directory=a&token=secret", nil)
	req.Header.Set("User-Agent", "test agent")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	assert.Contains(t, line, " 10.0.0.1 GET /download directory=a&token=**** 200 5 ")
	assert.Contains(t, line, `"test agent"`)
	assert.NotContains(t, line, "secret")
}

func TestLoggerSkips(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		skip   bool
	}{
		{"static asset", "/app.js", DefaultLoggingConfig(), true},
		{"static asset logged", "/app.js", LoggingConfig{SkipExtensions: []string{".js"}, LogStaticFiles: true}, false},
		{"health logged by default", "/health", DefaultLoggingConfig(), false},
		{"health skipped", "/health", LoggingConfig{LogHealthChecks: false}, true},
		{"skip prefix", "/metrics", LoggingConfig{SkipPaths: []string{"/metrics"}, LogHealthChecks: true}, true},
		{"api", "/api/directories", DefaultLoggingConfig(), false},
		{"preview jpeg is logged", "/files/previews/a.jpeg", DefaultLoggingConfig(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.skip, tt.config.skips(tt.path))
		})
	}
}

func TestSanitizeLogField(t *testing.T) {
	assert.Equal(t, "a b", sanitizeLogField("a\nb"))
	assert.Equal(t, "ab", sanitizeLogField("a\x1b\x00b"))
	assert.Equal(t, "a\tb", sanitizeLogField("a\tb"))
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:5555"
	assert.Equal(t, "192.168.1.5", clientAddr(req))

	req.Header.Set("X-Real-IP", "10.1.1.1")
	assert.Equal(t, "10.1.1.1", clientAddr(req))

	req.Header.Del("X-Real-IP")
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", clientAddr(req))
}

func TestCompressionMiddleware(t *testing.T) {
	large := strings.Repeat(`{"id":"x"},`, 500)

	tests := []struct {
		name        string
		contentType string
		body        string
		accept      string
		wantGzip    bool
	}{
		{"large json", "application/json", large, "gzip, deflate", true},
		{"small json", "application/json", `{"a":1}`, "gzip", false},
		{"no accept", "application/json", large, "", false},
		{"zip bundle", "application/zip", large, "gzip", false},
		{"jpeg preview", "image/jpeg", large, "gzip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = io.WriteString(w, tt.body)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/directories", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Encoding", tt.accept)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if !tt.wantGzip {
				assert.Empty(t, rec.Header().Get("Content-Encoding"))
				assert.Equal(t, tt.body, rec.Body.String())
				return
			}

			assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
			zr, err := gzip.NewReader(rec.Body)
			require.NoError(t, err)
			decoded, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(decoded))
		})
	}
}

func TestCompressionKeepsStatusAndChunks(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusCreated)
		for i := 0; i < 100; i++ {
			_, _ = io.WriteString(w, "chunk of text ")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("chunk of text ", 100), string(decoded))
}

func TestCompressionSkipsUpgrade(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, isGzip := w.(*gzipResponseWriter)
		assert.False(t, isGzip)
	}))
	req := httptest.NewRequest(http.MethodGet, "/ws/client", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Upgrade", "websocket")
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestMetricsRouteLabel(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))

	var label string
	r.HandleFunc("/api/directories/{id}/previews", func(w http.ResponseWriter, req *http.Request) {
		label = routeLabel(req)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/directories/abc/previews", nil))
	assert.Equal(t, "/api/directories/{id}/previews", label)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"/download", "/download"},
		{"/zips/bundle.zip", "/zips/bundle.zip"},
		{"/files/originals/a/b/c.png", "/files/originals/{path}"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestCORS(t *testing.T) {
	handler := CORS("https://app.example")(okHandler("ok"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download", nil))
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Authorization", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/download", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	CORS("")(okHandler("ok")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBearerAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	plain := AuthConfig{
		Token:           "secret",
		ExemptPaths:     []string{"/health", "/version"},
		QueryTokenPaths: []string{"/ws/"},
	}
	hashed := AuthConfig{TokenHash: string(hash)}

	tests := []struct {
		name       string
		config     AuthConfig
		method     string
		path       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", plain, http.MethodGet, "/download", "Bearer secret", http.StatusOK, "ok"},
		{"missing header", plain, http.MethodGet, "/download", "", http.StatusUnauthorized, msgMissingHeader},
		{"basic scheme", plain, http.MethodGet, "/download", "Basic c2VjcmV0", http.StatusUnauthorized, msgMissingHeader},
		{"wrong token", plain, http.MethodGet, "/download", "Bearer nope", http.StatusUnauthorized, msgUnauthorized},
		{"exempt health", plain, http.MethodGet, "/health", "", http.StatusOK, "ok"},
		{"exempt is exact", plain, http.MethodGet, "/healthy", "", http.StatusUnauthorized, msgMissingHeader},
		{"preflight", plain, http.MethodOptions, "/download", "", http.StatusOK, "ok"},
		{"query token on ws", plain, http.MethodGet, "/ws/client?token=secret", "", http.StatusOK, "ok"},
		{"query token elsewhere", plain, http.MethodGet, "/download?token=secret", "", http.StatusUnauthorized, msgMissingHeader},
		{"bcrypt hash", hashed, http.MethodGet, "/download", "Bearer hashed-secret", http.StatusOK, "ok"},
		{"bcrypt mismatch", hashed, http.MethodGet, "/download", "Bearer secret", http.StatusUnauthorized, msgUnauthorized},
		{"unconfigured", AuthConfig{}, http.MethodGet, "/download", "Bearer x", http.StatusInternalServerError, msgNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BearerAuth(tt.config)(okHandler("ok"))
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestBearerAuthCachesBcryptMatch(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("tok"), bcrypt.MinCost)
	require.NoError(t, err)
	v := &tokenVerifier{config: AuthConfig{TokenHash: string(hash)}}

	assert.True(t, v.verify("tok"))
	assert.True(t, v.cached)

	v.config.TokenHash = "not-a-bcrypt-hash"
	assert.True(t, v.verify("tok"), "cached digest answers without bcrypt")
	assert.False(t, v.verify("other"))
}

func TestRejectedResponsesCarryCORS(t *testing.T) {
	chain := CORS("https://app.example")(BearerAuth(AuthConfig{Token: "secret"})(okHandler("ok")))
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func BenchmarkLoggingMiddleware(b *testing.B) {
	log.SetOutput(io.Discard)
	handler := Logger(DefaultLoggingConfig())(okHandler("ok"))
	req := httptest.NewRequest(http.MethodGet, "/api/directories", nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"plain", map[string]string{"Accept-Encoding": "gzip"}, true},
		{"list with weights", map[string]string{"Accept-Encoding": "br;q=1.0, GZIP;q=0.8"}, true},
		{"other encodings", map[string]string{"Accept-Encoding": "br, deflate"}, false},
		{"range request", map[string]string{"Accept-Encoding": "gzip", "Range": "bytes=0-10"}, false},
		{"upgrade", map[string]string{"Accept-Encoding": "gzip", "Upgrade": "websocket"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, acceptsGzip(req))
		})
	}
}
