package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/pipelinecheck/pkg/cache"
	"github.com/matzehuels/pipelinecheck/pkg/errors"
	"github.com/matzehuels/pipelinecheck/pkg/observability"
	"github.com/matzehuels/pipelinecheck/pkg/pipeline"
)

func quietLogger() *log.Logger { return log.New(io.Discard) }

func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	opts := Options{
		Runner: pipeline.NewRunner(nil, nil, quietLogger()),
		Logger: quietLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	s := New(opts)
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return resp.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"Ping":"Pong"}`, rec.Body.String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "chain",
			body: `{"nodes":[{"id":"A"},{"id":"B"},{"id":"C"}],"edges":[{"source":"A","target":"B"},{"source":"B","target":"C"}]}`,
			want: `{"num_nodes":3,"num_edges":2,"is_dag":true}`,
		},
		{
			name: "two-cycle",
			body: `{"nodes":[{"id":"A"},{"id":"B"}],"edges":[{"source":"A","target":"B"},{"source":"B","target":"A"}]}`,
			want: `{"num_nodes":2,"num_edges":2,"is_dag":false}`,
		},
		{
			name: "self-loop",
			body: `{"nodes":[{"id":"A"}],"edges":[{"source":"A","target":"A"}]}`,
			want: `{"num_nodes":1,"num_edges":1,"is_dag":false}`,
		},
		{
			name: "empty",
			body: `{"nodes":[],"edges":[]}`,
			want: `{"num_nodes":0,"num_edges":0,"is_dag":true}`,
		},
		{
			name: "isolated nodes",
			body: `{"nodes":[{"id":"A"},{"id":"B"},{"id":"C"},{"id":"D"}],"edges":[]}`,
			want: `{"num_nodes":4,"num_edges":0,"is_dag":true}`,
		},
		{
			name: "unknown target",
			body: `{"nodes":[{"id":"A"},{"id":"B"}],"edges":[{"source":"A","target":"X"}]}`,
			want: `{"num_nodes":2,"num_edges":1,"is_dag":true}`,
		},
		{
			name: "empty target is a leaf",
			body: `{"nodes":[{"id":"A"}],"edges":[{"source":"A","target":""}]}`,
			want: `{"num_nodes":1,"num_edges":1,"is_dag":true}`,
		},
		{
			name: "long node id",
			body: `{"nodes":[{"id":"` + strings.Repeat("n", 2048) + `"}],"edges":[]}`,
			want: `{"num_nodes":1,"num_edges":0,"is_dag":true}`,
		},
		{
			name: "extra fields ignored",
			body: `{"nodes":[{"id":"A","type":"input"}],"edges":[],"name":"demo"}`,
			want: `{"num_nodes":1,"num_edges":0,"is_dag":true}`,
		},
	}

	s := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s.Handler(), http.MethodPost, "/pipelines/parse", tt.body)
			require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   errors.Code
		wantMsg    string
	}{
		{
			name:       "unknown source",
			body:       `{"nodes":[{"id":"A"},{"id":"B"}],"edges":[{"source":"X","target":"A"}]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.ErrCodeUnknownNode,
			wantMsg:    `"X"`,
		},
		{
			name:       "empty source",
			body:       `{"nodes":[{"id":"A"}],"edges":[{"source":"","target":"A"}]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.ErrCodeUnknownNode,
		},
		{
			name:       "malformed json",
			body:       `{"nodes":[`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.ErrCodeInvalidInput,
		},
		{
			name:       "syntax error",
			body:       `{"nodes":}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.ErrCodeInvalidInput,
		},
		{
			name:       "trailing data",
			body:       `{"nodes":[],"edges":[]} {}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.ErrCodeInvalidInput,
		},
		{
			name:       "missing edges",
			body:       `{"nodes":[{"id":"A"}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   errors.ErrCodeInvalidPipeline,
			wantMsg:    "edges is required",
		},
		{
			name:       "null body",
			body:       `null`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   errors.ErrCodeInvalidPipeline,
		},
		{
			name:       "empty node id",
			body:       `{"nodes":[{"id":"A"},{"id":""}],"edges":[]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   errors.ErrCodeInvalidPipeline,
			wantMsg:    "nodes[1].id is required",
		},
		{
			name:       "missing edge target",
			body:       `{"nodes":[{"id":"A"}],"edges":[{"source":"A"}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   errors.ErrCodeInvalidPipeline,
			wantMsg:    "edges[0].target is required",
		},
		{
			name:       "missing edge source",
			body:       `{"nodes":[{"id":"A"}],"edges":[{"target":"A"}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   errors.ErrCodeInvalidPipeline,
			wantMsg:    "edges[0].source is required",
		},
		{
			name:       "null edge target",
			body:       `{"nodes":[{"id":"A"}],"edges":[{"source":"A","target":null}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   errors.ErrCodeInvalidPipeline,
			wantMsg:    "edges[0].target is required",
		},
		{
			name:       "wrong id type",
			body:       `{"nodes":[{"id":1}],"edges":[]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   errors.ErrCodeInvalidPipeline,
		},
		{
			name:       "array body",
			body:       `[]`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   errors.ErrCodeInvalidPipeline,
		},
	}

	s := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s.Handler(), http.MethodPost, "/pipelines/parse", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := errorOf(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantMsg != "" {
				assert.Contains(t, body.Message, tt.wantMsg)
			}
		})
	}
}

func TestParseEmptyBody(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/pipelines/parse", http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.ErrCodeInvalidInput, errorOf(t, rec).Code)
}

func TestParseBodyTooLarge(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.MaxBodyBytes = 64 })
	body := `{"nodes":[` + strings.Repeat(`{"id":"node"},`, 20) + `{"id":"last"}],"edges":[]}`

	rec := do(t, s.Handler(), http.MethodPost, "/pipelines/parse", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, errors.ErrCodePipelineTooLarge, errorOf(t, rec).Code)
}

func TestParseTooManyNodes(t *testing.T) {
	runner := pipeline.NewRunner(nil, nil, quietLogger())
	runner.Limits = pipeline.Limits{MaxNodes: 2}
	s := newTestServer(t, func(o *Options) { o.Runner = runner })

	rec := do(t, s.Handler(), http.MethodPost, "/pipelines/parse",
		`{"nodes":[{"id":"A"},{"id":"B"},{"id":"C"}],"edges":[]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, errors.ErrCodePipelineTooLarge, errorOf(t, rec).Code)
}

func TestParseCacheHeader(t *testing.T) {
	dir := t.TempDir()
	fc, err := cache.NewFileCache(dir)
	require.NoError(t, err)
	s := newTestServer(t, func(o *Options) { o.Runner = pipeline.NewRunner(fc, nil, quietLogger()) })

	body := `{"nodes":[{"id":"A"}],"edges":[]}`
	first := do(t, s.Handler(), http.MethodPost, "/pipelines/parse", body)
	second := do(t, s.Handler(), http.MethodPost, "/pipelines/parse", body)

	assert.Equal(t, "MISS", first.Header().Get(cacheHeader))
	assert.Equal(t, "HIT", second.Header().Get(cacheHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestParseNoRunner(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.Runner = nil })
	rec := do(t, s.Handler(), http.MethodPost, "/pipelines/parse", `{"nodes":[],"edges":[]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := errorOf(t, rec)
	assert.Equal(t, errors.ErrCodeInternal, body.Code)
	assert.Equal(t, "internal server error", body.Message)
}

// panicCache panics on every read.
type panicCache struct{ cache.NullCache }

func (panicCache) Get(context.Context, string) ([]byte, bool, error) { panic("boom") }

func TestRecoverer(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.Runner = pipeline.NewRunner(panicCache{}, nil, quietLogger()) })

	rec := do(t, s.Handler(), http.MethodPost, "/pipelines/parse", `{"nodes":[],"edges":[]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errors.ErrCodeInternal, errorOf(t, rec).Code)

	// The server keeps serving after a panic.
	rec = do(t, s.Handler(), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.ErrCodeNotFound, errorOf(t, rec).Code)

	rec = do(t, s.Handler(), http.MethodGet, "/pipelines/parse", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, errors.ErrCodeInvalidInput, errorOf(t, rec).Code)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/", "")
	generated := rec.Header().Get(requestIDHeader)
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)
}

func TestCORS(t *testing.T) {
	t.Run("defaults allow any origin", func(t *testing.T) {
		s := newTestServer(t, func(o *Options) { o.AllowCredentials = true })
		req := httptest.NewRequest(http.MethodOptions, "/pipelines/parse", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Less(t, rec.Code, 300)
		assert.Contains(t, []string{"*", "http://localhost:3000"}, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("configured origins", func(t *testing.T) {
		s := newTestServer(t, func(o *Options) { o.AllowedOrigins = []string{"https://app.example.com"} })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec = httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.RateLimit = 0.001
		o.Burst = 2
	})
	body := `{"nodes":[],"edges":[]}`

	for i := 0; i < 2; i++ {
		rec := do(t, s.Handler(), http.MethodPost, "/pipelines/parse", body)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	rec := do(t, s.Handler(), http.MethodPost, "/pipelines/parse", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, errors.ErrCodeRateLimited, errorOf(t, rec).Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Health checks are not throttled.
	rec = do(t, s.Handler(), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	hooks := observability.NewPrometheusHooks(reg)
	observability.SetAnalysisHooks(hooks)
	observability.SetHTTPHooks(hooks)
	t.Cleanup(observability.Reset)

	s := newTestServer(t, func(o *Options) { o.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{}) })
	do(t, s.Handler(), http.MethodPost, "/pipelines/parse", `{"nodes":[{"id":"A"}],"edges":[{"source":"A","target":"A"}]}`)

	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `pipelinecheck_analyses_total{result="cyclic"} 1`)
	assert.Contains(t, out, `pipelinecheck_http_requests_total{method="POST",route="/pipelines/parse",status="200"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeShutdown(t *testing.T) {
	s := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln, 5*time.Second) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
