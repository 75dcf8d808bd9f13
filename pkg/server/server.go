// Package server exposes pipeline analysis over HTTP.
//
// Routes:
//
//	GET  /                 health check, always {"Ping":"Pong"}
//	POST /pipelines/parse  analyze a pipeline
//	GET  /metrics          Prometheus exposition, when enabled
//
// A parse request carries the graph as JSON:
//
//	{"nodes": [{"id": "A"}, {"id": "B"}], "edges": [{"source": "A", "target": "B"}]}
//
// and a successful response reports its shape:
//
//	{"num_nodes": 2, "num_edges": 1, "is_dag": true}
//
// Failures use a single envelope, {"error": {"code": "...", "message": "..."}},
// with the status chosen by [errors.HTTPStatus].
package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/matzehuels/pipelinecheck/pkg/errors"
	"github.com/matzehuels/pipelinecheck/pkg/pipeline"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is zero.
const DefaultMaxBodyBytes int64 = 32 << 20

// Options configures a Server.
type Options struct {
	// Runner analyzes submitted pipelines. Required.
	Runner *pipeline.Runner

	// Logger receives access and error logs. Defaults to log.Default().
	Logger *log.Logger

	// MaxBodyBytes caps the request body. Zero uses DefaultMaxBodyBytes;
	// a negative value disables the cap.
	MaxBodyBytes int64

	// AllowedOrigins lists origins permitted by CORS. Empty allows all.
	AllowedOrigins   []string
	AllowCredentials bool

	// RateLimit is the per-client request rate on the analysis route.
	// Zero disables rate limiting.
	RateLimit float64
	Burst     int

	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler
}

// Server is the HTTP front end of pipelinecheck. It is safe for
// concurrent use; each request is analyzed independently.
type Server struct {
	runner       *pipeline.Runner
	logger       *log.Logger
	maxBodyBytes int64
	limiter      *limiter
	router       chi.Router
}

// New builds a Server and its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		runner:       opts.Runner,
		logger:       opts.Logger,
		maxBodyBytes: opts.MaxBodyBytes,
	}
	if opts.RateLimit > 0 {
		s.limiter = newLimiter(opts.RateLimit, opts.Burst)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.observe)
	r.Use(s.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader, cacheHeader},
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorStatus(w, r, http.StatusMethodNotAllowed,
			errors.New(errors.ErrCodeInvalidInput, "method %s not allowed on %s", r.Method, r.URL.Path))
	})

	r.Get("/", s.handleHealth)
	r.With(s.rateLimit).Post("/pipelines/parse", s.handleParse)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	s.router = r
	return s
}

// Handler returns the root handler, for use with httptest or a custom
// http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe listens on addr and serves until ctx is canceled. See
// [Server.Serve].
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve accepts connections on ln until ctx is canceled, then stops
// accepting and waits up to shutdownTimeout for in-flight requests.
// It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if serveErr := <-errCh; serveErr != nil && !stderrors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}

// Close stops background work owned by the server. It does not close the
// runner.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
