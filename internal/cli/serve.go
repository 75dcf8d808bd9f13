package cli

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pipelinecheck/internal/config"
	"github.com/matzehuels/pipelinecheck/pkg/buildinfo"
	"github.com/matzehuels/pipelinecheck/pkg/cache"
	"github.com/matzehuels/pipelinecheck/pkg/observability"
	"github.com/matzehuels/pipelinecheck/pkg/pipeline"
	"github.com/matzehuels/pipelinecheck/pkg/server"
)

// serveFlags holds flag values that override the loaded configuration.
type serveFlags struct {
	configPath string
	addr       string
	logFormat  string
	cache      string
	redisAddr  string
	noMetrics  bool
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis service",
		Long: `Run the HTTP analysis service until interrupted.

Configuration is read from the --config TOML file, then from PIPELINECHECK_*
environment variables, then from flags.`,
		Example: `  pipelinecheck serve --addr :8080
  PIPELINECHECK_CACHE_BACKEND=redis PIPELINECHECK_REDIS_ADDR=localhost:6379 pipelinecheck serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, flags)
			if err != nil {
				return err
			}
			return c.runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a TOML config file")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (default :8080)")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "", "log format: text or json")
	cmd.Flags().StringVar(&flags.cache, "cache", "", "result cache: none, file or redis")
	cmd.Flags().StringVar(&flags.redisAddr, "redis-addr", "", "Redis address for --cache redis")
	cmd.Flags().BoolVar(&flags.noMetrics, "no-metrics", false, "disable the /metrics endpoint")

	return cmd
}

// loadServeConfig resolves file, environment and flags, in that order.
func loadServeConfig(cmd *cobra.Command, flags serveFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	fs := cmd.Flags()
	if fs.Changed("addr") {
		cfg.Addr = flags.addr
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if fs.Changed("cache") {
		cfg.Cache.Backend = flags.cache
	}
	if fs.Changed("redis-addr") {
		cfg.Cache.RedisAddr = flags.redisAddr
	}
	if flags.noMetrics {
		cfg.Metrics.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CLI) runServe(ctx context.Context, cfg *config.Config) error {
	srv, cleanup, err := c.buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return srv.ListenAndServe(ctx, cfg.Addr, cfg.ShutdownTimeout)
}

// buildServer wires the cache, runner and metrics described by cfg into
// a server. cleanup releases the cache and unregisters metric hooks.
func (c *CLI) buildServer(ctx context.Context, cfg *config.Config) (*server.Server, func(), error) {
	level := log.DebugLevel
	if !c.verbose {
		var err error
		if level, err = parseLevel(cfg.LogLevel); err != nil {
			return nil, nil, err
		}
	}
	logger := newServerLogger(os.Stderr, level, cfg.LogFormat)
	logger.Info("starting "+appName, "version", buildinfo.Version, "commit", buildinfo.Commit)

	rc, err := newServerCache(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("result cache", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL)

	runner := pipeline.NewRunner(rc, nil, logger)
	runner.Limits = pipeline.Limits{MaxNodes: cfg.Limits.MaxNodes, MaxEdges: cfg.Limits.MaxEdges}
	runner.TTL = cfg.Cache.TTL

	opts := server.Options{
		Runner:           runner,
		Logger:           logger,
		MaxBodyBytes:     cfg.Limits.MaxBodyBytes,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowCredentials: cfg.CORS.AllowCredentials,
		RateLimit:        cfg.RateLimit.RPS,
		Burst:            cfg.RateLimit.Burst,
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = -1
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		hooks := observability.NewPrometheusHooks(reg)
		observability.SetAnalysisHooks(hooks)
		observability.SetCacheHooks(hooks)
		observability.SetHTTPHooks(hooks)
		opts.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	srv := server.New(opts)
	cleanup := func() {
		srv.Close()
		if err := runner.Close(); err != nil {
			logger.Warn("close cache", "err", err)
		}
		if cfg.Metrics.Enabled {
			observability.Reset()
		}
	}
	return srv, cleanup, nil
}

// newServerCache builds the configured result cache backend.
func newServerCache(ctx context.Context, cc config.Cache) (cache.Cache, error) {
	switch cc.Backend {
	case config.CacheFile:
		dir := cc.Dir
		if dir == "" {
			var err error
			if dir, err = cacheDir(); err != nil {
				return nil, err
			}
		}
		return cache.NewFileCache(dir)
	case config.CacheRedis:
		return cache.NewRedisCache(ctx, cache.RedisOptions{Addr: cc.RedisAddr})
	default:
		return cache.NewNullCache(), nil
	}
}
