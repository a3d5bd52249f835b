package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/catalog-ingest/pkg/cache"
	"github.com/Sternrassler/catalog-ingest/pkg/client"
	"github.com/Sternrassler/catalog-ingest/pkg/export"
	"github.com/Sternrassler/catalog-ingest/pkg/ingest"
	"github.com/Sternrassler/catalog-ingest/pkg/logging"
	"github.com/Sternrassler/catalog-ingest/pkg/metrics"
	"github.com/Sternrassler/catalog-ingest/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

// appConfig is the resolved command line and environment configuration.
type appConfig struct {
	BaseURL     string
	CategoryID  int
	PerPage     int
	Sort        string
	UserAgent   string
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
	Pacing      time.Duration
	Timeout     time.Duration
	Output      string
	LogLevel    logging.LogLevel
	Pretty      bool
	RedisURL    string
	MetricsAddr string
	Audit       bool
}

func (c *appConfig) clientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.BaseURL = c.BaseURL
	cfg.CategoryID = c.CategoryID
	cfg.PerPage = c.PerPage
	cfg.Sort = c.Sort
	cfg.UserAgent = c.UserAgent
	cfg.Timeout = c.Timeout
	cfg.Retry.MaxAttempts = c.MaxAttempts
	cfg.Retry.Delay = c.RetryDelay
	return cfg
}

func (c *appConfig) concurrencyConfig() pagination.Config {
	cfg := pagination.DefaultConfig()
	cfg.MaxConcurrency = c.Concurrency
	cfg.PacingDelay = c.Pacing
	return cfg
}

// loadConfig reads environment defaults, then flags, then validates.
func loadConfig(args []string, getenv func(string) string, stderr io.Writer) (*appConfig, error) {
	env := envReader{getenv: getenv}
	defaults := client.DefaultConfig()
	concurrency := pagination.DefaultConfig()

	baseURL := env.String("CATALOG_BASE_URL", defaults.BaseURL)
	categoryID := env.Int("CATALOG_CATEGORY_ID", defaults.CategoryID)
	perPage := env.Int("CATALOG_PER_PAGE", defaults.PerPage)
	sortOrder := env.String("CATALOG_SORT", defaults.Sort)
	workers := env.Int("CATALOG_CONCURRENCY", concurrency.MaxConcurrency)
	maxAttempts := env.Int("CATALOG_MAX_RETRIES", defaults.Retry.MaxAttempts)
	output := env.String("CATALOG_OUTPUT", ingest.DefaultOutputPath)
	logLevel := env.String("LOG_LEVEL", string(logging.LevelInfo))
	redisURL := env.String("REDIS_URL", "")
	metricsAddr := env.String("METRICS_ADDR", "")
	if env.err != nil {
		return nil, env.err
	}

	fs := flag.NewFlagSet("catalog-scraper", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &appConfig{}
	fs.StringVar(&cfg.BaseURL, "base-url", baseURL, "Catalog listing endpoint")
	fs.IntVar(&cfg.CategoryID, "category", categoryID, "Category id to list")
	fs.IntVar(&cfg.PerPage, "per-page", perPage, "Items per page")
	fs.StringVar(&cfg.Sort, "sort", sortOrder, "Sort order")
	fs.StringVar(&cfg.UserAgent, "user-agent", defaults.UserAgent, "User-Agent header")
	fs.IntVar(&cfg.Concurrency, "concurrency", workers, "Maximum in-flight page requests")
	fs.IntVar(&cfg.MaxAttempts, "max-retries", maxAttempts, "Total attempts per page")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", defaults.Retry.Delay, "Wait between attempts")
	fs.DurationVar(&cfg.Pacing, "pacing", concurrency.PacingDelay, "Per-worker delay after each fetch")
	fs.DurationVar(&cfg.Timeout, "timeout", defaults.Timeout, "Per-attempt request timeout")
	fs.StringVar(&cfg.Output, "output", output, "CSV artifact path")
	level := fs.String("log-level", logLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Human-readable console logs")
	fs.StringVar(&cfg.RedisURL, "redis", redisURL, "Redis address or redis:// URL enabling the page cache")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", metricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.BoolVar(&cfg.Audit, "audit", false, "Print a per-column completeness audit of the artifact")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	parsed, err := logging.ParseLevel(*level)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = parsed

	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be >= 1 (got %d)", cfg.Concurrency)
	}
	if cfg.Pacing < 0 {
		return nil, fmt.Errorf("pacing cannot be negative")
	}
	if strings.TrimSpace(cfg.Output) == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if err := cfg.clientConfig().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(args, getenv, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return exitConfig
	}

	logging.Setup(logging.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Pretty,
		Output:  stderr,
		Service: "catalog-scraper",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientCfg := cfg.clientConfig()
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, page cache disabled")
		} else {
			defer redisClient.Close()
			clientCfg.Cache = cache.NewManager(redisClient)
			log.Info().Str("redis", cfg.RedisURL).Msg("Page cache enabled")
		}
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.Start(cfg.MetricsAddr)
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	catalogClient, err := client.New(clientCfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create catalog client")
		return exitConfig
	}

	log.Info().
		Str("base_url", cfg.BaseURL).
		Int("category_id", cfg.CategoryID).
		Int("per_page", cfg.PerPage).
		Int("concurrency", cfg.Concurrency).
		Str("output", cfg.Output).
		Msg("Starting catalog scrape")

	runner := ingest.NewClientRunner(catalogClient, cfg.concurrencyConfig(), cfg.Output)
	result, err := runner.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scrape failed")
		return exitFailed
	}

	var audit *export.Audit
	if cfg.Audit && result.ArtifactPath != "" {
		audit, err = export.AuditFile(result.ArtifactPath)
		if err != nil {
			log.Error().Err(err).Msg("Audit failed")
		}
	}

	printSummary(stdout, result, audit)
	return exitOK
}

// newRedisClient accepts either host:port or a redis:// URL.
func newRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	redisClient := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return redisClient, nil
}

func printSummary(w io.Writer, result *ingest.RunResult, audit *export.Audit) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")
	fmt.Fprintf(w, "  Total products: %d\n", result.Total)
	fmt.Fprintf(w, "  Pages:          %d/%d\n", result.PagesFetched, result.TotalPages)
	if result.PagesFailed > 0 {
		fmt.Fprintf(w, "  Failed pages:   %v\n", result.FailedPages)
	}
	fmt.Fprintf(w, "  Records:        %d\n", result.RecordsFlattened)
	fmt.Fprintf(w, "  Columns:        %d\n", result.Columns)
	fmt.Fprintf(w, "  Rows written:   %d\n", result.ExportRows)

	switch {
	case result.ArtifactPath == "":
		fmt.Fprintln(w, "  Integrity:      no artifact (empty catalog)")
	case result.Verified:
		fmt.Fprintf(w, "  Integrity:      verified (%d rows)\n", result.ExportRows)
	default:
		fmt.Fprintf(w, "  Integrity:      MISMATCH (%d rows written, %d expected)\n", result.ExportRows, result.RecordsFlattened)
	}

	fmt.Fprintf(w, "  Duration:       %v\n", result.Duration.Round(time.Millisecond))
	if result.ArtifactPath != "" {
		fmt.Fprintf(w, "  Output file:    %s\n", result.ArtifactPath)
	}
	fmt.Fprintln(w, separator)

	if audit != nil {
		audit.WriteTable(w)
		fmt.Fprintln(w, separator)
	}
}

// envReader reads typed environment values, keeping the first parse error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) String(key, defaultValue string) string {
	if value := e.getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) Int(key string, defaultValue int) int {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		if e.err == nil {
			e.err = fmt.Errorf("invalid %s: %w", key, err)
		}
		return defaultValue
	}
	return n
}
