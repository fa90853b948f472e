package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"catalogcrawler/internal/config"
	"catalogcrawler/internal/crawler"
	"catalogcrawler/internal/db"
	"catalogcrawler/internal/logger"
	"catalogcrawler/internal/observability"
	"catalogcrawler/internal/proxy"
	"catalogcrawler/internal/repository"
	"catalogcrawler/internal/sink"
	"catalogcrawler/internal/visited"
)

var version = "dev"

type crawlFlags struct {
	configPath   string
	output       string
	postgres     string
	redis        string
	resetVisited bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "crawler",
		Short:        "Crawl catalog listings and export product records",
		SilenceUsage: true,
	}
	root.AddCommand(newCrawlCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the crawler version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newCrawlCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the configured start URLs",
		Long: `Crawl walks every configured listing, follows pagination and product
links, and writes one record per product page to the JSON feed.

Examples:
  crawler crawl
  crawler crawl --output out.json --redis redis://localhost:6379/0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			if f.output != "" {
				cfg.OutputPath = f.output
			}
			if f.postgres != "" {
				cfg.DatabaseURL = f.postgres
			}
			if f.redis != "" {
				cfg.RedisURL = f.redis
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCrawl(ctx, cfg, f.resetVisited)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "feed file to write")
	cmd.Flags().StringVar(&f.postgres, "postgres", "", "also store records in this Postgres database")
	cmd.Flags().StringVar(&f.redis, "redis", "", "keep the visited set in this Redis server")
	cmd.Flags().BoolVar(&f.resetVisited, "reset-visited", false, "forget previously visited pages before crawling")
	return cmd
}

func runCrawl(ctx context.Context, cfg *config.Config, resetVisited bool) error {
	base, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	log := base.With(logger.String("run_id", uuid.NewString()))
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.New(reg)
	if cfg.MetricsPort != "" {
		srv := observability.Start(cfg.MetricsPort, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	feed := sink.NewJSONFeed(cfg.OutputPath)
	sinks := []sink.Sink{feed}
	if cfg.DatabaseURL != "" {
		conn, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		repo := &repository.RecordRepository{DB: conn}
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = conn.Close()
			return err
		}
		sinks = append(sinks, repo)
	}
	pipeline := sink.NewPipeline(cfg.SinkWorkers, log, metrics, sinks...)

	opts := []crawler.EngineOption{
		crawler.WithLogger(log),
		crawler.WithMetrics(metrics),
	}
	if cfg.RedisURL != "" {
		client, err := visited.NewClient(cfg.RedisURL)
		if err != nil {
			_ = pipeline.Close()
			return err
		}
		defer func(c *redis.Client) { _ = c.Close() }(client)

		store := &visited.Storage{Client: client, Prefix: visited.DefaultPrefix, Expires: cfg.VisitedTTL}
		if resetVisited {
			if err := store.Clear(ctx); err != nil {
				_ = pipeline.Close()
				return err
			}
			log.Info("Visited set cleared", logger.String("prefix", store.Prefix))
		}
		opts = append(opts, crawler.WithVisitedStorage(store))
	}
	if cfg.ProxyEnabled {
		opts = append(opts, crawler.WithProxy(proxy.New(cfg.Proxy)))
	}

	extractor := crawler.NewExtractor(
		crawler.WithFieldObserver(metrics),
		crawler.WithExtractorLogger(log),
	)
	traversal := crawler.NewTraversal(cfg.StartURLs, extractor, crawler.NewEmitter(pipeline, log), log)
	engine := crawler.NewEngine(crawler.EngineConfig{
		AllowedDomains:       cfg.AllowedDomains,
		UserAgent:            cfg.UserAgent,
		Concurrency:          cfg.Concurrency,
		ConcurrencyPerDomain: cfg.ConcurrencyPerDomain,
		RequestTimeout:       cfg.RequestTimeout,
		RetryTimes:           cfg.RetryTimes,
		RetryDelay:           cfg.RetryDelay,
	}, traversal, opts...)

	runErr := engine.Run(ctx)
	closeErr := pipeline.Close()

	log.Info("Crawl finished",
		logger.Int("records", feed.Count()),
		logger.String("output", cfg.OutputPath),
	)
	if errors.Is(runErr, context.Canceled) {
		log.Warn("Crawl interrupted, feed holds the records scraped so far")
	}
	return errors.Join(runErr, closeErr)
}
