package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wenlu/paperdredge/internal/api"
	"github.com/wenlu/paperdredge/internal/config"
	"github.com/wenlu/paperdredge/internal/crawler"
	"github.com/wenlu/paperdredge/internal/download"
	"github.com/wenlu/paperdredge/internal/driver/chrome"
	"github.com/wenlu/paperdredge/internal/logging"
	"github.com/wenlu/paperdredge/internal/store/postgres"
)

var crawlFlags struct {
	configPath string
	query      string
	count      int
	maxPages   int
	download   bool
	headless   bool
	outputDir  string
	dsn        string
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run one crawl for a keyword",
	RunE:  runCrawl,
}

func init() {
	f := crawlCmd.Flags()
	f.StringVarP(&crawlFlags.configPath, "config", "c", "", "path to config file")
	f.StringVarP(&crawlFlags.query, "query", "q", "", "search keyword (required)")
	f.IntVarP(&crawlFlags.count, "count", "n", 0, "number of records to collect")
	f.IntVar(&crawlFlags.maxPages, "max-pages", 0, "hard bound on pages visited")
	f.BoolVar(&crawlFlags.download, "download", true, "download full-text documents")
	f.BoolVar(&crawlFlags.headless, "headless", false, "run the browser headless")
	f.StringVarP(&crawlFlags.outputDir, "output", "o", "", "directory for downloaded documents")
	f.StringVar(&crawlFlags.dsn, "dsn", "", "PostgreSQL connection string")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(crawlFlags.configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, &cfg)
	if cfg.Crawler.Query == "" {
		return fmt.Errorf("a search query is required (--query or crawler.query)")
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics, err := crawler.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if cfg.Metrics.Addr != "" {
		srv := api.New(cfg.Metrics.Addr, registry, logger)
		srv.Start()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx) //nolint:errcheck
		}()
	}

	driver, err := chrome.New(chrome.Config{
		PortalURL:       cfg.Portal.URL,
		Headless:        cfg.Crawler.Headless,
		UserAgent:       cfg.Portal.UserAgent,
		NavTimeout:      cfg.Portal.NavTimeout(),
		SearchInputSel:  cfg.Portal.SearchInput,
		SearchButtonSel: cfg.Portal.SearchButton,
		ResultRowSel:    cfg.Portal.ResultRow,
		TitleLinkSel:    cfg.Portal.TitleLink,
		AuthorLinkSel:   cfg.Portal.AuthorLink,
		DateCellSel:     cfg.Portal.DateCell,
		NextPageSel:     cfg.Portal.NextPage,
	}, logger)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer driver.Close(context.Background()) //nolint:errcheck

	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		Upsert:   cfg.DB.Upsert,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}, logger)
	if err != nil {
		return fmt.Errorf("configure store: %w", err)
	}
	defer store.Close()

	var downloader crawler.Downloader
	if cfg.Crawler.Download {
		matcher := download.DefaultLinkMatcher
		if cfg.Download.LinkPattern != "" {
			re, err := regexp.Compile(cfg.Download.LinkPattern)
			if err != nil {
				return fmt.Errorf("compile download.link_pattern: %w", err)
			}
			matcher = download.NewPatternMatcher(re)
		}
		dl, err := download.New(download.Config{
			DestDir:   cfg.Crawler.OutputDir,
			UserAgent: cfg.Portal.UserAgent,
			Timeout:   cfg.Download.Timeout(),
		}, driver, matcher,
			crawler.NewFixedRetryPolicy(cfg.Download.Attempts, cfg.Download.RetryDelay()),
			logger)
		if err != nil {
			return fmt.Errorf("configure downloader: %w", err)
		}
		downloader = dl
	}

	paginator := crawler.NewPaginator(driver,
		crawler.NewLinearRetryPolicy(cfg.Portal.LoadRetries, cfg.Portal.LoadBackoff()),
		crawler.PaginatorConfig{
			ResultSelector: cfg.Portal.ResultList,
			WaitTimeout:    cfg.Portal.WaitTimeout(),
		}, logger)

	engine := crawler.NewEngine(crawler.EngineConfig{
		Query:           cfg.Crawler.Query,
		TargetCount:     cfg.Crawler.TargetCount,
		MaxPages:        cfg.Crawler.MaxPages,
		DownloadEnabled: cfg.Crawler.Download,
		DiagnosticsDir:  cfg.Crawler.OutputDir,
	}, driver, paginator, crawler.NewExtractor(logger), downloader, store, metrics, logger)

	result, err := engine.Run(ctx)
	printSummary(cmd, result)
	if err != nil {
		logger.Error("crawl ended with error", zap.Error(err))
		return err
	}
	return nil
}

// applyFlagOverrides lets explicit flags win over file/env configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("query") {
		cfg.Crawler.Query = crawlFlags.query
	}
	if f.Changed("count") {
		cfg.Crawler.TargetCount = crawlFlags.count
	}
	if f.Changed("max-pages") {
		cfg.Crawler.MaxPages = crawlFlags.maxPages
	}
	if f.Changed("download") {
		cfg.Crawler.Download = crawlFlags.download
	}
	if f.Changed("headless") {
		cfg.Crawler.Headless = crawlFlags.headless
	}
	if f.Changed("output") {
		cfg.Crawler.OutputDir = crawlFlags.outputDir
	}
	if f.Changed("dsn") {
		cfg.DB.DSN = crawlFlags.dsn
	}
}

func printSummary(cmd *cobra.Command, result crawler.RunResult) {
	s := result.Summary
	cmd.Printf("run %s query=%q\n", result.RunID, result.Query)
	cmd.Printf("  records collected:  %d\n", len(result.Records))
	cmd.Printf("  pages visited:      %d (rows skipped: %d)\n", s.PagesVisited, s.RowsSkipped)
	cmd.Printf("  documents:          %d downloaded, %d already present, %d failed\n",
		s.Downloaded, s.DownloadSkipped, s.DownloadFailures)
	cmd.Printf("  persisted:          %d (failures: %d)\n", s.Persisted, s.PersistFailures)
	cmd.Printf("  elapsed:            %s\n", s.Elapsed.Round(time.Millisecond))
}
