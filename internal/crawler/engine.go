package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EngineConfig carries the run parameters the caller supplies.
type EngineConfig struct {
	Query           string
	TargetCount     int
	MaxPages        int
	DownloadEnabled bool

	// MaxConsecutiveFailures stops the page loop after this many pages in
	// a row yield no records. Defaults to 3.
	MaxConsecutiveFailures int

	// DiagnosticsDir, when set, receives a screenshot whenever a page load
	// times out persistently.
	DiagnosticsDir string
}

// Engine owns the crawl session lifecycle and coordinates the paginator,
// extractor, downloader, and record store for each record. Execution is
// strictly sequential: one page, one record at a time, in page order.
type Engine struct {
	driver     Driver
	paginator  *Paginator
	extractor  *Extractor
	downloader Downloader
	store      RecordStore
	metrics    *Metrics
	clock      Clock
	logger     *zap.Logger
	cfg        EngineConfig
}

// NewEngine wires an Engine from its collaborators. downloader may be nil
// when downloads are disabled; metrics may be nil.
func NewEngine(
	cfg EngineConfig,
	driver Driver,
	paginator *Paginator,
	extractor *Extractor,
	downloader Downloader,
	store RecordStore,
	metrics *Metrics,
	logger *zap.Logger,
) *Engine {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		driver:     driver,
		paginator:  paginator,
		extractor:  extractor,
		downloader: downloader,
		store:      store,
		metrics:    metrics,
		clock:      systemClock{},
		logger:     logger,
		cfg:        cfg,
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Run executes a crawl to completion. Per-record failures never abort the
// run; only session establishment and search submission are fatal, and
// even then whatever was collected so far is returned alongside the error.
func (e *Engine) Run(ctx context.Context) (RunResult, error) {
	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID), zap.String("query", e.cfg.Query))
	start := e.clock.Now()

	state := CrawlState{
		Query:       e.cfg.Query,
		TargetCount: e.cfg.TargetCount,
		MaxPages:    e.cfg.MaxPages,
		CurrentPage: 1,
	}
	result := RunResult{RunID: runID, Query: e.cfg.Query}

	if err := e.driver.Open(ctx, e.cfg.Query); err != nil {
		result.Summary.Elapsed = e.clock.Now().Sub(start)
		return result, fmt.Errorf("%w: submit search %q: %w", ErrSessionFailure, e.cfg.Query, err)
	}
	log.Info("search submitted",
		zap.Int("target_count", e.cfg.TargetCount),
		zap.Int("max_pages", e.cfg.MaxPages),
		zap.Bool("download", e.cfg.DownloadEnabled),
	)

	summary := Summary{}
	state = e.crawlPages(ctx, log, state, &summary)

	result.Records = state.Collected
	summary.Elapsed = e.clock.Now().Sub(start)
	result.Summary = summary

	log.Info("run finished",
		zap.Int("records", len(result.Records)),
		zap.Int("pages", summary.PagesVisited),
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("persisted", summary.Persisted),
		zap.Duration("elapsed", summary.Elapsed),
	)
	if ctx.Err() != nil {
		return result, fmt.Errorf("crawl interrupted: %w", ctx.Err())
	}
	return result, nil
}

func (e *Engine) crawlPages(ctx context.Context, log *zap.Logger, state CrawlState, summary *Summary) CrawlState {
	consecutive := 0
	for !state.QuotaMet() && state.CurrentPage <= state.MaxPages {
		if ctx.Err() != nil {
			return state
		}

		page, err := e.paginator.LoadPage(ctx, state.CurrentPage)
		if err != nil {
			if errors.Is(err, ErrPageLoadTimeout) {
				e.captureDiagnostics(ctx, log, state.CurrentPage)
				log.Warn("persistent page load timeout, treating as end of results",
					zap.Int("page", state.CurrentPage))
				return state
			}
			if ctx.Err() != nil {
				return state
			}
			consecutive++
			log.Warn("page load failed",
				zap.Int("page", state.CurrentPage),
				zap.Int("consecutive_failures", consecutive),
				zap.Error(err),
			)
			if consecutive >= e.cfg.MaxConsecutiveFailures {
				log.Error("too many consecutive page failures, stopping")
				return state
			}
			if err := Sleep(ctx, time.Second); err != nil {
				return state
			}
			continue
		}

		records, skipped := e.extractor.Extract(page)
		e.metrics.pageVisited(len(records), skipped)
		summary.PagesVisited++
		summary.RowsSkipped += skipped

		if len(records) == 0 {
			consecutive++
			log.Warn("page yielded no records",
				zap.Int("page", state.CurrentPage),
				zap.Int("consecutive_failures", consecutive),
			)
			if consecutive >= e.cfg.MaxConsecutiveFailures {
				log.Error("too many empty pages in a row, stopping")
				return state
			}
		} else {
			consecutive = 0
			state = e.processRecords(ctx, log, state, records, summary)
		}

		if state.QuotaMet() {
			log.Info("target count reached", zap.Int("collected", len(state.Collected)))
			return state
		}
		if err := e.paginator.Advance(ctx, state.CurrentPage); err != nil {
			if !errors.Is(err, ErrEndOfResults) {
				log.Warn("pagination failed", zap.Int("page", state.CurrentPage), zap.Error(err))
			}
			return state
		}
		state.CurrentPage++
	}
	return state
}

// processRecords runs download-then-persist for each record in page order,
// appending to the collected list only after the persistence attempt.
func (e *Engine) processRecords(ctx context.Context, log *zap.Logger, state CrawlState, records []Record, summary *Summary) CrawlState {
	for _, rec := range records {
		if state.QuotaMet() || ctx.Err() != nil {
			return state
		}

		if e.cfg.DownloadEnabled && e.downloader != nil && rec.Detail.URL != "" {
			res := e.downloader.Fetch(ctx, rec.Detail, rec.Title)
			e.metrics.download(res.Status)
			switch res.Status {
			case FetchSuccess:
				rec.FileName = filepath.Base(res.Path)
				summary.Downloaded++
			case FetchAlreadyExists:
				rec.FileName = filepath.Base(res.Path)
				summary.DownloadSkipped++
			case FetchNotFound:
				summary.DownloadFailures++
				log.Info("no document link on detail page",
					zap.Int("page", rec.Page), zap.String("title", rec.Title))
			case FetchNetworkError:
				summary.DownloadFailures++
				log.Warn("document download failed",
					zap.Int("page", rec.Page), zap.String("title", rec.Title))
			}
		}

		if err := e.store.Save(ctx, rec); err != nil {
			summary.PersistFailures++
			e.metrics.persist("soft_failure")
			if errors.Is(err, ErrStoreDegraded) {
				log.Debug("store degraded, record not persisted", zap.String("title", rec.Title))
			} else {
				log.Warn("record save failed",
					zap.Int("page", rec.Page), zap.String("title", rec.Title), zap.Error(err))
			}
		} else {
			summary.Persisted++
			e.metrics.persist("ok")
		}

		state.Collected = append(state.Collected, rec)
	}
	return state
}

func (e *Engine) captureDiagnostics(ctx context.Context, log *zap.Logger, page int) {
	if e.cfg.DiagnosticsDir == "" {
		return
	}
	shot, err := e.driver.Screenshot(ctx)
	if err != nil {
		log.Debug("screenshot failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(e.cfg.DiagnosticsDir, 0o750); err != nil {
		log.Debug("create diagnostics dir failed", zap.Error(err))
		return
	}
	target := filepath.Join(e.cfg.DiagnosticsDir, fmt.Sprintf("timeout-page-%d.png", page))
	if err := os.WriteFile(target, shot, 0o600); err != nil {
		log.Debug("write screenshot failed", zap.Error(err))
		return
	}
	log.Info("timeout screenshot captured", zap.String("path", target))
}
