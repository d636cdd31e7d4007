package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PaginatorConfig controls how the paginator waits for result pages.
type PaginatorConfig struct {
	// ResultSelector is the element whose presence marks a loaded page.
	ResultSelector string
	// WaitTimeout bounds a single wait for the result container.
	WaitTimeout time.Duration
}

// Paginator drives the search session across result pages. It owns the
// wait-and-retry discipline around page loads; navigation itself happens
// in the driver.
type Paginator struct {
	driver Driver
	retry  RetryPolicy
	cfg    PaginatorConfig
	logger *zap.Logger
}

// NewPaginator builds a Paginator.
func NewPaginator(driver Driver, retry RetryPolicy, cfg PaginatorConfig, logger *zap.Logger) *Paginator {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	if retry == nil {
		retry = NewLinearRetryPolicy(3, 2*time.Second)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{driver: driver, retry: retry, cfg: cfg, logger: logger}
}

// LoadPage waits for the result container on the current page and scrapes
// its rows. Waits are retried per the policy; once the budget is exhausted
// the error wraps ErrPageLoadTimeout and callers should treat the run as
// having reached the end of results.
func (p *Paginator) LoadPage(ctx context.Context, pageNum int) (ResultPage, error) {
	attempt := 0
	for {
		attempt++
		err := p.driver.WaitFor(ctx, p.cfg.ResultSelector, p.cfg.WaitTimeout)
		if err == nil {
			break
		}
		if errors.Is(err, context.Canceled) {
			return ResultPage{}, fmt.Errorf("wait for results: %w", err)
		}
		if !p.retry.ShouldRetry(err, attempt) {
			return ResultPage{}, fmt.Errorf("page %d: %w: %w", pageNum, ErrPageLoadTimeout, err)
		}
		p.logger.Warn("result container not ready, retrying",
			zap.Int("page", pageNum),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := Sleep(ctx, p.retry.Backoff(attempt)); err != nil {
			return ResultPage{}, fmt.Errorf("retry backoff: %w", err)
		}
	}

	rows, err := p.driver.Rows(ctx)
	if err != nil {
		return ResultPage{}, fmt.Errorf("scrape page %d: %w", pageNum, err)
	}
	p.logger.Debug("page loaded", zap.Int("page", pageNum), zap.Int("rows", len(rows)))
	return ResultPage{Number: pageNum, Rows: rows}, nil
}

// Advance clicks through to the next result page. It returns
// ErrEndOfResults when the pagination control is absent or disabled.
func (p *Paginator) Advance(ctx context.Context, currentPage int) error {
	ok, err := p.driver.NextPage(ctx)
	if err != nil {
		return fmt.Errorf("advance past page %d: %w", currentPage, err)
	}
	if !ok {
		p.logger.Info("no next-page control, last page reached", zap.Int("page", currentPage))
		return ErrEndOfResults
	}
	return nil
}
