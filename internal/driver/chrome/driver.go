// Package chrome implements the crawler.Driver capability on top of
// chromedp and a locally managed Chrome instance.
package chrome

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/wenlu/paperdredge/internal/crawler"
)

// Config controls the browser session.
type Config struct {
	PortalURL  string
	Headless   bool
	UserAgent  string
	NavTimeout time.Duration

	// Selectors locating the portal's moving parts. The defaults track the
	// portal's current markup and are overridable from configuration.
	SearchInputSel  string
	SearchButtonSel string
	ResultRowSel    string
	TitleLinkSel    string
	AuthorLinkSel   string
	DateCellSel     string
	NextPageSel     string
}

func (c Config) withDefaults() Config {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.SearchInputSel == "" {
		c.SearchInputSel = "#txt_SearchText"
	}
	if c.SearchButtonSel == "" {
		c.SearchButtonSel = ".search-btn"
	}
	if c.ResultRowSel == "" {
		c.ResultRowSel = "table.result-table-list tbody tr"
	}
	if c.TitleLinkSel == "" {
		c.TitleLinkSel = "a.fz14"
	}
	if c.AuthorLinkSel == "" {
		c.AuthorLinkSel = "a.KnowledgeNetLink"
	}
	if c.DateCellSel == "" {
		c.DateCellSel = "td.date"
	}
	if c.NextPageSel == "" {
		c.NextPageSel = "#PageNext"
	}
	return c
}

// Driver owns one browser session for the lifetime of a run.
type Driver struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
}

// New launches the browser and returns a ready Driver.
func New(cfg Config, logger *zap.Logger) (*Driver, error) {
	cfg = cfg.withDefaults()
	if cfg.PortalURL == "" {
		return nil, fmt.Errorf("portal url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Driver{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (d *Driver) Close(context.Context) error {
	if d == nil {
		return nil
	}
	d.browserCancel()
	d.allocCancel()
	return nil
}

// Open navigates to the portal and submits the search query. When the
// search button cannot be clicked it falls back to pressing Enter in the
// search box, which the portal also accepts.
func (d *Driver) Open(ctx context.Context, query string) error {
	runCtx, cancel := d.taskContext(ctx, d.cfg.NavTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(d.cfg.PortalURL),
		chromedp.WaitVisible(d.cfg.SearchInputSel, chromedp.ByQuery),
		chromedp.SendKeys(d.cfg.SearchInputSel, query, chromedp.ByQuery),
		chromedp.Click(d.cfg.SearchButtonSel, chromedp.ByQuery),
	)
	if err == nil {
		return nil
	}
	d.logger.Warn("search button click failed, submitting via Enter", zap.Error(err))

	retryCtx, retryCancel := d.taskContext(ctx, d.cfg.NavTimeout)
	defer retryCancel()
	if err := chromedp.Run(retryCtx,
		chromedp.Navigate(d.cfg.PortalURL),
		chromedp.WaitVisible(d.cfg.SearchInputSel, chromedp.ByQuery),
		chromedp.SendKeys(d.cfg.SearchInputSel, query+kb.Enter, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	return nil
}

// WaitFor blocks until selector is present or the timeout elapses.
func (d *Driver) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := d.taskContext(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// Rows scrapes the current result page by structural position.
func (d *Driver) Rows(ctx context.Context) ([]crawler.RawRow, error) {
	runCtx, cancel := d.taskContext(ctx, d.cfg.NavTimeout)
	defer cancel()

	var rows []crawler.RawRow
	js := rowScrapeJS(d.cfg.ResultRowSel, d.cfg.TitleLinkSel, d.cfg.AuthorLinkSel, d.cfg.DateCellSel)
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, &rows)); err != nil {
		return nil, fmt.Errorf("scrape result rows: %w", err)
	}
	return rows, nil
}

// NextPage activates the pagination control with a JS click (the control
// goes stale across re-renders, so element handles are not kept). Returns
// false when the control is absent or disabled.
func (d *Driver) NextPage(ctx context.Context) (bool, error) {
	runCtx, cancel := d.taskContext(ctx, d.cfg.NavTimeout)
	defer cancel()

	var clicked bool
	if err := chromedp.Run(runCtx,
		chromedp.Evaluate(nextPageJS(d.cfg.NextPageSel), &clicked),
	); err != nil {
		return false, fmt.Errorf("next page control: %w", err)
	}
	if !clicked {
		return false, nil
	}
	if err := chromedp.Run(runCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
	); err != nil {
		return false, fmt.Errorf("wait after pagination: %w", err)
	}
	return true, nil
}

// Cookies exports the session cookies for plain-HTTP reuse.
func (d *Driver) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	runCtx, cancel := d.taskContext(ctx, d.cfg.NavTimeout)
	defer cancel()

	var raw []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("export cookies: %w", err)
	}
	return convertCookies(raw), nil
}

// Location reports the browser's current URL.
func (d *Driver) Location(ctx context.Context) (string, error) {
	runCtx, cancel := d.taskContext(ctx, d.cfg.NavTimeout)
	defer cancel()

	var loc string
	if err := chromedp.Run(runCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// Screenshot captures the current viewport.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := d.taskContext(ctx, d.cfg.NavTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// taskContext derives a timeout-bounded chromedp context whose lifetime is
// also tied to the caller's context.
func (d *Driver) taskContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(d.browserCtx, timeout)
	stop := forwardCancel(parent, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func convertCookies(raw []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		out = append(out, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: c.Secure,
		})
	}
	return out
}

func rowScrapeJS(rowSel, titleSel, authorSel, dateSel string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(function (tr) {
	var title = tr.querySelector(%q);
	var authors = Array.from(tr.querySelectorAll(%q))
		.map(function (a) { return a.innerText.trim(); })
		.filter(function (s) { return s.length > 0; })
		.join(';');
	var date = tr.querySelector(%q);
	return {
		title: title ? title.innerText.trim() : '',
		authors: authors,
		date: date ? date.innerText.trim() : '',
		detail: title && title.href ? title.href : ''
	};
})`, rowSel, titleSel, authorSel, dateSel)
}

func nextPageJS(sel string) string {
	return fmt.Sprintf(`(function () {
	var btn = document.querySelector(%q);
	if (!btn || btn.disabled || btn.getAttribute('disabled')) { return false; }
	btn.click();
	return true;
})()`, sel)
}
