// Package download fetches full-text documents referenced from result
// detail pages and writes them to a local destination directory.
package download

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/wenlu/paperdredge/internal/crawler"
)

// LinkMatcher decides whether an anchor href points at a downloadable
// document. Injecting it keeps the portal's link shapes out of the
// transfer logic.
type LinkMatcher func(href string) bool

// NewPatternMatcher builds a LinkMatcher from a compiled pattern.
func NewPatternMatcher(re *regexp.Regexp) LinkMatcher {
	return func(href string) bool { return re.MatchString(href) }
}

// DefaultLinkMatcher recognizes the common document link shapes: direct
// .pdf/.caj references and generic download endpoints.
var DefaultLinkMatcher = NewPatternMatcher(
	regexp.MustCompile(`(?i)(\.pdf|\.caj|/download)`),
)

// Config controls transfer behavior.
type Config struct {
	// DestDir receives completed documents.
	DestDir string
	// UserAgent is sent on every request; should match the browser session.
	UserAgent string
	// Timeout bounds a single transfer.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// Downloader implements crawler.Downloader over a colly collector that
// shares the browser session's cookies, so documents gated behind the
// portal session remain reachable over plain HTTP.
type Downloader struct {
	cfg     Config
	base    *colly.Collector
	session crawler.SessionState
	matcher LinkMatcher
	retry   crawler.RetryPolicy
	logger  *zap.Logger

	primeOnce sync.Once
	primeErr  error
	referer   string
}

// New builds a Downloader. The session is consulted lazily on the first
// Fetch, after the browser has established its cookies.
func New(cfg Config, session crawler.SessionState, matcher LinkMatcher, retry crawler.RetryPolicy, logger *zap.Logger) (*Downloader, error) {
	cfg = cfg.withDefaults()
	if cfg.DestDir == "" {
		return nil, fmt.Errorf("destination directory is required")
	}
	if err := os.MkdirAll(cfg.DestDir, 0o750); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}
	if matcher == nil {
		matcher = DefaultLinkMatcher
	}
	if retry == nil {
		retry = crawler.NewFixedRetryPolicy(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(0),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	base := colly.NewCollector(opts...)
	base.SetRequestTimeout(cfg.Timeout)

	return &Downloader{
		cfg:     cfg,
		base:    base,
		session: session,
		matcher: matcher,
		retry:   retry,
		logger:  logger,
	}, nil
}

// Fetch resolves the document link behind a detail handle and transfers
// it. The result status is always one of the crawler.Fetch* values; Fetch
// never returns an error because a failed download must not abort the run.
func (d *Downloader) Fetch(ctx context.Context, handle crawler.DetailHandle, title string) crawler.FetchResult {
	log := d.logger.With(zap.String("title", title))

	if err := d.primeSession(ctx); err != nil {
		log.Warn("session priming failed, continuing without cookies", zap.Error(err))
	}

	name := SanitizeFilename(title)
	if path, ok := d.existing(name); ok {
		log.Debug("document already present, skipping", zap.String("path", path))
		return crawler.FetchResult{Status: crawler.FetchAlreadyExists, Path: path}
	}

	link, err := d.findDocumentLink(handle.URL)
	if err != nil {
		log.Warn("detail page fetch failed", zap.String("url", handle.URL), zap.Error(err))
		return crawler.FetchResult{Status: crawler.FetchNetworkError}
	}
	if link == "" {
		return crawler.FetchResult{Status: crawler.FetchNotFound}
	}

	body, err := d.transfer(ctx, link, log)
	if err != nil {
		log.Warn("document transfer failed", zap.String("link", link), zap.Error(err))
		return crawler.FetchResult{Status: crawler.FetchNetworkError}
	}

	path := filepath.Join(d.cfg.DestDir, name+detectExtension(body))
	if err := writeAtomic(path, body); err != nil {
		log.Warn("document write failed", zap.String("path", path), zap.Error(err))
		return crawler.FetchResult{Status: crawler.FetchNetworkError}
	}
	log.Info("document saved", zap.String("path", path), zap.Int("bytes", len(body)))
	return crawler.FetchResult{Status: crawler.FetchSuccess, Path: path}
}

// primeSession copies the browser session's cookies and current location
// onto the collector so gated documents stay reachable. Runs once; a
// priming failure is remembered but not retried, matching the session's
// one-shot lifecycle.
func (d *Downloader) primeSession(ctx context.Context) error {
	d.primeOnce.Do(func() {
		if d.session == nil {
			return
		}
		loc, err := d.session.Location(ctx)
		if err != nil {
			d.primeErr = fmt.Errorf("read session location: %w", err)
			return
		}
		d.referer = loc
		cookies, err := d.session.Cookies(ctx)
		if err != nil {
			d.primeErr = fmt.Errorf("export session cookies: %w", err)
			return
		}
		if err := d.base.SetCookies(loc, cookies); err != nil {
			d.primeErr = fmt.Errorf("apply session cookies: %w", err)
			return
		}
		d.logger.Debug("session primed",
			zap.String("referer", loc), zap.Int("cookies", len(cookies)))
	})
	return d.primeErr
}

// findDocumentLink loads the detail page and returns the first absolute
// link the matcher accepts, or "" when the page carries none.
func (d *Downloader) findDocumentLink(detailURL string) (string, error) {
	body, finalURL, err := d.get(detailURL)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse detail page: %w", err)
	}
	base, err := url.Parse(finalURL)
	if err != nil {
		return "", fmt.Errorf("parse detail url: %w", err)
	}

	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return true
		}
		abs := href
		if ref, err := url.Parse(href); err == nil {
			abs = base.ResolveReference(ref).String()
		}
		if d.matcher(abs) {
			link = abs
			return false
		}
		return true
	})
	return link, nil
}

// transfer downloads the document body, retrying on transient failures.
// Empty bodies and HTML error pages served with a 200 count as failed
// attempts.
func (d *Downloader) transfer(ctx context.Context, link string, log *zap.Logger) ([]byte, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, _, err := d.get(link)
		if err == nil {
			switch {
			case len(body) == 0:
				err = fmt.Errorf("empty response body")
			case looksLikeHTML(body):
				err = fmt.Errorf("received an error page instead of a document")
			default:
				return body, nil
			}
		}
		lastErr = err

		if !d.retry.ShouldRetry(err, attempt) {
			return nil, fmt.Errorf("transfer after %d attempts: %w", attempt, lastErr)
		}
		log.Debug("transfer attempt failed, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		if err := crawler.Sleep(ctx, d.retry.Backoff(attempt)); err != nil {
			return nil, err
		}
	}
}

// get performs one request on a fresh clone of the base collector; clones
// share the cookie jar, so the primed session applies.
func (d *Downloader) get(target string) ([]byte, string, error) {
	c := d.base.Clone()

	var body []byte
	finalURL := target
	c.OnRequest(func(r *colly.Request) {
		if d.referer != "" {
			r.Headers.Set("Referer", d.referer)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
	})

	if err := c.Visit(target); err != nil {
		return nil, "", fmt.Errorf("get %s: %w", target, err)
	}
	c.Wait()
	return body, finalURL, nil
}

// existing reports a previously completed download for this name, in
// either format. Zero-byte leftovers do not count.
func (d *Downloader) existing(name string) (string, bool) {
	for _, ext := range []string{".pdf", ".caj"} {
		path := filepath.Join(d.cfg.DestDir, name+ext)
		if st, err := os.Stat(path); err == nil && st.Size() > 0 {
			return path, true
		}
	}
	return "", false
}

// detectExtension sniffs the payload format. PDFs declare themselves with
// a magic prefix; everything else the portal serves is CAJ.
func detectExtension(body []byte) string {
	if bytes.HasPrefix(body, []byte("%PDF")) {
		return ".pdf"
	}
	return ".caj"
}

func looksLikeHTML(body []byte) bool {
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	s := strings.ToLower(string(bytes.TrimSpace(head)))
	return strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html") ||
		strings.Contains(s, "<html")
}

// writeAtomic stages the body next to the target and renames into place,
// so readers never observe a partial document.
func writeAtomic(path string, body []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o640); err != nil {
		return fmt.Errorf("stage document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize document: %w", err)
	}
	return nil
}
