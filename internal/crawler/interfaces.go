package crawler

import (
	"context"
	"net/http"
	"time"
)

// Driver abstracts the browser-automation engine behind the capability
// surface the pipeline actually needs, so the core logic can be tested
// against a fake without a real browser.
type Driver interface {
	// Open navigates to the portal and submits the search query. An error
	// here is fatal to the run.
	Open(ctx context.Context, query string) error

	// WaitFor blocks until the element matching selector is present, or
	// the timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// Rows scrapes the current result page by structural position.
	Rows(ctx context.Context) ([]RawRow, error)

	// NextPage activates the portal's pagination control. It returns false
	// when the control is absent or disabled, meaning the last page has
	// been reached.
	NextPage(ctx context.Context) (bool, error)

	// Screenshot captures the current viewport. Diagnostic only.
	Screenshot(ctx context.Context) ([]byte, error)

	SessionState

	// Close releases the browser session.
	Close(ctx context.Context) error
}

// SessionState exposes the browser session details a plain HTTP client
// needs to impersonate it (cookie jar, current URL for the Referer).
type SessionState interface {
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	Location(ctx context.Context) (string, error)
}

// Downloader resolves a detail handle and fetches the document behind it.
type Downloader interface {
	Fetch(ctx context.Context, handle DetailHandle, title string) FetchResult
}

// RecordStore persists extracted records. Save returns ErrStoreDegraded
// when the store has failed soft and the record was not written.
type RecordStore interface {
	Save(ctx context.Context, rec Record) error
	Close()
}

// RetryPolicy decides how many attempts an operation gets and how long to
// wait between them. Page loads and file transfers carry different
// policies, so delays live here rather than inline in the callers.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (a seam for tests).
type Clock interface {
	Now() time.Time
}
