package crawler

import "errors"

// Sentinel errors shared across the pipeline. Per-record failures are
// absorbed by the engine; only ErrSessionFailure terminates a run.
var (
	// ErrPageLoadTimeout indicates the result container never became
	// visible within the wait budget. Retryable; persistent timeout is
	// treated as end-of-results.
	ErrPageLoadTimeout = errors.New("page load timed out")

	// ErrEndOfResults indicates the portal has no further result pages.
	ErrEndOfResults = errors.New("end of results")

	// ErrSessionFailure indicates the browser session or the search
	// submission failed. Fatal to the run; partial results are returned.
	ErrSessionFailure = errors.New("session failure")

	// ErrStoreDegraded is returned by a record store that has entered
	// degraded mode: the save was skipped and will not be retried.
	ErrStoreDegraded = errors.New("record store degraded")
)
