// Package crawler defines the core types and interfaces for the
// bibliographic crawl pipeline, plus the engine that orchestrates it.
package crawler

import (
	"strings"
	"time"
)

// AuthorDelimiter is the canonical separator used when author lists are
// flattened for storage.
const AuthorDelimiter = "；"

// Record is one extracted bibliographic entry. It is immutable once built
// by the extractor, except for the single FileName assignment made after a
// successful download.
type Record struct {
	Title    string
	Authors  []string
	PubDate  string
	Page     int
	FileName string

	// Detail points at the row's document-detail location. It is captured
	// during extraction but only resolved when a download is requested.
	Detail DetailHandle
}

// AuthorText returns the author list flattened with the canonical delimiter.
func (r Record) AuthorText() string {
	return strings.Join(r.Authors, AuthorDelimiter)
}

// DetailHandle is an opaque reference to a result row's detail page.
type DetailHandle struct {
	URL string
}

// RawRow is the structural scrape of a single result row, before any
// normalization. Rows without a title are dropped by the extractor.
type RawRow struct {
	Title     string `json:"title"`
	Authors   string `json:"authors"`
	Date      string `json:"date"`
	DetailURL string `json:"detail"`
}

// ResultPage is one rendered page of search results.
type ResultPage struct {
	Number int
	Rows   []RawRow
}

// CrawlState carries the mutable state of a single run. It is owned by the
// engine; each step receives it and hands back the updated value, so there
// is no process-wide crawl state.
type CrawlState struct {
	Query       string
	TargetCount int
	MaxPages    int
	Collected   []Record
	CurrentPage int
}

// QuotaMet reports whether the run has collected its target count.
func (s CrawlState) QuotaMet() bool {
	return len(s.Collected) >= s.TargetCount
}

// FetchStatus classifies the outcome of a document download.
type FetchStatus string

// Download outcomes. AlreadyExists is not an error: a prior run left a
// valid file behind and the fetch was skipped.
const (
	FetchSuccess       FetchStatus = "success"
	FetchNotFound      FetchStatus = "not_found"
	FetchNetworkError  FetchStatus = "network_error"
	FetchAlreadyExists FetchStatus = "already_exists"
)

// FetchResult is returned by a Downloader implementation. Path is set for
// FetchSuccess and FetchAlreadyExists.
type FetchResult struct {
	Status FetchStatus
	Path   string
}

// Summary aggregates per-run counters for the caller's report.
type Summary struct {
	PagesVisited     int
	RowsSkipped      int
	Downloaded       int
	DownloadSkipped  int
	DownloadFailures int
	Persisted        int
	PersistFailures  int
	Elapsed          time.Duration
}

// RunResult is what a finished (or aborted) run hands back to the caller:
// every processed record, whether or not persistence succeeded.
type RunResult struct {
	RunID   string
	Query   string
	Records []Record
	Summary Summary
}
