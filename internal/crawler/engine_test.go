package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cannedRows(prefix string, n int) []RawRow {
	rows := make([]RawRow, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, RawRow{
			Title:     fmt.Sprintf("%s-%d", prefix, i),
			Authors:   "Zhang San；Li Si",
			Date:      "2024-03-01",
			DetailURL: fmt.Sprintf("https://portal.test/detail/%s-%d", prefix, i),
		})
	}
	return rows
}

func newTestEngine(t *testing.T, cfg EngineConfig, driver *fakeDriver, dl Downloader, store RecordStore) *Engine {
	t.Helper()
	paginator := NewPaginator(driver,
		NewLinearRetryPolicy(1, time.Millisecond),
		PaginatorConfig{ResultSelector: "table.results", WaitTimeout: time.Millisecond},
		nil)
	return NewEngine(cfg, driver, paginator, NewExtractor(nil), dl, store, nil, nil)
}

func TestEngineQuotaMetOnSinglePage(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: [][]RawRow{cannedRows("a", 5)}}
	store := &fakeStore{}
	engine := newTestEngine(t, EngineConfig{Query: "graphene", TargetCount: 5, MaxPages: 20}, driver, nil, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Records, 5)
	assert.Equal(t, 1, result.Summary.PagesVisited)
	assert.Equal(t, 5, result.Summary.Persisted)
	for _, rec := range result.Records {
		assert.Equal(t, 1, rec.Page)
	}
	assert.NotEmpty(t, result.RunID)
}

func TestEngineCollectsAcrossPages(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: [][]RawRow{cannedRows("a", 5), cannedRows("b", 5)}}
	store := &fakeStore{}
	engine := newTestEngine(t, EngineConfig{Query: "graphene", TargetCount: 10, MaxPages: 20}, driver, nil, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Records, 10)
	assert.Equal(t, 2, result.Summary.PagesVisited)
	assert.Equal(t, 1, result.Records[0].Page)
	assert.Equal(t, 2, result.Records[5].Page)
	assert.Equal(t, "b-1", result.Records[5].Title)
}

func TestEngineStopsAtEndOfResults(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: [][]RawRow{cannedRows("a", 5)}}
	engine := newTestEngine(t, EngineConfig{Query: "graphene", TargetCount: 10, MaxPages: 20}, driver, nil, &fakeStore{})

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Records, 5)
	assert.Equal(t, 1, result.Summary.PagesVisited)
}

func TestEngineHonorsMaxPagesCap(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: [][]RawRow{
		cannedRows("a", 5), cannedRows("b", 5), cannedRows("c", 5),
	}}
	engine := newTestEngine(t, EngineConfig{Query: "graphene", TargetCount: 100, MaxPages: 2}, driver, nil, &fakeStore{})

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Records, 10)
	assert.Equal(t, 2, result.Summary.PagesVisited)
	for _, rec := range result.Records {
		assert.LessOrEqual(t, rec.Page, 2)
	}
}

func TestEngineKeepsRecordWhenDownloadFails(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: [][]RawRow{cannedRows("a", 3)}}
	store := &fakeStore{}
	dl := &fakeDownloader{results: map[string]FetchResult{
		"a-2": {Status: FetchNotFound},
	}}
	engine := newTestEngine(t,
		EngineConfig{Query: "graphene", TargetCount: 3, MaxPages: 20, DownloadEnabled: true},
		driver, dl, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Records, 3)
	assert.Equal(t, 2, result.Summary.Downloaded)
	assert.Equal(t, 1, result.Summary.DownloadFailures)
	assert.Equal(t, "a-1.pdf", result.Records[0].FileName)
	assert.Empty(t, result.Records[1].FileName)
	assert.Equal(t, "a-3.pdf", result.Records[2].FileName)

	// The failed download must not block persistence.
	require.Len(t, store.saved, 3)
	assert.Equal(t, "a-2", store.saved[1].Title)
}

func TestEngineDegradedStoreStillCollects(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: [][]RawRow{cannedRows("a", 5)}}
	store := &fakeStore{err: ErrStoreDegraded}
	engine := newTestEngine(t, EngineConfig{Query: "graphene", TargetCount: 5, MaxPages: 20}, driver, nil, store)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Records, 5)
	assert.Equal(t, 0, result.Summary.Persisted)
	assert.Equal(t, 5, result.Summary.PersistFailures)
}

func TestEnginePersistentTimeoutCapturesScreenshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	driver := &fakeDriver{
		pages:      [][]RawRow{cannedRows("a", 5)},
		waitErrs:   []error{fmt.Errorf("container never appeared")},
		screenshot: []byte("png-bytes"),
	}
	engine := newTestEngine(t,
		EngineConfig{Query: "graphene", TargetCount: 5, MaxPages: 20, DiagnosticsDir: dir},
		driver, nil, &fakeStore{})

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Records)
	assert.Equal(t, 0, result.Summary.PagesVisited)
	assert.Equal(t, 1, driver.shotCalls)

	shot, err := os.ReadFile(filepath.Join(dir, "timeout-page-1.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), shot)
}

func TestEngineSearchFailureIsFatal(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{openErr: fmt.Errorf("portal unreachable")}
	engine := newTestEngine(t, EngineConfig{Query: "graphene", TargetCount: 5, MaxPages: 20}, driver, nil, &fakeStore{})

	result, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionFailure)
	assert.Empty(t, result.Records)
}

func TestEngineSkipsTitlelessRows(t *testing.T) {
	t.Parallel()

	rows := cannedRows("a", 4)
	rows[1].Title = "   "
	driver := &fakeDriver{pages: [][]RawRow{rows}}
	engine := newTestEngine(t, EngineConfig{Query: "graphene", TargetCount: 3, MaxPages: 20}, driver, nil, &fakeStore{})

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Records, 3)
	assert.Equal(t, 1, result.Summary.RowsSkipped)
}
