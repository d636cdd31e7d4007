package crawler

import (
	"context"
	"net/http"
	"time"
)

// fakeDriver serves canned pages. Page advancement mirrors the real
// portal: NextPage returns false once the last canned page is showing.
type fakeDriver struct {
	pages [][]RawRow
	page  int

	openErr   error
	waitErrs  []error
	waitCalls int
	rowsErr   error

	screenshot []byte
	shotErr    error
	shotCalls  int
}

func (d *fakeDriver) Open(context.Context, string) error { return d.openErr }

func (d *fakeDriver) WaitFor(context.Context, string, time.Duration) error {
	d.waitCalls++
	if d.waitCalls <= len(d.waitErrs) {
		return d.waitErrs[d.waitCalls-1]
	}
	return nil
}

func (d *fakeDriver) Rows(context.Context) ([]RawRow, error) {
	if d.rowsErr != nil {
		return nil, d.rowsErr
	}
	if d.page >= len(d.pages) {
		return nil, nil
	}
	return d.pages[d.page], nil
}

func (d *fakeDriver) NextPage(context.Context) (bool, error) {
	if d.page+1 >= len(d.pages) {
		return false, nil
	}
	d.page++
	return true, nil
}

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) {
	d.shotCalls++
	return d.screenshot, d.shotErr
}

func (d *fakeDriver) Cookies(context.Context) ([]*http.Cookie, error) { return nil, nil }

func (d *fakeDriver) Location(context.Context) (string, error) {
	return "https://portal.test/results", nil
}

func (d *fakeDriver) Close(context.Context) error { return nil }

type fakeStore struct {
	saved []Record
	err   error
}

func (s *fakeStore) Save(_ context.Context, rec Record) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, rec)
	return nil
}

func (s *fakeStore) Close() {}

// fakeDownloader returns a canned result per title, defaulting to success.
type fakeDownloader struct {
	results map[string]FetchResult
	calls   []string
}

func (f *fakeDownloader) Fetch(_ context.Context, _ DetailHandle, title string) FetchResult {
	f.calls = append(f.calls, title)
	if res, ok := f.results[title]; ok {
		return res
	}
	return FetchResult{Status: FetchSuccess, Path: "/papers/" + title + ".pdf"}
}
