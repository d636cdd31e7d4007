package crawler

import (
	"strings"

	"go.uber.org/zap"
)

// authorSeparators is the union of separators seen in the wild between
// author names on the portal's result rows.
const authorSeparators = ";；,"

// Extractor turns a rendered result page into records. Extraction is
// one-shot per page render: the rows were scraped from a live DOM and are
// not restartable.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract produces one Record per well-formed row. Rows missing a title
// are dropped silently; the second return value tallies them for
// diagnostics.
func (x *Extractor) Extract(page ResultPage) ([]Record, int) {
	records := make([]Record, 0, len(page.Rows))
	skipped := 0
	for i, row := range page.Rows {
		title := strings.TrimSpace(row.Title)
		if title == "" {
			skipped++
			x.logger.Debug("row missing title, skipped",
				zap.Int("page", page.Number),
				zap.Int("row", i+1),
			)
			continue
		}
		records = append(records, Record{
			Title:   title,
			Authors: SplitAuthors(row.Authors),
			PubDate: strings.TrimSpace(row.Date),
			Page:    page.Number,
			Detail:  DetailHandle{URL: strings.TrimSpace(row.DetailURL)},
		})
	}
	return records, skipped
}

// SplitAuthors splits a raw author string on the common separators,
// trimming whitespace and dropping empty entries.
func SplitAuthors(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return strings.ContainsRune(authorSeparators, r)
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
