package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractorDropsTitlelessRows(t *testing.T) {
	t.Parallel()

	page := ResultPage{
		Number: 3,
		Rows: []RawRow{
			{Title: "  Graphene Synthesis  ", Authors: "Zhang San；Li Si", Date: " 2024-03-01 ", DetailURL: " https://portal.test/d/1 "},
			{Title: "", Authors: "Nobody", Date: "2024-03-02"},
			{Title: "   ", Authors: "Nobody Either", Date: "2024-03-03"},
			{Title: "Battery Anodes", Authors: "Wang Wu", Date: "2024-03-04", DetailURL: "https://portal.test/d/4"},
		},
	}

	records, skipped := NewExtractor(nil).Extract(page)
	require.Len(t, records, 2)
	assert.Equal(t, 2, skipped)

	first := records[0]
	assert.Equal(t, "Graphene Synthesis", first.Title)
	assert.Equal(t, []string{"Zhang San", "Li Si"}, first.Authors)
	assert.Equal(t, "2024-03-01", first.PubDate)
	assert.Equal(t, 3, first.Page)
	assert.Equal(t, "https://portal.test/d/1", first.Detail.URL)
}

func TestSplitAuthors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"fullwidth semicolon", "张三；李四", []string{"张三", "李四"}},
		{"ascii semicolon", "Zhang San; Li Si", []string{"Zhang San", "Li Si"}},
		{"comma", "A,B,C", []string{"A", "B", "C"}},
		{"mixed with blanks", "A；; B ;；", []string{"A", "B"}},
		{"single author", "Solo", []string{"Solo"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SplitAuthors(tt.raw))
		})
	}
}

func TestRecordAuthorText(t *testing.T) {
	t.Parallel()

	rec := Record{Authors: []string{"张三", "李四"}}
	assert.Equal(t, "张三；李四", rec.AuthorText())
	assert.Empty(t, Record{}.AuthorText())
}
