package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYearRange(t *testing.T) {
	tests := []struct {
		in      string
		want    YearRange
		wantErr bool
	}{
		{"2020", YearRange{2020, 2020}, false},
		{"2018-2022", YearRange{2018, 2022}, false},
		{"2018-", YearRange{From: 2018}, false},
		{"-2022", YearRange{To: 2022}, false},
		{"", YearRange{}, false},
		{"20", YearRange{}, true},
		{"abcd", YearRange{}, true},
		{"2022-2018", YearRange{}, true},
		{"-", YearRange{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseYearRange(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestYearRangeContains(t *testing.T) {
	r := YearRange{From: 2018, To: 2022}
	assert.True(t, r.Contains(2018))
	assert.True(t, r.Contains(2022))
	assert.False(t, r.Contains(2017))
	assert.False(t, r.Contains(2023))
	assert.False(t, r.Contains(0), "unknown year must not match a bounded range")

	open := YearRange{From: 2018}
	assert.True(t, open.Contains(2100))
	assert.False(t, open.Contains(2017))

	assert.True(t, YearRange{}.Contains(0))
}

func TestSearchQueryNormalize(t *testing.T) {
	q := &SearchQuery{Query: " transformers "}
	q.Normalize()
	assert.Equal(t, "transformers", q.Query)
	assert.Equal(t, DefaultSearchResults, q.MaxResults)
	assert.Equal(t, SortRelevance, q.SortBy)

	q = &SearchQuery{Query: "x", MaxResults: 5000}
	q.Normalize()
	assert.Equal(t, MaxSearchResults, q.MaxResults)
}

func TestSearchQueryValidate(t *testing.T) {
	assert.Error(t, (&SearchQuery{}).Validate())
	assert.Error(t, (&SearchQuery{Query: "x", Year: "199"}).Validate())
	assert.Error(t, (&SearchQuery{Query: "x", SortBy: "magic"}).Validate())
	assert.NoError(t, (&SearchQuery{Query: "x", Year: "1999-", SortBy: SortDate}).Validate())
	assert.NoError(t, (&SearchQuery{Author: "Knuth"}).Validate(), "author-only queries are allowed")
}

func TestFilterByYear(t *testing.T) {
	resp := &SearchResponse{Papers: []Paper{
		{PaperID: "a", PublishedDate: "2019-01-01"},
		{PaperID: "b", PublishedDate: "2021-06-01"},
		{PaperID: "c"},
	}}
	resp.FilterByYear(YearRange{From: 2020, To: 2022})
	require.Len(t, resp.Papers, 1)
	assert.Equal(t, "b", resp.Papers[0].PaperID)
}
