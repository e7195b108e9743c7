package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultSearchResults   = 10
	DefaultCitationResults = 20
	MaxSearchResults       = 100
)

// Sort orders accepted by SearchQuery. Adapters map these onto whatever
// the upstream supports and ignore the rest.
const (
	SortRelevance = "relevance"
	SortDate      = "date"
	SortCitations = "citations"
	SortTitle     = "title"
	SortAuthor    = "author"
)

// SearchQuery is the provider-independent search request.
type SearchQuery struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Year       string `json:"year,omitempty"` // "YYYY", "YYYY-YYYY", "YYYY-", "-YYYY"
	Author     string `json:"author,omitempty"`
	Category   string `json:"category,omitempty"`
	SortBy     string `json:"sort_by,omitempty"`
	SortOrder  string `json:"sort_order,omitempty"` // "asc" or "desc"

	// FetchDetails lets two-step adapters skip their per-result detail
	// fetch when false. NewSearchQuery turns it on.
	FetchDetails bool `json:"fetch_details,omitempty"`
}

// NewSearchQuery returns a query with defaults applied.
func NewSearchQuery(query string) *SearchQuery {
	return &SearchQuery{
		Query:        strings.TrimSpace(query),
		MaxResults:   DefaultSearchResults,
		SortBy:       SortRelevance,
		SortOrder:    "desc",
		FetchDetails: true,
	}
}

// Normalize clamps limits and fills defaults in place.
func (q *SearchQuery) Normalize() {
	q.Query = strings.TrimSpace(q.Query)
	if q.MaxResults <= 0 {
		q.MaxResults = DefaultSearchResults
	}
	if q.MaxResults > MaxSearchResults {
		q.MaxResults = MaxSearchResults
	}
	if q.SortBy == "" {
		q.SortBy = SortRelevance
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}

func (q *SearchQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" && strings.TrimSpace(q.Author) == "" {
		return fmt.Errorf("query must not be empty")
	}
	if q.Year != "" {
		if _, err := ParseYearRange(q.Year); err != nil {
			return err
		}
	}
	switch q.SortBy {
	case "", SortRelevance, SortDate, SortCitations, SortTitle, SortAuthor:
	default:
		return fmt.Errorf("unknown sort %q", q.SortBy)
	}
	return nil
}

// YearRange is an inclusive year filter; a zero bound is open-ended.
type YearRange struct {
	From int
	To   int
}

func (r YearRange) IsZero() bool { return r.From == 0 && r.To == 0 }

// Contains reports whether year falls inside the range. Papers with an
// unknown year (zero) never match a bounded range.
func (r YearRange) Contains(year int) bool {
	if r.IsZero() {
		return true
	}
	if year == 0 {
		return false
	}
	if r.From != 0 && year < r.From {
		return false
	}
	if r.To != 0 && year > r.To {
		return false
	}
	return true
}

// ParseYearRange accepts "YYYY", "YYYY-YYYY", "YYYY-" and "-YYYY".
func ParseYearRange(s string) (YearRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return YearRange{}, nil
	}
	bad := func() (YearRange, error) {
		return YearRange{}, fmt.Errorf("invalid year filter %q", s)
	}
	parseYear := func(part string) (int, bool) {
		if len(part) != 4 {
			return 0, false
		}
		y, err := strconv.Atoi(part)
		if err != nil || y < 1000 {
			return 0, false
		}
		return y, true
	}
	if !strings.Contains(s, "-") {
		y, ok := parseYear(s)
		if !ok {
			return bad()
		}
		return YearRange{From: y, To: y}, nil
	}
	parts := strings.SplitN(s, "-", 2)
	var r YearRange
	if parts[0] != "" {
		y, ok := parseYear(parts[0])
		if !ok {
			return bad()
		}
		r.From = y
	}
	if parts[1] != "" {
		y, ok := parseYear(parts[1])
		if !ok {
			return bad()
		}
		r.To = y
	}
	if r.IsZero() {
		return bad()
	}
	if r.From != 0 && r.To != 0 && r.From > r.To {
		return bad()
	}
	return r, nil
}

// SearchResponse is what every search-shaped operation returns, and the
// payload stored in cache files.
type SearchResponse struct {
	Papers       []Paper `json:"papers"`
	TotalResults int     `json:"total_results"`
	Source       Source  `json:"source"`
	Query        string  `json:"query"`
	HasMore      bool    `json:"has_more"`
}

// FilterByYear drops papers outside the range, in place semantics on a
// copy. Used by adapters whose upstream cannot filter server-side.
func (r *SearchResponse) FilterByYear(yr YearRange) {
	if yr.IsZero() {
		return
	}
	kept := r.Papers[:0]
	for _, p := range r.Papers {
		if yr.Contains(p.Year()) {
			kept = append(kept, p)
		}
	}
	r.Papers = kept
}

// DownloadRequest asks a provider for the PDF of one paper.
type DownloadRequest struct {
	PaperID  string `json:"paper_id"`
	DOI      string `json:"doi,omitempty"`
	SavePath string `json:"save_path,omitempty"` // directory or full file path
}

type DownloadResult struct {
	PaperID   string `json:"paper_id"`
	FilePath  string `json:"file_path"`
	SizeBytes int64  `json:"size_bytes"`
	Source    Source `json:"source"`
}

// ReadRequest asks for the extracted text of one paper's PDF.
type ReadRequest struct {
	PaperID           string `json:"paper_id"`
	SavePath          string `json:"save_path,omitempty"`
	DownloadIfMissing bool   `json:"download_if_missing"`
}

func NewReadRequest(paperID string) *ReadRequest {
	return &ReadRequest{PaperID: paperID, DownloadIfMissing: true}
}

type ReadResult struct {
	PaperID   string `json:"paper_id"`
	FilePath  string `json:"file_path"`
	Text      string `json:"text"`
	Pages     int    `json:"pages"`
	Truncated bool   `json:"truncated,omitempty"`
	Source    Source `json:"source"`
}

// CitationRequest covers citations, references and related-paper lookups.
type CitationRequest struct {
	PaperID    string `json:"paper_id"`
	MaxResults int    `json:"max_results"`
}

func NewCitationRequest(paperID string) *CitationRequest {
	return &CitationRequest{PaperID: paperID, MaxResults: DefaultCitationResults}
}

func (r *CitationRequest) Normalize() {
	if r.MaxResults <= 0 {
		r.MaxResults = DefaultCitationResults
	}
	if r.MaxResults > MaxSearchResults {
		r.MaxResults = MaxSearchResults
	}
}
