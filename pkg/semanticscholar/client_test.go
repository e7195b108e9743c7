package semanticscholar

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-master/internal/breaker"
	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/httpx"
	"research-master/internal/provider"
	"research-master/internal/retry"
)

type roundTripFunc func(r *http.Request) *http.Response

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r), nil }

func newTestProvider(fn roundTripFunc) *Provider {
	pol := retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxTotal: time.Second, Multiplier: 2}
	client := provider.NewClient(providerID,
		httpx.New(httpx.WithTransport(fn)),
		pol,
		breaker.NewManager(breaker.DefaultConfig(), slog.Default()),
		slog.Default())
	return New(client)
}

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const paperJSON = `{
  "paperId":"649def34f8be52c8b66281af98ae884c09aef38b",
  "title":"Attention Is All You Need",
  "abstract":"The dominant sequence transduction models...",
  "year":2017,
  "citationCount":91234,
  "url":"https://www.semanticscholar.org/paper/649def34",
  "venue":"NeurIPS",
  "publicationDate":"2017-06-12",
  "authors":[{"authorId":"1","name":"Ashish Vaswani"},{"authorId":"2","name":"Noam Shazeer"}],
  "externalIds":{"ArXiv":"1706.03762","DOI":"10.48550/arXiv.1706.03762"},
  "openAccessPdf":{"url":"https://arxiv.org/pdf/1706.03762.pdf"}
}`

func TestSearchMapsPapers(t *testing.T) {
	var gotURL string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotURL = r.URL.String()
		return jsonResponse(`{"total":812,"data":[` + paperJSON + `]}`)
	})

	q := domain.NewSearchQuery("attention")
	q.Year = "2015-2020"
	resp, err := p.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, gotURL, "/graph/v1/paper/search")
	assert.Contains(t, gotURL, "query=attention")
	assert.Contains(t, gotURL, "year=2015-2020")
	assert.Equal(t, 812, resp.TotalResults)
	assert.True(t, resp.HasMore)
	require.Len(t, resp.Papers, 1)

	paper := resp.Papers[0]
	assert.Equal(t, "649def34f8be52c8b66281af98ae884c09aef38b", paper.PaperID)
	assert.Equal(t, "Ashish Vaswani; Noam Shazeer", paper.Authors)
	assert.Equal(t, "10.48550/arxiv.1706.03762", paper.DOI)
	assert.Equal(t, "2017-06-12", paper.PublishedDate)
	assert.Equal(t, "https://arxiv.org/pdf/1706.03762.pdf", paper.PDFURL)
	require.NotNil(t, paper.CitationCount)
	assert.Equal(t, 91234, *paper.CitationCount)
	assert.Equal(t, "NeurIPS", paper.Extra["venue"])
	assert.Equal(t, "1706.03762", paper.Extra["arxiv_id"])
}

func TestSearchByAuthorTwoStep(t *testing.T) {
	var urls []string
	p := newTestProvider(func(r *http.Request) *http.Response {
		urls = append(urls, r.URL.String())
		if strings.Contains(r.URL.Path, "/author/search") {
			return jsonResponse(`{"data":[{"authorId":"1741101","name":"Oriol Vinyals"}]}`)
		}
		return jsonResponse(`{"data":[` + paperJSON + `]}`)
	})

	q := domain.NewSearchQuery("")
	q.Author = "Oriol Vinyals"
	resp, err := p.SearchByAuthor(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Contains(t, urls[1], "/author/1741101/papers")
	require.Len(t, resp.Papers, 1)
}

func TestCitationsUnwrapsEdges(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Contains(t, r.URL.Path, "/citations")
		return jsonResponse(`{"data":[{"citingPaper":` + paperJSON + `},{"citingPaper":{"paperId":""}}]}`)
	})
	resp, err := p.Citations(context.Background(), domain.NewCitationRequest("649def34f8be52c8b66281af98ae884c09aef38b"))
	require.NoError(t, err)
	require.Len(t, resp.Papers, 1, "empty edge skipped")
	assert.Equal(t, "Attention Is All You Need", resp.Papers[0].Title)
}

func TestReferencesUnwrapsCitedPaper(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Contains(t, r.URL.Path, "/references")
		return jsonResponse(`{"data":[{"citedPaper":` + paperJSON + `}]}`)
	})
	resp, err := p.References(context.Background(), domain.NewCitationRequest("ARXIV:1706.03762"))
	require.NoError(t, err)
	require.Len(t, resp.Papers, 1)
}

func TestRelatedUsesRecommendations(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Contains(t, r.URL.Path, "/recommendations/v1/papers/forpaper/")
		return jsonResponse(`{"recommendedPapers":[` + paperJSON + `]}`)
	})
	resp, err := p.Related(context.Background(), domain.NewCitationRequest("649def34f8be52c8b66281af98ae884c09aef38b"))
	require.NoError(t, err)
	require.Len(t, resp.Papers, 1)
}

func TestGetByDOI(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Contains(t, r.URL.Path, "/paper/DOI:10.48550/arxiv.1706.03762")
		return jsonResponse(paperJSON)
	})
	paper, err := p.GetByDOI(context.Background(), "https://doi.org/10.48550/arXiv.1706.03762")
	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need", paper.Title)
}

func TestNormalizeID(t *testing.T) {
	p := newTestProvider(nil)
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"649def34f8be52c8b66281af98ae884c09aef38b", "649def34f8be52c8b66281af98ae884c09aef38b", false},
		{"DOI:10.1038/nature12373", "DOI:10.1038/nature12373", false},
		{"doi:10.1038/nature12373", "DOI:10.1038/nature12373", false},
		{"arxiv:1706.03762", "ARXIV:1706.03762", false},
		{"10.1038/nature12373", "DOI:10.1038/nature12373", false},
		{"1706.03762", "ARXIV:1706.03762", false},
		{"23831765", "PMID:23831765", false},
		{"corpusid:215416146", "CorpusId:215416146", false},
		{"not a real id!!", "", true},
	}
	for _, tt := range tests {
		got, err := p.normalizeID(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestResolvePDFMissing(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		return jsonResponse(`{"paperId":"abc","openAccessPdf":null}`)
	})
	u, err := p.resolvePDF(context.Background(), &domain.DownloadRequest{PaperID: "649def34f8be52c8b66281af98ae884c09aef38b"})
	require.NoError(t, err)
	assert.Empty(t, u, "missing open-access pdf resolves to empty url")
}

func TestGetByIDNotFoundOnEmptyBody(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		return jsonResponse(`{}`)
	})
	_, err := p.GetByID(context.Background(), "649def34f8be52c8b66281af98ae884c09aef38b")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
