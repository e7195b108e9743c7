package openalex

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

const workJSON = `{
  "id":"https://openalex.org/W2741809807",
  "doi":"https://doi.org/10.7717/peerj.4375",
  "title":"The state of OA",
  "publication_year":2018,
  "publication_date":"2018-02-13",
  "type":"article",
  "cited_by_count":1023,
  "authorships":[
    {"author":{"display_name":"Heather Piwowar"}},
    {"author":{"display_name":"Jason Priem"}}
  ],
  "primary_location":{
    "landing_page_url":"https://peerj.com/articles/4375",
    "pdf_url":"https://peerj.com/articles/4375.pdf",
    "source":{"display_name":"PeerJ"}
  },
  "open_access":{"is_oa":true,"oa_url":"https://peerj.com/articles/4375.pdf"},
  "ids":{"openalex":"https://openalex.org/W2741809807","pmid":"https://pubmed.ncbi.nlm.nih.gov/29456894"},
  "referenced_works":["https://openalex.org/W100","https://openalex.org/W200"],
  "abstract_inverted_index":{"Despite":[0],"growth":[1],"of":[2],"OA":[3]}
}`

func TestSearchMapsWork(t *testing.T) {
	var gotURL string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotURL = r.URL.String()
		return jsonResponse(`{"meta":{"count":5431},"results":[` + workJSON + `]}`)
	})

	q := domain.NewSearchQuery("open access")
	q.Year = "2015-2020"
	q.SortBy = domain.SortCitations
	resp, err := p.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, gotURL, "search=open+access")
	assert.Contains(t, gotURL, "from_publication_date%3A2015-01-01")
	assert.Contains(t, gotURL, "to_publication_date%3A2020-12-31")
	assert.Contains(t, gotURL, "sort=cited_by_count%3Adesc")
	assert.Equal(t, 5431, resp.TotalResults)
	require.Len(t, resp.Papers, 1)

	paper := resp.Papers[0]
	assert.Equal(t, "W2741809807", paper.PaperID)
	assert.Equal(t, "The state of OA", paper.Title)
	assert.Equal(t, "Heather Piwowar; Jason Priem", paper.Authors)
	assert.Equal(t, "10.7717/peerj.4375", paper.DOI)
	assert.Equal(t, "Despite growth of OA", paper.Abstract)
	assert.Equal(t, "2018-02-13", paper.PublishedDate)
	assert.Equal(t, "https://peerj.com/articles/4375.pdf", paper.PDFURL)
	require.NotNil(t, paper.CitationCount)
	assert.Equal(t, 1023, *paper.CitationCount)
	assert.Equal(t, "PeerJ", paper.Extra["venue"])
	assert.Equal(t, "29456894", paper.Extra["pmid"])
}

func TestGetByDOIPath(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Contains(t, r.URL.Path, "/works/https://doi.org/10.7717/peerj.4375")
		return jsonResponse(workJSON)
	})
	paper, err := p.GetByDOI(context.Background(), "DOI:10.7717/peerj.4375")
	require.NoError(t, err)
	assert.Equal(t, "W2741809807", paper.PaperID)
}

func TestCitationsUsesCitesFilter(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Contains(t, r.URL.RawQuery, "cites%3AW2741809807")
		return jsonResponse(`{"meta":{"count":1},"results":[` + workJSON + `]}`)
	})
	resp, err := p.Citations(context.Background(), domain.NewCitationRequest("W2741809807"))
	require.NoError(t, err)
	require.Len(t, resp.Papers, 1)
}

func TestReferencesBatchesIDs(t *testing.T) {
	var urls []string
	p := newTestProvider(func(r *http.Request) *http.Response {
		urls = append(urls, r.URL.String())
		if strings.Contains(r.URL.RawQuery, "openalex%3A") {
			return jsonResponse(`{"meta":{"count":2},"results":[` + workJSON + `]}`)
		}
		return jsonResponse(workJSON)
	})
	resp, err := p.References(context.Background(), domain.NewCitationRequest("W2741809807"))
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Contains(t, urls[1], "W100%7CW200")
	assert.Equal(t, 2, resp.TotalResults)
}

func TestValidateID(t *testing.T) {
	p := newTestProvider(nil)
	assert.NoError(t, p.ValidateID("W2741809807"))
	assert.NoError(t, p.ValidateID("10.7717/peerj.4375"))
	assert.Error(t, p.ValidateID("2301.12345"))
	assert.Error(t, p.ValidateID("PMC123"))
}

func TestReconstructAbstract(t *testing.T) {
	inverted := map[string][]int{
		"models": {2},
		"Large":  {0},
		"are":    {3},
		"useful": {4},
		"neural": {1},
	}
	assert.Equal(t, "Large neural models are useful", reconstructAbstract(inverted))
	assert.Equal(t, "", reconstructAbstract(nil))
}
