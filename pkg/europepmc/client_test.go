package europepmc

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

const recordJSON = `{
  "id":"34567890",
  "source":"MED",
  "pmid":"34567890",
  "pmcid":"PMC8675309",
  "doi":"10.1093/nar/gkab1112",
  "title":"Europe PMC in 2021",
  "authorString":"Ferguson C, Araujo D, Faulk L.",
  "abstractText":"Europe PMC is an open science platform.",
  "journalTitle":"Nucleic Acids Res",
  "pubYear":"2021",
  "firstPublicationDate":"2021-11-17",
  "citedByCount":58,
  "keywordList":{"keyword":["literature","text mining"]},
  "fullTextUrlList":{"fullTextUrl":[
    {"availability":"Open access","documentStyle":"html","url":"https://europepmc.org/article/MED/34567890"},
    {"availability":"Open access","documentStyle":"pdf","url":"https://europepmc.org/articles/PMC8675309?pdf=render"}
  ]}
}`

func TestSearchMapsRecord(t *testing.T) {
	var gotURL string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotURL = r.URL.String()
		return jsonResponse(`{"hitCount":73,"resultList":{"result":[` + recordJSON + `]}}`)
	})

	q := domain.NewSearchQuery("open science")
	q.Author = "Ferguson"
	q.Year = "2020-2022"
	resp, err := p.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, gotURL, "format=json")
	assert.Contains(t, gotURL, "resultType=core")
	assert.Contains(t, gotURL, "pageSize=10")
	assert.Contains(t, gotURL, "AUTH%3A%22Ferguson%22")
	assert.Contains(t, gotURL, "PUB_YEAR%3A%5B2020+TO+2022%5D")

	assert.Equal(t, 73, resp.TotalResults)
	require.Len(t, resp.Papers, 1)

	paper := resp.Papers[0]
	assert.Equal(t, "MED/34567890", paper.PaperID)
	assert.Equal(t, "Europe PMC in 2021", paper.Title)
	assert.Equal(t, "Ferguson C; Araujo D; Faulk L", paper.Authors)
	assert.Equal(t, "10.1093/nar/gkab1112", paper.DOI)
	assert.Equal(t, "2021-11-17", paper.PublishedDate)
	assert.Equal(t, "https://europepmc.org/articles/PMC8675309?pdf=render", paper.PDFURL)
	require.NotNil(t, paper.CitationCount)
	assert.Equal(t, 58, *paper.CitationCount)
	assert.Equal(t, "Nucleic Acids Res", paper.Extra["journal"])
	assert.Equal(t, "PMC8675309", paper.Extra["pmcid"])
}

func TestGetByIDAcceptsBarePMID(t *testing.T) {
	var gotURL string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotURL = r.URL.String()
		return jsonResponse(`{"hitCount":1,"resultList":{"result":[` + recordJSON + `]}}`)
	})

	paper, err := p.GetByID(context.Background(), "34567890")
	require.NoError(t, err)
	assert.Contains(t, gotURL, "EXT_ID%3A34567890+AND+SRC%3AMED")
	assert.Equal(t, "MED/34567890", paper.PaperID)
}

func TestCitationsUseRESTPath(t *testing.T) {
	var gotPath string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotPath = r.URL.Path
		return jsonResponse(`{"hitCount":1,"citationList":{"citation":[` + recordJSON + `]}}`)
	})

	resp, err := p.Citations(context.Background(), domain.NewCitationRequest("MED/34567890"))
	require.NoError(t, err)
	assert.Contains(t, gotPath, "/MED/34567890/citations")
	require.Len(t, resp.Papers, 1)
}

func TestReferencesReadReferenceList(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Contains(t, r.URL.Path, "/references")
		return jsonResponse(`{"hitCount":1,"referenceList":{"reference":[` + recordJSON + `]}}`)
	})

	resp, err := p.References(context.Background(), domain.NewCitationRequest("34567890"))
	require.NoError(t, err)
	require.Len(t, resp.Papers, 1)
}

func TestGetByDOINotFound(t *testing.T) {
	p := newTestProvider(func(*http.Request) *http.Response {
		return jsonResponse(`{"hitCount":0,"resultList":{"result":[]}}`)
	})
	_, err := p.GetByDOI(context.Background(), "10.1093/nar/missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSplitSourceID(t *testing.T) {
	cases := []struct {
		in       string
		src, ext string
		ok       bool
	}{
		{"MED/34567890", "MED", "34567890", true},
		{"med/34567890", "MED", "34567890", true},
		{"PMC8675309", "PMC", "PMC8675309", true},
		{"34567890", "MED", "34567890", true},
		{"PPR/PPR123456", "PPR", "PPR123456", true},
		{"MED/34/56", "", "", false},
		{"not-an-id", "", "", false},
	}
	for _, tc := range cases {
		src, ext, err := splitSourceID(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.src, src, tc.in)
		assert.Equal(t, tc.ext, ext, tc.in)
	}
}
