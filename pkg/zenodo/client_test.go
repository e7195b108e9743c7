package zenodo

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
  "id":7738530,
  "doi":"10.5281/zenodo.7738530",
  "links":{"self_html":"https://zenodo.org/records/7738530"},
  "files":[
    {"key":"dataset.csv","links":{"self":"https://zenodo.org/api/records/7738530/files/dataset.csv"}},
    {"key":"paper.PDF","links":{"self":"https://zenodo.org/api/records/7738530/files/paper.PDF"}}
  ],
  "metadata":{
    "title":"Reproducibility of Climate Models",
    "description":"<p>We evaluate   <b>reproducibility</b> across models.</p>",
    "publication_date":"2023-03-15",
    "creators":[{"name":"Olsson, Anna"},{"name":"Reyes, Pablo"}],
    "keywords":["climate","reproducibility"],
    "resource_type":{"title":"Journal article","type":"publication"}
  }
}`

func TestSearchMapsRecord(t *testing.T) {
	var gotURL string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotURL = r.URL.String()
		return jsonResponse(`{"hits":{"total":31,"hits":[` + recordJSON + `]}}`)
	})

	q := domain.NewSearchQuery("climate models")
	q.Author = "Olsson"
	q.Year = "2022-"
	resp, err := p.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, gotURL, "size=10")
	assert.Contains(t, gotURL, "creators.name%3A%22Olsson%22")
	assert.Contains(t, gotURL, "publication_date%3A%5B2022-01-01+TO+%2A%5D")

	assert.Equal(t, 31, resp.TotalResults)
	require.Len(t, resp.Papers, 1)

	paper := resp.Papers[0]
	assert.Equal(t, "7738530", paper.PaperID)
	assert.Equal(t, "Reproducibility of Climate Models", paper.Title)
	assert.Equal(t, "Olsson, Anna; Reyes, Pablo", paper.Authors)
	assert.Equal(t, "10.5281/zenodo.7738530", paper.DOI)
	assert.Equal(t, "We evaluate reproducibility across models.", paper.Abstract)
	assert.Equal(t, "2023-03-15", paper.PublishedDate)
	assert.Equal(t, "https://zenodo.org/api/records/7738530/files/paper.PDF", paper.PDFURL)
	assert.Equal(t, "climate; reproducibility", paper.Keywords)
	assert.Equal(t, "Journal article", paper.Extra["resource_type"])
}

func TestGetByIDFetchesRecord(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Equal(t, "/api/records/7738530", r.URL.Path)
		return jsonResponse(recordJSON)
	})
	paper, err := p.GetByID(context.Background(), "7738530")
	require.NoError(t, err)
	assert.Equal(t, "7738530", paper.PaperID)
}

func TestGetByDOIQuotesDOI(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Equal(t, `doi:"10.5281/zenodo.7738530"`, r.URL.Query().Get("q"))
		return jsonResponse(`{"hits":{"total":1,"hits":[` + recordJSON + `]}}`)
	})
	paper, err := p.GetByDOI(context.Background(), "10.5281/zenodo.7738530")
	require.NoError(t, err)
	assert.Equal(t, "Reproducibility of Climate Models", paper.Title)
}

func TestGetByDOINotFound(t *testing.T) {
	p := newTestProvider(func(*http.Request) *http.Response {
		return jsonResponse(`{"hits":{"total":0,"hits":[]}}`)
	})
	_, err := p.GetByDOI(context.Background(), "10.5281/zenodo.404")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "plain words here", stripHTML("<p>plain <em>words</em>\nhere</p>"))
	assert.Equal(t, "", stripHTML(""))
}
