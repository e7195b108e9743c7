package core

import (
	"context"
	"encoding/json"
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

func newTestProvider(apiKey string, fn roundTripFunc) *Provider {
	pol := retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxTotal: time.Second, Multiplier: 2}
	client := provider.NewClient(providerID,
		httpx.New(httpx.WithTransport(fn)),
		pol,
		breaker.NewManager(breaker.DefaultConfig(), slog.Default()),
		slog.Default())
	return New(client, apiKey)
}

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const workJSON = `{
  "id":140552,
  "doi":"10.1371/journal.pone.0093949",
  "title":"Open Access Repositories Worldwide",
  "abstract":"We analyse repository coverage.",
  "authors":[{"name":"Petr Knoth"},{"name":"Zdenek Zdrahal"}],
  "yearPublished":2014,
  "publishedDate":"2014-04-24T00:00:00",
  "downloadUrl":"https://core.ac.uk/download/140552.pdf",
  "publisher":"PLOS",
  "documentType":"research"
}`

func TestSearchRequiresKey(t *testing.T) {
	p := newTestProvider("", nil)
	_, err := p.Search(context.Background(), domain.NewSearchQuery("repositories"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequest(err))
	assert.Contains(t, err.Error(), "CORE_API_KEY")
}

func TestSearchPostsQuery(t *testing.T) {
	var gotAuth string
	var gotBody searchRequest
	p := newTestProvider("sekret", func(r *http.Request) *http.Response {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		return jsonResponse(`{"totalHits":9000,"results":[` + workJSON + `]}`)
	})

	q := domain.NewSearchQuery("open access")
	q.Year = "2010-2015"
	resp, err := p.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "Bearer sekret", gotAuth)
	assert.Contains(t, gotBody.Q, "open access")
	assert.Contains(t, gotBody.Q, "yearPublished:[2010 TO 2015]")
	assert.Equal(t, 10, gotBody.Limit)

	assert.Equal(t, 9000, resp.TotalResults)
	require.Len(t, resp.Papers, 1)

	paper := resp.Papers[0]
	assert.Equal(t, "140552", paper.PaperID)
	assert.Equal(t, "Open Access Repositories Worldwide", paper.Title)
	assert.Equal(t, "Petr Knoth; Zdenek Zdrahal", paper.Authors)
	assert.Equal(t, "10.1371/journal.pone.0093949", paper.DOI)
	assert.Equal(t, "2014-04-24", paper.PublishedDate)
	assert.Equal(t, "https://core.ac.uk/download/140552.pdf", paper.PDFURL)
	assert.Equal(t, "PLOS", paper.Extra["publisher"])
}

func TestGetByDOIQuotesDOI(t *testing.T) {
	var gotBody searchRequest
	p := newTestProvider("sekret", func(r *http.Request) *http.Response {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		return jsonResponse(`{"totalHits":1,"results":[` + workJSON + `]}`)
	})

	paper, err := p.GetByDOI(context.Background(), "10.1371/journal.pone.0093949")
	require.NoError(t, err)
	assert.Equal(t, `doi:"10.1371/journal.pone.0093949"`, gotBody.Q)
	assert.Equal(t, 1, gotBody.Limit)
	assert.Equal(t, "140552", paper.PaperID)
}

func TestGetByDOINotFound(t *testing.T) {
	p := newTestProvider("sekret", func(*http.Request) *http.Response {
		return jsonResponse(`{"totalHits":0,"results":[]}`)
	})
	_, err := p.GetByDOI(context.Background(), "10.1371/missing.doi")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestYearClause(t *testing.T) {
	assert.Equal(t, "yearPublished:[2010 TO 2015]", yearClause(domain.YearRange{From: 2010, To: 2015}))
	assert.Equal(t, "yearPublished:[* TO 2015]", yearClause(domain.YearRange{To: 2015}))
	assert.Equal(t, "yearPublished:[2010 TO *]", yearClause(domain.YearRange{From: 2010}))
}
