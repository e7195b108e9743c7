package osf

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

func statusResponse(code int) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

const preprintJSON = `{
  "id":"abc12",
  "attributes":{
    "title":"The Replication Crisis in Psychology",
    "description":"A survey of reproducibility failures.",
    "date_published":"2020-06-15T09:30:00.000000Z",
    "doi":"10.31234/osf.io/abc12",
    "tags":["reproducibility","meta-science"],
    "is_published":true
  },
  "links":{
    "html":"https://osf.io/abc12/",
    "preprint_doi":"https://doi.org/10.31234/osf.io/abc12"
  }
}`

const contributorsJSON = `{
  "data":[
    {"embeds":{"users":{"data":{"attributes":{"full_name":"Ada Lovelace"}}}}},
    {"embeds":{"users":{"data":{"attributes":{"full_name":"   "}}}}},
    {"embeds":{"users":{"data":{"attributes":{"full_name":"Charles Babbage"}}}}}
  ]
}`

func TestSearchMapsPreprint(t *testing.T) {
	var gotURL string
	calls := 0
	p := newTestProvider(func(r *http.Request) *http.Response {
		calls++
		gotURL = r.URL.String()
		// Second item lacks a title and must be dropped. Totals live under
		// links.meta on this endpoint.
		return jsonResponse(`{
		  "data":[` + preprintJSON + `,{"id":"zzz99","attributes":{"title":""}}],
		  "links":{"meta":{"total":57}}
		}`)
	})

	q := domain.NewSearchQuery("replication crisis")
	q.FetchDetails = false
	resp, err := p.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, gotURL, "page%5Bsize%5D=10")
	assert.Contains(t, gotURL, "q=replication+crisis")
	assert.Equal(t, 1, calls, "FetchDetails=false must not fan out to contributors")

	assert.Equal(t, 57, resp.TotalResults)
	assert.True(t, resp.HasMore)
	require.Len(t, resp.Papers, 1)

	paper := resp.Papers[0]
	assert.Equal(t, "abc12", paper.PaperID)
	assert.Equal(t, "The Replication Crisis in Psychology", paper.Title)
	assert.Equal(t, "", paper.Authors)
	assert.Equal(t, "A survey of reproducibility failures.", paper.Abstract)
	assert.Equal(t, "10.31234/osf.io/abc12", paper.DOI)
	assert.Equal(t, "2020-06-15", paper.PublishedDate)
	assert.Equal(t, "reproducibility; meta-science", paper.Keywords)
	assert.Equal(t, "https://osf.io/abc12/", paper.URL)
}

func TestSearchFetchesContributors(t *testing.T) {
	var contribURL string
	p := newTestProvider(func(r *http.Request) *http.Response {
		if strings.Contains(r.URL.Path, "/contributors/") {
			contribURL = r.URL.String()
			return jsonResponse(contributorsJSON)
		}
		return jsonResponse(`{"data":[` + preprintJSON + `],"links":{"meta":{"total":1}}}`)
	})

	resp, err := p.Search(context.Background(), domain.NewSearchQuery("replication"))
	require.NoError(t, err)
	require.Len(t, resp.Papers, 1)

	assert.Contains(t, contribURL, "/preprints/abc12/contributors/")
	assert.Contains(t, contribURL, "embed=users")
	assert.Contains(t, contribURL, "page%5Bsize%5D=100")
	assert.Equal(t, "Ada Lovelace; Charles Babbage", resp.Papers[0].Authors)
}

func TestSearchContributorFailureKeepsRecord(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		if strings.Contains(r.URL.Path, "/contributors/") {
			return statusResponse(404)
		}
		return jsonResponse(`{"data":[` + preprintJSON + `],"links":{"meta":{"total":1}}}`)
	})

	resp, err := p.Search(context.Background(), domain.NewSearchQuery("replication"))
	require.NoError(t, err)
	require.Len(t, resp.Papers, 1)
	assert.Equal(t, "", resp.Papers[0].Authors)
}

func TestSearchAppliesYearFilter(t *testing.T) {
	old := strings.Replace(preprintJSON, `"abc12"`, `"old01"`, 1)
	old = strings.Replace(old, "2020-06-15T09:30:00.000000Z", "2018-02-01T00:00:00.000000Z", 1)
	p := newTestProvider(func(r *http.Request) *http.Response {
		return jsonResponse(`{"data":[` + preprintJSON + `,` + old + `],"links":{"meta":{"total":2}}}`)
	})

	q := domain.NewSearchQuery("replication")
	q.FetchDetails = false
	q.Year = "2020-"
	resp, err := p.Search(context.Background(), q)
	require.NoError(t, err)

	// The API has no year parameter, so the range is applied client-side.
	require.Len(t, resp.Papers, 1)
	assert.Equal(t, "abc12", resp.Papers[0].PaperID)
}

func TestGetByIDFollowsContributors(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		if strings.Contains(r.URL.Path, "/contributors/") {
			return jsonResponse(contributorsJSON)
		}
		assert.Equal(t, "/v2/preprints/abc12/", r.URL.Path)
		return jsonResponse(`{"data":` + preprintJSON + `}`)
	})

	paper, err := p.GetByID(context.Background(), "abc12")
	require.NoError(t, err)
	assert.Equal(t, "abc12", paper.PaperID)
	assert.Equal(t, "Ada Lovelace; Charles Babbage", paper.Authors)
}

func TestGetByDOIFillsFallbacks(t *testing.T) {
	var gotURL string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotURL = r.URL.String()
		// No doi attribute, no html link, no date_published: the mapper
		// falls back to preprint_doi, a synthesized page URL, and
		// date_created.
		return jsonResponse(`{"data":[{
		  "id":"5abcd",
		  "attributes":{
		    "title":"Preregistration in Practice",
		    "date_created":"2021-11-02T14:00:00.000000Z"
		  },
		  "links":{"preprint_doi":"https://doi.org/10.31234/osf.io/5abcd"}
		}]}`)
	})

	paper, err := p.GetByDOI(context.Background(), "https://doi.org/10.31234/osf.io/5abcd")
	require.NoError(t, err)

	assert.Contains(t, gotURL, "filter%5Bdoi%5D=10.31234%2Fosf.io%2F5abcd")
	assert.Contains(t, gotURL, "page%5Bsize%5D=1")
	assert.Equal(t, "10.31234/osf.io/5abcd", paper.DOI)
	assert.Equal(t, "https://osf.io/5abcd/", paper.URL)
	assert.Equal(t, "2021-11-02", paper.PublishedDate)
}

func TestGetByDOINotFound(t *testing.T) {
	p := newTestProvider(func(*http.Request) *http.Response {
		return jsonResponse(`{"data":[]}`)
	})
	_, err := p.GetByDOI(context.Background(), "10.31234/osf.io/nope9")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
