package arxiv

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

func atomResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/atom+xml"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <opensearch:totalResults>2</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is All You Need</title>
    <summary>The dominant sequence transduction models...</summary>
    <published>2017-06-12T17:57:34Z</published>
    <updated>2023-08-02T00:41:18Z</updated>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf" title="pdf"/>
    <category term="cs.CL"/>
    <category term="cs.LG"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2301.00001v1</id>
    <title>Another Paper</title>
    <summary>Abstract text.</summary>
    <published>2023-01-01T00:00:00Z</published>
    <updated>2023-01-01T00:00:00Z</updated>
    <author><name>Jane Doe</name></author>
    <category term="cs.AI"/>
  </entry>
</feed>`

func TestSearchParsesFeed(t *testing.T) {
	var gotURL string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotURL = r.URL.String()
		return atomResponse(sampleFeed)
	})

	q := domain.NewSearchQuery("attention transformers")
	q.MaxResults = 5
	resp, err := p.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, gotURL, "search_query=all%3Aattention+transformers")
	assert.Contains(t, gotURL, "max_results=5")
	assert.Equal(t, 2, resp.TotalResults)
	require.Len(t, resp.Papers, 2)

	first := resp.Papers[0]
	assert.Equal(t, "1706.03762", first.PaperID)
	assert.Equal(t, "Attention Is All You Need", first.Title)
	assert.Equal(t, "Ashish Vaswani; Noam Shazeer", first.Authors)
	assert.Equal(t, "2017-06-12", first.PublishedDate)
	assert.Equal(t, "2023-08-02", first.UpdatedDate)
	assert.Equal(t, "http://arxiv.org/pdf/1706.03762v7", first.PDFURL)
	assert.Equal(t, "cs.CL; cs.LG", first.Categories)
	assert.Equal(t, domain.SourceArxiv, first.Source)

	// second entry has no pdf link, so the canonical URL is synthesized
	assert.Equal(t, "https://arxiv.org/pdf/2301.00001.pdf", resp.Papers[1].PDFURL)
}

func TestSearchQueryComposition(t *testing.T) {
	var gotQuery string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotQuery = r.URL.Query().Get("search_query")
		return atomResponse(sampleFeed)
	})

	q := domain.NewSearchQuery("quantum")
	q.Author = "John Preskill"
	q.Category = "quant-ph"
	q.Year = "2018-2020"
	_, err := p.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "all:quantum")
	assert.Contains(t, gotQuery, `au:"John Preskill"`)
	assert.Contains(t, gotQuery, "cat:quant-ph")
	assert.Contains(t, gotQuery, "submittedDate:[20180101 TO 20201231]")
	assert.Contains(t, gotQuery, " AND ")
}

func TestSearchByAuthorRequiresName(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		return atomResponse(sampleFeed)
	})
	_, err := p.SearchByAuthor(context.Background(), domain.NewSearchQuery("x"))
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))
}

func TestGetByIDNotFound(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		return atomResponse(`<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"></feed>`)
	})
	_, err := p.GetByID(context.Background(), "2301.99999")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2301.12345", "2301.12345"},
		{"2301.12345v2", "2301.12345"},
		{"arXiv:2301.12345", "2301.12345"},
		{"arxiv:2301.12345v10", "2301.12345"},
		{"https://arxiv.org/abs/1706.03762v7", "1706.03762"},
		{"hep-th/9901001", "hep-th/9901001"},
		{"math.GT/0605123v1", "math.GT/0605123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeID(tt.in), "input %q", tt.in)
	}
}

func TestValidateID(t *testing.T) {
	p := newTestProvider(nil)
	assert.NoError(t, p.ValidateID("2301.12345"))
	assert.NoError(t, p.ValidateID("arXiv:1706.03762v7"))
	assert.NoError(t, p.ValidateID("hep-th/9901001"))
	assert.Error(t, p.ValidateID("10.1234/not-arxiv"))
	assert.Error(t, p.ValidateID("PMC1234567"))
	assert.Error(t, p.ValidateID("2301.12345; rm -rf /"))
}
