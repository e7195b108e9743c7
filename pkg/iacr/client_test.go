package iacr

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

func htmlResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const searchHTML = `<html><body><div class="results">
  <div class="mb-4">
    <a href="/2024/123">2024/123</a>
    <strong><a href="/2024/123">Lattice Signatures Revisited</a></strong>
    <span class="fst-italic">Alice Chen and Bob Novak</span>
    <p class="search-abstract">We revisit lattice-based signatures.</p>
  </div>
  <div class="mb-4">
    <a href="/about">not a paper</a>
  </div>
</div></body></html>`

const paperHTML = `<html><head>
  <meta name="citation_title" content="Lattice Signatures Revisited">
  <meta name="citation_author" content="Chen, Alice">
  <meta name="citation_author" content="Novak, Bob">
  <meta name="citation_online_date" content="2024/01/29">
  <meta name="citation_keywords" content="lattices; signatures">
</head><body>
  <p id="abstract">We revisit lattice-based signatures in the QROM.</p>
</body></html>`

func TestSearchScrapesResults(t *testing.T) {
	var gotURL string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotURL = r.URL.String()
		return htmlResponse(searchHTML)
	})

	resp, err := p.Search(context.Background(), domain.NewSearchQuery("lattice signatures"))
	require.NoError(t, err)

	assert.Contains(t, gotURL, "q=lattice+signatures")
	require.Len(t, resp.Papers, 1, "blocks without an eprint id are skipped")

	paper := resp.Papers[0]
	assert.Equal(t, "2024/123", paper.PaperID)
	assert.Equal(t, "Lattice Signatures Revisited", paper.Title)
	assert.Equal(t, "Alice Chen; Bob Novak", paper.Authors)
	assert.Equal(t, "We revisit lattice-based signatures.", paper.Abstract)
	assert.Equal(t, "2024", paper.PublishedDate)
	assert.Equal(t, "https://eprint.iacr.org/2024/123.pdf", paper.PDFURL)
}

func TestSearchLayoutChangeIsParseError(t *testing.T) {
	p := newTestProvider(func(*http.Request) *http.Response {
		return htmlResponse(`<html><body><div class="nothing"></div></body></html>`)
	})
	_, err := p.Search(context.Background(), domain.NewSearchQuery("lattice"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout changed")
}

func TestGetByIDReadsCitationMeta(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Equal(t, "/2024/123", r.URL.Path)
		return htmlResponse(paperHTML)
	})

	paper, err := p.GetByID(context.Background(), "2024/123")
	require.NoError(t, err)
	assert.Equal(t, "Lattice Signatures Revisited", paper.Title)
	assert.Equal(t, "Chen, Alice; Novak, Bob", paper.Authors)
	assert.Equal(t, "We revisit lattice-based signatures in the QROM.", paper.Abstract)
	assert.Equal(t, "2024-01-29", paper.PublishedDate)
	assert.Equal(t, "lattices; signatures", paper.Keywords)
	assert.Equal(t, "https://eprint.iacr.org/2024/123.pdf", paper.PDFURL)
}

func TestCanonicalID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024/123", "2024/123", true},
		{"https://eprint.iacr.org/2024/123", "2024/123", true},
		{"eprint.iacr.org/2024/123.pdf", "2024/123", true},
		{"2024/123.pdf", "2024/123", true},
		{"24/123", "", false},
		{"2301.12345", "", false},
	}
	for _, tc := range cases {
		got, err := canonicalID(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestSplitAuthors(t *testing.T) {
	assert.Equal(t, []string{"Alice Chen", "Bob Novak"}, splitAuthors("Alice Chen and Bob Novak"))
	assert.Equal(t, []string{"Alice Chen", "Bob Novak"}, splitAuthors("Alice Chen, Bob Novak"))
	assert.Nil(t, splitAuthors(""))
}
