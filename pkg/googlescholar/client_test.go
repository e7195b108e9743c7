package googlescholar

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

func htmlResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const resultsHTML = `<html><body>
<div class="gs_r">
  <div class="gs_ggs"><a href="https://arxiv.org/pdf/1706.03762.pdf">[PDF]</a></div>
  <h3 class="gs_rt"><a href="https://arxiv.org/abs/1706.03762">Attention is all you need</a></h3>
  <div class="gs_a">A Vaswani, N Shazeer, … - Advances in neural information processing systems, 2017 - proceedings.neurips.cc</div>
  <div class="gs_rs">The dominant sequence transduction models are based on RNNs.</div>
  <div class="gs_fl"><a href="#">Cited by 91234</a></div>
</div>
<div class="gs_r">
  <h3 class="gs_rt">[CITATION] Some citation-only record</h3>
  <div class="gs_a">B Author - Journal, 2001</div>
</div>
</body></html>`

func TestSearchScrapesResults(t *testing.T) {
	var gotURL string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotURL = r.URL.String()
		return htmlResponse(resultsHTML)
	})

	q := domain.NewSearchQuery("attention transformers")
	q.Year = "2015-2020"
	resp, err := p.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Contains(t, gotURL, "q=attention+transformers")
	assert.Contains(t, gotURL, "as_ylo=2015")
	assert.Contains(t, gotURL, "as_yhi=2020")
	require.Len(t, resp.Papers, 2)

	paper := resp.Papers[0]
	assert.Equal(t, "https://arxiv.org/abs/1706.03762", paper.PaperID)
	assert.Equal(t, "Attention is all you need", paper.Title)
	assert.Equal(t, "A Vaswani; N Shazeer", paper.Authors, "ellipsis entries are dropped")
	assert.Equal(t, "2017", paper.PublishedDate)
	assert.Equal(t, "https://arxiv.org/pdf/1706.03762.pdf", paper.PDFURL)
	assert.Equal(t, "Advances in neural information processing systems", paper.Extra["venue"])
	require.NotNil(t, paper.CitationCount)
	assert.Equal(t, 91234, *paper.CitationCount)

	citation := resp.Papers[1]
	assert.Equal(t, "Some citation-only record", citation.Title)
	assert.Equal(t, "Some citation-only record", citation.PaperID, "linkless entries fall back to the title as id")
}

func TestSearchCaptchaIsRateLimit(t *testing.T) {
	p := newTestProvider(func(*http.Request) *http.Response {
		return htmlResponse(`<html><body><form id="gs_captcha_f"></form></body></html>`)
	})
	_, err := p.Search(context.Background(), domain.NewSearchQuery("attention"))
	require.Error(t, err)
	assert.True(t, errors.IsRateLimit(err), "a captcha interstitial must read as a rate limit")
}

func TestSearchAuthorQuoted(t *testing.T) {
	var gotQuery string
	p := newTestProvider(func(r *http.Request) *http.Response {
		gotQuery = r.URL.Query().Get("q")
		return htmlResponse(`<html><body></body></html>`)
	})

	q := domain.NewSearchQuery("transformers")
	q.Author = "Vaswani"
	_, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, `transformers author:"Vaswani"`, gotQuery)
}

func TestParseByline(t *testing.T) {
	authors, venue, year := parseByline("A Vaswani, N Shazeer - Advances in NeurIPS, 2017 - proceedings.neurips.cc")
	assert.Equal(t, []string{"A Vaswani", "N Shazeer"}, authors)
	assert.Equal(t, "Advances in NeurIPS", venue)
	assert.Equal(t, "2017", year)

	authors, venue, year = parseByline("B Author - Journal, 2001")
	assert.Equal(t, []string{"B Author"}, authors)
	assert.Equal(t, "Journal", venue)
	assert.Equal(t, "2001", year)

	authors, venue, year = parseByline("")
	assert.Nil(t, authors)
	assert.Empty(t, venue)
	assert.Empty(t, year)
}
