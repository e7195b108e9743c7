package pmc

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
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
	return New(client, "")
}

func xmlResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/xml"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const esearchBody = `<?xml version="1.0"?>
<eSearchResult><Count>42</Count><IdList><Id>7372233</Id></IdList></eSearchResult>`

const efetchBody = `<?xml version="1.0"?>
<pmc-articleset>
  <article>
    <front>
      <journal-meta>
        <journal-title-group><journal-title>PLoS ONE</journal-title></journal-title-group>
      </journal-meta>
      <article-meta>
        <article-id pub-id-type="pmc">7372233</article-id>
        <article-id pub-id-type="pmid">32702312</article-id>
        <article-id pub-id-type="doi">10.1371/journal.pone.0235123</article-id>
        <title-group><article-title>Systematic review of transformer models</article-title></title-group>
        <contrib-group>
          <contrib contrib-type="author"><name><surname>Garcia</surname><given-names>Maria</given-names></name></contrib>
          <contrib contrib-type="author"><name><surname>Lee</surname><given-names>Kyung</given-names></name></contrib>
        </contrib-group>
        <pub-date pub-type="ppub"><year>2020</year></pub-date>
        <pub-date pub-type="epub"><day>15</day><month>7</month><year>2020</year></pub-date>
        <abstract><p>First paragraph.</p><p>Second paragraph.</p></abstract>
        <kwd-group><kwd>transformers</kwd><kwd>review</kwd></kwd-group>
      </article-meta>
    </front>
  </article>
</pmc-articleset>`

func TestSearchTwoStep(t *testing.T) {
	p := newTestProvider(func(r *http.Request) *http.Response {
		if strings.Contains(r.URL.Path, "esearch") {
			assert.Equal(t, "pmc", r.URL.Query().Get("db"))
			return xmlResponse(esearchBody)
		}
		assert.Equal(t, "7372233", r.URL.Query().Get("id"))
		return xmlResponse(efetchBody)
	})

	resp, err := p.Search(context.Background(), domain.NewSearchQuery("transformer models"))
	require.NoError(t, err)
	assert.Equal(t, 42, resp.TotalResults)
	require.Len(t, resp.Papers, 1)

	paper := resp.Papers[0]
	assert.Equal(t, "PMC7372233", paper.PaperID)
	assert.Equal(t, "Systematic review of transformer models", paper.Title)
	assert.Equal(t, "Maria Garcia; Kyung Lee", paper.Authors)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", paper.Abstract)
	assert.Equal(t, "10.1371/journal.pone.0235123", paper.DOI)
	assert.Equal(t, "2020-07-15", paper.PublishedDate, "epub date preferred over ppub")
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC7372233/pdf/", paper.PDFURL)
	assert.Equal(t, "transformers; review", paper.Keywords)
	assert.Equal(t, "PLoS ONE", paper.Extra["journal"])
}

func TestDownloadWritesFile(t *testing.T) {
	const pdfBytes = "%PDF-1.4 fake body"
	p := newTestProvider(func(r *http.Request) *http.Response {
		assert.Contains(t, r.URL.String(), "PMC7372233/pdf/")
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": []string{"application/pdf"}},
			Body:       io.NopCloser(strings.NewReader(pdfBytes)),
		}
	})

	dest := filepath.Join(t.TempDir(), "PMC7372233.pdf")
	res, err := p.Download(context.Background(), &domain.DownloadRequest{
		PaperID:  "PMC7372233",
		SavePath: dest,
	})
	require.NoError(t, err)
	assert.Equal(t, dest, res.FilePath)
	assert.Equal(t, int64(len(pdfBytes)), res.SizeBytes)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, string(data))

	// no temp leftovers
	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadFallsBackToEuropePMC(t *testing.T) {
	const pdfBytes = "%PDF-1.4 render"
	var sawFallback bool
	p := newTestProvider(func(r *http.Request) *http.Response {
		if strings.Contains(r.URL.Host, "europepmc.org") {
			sawFallback = true
			return &http.Response{
				StatusCode: 200,
				Header:     http.Header{},
				Body:       io.NopCloser(strings.NewReader(pdfBytes)),
			}
		}
		return &http.Response{
			StatusCode: 404,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("not here")),
		}
	})

	dest := filepath.Join(t.TempDir(), "PMC7372233.pdf")
	res, err := p.Download(context.Background(), &domain.DownloadRequest{
		PaperID:  "7372233",
		SavePath: dest,
	})
	require.NoError(t, err)
	assert.True(t, sawFallback)
	assert.Equal(t, int64(len(pdfBytes)), res.SizeBytes)
}

func TestCanonicalID(t *testing.T) {
	assert.Equal(t, "PMC7372233", CanonicalID("PMC7372233"))
	assert.Equal(t, "PMC7372233", CanonicalID("7372233"))
	assert.Equal(t, "PMC7372233", CanonicalID("pmc7372233"))
}

func TestValidateID(t *testing.T) {
	p := newTestProvider(nil)
	assert.NoError(t, p.ValidateID("PMC7372233"))
	assert.NoError(t, p.ValidateID("7372233"))
	assert.Error(t, p.ValidateID("2301.12345"))
	assert.Error(t, p.ValidateID("10.1371/x"))
}
