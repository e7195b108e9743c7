// Package jstor scrapes JSTOR basic search. Only the stable-URL id and
// title are dependable; everything else on the page is rendered client
// side and arrives best-effort.
package jstor

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
)

const (
	providerID = "jstor"
	siteURL    = "https://www.jstor.org"
)

var stableID = regexp.MustCompile(`/stable/(?:pdf/)?([^/?#]+?)(?:\.pdf)?(?:[?#]|$)`)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "JSTOR", provider.CapSearch),
		client: client,
	}
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + " " + q.Author)
	}
	params := url.Values{}
	params.Set("Query", terms)

	body, err := p.client.GetBytes(ctx, "search", siteURL+"/action/doBasicSearch?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Parse(providerID, "parsing search page", err)
	}

	var papers []domain.Paper
	seen := make(map[string]bool)
	doc.Find(`a[href*="/stable/"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(papers) == q.MaxResults {
			return false
		}
		href, _ := a.Attr("href")
		m := stableID.FindStringSubmatch(href)
		if m == nil {
			return true
		}
		id := m[1]
		title := strings.Join(strings.Fields(a.Text()), " ")
		if seen[id] || len(title) < 4 {
			return true
		}
		seen[id] = true

		papers = append(papers, domain.NewPaper(domain.SourceJSTOR, id, title,
			siteURL+"/stable/"+id).Build())
		return true
	})

	resp := &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(papers),
		Source:       domain.SourceJSTOR,
		Query:        q.Query,
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}
