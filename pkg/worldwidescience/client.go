// Package worldwidescience scrapes the WorldWideScience.org federated
// portal. The portal fans out to national science databases and renders
// a plain results list, which is all this adapter reads.
package worldwidescience

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
)

const (
	providerID = "worldwidescience"
	siteURL    = "https://worldwidescience.org"
)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "WorldWideScience", provider.CapSearch),
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
	params.Set("q", terms)

	body, err := p.client.GetBytes(ctx, "search", siteURL+"/wws/desktop/en/results.html?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Parse(providerID, "parsing search page", err)
	}

	var papers []domain.Paper
	seen := make(map[string]bool)
	doc.Find("div.result, li.result, div.search-result").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if len(papers) == q.MaxResults {
			return false
		}
		link := sel.Find("a[href]").First()
		title := strings.Join(strings.Fields(link.Text()), " ")
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}
		if strings.HasPrefix(href, "/") {
			href = siteURL + href
		}
		if seen[href] {
			return true
		}
		seen[href] = true

		paper := domain.NewPaper(domain.SourceWWS, href, title, href).
			Abstract(strings.TrimSpace(sel.Find("div.snippet, p.description").First().Text())).
			Build()
		papers = append(papers, paper)
		return true
	})

	resp := &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(papers),
		Source:       domain.SourceWWS,
		Query:        q.Query,
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}
