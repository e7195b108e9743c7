// Package mdpi scrapes MDPI's search results. MDPI article pages expose
// PDFs at the article URL plus "/pdf", which makes the records useful
// even though search itself is HTML-only.
package mdpi

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
)

const (
	providerID = "mdpi"
	siteURL    = "https://www.mdpi.com"
)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "MDPI", provider.CapSearch),
		client: client,
	}
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	params := url.Values{}
	params.Set("q", q.Query)
	if q.Author != "" {
		params.Set("authors", q.Author)
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		if yr.From != 0 {
			params.Set("year_from", strconv.Itoa(yr.From))
		}
		if yr.To != 0 {
			params.Set("year_to", strconv.Itoa(yr.To))
		}
	}

	body, err := p.client.GetBytes(ctx, "search", siteURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Parse(providerID, "parsing search page", err)
	}

	var papers []domain.Paper
	doc.Find("div.article-content").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(papers) == q.MaxResults {
			return false
		}
		if paper := resultToPaper(sel); paper != nil {
			papers = append(papers, *paper)
		}
		return true
	})

	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(papers),
		Source:       domain.SourceMDPI,
		Query:        q.Query,
	}, nil
}

// ---------- Helpers ----------

func resultToPaper(sel *goquery.Selection) *domain.Paper {
	titleLink := sel.Find("a.title-link").First()
	title := strings.Join(strings.Fields(titleLink.Text()), " ")
	href, _ := titleLink.Attr("href")
	if title == "" || href == "" {
		return nil
	}
	pageURL := href
	if strings.HasPrefix(pageURL, "/") {
		pageURL = siteURL + pageURL
	}

	var authors []string
	sel.Find("div.authors a").Each(func(_ int, a *goquery.Selection) {
		if name := strings.TrimSpace(a.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	doi := ""
	sel.Find(`a[href*="doi.org/"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if u, ok := a.Attr("href"); ok {
			doi = domain.NormalizeDOI(u)
			return false
		}
		return true
	})

	id := strings.Trim(strings.TrimPrefix(href, siteURL), "/")
	if doi != "" {
		id = doi
	}

	paper := domain.NewPaper(domain.SourceMDPI, id, title, pageURL).
		Authors(authors).
		Abstract(strings.TrimSpace(sel.Find("div.abstract-div").First().Text())).
		DOI(doi).
		PDFURL(pageURL + "/pdf").
		Build()
	return &paper
}
