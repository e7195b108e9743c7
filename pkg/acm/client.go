// Package acm scrapes the ACM Digital Library search. Result links embed
// the DOI in the /doi/ path, which doubles as the paper identifier.
package acm

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
	providerID = "acm"
	siteURL    = "https://dl.acm.org"
)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "ACM Digital Library", provider.CapSearch),
		client: client,
	}
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	params := url.Values{}
	params.Set("AllField", q.Query)
	if q.Author != "" {
		params.Set("ContribAuthorRaw", q.Author)
	}

	body, err := p.client.GetBytes(ctx, "search", siteURL+"/action/doSearch?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Parse(providerID, "parsing search page", err)
	}

	var papers []domain.Paper
	doc.Find("li.search__item").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(papers) == q.MaxResults {
			return false
		}
		if paper := resultToPaper(sel); paper != nil {
			papers = append(papers, *paper)
		}
		return true
	})

	resp := &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(papers),
		Source:       domain.SourceACM,
		Query:        q.Query,
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}

// ---------- Helpers ----------

func resultToPaper(sel *goquery.Selection) *domain.Paper {
	link := sel.Find("h5 a, h3 a").First()
	title := strings.Join(strings.Fields(link.Text()), " ")
	href, _ := link.Attr("href")
	if title == "" || !strings.Contains(href, "/doi/") {
		return nil
	}

	doi := href[strings.Index(href, "/doi/")+len("/doi/"):]
	doi = strings.TrimPrefix(doi, "abs/")
	doi = strings.TrimPrefix(doi, "full/")
	if !strings.HasPrefix(doi, "10.") {
		return nil
	}

	var authors []string
	sel.Find(`ul[aria-label="authors"] a`).Each(func(_ int, a *goquery.Selection) {
		if name := strings.Join(strings.Fields(a.Text()), " "); name != "" {
			authors = append(authors, name)
		}
	})

	published := strings.TrimSpace(sel.Find("div.bookPubDate, span.dot-separator").First().AttrOr("data-title", ""))
	if published == "" {
		published = yearIn(sel.Find("div.issue-item__detail").Text())
	}

	paper := domain.NewPaper(domain.SourceACM, domain.NormalizeDOI(doi), title, siteURL+"/doi/"+doi).
		Authors(authors).
		Abstract(strings.TrimSpace(sel.Find("div.issue-item__abstract").First().Text())).
		DOI(doi).
		PublishedDate(yearIn(published)).
		PDFURL(siteURL + "/doi/pdf/" + doi).
		Build()
	return &paper
}

func yearIn(s string) string {
	for i := 0; i+4 <= len(s); i++ {
		if (strings.HasPrefix(s[i:], "19") || strings.HasPrefix(s[i:], "20")) && allDigits(s[i:i+4]) {
			return s[i : i+4]
		}
	}
	return ""
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
