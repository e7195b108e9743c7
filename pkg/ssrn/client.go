// Package ssrn scrapes SSRN search results. SSRN has no public API; the
// one stable anchor is the abstract_id in result links, so parsing keys
// off that and treats a page without it as selector rot.
package ssrn

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
	providerID = "ssrn"
	searchURL  = "https://papers.ssrn.com/sol3/results.cfm"
)

var abstractID = regexp.MustCompile(`abstract(?:_id)?=(\d+)`)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "SSRN", provider.CapSearch),
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
	params.Set("txtKey_Words", terms)

	body, err := p.client.GetBytes(ctx, "search", searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Parse(providerID, "parsing search page", err)
	}

	papers := collectResults(doc, q.MaxResults)
	if len(papers) == 0 && !bytes.Contains(body, []byte("abstract")) {
		return nil, errors.Parse(providerID, "search page layout changed: no abstract links", nil)
	}

	resp := &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(papers),
		Source:       domain.SourceSSRN,
		Query:        q.Query,
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}

// ---------- Helpers ----------

func collectResults(doc *goquery.Document, max int) []domain.Paper {
	var papers []domain.Paper
	seen := make(map[string]bool)

	doc.Find(`a[href*="abstract"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(papers) == max {
			return false
		}
		href, _ := a.Attr("href")
		m := abstractID.FindStringSubmatch(href)
		if m == nil {
			return true
		}
		id := m[1]
		title := strings.Join(strings.Fields(a.Text()), " ")
		if seen[id] || len(title) < 4 {
			return true
		}
		seen[id] = true

		// Author names usually sit in a sibling list inside the row.
		var authors []string
		row := a.Closest("div.trow")
		row.Find("div.authors-list a, div.authors a").Each(func(_ int, au *goquery.Selection) {
			if name := strings.TrimSpace(au.Text()); name != "" {
				authors = append(authors, name)
			}
		})

		published := ""
		if note := row.Find("div.note-list, div.note").First().Text(); note != "" {
			if y := yearIn(note); y != "" {
				published = y
			}
		}

		paper := domain.NewPaper(domain.SourceSSRN, id, title,
			"https://papers.ssrn.com/sol3/papers.cfm?abstract_id="+id).
			Authors(authors).
			PublishedDate(published).
			Build()
		papers = append(papers, paper)
		return true
	})
	return papers
}

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

func yearIn(s string) string {
	return yearRe.FindString(s)
}
