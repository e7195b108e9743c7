// Package doaj fronts the Directory of Open Access Journals article
// search API. The query travels in the URL path (Elasticsearch query
// string syntax); records come back in bibJSON.
package doaj

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
	"research-master/internal/sanitize"
)

const (
	providerID = "doaj"
	searchURL  = "https://doaj.org/api/search/articles/"
)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "DOAJ", provider.CapSearch|provider.CapDOILookup),
		client: client,
	}
}

// ---------- API types ----------

type searchEnvelope struct {
	Total   int       `json:"total"`
	Results []article `json:"results"`
}

type article struct {
	ID      string  `json:"id"`
	BibJSON bibjson `json:"bibjson"`
}

type bibjson struct {
	Title      string       `json:"title"`
	Abstract   string       `json:"abstract"`
	Year       string       `json:"year"`
	Month      string       `json:"month"`
	Author     []author     `json:"author"`
	Identifier []identifier `json:"identifier"`
	Link       []biblink    `json:"link"`
	Keywords   []string     `json:"keywords"`
	Subject    []subject    `json:"subject"`
	Journal    struct {
		Title     string `json:"title"`
		Publisher string `json:"publisher"`
	} `json:"journal"`
}

type author struct {
	Name string `json:"name"`
}

type identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type biblink struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

type subject struct {
	Term string `json:"term"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + fmt.Sprintf(" AND bibjson.author.name:%q", q.Author))
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		terms = strings.TrimSpace(terms + " AND " + yearClause(yr))
	}

	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(q.MaxResults))
	if q.SortBy == domain.SortDate {
		params.Set("sort", "created_date:"+strings.ToLower(q.SortOrder))
	}

	env, err := p.query(ctx, "search", terms, params)
	if err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(env.Results))
	for i := range env.Results {
		if paper := articleToPaper(&env.Results[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: env.Total,
		Source:       domain.SourceDOAJ,
		Query:        q.Query,
		HasMore:      env.Total > len(papers),
	}, nil
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("pageSize", "1")

	env, err := p.query(ctx, "lookup_by_doi", fmt.Sprintf("doi:%q", doi), params)
	if err != nil {
		return nil, err
	}
	if len(env.Results) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("DOI %q not found", doi))
	}
	return articleToPaper(&env.Results[0]), nil
}

// ---------- Helpers ----------

func (p *Provider) query(ctx context.Context, op, terms string, params url.Values) (*searchEnvelope, error) {
	var env searchEnvelope
	endpoint := searchURL + url.PathEscape(terms) + "?" + params.Encode()
	if err := p.client.GetJSON(ctx, op, endpoint, nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func articleToPaper(a *article) *domain.Paper {
	if a.ID == "" || a.BibJSON.Title == "" {
		return nil
	}
	bj := &a.BibJSON

	doi := ""
	for _, ident := range bj.Identifier {
		if strings.EqualFold(ident.Type, "doi") {
			doi = ident.ID
			break
		}
	}

	pageURL, pdfURL := "https://doaj.org/article/"+a.ID, ""
	for _, l := range bj.Link {
		if !strings.EqualFold(l.Type, "fulltext") || l.URL == "" {
			continue
		}
		if strings.Contains(strings.ToLower(l.ContentType), "pdf") ||
			strings.HasSuffix(strings.ToLower(l.URL), ".pdf") {
			pdfURL = l.URL
		} else if pageURL == "https://doaj.org/article/"+a.ID {
			pageURL = l.URL
		}
	}

	published := bj.Year
	if published != "" && bj.Month != "" {
		if m, err := strconv.Atoi(bj.Month); err == nil && m >= 1 && m <= 12 {
			published = fmt.Sprintf("%s-%02d", bj.Year, m)
		}
	}

	names := make([]string, 0, len(bj.Author))
	for _, au := range bj.Author {
		if au.Name != "" {
			names = append(names, au.Name)
		}
	}
	terms := make([]string, 0, len(bj.Subject))
	for _, s := range bj.Subject {
		if s.Term != "" {
			terms = append(terms, s.Term)
		}
	}

	paper := domain.NewPaper(domain.SourceDOAJ, a.ID, bj.Title, pageURL).
		Authors(names).
		Abstract(bj.Abstract).
		DOI(doi).
		PublishedDate(published).
		PDFURL(pdfURL).
		Keywords(bj.Keywords).
		Categories(terms).
		Extra("journal", bj.Journal.Title).
		Extra("publisher", bj.Journal.Publisher).
		Build()
	return &paper
}

func yearClause(yr domain.YearRange) string {
	from, to := "*", "*"
	if yr.From != 0 {
		from = strconv.Itoa(yr.From)
	}
	if yr.To != 0 {
		to = strconv.Itoa(yr.To)
	}
	return fmt.Sprintf("bibjson.year:[%s TO %s]", from, to)
}
