// Package crossref fronts the Crossref works API, the canonical DOI
// registry. Search is field-weighted; DOI lookup is authoritative.
package crossref

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
	"research-master/internal/sanitize"
)

const (
	providerID = "crossref"
	worksURL   = "https://api.crossref.org/works"
)

var jatsTags = regexp.MustCompile(`<[^>]+>`)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "Crossref", provider.CapSearch|provider.CapDOILookup),
		client: client,
	}
}

// ---------- API types ----------

type listEnvelope struct {
	Message struct {
		TotalResults int        `json:"total-results"`
		Items        []workItem `json:"items"`
	} `json:"message"`
}

type workEnvelope struct {
	Message workItem `json:"message"`
}

type workItem struct {
	DOI            string     `json:"DOI"`
	Title          []string   `json:"title"`
	ContainerTitle []string   `json:"container-title"`
	Author         []person   `json:"author"`
	Issued         dateParts  `json:"issued"`
	Abstract       string     `json:"abstract"`
	URL            string     `json:"URL"`
	Links          []workLink `json:"link"`
	CitedByCount   int        `json:"is-referenced-by-count"`
	Type           string     `json:"type"`
	Publisher      string     `json:"publisher"`
}

type person struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"` // set for org contributors
}

type dateParts struct {
	DateParts [][]int `json:"date-parts"`
}

type workLink struct {
	URL         string `json:"URL"`
	ContentType string `json:"content-type"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	params := url.Values{}
	params.Set("query", q.Query)
	params.Set("rows", strconv.Itoa(q.MaxResults))
	if q.Author != "" {
		params.Set("query.author", q.Author)
	}

	var filters []string
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		if yr.From != 0 {
			filters = append(filters, fmt.Sprintf("from-pub-date:%d-01-01", yr.From))
		}
		if yr.To != 0 {
			filters = append(filters, fmt.Sprintf("until-pub-date:%d-12-31", yr.To))
		}
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, ","))
	}
	switch q.SortBy {
	case domain.SortDate:
		params.Set("sort", "published")
		params.Set("order", "desc")
	case domain.SortCitations:
		params.Set("sort", "is-referenced-by-count")
		params.Set("order", "desc")
	}

	var env listEnvelope
	if err := p.client.GetJSON(ctx, "search", worksURL+"?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(env.Message.Items))
	for i := range env.Message.Items {
		if paper := itemToPaper(&env.Message.Items[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: env.Message.TotalResults,
		Source:       domain.SourceCrossref,
		Query:        q.Query,
		HasMore:      env.Message.TotalResults > len(papers),
	}, nil
}

func (p *Provider) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	return p.GetByDOI(ctx, id)
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}
	var env workEnvelope
	if err := p.client.GetJSON(ctx, "lookup_by_doi", worksURL+"/"+url.PathEscape(doi), nil, &env); err != nil {
		return nil, err
	}
	paper := itemToPaper(&env.Message)
	if paper == nil {
		return nil, errors.NotFound(providerID, fmt.Sprintf("DOI %q not found", doi))
	}
	return paper, nil
}

func (p *Provider) ValidateID(id string) error {
	if err := sanitize.PaperID(id); err != nil {
		return err
	}
	if _, err := sanitize.CanonicalDOI(id); err != nil {
		return errors.InvalidRequestf("%q is not a DOI", id)
	}
	return nil
}

// ---------- Helpers ----------

func itemToPaper(w *workItem) *domain.Paper {
	if w.DOI == "" || len(w.Title) == 0 || w.Title[0] == "" {
		return nil
	}

	pageURL := w.URL
	if pageURL == "" {
		pageURL = "https://doi.org/" + w.DOI
	}

	pdfURL := ""
	for _, l := range w.Links {
		if l.ContentType == "application/pdf" {
			pdfURL = l.URL
			break
		}
	}

	journal := ""
	if len(w.ContainerTitle) > 0 {
		journal = w.ContainerTitle[0]
	}

	paper := domain.NewPaper(domain.SourceCrossref, domain.NormalizeDOI(w.DOI), w.Title[0], pageURL).
		Authors(personNames(w.Author)).
		Abstract(stripJATS(w.Abstract)).
		DOI(w.DOI).
		PublishedDate(issuedDate(w.Issued)).
		PDFURL(pdfURL).
		CitationCount(w.CitedByCount).
		Extra("journal", journal).
		Extra("type", w.Type).
		Extra("publisher", w.Publisher).
		Build()
	return &paper
}

func personNames(people []person) []string {
	names := make([]string, 0, len(people))
	for _, a := range people {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// issuedDate renders Crossref's date-parts ([[year, month, day]], later
// parts optional) as an ISO date prefix.
func issuedDate(d dateParts) string {
	if len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return ""
	}
	parts := d.DateParts[0]
	out := strconv.Itoa(parts[0])
	if len(parts) >= 2 && parts[1] >= 1 && parts[1] <= 12 {
		out += fmt.Sprintf("-%02d", parts[1])
		if len(parts) >= 3 && parts[2] >= 1 && parts[2] <= 31 {
			out += fmt.Sprintf("-%02d", parts[2])
		}
	}
	return out
}

// stripJATS removes the JATS markup Crossref embeds in abstracts.
func stripJATS(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(jatsTags.ReplaceAllString(s, ""))
}
