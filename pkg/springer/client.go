// Package springer fronts the Springer Nature Meta v2 API. Requests
// carry the api_key as a query parameter; totals come back as strings.
package springer

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
	providerID = "springer"
	metaURL    = "https://api.springernature.com/meta/v2/json"
)

type Provider struct {
	*provider.Base
	client *provider.Client
	apiKey string
}

func New(client *provider.Client, apiKey string) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "Springer Nature", provider.CapSearch|provider.CapDOILookup),
		client: client,
		apiKey: strings.TrimSpace(apiKey),
	}
}

// ---------- API types ----------

type metaEnvelope struct {
	Result  []resultStats `json:"result"`
	Records []metaRecord  `json:"records"`
}

type resultStats struct {
	Total string `json:"total"`
}

type metaRecord struct {
	Identifier      string    `json:"identifier"`
	Title           string    `json:"title"`
	Creators        []creator `json:"creators"`
	PublicationName string    `json:"publicationName"`
	DOI             string    `json:"doi"`
	PublicationDate string    `json:"publicationDate"`
	Abstract        string    `json:"abstract"`
	Genre           string    `json:"genre"`
	OpenAccess      string    `json:"openaccess"`
	URL             []urlRef  `json:"url"`
}

type creator struct {
	Creator string `json:"creator"`
}

type urlRef struct {
	Format string `json:"format"`
	Value  string `json:"value"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + fmt.Sprintf(" name:%q", q.Author))
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		terms = strings.TrimSpace(terms + " " + dateClause(yr))
	}

	params := url.Values{}
	params.Set("q", terms)
	params.Set("api_key", p.apiKey)
	params.Set("p", strconv.Itoa(q.MaxResults))

	var env metaEnvelope
	if err := p.client.GetJSON(ctx, "search", metaURL+"?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(env.Records))
	for i := range env.Records {
		if paper := recordToPaper(&env.Records[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	total := len(papers)
	if len(env.Result) > 0 {
		if n, err := strconv.Atoi(env.Result[0].Total); err == nil {
			total = n
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: total,
		Source:       domain.SourceSpringer,
		Query:        q.Query,
		HasMore:      total > len(papers),
	}, nil
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", "doi:"+doi)
	params.Set("api_key", p.apiKey)
	params.Set("p", "1")

	var env metaEnvelope
	if err := p.client.GetJSON(ctx, "lookup_by_doi", metaURL+"?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}
	if len(env.Records) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("DOI %q not found", doi))
	}
	return recordToPaper(&env.Records[0]), nil
}

// ---------- Helpers ----------

func (p *Provider) requireKey() error {
	if p.apiKey == "" {
		return errors.InvalidRequest("Springer requires an API key; set SPRINGER_API_KEY or [api_keys] springer")
	}
	return nil
}

func recordToPaper(r *metaRecord) *domain.Paper {
	if r.Title == "" {
		return nil
	}
	id := strings.TrimPrefix(r.Identifier, "doi:")
	if id == "" {
		id = r.DOI
	}
	if id == "" {
		return nil
	}

	doi := r.DOI
	if doi == "" && strings.HasPrefix(r.Identifier, "doi:") {
		doi = strings.TrimPrefix(r.Identifier, "doi:")
	}

	pageURL, pdfURL := "", ""
	for _, u := range r.URL {
		switch strings.ToLower(u.Format) {
		case "pdf":
			if pdfURL == "" {
				pdfURL = u.Value
			}
		default:
			if pageURL == "" {
				pageURL = u.Value
			}
		}
	}
	if pageURL == "" && doi != "" {
		pageURL = "https://doi.org/" + doi
	}

	names := make([]string, 0, len(r.Creators))
	for _, c := range r.Creators {
		if c.Creator != "" {
			names = append(names, c.Creator)
		}
	}

	paper := domain.NewPaper(domain.SourceSpringer, domain.NormalizeDOI(id), r.Title, pageURL).
		Authors(names).
		Abstract(r.Abstract).
		DOI(doi).
		PublishedDate(r.PublicationDate).
		PDFURL(pdfURL).
		Extra("journal", r.PublicationName).
		Extra("genre", r.Genre).
		Extra("open_access", r.OpenAccess).
		Build()
	return &paper
}

func dateClause(yr domain.YearRange) string {
	var parts []string
	if yr.From != 0 {
		parts = append(parts, fmt.Sprintf("datefrom:%d-01-01", yr.From))
	}
	if yr.To != 0 {
		parts = append(parts, fmt.Sprintf("dateto:%d-12-31", yr.To))
	}
	return strings.Join(parts, " ")
}
