// Package core fronts the CORE v3 aggregator API. Every call requires a
// bearer token, so a missing CORE_API_KEY fails fast with an invalid
// request instead of a confusing 401 from upstream.
package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
	"research-master/internal/sanitize"
)

const (
	providerID = "core"
	searchURL  = "https://api.core.ac.uk/v3/search/works"
)

type Provider struct {
	*provider.Base
	client *provider.Client
	apiKey string
}

func New(client *provider.Client, apiKey string) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "CORE", provider.CapSearch|provider.CapDOILookup),
		client: client,
		apiKey: strings.TrimSpace(apiKey),
	}
}

// ---------- API types ----------

type searchRequest struct {
	Q      string `json:"q"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type searchEnvelope struct {
	TotalHits int    `json:"totalHits"`
	Results   []work `json:"results"`
}

type work struct {
	ID            int64    `json:"id"`
	DOI           string   `json:"doi"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract"`
	Authors       []author `json:"authors"`
	YearPublished int      `json:"yearPublished"`
	PublishedDate string   `json:"publishedDate"`
	DownloadURL   string   `json:"downloadUrl"`
	Publisher     string   `json:"publisher"`
	DocumentType  string   `json:"documentType"`
	Links         []link   `json:"links"`
}

type author struct {
	Name string `json:"name"`
}

type link struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + fmt.Sprintf(` AND authors:%q`, q.Author))
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		terms = strings.TrimSpace(terms + " AND " + yearClause(yr))
	}

	var env searchEnvelope
	body := searchRequest{Q: terms, Limit: q.MaxResults}
	if err := p.client.PostJSON(ctx, "search", searchURL, p.authHeader(), body, &env); err != nil {
		return nil, err
	}
	return p.envelopeToResponse(&env, q.Query), nil
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}

	var env searchEnvelope
	body := searchRequest{Q: fmt.Sprintf("doi:%q", doi), Limit: 1}
	if err := p.client.PostJSON(ctx, "lookup_by_doi", searchURL, p.authHeader(), body, &env); err != nil {
		return nil, err
	}
	if len(env.Results) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("DOI %q not found", doi))
	}
	return workToPaper(&env.Results[0]), nil
}

// ---------- Helpers ----------

func (p *Provider) requireKey() error {
	if p.apiKey == "" {
		return errors.InvalidRequest("CORE requires an API key; set CORE_API_KEY or [api_keys] core")
	}
	return nil
}

func (p *Provider) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.apiKey)
	return h
}

func (p *Provider) envelopeToResponse(env *searchEnvelope, query string) *domain.SearchResponse {
	papers := make([]domain.Paper, 0, len(env.Results))
	for i := range env.Results {
		if paper := workToPaper(&env.Results[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: env.TotalHits,
		Source:       domain.SourceCORE,
		Query:        query,
		HasMore:      env.TotalHits > len(papers),
	}
}

func workToPaper(w *work) *domain.Paper {
	if w.ID == 0 || w.Title == "" {
		return nil
	}
	id := fmt.Sprintf("%d", w.ID)

	pdfURL := w.DownloadURL
	if pdfURL == "" {
		for _, l := range w.Links {
			if strings.EqualFold(l.Type, "download") {
				pdfURL = l.URL
				break
			}
		}
	}

	published := domain.ISODate(w.PublishedDate)
	if published == "" && w.YearPublished > 0 {
		published = fmt.Sprintf("%d", w.YearPublished)
	}

	names := make([]string, 0, len(w.Authors))
	for _, a := range w.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	paper := domain.NewPaper(domain.SourceCORE, id, w.Title, "https://core.ac.uk/works/"+id).
		Authors(names).
		Abstract(w.Abstract).
		DOI(w.DOI).
		PublishedDate(published).
		PDFURL(pdfURL).
		Extra("publisher", w.Publisher).
		Extra("type", w.DocumentType).
		Build()
	return &paper
}

func yearClause(yr domain.YearRange) string {
	from, to := "*", "*"
	if yr.From != 0 {
		from = fmt.Sprintf("%d", yr.From)
	}
	if yr.To != 0 {
		to = fmt.Sprintf("%d", yr.To)
	}
	return fmt.Sprintf("yearPublished:[%s TO %s]", from, to)
}
