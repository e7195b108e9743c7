// Package scispace fronts the SciSpace (typeset.io) paper search API.
// Access is key-gated; requests sign with the x-api-key header.
package scispace

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
)

const (
	providerID = "scispace"
	searchURL  = "https://api.typeset.io/v1/papers/search"
)

type Provider struct {
	*provider.Base
	client *provider.Client
	apiKey string
}

func New(client *provider.Client, apiKey string) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "SciSpace", provider.CapSearch),
		client: client,
		apiKey: strings.TrimSpace(apiKey),
	}
}

// ---------- API types ----------

type searchEnvelope struct {
	Data  []paperRecord `json:"data"`
	Total int           `json:"total"`
}

type paperRecord struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract"`
	DOI             string   `json:"doi"`
	Authors         []person `json:"authors"`
	PublicationDate string   `json:"publicationDate"`
	PDFURL          string   `json:"pdfUrl"`
	URL             string   `json:"url"`
	CitationCount   int      `json:"citationCount"`
	Venue           string   `json:"venue"`
}

type person struct {
	Name string `json:"name"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	if p.apiKey == "" {
		return nil, errors.InvalidRequest("SciSpace requires an API key; set SCISPACE_API_KEY or [api_keys] scispace")
	}
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + " " + q.Author)
	}

	params := url.Values{}
	params.Set("query", terms)
	params.Set("limit", strconv.Itoa(q.MaxResults))

	h := http.Header{}
	h.Set("x-api-key", p.apiKey)

	var env searchEnvelope
	if err := p.client.GetJSON(ctx, "search", searchURL+"?"+params.Encode(), h, &env); err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(env.Data))
	for i := range env.Data {
		if paper := recordToPaper(&env.Data[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	total := env.Total
	if total == 0 {
		total = len(papers)
	}
	resp := &domain.SearchResponse{
		Papers:       papers,
		TotalResults: total,
		Source:       domain.SourceSciSpace,
		Query:        q.Query,
		HasMore:      total > len(papers),
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}

// ---------- Helpers ----------

func recordToPaper(r *paperRecord) *domain.Paper {
	if r.ID == "" || r.Title == "" {
		return nil
	}

	pageURL := r.URL
	if pageURL == "" && r.DOI != "" {
		pageURL = "https://doi.org/" + domain.NormalizeDOI(r.DOI)
	}
	if pageURL == "" {
		pageURL = "https://typeset.io/papers/" + r.ID
	}

	names := make([]string, 0, len(r.Authors))
	for _, a := range r.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	paper := domain.NewPaper(domain.SourceSciSpace, r.ID, r.Title, pageURL).
		Authors(names).
		Abstract(r.Abstract).
		DOI(r.DOI).
		PublishedDate(r.PublicationDate).
		PDFURL(r.PDFURL).
		CitationCount(r.CitationCount).
		Extra("venue", r.Venue).
		Build()
	return &paper
}
