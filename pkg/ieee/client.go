// Package ieee fronts the IEEE Xplore metadata API. The key travels as
// the apikey query parameter and year bounds map directly onto the
// start_year/end_year filters.
package ieee

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
)

const (
	providerID = "ieee"
	searchURL  = "https://ieeexploreapi.ieee.org/api/v1/search/articles"
)

type Provider struct {
	*provider.Base
	client *provider.Client
	apiKey string
}

func New(client *provider.Client, apiKey string) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "IEEE Xplore", provider.CapSearch),
		client: client,
		apiKey: strings.TrimSpace(apiKey),
	}
}

// ---------- API types ----------

type searchEnvelope struct {
	TotalRecords int       `json:"total_records"`
	Articles     []article `json:"articles"`
}

type article struct {
	DOI              string `json:"doi"`
	Title            string `json:"title"`
	ArticleNumber    string `json:"article_number"`
	Abstract         string `json:"abstract"`
	PublicationTitle string `json:"publication_title"`
	PublicationYear  string `json:"publication_year"`
	HTMLURL          string `json:"html_url"`
	PDFURL           string `json:"pdf_url"`
	CitingPaperCount int    `json:"citing_paper_count"`
	Authors          struct {
		Authors []struct {
			FullName string `json:"full_name"`
		} `json:"authors"`
	} `json:"authors"`
	IndexTerms struct {
		IEEETerms struct {
			Terms []string `json:"terms"`
		} `json:"ieee_terms"`
	} `json:"index_terms"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	if p.apiKey == "" {
		return nil, errors.InvalidRequest("IEEE Xplore requires an API key; set IEEE_API_KEY or [api_keys] ieee")
	}
	q.Normalize()

	params := url.Values{}
	params.Set("apikey", p.apiKey)
	params.Set("querytext", q.Query)
	params.Set("max_records", strconv.Itoa(q.MaxResults))
	if q.Author != "" {
		params.Set("author", q.Author)
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		if yr.From != 0 {
			params.Set("start_year", strconv.Itoa(yr.From))
		}
		if yr.To != 0 {
			params.Set("end_year", strconv.Itoa(yr.To))
		}
	}
	if q.SortBy == domain.SortDate {
		params.Set("sort_field", "publication_year")
		params.Set("sort_order", strings.ToLower(q.SortOrder))
	}

	var env searchEnvelope
	if err := p.client.GetJSON(ctx, "search", searchURL+"?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(env.Articles))
	for i := range env.Articles {
		if paper := articleToPaper(&env.Articles[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: env.TotalRecords,
		Source:       domain.SourceIEEE,
		Query:        q.Query,
		HasMore:      env.TotalRecords > len(papers),
	}, nil
}

// ---------- Helpers ----------

func articleToPaper(a *article) *domain.Paper {
	if a.ArticleNumber == "" || a.Title == "" {
		return nil
	}

	pageURL := a.HTMLURL
	if pageURL == "" {
		pageURL = "https://ieeexplore.ieee.org/document/" + a.ArticleNumber
	}

	names := make([]string, 0, len(a.Authors.Authors))
	for _, au := range a.Authors.Authors {
		if au.FullName != "" {
			names = append(names, au.FullName)
		}
	}

	paper := domain.NewPaper(domain.SourceIEEE, a.ArticleNumber, a.Title, pageURL).
		Authors(names).
		Abstract(a.Abstract).
		DOI(a.DOI).
		PublishedDate(a.PublicationYear).
		PDFURL(a.PDFURL).
		Keywords(a.IndexTerms.IEEETerms.Terms).
		CitationCount(a.CitingPaperCount).
		Extra("venue", a.PublicationTitle).
		Build()
	return &paper
}
