// Package unpaywall fronts the Unpaywall API, which maps DOIs to legal
// open-access copies. The service is free but requires a contact email
// on every request; a missing UNPAYWALL_EMAIL fails fast.
package unpaywall

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
	"research-master/internal/sanitize"
)

const (
	providerID = "unpaywall"
	apiURL     = "https://api.unpaywall.org/v2"
)

type Provider struct {
	*provider.Base
	client *provider.Client
	email  string
}

func New(client *provider.Client, email string) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "Unpaywall", provider.CapSearch|provider.CapDOILookup),
		client: client,
		email:  strings.TrimSpace(email),
	}
}

// ---------- API types ----------

type searchEnvelope struct {
	Results []struct {
		Response work `json:"response"`
	} `json:"results"`
}

type work struct {
	DOI            string      `json:"doi"`
	Title          string      `json:"title"`
	Genre          string      `json:"genre"`
	IsOA           bool        `json:"is_oa"`
	JournalName    string      `json:"journal_name"`
	Publisher      string      `json:"publisher"`
	Year           int         `json:"year"`
	PublishedDate  string      `json:"published_date"`
	ZAuthors       []zAuthor   `json:"z_authors"`
	BestOALocation *oaLocation `json:"best_oa_location"`
}

type zAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

type oaLocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
	License   string `json:"license"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	if err := p.requireEmail(); err != nil {
		return nil, err
	}
	q.Normalize()

	params := url.Values{}
	params.Set("query", q.Query)
	params.Set("email", p.email)

	var env searchEnvelope
	if err := p.client.GetJSON(ctx, "search", apiURL+"/search?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(env.Results))
	for i := range env.Results {
		if len(papers) == q.MaxResults {
			break
		}
		if paper := workToPaper(&env.Results[i].Response); paper != nil {
			papers = append(papers, *paper)
		}
	}
	resp := &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(env.Results),
		Source:       domain.SourceUnpaywall,
		Query:        q.Query,
		HasMore:      len(env.Results) > len(papers),
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}

func (p *Provider) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	return p.GetByDOI(ctx, id)
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	if err := p.requireEmail(); err != nil {
		return nil, err
	}
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}

	var w work
	endpoint := apiURL + "/" + url.PathEscape(doi) + "?email=" + url.QueryEscape(p.email)
	if err := p.client.GetJSON(ctx, "lookup_by_doi", endpoint, nil, &w); err != nil {
		return nil, err
	}
	paper := workToPaper(&w)
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

func (p *Provider) requireEmail() error {
	if p.email == "" {
		return errors.InvalidRequest("Unpaywall requires a contact email; set UNPAYWALL_EMAIL or [api_keys] unpaywall")
	}
	return nil
}

func workToPaper(w *work) *domain.Paper {
	if w.DOI == "" || w.Title == "" {
		return nil
	}

	pdfURL, license := "", ""
	pageURL := "https://doi.org/" + w.DOI
	if loc := w.BestOALocation; loc != nil {
		pdfURL = loc.URLForPDF
		license = loc.License
		if loc.URL != "" {
			pageURL = loc.URL
		}
	}

	published := w.PublishedDate
	if published == "" && w.Year > 0 {
		published = fmt.Sprintf("%d", w.Year)
	}

	names := make([]string, 0, len(w.ZAuthors))
	for _, a := range w.ZAuthors {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name != "" {
			names = append(names, name)
		}
	}

	paper := domain.NewPaper(domain.SourceUnpaywall, domain.NormalizeDOI(w.DOI), w.Title, pageURL).
		Authors(names).
		DOI(w.DOI).
		PublishedDate(published).
		PDFURL(pdfURL).
		Extra("journal", w.JournalName).
		Extra("publisher", w.Publisher).
		Extra("genre", w.Genre).
		Extra("license", license).
		Extra("is_oa", fmt.Sprintf("%t", w.IsOA)).
		Build()
	return &paper
}
