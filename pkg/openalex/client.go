// Package openalex fronts the OpenAlex works catalog. Abstracts arrive
// as an inverted index and are reconstructed; citations come from the
// cites: filter; references resolve through the referenced_works list.
package openalex

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
	providerID = "openalex"
	worksURL   = "https://api.openalex.org/works"
)

var workIDPattern = regexp.MustCompile(`^[Ww]\d{4,12}$`)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base: provider.NewBase(providerID, "OpenAlex",
			provider.CapSearch|provider.CapCitations|provider.CapDOILookup|provider.CapAuthorSearch),
		client: client,
	}
}

// ---------- API types ----------

type listResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []work `json:"results"`
}

type work struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	PublicationDate       string           `json:"publication_date"`
	Type                  string           `json:"type"`
	CitedByCount          int              `json:"cited_by_count"`
	Authorships           []authorship     `json:"authorships"`
	PrimaryLocation       *location        `json:"primary_location"`
	OpenAccess            *openAccess      `json:"open_access"`
	IDs                   map[string]any   `json:"ids"`
	ReferencedWorks       []string         `json:"referenced_works"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

type authorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type location struct {
	LandingPageURL string `json:"landing_page_url"`
	PDFURL         string `json:"pdf_url"`
	Source         *struct {
		DisplayName string `json:"display_name"`
	} `json:"source"`
}

type openAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	params := url.Values{}
	params.Set("search", q.Query)
	params.Set("per-page", strconv.Itoa(q.MaxResults))
	params.Set("cursor", "*")

	var filters []string
	if q.Author != "" {
		filters = append(filters, "raw_author_name.search:"+q.Author)
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		if yr.From != 0 {
			filters = append(filters, fmt.Sprintf("from_publication_date:%d-01-01", yr.From))
		}
		if yr.To != 0 {
			filters = append(filters, fmt.Sprintf("to_publication_date:%d-12-31", yr.To))
		}
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, ","))
	}
	switch q.SortBy {
	case domain.SortDate:
		params.Set("sort", "publication_date:desc")
	case domain.SortCitations:
		params.Set("sort", "cited_by_count:desc")
	}

	var lr listResponse
	if err := p.client.GetJSON(ctx, "search", worksURL+"?"+params.Encode(), nil, &lr); err != nil {
		return nil, err
	}
	return &domain.SearchResponse{
		Papers:       toPapers(lr.Results),
		TotalResults: lr.Meta.Count,
		Source:       domain.SourceOpenAlex,
		Query:        q.Query,
		HasMore:      lr.Meta.Count > len(lr.Results),
	}, nil
}

func (p *Provider) SearchByAuthor(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	if strings.TrimSpace(q.Author) == "" {
		return nil, errors.InvalidRequest("author name must not be empty")
	}
	return p.Search(ctx, q)
}

func (p *Provider) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	if err := p.ValidateID(id); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "10.") {
		return p.GetByDOI(ctx, id)
	}
	return p.fetchWork(ctx, "get_paper", strings.ToUpper(id))
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}
	return p.fetchWork(ctx, "lookup_by_doi", "https://doi.org/"+doi)
}

// Citations lists the works whose reference lists include the paper.
func (p *Provider) Citations(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error) {
	req.Normalize()
	workID, err := p.resolveWorkID(ctx, req.PaperID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("filter", "cites:"+workID)
	params.Set("per-page", strconv.Itoa(req.MaxResults))

	var lr listResponse
	if err := p.client.GetJSON(ctx, "get_citations", worksURL+"?"+params.Encode(), nil, &lr); err != nil {
		return nil, err
	}
	return &domain.SearchResponse{
		Papers:       toPapers(lr.Results),
		TotalResults: lr.Meta.Count,
		Source:       domain.SourceOpenAlex,
		Query:        req.PaperID,
		HasMore:      lr.Meta.Count > len(lr.Results),
	}, nil
}

// References resolves the paper's referenced_works list and fetches
// those records in one batched filter query.
func (p *Provider) References(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error) {
	req.Normalize()
	workID, err := p.resolveWorkID(ctx, req.PaperID)
	if err != nil {
		return nil, err
	}

	var w work
	if err := p.client.GetJSON(ctx, "get_references", worksURL+"/"+workID, nil, &w); err != nil {
		return nil, err
	}
	refs := w.ReferencedWorks
	if len(refs) == 0 {
		return &domain.SearchResponse{
			Papers: []domain.Paper{},
			Source: domain.SourceOpenAlex,
			Query:  req.PaperID,
		}, nil
	}
	if len(refs) > req.MaxResults {
		refs = refs[:req.MaxResults]
	}
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, shortID(r))
	}

	params := url.Values{}
	params.Set("filter", "openalex:"+strings.Join(ids, "|"))
	params.Set("per-page", strconv.Itoa(len(ids)))

	var lr listResponse
	if err := p.client.GetJSON(ctx, "get_references", worksURL+"?"+params.Encode(), nil, &lr); err != nil {
		return nil, err
	}
	return &domain.SearchResponse{
		Papers:       toPapers(lr.Results),
		TotalResults: len(w.ReferencedWorks),
		Source:       domain.SourceOpenAlex,
		Query:        req.PaperID,
		HasMore:      len(w.ReferencedWorks) > len(lr.Results),
	}, nil
}

func (p *Provider) ValidateID(id string) error {
	if err := sanitize.PaperID(id); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if workIDPattern.MatchString(id) {
		return nil
	}
	if _, err := sanitize.CanonicalDOI(id); err == nil {
		return nil
	}
	return errors.InvalidRequestf("%q is not an OpenAlex work id or DOI", id)
}

// ---------- Helpers ----------

func (p *Provider) fetchWork(ctx context.Context, op, ref string) (*domain.Paper, error) {
	var w work
	if err := p.client.GetJSON(ctx, op, worksURL+"/"+ref, nil, &w); err != nil {
		return nil, err
	}
	paper := toPaper(&w)
	if paper == nil {
		return nil, errors.NotFound(providerID, fmt.Sprintf("work %q not found", ref))
	}
	return paper, nil
}

// resolveWorkID turns the accepted id forms into a bare W-id, looking
// DOIs up when needed.
func (p *Provider) resolveWorkID(ctx context.Context, id string) (string, error) {
	if err := p.ValidateID(id); err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if workIDPattern.MatchString(id) {
		return strings.ToUpper(id), nil
	}
	paper, err := p.GetByDOI(ctx, id)
	if err != nil {
		return "", err
	}
	return paper.PaperID, nil
}

func shortID(openalexURL string) string {
	return strings.TrimPrefix(openalexURL, "https://openalex.org/")
}

func toPapers(works []work) []domain.Paper {
	papers := make([]domain.Paper, 0, len(works))
	for i := range works {
		if paper := toPaper(&works[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return papers
}

func toPaper(w *work) *domain.Paper {
	title := w.Title
	if title == "" {
		title = w.DisplayName
	}
	id := shortID(w.ID)
	if id == "" || title == "" {
		return nil
	}

	names := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			names = append(names, a.Author.DisplayName)
		}
	}

	pageURL := w.ID
	pdfURL := ""
	venue := ""
	if w.PrimaryLocation != nil {
		if w.PrimaryLocation.LandingPageURL != "" {
			pageURL = w.PrimaryLocation.LandingPageURL
		}
		pdfURL = w.PrimaryLocation.PDFURL
		if w.PrimaryLocation.Source != nil {
			venue = w.PrimaryLocation.Source.DisplayName
		}
	}
	if pdfURL == "" && w.OpenAccess != nil {
		pdfURL = w.OpenAccess.OAURL
	}

	date := w.PublicationDate
	if date == "" && w.PublicationYear > 0 {
		date = strconv.Itoa(w.PublicationYear)
	}

	paper := domain.NewPaper(domain.SourceOpenAlex, id, title, pageURL).
		Authors(names).
		Abstract(reconstructAbstract(w.AbstractInvertedIndex)).
		DOI(w.DOI).
		PublishedDate(date).
		PDFURL(pdfURL).
		CitationCount(w.CitedByCount).
		Extra("venue", venue).
		Extra("type", w.Type).
		Extra("pmid", stringID(w.IDs, "pmid")).
		Build()
	return &paper
}

// stringID digs one entry out of the ids map and strips its URL prefix.
func stringID(ids map[string]any, key string) string {
	v, ok := ids[key].(string)
	if !ok {
		return ""
	}
	if i := strings.LastIndexByte(v, '/'); i >= 0 {
		return v[i+1:]
	}
	return v
}

// reconstructAbstract rebuilds the plain-text abstract from OpenAlex's
// {"word": [positions...]} inverted index.
func reconstructAbstract(inverted map[string][]int) string {
	if len(inverted) == 0 {
		return ""
	}
	maxPos := 0
	for _, positions := range inverted {
		for _, pos := range positions {
			if pos > maxPos {
				maxPos = pos
			}
		}
	}
	words := make([]string, maxPos+1)
	for word, positions := range inverted {
		for _, pos := range positions {
			if pos >= 0 && pos <= maxPos {
				words[pos] = word
			}
		}
	}
	var sb strings.Builder
	for _, word := range words {
		if word == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(word)
	}
	return sb.String()
}
