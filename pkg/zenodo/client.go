// Package zenodo fronts the Zenodo records API. Zenodo hosts datasets
// and software alongside papers, so converted records carry the resource
// type for callers that want to filter.
package zenodo

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
	providerID = "zenodo"
	recordsURL = "https://zenodo.org/api/records"
)

var htmlTags = regexp.MustCompile(`<[^>]+>`)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "Zenodo", provider.CapSearch|provider.CapDOILookup),
		client: client,
	}
}

// ---------- API types ----------

type searchEnvelope struct {
	Hits struct {
		Total int         `json:"total"`
		Hits  []apiRecord `json:"hits"`
	} `json:"hits"`
}

type apiRecord struct {
	ID       int64      `json:"id"`
	DOI      string     `json:"doi"`
	Links    recordRefs `json:"links"`
	Files    []file     `json:"files"`
	Metadata metadata   `json:"metadata"`
}

type recordRefs struct {
	SelfHTML string `json:"self_html"`
}

type file struct {
	Key   string `json:"key"`
	Links struct {
		Self string `json:"self"`
	} `json:"links"`
}

type metadata struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	PublicationDate string    `json:"publication_date"`
	Creators        []creator `json:"creators"`
	Keywords        []string  `json:"keywords"`
	ResourceType    struct {
		Title string `json:"title"`
		Type  string `json:"type"`
	} `json:"resource_type"`
}

type creator struct {
	Name string `json:"name"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + fmt.Sprintf(" AND creators.name:%q", q.Author))
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		terms = strings.TrimSpace(terms + " AND " + yearClause(yr))
	}

	params := url.Values{}
	params.Set("q", terms)
	params.Set("size", strconv.Itoa(q.MaxResults))
	if q.SortBy == domain.SortDate {
		params.Set("sort", "mostrecent")
	}

	var env searchEnvelope
	if err := p.client.GetJSON(ctx, "search", recordsURL+"?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(env.Hits.Hits))
	for i := range env.Hits.Hits {
		if paper := recordToPaper(&env.Hits.Hits[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: env.Hits.Total,
		Source:       domain.SourceZenodo,
		Query:        q.Query,
		HasMore:      env.Hits.Total > len(papers),
	}, nil
}

func (p *Provider) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	if err := p.ValidateID(id); err != nil {
		return nil, err
	}
	var rec apiRecord
	if err := p.client.GetJSON(ctx, "get_paper", recordsURL+"/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	paper := recordToPaper(&rec)
	if paper == nil {
		return nil, errors.NotFound(providerID, fmt.Sprintf("record %q not found", id))
	}
	return paper, nil
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("q", fmt.Sprintf("doi:%q", doi))
	params.Set("size", "1")

	var env searchEnvelope
	if err := p.client.GetJSON(ctx, "lookup_by_doi", recordsURL+"?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}
	if len(env.Hits.Hits) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("DOI %q not found", doi))
	}
	return recordToPaper(&env.Hits.Hits[0]), nil
}

// ---------- Helpers ----------

func recordToPaper(r *apiRecord) *domain.Paper {
	if r.ID == 0 || r.Metadata.Title == "" {
		return nil
	}
	id := strconv.FormatInt(r.ID, 10)

	pageURL := r.Links.SelfHTML
	if pageURL == "" {
		pageURL = "https://zenodo.org/records/" + id
	}

	pdfURL := ""
	for _, f := range r.Files {
		if strings.HasSuffix(strings.ToLower(f.Key), ".pdf") && f.Links.Self != "" {
			pdfURL = f.Links.Self
			break
		}
	}

	names := make([]string, 0, len(r.Metadata.Creators))
	for _, c := range r.Metadata.Creators {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}

	paper := domain.NewPaper(domain.SourceZenodo, id, r.Metadata.Title, pageURL).
		Authors(names).
		Abstract(stripHTML(r.Metadata.Description)).
		DOI(r.DOI).
		PublishedDate(r.Metadata.PublicationDate).
		PDFURL(pdfURL).
		Keywords(r.Metadata.Keywords).
		Extra("resource_type", r.Metadata.ResourceType.Title).
		Build()
	return &paper
}

func yearClause(yr domain.YearRange) string {
	from, to := "*", "*"
	if yr.From != 0 {
		from = fmt.Sprintf("%d-01-01", yr.From)
	}
	if yr.To != 0 {
		to = fmt.Sprintf("%d-12-31", yr.To)
	}
	return fmt.Sprintf("publication_date:[%s TO %s]", from, to)
}

// stripHTML flattens the HTML Zenodo stores in descriptions.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(htmlTags.ReplaceAllString(s, " ")), " ")
}
