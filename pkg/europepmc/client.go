// Package europepmc fronts the Europe PMC RESTful API, which aggregates
// MEDLINE, PMC and preprint records. Identifiers are "SRC/extid" pairs
// (MED/34567890, PMC/PMC8675309) because the citation endpoints address
// records that way; bare PMIDs are accepted and mapped to MED.
package europepmc

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
	providerID = "europepmc"
	restURL    = "https://www.ebi.ac.uk/europepmc/webservices/rest"
)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base: provider.NewBase(providerID, "Europe PMC",
			provider.CapSearch|provider.CapCitations|provider.CapDOILookup),
		client: client,
	}
}

// ---------- API types ----------

type searchEnvelope struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []record `json:"result"`
	} `json:"resultList"`
}

type record struct {
	ID                   string `json:"id"`
	Source               string `json:"source"`
	PMID                 string `json:"pmid"`
	PMCID                string `json:"pmcid"`
	DOI                  string `json:"doi"`
	Title                string `json:"title"`
	AuthorString         string `json:"authorString"`
	AbstractText         string `json:"abstractText"`
	JournalTitle         string `json:"journalTitle"`
	PubYear              string `json:"pubYear"`
	FirstPublicationDate string `json:"firstPublicationDate"`
	CitedByCount         int    `json:"citedByCount"`
	KeywordList          struct {
		Keyword []string `json:"keyword"`
	} `json:"keywordList"`
	JournalInfo struct {
		Journal struct {
			Title string `json:"title"`
		} `json:"journal"`
	} `json:"journalInfo"`
	FullTextURLList struct {
		FullTextURL []fullTextURL `json:"fullTextUrl"`
	} `json:"fullTextUrlList"`
}

type fullTextURL struct {
	Availability  string `json:"availability"`
	DocumentStyle string `json:"documentStyle"`
	URL           string `json:"url"`
}

type citationEnvelope struct {
	HitCount     int `json:"hitCount"`
	CitationList struct {
		Citation []record `json:"citation"`
	} `json:"citationList"`
	ReferenceList struct {
		Reference []record `json:"reference"`
	} `json:"referenceList"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + fmt.Sprintf(" AND AUTH:%q", q.Author))
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		terms = strings.TrimSpace(terms + " AND " + yearClause(yr))
	}

	params := url.Values{}
	params.Set("query", terms)
	params.Set("format", "json")
	params.Set("resultType", "core")
	params.Set("pageSize", strconv.Itoa(q.MaxResults))
	switch q.SortBy {
	case domain.SortDate:
		params.Set("sort", "P_PDATE_D desc")
	case domain.SortCitations:
		params.Set("sort", "CITED desc")
	}

	var env searchEnvelope
	if err := p.client.GetJSON(ctx, "search", restURL+"/search?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}
	return recordsToResponse(env.ResultList.Result, env.HitCount, q.Query), nil
}

func (p *Provider) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	src, ext, err := splitSourceID(id)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("query", fmt.Sprintf("EXT_ID:%s AND SRC:%s", ext, src))
	params.Set("format", "json")
	params.Set("resultType", "core")
	params.Set("pageSize", "1")

	var env searchEnvelope
	if err := p.client.GetJSON(ctx, "get_paper", restURL+"/search?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}
	if len(env.ResultList.Result) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("record %q not found", id))
	}
	return recordToPaper(&env.ResultList.Result[0]), nil
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("query", fmt.Sprintf("DOI:%q", doi))
	params.Set("format", "json")
	params.Set("resultType", "core")
	params.Set("pageSize", "1")

	var env searchEnvelope
	if err := p.client.GetJSON(ctx, "lookup_by_doi", restURL+"/search?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}
	if len(env.ResultList.Result) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("DOI %q not found", doi))
	}
	return recordToPaper(&env.ResultList.Result[0]), nil
}

func (p *Provider) Citations(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error) {
	return p.links(ctx, "get_citations", "citations", req)
}

func (p *Provider) References(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error) {
	return p.links(ctx, "get_references", "references", req)
}

func (p *Provider) ValidateID(id string) error {
	if err := sanitize.PaperID(id); err != nil {
		return err
	}
	_, _, err := splitSourceID(id)
	return err
}

// ---------- Helpers ----------

func (p *Provider) links(ctx context.Context, op, kind string, req *domain.CitationRequest) (*domain.SearchResponse, error) {
	req.Normalize()
	src, ext, err := splitSourceID(req.PaperID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("pageSize", strconv.Itoa(req.MaxResults))
	endpoint := fmt.Sprintf("%s/%s/%s/%s?%s", restURL, src, url.PathEscape(ext), kind, params.Encode())

	var env citationEnvelope
	if err := p.client.GetJSON(ctx, op, endpoint, nil, &env); err != nil {
		return nil, err
	}
	records := env.CitationList.Citation
	if kind == "references" {
		records = env.ReferenceList.Reference
	}
	return recordsToResponse(records, env.HitCount, req.PaperID), nil
}

// splitSourceID parses "SRC/extid", bare PMIDs (→ MED) and bare PMC ids
// (→ PMC).
func splitSourceID(id string) (src, ext string, err error) {
	id = strings.TrimSpace(id)
	if i := strings.IndexByte(id, '/'); i > 0 {
		src, ext = strings.ToUpper(id[:i]), id[i+1:]
		if src == "" || ext == "" || strings.Contains(ext, "/") {
			return "", "", errors.InvalidRequestf("invalid europepmc id %q", id)
		}
		return src, ext, nil
	}
	if upper := strings.ToUpper(id); strings.HasPrefix(upper, "PMC") {
		return "PMC", upper, nil
	}
	if id != "" && allDigits(id) {
		return "MED", id, nil
	}
	return "", "", errors.InvalidRequestf("invalid europepmc id %q", id)
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func recordsToResponse(records []record, total int, query string) *domain.SearchResponse {
	papers := make([]domain.Paper, 0, len(records))
	for i := range records {
		if paper := recordToPaper(&records[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: total,
		Source:       domain.SourceEuropePMC,
		Query:        query,
		HasMore:      total > len(papers),
	}
}

func recordToPaper(r *record) *domain.Paper {
	if r.ID == "" || r.Title == "" {
		return nil
	}
	src := r.Source
	if src == "" {
		src = "MED"
	}
	paperID := src + "/" + r.ID

	pageURL := "https://europepmc.org/article/" + src + "/" + r.ID

	published := r.FirstPublicationDate
	if published == "" {
		published = r.PubYear
	}

	journal := r.JournalTitle
	if journal == "" {
		journal = r.JournalInfo.Journal.Title
	}

	pdfURL := ""
	for _, ft := range r.FullTextURLList.FullTextURL {
		if strings.EqualFold(ft.DocumentStyle, "pdf") && ft.URL != "" {
			pdfURL = ft.URL
			break
		}
	}

	paper := domain.NewPaper(domain.SourceEuropePMC, paperID, r.Title, pageURL).
		AuthorsJoined(strings.ReplaceAll(strings.TrimSuffix(r.AuthorString, "."), ", ", "; ")).
		Abstract(r.AbstractText).
		DOI(r.DOI).
		PublishedDate(published).
		PDFURL(pdfURL).
		Keywords(r.KeywordList.Keyword).
		CitationCount(r.CitedByCount).
		Extra("journal", journal).
		Extra("pmid", r.PMID).
		Extra("pmcid", r.PMCID).
		Build()
	return &paper
}

func yearClause(yr domain.YearRange) string {
	from, to := 1000, 3000
	if yr.From != 0 {
		from = yr.From
	}
	if yr.To != 0 {
		to = yr.To
	}
	return fmt.Sprintf("(PUB_YEAR:[%d TO %d])", from, to)
}
