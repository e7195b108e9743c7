// Package biorxiv covers the bioRxiv and medRxiv preprint servers. Both
// sit behind the same Cold Spring Harbor API, which has no query-string
// search: the adapter pages recent submissions through the details
// endpoint and matches the query client-side.
package biorxiv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
	"research-master/internal/sanitize"
)

const (
	apiURL = "https://api.biorxiv.org/details"

	// window scanned when the query has no year filter
	defaultWindowDays = 30

	// the API serves 100 records per cursor page; this caps how many
	// pages one search will walk
	pageSize = 100
	maxPages = 5
)

// Server selects which preprint server the adapter fronts.
type Server string

const (
	ServerBioRxiv Server = "biorxiv"
	ServerMedRxiv Server = "medrxiv"
)

func (s Server) host() string {
	if s == ServerMedRxiv {
		return "https://www.medrxiv.org"
	}
	return "https://www.biorxiv.org"
}

func (s Server) source() domain.Source {
	if s == ServerMedRxiv {
		return domain.SourceMedRxiv
	}
	return domain.SourceBioRxiv
}

func (s Server) displayName() string {
	if s == ServerMedRxiv {
		return "medRxiv"
	}
	return "bioRxiv"
}

type Provider struct {
	*provider.Base
	client *provider.Client
	files  *provider.FileFetcher
	server Server
}

func New(client *provider.Client, server Server) *Provider {
	p := &Provider{
		Base: provider.NewBase(string(server), server.displayName(),
			provider.CapSearch|provider.CapDownload|provider.CapRead|provider.CapDOILookup),
		client: client,
		server: server,
	}
	p.files = provider.NewFileFetcher(server.source(), client, p.resolvePDF)
	return p
}

// ---------- API types ----------

type envelope struct {
	Messages   []message `json:"messages"`
	Collection []record  `json:"collection"`
}

type message struct {
	Status string `json:"status"`
	Total  any    `json:"total"`  // string or number depending on endpoint
	Cursor any    `json:"cursor"` // same
	Count  int    `json:"count"`
}

type record struct {
	DOI       string `json:"doi"`
	Title     string `json:"title"`
	Authors   string `json:"authors"` // already "Family, G.; Family, G."
	Date      string `json:"date"`
	Category  string `json:"category"`
	Abstract  string `json:"abstract"`
	Version   string `json:"version"`
	Published string `json:"published"` // journal DOI once published, "NA" otherwise
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()
	if strings.TrimSpace(q.Query) == "" {
		return nil, errors.InvalidRequest("query must not be empty")
	}

	from, to := p.window(q)
	terms := tokenize(q.Query)
	authorTerms := tokenize(q.Author)

	papers := make([]domain.Paper, 0, q.MaxResults)
	exhausted := false

	for page := 0; page < maxPages && len(papers) < q.MaxResults; page++ {
		url := fmt.Sprintf("%s/%s/%s/%s/%d/json", apiURL, p.server, from, to, page*pageSize)
		var env envelope
		if err := p.client.GetJSON(ctx, "search", url, nil, &env); err != nil {
			return nil, err
		}
		for i := range env.Collection {
			rec := &env.Collection[i]
			if !matches(rec, terms, authorTerms) {
				continue
			}
			papers = append(papers, p.recordToPaper(rec))
			if len(papers) == q.MaxResults {
				break
			}
		}
		if len(env.Collection) < pageSize {
			exhausted = true
			break
		}
	}

	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(papers),
		Source:       p.server.source(),
		Query:        q.Query,
		HasMore:      !exhausted && len(papers) == q.MaxResults,
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
	url := fmt.Sprintf("%s/%s/%s", apiURL, p.server, doi)
	var env envelope
	if err := p.client.GetJSON(ctx, "get_paper", url, nil, &env); err != nil {
		return nil, err
	}
	rec := latestVersion(env.Collection)
	if rec == nil {
		return nil, errors.NotFound(string(p.server), fmt.Sprintf("preprint %q not found", doi))
	}
	paper := p.recordToPaper(rec)
	return &paper, nil
}

func (p *Provider) Download(ctx context.Context, req *domain.DownloadRequest) (*domain.DownloadResult, error) {
	return p.files.Download(ctx, req)
}

func (p *Provider) Read(ctx context.Context, req *domain.ReadRequest) (*domain.ReadResult, error) {
	return p.files.Read(ctx, req)
}

func (p *Provider) ValidateID(id string) error {
	if err := sanitize.PaperID(id); err != nil {
		return err
	}
	if _, err := sanitize.CanonicalDOI(id); err != nil {
		return errors.InvalidRequestf("%q is not a %s DOI", id, p.server.displayName())
	}
	return nil
}

// resolvePDF needs the version suffix in the content URL, so it fetches
// the record first.
func (p *Provider) resolvePDF(ctx context.Context, req *domain.DownloadRequest) (string, error) {
	id := req.PaperID
	if req.DOI != "" {
		id = req.DOI
	}
	paper, err := p.GetByDOI(ctx, id)
	if err != nil {
		return "", err
	}
	return paper.PDFURL, nil
}

// ---------- Helpers ----------

func (p *Provider) window(q *domain.SearchQuery) (from, to string) {
	now := time.Now().UTC()
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		f, t := yr.From, yr.To
		if f == 0 {
			f = 2013 // bioRxiv opened in late 2013
		}
		if t == 0 {
			t = now.Year()
		}
		return fmt.Sprintf("%d-01-01", f), fmt.Sprintf("%d-12-31", t)
	}
	return now.AddDate(0, 0, -defaultWindowDays).Format("2006-01-02"), now.Format("2006-01-02")
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// matches requires every query term in title/abstract/category and every
// author term in the author list.
func matches(rec *record, terms, authorTerms []string) bool {
	if len(terms) == 0 && len(authorTerms) == 0 {
		return false
	}
	haystack := strings.ToLower(rec.Title + " " + rec.Abstract + " " + rec.Category)
	for _, t := range terms {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	authors := strings.ToLower(rec.Authors)
	for _, t := range authorTerms {
		if !strings.Contains(authors, t) {
			return false
		}
	}
	return true
}

func latestVersion(recs []record) *record {
	var best *record
	bestV := -1
	for i := range recs {
		v, err := strconv.Atoi(recs[i].Version)
		if err != nil {
			v = 0
		}
		if v > bestV {
			best, bestV = &recs[i], v
		}
	}
	return best
}

func (p *Provider) recordToPaper(rec *record) domain.Paper {
	doi := domain.NormalizeDOI(rec.DOI)
	version := rec.Version
	if version == "" {
		version = "1"
	}
	contentURL := fmt.Sprintf("%s/content/%sv%s", p.server.host(), doi, version)

	b := domain.NewPaper(p.server.source(), doi, rec.Title, contentURL).
		AuthorsJoined(rec.Authors).
		Abstract(rec.Abstract).
		DOI(doi).
		PublishedDate(rec.Date).
		PDFURL(contentURL + ".full.pdf").
		Categories([]string{rec.Category}).
		Extra("version", version)
	if rec.Published != "" && !strings.EqualFold(rec.Published, "NA") {
		b = b.Extra("journal_doi", domain.NormalizeDOI(rec.Published))
	}
	return b.Build()
}
