// Package semanticscholar fronts the Semantic Scholar Graph API. It is
// the most capable source: search, author search, citation graph
// traversal, DOI lookup, recommendations and open-access PDFs.
package semanticscholar

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
	providerID = "semanticscholar"

	graphURL = "https://api.semanticscholar.org/graph/v1"
	recsURL  = "https://api.semanticscholar.org/recommendations/v1"

	// paperFields is requested on every endpoint that returns papers.
	paperFields = "paperId,title,abstract,year,citationCount,url,authors,externalIds,openAccessPdf,publicationDate,venue"
)

var (
	s2IDPattern    = regexp.MustCompile(`^[0-9a-f]{40}$`)
	arxivIDPattern = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?$`)
)

type Provider struct {
	*provider.Base
	client *provider.Client
	files  *provider.FileFetcher
}

func New(client *provider.Client) *Provider {
	p := &Provider{
		Base: provider.NewBase(providerID, "Semantic Scholar",
			provider.CapSearch|provider.CapDownload|provider.CapRead|
				provider.CapCitations|provider.CapDOILookup|provider.CapAuthorSearch),
		client: client,
	}
	p.files = provider.NewFileFetcher(domain.SourceSemanticScholar, client, p.resolvePDF)
	return p
}

// ---------- Graph API types ----------

type searchResponse struct {
	Total int          `json:"total"`
	Data  []graphPaper `json:"data"`
}

type graphPaper struct {
	PaperID         string       `json:"paperId"`
	Title           string       `json:"title"`
	Abstract        string       `json:"abstract"`
	Year            int          `json:"year"`
	CitationCount   *int         `json:"citationCount"`
	URL             string       `json:"url"`
	Venue           string       `json:"venue"`
	PublicationDate string       `json:"publicationDate"`
	Authors         []authorInfo `json:"authors"`
	ExternalIDs     externalIDs  `json:"externalIds"`
	OpenAccessPDF   *oaPDF       `json:"openAccessPdf"`
}

type authorInfo struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type externalIDs struct {
	ArXiv         string `json:"ArXiv"`
	DOI           string `json:"DOI"`
	PubMed        string `json:"PubMed"`
	PubMedCentral string `json:"PubMedCentral"`
}

type oaPDF struct {
	URL string `json:"url"`
}

type citationsResponse struct {
	Data []struct {
		CitingPaper *graphPaper `json:"citingPaper"`
		CitedPaper  *graphPaper `json:"citedPaper"`
	} `json:"data"`
}

type recommendationsResponse struct {
	RecommendedPapers []graphPaper `json:"recommendedPapers"`
}

type authorSearchResponse struct {
	Data []struct {
		AuthorID string `json:"authorId"`
		Name     string `json:"name"`
	} `json:"data"`
}

type authorPapersResponse struct {
	Data []graphPaper `json:"data"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	params := url.Values{}
	params.Set("query", q.Query)
	params.Set("limit", strconv.Itoa(q.MaxResults))
	params.Set("fields", paperFields)
	if q.Year != "" {
		params.Set("year", q.Year) // the API takes the same range syntax
	}

	var sr searchResponse
	if err := p.client.GetJSON(ctx, "search", graphURL+"/paper/search?"+params.Encode(), nil, &sr); err != nil {
		return nil, err
	}
	return &domain.SearchResponse{
		Papers:       toPapers(sr.Data),
		TotalResults: sr.Total,
		Source:       domain.SourceSemanticScholar,
		Query:        q.Query,
		HasMore:      sr.Total > len(sr.Data),
	}, nil
}

// SearchByAuthor resolves the author name first, then lists that
// author's papers.
func (p *Provider) SearchByAuthor(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()
	name := strings.TrimSpace(q.Author)
	if name == "" {
		return nil, errors.InvalidRequest("author name must not be empty")
	}

	params := url.Values{}
	params.Set("query", name)
	params.Set("limit", "1")
	var ar authorSearchResponse
	if err := p.client.GetJSON(ctx, "search_by_author", graphURL+"/author/search?"+params.Encode(), nil, &ar); err != nil {
		return nil, err
	}
	if len(ar.Data) == 0 || ar.Data[0].AuthorID == "" {
		return nil, errors.NotFound(providerID, fmt.Sprintf("author %q not found", name))
	}

	params = url.Values{}
	params.Set("limit", strconv.Itoa(q.MaxResults))
	params.Set("fields", paperFields)
	var pr authorPapersResponse
	u := fmt.Sprintf("%s/author/%s/papers?%s", graphURL, ar.Data[0].AuthorID, params.Encode())
	if err := p.client.GetJSON(ctx, "search_by_author", u, nil, &pr); err != nil {
		return nil, err
	}

	resp := &domain.SearchResponse{
		Papers:       toPapers(pr.Data),
		TotalResults: len(pr.Data),
		Source:       domain.SourceSemanticScholar,
		Query:        name,
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}

func (p *Provider) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	apiID, err := p.normalizeID(id)
	if err != nil {
		return nil, err
	}
	return p.fetchPaper(ctx, "get_paper", apiID)
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}
	return p.fetchPaper(ctx, "lookup_by_doi", "DOI:"+doi)
}

func (p *Provider) Citations(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error) {
	return p.citationEdge(ctx, "get_citations", "citations", req)
}

func (p *Provider) References(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error) {
	return p.citationEdge(ctx, "get_references", "references", req)
}

func (p *Provider) Related(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error) {
	req.Normalize()
	apiID, err := p.normalizeID(req.PaperID)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(req.MaxResults))
	params.Set("fields", paperFields)
	u := fmt.Sprintf("%s/papers/forpaper/%s?%s", recsURL, apiID, params.Encode())

	var rr recommendationsResponse
	if err := p.client.GetJSON(ctx, "get_related", u, nil, &rr); err != nil {
		return nil, err
	}
	return &domain.SearchResponse{
		Papers:       toPapers(rr.RecommendedPapers),
		TotalResults: len(rr.RecommendedPapers),
		Source:       domain.SourceSemanticScholar,
		Query:        req.PaperID,
	}, nil
}

func (p *Provider) Download(ctx context.Context, req *domain.DownloadRequest) (*domain.DownloadResult, error) {
	return p.files.Download(ctx, req)
}

func (p *Provider) Read(ctx context.Context, req *domain.ReadRequest) (*domain.ReadResult, error) {
	return p.files.Read(ctx, req)
}

func (p *Provider) ValidateID(id string) error {
	_, err := p.normalizeID(id)
	return err
}

// resolvePDF asks the graph for the open-access location; many records
// have none.
func (p *Provider) resolvePDF(ctx context.Context, req *domain.DownloadRequest) (string, error) {
	id := req.PaperID
	if req.DOI != "" {
		id = req.DOI
	}
	apiID, err := p.normalizeID(id)
	if err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("fields", "openAccessPdf")
	var gp graphPaper
	u := fmt.Sprintf("%s/paper/%s?%s", graphURL, apiID, params.Encode())
	if err := p.client.GetJSON(ctx, "download_paper", u, nil, &gp); err != nil {
		return "", err
	}
	if gp.OpenAccessPDF == nil {
		return "", nil
	}
	return gp.OpenAccessPDF.URL, nil
}

// ---------- Helpers ----------

func (p *Provider) fetchPaper(ctx context.Context, op, apiID string) (*domain.Paper, error) {
	params := url.Values{}
	params.Set("fields", paperFields)
	var gp graphPaper
	u := fmt.Sprintf("%s/paper/%s?%s", graphURL, apiID, params.Encode())
	if err := p.client.GetJSON(ctx, op, u, nil, &gp); err != nil {
		return nil, err
	}
	if gp.PaperID == "" {
		return nil, errors.NotFound(providerID, fmt.Sprintf("paper %q not found", apiID))
	}
	paper := toPaper(&gp)
	return &paper, nil
}

func (p *Provider) citationEdge(ctx context.Context, op, edge string, req *domain.CitationRequest) (*domain.SearchResponse, error) {
	req.Normalize()
	apiID, err := p.normalizeID(req.PaperID)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(req.MaxResults))
	params.Set("fields", paperFields)
	u := fmt.Sprintf("%s/paper/%s/%s?%s", graphURL, apiID, edge, params.Encode())

	var cr citationsResponse
	if err := p.client.GetJSON(ctx, op, u, nil, &cr); err != nil {
		return nil, err
	}
	papers := make([]domain.Paper, 0, len(cr.Data))
	for _, d := range cr.Data {
		gp := d.CitingPaper
		if gp == nil {
			gp = d.CitedPaper
		}
		if gp == nil || gp.PaperID == "" {
			continue
		}
		papers = append(papers, toPaper(gp))
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(papers),
		Source:       domain.SourceSemanticScholar,
		Query:        req.PaperID,
	}, nil
}

// normalizeID accepts the Graph API's own prefixed ids (DOI:, ARXIV:,
// PMID:, CorpusId:), raw 40-hex sha ids, and bare DOIs, arXiv ids and
// PMIDs, which get their prefix added.
func (p *Provider) normalizeID(id string) (string, error) {
	if err := sanitize.PaperID(id); err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)

	if i := strings.IndexByte(id, ':'); i > 0 {
		prefix := strings.ToUpper(id[:i])
		switch prefix {
		case "DOI", "ARXIV", "PMID", "PMCID", "CORPUSID", "URL", "MAG", "ACL", "DBLP":
			if prefix == "CORPUSID" {
				prefix = "CorpusId"
			}
			return prefix + ":" + id[i+1:], nil
		}
	}
	if s2IDPattern.MatchString(id) {
		return id, nil
	}
	if strings.HasPrefix(id, "10.") && strings.Contains(id, "/") {
		doi, err := sanitize.CanonicalDOI(id)
		if err != nil {
			return "", err
		}
		return "DOI:" + doi, nil
	}
	if arxivIDPattern.MatchString(id) {
		return "ARXIV:" + id, nil
	}
	if isDigits(id) {
		return "PMID:" + id, nil
	}
	return "", errors.InvalidRequestf("%q is not a Semantic Scholar paper id", id)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func toPapers(gps []graphPaper) []domain.Paper {
	papers := make([]domain.Paper, 0, len(gps))
	for i := range gps {
		if gps[i].PaperID == "" {
			continue
		}
		papers = append(papers, toPaper(&gps[i]))
	}
	return papers
}

func toPaper(gp *graphPaper) domain.Paper {
	pageURL := gp.URL
	if pageURL == "" {
		pageURL = "https://www.semanticscholar.org/paper/" + gp.PaperID
	}

	names := make([]string, 0, len(gp.Authors))
	for _, a := range gp.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	date := gp.PublicationDate
	if date == "" && gp.Year > 0 {
		date = strconv.Itoa(gp.Year)
	}

	pdfURL := ""
	if gp.OpenAccessPDF != nil {
		pdfURL = gp.OpenAccessPDF.URL
	}

	b := domain.NewPaper(domain.SourceSemanticScholar, gp.PaperID, gp.Title, pageURL).
		Authors(names).
		Abstract(gp.Abstract).
		DOI(gp.ExternalIDs.DOI).
		PublishedDate(date).
		PDFURL(pdfURL).
		Extra("venue", gp.Venue).
		Extra("arxiv_id", gp.ExternalIDs.ArXiv).
		Extra("pmid", gp.ExternalIDs.PubMed)
	if gp.CitationCount != nil {
		b = b.CitationCount(*gp.CitationCount)
	}
	return b.Build()
}
