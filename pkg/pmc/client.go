// Package pmc searches PubMed Central, the full-text side of NCBI.
// Unlike PubMed proper, PMC records carry an open-access PDF, so this
// adapter supports download and read. PDFs come from the NCBI article
// page with the Europe PMC render service as fallback.
package pmc

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
	"research-master/internal/sanitize"
)

const (
	providerID = "pmc"
	esearchURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	efetchURL  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
	articleURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/"
)

var pmcPattern = regexp.MustCompile(`^(PMC)?\d{1,9}$`)

type Provider struct {
	*provider.Base
	client   *provider.Client
	files    *provider.FileFetcher
	fallback *provider.FileFetcher
	apiKey   string
}

func New(client *provider.Client, apiKey string) *Provider {
	p := &Provider{
		Base: provider.NewBase(providerID, "PubMed Central",
			provider.CapSearch|provider.CapDownload|provider.CapRead),
		client: client,
		apiKey: apiKey,
	}
	p.files = provider.NewFileFetcher(domain.SourcePMC, client, p.resolvePDF)
	p.fallback = provider.NewFileFetcher(domain.SourcePMC, client, p.resolveFallbackPDF)
	return p
}

// ---------- E-utilities XML ----------

type esearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDs     []string `xml:"IdList>Id"`
}

// efetch on db=pmc returns JATS article sets.
type articleSet struct {
	XMLName  xml.Name  `xml:"pmc-articleset"`
	Articles []article `xml:"article"`
}

type article struct {
	JournalTitle string      `xml:"front>journal-meta>journal-title-group>journal-title"`
	IDs          []articleID `xml:"front>article-meta>article-id"`
	Title        string      `xml:"front>article-meta>title-group>article-title"`
	Contribs     []contrib   `xml:"front>article-meta>contrib-group>contrib"`
	PubDates     []pubDate   `xml:"front>article-meta>pub-date"`
	AbstractPs   []string    `xml:"front>article-meta>abstract>p"`
	Keywords     []string    `xml:"front>article-meta>kwd-group>kwd"`
}

type articleID struct {
	Type  string `xml:"pub-id-type,attr"`
	Value string `xml:",chardata"`
}

type contrib struct {
	Type    string `xml:"contrib-type,attr"`
	Surname string `xml:"name>surname"`
	Given   string `xml:"name>given-names"`
}

type pubDate struct {
	Type  string `xml:"pub-type,attr"`
	Day   string `xml:"day"`
	Month string `xml:"month"`
	Year  string `xml:"year"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	params := url.Values{}
	params.Set("db", "pmc")
	params.Set("term", buildTerm(q))
	params.Set("retmax", strconv.Itoa(q.MaxResults))
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		from, to := yr.From, yr.To
		if from == 0 {
			from = 1800
		}
		if to == 0 {
			to = time.Now().Year()
		}
		params.Set("datetype", "pdat")
		params.Set("mindate", strconv.Itoa(from))
		params.Set("maxdate", strconv.Itoa(to))
	}
	p.sign(params)

	var sr esearchResult
	if err := p.client.GetXML(ctx, "search", esearchURL+"?"+params.Encode(), nil, &sr); err != nil {
		return nil, err
	}
	if len(sr.IDs) == 0 {
		return &domain.SearchResponse{
			Papers: []domain.Paper{},
			Source: domain.SourcePMC,
			Query:  q.Query,
		}, nil
	}

	papers, err := p.fetchArticles(ctx, "search", sr.IDs)
	if err != nil {
		return nil, err
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: sr.Count,
		Source:       domain.SourcePMC,
		Query:        q.Query,
		HasMore:      sr.Count > len(papers),
	}, nil
}

func (p *Provider) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	if err := p.ValidateID(id); err != nil {
		return nil, err
	}
	papers, err := p.fetchArticles(ctx, "get_paper", []string{digits(id)})
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("paper %q not found", id))
	}
	return &papers[0], nil
}

// Download tries the NCBI article PDF first and falls back to the
// Europe PMC render service, which serves many articles NCBI blocks.
func (p *Provider) Download(ctx context.Context, req *domain.DownloadRequest) (*domain.DownloadResult, error) {
	res, err := p.files.Download(ctx, req)
	if err == nil || errors.IsInvalidRequest(err) || ctx.Err() != nil {
		return res, err
	}
	return p.fallback.Download(ctx, req)
}

func (p *Provider) Read(ctx context.Context, req *domain.ReadRequest) (*domain.ReadResult, error) {
	res, err := p.files.Read(ctx, req)
	if err == nil || errors.IsInvalidRequest(err) || ctx.Err() != nil {
		return res, err
	}
	return p.fallback.Read(ctx, req)
}

func (p *Provider) ValidateID(id string) error {
	if err := sanitize.PaperID(id); err != nil {
		return err
	}
	if !pmcPattern.MatchString(strings.ToUpper(strings.TrimSpace(id))) {
		return errors.InvalidRequestf("%q is not a PMC id", id)
	}
	return nil
}

func (p *Provider) resolvePDF(_ context.Context, req *domain.DownloadRequest) (string, error) {
	return articleURL + CanonicalID(req.PaperID) + "/pdf/", nil
}

func (p *Provider) resolveFallbackPDF(_ context.Context, req *domain.DownloadRequest) (string, error) {
	return "https://europepmc.org/articles/" + CanonicalID(req.PaperID) + "?pdf=render", nil
}

func (p *Provider) fetchArticles(ctx context.Context, op string, uids []string) ([]domain.Paper, error) {
	params := url.Values{}
	params.Set("db", "pmc")
	params.Set("id", strings.Join(uids, ","))
	params.Set("retmode", "xml")
	p.sign(params)

	var set articleSet
	if err := p.client.GetXML(ctx, op, efetchURL+"?"+params.Encode(), nil, &set); err != nil {
		return nil, err
	}
	papers := make([]domain.Paper, 0, len(set.Articles))
	for i := range set.Articles {
		if paper := articleToPaper(&set.Articles[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return papers, nil
}

func (p *Provider) sign(params url.Values) {
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
}

// ---------- Helpers ----------

// CanonicalID renders a PMC identifier in its display form: "PMC"
// followed by digits.
func CanonicalID(id string) string {
	return "PMC" + digits(id)
}

func digits(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(strings.ToUpper(id), "PMC") {
		return id[3:]
	}
	return id
}

func buildTerm(q *domain.SearchQuery) string {
	var clauses []string
	if q.Query != "" {
		clauses = append(clauses, q.Query)
	}
	if q.Author != "" {
		clauses = append(clauses, fmt.Sprintf("%s[Author]", q.Author))
	}
	return strings.Join(clauses, " AND ")
}

func articleToPaper(a *article) *domain.Paper {
	var pmcDigits, doi string
	for _, id := range a.IDs {
		switch id.Type {
		case "pmc":
			pmcDigits = strings.TrimSpace(id.Value)
		case "doi":
			doi = strings.TrimSpace(id.Value)
		}
	}
	if pmcDigits == "" {
		return nil
	}
	canonical := CanonicalID(pmcDigits)

	names := make([]string, 0, len(a.Contribs))
	for _, c := range a.Contribs {
		if c.Type != "" && c.Type != "author" {
			continue
		}
		name := strings.TrimSpace(c.Given + " " + c.Surname)
		if name != "" {
			names = append(names, name)
		}
	}

	paper := domain.NewPaper(domain.SourcePMC, canonical, a.Title, articleURL+canonical+"/").
		Authors(names).
		Abstract(strings.Join(a.AbstractPs, "\n\n")).
		DOI(doi).
		PublishedDate(pickDate(a.PubDates)).
		PDFURL(articleURL + canonical + "/pdf/").
		Keywords(a.Keywords).
		Extra("journal", a.JournalTitle).
		Build()
	return &paper
}

// pickDate prefers the electronic publication date, then print, then
// whatever carries a year.
func pickDate(dates []pubDate) string {
	best := -1
	rank := func(t string) int {
		switch t {
		case "epub":
			return 0
		case "ppub":
			return 1
		default:
			return 2
		}
	}
	for i, d := range dates {
		if strings.TrimSpace(d.Year) == "" {
			continue
		}
		if best == -1 || rank(d.Type) < rank(dates[best].Type) {
			best = i
		}
	}
	if best == -1 {
		return ""
	}
	return isoDate(dates[best])
}

func isoDate(d pubDate) string {
	year := strings.TrimSpace(d.Year)
	if len(year) != 4 {
		return ""
	}
	m, err := strconv.Atoi(strings.TrimSpace(d.Month))
	if err != nil || m < 1 || m > 12 {
		return year
	}
	out := fmt.Sprintf("%s-%02d", year, m)
	if day, err := strconv.Atoi(strings.TrimSpace(d.Day)); err == nil && day >= 1 && day <= 31 {
		out += fmt.Sprintf("-%02d", day)
	}
	return out
}
