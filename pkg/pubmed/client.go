// Package pubmed searches MEDLINE through the NCBI E-utilities: esearch
// resolves the query to PMIDs, efetch returns the article records.
package pubmed

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
	providerID = "pubmed"
	esearchURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	efetchURL  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

var pmidPattern = regexp.MustCompile(`^\d{1,9}$`)

type Provider struct {
	*provider.Base
	client *provider.Client
	apiKey string
}

// New builds the adapter. The NCBI api key is optional; with one, NCBI
// raises the per-second quota.
func New(client *provider.Client, apiKey string) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "PubMed", provider.CapSearch|provider.CapAuthorSearch),
		client: client,
		apiKey: apiKey,
	}
}

// ---------- E-utilities XML ----------

type esearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDs     []string `xml:"IdList>Id"`
}

type articleSet struct {
	XMLName  xml.Name  `xml:"PubmedArticleSet"`
	Articles []article `xml:"PubmedArticle"`
}

type article struct {
	Citation citation   `xml:"MedlineCitation"`
	Data     pubmedData `xml:"PubmedData"`
}

type citation struct {
	PMID     string   `xml:"PMID"`
	Article  details  `xml:"Article"`
	Keywords []string `xml:"KeywordList>Keyword"`
}

type details struct {
	Journal       journal        `xml:"Journal"`
	Title         string         `xml:"ArticleTitle"`
	AbstractTexts []abstractText `xml:"Abstract>AbstractText"`
	Authors       []author       `xml:"AuthorList>Author"`
}

type journal struct {
	Title   string  `xml:"Title"`
	PubDate pubDate `xml:"JournalIssue>PubDate"`
}

type pubDate struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

type author struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	CollectiveName string `xml:"CollectiveName"`
}

type pubmedData struct {
	ArticleIDs []articleID `xml:"ArticleIdList>ArticleId"`
}

type articleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", buildTerm(q))
	params.Set("retmax", strconv.Itoa(q.MaxResults))
	params.Set("retmode", "xml")
	params.Set("sort", sortParam(q.SortBy))
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
			Source: domain.SourcePubMed,
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
		Source:       domain.SourcePubMed,
		Query:        q.Query,
		HasMore:      sr.Count > len(papers),
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
	papers, err := p.fetchArticles(ctx, "get_paper", []string{strings.TrimSpace(id)})
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("PMID %q not found", id))
	}
	return &papers[0], nil
}

func (p *Provider) ValidateID(id string) error {
	if err := sanitize.PaperID(id); err != nil {
		return err
	}
	if !pmidPattern.MatchString(strings.TrimSpace(id)) {
		return errors.InvalidRequestf("%q is not a PMID", id)
	}
	return nil
}

// fetchArticles is the efetch step; one batched request covers every
// PMID from the search.
func (p *Provider) fetchArticles(ctx context.Context, op string, pmids []string) ([]domain.Paper, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")
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

func sortParam(sortBy string) string {
	switch sortBy {
	case domain.SortDate:
		return "pub_date"
	case domain.SortAuthor:
		return "Author"
	default:
		return "relevance"
	}
}

func articleToPaper(a *article) *domain.Paper {
	pmid := strings.TrimSpace(a.Citation.PMID)
	if pmid == "" {
		return nil
	}

	var doi, pmcID string
	for _, id := range a.Data.ArticleIDs {
		switch id.IDType {
		case "doi":
			doi = strings.TrimSpace(id.Value)
		case "pmc":
			pmcID = strings.TrimSpace(id.Value)
		}
	}

	pdfURL := ""
	if pmcID != "" {
		pdfURL = fmt.Sprintf("https://www.ncbi.nlm.nih.gov/pmc/articles/%s/pdf/", pmcID)
	}

	b := domain.NewPaper(domain.SourcePubMed, pmid, a.Citation.Article.Title,
		fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", pmid)).
		Authors(authorNames(a.Citation.Article.Authors)).
		Abstract(joinAbstract(a.Citation.Article.AbstractTexts)).
		DOI(doi).
		PublishedDate(isoPubDate(a.Citation.Article.Journal.PubDate)).
		PDFURL(pdfURL).
		Keywords(a.Citation.Keywords).
		Extra("journal", a.Citation.Article.Journal.Title).
		Extra("pmc_id", pmcID)

	paper := b.Build()
	return &paper
}

func authorNames(authors []author) []string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		name := strings.TrimSpace(a.ForeName + " " + a.LastName)
		if name == "" {
			name = strings.TrimSpace(a.CollectiveName)
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// joinAbstract keeps structured-abstract section labels
// ("BACKGROUND: ...") the way PubMed renders them.
func joinAbstract(texts []abstractText) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		s := strings.TrimSpace(t.Text)
		if s == "" {
			continue
		}
		if t.Label != "" {
			s = t.Label + ": " + s
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

var monthNumbers = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04",
	"may": "05", "jun": "06", "jul": "07", "aug": "08",
	"sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

// isoPubDate renders PubMed's Year/Month/Day triple (month may be a name
// or a number, day and month may be absent) as an ISO date prefix.
func isoPubDate(d pubDate) string {
	year := strings.TrimSpace(d.Year)
	if len(year) != 4 {
		return ""
	}
	month := strings.ToLower(strings.TrimSpace(d.Month))
	if m, ok := monthNumbers[month]; ok {
		month = m
	} else if n, err := strconv.Atoi(month); err == nil && n >= 1 && n <= 12 {
		month = fmt.Sprintf("%02d", n)
	} else {
		return year
	}
	day := strings.TrimSpace(d.Day)
	if n, err := strconv.Atoi(day); err == nil && n >= 1 && n <= 31 {
		return fmt.Sprintf("%s-%s-%02d", year, month, n)
	}
	return year + "-" + month
}
