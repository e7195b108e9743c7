// Package iacr fronts the IACR Cryptology ePrint Archive. There is no
// JSON API: search scrapes the results page and detail lookups read the
// citation_* meta tags every ePrint page carries. Identifiers are the
// archive's "YYYY/NNN" form and PDFs live at a predictable URL.
package iacr

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
	"research-master/internal/sanitize"
)

const (
	providerID = "iacr"
	baseURL    = "https://eprint.iacr.org"
)

var eprintID = regexp.MustCompile(`^(\d{4})/(\d+)$`)

type Provider struct {
	*provider.Base
	client *provider.Client
	files  *provider.FileFetcher
}

func New(client *provider.Client) *Provider {
	p := &Provider{
		Base: provider.NewBase(providerID, "IACR ePrint",
			provider.CapSearch|provider.CapDownload|provider.CapRead),
		client: client,
	}
	p.files = provider.NewFileFetcher(domain.SourceIACR, client, p.resolvePDF)
	return p
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + " " + q.Author)
	}
	params := url.Values{}
	params.Set("q", terms)

	body, err := p.client.GetBytes(ctx, "search", baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Parse(providerID, "parsing search page", err)
	}

	container := doc.Find("div.results")
	if container.Length() == 0 {
		return nil, errors.Parse(providerID, "search page layout changed: no results container", nil)
	}

	var papers []domain.Paper
	container.Find("div.mb-4").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(papers) == q.MaxResults {
			return false
		}
		if paper := resultToPaper(sel); paper != nil {
			papers = append(papers, *paper)
		}
		return true
	})

	resp := &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(papers),
		Source:       domain.SourceIACR,
		Query:        q.Query,
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}

func (p *Provider) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}

	body, err := p.client.GetBytes(ctx, "get_paper", baseURL+"/"+id, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Parse(providerID, "parsing paper page", err)
	}

	title := metaContent(doc, "citation_title")
	if title == "" {
		return nil, errors.Parse(providerID, "paper page layout changed: no citation_title", nil)
	}

	var authors []string
	doc.Find(`meta[name="citation_author"]`).Each(func(_ int, sel *goquery.Selection) {
		if name, ok := sel.Attr("content"); ok && name != "" {
			authors = append(authors, name)
		}
	})

	abstract := strings.TrimSpace(doc.Find("p#abstract").Text())
	if abstract == "" {
		abstract = metaContent(doc, "citation_abstract")
	}

	paper := domain.NewPaper(domain.SourceIACR, id, title, baseURL+"/"+id).
		Authors(authors).
		Abstract(abstract).
		PublishedDate(domain.ISODate(strings.ReplaceAll(metaContent(doc, "citation_online_date"), "/", "-"))).
		PDFURL(baseURL + "/" + id + ".pdf").
		Keywords(splitKeywords(metaContent(doc, "citation_keywords"))).
		Build()
	return &paper, nil
}

func (p *Provider) Download(ctx context.Context, req *domain.DownloadRequest) (*domain.DownloadResult, error) {
	return p.files.Download(ctx, req)
}

func (p *Provider) Read(ctx context.Context, req *domain.ReadRequest) (*domain.ReadResult, error) {
	return p.files.Read(ctx, req)
}

func (p *Provider) ValidateID(id string) error {
	_, err := canonicalID(id)
	return err
}

// ---------- Helpers ----------

func (p *Provider) resolvePDF(_ context.Context, req *domain.DownloadRequest) (string, error) {
	id, err := canonicalID(req.PaperID)
	if err != nil {
		return "", err
	}
	return baseURL + "/" + id + ".pdf", nil
}

// canonicalID reduces accepted spellings (URLs, .pdf suffix) to YYYY/NNN.
func canonicalID(id string) (string, error) {
	if err := sanitize.PaperID(id); err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	for _, prefix := range []string{baseURL + "/", "eprint.iacr.org/"} {
		if strings.HasPrefix(id, prefix) {
			id = id[len(prefix):]
			break
		}
	}
	id = strings.TrimSuffix(id, ".pdf")
	if !eprintID.MatchString(id) {
		return "", errors.InvalidRequestf("invalid eprint id %q (want YYYY/NNN)", id)
	}
	return id, nil
}

func resultToPaper(sel *goquery.Selection) *domain.Paper {
	id := ""
	sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = strings.TrimPrefix(href, baseURL)
		href = strings.TrimPrefix(href, "/")
		if eprintID.MatchString(href) {
			id = href
			return false
		}
		return true
	})
	if id == "" {
		return nil
	}

	title := strings.TrimSpace(sel.Find("strong a").First().Text())
	if title == "" {
		title = strings.TrimSpace(sel.Find("strong").First().Text())
	}
	if title == "" {
		return nil
	}

	authorText := strings.TrimSpace(sel.Find("span.fst-italic").First().Text())
	abstract := strings.TrimSpace(sel.Find("p.search-abstract").First().Text())

	paper := domain.NewPaper(domain.SourceIACR, id, title, baseURL+"/"+id).
		Authors(splitAuthors(authorText)).
		Abstract(abstract).
		PublishedDate(id[:4]).
		PDFURL(baseURL + "/" + id + ".pdf").
		Build()
	return &paper
}

func splitAuthors(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, " and ", ", ")
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func metaContent(doc *goquery.Document, name string) string {
	v, _ := doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).First().Attr("content")
	return strings.TrimSpace(v)
}
