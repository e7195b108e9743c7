// Package dblp fronts the DBLP computer-science bibliography. The publ
// search endpoint occasionally emits XML that trips the decoder (stray
// entities in old records), so parsing falls back to lifting hit blocks
// with regular expressions before giving up.
package dblp

import (
	"context"
	"encoding/xml"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
)

const (
	providerID = "dblp"
	apiURL     = "https://dblp.org/search/publ/api"
)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "DBLP", provider.CapSearch|provider.CapAuthorSearch),
		client: client,
	}
}

// ---------- API types ----------

type resultEnvelope struct {
	XMLName xml.Name `xml:"result"`
	Hits    struct {
		Total int   `xml:"total,attr"`
		Hits  []hit `xml:"hit"`
	} `xml:"hits"`
}

type hit struct {
	Info hitInfo `xml:"info"`
}

type hitInfo struct {
	Title   string   `xml:"title"`
	Authors []string `xml:"authors>author"`
	Venue   string   `xml:"venue"`
	Year    string   `xml:"year"`
	Type    string   `xml:"type"`
	Key     string   `xml:"key"`
	DOI     string   `xml:"doi"`
	EE      string   `xml:"ee"`
	URL     string   `xml:"url"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + " " + q.Author)
	}
	return p.search(ctx, "search", terms, q)
}

func (p *Provider) SearchByAuthor(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()
	if q.Author == "" {
		return nil, errors.InvalidRequest("author must not be empty")
	}

	terms := strings.TrimSpace(q.Author + " " + q.Query)
	return p.search(ctx, "search_by_author", terms, q)
}

// ---------- Helpers ----------

func (p *Provider) search(ctx context.Context, op, terms string, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	params := url.Values{}
	params.Set("q", terms)
	params.Set("format", "xml")
	params.Set("h", strconv.Itoa(q.MaxResults))

	body, err := p.client.GetBytes(ctx, op, apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var env resultEnvelope
	var infos []hitInfo
	total := 0
	if err := xml.Unmarshal(body, &env); err == nil {
		total = env.Hits.Total
		for i := range env.Hits.Hits {
			infos = append(infos, env.Hits.Hits[i].Info)
		}
	} else {
		infos = scrapeHits(body)
		total = len(infos)
		if len(infos) == 0 {
			return nil, errors.Parse(providerID, "decoding search response", err)
		}
	}

	papers := make([]domain.Paper, 0, len(infos))
	for i := range infos {
		if paper := infoToPaper(&infos[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	resp := &domain.SearchResponse{
		Papers:       papers,
		TotalResults: total,
		Source:       domain.SourceDBLP,
		Query:        q.Query,
		HasMore:      total > len(papers),
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}

func infoToPaper(in *hitInfo) *domain.Paper {
	title := strings.TrimSuffix(strings.TrimSpace(in.Title), ".")
	if title == "" || in.Key == "" {
		return nil
	}

	pageURL := in.URL
	if pageURL == "" {
		pageURL = "https://dblp.org/rec/" + in.Key
	}

	pdfURL := ""
	if strings.HasSuffix(strings.ToLower(in.EE), ".pdf") {
		pdfURL = in.EE
	}

	paper := domain.NewPaper(domain.SourceDBLP, in.Key, title, pageURL).
		Authors(in.Authors).
		DOI(in.DOI).
		PublishedDate(in.Year).
		PDFURL(pdfURL).
		Extra("venue", in.Venue).
		Extra("type", in.Type).
		Extra("ee", in.EE).
		Build()
	return &paper
}

// ---------- Regex fallback ----------

var (
	hitBlockRe = regexp.MustCompile(`(?s)<hit[ >].*?</hit>`)
	titleRe    = regexp.MustCompile(`(?s)<title>(.*?)</title>`)
	authorRe   = regexp.MustCompile(`(?s)<author[^>]*>(.*?)</author>`)
	yearRe     = regexp.MustCompile(`<year>(\d{4})</year>`)
	keyRe      = regexp.MustCompile(`(?s)<key>(.*?)</key>`)
	doiRe      = regexp.MustCompile(`(?s)<doi>(.*?)</doi>`)
	urlRe      = regexp.MustCompile(`(?s)<url>(.*?)</url>`)
	eeRe       = regexp.MustCompile(`(?s)<ee>(.*?)</ee>`)
	venueRe    = regexp.MustCompile(`(?s)<venue>(.*?)</venue>`)
)

// scrapeHits recovers what it can from a response the XML decoder
// rejected. Fields that fail to match are simply absent.
func scrapeHits(body []byte) []hitInfo {
	var infos []hitInfo
	for _, block := range hitBlockRe.FindAll(body, -1) {
		var in hitInfo
		in.Title = matchOne(titleRe, block)
		in.Key = matchOne(keyRe, block)
		in.Year = matchOne(yearRe, block)
		in.DOI = matchOne(doiRe, block)
		in.URL = matchOne(urlRe, block)
		in.EE = matchOne(eeRe, block)
		in.Venue = matchOne(venueRe, block)
		for _, m := range authorRe.FindAllSubmatch(block, -1) {
			in.Authors = append(in.Authors, unescape(string(m[1])))
		}
		if in.Title != "" && in.Key != "" {
			in.Title = unescape(in.Title)
			infos = append(infos, in)
		}
	}
	return infos
}

func matchOne(re *regexp.Regexp, block []byte) string {
	m := re.FindSubmatch(block)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(string(m[1]))
}

func unescape(s string) string {
	r := strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&apos;", "'", "&#34;", `"`, "&#39;", "'",
	)
	return strings.TrimSpace(r.Replace(s))
}
