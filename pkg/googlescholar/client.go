// Package googlescholar scrapes Google Scholar results. Scholar has no
// API and blocks anything that smells automated, so the adapter ships
// disabled and must be switched on explicitly; the wiring gives it the
// strict retry policy to keep 429 storms short.
package googlescholar

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
)

const (
	providerID = "googlescholar"
	siteURL    = "https://scholar.google.com"
)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "Google Scholar", provider.CapSearch),
		client: client,
	}
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + ` author:"` + q.Author + `"`)
	}
	params := url.Values{}
	params.Set("q", terms)
	params.Set("hl", "en")
	params.Set("num", strconv.Itoa(q.MaxResults))
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		if yr.From != 0 {
			params.Set("as_ylo", strconv.Itoa(yr.From))
		}
		if yr.To != 0 {
			params.Set("as_yhi", strconv.Itoa(yr.To))
		}
	}

	body, err := p.client.GetBytes(ctx, "search", siteURL+"/scholar?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Parse(providerID, "parsing results page", err)
	}
	if doc.Find("div.gs_r").Length() == 0 && doc.Find("#gs_captcha_f").Length() > 0 {
		return nil, errors.RateLimited(providerID, 0)
	}

	var papers []domain.Paper
	doc.Find("div.gs_r").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(papers) == q.MaxResults {
			return false
		}
		if paper := resultToPaper(sel); paper != nil {
			papers = append(papers, *paper)
		}
		return true
	})

	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(papers),
		Source:       domain.SourceGoogleScholar,
		Query:        q.Query,
	}, nil
}

// ---------- Helpers ----------

var (
	citedByRe = regexp.MustCompile(`Cited by (\d+)`)
	yearRe    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

func resultToPaper(sel *goquery.Selection) *domain.Paper {
	heading := sel.Find("h3.gs_rt").First()
	if heading.Length() == 0 {
		return nil
	}
	link := heading.Find("a").First()
	title := strings.Join(strings.Fields(link.Text()), " ")
	pageURL, _ := link.Attr("href")
	if title == "" {
		// Bracketed citation-only entries carry the title directly.
		title = strings.Join(strings.Fields(heading.Text()), " ")
		title = strings.TrimSpace(strings.TrimPrefix(title, "[CITATION]"))
	}
	if title == "" {
		return nil
	}
	if pageURL == "" {
		pageURL = siteURL
	}

	authors, venue, year := parseByline(sel.Find("div.gs_a").First().Text())

	id := pageURL
	if id == siteURL {
		id = title
	}

	builder := domain.NewPaper(domain.SourceGoogleScholar, id, title, pageURL).
		Authors(authors).
		Abstract(strings.TrimSpace(sel.Find("div.gs_rs").First().Text())).
		PublishedDate(year).
		PDFURL(sel.Find("div.gs_ggs a").First().AttrOr("href", "")).
		Extra("venue", venue)

	if m := citedByRe.FindStringSubmatch(sel.Find("div.gs_fl").Text()); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			builder = builder.CitationCount(n)
		}
	}
	paper := builder.Build()
	return &paper
}

// parseByline splits Scholar's "A Author, B Author - Venue, 2019 - host"
// line into its parts. Every segment is optional in practice.
func parseByline(s string) (authors []string, venue, year string) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return nil, "", ""
	}
	segments := strings.Split(s, " - ")

	for _, name := range strings.Split(segments[0], ",") {
		if name = strings.TrimSpace(name); name != "" && name != "…" {
			authors = append(authors, name)
		}
	}
	if len(segments) > 1 {
		mid := segments[1]
		if m := yearRe.FindString(mid); m != "" {
			year = m
		}
		venue = strings.TrimSpace(strings.TrimSuffix(mid, year))
		venue = strings.TrimSuffix(strings.TrimSpace(venue), ",")
	}
	return authors, venue, year
}
