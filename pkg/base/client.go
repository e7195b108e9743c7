// Package base fronts the BASE (Bielefeld Academic Search Engine) HTTP
// search interface. BASE aggregates uneven repository metadata: several
// Dublin Core fields arrive as either a string or an array, so decoding
// goes through a tolerant list type.
package base

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"research-master/internal/domain"
	"research-master/internal/provider"
)

const (
	providerID = "base"
	searchURL  = "https://api.base-search.net/cgi-bin/BaseHttpSearchInterface.fcgi"
)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "BASE", provider.CapSearch),
		client: client,
	}
}

// ---------- API types ----------

type searchEnvelope struct {
	Response struct {
		NumFound int   `json:"numFound"`
		Docs     []doc `json:"docs"`
	} `json:"response"`
}

type doc struct {
	DocID       string   `json:"docid"`
	Title       string   `json:"dctitle"`
	Creator     flexList `json:"dccreator"`
	Description flexList `json:"dcdescription"`
	Year        string   `json:"dcyear"`
	Date        string   `json:"dcdate"`
	DOI         flexList `json:"dcdoi"`
	Link        string   `json:"dclink"`
	Subject     flexList `json:"dcsubject"`
}

// flexList accepts both "value" and ["value", ...].
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*f = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*f = []string{one}
	return nil
}

func (f flexList) first() string {
	for _, s := range f {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + fmt.Sprintf(" dccreator:%q", q.Author))
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		terms = strings.TrimSpace(terms + " " + yearClause(yr))
	}

	params := url.Values{}
	params.Set("func", "PerformSearch")
	params.Set("query", terms)
	params.Set("format", "json")
	params.Set("hits", strconv.Itoa(q.MaxResults))
	if q.SortBy == domain.SortDate {
		params.Set("sortBy", "dcyear "+strings.ToLower(q.SortOrder))
	}

	var env searchEnvelope
	if err := p.client.GetJSON(ctx, "search", searchURL+"?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(env.Response.Docs))
	for i := range env.Response.Docs {
		if paper := docToPaper(&env.Response.Docs[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: env.Response.NumFound,
		Source:       domain.SourceBASE,
		Query:        q.Query,
		HasMore:      env.Response.NumFound > len(papers),
	}, nil
}

// ---------- Helpers ----------

func docToPaper(d *doc) *domain.Paper {
	if d.DocID == "" || d.Title == "" {
		return nil
	}

	pageURL := d.Link
	if pageURL == "" {
		pageURL = "https://www.base-search.net/Record/" + url.PathEscape(d.DocID)
	}

	published := domain.ISODate(d.Date)
	if published == "" {
		published = d.Year
	}

	pdfURL := ""
	if strings.HasSuffix(strings.ToLower(d.Link), ".pdf") {
		pdfURL = d.Link
	}

	paper := domain.NewPaper(domain.SourceBASE, d.DocID, d.Title, pageURL).
		Authors(d.Creator).
		Abstract(d.Description.first()).
		DOI(d.DOI.first()).
		PublishedDate(published).
		PDFURL(pdfURL).
		Keywords(d.Subject).
		Build()
	return &paper
}

func yearClause(yr domain.YearRange) string {
	from, to := "*", "*"
	if yr.From != 0 {
		from = strconv.Itoa(yr.From)
	}
	if yr.To != 0 {
		to = strconv.Itoa(yr.To)
	}
	return fmt.Sprintf("dcyear:[%s TO %s]", from, to)
}
