// Package dimensions fronts the Dimensions Analytics DSL API. The key
// from DIMENSIONS_API_KEY is exchanged once for a JWT, which then signs
// every DSL query; the token is cached for the provider's lifetime and
// refreshed when upstream rejects it.
package dimensions

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
)

const (
	providerID = "dimensions"
	authURL    = "https://app.dimensions.ai/api/auth.json"
	dslURL     = "https://app.dimensions.ai/api/dsl/v2"
)

const returnFields = "id + title + doi + abstract + year + authors + linkout + times_cited"

type Provider struct {
	*provider.Base
	client *provider.Client
	apiKey string

	mu    sync.Mutex
	token string
}

func New(client *provider.Client, apiKey string) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "Dimensions", provider.CapSearch),
		client: client,
		apiKey: strings.TrimSpace(apiKey),
	}
}

// ---------- API types ----------

type authResponse struct {
	Token string `json:"token"`
}

type dslEnvelope struct {
	Publications []publication `json:"publications"`
	Stats        struct {
		TotalCount int `json:"total_count"`
	} `json:"_stats"`
}

type publication struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	DOI        string   `json:"doi"`
	Abstract   string   `json:"abstract"`
	Year       int      `json:"year"`
	Authors    []person `json:"authors"`
	Linkout    string   `json:"linkout"`
	TimesCited int      `json:"times_cited"`
}

type person struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	if p.apiKey == "" {
		return nil, errors.InvalidRequest("Dimensions requires an API key; set DIMENSIONS_API_KEY or [api_keys] dimensions")
	}
	q.Normalize()

	terms := q.Query
	if q.Author != "" {
		terms = strings.TrimSpace(terms + " " + q.Author)
	}

	where := ""
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		var conds []string
		if yr.From != 0 {
			conds = append(conds, fmt.Sprintf("year >= %d", yr.From))
		}
		if yr.To != 0 {
			conds = append(conds, fmt.Sprintf("year <= %d", yr.To))
		}
		where = " where " + strings.Join(conds, " and ")
	}

	dsl := fmt.Sprintf("search publications in full_data for \"%s\"%s return publications[%s] limit %d",
		escapeDSL(terms), where, returnFields, q.MaxResults)

	var env dslEnvelope
	if err := p.runDSL(ctx, "search", dsl, &env); err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(env.Publications))
	for i := range env.Publications {
		if paper := publicationToPaper(&env.Publications[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: env.Stats.TotalCount,
		Source:       domain.SourceDimensions,
		Query:        q.Query,
		HasMore:      env.Stats.TotalCount > len(papers),
	}, nil
}

// ---------- Helpers ----------

func (p *Provider) runDSL(ctx context.Context, op, dsl string, out any) error {
	token, err := p.ensureToken(ctx)
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Authorization", "JWT "+token)

	err = p.client.PostRaw(ctx, op, dslURL, "application/json", []byte(dsl), h, out)
	if err == nil {
		return nil
	}
	// Tokens expire; one re-auth retry covers the common case.
	var e *errors.Error
	if stderrors.As(err, &e) && e.Status == http.StatusUnauthorized {
		p.dropToken()
		token, rerr := p.ensureToken(ctx)
		if rerr != nil {
			return rerr
		}
		h.Set("Authorization", "JWT "+token)
		return p.client.PostRaw(ctx, op, dslURL, "application/json", []byte(dsl), h, out)
	}
	return err
}

func (p *Provider) ensureToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		return p.token, nil
	}
	var resp authResponse
	body := map[string]string{"key": p.apiKey}
	if err := p.client.PostJSON(ctx, "auth", authURL, nil, body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.API(providerID, 0, "auth succeeded but returned no token")
	}
	p.token = resp.Token
	return p.token, nil
}

func (p *Provider) dropToken() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

func publicationToPaper(pub *publication) *domain.Paper {
	if pub.ID == "" || pub.Title == "" {
		return nil
	}

	pageURL := pub.Linkout
	if pageURL == "" {
		pageURL = "https://app.dimensions.ai/details/publication/" + pub.ID
	}

	published := ""
	if pub.Year > 0 {
		published = fmt.Sprintf("%d", pub.Year)
	}

	names := make([]string, 0, len(pub.Authors))
	for _, a := range pub.Authors {
		if name := strings.TrimSpace(a.FirstName + " " + a.LastName); name != "" {
			names = append(names, name)
		}
	}

	paper := domain.NewPaper(domain.SourceDimensions, pub.ID, pub.Title, pageURL).
		Authors(names).
		Abstract(pub.Abstract).
		DOI(pub.DOI).
		PublishedDate(published).
		CitationCount(pub.TimesCited).
		Build()
	return &paper
}

// escapeDSL guards quotes and backslashes inside the for-clause string.
func escapeDSL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
