// Package connectedpapers fronts the Connected Papers graph API, used
// for related-paper discovery. The service aggressively blocks bursts
// with 403s that mean "slow down", so those surface as rate limits; the
// wiring pairs this adapter with the strict retry policy.
package connectedpapers

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
)

const (
	providerID = "connectedpapers"
	apiURL     = "https://api.connectedpapers.com/papers-api"
)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "Connected Papers", provider.CapSearch|provider.CapCitations),
		client: client,
	}
}

// ---------- API types ----------

type searchRequest struct {
	Query string `json:"query"`
}

type searchEnvelope struct {
	Results []node `json:"results"`
	Total   int    `json:"total"`
}

type graphEnvelope struct {
	StartID string          `json:"start_id"`
	Nodes   map[string]node `json:"nodes"`
}

type node struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Authors         []person `json:"authors"`
	Year            int      `json:"year"`
	DOI             string   `json:"doi"`
	Abstract        string   `json:"abstract"`
	CitationsLength int      `json:"citations_length"`
}

type person struct {
	Name string `json:"name"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	var env searchEnvelope
	err := p.client.PostJSON(ctx, "search", apiURL+"/search/", nil, searchRequest{Query: q.Query}, &env)
	if err != nil {
		return nil, mapBlock(err)
	}

	papers := make([]domain.Paper, 0, len(env.Results))
	for i := range env.Results {
		if len(papers) == q.MaxResults {
			break
		}
		if paper := nodeToPaper(&env.Results[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	total := env.Total
	if total == 0 {
		total = len(env.Results)
	}
	resp := &domain.SearchResponse{
		Papers:       papers,
		TotalResults: total,
		Source:       domain.SourceConnectedPapers,
		Query:        q.Query,
		HasMore:      total > len(papers),
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}

func (p *Provider) Related(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error) {
	req.Normalize()
	if err := p.ValidateID(req.PaperID); err != nil {
		return nil, err
	}

	var env graphEnvelope
	endpoint := apiURL + "/graph/" + url.PathEscape(req.PaperID)
	if err := p.client.GetJSON(ctx, "get_related", endpoint, nil, &env); err != nil {
		return nil, mapBlock(err)
	}
	if len(env.Nodes) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("no graph for %q", req.PaperID))
	}

	related := make([]node, 0, len(env.Nodes))
	for id, n := range env.Nodes {
		if id == env.StartID || id == req.PaperID {
			continue
		}
		if n.ID == "" {
			n.ID = id
		}
		related = append(related, n)
	}
	// The map order is random; most-cited first gives a stable, useful
	// ranking.
	sort.Slice(related, func(i, j int) bool {
		if related[i].CitationsLength != related[j].CitationsLength {
			return related[i].CitationsLength > related[j].CitationsLength
		}
		return related[i].ID < related[j].ID
	})

	papers := make([]domain.Paper, 0, req.MaxResults)
	for i := range related {
		if len(papers) == req.MaxResults {
			break
		}
		if paper := nodeToPaper(&related[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: len(env.Nodes) - 1,
		Source:       domain.SourceConnectedPapers,
		Query:        req.PaperID,
		HasMore:      len(env.Nodes)-1 > len(papers),
	}, nil
}

// ---------- Helpers ----------

// mapBlock converts the 403 responses Connected Papers uses for burst
// blocking into rate-limit errors so callers back off instead of
// treating them as permanent failures.
func mapBlock(err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Kind == errors.KindAPI && e.Status == http.StatusForbidden {
		return errors.RateLimited(providerID, 0)
	}
	return err
}

func nodeToPaper(n *node) *domain.Paper {
	if n.ID == "" || n.Title == "" {
		return nil
	}

	published := ""
	if n.Year > 0 {
		published = fmt.Sprintf("%d", n.Year)
	}

	names := make([]string, 0, len(n.Authors))
	for _, a := range n.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	paper := domain.NewPaper(domain.SourceConnectedPapers, n.ID, n.Title,
		"https://www.connectedpapers.com/main/"+n.ID).
		Authors(names).
		Abstract(n.Abstract).
		DOI(n.DOI).
		PublishedDate(published).
		CitationCount(n.CitationsLength).
		Build()
	return &paper
}
