// Package osf fronts the OSF preprints API (JSON:API). Author names live
// on separate user objects, so search optionally follows each preprint's
// contributors relationship; FetchDetails=false skips that fan-out.
package osf

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
	"research-master/internal/sanitize"
)

const (
	providerID = "osf"
	apiURL     = "https://api.osf.io/v2"
)

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "OSF Preprints", provider.CapSearch|provider.CapDOILookup),
		client: client,
	}
}

// ---------- API types ----------

type listEnvelope struct {
	Data  []resource `json:"data"`
	Meta  meta       `json:"meta"`
	Links struct {
		Meta meta `json:"meta"`
	} `json:"links"`
}

type singleEnvelope struct {
	Data resource `json:"data"`
}

type meta struct {
	Total int `json:"total"`
}

type resource struct {
	ID         string `json:"id"`
	Attributes struct {
		Title         string   `json:"title"`
		Description   string   `json:"description"`
		DatePublished string   `json:"date_published"`
		DateCreated   string   `json:"date_created"`
		DOI           string   `json:"doi"`
		Tags          []string `json:"tags"`
		IsPublished   bool     `json:"is_published"`
	} `json:"attributes"`
	Links struct {
		HTML        string `json:"html"`
		PreprintDOI string `json:"preprint_doi"`
	} `json:"links"`
}

type contributorsEnvelope struct {
	Data []struct {
		Embeds struct {
			Users struct {
				Data struct {
					Attributes struct {
						FullName string `json:"full_name"`
					} `json:"attributes"`
				} `json:"data"`
			} `json:"users"`
		} `json:"embeds"`
	} `json:"data"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	params := url.Values{}
	params.Set("q", q.Query)
	params.Set("page[size]", strconv.Itoa(q.MaxResults))

	var env listEnvelope
	if err := p.client.GetJSON(ctx, "search", apiURL+"/search/preprints/?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(env.Data))
	for i := range env.Data {
		paper := resourceToPaper(&env.Data[i])
		if paper == nil {
			continue
		}
		if q.FetchDetails {
			if names := p.fetchAuthors(ctx, paper.PaperID); len(names) > 0 {
				paper.Authors = domain.JoinList(names)
			}
		}
		papers = append(papers, *paper)
	}

	total := env.Meta.Total
	if total == 0 {
		total = env.Links.Meta.Total
	}
	if total == 0 {
		total = len(papers)
	}
	resp := &domain.SearchResponse{
		Papers:       papers,
		TotalResults: total,
		Source:       domain.SourceOSF,
		Query:        q.Query,
		HasMore:      total > len(papers),
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil {
		resp.FilterByYear(yr)
	}
	return resp, nil
}

func (p *Provider) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	if err := p.ValidateID(id); err != nil {
		return nil, err
	}
	var env singleEnvelope
	if err := p.client.GetJSON(ctx, "get_paper", apiURL+"/preprints/"+url.PathEscape(id)+"/", nil, &env); err != nil {
		return nil, err
	}
	paper := resourceToPaper(&env.Data)
	if paper == nil {
		return nil, errors.NotFound(providerID, fmt.Sprintf("preprint %q not found", id))
	}
	if names := p.fetchAuthors(ctx, paper.PaperID); len(names) > 0 {
		paper.Authors = domain.JoinList(names)
	}
	return paper, nil
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("filter[doi]", doi)
	params.Set("page[size]", "1")

	var env listEnvelope
	if err := p.client.GetJSON(ctx, "lookup_by_doi", apiURL+"/preprints/?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("DOI %q not found", doi))
	}
	return resourceToPaper(&env.Data[0]), nil
}

// ---------- Helpers ----------

// fetchAuthors follows the contributors relationship. Failures degrade
// to an authorless record rather than failing the search.
func (p *Provider) fetchAuthors(ctx context.Context, id string) []string {
	params := url.Values{}
	params.Set("embed", "users")
	params.Set("page[size]", "100")

	var env contributorsEnvelope
	endpoint := apiURL + "/preprints/" + url.PathEscape(id) + "/contributors/?" + params.Encode()
	if err := p.client.GetJSON(ctx, "get_contributors", endpoint, nil, &env); err != nil {
		return nil
	}
	names := make([]string, 0, len(env.Data))
	for _, c := range env.Data {
		if name := strings.TrimSpace(c.Embeds.Users.Data.Attributes.FullName); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func resourceToPaper(r *resource) *domain.Paper {
	if r.ID == "" || r.Attributes.Title == "" {
		return nil
	}

	pageURL := r.Links.HTML
	if pageURL == "" {
		pageURL = "https://osf.io/" + r.ID + "/"
	}

	doi := r.Attributes.DOI
	if doi == "" {
		doi = domain.NormalizeDOI(r.Links.PreprintDOI)
	}

	published := domain.ISODate(r.Attributes.DatePublished)
	if published == "" {
		published = domain.ISODate(r.Attributes.DateCreated)
	}

	paper := domain.NewPaper(domain.SourceOSF, r.ID, r.Attributes.Title, pageURL).
		Abstract(r.Attributes.Description).
		DOI(doi).
		PublishedDate(published).
		Keywords(r.Attributes.Tags).
		Build()
	return &paper
}
