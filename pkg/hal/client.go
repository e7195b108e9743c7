// Package hal fronts the HAL open archive (archives-ouvertes.fr), the
// French national repository. The API is a thin Solr layer, so queries
// and filters use Solr syntax.
package hal

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
	providerID = "hal"
	searchURL  = "https://api.archives-ouvertes.fr/search/"
)

// fieldList is the Solr fl parameter: only these fields come back.
const fieldList = "halId_s,title_s,en_title_s,abstract_s,authFullName_s," +
	"producedDate_tdate,producedDateY_i,uri_s,doiId_s,fileMain_s,keyword_s"

type Provider struct {
	*provider.Base
	client *provider.Client
}

func New(client *provider.Client) *Provider {
	return &Provider{
		Base:   provider.NewBase(providerID, "HAL", provider.CapSearch|provider.CapDOILookup),
		client: client,
	}
}

// ---------- API types ----------

type solrEnvelope struct {
	Response struct {
		NumFound int       `json:"numFound"`
		Docs     []solrDoc `json:"docs"`
	} `json:"response"`
}

type solrDoc struct {
	HalID        string   `json:"halId_s"`
	Title        []string `json:"title_s"`
	TitleEN      []string `json:"en_title_s"`
	Abstract     []string `json:"abstract_s"`
	Authors      []string `json:"authFullName_s"`
	ProducedDate string   `json:"producedDate_tdate"`
	ProducedYear int      `json:"producedDateY_i"`
	URI          string   `json:"uri_s"`
	DOI          string   `json:"doiId_s"`
	FileMain     string   `json:"fileMain_s"`
	Keywords     []string `json:"keyword_s"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	params := url.Values{}
	params.Set("q", solrEscape(q.Query))
	params.Set("wt", "json")
	params.Set("fl", fieldList)
	params.Set("rows", strconv.Itoa(q.MaxResults))

	if q.Author != "" {
		params.Add("fq", fmt.Sprintf("authFullName_t:%q", q.Author))
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		params.Add("fq", yearFilter(yr))
	}
	if q.SortBy == domain.SortDate {
		params.Set("sort", "producedDate_tdate "+sortOrder(q.SortOrder))
	}

	env, err := p.query(ctx, "search", params)
	if err != nil {
		return nil, err
	}
	return p.envelopeToResponse(env, q.Query), nil
}

func (p *Provider) GetByID(ctx context.Context, id string) (*domain.Paper, error) {
	if err := p.ValidateID(id); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("q", fmt.Sprintf("halId_s:%q", id))
	params.Set("wt", "json")
	params.Set("fl", fieldList)
	params.Set("rows", "1")

	env, err := p.query(ctx, "get_paper", params)
	if err != nil {
		return nil, err
	}
	if len(env.Response.Docs) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("document %q not found", id))
	}
	return docToPaper(&env.Response.Docs[0]), nil
}

func (p *Provider) GetByDOI(ctx context.Context, doi string) (*domain.Paper, error) {
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("q", fmt.Sprintf("doiId_s:%q", doi))
	params.Set("wt", "json")
	params.Set("fl", fieldList)
	params.Set("rows", "1")

	env, err := p.query(ctx, "lookup_by_doi", params)
	if err != nil {
		return nil, err
	}
	if len(env.Response.Docs) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("DOI %q not found", doi))
	}
	return docToPaper(&env.Response.Docs[0]), nil
}

// ---------- Helpers ----------

func (p *Provider) query(ctx context.Context, op string, params url.Values) (*solrEnvelope, error) {
	var env solrEnvelope
	if err := p.client.GetJSON(ctx, op, searchURL+"?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (p *Provider) envelopeToResponse(env *solrEnvelope, query string) *domain.SearchResponse {
	papers := make([]domain.Paper, 0, len(env.Response.Docs))
	for i := range env.Response.Docs {
		if paper := docToPaper(&env.Response.Docs[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: env.Response.NumFound,
		Source:       domain.SourceHAL,
		Query:        query,
		HasMore:      env.Response.NumFound > len(papers),
	}
}

func docToPaper(d *solrDoc) *domain.Paper {
	title := firstNonEmpty(d.TitleEN)
	if title == "" {
		title = firstNonEmpty(d.Title)
	}
	if d.HalID == "" || title == "" {
		return nil
	}

	pageURL := d.URI
	if pageURL == "" {
		pageURL = "https://hal.science/" + d.HalID
	}

	published := domain.ISODate(d.ProducedDate)
	if published == "" && d.ProducedYear > 0 {
		published = strconv.Itoa(d.ProducedYear)
	}

	paper := domain.NewPaper(domain.SourceHAL, d.HalID, title, pageURL).
		Authors(d.Authors).
		Abstract(firstNonEmpty(d.Abstract)).
		DOI(d.DOI).
		PublishedDate(published).
		PDFURL(d.FileMain).
		Keywords(d.Keywords).
		Build()
	return &paper
}

func yearFilter(yr domain.YearRange) string {
	from, to := "*", "*"
	if yr.From != 0 {
		from = strconv.Itoa(yr.From)
	}
	if yr.To != 0 {
		to = strconv.Itoa(yr.To)
	}
	return fmt.Sprintf("producedDateY_i:[%s TO %s]", from, to)
}

func sortOrder(order string) string {
	if strings.EqualFold(order, "asc") {
		return "asc"
	}
	return "desc"
}

// solrEscape guards the characters Solr treats as operators; the query
// is user text, never syntax.
func solrEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`+-!(){}[]^"~*?:\/&|`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func firstNonEmpty(items []string) string {
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			return it
		}
	}
	return ""
}
