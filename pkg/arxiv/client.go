// Package arxiv searches the arXiv preprint server through its Atom
// query API.
package arxiv

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
	providerID = "arxiv"
	baseURL    = "https://export.arxiv.org/api/query"
)

// Accepts modern ids ("2301.12345") and legacy archive ids
// ("hep-th/9901001", "math.GT/0605123"), version suffix already removed.
var idPattern = regexp.MustCompile(`^(\d{4}\.\d{4,5}|[a-z-]+(\.[A-Z]{2})?/\d{7})$`)

type Provider struct {
	*provider.Base
	client *provider.Client
	files  *provider.FileFetcher
}

func New(client *provider.Client) *Provider {
	p := &Provider{
		Base: provider.NewBase(providerID, "arXiv",
			provider.CapSearch|provider.CapDownload|provider.CapRead|provider.CapAuthorSearch),
		client: client,
	}
	p.files = provider.NewFileFetcher(domain.SourceArxiv, client, p.resolvePDF)
	return p
}

// ---------- Atom feed ----------

type feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	Entries      []entry  `xml:"entry"`
}

type entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary"`
	Published  string     `xml:"published"`
	Updated    string     `xml:"updated"`
	DOI        string     `xml:"doi"`
	Authors    []author   `xml:"author"`
	Links      []link     `xml:"link"`
	Categories []category `xml:"category"`
}

type author struct {
	Name string `xml:"name"`
}

type link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type category struct {
	Term string `xml:"term,attr"`
}

// ---------- Operations ----------

func (p *Provider) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error) {
	q.Normalize()

	params := url.Values{}
	params.Set("search_query", buildQuery(q))
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(q.MaxResults))
	by, order := sortParams(q)
	params.Set("sortBy", by)
	params.Set("sortOrder", order)

	var fd feed
	if err := p.client.GetXML(ctx, "search", baseURL+"?"+params.Encode(), nil, &fd); err != nil {
		return nil, err
	}

	papers := make([]domain.Paper, 0, len(fd.Entries))
	for i := range fd.Entries {
		if paper := entryToPaper(&fd.Entries[i]); paper != nil {
			papers = append(papers, *paper)
		}
	}
	return &domain.SearchResponse{
		Papers:       papers,
		TotalResults: fd.TotalResults,
		Source:       domain.SourceArxiv,
		Query:        q.Query,
		HasMore:      fd.TotalResults > len(papers),
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
	params := url.Values{}
	params.Set("id_list", NormalizeID(id))
	params.Set("max_results", "1")

	var fd feed
	if err := p.client.GetXML(ctx, "get_paper", baseURL+"?"+params.Encode(), nil, &fd); err != nil {
		return nil, err
	}
	if len(fd.Entries) == 0 {
		return nil, errors.NotFound(providerID, fmt.Sprintf("paper %q not found", id))
	}
	paper := entryToPaper(&fd.Entries[0])
	if paper == nil {
		return nil, errors.Parse(providerID, "entry has no arxiv id", nil)
	}
	return paper, nil
}

func (p *Provider) Download(ctx context.Context, req *domain.DownloadRequest) (*domain.DownloadResult, error) {
	return p.files.Download(ctx, req)
}

func (p *Provider) Read(ctx context.Context, req *domain.ReadRequest) (*domain.ReadResult, error) {
	return p.files.Read(ctx, req)
}

func (p *Provider) ValidateID(id string) error {
	if err := sanitize.PaperID(id); err != nil {
		return err
	}
	if !idPattern.MatchString(NormalizeID(id)) {
		return errors.InvalidRequestf("%q is not an arxiv id", id)
	}
	return nil
}

func (p *Provider) resolvePDF(_ context.Context, req *domain.DownloadRequest) (string, error) {
	return fmt.Sprintf("https://arxiv.org/pdf/%s.pdf", NormalizeID(req.PaperID)), nil
}

// ---------- Helpers ----------

// NormalizeID reduces the accepted id spellings to the bare id:
// "arXiv:2301.12345v2", "https://arxiv.org/abs/2301.12345" and plain
// ids all become "2301.12345".
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(strings.ToLower(id), "arxiv:") {
		id = id[len("arxiv:"):]
	}
	if i := strings.Index(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}
	id = strings.TrimSuffix(id, "/")
	return stripVersion(id)
}

func stripVersion(id string) string {
	i := strings.LastIndex(id, "v")
	if i <= 0 || i == len(id)-1 {
		return id
	}
	for _, c := range id[i+1:] {
		if c < '0' || c > '9' {
			return id
		}
	}
	return id[:i]
}

func buildQuery(q *domain.SearchQuery) string {
	var clauses []string
	if q.Query != "" {
		clauses = append(clauses, "all:"+q.Query)
	}
	if q.Author != "" {
		clauses = append(clauses, `au:"`+q.Author+`"`)
	}
	if q.Category != "" {
		clauses = append(clauses, "cat:"+q.Category)
	}
	if yr, err := domain.ParseYearRange(q.Year); err == nil && !yr.IsZero() {
		from, to := yr.From, yr.To
		if from == 0 {
			from = 1991 // first arXiv submission
		}
		if to == 0 {
			to = time.Now().Year()
		}
		clauses = append(clauses, fmt.Sprintf("submittedDate:[%d0101 TO %d1231]", from, to))
	}
	return strings.Join(clauses, " AND ")
}

// sortParams maps the generic sort onto arXiv's enum. Citation sorting
// is unsupported upstream and falls back to relevance; title and author
// sorts fall back to last-updated.
func sortParams(q *domain.SearchQuery) (by, order string) {
	switch q.SortBy {
	case domain.SortDate:
		by = "submittedDate"
	case domain.SortTitle, domain.SortAuthor:
		by = "lastUpdatedDate"
	default:
		by = "relevance"
	}
	order = "descending"
	if q.SortOrder == "asc" {
		order = "ascending"
	}
	return by, order
}

func entryToPaper(e *entry) *domain.Paper {
	id := NormalizeID(e.ID)
	if id == "" || strings.HasPrefix(id, "http") {
		return nil
	}

	pdfURL := fmt.Sprintf("https://arxiv.org/pdf/%s.pdf", id)
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			pdfURL = l.Href
			break
		}
	}

	names := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		names = append(names, a.Name)
	}
	cats := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		cats = append(cats, c.Term)
	}

	paper := domain.NewPaper(domain.SourceArxiv, id, e.Title, "https://arxiv.org/abs/"+id).
		Authors(names).
		Abstract(e.Summary).
		DOI(e.DOI).
		PublishedDate(domain.ISODate(e.Published)).
		UpdatedDate(domain.ISODate(e.Updated)).
		PDFURL(pdfURL).
		Categories(cats).
		Build()
	return &paper
}
