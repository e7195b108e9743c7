package domain

import (
	"strconv"
	"strings"
)

// Source identifies the upstream a paper came from. The constants cover
// the built-in adapters; unknown values pass through untouched so callers
// can carry papers from sources this build does not know about.
type Source string

const (
	SourceArxiv           Source = "arxiv"
	SourcePubMed          Source = "pubmed"
	SourcePMC             Source = "pmc"
	SourceBioRxiv         Source = "biorxiv"
	SourceMedRxiv         Source = "medrxiv"
	SourceSemanticScholar Source = "semanticscholar"
	SourceOpenAlex        Source = "openalex"
	SourceCrossref        Source = "crossref"
	SourceHAL             Source = "hal"
	SourceDBLP            Source = "dblp"
	SourceIACR            Source = "iacr"
	SourceSSRN            Source = "ssrn"
	SourceEuropePMC       Source = "europepmc"
	SourceCORE            Source = "core"
	SourceZenodo          Source = "zenodo"
	SourceUnpaywall       Source = "unpaywall"
	SourceMDPI            Source = "mdpi"
	SourceJSTOR           Source = "jstor"
	SourceSciSpace        Source = "scispace"
	SourceACM             Source = "acm"
	SourceConnectedPapers Source = "connectedpapers"
	SourceDOAJ            Source = "doaj"
	SourceWWS             Source = "worldwidescience"
	SourceOSF             Source = "osf"
	SourceBASE            Source = "base"
	SourceSpringer        Source = "springer"
	SourceIEEE            Source = "ieee"
	SourceDimensions      Source = "dimensions"
	SourceGoogleScholar   Source = "googlescholar"
)

var knownSources = map[Source]bool{
	SourceArxiv: true, SourcePubMed: true, SourcePMC: true,
	SourceBioRxiv: true, SourceMedRxiv: true, SourceSemanticScholar: true,
	SourceOpenAlex: true, SourceCrossref: true, SourceHAL: true,
	SourceDBLP: true, SourceIACR: true, SourceSSRN: true,
	SourceEuropePMC: true, SourceCORE: true, SourceZenodo: true,
	SourceUnpaywall: true, SourceMDPI: true, SourceJSTOR: true,
	SourceSciSpace: true, SourceACM: true, SourceConnectedPapers: true,
	SourceDOAJ: true, SourceWWS: true, SourceOSF: true, SourceBASE: true,
	SourceSpringer: true, SourceIEEE: true, SourceDimensions: true,
	SourceGoogleScholar: true,
}

// Known reports whether s is one of the built-in sources.
func (s Source) Known() bool { return knownSources[s] }

func (s Source) String() string { return string(s) }

// Paper is the normalized record every adapter maps into. List-valued
// fields (authors, categories, keywords, reference ids) are stored
// semicolon-joined; use the *List accessors to split them.
type Paper struct {
	PaperID       string            `json:"paper_id"`
	Title         string            `json:"title"`
	Authors       string            `json:"authors,omitempty"`
	Abstract      string            `json:"abstract,omitempty"`
	DOI           string            `json:"doi,omitempty"`
	PublishedDate string            `json:"published_date,omitempty"`
	UpdatedDate   string            `json:"updated_date,omitempty"`
	PDFURL        string            `json:"pdf_url,omitempty"`
	URL           string            `json:"url"`
	Source        Source            `json:"source"`
	Categories    string            `json:"categories,omitempty"`
	Keywords      string            `json:"keywords,omitempty"`
	ReferenceIDs  string            `json:"references_ids,omitempty"`
	CitationCount *int              `json:"citation_count,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// PrimaryID is the identifier preferred for cross-source matching: the
// DOI when the paper has one, the source-native id otherwise.
func (p *Paper) PrimaryID() string {
	if p.DOI != "" {
		return p.DOI
	}
	return p.PaperID
}

func (p *Paper) AuthorList() []string    { return splitList(p.Authors) }
func (p *Paper) CategoryList() []string  { return splitList(p.Categories) }
func (p *Paper) KeywordList() []string   { return splitList(p.Keywords) }
func (p *Paper) ReferenceList() []string { return splitList(p.ReferenceIDs) }

// Year extracts the year from the published date prefix, zero when the
// date is absent or malformed.
func (p *Paper) Year() int {
	if len(p.PublishedDate) < 4 {
		return 0
	}
	y, err := strconv.Atoi(p.PublishedDate[:4])
	if err != nil {
		return 0
	}
	return y
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinList is the inverse of the *List accessors.
func JoinList(items []string) string {
	kept := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			kept = append(kept, it)
		}
	}
	return strings.Join(kept, "; ")
}

// ISODate trims an RFC3339 timestamp to its date part. Bare dates and
// date prefixes pass through untouched.
func ISODate(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i > 0 {
		return s[:i]
	}
	return s
}

// NormalizeDOI strips URL and scheme prefixes and lowercases, so that
// DOIs from different upstreams compare equal. It does not validate;
// see the sanitize package for that.
func NormalizeDOI(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, prefix := range []string{
		"https://doi.org/", "http://doi.org/",
		"https://dx.doi.org/", "http://dx.doi.org/",
		"doi.org/", "doi:",
	} {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// ---------- Builder ----------

// PaperBuilder assembles a Paper. NewPaper takes the fields every record
// must carry; everything else is optional and chainable.
type PaperBuilder struct {
	p Paper
}

func NewPaper(source Source, paperID, title, url string) *PaperBuilder {
	return &PaperBuilder{p: Paper{
		Source:  source,
		PaperID: strings.TrimSpace(paperID),
		Title:   strings.TrimSpace(title),
		URL:     strings.TrimSpace(url),
	}}
}

func (b *PaperBuilder) Authors(names []string) *PaperBuilder {
	b.p.Authors = JoinList(names)
	return b
}

func (b *PaperBuilder) AuthorsJoined(s string) *PaperBuilder {
	b.p.Authors = strings.TrimSpace(s)
	return b
}

func (b *PaperBuilder) Abstract(s string) *PaperBuilder {
	b.p.Abstract = strings.TrimSpace(s)
	return b
}

func (b *PaperBuilder) DOI(s string) *PaperBuilder {
	b.p.DOI = NormalizeDOI(s)
	return b
}

func (b *PaperBuilder) PublishedDate(s string) *PaperBuilder {
	b.p.PublishedDate = strings.TrimSpace(s)
	return b
}

func (b *PaperBuilder) UpdatedDate(s string) *PaperBuilder {
	b.p.UpdatedDate = strings.TrimSpace(s)
	return b
}

func (b *PaperBuilder) PDFURL(s string) *PaperBuilder {
	b.p.PDFURL = strings.TrimSpace(s)
	return b
}

func (b *PaperBuilder) Categories(items []string) *PaperBuilder {
	b.p.Categories = JoinList(items)
	return b
}

func (b *PaperBuilder) Keywords(items []string) *PaperBuilder {
	b.p.Keywords = JoinList(items)
	return b
}

func (b *PaperBuilder) ReferenceIDs(items []string) *PaperBuilder {
	b.p.ReferenceIDs = JoinList(items)
	return b
}

func (b *PaperBuilder) CitationCount(n int) *PaperBuilder {
	b.p.CitationCount = &n
	return b
}

func (b *PaperBuilder) Extra(key, value string) *PaperBuilder {
	if value == "" {
		return b
	}
	if b.p.Extra == nil {
		b.p.Extra = make(map[string]string)
	}
	b.p.Extra[key] = value
	return b
}

func (b *PaperBuilder) Build() Paper { return b.p }
