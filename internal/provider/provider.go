// Package provider defines the adapter contract every source implements,
// plus the shared plumbing adapters run their requests through: the
// resilient HTTP client, the registry and the identifier router.
package provider

import (
	"context"
	"strings"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/sanitize"
)

// Capability is a bitset of the operations a provider supports.
type Capability uint8

const (
	CapSearch Capability = 1 << iota
	CapDownload
	CapRead
	CapCitations
	CapDOILookup
	CapAuthorSearch
)

func (c Capability) Has(want Capability) bool { return c&want == want }

func (c Capability) String() string {
	var parts []string
	for _, f := range []struct {
		cap  Capability
		name string
	}{
		{CapSearch, "search"},
		{CapDownload, "download"},
		{CapRead, "read"},
		{CapCitations, "citations"},
		{CapDOILookup, "doi"},
		{CapAuthorSearch, "author"},
	} {
		if c.Has(f.cap) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// Provider is the uniform surface of one upstream source. Operations a
// source cannot serve return a not-implemented error from Base.
type Provider interface {
	ID() string
	Name() string
	Capabilities() Capability

	Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error)
	SearchByAuthor(ctx context.Context, q *domain.SearchQuery) (*domain.SearchResponse, error)
	GetByID(ctx context.Context, id string) (*domain.Paper, error)
	GetByDOI(ctx context.Context, doi string) (*domain.Paper, error)
	Citations(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error)
	References(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error)
	Related(ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error)
	Download(ctx context.Context, req *domain.DownloadRequest) (*domain.DownloadResult, error)
	Read(ctx context.Context, req *domain.ReadRequest) (*domain.ReadResult, error)
	ValidateID(id string) error
}

// Base supplies identity and default-deny operations. Adapters embed it
// and override only what they support.
type Base struct {
	id   string
	name string
	caps Capability
}

func NewBase(id, name string, caps Capability) *Base {
	return &Base{id: id, name: name, caps: caps}
}

func (b *Base) ID() string                 { return b.id }
func (b *Base) Name() string               { return b.name }
func (b *Base) Capabilities() Capability   { return b.caps }
func (b *Base) ValidateID(id string) error { return sanitize.PaperID(id) }

func (b *Base) Search(context.Context, *domain.SearchQuery) (*domain.SearchResponse, error) {
	return nil, errors.NotImplemented(b.id, "search")
}

func (b *Base) SearchByAuthor(context.Context, *domain.SearchQuery) (*domain.SearchResponse, error) {
	return nil, errors.NotImplemented(b.id, "search_by_author")
}

func (b *Base) GetByID(context.Context, string) (*domain.Paper, error) {
	return nil, errors.NotImplemented(b.id, "get_paper")
}

func (b *Base) GetByDOI(context.Context, string) (*domain.Paper, error) {
	return nil, errors.NotImplemented(b.id, "lookup_by_doi")
}

func (b *Base) Citations(context.Context, *domain.CitationRequest) (*domain.SearchResponse, error) {
	return nil, errors.NotImplemented(b.id, "get_citations")
}

func (b *Base) References(context.Context, *domain.CitationRequest) (*domain.SearchResponse, error) {
	return nil, errors.NotImplemented(b.id, "get_references")
}

func (b *Base) Related(context.Context, *domain.CitationRequest) (*domain.SearchResponse, error) {
	return nil, errors.NotImplemented(b.id, "get_related")
}

func (b *Base) Download(context.Context, *domain.DownloadRequest) (*domain.DownloadResult, error) {
	return nil, errors.NotImplemented(b.id, "download_paper")
}

func (b *Base) Read(context.Context, *domain.ReadRequest) (*domain.ReadResult, error) {
	return nil, errors.NotImplemented(b.id, "read_paper")
}
