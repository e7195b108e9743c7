package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	*Base
}

func stub(id string, caps Capability) Provider {
	return &stubProvider{Base: NewBase(id, id, caps)}
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	r, err := NewRegistry([]Provider{
		stub("arxiv", CapSearch),
		stub("pubmed", CapSearch),
		stub("crossref", CapSearch|CapDOILookup),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"arxiv", "pubmed", "crossref"}, r.IDs())
	assert.Equal(t, 3, r.Len())
}

func TestRegistryEnabledFilter(t *testing.T) {
	r, err := NewRegistry([]Provider{
		stub("arxiv", CapSearch),
		stub("pubmed", CapSearch),
		stub("crossref", CapSearch),
	}, []string{"ArXiv", "CROSSREF"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"arxiv", "crossref"}, r.IDs())
}

func TestRegistryDisabledWins(t *testing.T) {
	r, err := NewRegistry([]Provider{
		stub("arxiv", CapSearch),
		stub("pubmed", CapSearch),
	}, []string{"arxiv", "pubmed"}, []string{"ArXiv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pubmed"}, r.IDs())
}

func TestRegistryEmptyIsAnError(t *testing.T) {
	_, err := NewRegistry([]Provider{stub("arxiv", CapSearch)}, nil, []string{"arxiv"})
	require.Error(t, err)
}

func TestRegistryLookup(t *testing.T) {
	r, err := NewRegistry([]Provider{stub("OpenAlex", CapSearch)}, nil, nil)
	require.NoError(t, err)

	p, ok := r.Get(" openalex ")
	require.True(t, ok)
	assert.Equal(t, "OpenAlex", p.ID())

	_, err = r.Require("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope"`)
}

func TestRegistryAliases(t *testing.T) {
	r, err := NewRegistry([]Provider{stub("semanticscholar", CapSearch)}, nil, nil)
	require.NoError(t, err)

	for _, alias := range []string{"semantic", "s2", "SemanticScholar"} {
		p, ok := r.Get(alias)
		require.True(t, ok, alias)
		assert.Equal(t, "semanticscholar", p.ID())
	}

	// Aliases work in the source filters too.
	r, err = NewRegistry([]Provider{
		stub("semanticscholar", CapSearch),
		stub("arxiv", CapSearch),
	}, nil, []string{"semantic"})
	require.NoError(t, err)
	assert.Equal(t, []string{"arxiv"}, r.IDs())
}

func TestRegistryWithCapability(t *testing.T) {
	r, err := NewRegistry([]Provider{
		stub("arxiv", CapSearch|CapDownload),
		stub("crossref", CapSearch|CapDOILookup),
		stub("unpaywall", CapDOILookup),
	}, nil, nil)
	require.NoError(t, err)

	doi := r.WithCapability(CapDOILookup)
	require.Len(t, doi, 2)
	assert.Equal(t, "crossref", doi[0].ID())
	assert.Equal(t, "unpaywall", doi[1].ID())

	assert.Empty(t, r.WithCapability(CapRead))
}
