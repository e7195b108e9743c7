package provider

import (
	"strings"

	"research-master/internal/domain"
	"research-master/internal/errors"
)

// Route inspects a bare identifier and returns the providers to try, in
// order. Routing is purely lexical; the caller attempts candidates until
// one succeeds.
func Route(reg *Registry, id string) ([]Provider, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.InvalidRequest("paper id must not be empty")
	}
	lower := strings.ToLower(id)

	switch {
	case strings.HasPrefix(lower, "arxiv:"), looksLikeArxivID(id):
		return pick(reg, id, domain.SourceArxiv)

	case looksLikePMCID(lower):
		return pick(reg, id, domain.SourcePMC)

	case allDigits(id):
		return pick(reg, id, domain.SourcePubMed)

	case strings.HasPrefix(lower, "hal-"):
		return pick(reg, id, domain.SourceHAL)

	case strings.HasPrefix(id, "10.") && strings.Contains(id, "/"):
		return doiCandidates(reg, id)

	case strings.Count(id, "/") == 1:
		// eprint identifiers are "YYYY/NNN"
		return pick(reg, id, domain.SourceIACR)

	default:
		return pick(reg, id, domain.SourceArxiv, domain.SourceSemanticScholar)
	}
}

// looksLikeArxivID matches modern arXiv ids such as 2301.00001, with or
// without a version suffix.
func looksLikeArxivID(id string) bool {
	if len(id) < 9 {
		return false
	}
	dots := 0
	for i := 0; i < 9; i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return dots == 1
}

func looksLikePMCID(lower string) bool {
	if !strings.HasPrefix(lower, "pmc") {
		return false
	}
	rest := lower[3:]
	return rest != "" && allDigits(rest)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func pick(reg *Registry, id string, sources ...domain.Source) ([]Provider, error) {
	var out []Provider
	for _, s := range sources {
		if p, ok := reg.Get(string(s)); ok {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errors.InvalidRequestf("cannot route identifier %q: no matching source is enabled", id)
	}
	return out, nil
}

// doiCandidates prefers Semantic Scholar, then every other registered
// provider with DOI lookup.
func doiCandidates(reg *Registry, id string) ([]Provider, error) {
	var out []Provider
	seen := make(map[string]bool)
	if p, ok := reg.Get(string(domain.SourceSemanticScholar)); ok {
		out = append(out, p)
		seen[p.ID()] = true
	}
	for _, p := range reg.WithCapability(CapDOILookup) {
		if !seen[p.ID()] {
			out = append(out, p)
			seen[p.ID()] = true
		}
	}
	if len(out) == 0 {
		return nil, errors.InvalidRequestf("cannot route doi %q: no doi-capable source is enabled", id)
	}
	return out, nil
}
