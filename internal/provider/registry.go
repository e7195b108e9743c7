package provider

import (
	"strings"

	"research-master/internal/errors"
)

// Registry holds the providers that survived configuration filtering, in
// registration order.
type Registry struct {
	order     []string
	providers map[string]Provider
}

// NewRegistry filters candidates against the enabled/disabled lists.
// Matching is case-insensitive and the disabled list wins. An empty
// enabled list means all. A registry with no providers is an error.
func NewRegistry(candidates []Provider, enabled, disabled []string) (*Registry, error) {
	enabledSet := toSet(enabled)
	disabledSet := toSet(disabled)

	r := &Registry{providers: make(map[string]Provider, len(candidates))}
	for _, p := range candidates {
		id := strings.ToLower(p.ID())
		if disabledSet[id] {
			continue
		}
		if len(enabledSet) > 0 && !enabledSet[id] {
			continue
		}
		if _, dup := r.providers[id]; dup {
			continue
		}
		r.providers[id] = p
		r.order = append(r.order, id)
	}
	if len(r.order) == 0 {
		return nil, errors.InvalidRequest("no providers enabled after applying source filters")
	}
	return r, nil
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		if it = normalizeID(it); it != "" {
			set[it] = true
		}
	}
	return set
}

// idAliases maps the short names callers commonly use to registered ids.
var idAliases = map[string]string{
	"semantic": "semanticscholar",
	"s2":       "semanticscholar",
}

func normalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := idAliases[id]; ok {
		return canonical
	}
	return id
}

func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.providers[normalizeID(id)]
	return p, ok
}

// Require is Get with an invalid-request error naming the unknown id.
func (r *Registry) Require(id string) (Provider, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, errors.InvalidRequestf("unknown or disabled source %q", id)
	}
	return p, nil
}

func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int { return len(r.order) }

// WithCapability returns providers supporting every bit in want, in
// registration order.
func (r *Registry) WithCapability(want Capability) []Provider {
	var out []Provider
	for _, id := range r.order {
		if p := r.providers[id]; p.Capabilities().Has(want) {
			out = append(out, p)
		}
	}
	return out
}
