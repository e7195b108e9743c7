// Package dedup detects the same paper reported by different sources.
// Papers from one source are never merged with each other; cross-source
// matches are found by DOI, exact normalized title, or fuzzy title
// similarity with author overlap.
package dedup

import (
	"strings"

	"github.com/xrash/smetrics"

	"research-master/internal/domain"
	"research-master/internal/errors"
)

// Strategy controls what happens to a duplicate group.
type Strategy string

const (
	// First keeps the earliest occurrence, dropping the rest.
	First Strategy = "first"
	// Last keeps the latest occurrence.
	Last Strategy = "last"
	// Mark keeps everything and labels duplicates via extra["duplicate_of"].
	Mark Strategy = "mark"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", First:
		return First, nil
	case Last:
		return Last, nil
	case Mark:
		return Mark, nil
	default:
		return "", errors.InvalidRequestf("unknown dedupe strategy %q", s)
	}
}

// titleSimilarity is the Jaro-Winkler score at or above which two
// normalized titles are considered the same work.
const titleSimilarity = 0.95

type Result struct {
	Papers  []domain.Paper `json:"papers"`
	Removed int            `json:"removed"`
	Groups  [][]string     `json:"groups,omitempty"` // primary ids per duplicate group
}

// Dedupe groups duplicates and applies the strategy. The input order is
// preserved for survivors, which makes the operation idempotent.
func Dedupe(papers []domain.Paper, strategy Strategy) Result {
	n := len(papers)
	if n < 2 {
		return Result{Papers: append([]domain.Paper(nil), papers...)}
	}

	keys := make([]matchKey, n)
	for i := range papers {
		keys[i] = newMatchKey(&papers[i])
	}

	uf := newUnionFind(n)

	// Fast path: exact DOI and exact normalized-title buckets.
	byDOI := make(map[string][]int)
	byTitle := make(map[string][]int)
	for i, k := range keys {
		if k.doi != "" {
			byDOI[k.doi] = append(byDOI[k.doi], i)
		}
		if k.title != "" {
			byTitle[k.title] = append(byTitle[k.title], i)
		}
	}
	for _, bucket := range byDOI {
		for i := 1; i < len(bucket); i++ {
			a, b := bucket[0], bucket[i]
			if keys[a].source != keys[b].source {
				uf.union(a, b)
			}
		}
	}
	for _, bucket := range byTitle {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i], bucket[j]
				if keys[a].source != keys[b].source && authorsOverlap(keys[a], keys[b]) {
					uf.union(a, b)
				}
			}
		}
	}

	// Fuzzy pass for near-identical titles the buckets missed.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if keys[i].source == keys[j].source || uf.find(i) == uf.find(j) {
				continue
			}
			if !plausibleLengths(keys[i].title, keys[j].title) {
				continue
			}
			if !authorsOverlap(keys[i], keys[j]) {
				continue
			}
			if smetrics.JaroWinkler(keys[i].title, keys[j].title, 0.7, 4) >= titleSimilarity {
				uf.union(i, j)
			}
		}
	}

	return applyStrategy(papers, uf, strategy)
}

func applyStrategy(papers []domain.Paper, uf *unionFind, strategy Strategy) Result {
	n := len(papers)
	groups := make(map[int][]int, n)
	for i := 0; i < n; i++ {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	keep := make(map[int]int, len(groups)) // member index -> kept index
	var groupIDs [][]string
	for _, members := range groups {
		kept := members[0]
		if strategy == Last {
			kept = members[len(members)-1]
		}
		for _, m := range members {
			keep[m] = kept
		}
		if len(members) >= 2 {
			ids := make([]string, 0, len(members))
			for _, m := range members {
				ids = append(ids, papers[m].PrimaryID())
			}
			groupIDs = append(groupIDs, ids)
		}
	}

	var out []domain.Paper
	for i := 0; i < n; i++ {
		kept := keep[i]
		switch {
		case strategy == Mark:
			p := papers[i]
			if kept != i {
				if p.Extra == nil {
					p.Extra = make(map[string]string)
				} else {
					cloned := make(map[string]string, len(p.Extra))
					for k, v := range p.Extra {
						cloned[k] = v
					}
					p.Extra = cloned
				}
				p.Extra["duplicate_of"] = papers[kept].PrimaryID()
			}
			out = append(out, p)
		case kept == i:
			out = append(out, papers[i])
		}
	}

	return Result{
		Papers:  out,
		Removed: n - len(out),
		Groups:  groupIDs,
	}
}

// ---------- Matching ----------

type matchKey struct {
	source  domain.Source
	doi     string
	title   string
	authors map[string]bool // normalized family names
}

func newMatchKey(p *domain.Paper) matchKey {
	k := matchKey{
		source: p.Source,
		doi:    strings.ToLower(strings.TrimSpace(p.DOI)),
		title:  normalizeTitle(p.Title),
	}
	for _, a := range p.AuthorList() {
		if fam := familyName(a); fam != "" {
			if k.authors == nil {
				k.authors = make(map[string]bool)
			}
			k.authors[fam] = true
		}
	}
	return k
}

// authorsOverlap treats an empty author set on either side as a match,
// since many sources omit authors entirely.
func authorsOverlap(a, b matchKey) bool {
	if len(a.authors) == 0 || len(b.authors) == 0 {
		return true
	}
	for fam := range a.authors {
		if b.authors[fam] {
			return true
		}
	}
	return false
}

func familyName(author string) string {
	fields := strings.Fields(author)
	if len(fields) == 0 {
		return ""
	}
	// "Vaswani, Ashish" puts the family name first.
	if i := strings.Index(author, ","); i > 0 {
		return normalizeToken(author[:i])
	}
	return normalizeToken(fields[len(fields)-1])
}

func normalizeToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeTitle(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// plausibleLengths prunes fuzzy comparisons that cannot reach the
// similarity threshold anyway.
func plausibleLengths(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la, lb := len(a), len(b)
	if la > lb {
		la, lb = lb, la
	}
	return lb <= la*2
}

// ---------- Union-find ----------

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Attach the higher root to the lower so group representatives keep
	// first-seen order.
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
