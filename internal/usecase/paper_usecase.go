// Package usecase orchestrates the provider fleet: it fans searches out
// across sources, routes identifier lookups, consults the cache, and
// keeps one source's failure from sinking an operation that others can
// still serve.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"research-master/internal/breaker"
	"research-master/internal/cache"
	"research-master/internal/dedup"
	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/provider"
	"research-master/internal/sanitize"
)

// defaultConcurrency bounds the parallel fan-out; more simultaneous
// upstreams than this mostly buys rate-limit trouble.
const defaultConcurrency = 10

// DefaultMaxReadChars caps extracted PDF text handed back to callers.
const DefaultMaxReadChars = 500000

// Options carries the orchestration knobs that come from configuration.
type Options struct {
	// Candidates is every constructed provider, including ones the
	// source filters excluded; Sources() reports those as disabled.
	Candidates []provider.Provider

	DownloadDir      string
	OrganizeBySource bool
	MaxReadChars     int
	MaxConcurrent    int
}

type PaperUsecase struct {
	registry   *provider.Registry
	candidates []provider.Provider
	cache      *cache.Cache
	breakers   *breaker.Manager
	logger     *slog.Logger

	downloadDir      string
	organizeBySource bool
	maxReadChars     int
	maxConcurrent    int
}

func NewPaperUsecase(reg *provider.Registry, c *cache.Cache, bm *breaker.Manager, opts Options, logger *slog.Logger) *PaperUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	u := &PaperUsecase{
		registry:         reg,
		candidates:       opts.Candidates,
		cache:            c,
		breakers:         bm,
		logger:           logger,
		downloadDir:      opts.DownloadDir,
		organizeBySource: opts.OrganizeBySource,
		maxReadChars:     opts.MaxReadChars,
		maxConcurrent:    opts.MaxConcurrent,
	}
	if u.maxConcurrent <= 0 {
		u.maxConcurrent = defaultConcurrency
	}
	if u.maxReadChars <= 0 {
		u.maxReadChars = DefaultMaxReadChars
	}
	if u.downloadDir == "" {
		u.downloadDir = filepath.Join(os.TempDir(), "research-master", "downloads")
	}
	if len(u.candidates) == 0 {
		u.candidates = reg.All()
	}
	return u
}

// SearchOptions selects which sources participate and whether the
// aggregate is deduplicated before it is returned.
type SearchOptions struct {
	Sources []string
	Dedupe  bool
}

// ---------- Search ----------

// Search fans the query out to every requested (or search-capable)
// source in parallel. Individual source failures are logged and skipped;
// the call fails only when nothing answered.
func (u *PaperUsecase) Search(ctx context.Context, q *domain.SearchQuery, opts SearchOptions) (*domain.SearchResponse, error) {
	if q == nil || strings.TrimSpace(q.Query) == "" {
		return nil, errors.InvalidRequest("query must not be empty")
	}
	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, errors.InvalidRequest(err.Error())
	}

	targets, err := u.searchTargets(opts.Sources, provider.CapSearch)
	if err != nil {
		return nil, err
	}
	responses, errs := u.fanOut(ctx, "search", targets, func(ctx context.Context, p provider.Provider) (*domain.SearchResponse, error) {
		return u.cachedSearch(ctx, p, q, false)
	})
	return u.aggregate(q.Query, targets, responses, errs, opts.Dedupe)
}

// SearchByAuthor is Search over the author-capable sources.
func (u *PaperUsecase) SearchByAuthor(ctx context.Context, q *domain.SearchQuery, opts SearchOptions) (*domain.SearchResponse, error) {
	if q == nil || strings.TrimSpace(q.Author) == "" {
		return nil, errors.InvalidRequest("author must not be empty")
	}
	q.Normalize()

	targets, err := u.searchTargets(opts.Sources, provider.CapAuthorSearch)
	if err != nil {
		return nil, err
	}
	responses, errs := u.fanOut(ctx, "search_by_author", targets, func(ctx context.Context, p provider.Provider) (*domain.SearchResponse, error) {
		return u.cachedSearch(ctx, p, q, true)
	})
	return u.aggregate(q.Author, targets, responses, errs, opts.Dedupe)
}

// ---------- Lookup ----------

// Get fetches one paper. With an explicit source only that source is
// asked; otherwise the router proposes candidates that are tried in
// order until one succeeds.
func (u *PaperUsecase) Get(ctx context.Context, id, source string) (*domain.Paper, error) {
	id = strings.TrimSpace(id)
	if err := sanitize.PaperID(id); err != nil {
		return nil, err
	}

	candidates, err := u.routedCandidates(id, source, 0)
	if err != nil {
		return nil, err
	}

	var tried []string
	var lastErr error
	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paper, err := p.GetByID(ctx, id)
		if err == nil {
			return paper, nil
		}
		tried = append(tried, p.ID())
		lastErr = err
		u.logger.Debug("lookup failed",
			slog.String("provider", p.ID()),
			slog.String("paper_id", id),
			slog.String("error", err.Error()))
	}
	if errors.IsNotFound(lastErr) {
		return nil, errors.NotFound("", fmt.Sprintf("paper %q not found (tried %s)", id, strings.Join(tried, ", ")))
	}
	return nil, lastErr
}

// doiPreference orders the sources asked to resolve a DOI; the
// authoritative and least rate-limited ones go first. Registered
// DOI-capable sources missing from the list are appended after it.
var doiPreference = []domain.Source{
	domain.SourceSemanticScholar,
	domain.SourceOpenAlex,
	domain.SourceCrossref,
	domain.SourceUnpaywall,
	domain.SourceEuropePMC,
	domain.SourceHAL,
	domain.SourceCORE,
	domain.SourceZenodo,
	domain.SourceDOAJ,
	domain.SourceOSF,
	domain.SourceSpringer,
}

// LookupDOI resolves a DOI, asking only the named source when one is
// given and otherwise walking the DOI-capable sources in preference
// order until one answers.
func (u *PaperUsecase) LookupDOI(ctx context.Context, doi, source string) (*domain.Paper, error) {
	doi, err := sanitize.CanonicalDOI(doi)
	if err != nil {
		return nil, err
	}

	ordered, err := u.doiCandidates(source)
	if err != nil {
		return nil, err
	}

	var tried []string
	var lastErr error
	for _, p := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paper, err := p.GetByDOI(ctx, doi)
		if err == nil {
			return paper, nil
		}
		tried = append(tried, p.ID())
		lastErr = err
		u.logger.Debug("doi lookup failed",
			slog.String("provider", p.ID()),
			slog.String("doi", doi),
			slog.String("error", err.Error()))
	}
	if errors.IsNotFound(lastErr) {
		return nil, errors.NotFound("", fmt.Sprintf("DOI %q not found (tried %s)", doi, strings.Join(tried, ", ")))
	}
	return nil, lastErr
}

// ---------- Citations ----------

func (u *PaperUsecase) Citations(ctx context.Context, req *domain.CitationRequest, source string) (*domain.SearchResponse, error) {
	return u.links(ctx, "citations", req, source, provider.Provider.Citations)
}

func (u *PaperUsecase) References(ctx context.Context, req *domain.CitationRequest, source string) (*domain.SearchResponse, error) {
	return u.links(ctx, "references", req, source, provider.Provider.References)
}

func (u *PaperUsecase) Related(ctx context.Context, req *domain.CitationRequest, source string) (*domain.SearchResponse, error) {
	return u.links(ctx, "related", req, source, provider.Provider.Related)
}

// ---------- Files ----------

// Download resolves the paper's provider, then streams its PDF to the
// requested path (or into the configured downloads directory).
func (u *PaperUsecase) Download(ctx context.Context, req *domain.DownloadRequest, source string) (*domain.DownloadResult, error) {
	if req == nil || strings.TrimSpace(req.PaperID) == "" {
		return nil, errors.InvalidRequest("paper id must not be empty")
	}
	if err := sanitize.PaperID(req.PaperID); err != nil {
		return nil, err
	}

	candidates, err := u.routedCandidates(req.PaperID, source, provider.CapDownload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// The save path depends on the provider when downloads are
		// organized by source, so it resolves per attempt.
		attempt := *req
		attempt.SavePath = u.resolveSavePath(req.SavePath, req.PaperID, p.ID())
		res, err := p.Download(ctx, &attempt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		u.logger.Debug("download failed",
			slog.String("provider", p.ID()),
			slog.String("paper_id", req.PaperID),
			slog.String("error", err.Error()))
	}
	return nil, lastErr
}

// Read returns the extracted text of the paper's PDF, downloading a copy
// first when allowed and needed. The text is capped at the configured
// read limit.
func (u *PaperUsecase) Read(ctx context.Context, req *domain.ReadRequest, source string) (*domain.ReadResult, error) {
	if req == nil || strings.TrimSpace(req.PaperID) == "" {
		return nil, errors.InvalidRequest("paper id must not be empty")
	}
	if err := sanitize.PaperID(req.PaperID); err != nil {
		return nil, err
	}

	candidates, err := u.routedCandidates(req.PaperID, source, provider.CapRead)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempt := *req
		attempt.SavePath = u.resolveSavePath(req.SavePath, req.PaperID, p.ID())
		res, err := p.Read(ctx, &attempt)
		if err == nil {
			u.truncateRead(res)
			return res, nil
		}
		lastErr = err
		u.logger.Debug("read failed",
			slog.String("provider", p.ID()),
			slog.String("paper_id", req.PaperID),
			slog.String("error", err.Error()))
	}
	return nil, lastErr
}

// ---------- Introspection ----------

// SourceInfo is one row of the sources listing.
type SourceInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Capabilities string `json:"capabilities"`
	Enabled      bool   `json:"enabled"`
	BreakerState string `json:"breaker_state,omitempty"`
}

// Sources reports every constructed provider, whether the configuration
// enabled it, and the current breaker state for the enabled ones.
func (u *PaperUsecase) Sources() []SourceInfo {
	out := make([]SourceInfo, 0, len(u.candidates))
	for _, p := range u.candidates {
		_, enabled := u.registry.Get(p.ID())
		info := SourceInfo{
			ID:           p.ID(),
			Name:         p.Name(),
			Capabilities: p.Capabilities().String(),
			Enabled:      enabled,
		}
		if enabled && u.breakers != nil {
			info.BreakerState = u.breakers.State(p.ID())
		}
		out = append(out, info)
	}
	return out
}

// Deduplicate applies cross-source duplicate detection to papers the
// caller already holds.
func (u *PaperUsecase) Deduplicate(papers []domain.Paper, strategy dedup.Strategy) dedup.Result {
	return dedup.Dedupe(papers, strategy)
}

// Cache exposes the cache for the cache subcommands.
func (u *PaperUsecase) Cache() *cache.Cache { return u.cache }

// ---------- Fan-out plumbing ----------

type fetchFunc func(ctx context.Context, p provider.Provider) (*domain.SearchResponse, error)

// fanOut runs fetch against every target with bounded parallelism.
// Failures land in the error slice; they never cancel sibling fetches.
func (u *PaperUsecase) fanOut(ctx context.Context, op string, targets []provider.Provider, fetch fetchFunc) ([]*domain.SearchResponse, []error) {
	responses := make([]*domain.SearchResponse, len(targets))
	errs := make([]error, len(targets))

	g := new(errgroup.Group)
	g.SetLimit(u.maxConcurrent)
	for i, p := range targets {
		g.Go(func() error {
			resp, err := fetch(ctx, p)
			if err != nil {
				errs[i] = err
				u.logger.Warn("source failed",
					slog.String("op", op),
					slog.String("provider", p.ID()),
					slog.String("error", err.Error()))
				return nil
			}
			responses[i] = resp
			return nil
		})
	}
	g.Wait()
	return responses, errs
}

func (u *PaperUsecase) cachedSearch(ctx context.Context, p provider.Provider, q *domain.SearchQuery, byAuthor bool) (*domain.SearchResponse, error) {
	key := cache.SearchKey(q, p.ID())
	if resp, status := u.cache.GetSearch(key); status == cache.Hit {
		u.logger.Debug("cache hit", slog.String("provider", p.ID()), slog.String("key", key))
		return resp, nil
	}

	// The fan-out shares one query; copy it so providers that tweak
	// fields during normalization don't race each other.
	own := *q
	var resp *domain.SearchResponse
	var err error
	if byAuthor {
		resp, err = p.SearchByAuthor(ctx, &own)
	} else {
		resp, err = p.Search(ctx, &own)
	}
	if err != nil {
		return nil, err
	}
	u.cache.SetSearch(key, p.ID(), q.Query, resp)
	return resp, nil
}

func (u *PaperUsecase) aggregate(query string, targets []provider.Provider, responses []*domain.SearchResponse, errs []error, dedupe bool) (*domain.SearchResponse, error) {
	out := &domain.SearchResponse{Query: query}
	answered := 0
	for _, resp := range responses {
		if resp == nil {
			continue
		}
		answered++
		out.Papers = append(out.Papers, resp.Papers...)
		out.TotalResults += resp.TotalResults
		out.HasMore = out.HasMore || resp.HasMore
	}
	if answered == 0 {
		return nil, allFailed(targets, errs)
	}
	if len(targets) == 1 {
		out.Source = domain.Source(targets[0].ID())
	}
	if dedupe {
		res := dedup.Dedupe(out.Papers, dedup.First)
		out.Papers = res.Papers
	}
	return out, nil
}

func allFailed(targets []provider.Provider, errs []error) error {
	parts := make([]string, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			parts = append(parts, targets[i].ID()+": "+err.Error())
		}
	}
	return errors.Otherf("all sources failed: %s", strings.Join(parts, "; "))
}

// ---------- Target resolution ----------

func (u *PaperUsecase) searchTargets(ids []string, want provider.Capability) ([]provider.Provider, error) {
	if len(ids) == 0 {
		targets := u.registry.WithCapability(want)
		if len(targets) == 0 {
			return nil, errors.InvalidRequestf("no enabled source supports %s", want)
		}
		return targets, nil
	}
	out := make([]provider.Provider, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		p, err := u.registry.Require(id)
		if err != nil {
			return nil, err
		}
		if !p.Capabilities().Has(want) {
			return nil, errors.InvalidRequestf("source %q does not support %s", p.ID(), want)
		}
		if seen[p.ID()] {
			continue
		}
		seen[p.ID()] = true
		out = append(out, p)
	}
	return out, nil
}

// routedCandidates resolves which providers may serve id: the explicit
// source when given, the router's proposals otherwise. A nonzero want
// filters by capability.
func (u *PaperUsecase) routedCandidates(id, source string, want provider.Capability) ([]provider.Provider, error) {
	if source != "" {
		p, err := u.registry.Require(source)
		if err != nil {
			return nil, err
		}
		if want != 0 && !p.Capabilities().Has(want) {
			return nil, errors.InvalidRequestf("source %q does not support %s", p.ID(), want)
		}
		return []provider.Provider{p}, nil
	}

	candidates, err := provider.Route(u.registry, id)
	if err != nil {
		return nil, err
	}
	if want == 0 {
		return candidates, nil
	}
	kept := make([]provider.Provider, 0, len(candidates))
	for _, p := range candidates {
		if p.Capabilities().Has(want) {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, errors.InvalidRequestf("no routed source supports %s of %q", want, id)
	}
	return kept, nil
}

func (u *PaperUsecase) doiCandidates(source string) ([]provider.Provider, error) {
	if source != "" {
		p, err := u.registry.Require(source)
		if err != nil {
			return nil, err
		}
		if !p.Capabilities().Has(provider.CapDOILookup) {
			return nil, errors.InvalidRequestf("source %q does not support DOI lookup", p.ID())
		}
		return []provider.Provider{p}, nil
	}
	var out []provider.Provider
	seen := make(map[string]bool)
	for _, s := range doiPreference {
		if p, ok := u.registry.Get(string(s)); ok {
			out = append(out, p)
			seen[p.ID()] = true
		}
	}
	for _, p := range u.registry.WithCapability(provider.CapDOILookup) {
		if !seen[p.ID()] {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errors.InvalidRequest("no enabled source supports DOI lookup")
	}
	return out, nil
}

func (u *PaperUsecase) citationTarget(source string) (provider.Provider, error) {
	if source != "" {
		p, err := u.registry.Require(source)
		if err != nil {
			return nil, err
		}
		if !p.Capabilities().Has(provider.CapCitations) {
			return nil, errors.InvalidRequestf("source %q does not support citation lookups", p.ID())
		}
		return p, nil
	}
	if p, ok := u.registry.Get(string(domain.SourceSemanticScholar)); ok {
		return p, nil
	}
	if list := u.registry.WithCapability(provider.CapCitations); len(list) > 0 {
		return list[0], nil
	}
	return nil, errors.InvalidRequest("no enabled source supports citation lookups")
}

// ---------- Shared op bodies ----------

type linkCall func(p provider.Provider, ctx context.Context, req *domain.CitationRequest) (*domain.SearchResponse, error)

func (u *PaperUsecase) links(ctx context.Context, op string, req *domain.CitationRequest, source string, call linkCall) (*domain.SearchResponse, error) {
	if req == nil || strings.TrimSpace(req.PaperID) == "" {
		return nil, errors.InvalidRequest("paper id must not be empty")
	}
	if err := sanitize.PaperID(req.PaperID); err != nil {
		return nil, err
	}
	req.Normalize()

	p, err := u.citationTarget(source)
	if err != nil {
		return nil, err
	}

	key := cache.CitationKey(op, req.PaperID, p.ID(), req.MaxResults)
	if resp, status := u.cache.GetCitations(key); status == cache.Hit {
		u.logger.Debug("cache hit", slog.String("provider", p.ID()), slog.String("op", op))
		return resp, nil
	}

	resp, err := call(p, ctx, req)
	if err != nil {
		return nil, err
	}
	u.cache.SetCitations(key, p.ID(), req.PaperID, resp)
	return resp, nil
}

// resolveSavePath turns the caller's path (if any) into the file the PDF
// lands in. A requested path that is an existing directory or ends in a
// separator gets a generated filename; an empty request lands in the
// configured downloads directory. Generated names gain a per-source
// subdirectory when downloads are organized by source; explicit file
// paths are used verbatim.
func (u *PaperUsecase) resolveSavePath(requested, paperID, providerID string) string {
	name := sanitize.Filename(strings.ReplaceAll(paperID, "/", "_") + ".pdf")
	if u.organizeBySource && providerID != "" {
		name = filepath.Join(providerID, name)
	}
	if requested == "" {
		return filepath.Join(u.downloadDir, name)
	}
	if info, err := os.Stat(requested); err == nil && info.IsDir() {
		return filepath.Join(requested, name)
	}
	if strings.HasSuffix(requested, string(os.PathSeparator)) {
		return filepath.Join(requested, name)
	}
	return requested
}

func (u *PaperUsecase) truncateRead(res *domain.ReadResult) {
	if u.maxReadChars <= 0 || len(res.Text) <= u.maxReadChars {
		return
	}
	runes := []rune(res.Text)
	if len(runes) <= u.maxReadChars {
		return
	}
	res.Text = string(runes[:u.maxReadChars])
	res.Truncated = true
}
