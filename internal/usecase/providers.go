package usecase

import (
	"log/slog"

	"research-master/internal/breaker"
	"research-master/internal/config"
	"research-master/internal/httpx"
	"research-master/internal/provider"
	"research-master/internal/retry"
	"research-master/internal/version"
	"research-master/pkg/acm"
	"research-master/pkg/arxiv"
	"research-master/pkg/base"
	"research-master/pkg/biorxiv"
	"research-master/pkg/connectedpapers"
	"research-master/pkg/core"
	"research-master/pkg/crossref"
	"research-master/pkg/dblp"
	"research-master/pkg/dimensions"
	"research-master/pkg/doaj"
	"research-master/pkg/europepmc"
	"research-master/pkg/googlescholar"
	"research-master/pkg/hal"
	"research-master/pkg/iacr"
	"research-master/pkg/ieee"
	"research-master/pkg/jstor"
	"research-master/pkg/mdpi"
	"research-master/pkg/openalex"
	"research-master/pkg/osf"
	"research-master/pkg/pmc"
	"research-master/pkg/pubmed"
	"research-master/pkg/scispace"
	"research-master/pkg/semanticscholar"
	"research-master/pkg/springer"
	"research-master/pkg/ssrn"
	"research-master/pkg/unpaywall"
	"research-master/pkg/worldwidescience"
	"research-master/pkg/zenodo"
)

// builder assembles the shared provider.Client plumbing so each adapter
// constructor below stays a one-liner.
type builder struct {
	cfg      *config.Config
	breakers *breaker.Manager
	logger   *slog.Logger
}

// client builds the resilient client for one provider: rate limit from
// configuration, retry policy, breaker, plus any extra substrate options
// (static headers, a polite-pool User-Agent).
func (b *builder) client(id string, pol retry.Policy, opts ...httpx.Option) *provider.Client {
	opts = append(opts, httpx.WithRateLimit(b.cfg.RatePerSecond(id), 1))
	return provider.NewClient(id, httpx.New(opts...), pol, b.breakers, b.logger)
}

// downloadable attaches the long-timeout large-body substrate used for
// PDF transfers. The download client shares the provider's rate limit,
// and transfers are capped at the configured file size.
func (b *builder) downloadable(c *provider.Client, id string) *provider.Client {
	return c.WithDownloadClient(httpx.New(
		httpx.WithTimeout(httpx.DownloadTimeout),
		httpx.WithMaxBodyBytes(httpx.DownloadMaxBody),
		httpx.WithRateLimit(b.cfg.RatePerSecond(id), 1),
	)).WithDownloadCap(b.cfg.Downloads.MaxFileBytes())
}

// politeUA appends the polite-pool contact to the stock User-Agent;
// OpenAlex, Crossref and friends key their faster pools off a mailto.
func politeUA(email string) httpx.Option {
	if email == "" {
		return httpx.WithUserAgent(version.UserAgent())
	}
	return httpx.WithUserAgent(version.UserAgent() + " (mailto:" + email + ")")
}

// BuildProviders constructs every adapter the binary knows about, keyed
// and rate-limited from the configuration. Google Scholar is built only
// when explicitly opted in; everything else is always constructed and
// left to the registry's enable/disable filters.
func BuildProviders(cfg *config.Config, bm *breaker.Manager, logger *slog.Logger) []provider.Provider {
	if logger == nil {
		logger = slog.Default()
	}
	b := &builder{cfg: cfg, breakers: bm, logger: logger}
	std := retry.Default()
	strict := retry.Strict()

	providers := []provider.Provider{
		arxiv.New(b.downloadable(b.client("arxiv", std), "arxiv")),
		pubmed.New(b.client("pubmed", std), cfg.APIKey("pubmed")),
		pmc.New(b.downloadable(b.client("pmc", std), "pmc"), cfg.APIKey("pmc")),
		biorxiv.New(b.downloadable(b.client("biorxiv", std), "biorxiv"), biorxiv.ServerBioRxiv),
		biorxiv.New(b.downloadable(b.client("medrxiv", std), "medrxiv"), biorxiv.ServerMedRxiv),
		semanticscholar.New(b.downloadable(b.client("semanticscholar", std, s2Options(cfg)...), "semanticscholar")),
		openalex.New(b.client("openalex", std, politeUA(cfg.APIKey("openalex")))),
		crossref.New(b.client("crossref", std, politeUA(cfg.APIKey("crossref")))),
		hal.New(b.client("hal", std)),
		dblp.New(b.client("dblp", std)),
		iacr.New(b.downloadable(b.client("iacr", std), "iacr")),
		ssrn.New(b.client("ssrn", strict)),
		europepmc.New(b.client("europepmc", std)),
		core.New(b.client("core", std), cfg.APIKey("core")),
		zenodo.New(b.client("zenodo", std)),
		unpaywall.New(b.client("unpaywall", std, politeUA(cfg.APIKey("unpaywall"))), cfg.APIKey("unpaywall")),
		mdpi.New(b.client("mdpi", strict)),
		jstor.New(b.client("jstor", strict)),
		scispace.New(b.client("scispace", std), cfg.APIKey("scispace")),
		acm.New(b.client("acm", strict)),
		connectedpapers.New(b.client("connectedpapers", strict)),
		doaj.New(b.client("doaj", std)),
		worldwidescience.New(b.client("worldwidescience", strict)),
		osf.New(b.client("osf", std)),
		base.New(b.client("base", std)),
		springer.New(b.client("springer", std), cfg.APIKey("springer")),
		ieee.New(b.client("ieee", std), cfg.APIKey("ieee")),
		dimensions.New(b.client("dimensions", std), cfg.APIKey("dimensions")),
	}

	if cfg.Sources.GoogleScholarEnabled {
		providers = append(providers, googlescholar.New(b.client("googlescholar", strict)))
	} else {
		logger.Debug("google scholar disabled; set sources.google_scholar_enabled or GOOGLE_SCHOLAR_ENABLED to opt in")
	}
	return providers
}

func s2Options(cfg *config.Config) []httpx.Option {
	if key := cfg.APIKey("semanticscholar"); key != "" {
		return []httpx.Option{httpx.WithHeader("x-api-key", key)}
	}
	return nil
}
