package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"research-master/internal/dedup"
	"research-master/internal/domain"
	"research-master/internal/usecase"
)

type searchCmd struct {
	Query    string   `arg:"" help:"Search terms."`
	Source   []string `help:"Source ids to query (repeatable). Empty queries all search-capable sources."`
	Max      int      `default:"10" help:"Maximum results per source (1-100)."`
	Year     string   `help:"Year filter: 2020, 2018-2022, 2019- or -2021."`
	Author   string   `help:"Restrict to papers by this author."`
	Category string   `help:"Subject category, e.g. cs.LG."`
	Dedupe   bool     `help:"Collapse cross-source duplicates."`
}

func (c *searchCmd) Run(g *globalOptions) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}
	ctx, cancel := g.opContext()
	defer cancel()

	q := domain.NewSearchQuery(c.Query)
	q.MaxResults = c.Max
	q.Year = c.Year
	q.Author = c.Author
	q.Category = c.Category

	resp, err := app.uc.Search(ctx, q, usecase.SearchOptions{Sources: c.Source, Dedupe: c.Dedupe})
	if err != nil {
		return err
	}
	return renderSearch(os.Stdout, g.format(), resp)
}

type authorCmd struct {
	Name   string   `arg:"" help:"Author name."`
	Source []string `help:"Source ids to query (repeatable)."`
	Max    int      `default:"10" help:"Maximum results per source (1-100)."`
	Year   string   `help:"Year filter."`
}

func (c *authorCmd) Run(g *globalOptions) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}
	ctx, cancel := g.opContext()
	defer cancel()

	q := domain.NewSearchQuery("")
	q.Author = c.Name
	q.MaxResults = c.Max
	q.Year = c.Year

	resp, err := app.uc.SearchByAuthor(ctx, q, usecase.SearchOptions{Sources: c.Source})
	if err != nil {
		return err
	}
	return renderSearch(os.Stdout, g.format(), resp)
}

type downloadCmd struct {
	ID     string `arg:"" help:"Paper identifier (arXiv id, PMC id, DOI, ...)."`
	Source string `help:"Source id to ask directly."`
	DOI    string `help:"DOI hint for sources that resolve PDFs by DOI."`
	Out    string `type:"path" help:"Target file or directory (default: configured downloads directory)."`
}

func (c *downloadCmd) Run(g *globalOptions) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}
	ctx, cancel := g.opContext()
	defer cancel()

	res, err := app.uc.Download(ctx, &domain.DownloadRequest{
		PaperID:  c.ID,
		DOI:      c.DOI,
		SavePath: c.Out,
	}, c.Source)
	if err != nil {
		return err
	}
	return renderDownload(os.Stdout, g.format(), res)
}

type readCmd struct {
	ID         string `arg:"" help:"Paper identifier."`
	Source     string `help:"Source id to ask directly."`
	Path       string `type:"path" help:"Where the PDF lives or should land."`
	NoDownload bool   `help:"Fail instead of downloading when the PDF is missing."`
}

func (c *readCmd) Run(g *globalOptions) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}
	ctx, cancel := g.opContext()
	defer cancel()

	res, err := app.uc.Read(ctx, &domain.ReadRequest{
		PaperID:           c.ID,
		SavePath:          c.Path,
		DownloadIfMissing: !c.NoDownload,
	}, c.Source)
	if err != nil {
		return err
	}
	return renderRead(os.Stdout, g.format(), res)
}

type citationsCmd struct {
	ID     string `arg:"" help:"Paper identifier."`
	Source string `help:"Citation source (default semanticscholar)."`
	Max    int    `default:"20" help:"Maximum results (1-100)."`
}

func (c *citationsCmd) Run(g *globalOptions) error {
	return runLinks(g, c.ID, c.Source, c.Max, (*usecase.PaperUsecase).Citations)
}

type referencesCmd struct {
	ID     string `arg:"" help:"Paper identifier."`
	Source string `help:"Citation source (default semanticscholar)."`
	Max    int    `default:"20" help:"Maximum results (1-100)."`
}

func (c *referencesCmd) Run(g *globalOptions) error {
	return runLinks(g, c.ID, c.Source, c.Max, (*usecase.PaperUsecase).References)
}

type relatedCmd struct {
	ID     string `arg:"" help:"Paper identifier."`
	Source string `help:"Source for related-paper lookups."`
	Max    int    `default:"20" help:"Maximum results (1-100)."`
}

func (c *relatedCmd) Run(g *globalOptions) error {
	return runLinks(g, c.ID, c.Source, c.Max, (*usecase.PaperUsecase).Related)
}

func runLinks(g *globalOptions, id, source string, max int, call func(*usecase.PaperUsecase, context.Context, *domain.CitationRequest, string) (*domain.SearchResponse, error)) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}
	ctx, cancel := g.opContext()
	defer cancel()

	req := domain.NewCitationRequest(id)
	req.MaxResults = max

	resp, err := call(app.uc, ctx, req, source)
	if err != nil {
		return err
	}
	return renderSearch(os.Stdout, g.format(), resp)
}

type lookupDOICmd struct {
	DOI    string `arg:"" help:"DOI, with or without the https://doi.org/ prefix."`
	Source string `help:"Source id to ask directly. Empty tries DOI-capable sources in preference order."`
}

func (c *lookupDOICmd) Run(g *globalOptions) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}
	ctx, cancel := g.opContext()
	defer cancel()

	paper, err := app.uc.LookupDOI(ctx, c.DOI, c.Source)
	if err != nil {
		return err
	}
	return renderPaper(os.Stdout, g.format(), paper)
}

type sourcesCmd struct{}

func (c *sourcesCmd) Run(g *globalOptions) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}
	return renderSources(os.Stdout, g.format(), app.uc.Sources())
}

type dedupeCmd struct {
	File     string `type:"existingfile" help:"JSON file of papers (defaults to stdin)."`
	Strategy string `enum:"first,last,mark" default:"first" help:"first keeps the first of each duplicate group, last the last, mark keeps all and labels duplicates."`
}

func (c *dedupeCmd) Run(g *globalOptions) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}

	var data []byte
	if c.File != "" {
		data, err = os.ReadFile(c.File)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}

	papers, err := decodePapers(data)
	if err != nil {
		return err
	}
	strategy, err := dedup.ParseStrategy(c.Strategy)
	if err != nil {
		return err
	}
	return renderDedupe(os.Stdout, g.format(), app.uc.Deduplicate(papers, strategy))
}

// decodePapers accepts either a bare JSON array of papers or a search
// response object, so `search -o json | dedupe` pipes directly.
func decodePapers(data []byte) ([]domain.Paper, error) {
	var papers []domain.Paper
	if err := json.Unmarshal(data, &papers); err == nil {
		return papers, nil
	}
	var resp domain.SearchResponse
	if err := json.Unmarshal(data, &resp); err == nil && len(resp.Papers) > 0 {
		return resp.Papers, nil
	}
	return nil, fmt.Errorf("input must be a JSON array of papers or a search response object")
}

type cacheCmd struct {
	Status         cacheStatusCmd         `cmd:"" default:"1" help:"Show cache location and contents."`
	Clear          cacheClearCmd          `cmd:"" help:"Delete every cached response."`
	ClearSearches  cacheClearSearchesCmd  `cmd:"" name:"clear-searches" help:"Delete cached search responses."`
	ClearCitations cacheClearCitationsCmd `cmd:"" name:"clear-citations" help:"Delete cached citation responses."`
}

type cacheStatusCmd struct{}

func (c *cacheStatusCmd) Run(g *globalOptions) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}
	return renderCacheStats(os.Stdout, g.format(), app.uc.Cache().Stats())
}

type cacheClearCmd struct{}

func (c *cacheClearCmd) Run(g *globalOptions) error {
	return runClear(g, "cached responses", func(a *app) (int, error) { return a.uc.Cache().ClearAll() })
}

type cacheClearSearchesCmd struct{}

func (c *cacheClearSearchesCmd) Run(g *globalOptions) error {
	return runClear(g, "cached searches", func(a *app) (int, error) { return a.uc.Cache().ClearSearches() })
}

type cacheClearCitationsCmd struct{}

func (c *cacheClearCitationsCmd) Run(g *globalOptions) error {
	return runClear(g, "cached citation lookups", func(a *app) (int, error) { return a.uc.Cache().ClearCitations() })
}

func runClear(g *globalOptions, what string, clear func(*app) (int, error)) error {
	app, err := g.newApp()
	if err != nil {
		return err
	}
	n, err := clear(app)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d %s\n", n, what)
	return nil
}
