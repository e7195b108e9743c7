// research-master searches, fetches and reads academic papers across
// scholarly sources, from the command line or as an MCP tool server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"research-master/internal/breaker"
	"research-master/internal/cache"
	"research-master/internal/config"
	"research-master/internal/provider"
	"research-master/internal/usecase"
	"research-master/internal/version"
)

type cli struct {
	globalOptions

	Search      searchCmd     `cmd:"" help:"Search papers across sources."`
	Author      authorCmd     `cmd:"" help:"Search papers by author name."`
	Download    downloadCmd   `cmd:"" help:"Download a paper's PDF."`
	Read        readCmd       `cmd:"" help:"Extract the text of a paper's PDF."`
	Citations   citationsCmd  `cmd:"" help:"List papers that cite a paper."`
	References  referencesCmd `cmd:"" help:"List the papers a paper cites."`
	Related     relatedCmd    `cmd:"" help:"List papers related to a paper."`
	LookupByDOI lookupDOICmd  `cmd:"" name:"lookup-by-doi" aliases:"doi" help:"Resolve a DOI to paper metadata."`
	Sources     sourcesCmd    `cmd:"" help:"List sources with capabilities and circuit state."`
	Serve       serveCmd      `cmd:"" help:"Run the MCP tool server (stdio or HTTP)."`
	Dedupe      dedupeCmd     `cmd:"" help:"Deduplicate a JSON list of papers."`
	Cache       cacheCmd      `cmd:"" help:"Inspect or clear the response cache."`
}

type globalOptions struct {
	Verbose int              `short:"v" type:"counter" help:"Increase log verbosity (repeat for debug)."`
	Quiet   bool             `short:"q" help:"Log errors only."`
	Output  string           `short:"o" enum:"auto,table,json,plain" default:"auto" help:"Output format: auto, table, json or plain."`
	Config  string           `type:"path" help:"Path to a config file (TOML)."`
	Timeout int              `default:"60" help:"Operation timeout in seconds."`
	NoCache bool             `help:"Bypass the response cache for this invocation."`
	Env     envFlag          `help:"List recognized environment variables and exit."`
	Version kong.VersionFlag `help:"Print the version and exit."`
}

// envFlag short-circuits parsing, like kong's VersionFlag.
type envFlag bool

func (envFlag) BeforeApply(app *kong.Kong) error {
	for _, v := range config.RecognizedEnvVars() {
		fmt.Fprintln(app.Stdout, v)
	}
	app.Exit(0)
	return nil
}

func (g *globalOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	switch {
	case g.Quiet:
		level = slog.LevelError
	case g.Verbose >= 2:
		level = slog.LevelDebug
	case g.Verbose == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// opContext carries the --timeout budget and cancels on Ctrl-C.
func (g *globalOptions) opContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if g.Timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.Timeout)*time.Second)
	return ctx, func() { cancel(); stop() }
}

// app is everything a command needs, assembled from configuration.
type app struct {
	cfg    *config.Config
	uc     *usecase.PaperUsecase
	logger *slog.Logger
}

func (g *globalOptions) newApp() (*app, error) {
	logger := g.logger()
	slog.SetDefault(logger)

	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}

	cacheCfg := cache.Config{
		Enabled:     cfg.Cache.Enabled && !g.NoCache,
		Directory:   cfg.Cache.Directory,
		SearchTTL:   cfg.Cache.SearchTTL(),
		CitationTTL: cfg.Cache.CitationTTL(),
		MaxBytes:    cfg.Cache.MaxSizeBytes(),
	}
	responses := cache.New(cacheCfg, logger)
	breakers := breaker.NewManager(breaker.DefaultConfig(), logger)

	candidates := usecase.BuildProviders(cfg, breakers, logger)
	registry, err := provider.NewRegistry(candidates, cfg.Sources.Enabled, cfg.Sources.Disabled)
	if err != nil {
		return nil, err
	}

	uc := usecase.NewPaperUsecase(registry, responses, breakers, usecase.Options{
		Candidates:       candidates,
		DownloadDir:      cfg.DownloadDir(),
		OrganizeBySource: cfg.Downloads.OrganizeBySource,
		MaxReadChars:     cfg.Downloads.MaxReadChars,
		MaxConcurrent:    cfg.MaxConcurrent(),
	}, logger)

	return &app{cfg: cfg, uc: uc, logger: logger}, nil
}

func main() {
	var c cli
	parser := kong.Must(&c,
		kong.Name("research-master"),
		kong.Description("Federated academic paper search, retrieval and citation lookup."),
		kong.Vars{"version": version.Version},
	)

	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.Errorf("%s", err)
		os.Exit(2)
	}

	if err := ctx.Run(&c.globalOptions); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
