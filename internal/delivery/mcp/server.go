// Package mcp exposes the orchestrator as a Model Context Protocol tool
// server, over stdio for local agents and over streamable HTTP behind
// the serve command.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"research-master/internal/usecase"
	"research-master/internal/version"
)

const serverName = "research-master"

// Server owns the MCP server and its registered tools.
type Server struct {
	mcp    *server.MCPServer
	logger *slog.Logger
}

func New(uc *usecase.PaperUsecase, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{uc: uc, logger: logger}

	s := server.NewMCPServer(serverName, version.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("search_papers",
		mcp.WithDescription("Search academic papers across scholarly sources. Returns a merged result set; pass source to restrict to specific providers."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
		mcp.WithString("source", mcp.Description("Comma-separated source ids, e.g. \"arxiv,openalex\". Empty searches all search-capable sources")),
		mcp.WithNumber("max_results", mcp.Description("Maximum results per source (1-100, default 10)")),
		mcp.WithString("year", mcp.Description("Year filter: \"2020\", \"2018-2022\", \"2019-\" or \"-2021\"")),
		mcp.WithString("author", mcp.Description("Restrict to papers by this author")),
		mcp.WithString("category", mcp.Description("Subject category, e.g. an arXiv category like cs.LG")),
		mcp.WithBoolean("dedupe", mcp.Description("Collapse cross-source duplicates in the merged set")),
	), h.searchPapers)

	s.AddTool(mcp.NewTool("search_by_author",
		mcp.WithDescription("Find papers written by an author, across sources that support author search."),
		mcp.WithString("author", mcp.Required(), mcp.Description("Author name")),
		mcp.WithString("source", mcp.Description("Comma-separated source ids")),
		mcp.WithNumber("max_results", mcp.Description("Maximum results per source (1-100, default 10)")),
		mcp.WithString("year", mcp.Description("Year filter")),
	), h.searchByAuthor)

	s.AddTool(mcp.NewTool("get_paper",
		mcp.WithDescription("Fetch one paper's metadata by identifier (arXiv id, PMID, PMC id, DOI, HAL id, ...). The identifier shape picks the source unless one is given."),
		mcp.WithString("paper_id", mcp.Required(), mcp.Description("Paper identifier")),
		mcp.WithString("source", mcp.Description("Source id to ask directly")),
	), h.getPaper)

	s.AddTool(mcp.NewTool("download_paper",
		mcp.WithDescription("Download a paper's PDF to disk and return the file path."),
		mcp.WithString("paper_id", mcp.Required(), mcp.Description("Paper identifier")),
		mcp.WithString("source", mcp.Description("Source id to ask directly")),
		mcp.WithString("output_path", mcp.Description("Directory the PDF lands in (default \"./downloads\")")),
		mcp.WithBoolean("auto_filename", mcp.Description("Name the file after the paper id (default true); false treats output_path as the exact file path")),
		mcp.WithString("doi", mcp.Description("DOI hint for sources that resolve PDFs by DOI")),
	), h.downloadPaper)

	s.AddTool(mcp.NewTool("read_paper",
		mcp.WithDescription("Extract the text of a paper's PDF, downloading it first if needed."),
		mcp.WithString("paper_id", mcp.Required(), mcp.Description("Paper identifier")),
		mcp.WithString("source", mcp.Description("Source id to ask directly")),
		mcp.WithString("save_path", mcp.Description("Where the PDF lives or should land")),
		mcp.WithBoolean("download_if_missing", mcp.Description("Download the PDF when absent (default true)")),
	), h.readPaper)

	s.AddTool(mcp.NewTool("get_citations",
		mcp.WithDescription("List papers that cite the given paper."),
		mcp.WithString("paper_id", mcp.Required(), mcp.Description("Paper identifier")),
		mcp.WithString("source", mcp.Description("Citation source (default semanticscholar)")),
		mcp.WithNumber("max_results", mcp.Description("Maximum citations (default 20)")),
	), h.getCitations)

	s.AddTool(mcp.NewTool("get_references",
		mcp.WithDescription("List the papers the given paper cites."),
		mcp.WithString("paper_id", mcp.Required(), mcp.Description("Paper identifier")),
		mcp.WithString("source", mcp.Description("Citation source (default semanticscholar)")),
		mcp.WithNumber("max_results", mcp.Description("Maximum references (default 20)")),
	), h.getReferences)

	s.AddTool(mcp.NewTool("lookup_by_doi",
		mcp.WithDescription("Resolve a DOI to paper metadata, trying DOI-capable sources in preference order."),
		mcp.WithString("doi", mcp.Required(), mcp.Description("DOI, with or without a https://doi.org/ prefix")),
		mcp.WithString("source", mcp.Description("Source id to ask directly; empty tries DOI-capable sources in preference order")),
	), h.lookupByDOI)

	s.AddTool(mcp.NewTool("deduplicate_papers",
		mcp.WithDescription("Detect cross-source duplicates in a list of paper records, by DOI and fuzzy title+author matching."),
		mcp.WithArray("papers", mcp.Required(), mcp.Description("Paper records as returned by search_papers")),
		mcp.WithString("strategy", mcp.Description("first keeps the first of each group, last the last, mark keeps all and labels duplicates"), mcp.Enum("first", "last", "mark")),
	), h.deduplicatePapers)

	return &Server{mcp: s, logger: logger}
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}
