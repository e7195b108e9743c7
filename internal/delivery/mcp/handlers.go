package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"research-master/internal/dedup"
	"research-master/internal/domain"
	"research-master/internal/usecase"
)

// handler adapts tool calls onto the orchestrator. Operation failures
// are returned as tool errors so the model sees the message; only
// argument-binding bugs surface as protocol errors.
type handler struct {
	uc     *usecase.PaperUsecase
	logger *slog.Logger
}

func textJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("encoding result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

// splitSources turns the tool's comma-separated source argument into the
// orchestrator's list form.
func splitSources(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *handler) searchPapers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	q := domain.NewSearchQuery(query)
	q.MaxResults = req.GetInt("max_results", domain.DefaultSearchResults)
	q.Year = req.GetString("year", "")
	q.Author = req.GetString("author", "")
	q.Category = req.GetString("category", "")

	resp, err := h.uc.Search(ctx, q, usecase.SearchOptions{
		Sources: splitSources(req.GetString("source", "")),
		Dedupe:  req.GetBool("dedupe", false),
	})
	if err != nil {
		return toolError(err)
	}
	return textJSON(resp)
}

func (h *handler) searchByAuthor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	author, err := req.RequireString("author")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	q := domain.NewSearchQuery("")
	q.Author = author
	q.MaxResults = req.GetInt("max_results", domain.DefaultSearchResults)
	q.Year = req.GetString("year", "")

	resp, err := h.uc.SearchByAuthor(ctx, q, usecase.SearchOptions{
		Sources: splitSources(req.GetString("source", "")),
	})
	if err != nil {
		return toolError(err)
	}
	return textJSON(resp)
}

func (h *handler) getPaper(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("paper_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paper, err := h.uc.Get(ctx, id, req.GetString("source", ""))
	if err != nil {
		return toolError(err)
	}
	return textJSON(paper)
}

func (h *handler) downloadPaper(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("paper_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	// With auto_filename the output path is a directory and the file is
	// named after the paper; the trailing separator tells the resolver
	// so even a directory that does not exist yet is treated as one.
	out := req.GetString("output_path", "./downloads")
	if req.GetBool("auto_filename", true) && !strings.HasSuffix(out, string(os.PathSeparator)) {
		out += string(os.PathSeparator)
	}
	res, err := h.uc.Download(ctx, &domain.DownloadRequest{
		PaperID:  id,
		DOI:      req.GetString("doi", ""),
		SavePath: out,
	}, req.GetString("source", ""))
	if err != nil {
		return toolError(err)
	}
	return textJSON(res)
}

func (h *handler) readPaper(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("paper_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := h.uc.Read(ctx, &domain.ReadRequest{
		PaperID:           id,
		SavePath:          req.GetString("save_path", ""),
		DownloadIfMissing: req.GetBool("download_if_missing", true),
	}, req.GetString("source", ""))
	if err != nil {
		return toolError(err)
	}
	return textJSON(res)
}

func (h *handler) getCitations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.linkTool(ctx, req, h.uc.Citations)
}

func (h *handler) getReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.linkTool(ctx, req, h.uc.References)
}

func (h *handler) linkTool(ctx context.Context, req mcp.CallToolRequest, call func(context.Context, *domain.CitationRequest, string) (*domain.SearchResponse, error)) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("paper_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	creq := domain.NewCitationRequest(id)
	creq.MaxResults = req.GetInt("max_results", domain.DefaultCitationResults)

	resp, err := call(ctx, creq, req.GetString("source", ""))
	if err != nil {
		return toolError(err)
	}
	return textJSON(resp)
}

func (h *handler) lookupByDOI(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doi, err := req.RequireString("doi")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paper, err := h.uc.LookupDOI(ctx, doi, req.GetString("source", ""))
	if err != nil {
		return toolError(err)
	}
	return textJSON(paper)
}

type deduplicateArgs struct {
	Papers   []domain.Paper `json:"papers"`
	Strategy string         `json:"strategy,omitempty"`
}

func (h *handler) deduplicatePapers(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args deduplicateArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError("papers must be a JSON array of paper records: " + err.Error()), nil
	}
	if len(args.Papers) == 0 {
		return mcp.NewToolResultError("papers must not be empty"), nil
	}
	strategy, err := dedup.ParseStrategy(args.Strategy)
	if err != nil {
		return toolError(err)
	}
	return textJSON(h.uc.Deduplicate(args.Papers, strategy))
}
