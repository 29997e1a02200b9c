package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/core/ports"
)

const (
	serverName    = "grounding-corpus"
	serverVersion = "0.1.0"

	toolSearch       = "search_corpus"
	toolSourceStatus = "get_source_status"
)

// Server exposes corpus retrieval and source status to a conversational agent over MCP.
type Server struct {
	searcher ports.CorpusSearcher
	sources  ports.SourceReader
	logger   *slog.Logger
	mcp      *server.MCPServer
}

func NewServer(searcher ports.CorpusSearcher, sources ports.SourceReader, logger *slog.Logger) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("mcp server requires a searcher")
	}
	if sources == nil {
		return nil, errors.New("mcp server requires a source reader")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		searcher: searcher,
		sources:  sources,
		logger:   logger,
		mcp:      server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(toolSearch,
		mcp.WithDescription("Find corpus passages relevant to a question. Returns an empty list when nothing is close enough."),
		mcp.WithString("query", mcp.Required(), mcp.Description("natural language question or keywords")),
		mcp.WithNumber("distance_threshold", mcp.Description("optional cosine distance cutoff in [0, 2]; lower is stricter")),
		mcp.WithNumber("limit", mcp.Description("maximum number of passages to return")),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool(toolSourceStatus,
		mcp.WithDescription("Report the ingestion status of one uploaded source."),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("source id returned by the upload")),
	), s.handleSourceStatus)
}

// Serve speaks JSON-RPC over the given streams until ctx is done.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

type searchOutput struct {
	Success bool                  `json:"success"`
	Results []domain.SearchResult `json:"results"`
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := domain.SearchRequest{
		Query: query,
		Limit: request.GetInt("limit", 0),
	}
	if raw, ok := request.GetArguments()["distance_threshold"]; ok {
		threshold, ok := raw.(float64)
		if !ok {
			return mcp.NewToolResultError("distance_threshold must be a number"), nil
		}
		req.DistanceThreshold = &threshold
	}

	results, err := s.searcher.Search(ctx, req)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		s.logger.Error("mcp search failed", "kind", domain.KindName(err), "error", err)
		return mcp.NewToolResultError("search unavailable"), nil
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	return jsonResult(searchOutput{Success: true, Results: results})
}

func (s *Server) handleSourceStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceID, err := request.RequireString("source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	source, err := s.sources.GetSourceStatus(ctx, sourceID)
	if err != nil {
		if domain.IsKind(err, domain.ErrSourceNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("source %s not found", sourceID)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(source)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
