// Package mcpserver exposes the answering engine to MCP clients over
// stdio. Assistants call rag_query for cited answers and rag_stats for
// knowledge base diagnostics; both tools front the same engine the CLI
// and HTTP server use.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ragweaver/ragweaver/internal/pipeline"
	"github.com/ragweaver/ragweaver/internal/rag"
	"github.com/ragweaver/ragweaver/pkg/version"
)

// Engine is the answering surface exposed as MCP tools.
type Engine interface {
	Ask(ctx context.Context, question string) (*rag.RunRecord, error)
	Stats(ctx context.Context) pipeline.ComponentStats
}

// QueryInput is the rag_query tool input.
type QueryInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the project knowledge base"`
}

// QueryOutput is the rag_query tool output.
type QueryOutput struct {
	Answer     string  `json:"answer" jsonschema:"synthesized answer with [Doc N] citations"`
	Confidence float64 `json:"confidence" jsonschema:"answer confidence between 0 and 1"`
	Intent     string  `json:"intent" jsonschema:"classified question intent"`
	Retrieved  int     `json:"retrieved" jsonschema:"documents retrieved before re-ranking"`
	Reranked   int     `json:"reranked" jsonschema:"documents kept after re-ranking"`
	FromCache  bool    `json:"from_cache" jsonschema:"true when served from the answer cache"`
	ElapsedSec float64 `json:"elapsed_sec" jsonschema:"end-to-end latency in seconds"`
}

// StatsInput is the rag_stats tool input.
type StatsInput struct{}

// Server bridges MCP clients and the answering engine.
type Server struct {
	engine Engine
	mcp    *mcp.Server
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds the MCP server and registers its tools.
func New(engine Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("mcpserver: engine is required")
	}
	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "ragweaver",
		Version: version.Version,
	}, nil)
	s.register()
	return s, nil
}

func (s *Server) register() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "rag_query",
		Description: "Answer a question from the project knowledge base. Retrieves across " +
			"vector, keyword, symbol, and graph indexes, re-ranks the candidates, and " +
			"synthesizes an answer with [Doc N] citations.",
	}, s.handleQuery)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "rag_stats",
		Description: "Report knowledge base size, cache state, and rolling run metrics " +
			"for the current project.",
	}, s.handleStats)

	s.logger.Debug("mcp_tools_registered", "count", 2)
}

// Run serves MCP over stdio until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp_serving", "transport", "stdio")
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: %w", err)
	}
	s.logger.Info("mcp_stopped")
	return nil
}

func (s *Server) handleQuery(ctx context.Context, req *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, QueryOutput{}, errors.New("question parameter is required")
	}

	rec, err := s.engine.Ask(ctx, input.Question)
	if err != nil {
		s.logger.Error("mcp_query_failed", "error", err)
		return nil, QueryOutput{}, fmt.Errorf("query failed: %w", err)
	}

	return nil, QueryOutput{
		Answer:     rec.Answer,
		Confidence: rec.Confidence,
		Intent:     string(rec.Intent),
		Retrieved:  rec.Retrieved,
		Reranked:   rec.Reranked,
		FromCache:  rec.FromCache,
		ElapsedSec: rec.ElapsedSec,
	}, nil
}

func (s *Server) handleStats(ctx context.Context, req *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, pipeline.ComponentStats, error) {
	return nil, s.engine.Stats(ctx), nil
}
