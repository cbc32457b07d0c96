// Package mcp serves giftrouter's recommendation and reporting tools over
// the Model Context Protocol (JSON-RPC 2.0 on stdio).
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/giftrouter/pkg/classifier"
	"github.com/pario-ai/giftrouter/pkg/models"
	"github.com/pario-ai/giftrouter/pkg/recommend"
	"github.com/pario-ai/giftrouter/pkg/tracker"
)

// UsageReader reads persisted per-provider usage.
type UsageReader interface {
	Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error)
}

// Options configures the optional tools of a Server.
type Options struct {
	// Classifier backs giftrouter_classify. The tool reports an error when nil.
	Classifier *classifier.Classifier
	// Ledger backs giftrouter_usage. The tool reports that the ledger is off when nil.
	Ledger UsageReader
	// Estimate backs giftrouter_cost_estimate.
	Estimate func() tracker.Estimate
	Logger   zerolog.Logger
	Version  string
}

// Server is a minimal MCP server.
type Server struct {
	svc        *recommend.Service
	classifier *classifier.Classifier
	ledger     UsageReader
	estimate   func() tracker.Estimate
	log        zerolog.Logger
	version    string
}

// New creates a Server over svc.
func New(svc *recommend.Service, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		svc:        svc,
		classifier: opts.Classifier,
		ledger:     opts.Ledger,
		estimate:   opts.Estimate,
		log:        opts.Logger,
		version:    opts.Version,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, failure(nil, CodeParseError, "parse error"))
			continue
		}
		if req.JSONRPC != "2.0" {
			s.writeResponse(w, failure(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\""))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "giftrouter", Version: s.version},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return result(req.ID, struct{}{})
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return failure(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return failure(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.log.Debug().Str("tool", params.Name).Msg("mcp tool call")
	return result(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("mcp: marshal response")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("mcp: write response")
	}
}
