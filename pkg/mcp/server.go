// Package mcp exposes deckgen's runs and card sets to MCP clients over stdio.
package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/pario-ai/deckgen/pkg/models"
	"github.com/pario-ai/deckgen/pkg/tracker"
)

// CardSource reads saved card sets without coupling to a concrete store.
type CardSource interface {
	ListSets() ([]models.CardSetInfo, error)
	LoadChunks(name string) (models.CardSet, error)
}

// CallStatter provides gateway call statistics.
type CallStatter interface {
	Stats(ctx context.Context) ([]models.CallStat, error)
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	tracker tracker.Tracker
	cards   CardSource
	calls   CallStatter
	version string
}

// New creates a new MCP Server. calls may be nil when auditing is disabled.
func New(t tracker.Tracker, cards CardSource, calls CallStatter, version string) *Server {
	return &Server{
		tracker: t,
		cards:   cards,
		calls:   calls,
		version: version,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, *errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			continue
		}
		s.writeResponse(w, *resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		if req.isNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request")
	}
	if req.isNotification() {
		log.Debug().Str("method", req.Method).Msg("mcp: notification")
		return nil
	}

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: serverName, Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) (resp *Response) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tool", params.Name).Interface("panic", r).Msg("mcp: tool handler panicked")
			resp = errorResponse(req.ID, CodeInternalError, "internal error")
		}
	}()

	log.Debug().Str("tool", params.Name).Msg("mcp: tool call")
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("mcp: marshal response")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		log.Error().Err(err).Msg("mcp: write response")
	}
}
