// Package server exposes the gateway's tools over the Model Context
// Protocol. Tool declarations come from the registry catalog so the schema
// the orchestration layer sees and the schema arguments are validated
// against are the same document.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/common/logger"
	"emissions-gateway/internal/common/observability"
	"emissions-gateway/internal/common/tracing"
	"emissions-gateway/internal/gateway"
	"emissions-gateway/internal/models"
	"emissions-gateway/pkg/registry"
)

type Server struct {
	mcp      *server.MCPServer
	gateway  *gateway.Gateway
	registry *registry.ToolRegistry
	shaper   *gwerrors.Handler
	obs      *observability.Observability
	logger   logger.Logger
}

func New(gw *gateway.Gateway, reg *registry.ToolRegistry, obs *observability.Observability, log logger.Logger) (*Server, error) {
	s := &Server{
		gateway:  gw,
		registry: reg,
		shaper:   gwerrors.NewHandler(log),
		obs:      obs,
		logger:   log.With(map[string]interface{}{"component": "mcp-server"}),
	}

	s.mcp = server.NewMCPServer(
		"emissions-gateway",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// registerTools declares every catalog tool on the MCP server, reusing the
// registry's JSON Schema verbatim.
func (s *Server) registerTools() error {
	handlers := map[string]server.ToolHandlerFunc{
		"query_emissions":     s.handleQuery,
		"resolve_entity":      s.handleResolveEntity,
		"summarize_emissions": s.handleSummarize,
	}

	for _, tool := range s.registry.Tools {
		handler, ok := handlers[tool.Name]
		if !ok {
			return fmt.Errorf("tool %q declared in catalog but has no handler", tool.Name)
		}
		rawSchema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return fmt.Errorf("marshal input schema for %s: %w", tool.Name, err)
		}
		s.mcp.AddTool(
			mcp.NewToolWithRawSchema(tool.Name, tool.Description, rawSchema),
			s.instrument(tool.Name, handler),
		)
	}
	return nil
}

// instrument records per-tool call metrics around a handler.
func (s *Server) instrument(toolName string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := handler(ctx, request)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}
		if s.obs != nil {
			s.obs.RecordRequest(ctx, toolName, status)
			s.obs.RecordRequestDuration(ctx, time.Since(start), toolName)
		}
		return result, err
	}
}

// ServeStdio blocks, serving the MCP session over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// ServeSSE blocks, serving MCP over server-sent events on addr.
func (s *Server) ServeSSE(addr string) error {
	return server.NewSSEServer(s.mcp).Start(addr)
}

func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, _ = tracing.Begin(ctx)
	req, result := s.parseRequest(ctx, "query_emissions", request)
	if result != nil {
		return result, nil
	}
	resp, err := s.gateway.Query(ctx, req)
	return s.respond(ctx, resp, err)
}

func (s *Server) handleResolveEntity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, _ = tracing.Begin(ctx)
	req, result := s.parseRequest(ctx, "resolve_entity", request)
	if result != nil {
		return result, nil
	}
	resp, err := s.gateway.ResolveEntity(ctx, req)
	return s.respond(ctx, resp, err)
}

func (s *Server) handleSummarize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, _ = tracing.Begin(ctx)
	req, result := s.parseRequest(ctx, "summarize_emissions", request)
	if result != nil {
		return result, nil
	}
	resp, err := s.gateway.Summarize(ctx, req)
	return s.respond(ctx, resp, err)
}

// parseRequest validates raw arguments against the catalog schema and binds
// them into a typed request. A non-nil result short-circuits the handler.
func (s *Server) parseRequest(ctx context.Context, toolName string, request mcp.CallToolRequest) (*models.ToolRequest, *mcp.CallToolResult) {
	arguments := request.GetArguments()

	if err := s.registry.ValidateInput(toolName, arguments); err != nil {
		return nil, s.errorResult(ctx, gwerrors.NewInvalidPlanError(err.Error()))
	}

	req, err := bindRequest(toolName, arguments)
	if err != nil {
		return nil, s.errorResult(ctx, gwerrors.NewInvalidPlanError(err.Error()))
	}
	req.ClientID = clientID(ctx)

	rc := ingressContext(ctx, toolName, arguments, req.ClientID)
	s.logger.Debug("tool call accepted", map[string]interface{}{
		"traceId":   rc.TraceID,
		"clientId":  rc.ClientID,
		"tool":      rc.Tool,
		"arrivedAt": rc.ArrivedAt.Format(time.RFC3339Nano),
	})
	return req, nil
}

// ingressContext snapshots the arrival facts of a tool call for the logging
// sink.
func ingressContext(ctx context.Context, toolName string, arguments map[string]interface{}, client string) models.RequestContext {
	return models.RequestContext{
		TraceID:   tracing.FromContext(ctx),
		ClientID:  client,
		ArrivedAt: time.Now().UTC(),
		Tool:      toolName,
		Arguments: arguments,
	}
}

// respond renders a gateway outcome as an MCP tool result. Errors become a
// structured error payload rather than a protocol failure so the
// orchestration layer can read error_kind and retry_after.
func (s *Server) respond(ctx context.Context, resp *models.ToolResponse, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return s.errorResult(ctx, err), nil
	}
	payload, merr := json.Marshal(resp)
	if merr != nil {
		return s.errorResult(ctx, merr), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) errorResult(ctx context.Context, err error) *mcp.CallToolResult {
	shaped := s.shaper.Shape(ctx, err)
	payload, merr := json.Marshal(shaped)
	if merr != nil {
		return mcp.NewToolResultError(shaped.Message)
	}
	return mcp.NewToolResultError(string(payload))
}

// clientID keys the rate limiter by MCP session. Without a session the
// caller lands in the shared anonymous bucket.
func clientID(ctx context.Context) string {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}

// bindRequest maps schema-validated arguments onto the typed request.
func bindRequest(toolName string, arguments map[string]interface{}) (*models.ToolRequest, error) {
	req := &models.ToolRequest{Tool: toolName}

	req.Country = stringArg(arguments, "country")
	req.State = stringArg(arguments, "state")
	req.City = stringArg(arguments, "city")
	req.Sector = stringArg(arguments, "sector")
	req.Question = stringArg(arguments, "question")
	req.Year = intArg(arguments, "year")
	req.Limit = intArg(arguments, "limit")

	if raw, ok := arguments["columns"].([]interface{}); ok {
		for _, c := range raw {
			if col, ok := c.(string); ok {
				req.Columns = append(req.Columns, col)
			}
		}
	}

	if raw, ok := arguments["quality"].(map[string]interface{}); ok {
		spec := &models.QualitySpec{}
		if v, ok := raw["min_score"].(float64); ok {
			spec.MinScore = &v
		}
		if v, ok := raw["max_uncertainty"].(float64); ok {
			spec.MaxUncertainty = &v
		}
		if v, ok := raw["exclude_synthetic"].(bool); ok {
			spec.ExcludeSynthetic = v
		}
		if v, ok := raw["min_confidence"].(string); ok {
			tier, err := models.ParseConfidenceTier(v)
			if err != nil {
				return nil, err
			}
			spec.MinConfidence = &tier
		}
		req.Quality = spec
	}

	return req, nil
}

func stringArg(arguments map[string]interface{}, key string) string {
	if v, ok := arguments[key].(string); ok {
		return v
	}
	return ""
}

func intArg(arguments map[string]interface{}, key string) int {
	switch v := arguments[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
