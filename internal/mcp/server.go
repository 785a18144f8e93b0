// Package mcp is a Model Context Protocol stdio adapter that forwards tool
// calls to the chatbot HTTP API.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const protocolVersion = "2024-11-05"

// Server implements an MCP stdio server that delegates to the HTTP chatbot server.
type Server struct {
	serverURL string
	apiKey    string
	client    *http.Client
	logger    *slog.Logger
}

// NewServer creates a new MCP server. apiKey is sent as a bearer token when set.
func NewServer(serverURL, apiKey string, logger *slog.Logger) *Server {
	return &Server{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// Run reads one JSON-RPC message per line from in and writes responses to
// out. Blocks until in is closed or ctx is done.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	// Increase buffer for large messages
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var resp *Response
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp = errorResponse(nil, codeParseError, "parse error: "+err.Error())
		} else {
			resp = s.handleRequest(ctx, &req)
		}
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}

	return scanner.Err()
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch {
	case req.Method == "initialize":
		return s.handleInitialize(req)
	case req.Method == "initialized", strings.HasPrefix(req.Method, "notifications/"):
		// Notification, no response
		return nil
	case req.Method == "tools/list":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: ToolDefinitions()}}
	case req.Method == "tools/call":
		return s.handleToolsCall(ctx, req)
	case req.Method == "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]string{}}
	default:
		return errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: ServerCapabilities{
				Tools: &ToolCapabilities{},
			},
			ServerInfo: ServerInfo{
				Name:    "alta-ny-chatbot",
				Version: "1.0.0",
			},
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	paramsBytes, err := json.Marshal(req.Params)
	if err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid params")
	}

	var params CallToolParams
	if err := json.Unmarshal(paramsBytes, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid params: "+err.Error())
	}

	result, isError := s.dispatchTool(ctx, params.Name, params.Arguments)
	if isError {
		s.logger.Warn("tool call failed", "tool", params.Name, "result", result)
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: result}},
			IsError: isError,
		},
	}
}

func (s *Server) dispatchTool(ctx context.Context, name string, args map[string]any) (string, bool) {
	switch name {
	case "chat_message":
		return s.toolChatMessage(ctx, args)
	case "knowledge_search":
		return s.toolKnowledgeSearch(ctx, args)
	case "chat_history":
		return s.toolChatHistory(ctx, args)
	default:
		return fmt.Sprintf("unknown tool: %s", name), true
	}
}

// --- Tool implementations (HTTP delegation) ---

func (s *Server) toolChatMessage(ctx context.Context, args map[string]any) (string, bool) {
	body := map[string]any{
		"message":            args["message"],
		"searchMode":         getString(args, "searchMode", "semantic"),
		"translationEnabled": getBool(args, "translationEnabled", false),
	}
	if sid := getString(args, "sessionId", ""); sid != "" {
		body["sessionId"] = sid
	}
	return s.do(ctx, http.MethodPost, "/api/chat/message", body)
}

func (s *Server) toolKnowledgeSearch(ctx context.Context, args map[string]any) (string, bool) {
	mode := getString(args, "mode", "semantic")
	switch mode {
	case "semantic", "exact", "hybrid":
	default:
		return fmt.Sprintf("invalid mode %q: must be semantic, exact or hybrid", mode), true
	}
	body := map[string]any{
		"query": args["query"],
		"topK":  getFloat(args, "topK", 5),
	}
	return s.do(ctx, http.MethodPost, "/api/search/"+mode, body)
}

func (s *Server) toolChatHistory(ctx context.Context, args map[string]any) (string, bool) {
	sid := getString(args, "sessionId", "")
	if sid == "" {
		return "sessionId is required", true
	}
	return s.do(ctx, http.MethodGet, "/api/chat/history/"+url.PathEscape(sid), nil)
}

// --- HTTP helpers ---

func (s *Server) do(ctx context.Context, method, path string, body any) (string, bool) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Sprintf("marshal error: %s", err), true
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.serverURL+path, reader)
	if err != nil {
		return fmt.Sprintf("request error: %s", err), true
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("HTTP error: %s", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("read error: %s", err), true
	}

	return string(respBody), resp.StatusCode >= 400
}

func errorResponse(id any, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// --- Argument helpers ---

func getString(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func getFloat(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key]; ok {
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		}
	}
	return fallback
}

func getBool(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}
