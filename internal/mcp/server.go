package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lunara-health/lunara-api/internal/service"
)

// Server implements the Model Context Protocol (MCP) server.
// It exposes the care assistant as tools for external AI agents.
type Server struct {
	chat *service.ChatService
	port string
}

// NewServer creates a new MCP server.
func NewServer(chat *service.ChatService, port string) *Server {
	return &Server{chat: chat, port: port}
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Start begins the MCP server on the configured port.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/mcp/sse", s.handleSSE)

	slog.Info("MCP server starting", "port", s.port)
	return http.ListenAndServe(":"+s.port, mux)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, -32700, "parse error")
		return
	}

	var result interface{}
	var err error

	switch req.Method {
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, err = s.callTool(r.Context(), req.Params)
	case "initialize":
		result = map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]string{
				"name":    "lunara-care",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]bool{"listChanged": false},
			},
		}
	default:
		writeError(w, req.ID, -32601, "method not found")
		return
	}

	if err != nil {
		writeError(w, req.ID, -32603, err.Error())
		return
	}

	writeResult(w, req.ID, result)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send initial endpoint message
	fmt.Fprintf(w, "event: endpoint\ndata: /mcp\n\n")
	w.(http.Flusher).Flush()

	// Keep connection alive
	<-r.Context().Done()
}

func (s *Server) listTools() map[string]interface{} {
	tools := []Tool{
		{
			Name:        "ask_assistant",
			Description: "Ask the postpartum care assistant a question. Answers come from a curated knowledge base, with generative fallback for uncovered topics.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"question": {"type": "string", "description": "The question to ask"}
				},
				"required": ["question"]
			}`),
		},
		{
			Name:        "search_knowledge_base",
			Description: "Retrieve the most similar curated Q&A entries for a query, with similarity scores",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Search query"},
					"top_k": {"type": "integer", "description": "Number of entries to return"}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        "assistant_status",
			Description: "Report the assistant's readiness, corpus size and routing settings",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {}
			}`),
		},
	}
	return map[string]interface{}{"tools": tools}
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	switch req.Name {
	case "ask_assistant":
		var args struct {
			Question string `json:"question"`
		}
		json.Unmarshal(req.Arguments, &args)

		payload, ok := service.CheckGuardrails(args.Question)
		if !ok {
			var err error
			payload, err = s.chat.HandleMessage(ctx, args.Question)
			if err != nil {
				return nil, err
			}
		}
		return map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": payload.Answer},
			},
			"metadata": payload.Metadata,
		}, nil

	case "search_knowledge_base":
		var args struct {
			Query string `json:"query"`
			TopK  int    `json:"top_k"`
		}
		json.Unmarshal(req.Arguments, &args)

		matches, err := s.chat.Search(ctx, args.Query, args.TopK)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		for i, m := range matches {
			fmt.Fprintf(&b, "%d. [%.3f] Q: %s\n   A: %s\n", i+1, m.Score, m.Entry.Question, m.Entry.Answer)
		}
		return map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": b.String()},
			},
		}, nil

	case "assistant_status":
		status := fmt.Sprintf("state=%s corpus_size=%d threshold=%.2f fallback=%t providers=%v",
			s.chat.State(), s.chat.CorpusSize(), s.chat.Threshold(), s.chat.FallbackEnabled(), s.chat.ProviderNames())
		return map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": status},
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", req.Name)
	}
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
