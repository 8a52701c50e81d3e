package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/agentproto/internal/errors"
)

// protocolVersion is the MCP revision announced in initialize responses.
const protocolVersion = "2024-11-05"

// codeMethodNotFound is the JSON-RPC error for an unimplemented method.
const codeMethodNotFound = -32601

// Set is an immutable snapshot of in-process servers and their tools.
type Set struct {
	servers map[string]*frozenServer
}

type frozenServer struct {
	name    string
	version string
	tools   map[string]*registeredTool
	order   []string
}

// Snapshot freezes the tool sets of servers. Tools added to a Server
// afterwards are not visible through the returned Set.
func Snapshot(servers map[string]*Server) *Set {
	set := &Set{servers: make(map[string]*frozenServer, len(servers))}

	for key, srv := range servers {
		if srv != nil {
			set.servers[key] = srv.freeze()
		}
	}

	return set
}

// Names returns the server keys in sorted order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}

	return slices.Sorted(maps.Keys(s.servers))
}

// Len returns the number of servers.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	return len(s.servers)
}

// ToolNames returns the tools of a server as seen by this snapshot.
func (s *Set) ToolNames(server string) []string {
	if s == nil {
		return nil
	}

	if f, ok := s.servers[server]; ok {
		return append([]string(nil), f.order...)
	}

	return nil
}

// Request is an mcp_message control request.
//
//nolint:tagliatelle // peer uses snake_case
type Request struct {
	ServerName string          `json:"server_name"`
	Message    json.RawMessage `json:"message"`
}

// jsonrpcMessage is the JSON-RPC envelope carried in Request.Message.
type jsonrpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Handle routes one mcp_message request and returns the control response
// payload, {"mcp_response": <JSON-RPC response>}.
//
// An unknown server or tool, a malformed message, or arguments that fail the
// tool's schema are returned as errors. A tool handler error is returned as
// a *errors.HandlerFailure. A method the server does not implement is a
// JSON-RPC error inside a successful payload.
func (s *Set) Handle(ctx context.Context, req *Request) (map[string]any, error) {
	srv, ok := s.lookup(req.ServerName)
	if !ok {
		return nil, fmt.Errorf("%w: mcp server %q", errors.ErrNoHandler, req.ServerName)
	}

	var msg jsonrpcMessage
	if err := json.Unmarshal(req.Message, &msg); err != nil {
		return nil, fmt.Errorf("decode mcp message: %w", err)
	}

	if msg.Method == "" {
		return nil, fmt.Errorf("decode mcp message: missing method")
	}

	switch msg.Method {
	case "initialize":
		return response(msg.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": srv.name, "version": srv.version},
		}), nil

	case "notifications/initialized":
		return response(msg.ID, map[string]any{}), nil

	case "tools/list":
		tools := make([]*mcp.Tool, 0, len(srv.order))
		for _, name := range srv.order {
			tools = append(tools, srv.tools[name].tool)
		}

		return response(msg.ID, map[string]any{"tools": tools}), nil

	case "tools/call":
		result, err := srv.call(ctx, msg.Params)
		if err != nil {
			return nil, err
		}

		return response(msg.ID, result), nil

	default:
		return errorResponse(msg.ID, codeMethodNotFound, "method not found: "+msg.Method), nil
	}
}

func (s *Set) lookup(name string) (*frozenServer, bool) {
	if s == nil {
		return nil, false
	}

	srv, ok := s.servers[name]

	return srv, ok
}

// call validates and runs one tools/call.
func (f *frozenServer) call(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
	var params callParams
	if len(raw) == 0 {
		return nil, fmt.Errorf("tools/call: missing params")
	}

	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("tools/call: decode params: %w", err)
	}

	if params.Name == "" {
		return nil, fmt.Errorf("tools/call: missing tool name")
	}

	t, ok := f.tools[params.Name]
	if !ok {
		return nil, fmt.Errorf("%w: tool %q on mcp server %q", errors.ErrNoHandler, params.Name, f.name)
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}

	if t.schema != nil {
		var instance map[string]any
		if err := json.Unmarshal(args, &instance); err != nil {
			return nil, fmt.Errorf("tools/call %s: arguments must be an object: %w", params.Name, err)
		}

		if err := t.schema.Validate(instance); err != nil {
			return nil, fmt.Errorf("tools/call %s: invalid arguments: %w", params.Name, err)
		}
	}

	result, err := t.handler(ctx, &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: params.Name, Arguments: args},
	})
	if err != nil {
		return nil, &errors.HandlerFailure{Subtype: "tools/call " + params.Name, Cause: err}
	}

	if result == nil {
		result = &mcp.CallToolResult{Content: []mcp.Content{}}
	}

	return result, nil
}

func response(id json.RawMessage, result any) map[string]any {
	return map[string]any{
		"mcp_response": map[string]any{
			"jsonrpc": "2.0",
			"id":      rawID(id),
			"result":  result,
		},
	}
}

func errorResponse(id json.RawMessage, code int, message string) map[string]any {
	return map[string]any{
		"mcp_response": map[string]any{
			"jsonrpc": "2.0",
			"id":      rawID(id),
			"error":   map[string]any{"code": code, "message": message},
		},
	}
}

// rawID echoes the request id verbatim; a missing id is JSON null.
func rawID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}

	return id
}
