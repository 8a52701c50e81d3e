package mcp

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server is an in-process MCP tool server.
//
// The go-sdk Server is built around a transport session; this type keeps
// its own registry so tools/list and tools/call can be answered directly
// from mcp_message control requests.
type Server struct {
	name    string
	version string

	mu    sync.RWMutex
	tools map[string]*registeredTool
	order []string
}

type registeredTool struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
	schema  *jsonschema.Resolved
}

// NewServer creates an empty tool server.
func NewServer(name, version string) *Server {
	return &Server{
		name:    name,
		version: version,
		tools:   make(map[string]*registeredTool, 8),
	}
}

// Kind implements ServerConfig.
func (*Server) Kind() ServerType { return ServerTypeSDK }

// Name returns the server name.
func (s *Server) Name() string { return s.name }

// Version returns the server version.
func (s *Server) Version() string { return s.version }

// AddTool registers a tool. A tool with the same name replaces the previous
// one. The input schema, if any, must resolve.
func (s *Server) AddTool(tool *mcp.Tool, handler mcp.ToolHandler) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("add tool: tool must have a name")
	}

	if handler == nil {
		return fmt.Errorf("add tool %s: nil handler", tool.Name)
	}

	resolved, err := resolveSchema(tool.InputSchema)
	if err != nil {
		return fmt.Errorf("add tool %s: %w", tool.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tools[tool.Name]; !exists {
		s.order = append(s.order, tool.Name)
	}

	s.tools[tool.Name] = &registeredTool{tool: tool, handler: handler, schema: resolved}

	return nil
}

// ToolNames returns the registered tool names in registration order.
func (s *Server) ToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.order...)
}

// freeze copies the current tool set.
func (s *Server) freeze() *frozenServer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := &frozenServer{
		name:    s.name,
		version: s.version,
		tools:   make(map[string]*registeredTool, len(s.tools)),
		order:   append([]string(nil), s.order...),
	}

	for name, t := range s.tools {
		f.tools[name] = t
	}

	return f
}

// resolveSchema turns a tool's input schema into a validator.
//
// The schema may be a *jsonschema.Schema or anything that marshals to one.
// A nil schema accepts any arguments.
func resolveSchema(schema any) (*jsonschema.Resolved, error) {
	if schema == nil {
		return nil, nil
	}

	s, ok := schema.(*jsonschema.Schema)
	if !ok {
		data, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("marshal input schema: %w", err)
		}

		s = &jsonschema.Schema{}
		if err := json.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("decode input schema: %w", err)
		}
	}

	if s == nil {
		return nil, nil
	}

	resolved, err := s.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return nil, fmt.Errorf("resolve input schema: %w", err)
	}

	return resolved, nil
}
