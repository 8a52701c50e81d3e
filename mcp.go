package agentproto

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	internalmcp "github.com/wagiedev/agentproto/internal/mcp"
)

// MCPServerConfig describes one MCP server. *MCPServer is hosted in this
// process; *MCPStdioServer and *MCPRemoteServer are reached by the peer.
type MCPServerConfig = internalmcp.ServerConfig

// MCPServer is an in-process tool server. Its tools are served over the
// control channel, so the peer needs no extra process.
type MCPServer = internalmcp.Server

// MCPStdioServer is launched by the peer as a subprocess.
type MCPStdioServer = internalmcp.StdioServer

// MCPRemoteServer is reached by the peer over SSE or HTTP.
type MCPRemoteServer = internalmcp.RemoteServer

// MCPStatus is the peer's report on its MCP servers.
type MCPStatus = internalmcp.Status

// MCPServerStatus is the status of one server.
type MCPServerStatus = internalmcp.ServerStatus

// MCP server transport kinds.
const (
	MCPServerTypeStdio = internalmcp.ServerTypeStdio
	MCPServerTypeSSE   = internalmcp.ServerTypeSSE
	MCPServerTypeHTTP  = internalmcp.ServerTypeHTTP
	MCPServerTypeSDK   = internalmcp.ServerTypeSDK
)

// Tool, ToolHandler and the call types come from the MCP Go SDK.
type (
	Tool            = mcp.Tool
	ToolHandler     = mcp.ToolHandler
	CallToolRequest = mcp.CallToolRequest
	CallToolResult  = mcp.CallToolResult
)

// NewMCPServer creates an in-process server. Register tools with AddTool
// before connecting; tools added later are seen by the next connection.
//
// Example:
//
//	calc := agentproto.NewMCPServer("calc", "1.0.0")
//	err := calc.AddTool(
//	    agentproto.NewTool("add", "Add two numbers",
//	        agentproto.SimpleSchema(map[string]string{"a": "float64", "b": "float64"})),
//	    func(ctx context.Context, req *agentproto.CallToolRequest) (*agentproto.CallToolResult, error) {
//	        args, err := agentproto.ParseArguments(req)
//	        if err != nil {
//	            return agentproto.ErrorResult(err.Error()), nil
//	        }
//	        return agentproto.TextResult(fmt.Sprint(args["a"].(float64) + args["b"].(float64))), nil
//	    })
func NewMCPServer(name, version string) *MCPServer {
	return internalmcp.NewServer(name, version)
}

// NewTool defines a tool. A nil schema accepts any object.
func NewTool(name, description string, inputSchema *jsonschema.Schema) *Tool {
	return internalmcp.NewTool(name, description, inputSchema)
}

// SimpleSchema builds an object schema from property names to Go type
// names ("string", "int", "float64", "bool", "[]string", ...). Every
// property is required.
func SimpleSchema(props map[string]string) *jsonschema.Schema {
	return internalmcp.SimpleSchema(props)
}

// TextResult is a successful result carrying text.
func TextResult(text string) *CallToolResult {
	return internalmcp.TextResult(text)
}

// ErrorResult is a tool-level failure reported to the model.
func ErrorResult(message string) *CallToolResult {
	return internalmcp.ErrorResult(message)
}

// ImageResult is a successful result carrying an image.
func ImageResult(data []byte, mimeType string) *CallToolResult {
	return internalmcp.ImageResult(data, mimeType)
}

// ParseArguments decodes the arguments of a tool call.
func ParseArguments(req *CallToolRequest) (map[string]any, error) {
	return internalmcp.ParseArguments(req)
}
