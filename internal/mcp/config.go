package mcp

// ServerType identifies how the peer reaches an MCP server.
type ServerType string

const (
	// ServerTypeStdio is a subprocess speaking MCP over stdio.
	ServerTypeStdio ServerType = "stdio"
	// ServerTypeSSE is a remote server using Server-Sent Events.
	ServerTypeSSE ServerType = "sse"
	// ServerTypeHTTP is a remote server using streamable HTTP.
	ServerTypeHTTP ServerType = "http"
	// ServerTypeSDK is an in-process server hosted by this module.
	ServerTypeSDK ServerType = "sdk"
)

// ServerConfig describes one MCP server handed to the peer.
type ServerConfig interface {
	Kind() ServerType
}

// Compile-time verification that all MCP server config types implement ServerConfig.
var (
	_ ServerConfig = (*StdioServer)(nil)
	_ ServerConfig = (*RemoteServer)(nil)
	_ ServerConfig = (*Server)(nil)
)

// StdioServer is launched by the peer as a subprocess.
type StdioServer struct {
	Command string            `json:"command" toml:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" toml:"args" yaml:"args"`
	Env     map[string]string `json:"env,omitempty" toml:"env" yaml:"env"`
}

// Kind implements ServerConfig.
func (*StdioServer) Kind() ServerType { return ServerTypeStdio }

// RemoteServer is reached by the peer over the network.
type RemoteServer struct {
	Type    ServerType        `json:"type" toml:"type" yaml:"type"`
	URL     string            `json:"url" toml:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" toml:"headers" yaml:"headers"`
}

// Kind implements ServerConfig.
func (r *RemoteServer) Kind() ServerType {
	if r.Type == "" {
		return ServerTypeHTTP
	}

	return r.Type
}

// ExternalConfig renders the servers the peer must launch or reach itself,
// in the shape of its --mcp-config flag. In-process servers are announced
// by name only.
func ExternalConfig(servers map[string]ServerConfig) map[string]any {
	out := make(map[string]any, len(servers))

	for name, cfg := range servers {
		switch c := cfg.(type) {
		case *StdioServer:
			entry := map[string]any{"type": string(ServerTypeStdio), "command": c.Command}
			if len(c.Args) > 0 {
				entry["args"] = c.Args
			}

			if len(c.Env) > 0 {
				entry["env"] = c.Env
			}

			out[name] = entry

		case *RemoteServer:
			entry := map[string]any{"type": string(c.Kind()), "url": c.URL}
			if len(c.Headers) > 0 {
				entry["headers"] = c.Headers
			}

			out[name] = entry

		case *Server:
			out[name] = map[string]any{"type": string(ServerTypeSDK), "name": name}
		}
	}

	return map[string]any{"mcpServers": out}
}
