package mcp

// ServerStatus is the peer's view of one configured MCP server.
type ServerStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Status is the mcp_status response.
type Status struct {
	MCPServers []ServerStatus `json:"mcpServers"`
}
