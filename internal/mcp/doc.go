// Package mcp hosts in-process Model Context Protocol tool servers and routes
// the peer's mcp_message control requests to them.
//
// Tools are defined with the official go-sdk types. Their input schemas are
// resolved with jsonschema-go when the tool is added, and every tools/call
// is validated against the schema before the handler runs.
//
// A connection routes against a Set, an immutable snapshot of the servers
// and their tools taken at connect time.
package mcp
