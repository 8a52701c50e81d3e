// Package dispatch answers the peer's inbound control requests by invoking
// the application's hook, permission and MCP tool callbacks.
//
// A Dispatcher is built once per connection from snapshots of the
// registered callbacks, so registrations made after connect only affect
// later connections.
package dispatch
