// Package session drives one conversation with the peer process.
//
// A Session connects a transport, runs the router and dispatcher for the
// connection, performs the initialize handshake and tracks whether a turn
// is in flight. Conversational output is kept in an append-only log per
// turn; TurnOutput, ReceiveResponse and Messages read it through
// independent cursors, so no reader can starve another or stall the
// session.
package session
