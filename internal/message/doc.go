// Package message decodes the conversational frames the peer streams during
// a turn: user and assistant messages, system notices, partial stream
// events and the result message that ends a turn.
//
// Every Message keeps the frame it was decoded from, so types this package
// does not model are still delivered intact.
package message
