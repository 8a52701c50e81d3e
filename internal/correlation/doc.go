// Package correlation pairs outbound control requests with their responses.
//
// A Table holds one single-shot Waiter per outstanding request id. Each
// waiter resolves exactly once: with the peer's outcome, with ErrTimedOut,
// or with ErrCancelled. Ids are never accepted twice for the lifetime of a
// Table, so a late or duplicate response can never reach a new waiter.
package correlation
