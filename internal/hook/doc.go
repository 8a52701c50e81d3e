// Package hook defines lifecycle hook events, their typed inputs, the output
// a hook callback returns, and the registry that assigns callback ids.
//
// Inputs are decoded strictly: an unknown event or a payload that does not
// fit the event's shape is an error, never a zero-valued input.
package hook
