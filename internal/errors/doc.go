// Package errors defines the error taxonomy of the control-protocol engine.
//
// Frame-level and dispatch-level failures (DecodeError, ProtocolViolation,
// DispatchError, HandlerFailure) are contained: they are logged or turned
// into error control responses. Stream-level failures (TransportError,
// ProcessError) end the connection. Correlated requests resolve with
// ErrTimedOut, ErrCancelled or ErrConnectionLost. All types support
// errors.Is and errors.As.
package errors
