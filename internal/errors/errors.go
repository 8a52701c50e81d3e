package errors

import (
	"errors"
	"fmt"
)

// AgentProtoError is the marker interface implemented by every typed error
// in this module.
type AgentProtoError interface {
	error
	IsAgentProtoError() bool
}

// Compile-time verification that all error types implement AgentProtoError.
var (
	_ AgentProtoError = (*TransportError)(nil)
	_ AgentProtoError = (*DecodeError)(nil)
	_ AgentProtoError = (*ProtocolViolation)(nil)
	_ AgentProtoError = (*DispatchError)(nil)
	_ AgentProtoError = (*HandlerFailure)(nil)
	_ AgentProtoError = (*ConnectError)(nil)
	_ AgentProtoError = (*ProcessError)(nil)
	_ AgentProtoError = (*CLINotFoundError)(nil)
	_ AgentProtoError = (*RequestError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrTimedOut indicates a correlated request got no response within its bound.
	ErrTimedOut = errors.New("control request timed out")

	// ErrCancelled indicates a correlated request was cancelled before it resolved,
	// normally because the session disconnected.
	ErrCancelled = errors.New("control request cancelled")

	// ErrConnectionLost indicates the stream to the peer ended or failed while
	// work was outstanding.
	ErrConnectionLost = errors.New("connection lost")

	// ErrInvalidState indicates an operation is not legal in the session's
	// current state, e.g. Query while a turn is in flight.
	ErrInvalidState = errors.New("invalid session state")

	// ErrAlreadyConnected indicates Connect was called on a connected session.
	ErrAlreadyConnected = errors.New("session already connected")

	// ErrNotConnected indicates the session has no live connection.
	ErrNotConnected = errors.New("session not connected")

	// ErrDuplicateID indicates a correlation id is already registered.
	ErrDuplicateID = errors.New("duplicate correlation id")

	// ErrNoHandler indicates no registered callback matches an inbound request.
	ErrNoHandler = errors.New("no handler registered")

	// ErrFrameTooLarge indicates an inbound line exceeded the frame size limit.
	ErrFrameTooLarge = errors.New("frame exceeds size limit")

	// ErrTransportNotConnected indicates the transport was used before Start.
	ErrTransportNotConnected = errors.New("transport not connected")

	// ErrTransportClosed indicates the write half of the transport is closed.
	ErrTransportClosed = errors.New("transport closed")

	// ErrUnknownMessageType indicates a conversational frame carried a type the
	// module does not model. Callers skip these rather than failing.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// TransportError indicates the duplex stream failed. It is fatal to the
// connection and triggers teardown.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAgentProtoError implements AgentProtoError.
func (e *TransportError) IsAgentProtoError() bool { return true }

// DecodeError indicates a single frame could not be decoded. It is logged and
// the frame is skipped; the stream continues.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsAgentProtoError implements AgentProtoError.
func (e *DecodeError) IsAgentProtoError() bool { return true }

// ProtocolViolation indicates the peer broke the correlation contract, for
// example by answering an unknown or already-resolved request id.
type ProtocolViolation struct {
	RequestID string
	Reason    string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation (request %s): %s", e.RequestID, e.Reason)
}

// IsAgentProtoError implements AgentProtoError.
func (e *ProtocolViolation) IsAgentProtoError() bool { return true }

// DispatchError indicates an inbound control request could not be routed to a
// callback: no handler matched or the payload did not decode into the shape
// the handler declares. It is answered with an error control response.
type DispatchError struct {
	Subtype string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Subtype, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsAgentProtoError implements AgentProtoError.
func (e *DispatchError) IsAgentProtoError() bool { return true }

// RequestError indicates the peer answered an outbound control request with
// an error response. The connection remains usable.
type RequestError struct {
	Subtype string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s request failed: %s", e.Subtype, e.Message)
}

// IsAgentProtoError implements AgentProtoError.
func (e *RequestError) IsAgentProtoError() bool { return true }

// HandlerFailure indicates an application callback failed unexpectedly,
// including by panicking. It is answered with an error control response.
type HandlerFailure struct {
	Subtype string
	Cause   any
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("%s handler failed: %v", e.Subtype, e.Cause)
}

func (e *HandlerFailure) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}

	return nil
}

// IsAgentProtoError implements AgentProtoError.
func (e *HandlerFailure) IsAgentProtoError() bool { return true }

// ConnectError indicates Connect failed while starting the transport or
// completing the initialize handshake.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsAgentProtoError implements AgentProtoError.
func (e *ConnectError) IsAgentProtoError() bool { return true }

// ProcessError indicates the peer process exited abnormally.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("agent process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsAgentProtoError implements AgentProtoError.
func (e *ProcessError) IsAgentProtoError() bool { return true }

// CLINotFoundError indicates the agent CLI binary was not found.
type CLINotFoundError struct {
	SearchedPaths []string
}

func (e *CLINotFoundError) Error() string {
	return fmt.Sprintf("agent CLI not found in: %v", e.SearchedPaths)
}

// IsAgentProtoError implements AgentProtoError.
func (e *CLINotFoundError) IsAgentProtoError() bool { return true }
