package agentproto

import "github.com/wagiedev/agentproto/internal/errors"

// AgentProtoError is implemented by every error type this module returns.
type AgentProtoError = errors.AgentProtoError

// TransportError is a read or write failure on the link to the peer.
type TransportError = errors.TransportError

// DecodeError describes a line that was skipped because it was not a frame.
type DecodeError = errors.DecodeError

// ProtocolViolation is a well-formed frame that breaks the protocol, such as
// a response for an unknown or already resolved request.
type ProtocolViolation = errors.ProtocolViolation

// DispatchError means an inbound control request could not be routed.
type DispatchError = errors.DispatchError

// RequestError is an error response from the peer to one of our requests.
type RequestError = errors.RequestError

// HandlerFailure wraps an error or panic raised by a registered callback.
type HandlerFailure = errors.HandlerFailure

// ConnectError is returned by Connect when the link or handshake fails.
type ConnectError = errors.ConnectError

// ProcessError indicates the CLI process exited with a failure.
type ProcessError = errors.ProcessError

// CLINotFoundError indicates the agent CLI binary was not found.
type CLINotFoundError = errors.CLINotFoundError

var (
	// ErrTimedOut is returned when a control request gets no response in time.
	ErrTimedOut = errors.ErrTimedOut

	// ErrCancelled is returned for requests abandoned by cancellation or
	// Disconnect.
	ErrCancelled = errors.ErrCancelled

	// ErrConnectionLost is returned for requests and turns cut short by the
	// connection ending.
	ErrConnectionLost = errors.ErrConnectionLost

	// ErrInvalidState is returned for operations not allowed in the
	// current session state.
	ErrInvalidState = errors.ErrInvalidState

	// ErrAlreadyConnected is returned by Connect on a connected session.
	ErrAlreadyConnected = errors.ErrAlreadyConnected

	// ErrNotConnected is returned by operations that need a connection.
	ErrNotConnected = errors.ErrNotConnected

	// ErrNoHandler means no callback is registered for a control request.
	ErrNoHandler = errors.ErrNoHandler

	// ErrFrameTooLarge is wrapped by the DecodeError reported for an inbound
	// line over the frame size limit.
	ErrFrameTooLarge = errors.ErrFrameTooLarge

	// ErrTransportNotConnected indicates the transport is not started.
	ErrTransportNotConnected = errors.ErrTransportNotConnected

	// ErrTransportClosed indicates the transport has been closed.
	ErrTransportClosed = errors.ErrTransportClosed
)
