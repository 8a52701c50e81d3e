package transport

import "context"

// Transport is the duplex, newline-delimited JSON link to the peer process.
//
// Implement this to provide custom transports for testing, mocking, or
// alternative links (e.g., a remote socket). The default implementation
// spawns the agent CLI as a subprocess.
type Transport interface {
	// Start opens the link. It is called once per connection, before any
	// frames are read or sent.
	Start(ctx context.Context) error

	// ReadFrames returns the inbound frame sequence for this connection.
	// Frames that fail to decode are logged and skipped. The frame channel is
	// closed when the stream ends; a clean end of stream closes the error
	// channel without sending. Connection-fatal failures are sent on the
	// error channel before it closes.
	ReadFrames(ctx context.Context) (<-chan *Frame, <-chan error)

	// SendMessage writes one JSON value followed by a newline.
	// It must be safe for concurrent use.
	SendMessage(ctx context.Context, data []byte) error

	// EndInput closes the write half so the peer sees end of input.
	EndInput() error

	// Close tears the link down. It is safe to call more than once.
	Close() error

	// IsReady reports whether the link can carry frames.
	IsReady() bool
}

// Factory creates a fresh Transport for each connection.
type Factory func() (Transport, error)
