package transport

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/agentproto/internal/errors"
)

const (
	// DefaultMaxFrameSize is the largest single line accepted from the peer.
	DefaultMaxFrameSize = 16 * 1024 * 1024 // 16MB

	// initialReadBuffer is the largest read buffer allocated up front.
	initialReadBuffer = 64 * 1024

	// writeAbandonWait bounds how long a cancelled write is waited on after
	// the write half has been closed to unblock it.
	writeAbandonWait = time.Second
)

// Stream is a Transport over an already-open reader/writer pair, such as the
// standard streams of a supervised process or an in-memory pipe.
//
// Stream owns both halves: Close closes the writer and, if it implements
// io.Closer, the reader.
type Stream struct {
	log           *slog.Logger
	r             io.Reader
	w             io.WriteCloser
	maxFrameSize  int
	onDecodeError func(*errors.DecodeError)

	writeMu sync.Mutex // Serializes writes

	stateMu     sync.Mutex // Guards the closed flags; never held across I/O
	writeClosed bool
	closed      bool

	reading atomic.Bool
}

// Compile-time verification that Stream implements Transport.
var _ Transport = (*Stream)(nil)

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithMaxFrameSize sets the largest line accepted from the peer.
// A longer line is discarded up to its newline and reported as a DecodeError
// wrapping ErrFrameTooLarge.
func WithMaxFrameSize(n int) StreamOption {
	return func(s *Stream) {
		if n > 0 {
			s.maxFrameSize = n
		}
	}
}

// WithDecodeErrorHandler registers a callback that observes every skipped frame.
func WithDecodeErrorHandler(fn func(*errors.DecodeError)) StreamOption {
	return func(s *Stream) {
		s.onDecodeError = fn
	}
}

// NewStream creates a Stream reading frames from r and writing frames to w.
func NewStream(log *slog.Logger, r io.Reader, w io.WriteCloser, opts ...StreamOption) *Stream {
	s := &Stream{
		log:          log.With("component", "stream"),
		r:            r,
		w:            w,
		maxFrameSize: DefaultMaxFrameSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start validates that both halves are present. The handles are already open.
func (s *Stream) Start(_ context.Context) error {
	if s.r == nil || s.w == nil {
		return errors.ErrTransportNotConnected
	}

	return nil
}

// ReadFrames reads newline-delimited JSON frames until end of stream.
//
// Lines that are not JSON objects with a "type" field, or that exceed the
// frame size limit, are logged and skipped. End of stream closes both
// channels without an error. A read failure other than end of stream is sent
// as a TransportError. ReadFrames may be called once per Stream.
func (s *Stream) ReadFrames(ctx context.Context) (<-chan *Frame, <-chan error) {
	frames := make(chan *Frame)
	errs := make(chan error, 1)

	if !s.reading.CompareAndSwap(false, true) {
		errs <- &errors.TransportError{Op: "read", Err: fmt.Errorf("frames already being read")}

		close(errs)
		close(frames)

		return frames, errs
	}

	go func() {
		defer close(frames)
		defer close(errs)
		defer s.log.Debug("Frame reader stopped")

		reader := bufio.NewReaderSize(s.r, min(initialReadBuffer, s.maxFrameSize))

		var buf []byte

		lineNo := 0
		delivered := 0

		for {
			line, oversized, err := readLine(reader, buf, s.maxFrameSize)
			if err != nil {
				if stderrors.Is(err, io.EOF) {
					s.log.Debug("Stream reached end of input", "frames", delivered)

					return
				}

				if s.isClosed() {
					s.log.Debug("Read ended after close", "error", err)

					return
				}

				s.log.Error("Stream read failed", "error", err)
				errs <- &errors.TransportError{Op: "read", Err: err}

				return
			}

			lineNo++
			buf = line

			if oversized {
				s.skip(lineNo, "", fmt.Errorf("%w (%d bytes)", errors.ErrFrameTooLarge, s.maxFrameSize))

				continue
			}

			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			frame, err := DecodeFrame(line)
			if err != nil {
				s.skip(lineNo, string(line), err)

				continue
			}

			select {
			case frames <- frame:
				delivered++
			case <-ctx.Done():
				s.log.Debug("Context cancelled while delivering frame", "error", ctx.Err())

				return
			}
		}
	}()

	return frames, errs
}

// skip reports an inbound line that could not become a frame.
func (s *Stream) skip(lineNo int, line string, err error) {
	s.log.Warn("Skipping undecodable frame", "line", lineNo, "error", err)

	if s.onDecodeError != nil {
		s.onDecodeError(&errors.DecodeError{Line: line, Err: err})
	}
}

// readLine returns the next line from r without its terminator, reusing
// buf's storage. A line longer than limit is consumed through its newline
// and reported as oversized with an empty body. A final line without a
// newline is returned normally; io.EOF is returned only once r is drained.
func readLine(r *bufio.Reader, buf []byte, limit int) ([]byte, bool, error) {
	line := buf[:0]
	oversized := false
	read := false

	for {
		chunk, err := r.ReadSlice('\n')
		read = read || len(chunk) > 0

		if !oversized {
			// Room for the terminator beyond limit; the exact check follows.
			if len(line)+len(chunk) > limit+2 {
				oversized = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}

		if stderrors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if err != nil && (!stderrors.Is(err, io.EOF) || !read) {
			return nil, false, err
		}

		break
	}

	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))

	if oversized || len(line) > limit {
		return line[:0], true, nil
	}

	return line, false, nil
}

// SendMessage writes data followed by a newline.
//
// The write respects context cancellation: if ctx ends while the write is
// blocked, the write half is closed to unblock it and subsequent sends fail
// with ErrTransportClosed.
func (s *Stream) SendMessage(ctx context.Context, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.w == nil {
		return errors.ErrTransportNotConnected
	}

	if s.isWriteClosed() {
		return &errors.TransportError{Op: "write", Err: errors.ErrTransportClosed}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Copy rather than append so the caller's backing array is never mutated.
	if len(data) == 0 || data[len(data)-1] != '\n' {
		framed := make([]byte, len(data)+1)
		copy(framed, data)
		framed[len(data)] = '\n'
		data = framed
	}

	done := make(chan error, 1)

	go func() {
		_, err := s.w.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Error("Failed to write frame", "error", err)

			return &errors.TransportError{Op: "write", Err: err}
		}

		s.log.Debug("Frame written", "bytes", len(data))

		return nil

	case <-ctx.Done():
		s.log.Debug("Context cancelled during write, closing write half")

		_ = s.closeWriteHalf()

		select {
		case <-done:
		case <-time.After(writeAbandonWait):
			s.log.Warn("Blocked write did not return after close")
		}

		return ctx.Err()
	}
}

// EndInput closes the write half.
func (s *Stream) EndInput() error {
	if err := s.closeWriteHalf(); err != nil {
		return &errors.TransportError{Op: "close input", Err: err}
	}

	return nil
}

// Close closes both halves. Safe to call multiple times.
//
// A write blocked on a slow peer is unblocked by closing the writer; Close
// never waits for it.
func (s *Stream) Close() error {
	s.stateMu.Lock()

	if s.closed {
		s.stateMu.Unlock()

		return nil
	}

	s.closed = true
	s.stateMu.Unlock()

	firstErr := s.closeWriteHalf()

	if rc, ok := s.r.(io.Closer); ok {
		if err := rc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// IsReady reports whether the stream can still send frames.
func (s *Stream) IsReady() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	return s.w != nil && !s.writeClosed && !s.closed
}

// closeWriteHalf closes the writer once.
func (s *Stream) closeWriteHalf() error {
	s.stateMu.Lock()

	if s.w == nil || s.writeClosed {
		s.stateMu.Unlock()

		return nil
	}

	s.writeClosed = true
	s.stateMu.Unlock()

	return s.w.Close()
}

func (s *Stream) isWriteClosed() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	return s.writeClosed
}

func (s *Stream) isClosed() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	return s.closed
}
