package protocol

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/agentproto/internal/transport"
)

// mockTransport implements transport.Transport over channels.
type mockTransport struct {
	mu     sync.Mutex
	sent   [][]byte
	sentCh chan []byte

	frames chan *transport.Frame
	errs   chan error

	closeOnce sync.Once
}

var _ transport.Transport = (*mockTransport)(nil)

func newMockTransport() *mockTransport {
	return &mockTransport{
		sentCh: make(chan []byte, 64),
		frames: make(chan *transport.Frame, 16),
		errs:   make(chan error, 1),
	}
}

func (m *mockTransport) Start(context.Context) error { return nil }

func (m *mockTransport) ReadFrames(context.Context) (<-chan *transport.Frame, <-chan error) {
	return m.frames, m.errs
}

func (m *mockTransport) SendMessage(_ context.Context, data []byte) error {
	m.mu.Lock()
	m.sent = append(m.sent, data)
	m.mu.Unlock()

	select {
	case m.sentCh <- data:
	default:
	}

	return nil
}

func (m *mockTransport) EndInput() error { return nil }
func (m *mockTransport) Close() error    { return nil }
func (m *mockTransport) IsReady() bool   { return true }

// inject delivers a frame to the router as if the peer wrote it.
func (m *mockTransport) inject(t *testing.T, v any) {
	t.Helper()

	frame, err := transport.NewFrame(v)
	require.NoError(t, err)

	m.frames <- frame
}

// end simulates end of stream, optionally with a fatal error.
func (m *mockTransport) end(err error) {
	m.closeOnce.Do(func() {
		if err != nil {
			m.errs <- err
		}

		close(m.errs)
		close(m.frames)
	})
}

// next waits for the next frame written by the router.
func (m *mockTransport) next(t *testing.T) map[string]any {
	t.Helper()

	select {
	case data := <-m.sentCh:
		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))

		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")

		return nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startRouter runs a router over a fresh mock transport and stops it when the
// test ends.
func startRouter(t *testing.T, handler Handler, opts ...RouterOption) (*Router, *mockTransport) {
	t.Helper()

	mt := newMockTransport()
	r := NewRouter(discardLogger(), mt, handler, opts...)

	runErr := make(chan error, 1)

	go func() { runErr <- r.Run(context.Background()) }()

	t.Cleanup(func() {
		r.Stop()
		<-runErr
	})

	return r, mt
}
