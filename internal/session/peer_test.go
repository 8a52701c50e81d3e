package session

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/agentproto/internal/transport"
)

const waitTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// peer plays the agent process on the far side of an in-memory stream.
type peer struct {
	frames chan map[string]any
	w      *io.PipeWriter
	wmu    sync.Mutex
}

// newPeer returns a peer and the session-side transport connected to it.
func newPeer(t *testing.T) (*peer, transport.Transport) {
	t.Helper()

	toPeerR, toPeerW := io.Pipe()
	toSessionR, toSessionW := io.Pipe()

	p := &peer{frames: make(chan map[string]any, 64), w: toSessionW}

	go func() {
		defer close(p.frames)

		scanner := bufio.NewScanner(toPeerR)
		for scanner.Scan() {
			var m map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &m); err == nil {
				p.frames <- m
			}
		}
	}()

	t.Cleanup(func() {
		_ = toSessionW.Close()
		_ = toPeerR.Close()
	})

	return p, transport.NewStream(discardLogger(), toSessionR, toPeerW)
}

// factory hands out the given transports, one per Connect.
func factory(ts ...transport.Transport) transport.Factory {
	var mu sync.Mutex

	return func() (transport.Transport, error) {
		mu.Lock()
		defer mu.Unlock()

		t := ts[0]
		ts = ts[1:]

		return t, nil
	}
}

// next returns the next frame the session wrote.
func (p *peer) next(t *testing.T) map[string]any {
	t.Helper()

	select {
	case f, ok := <-p.frames:
		require.True(t, ok, "session closed the stream")

		return f
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a frame from the session")

		return nil
	}
}

// nextRequest returns the next control request and its subtype.
func (p *peer) nextRequest(t *testing.T) (map[string]any, string) {
	t.Helper()

	f := p.next(t)
	require.Equal(t, "control_request", f["type"], "frame: %v", f)

	return f, f["request"].(map[string]any)["subtype"].(string)
}

// send writes one frame to the session. Safe from any goroutine.
func (p *peer) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	p.wmu.Lock()
	defer p.wmu.Unlock()

	_, err = p.w.Write(append(data, '\n'))

	return err
}

func (p *peer) respond(req map[string]any, payload any) error {
	id := req["request_id"]

	return p.send(map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": id,
			"response":   payload,
		},
	})
}

func (p *peer) fail(req map[string]any, msg string) error {
	return p.send(map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "error",
			"request_id": req["request_id"],
			"error":      msg,
		},
	})
}

// hangUp ends the session's input stream.
func (p *peer) hangUp() {
	_ = p.w.Close()
}

// connect runs Connect against p, answering initialize with info, and
// returns the initialize request.
func connect(t *testing.T, s *Session, p *peer, info map[string]any) map[string]any {
	t.Helper()

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Connect(context.Background())
	}()

	req, subtype := p.nextRequest(t)
	require.Equal(t, "initialize", subtype)
	require.NoError(t, p.respond(req, info))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Connect did not return")
	}

	t.Cleanup(func() { _ = s.Disconnect() })

	return req
}

func assistant(text string) map[string]any {
	return map[string]any{
		"type":    "assistant",
		"message": map[string]any{"model": "test", "content": []any{map[string]any{"type": "text", "text": text}}},
	}
}

func result() map[string]any {
	return map[string]any{"type": "result", "subtype": "success", "num_turns": 1, "session_id": "s1"}
}

// sendAll writes frames from the test goroutine.
func (p *peer) sendAll(t *testing.T, frames ...map[string]any) {
	t.Helper()

	for _, f := range frames {
		require.NoError(t, p.send(f))
	}
}

// answerNext answers the next control request from a helper goroutine.
func (p *peer) answerNext(t *testing.T, payload any) <-chan string {
	t.Helper()

	subtypes := make(chan string, 1)

	go func() {
		f, ok := <-p.frames
		if !assert.True(t, ok) {
			close(subtypes)

			return
		}

		req, _ := f["request"].(map[string]any)
		subtype, _ := req["subtype"].(string)
		subtypes <- subtype

		assert.NoError(t, p.respond(f, payload))
	}()

	return subtypes
}
