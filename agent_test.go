package agentproto

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wagiedev/agentproto/internal/transport"
)

// scriptedAgent is an in-memory peer. It answers initialize, replies to
// each prompt with one assistant message and a result, and, when a tool
// is configured, asks for permission to use it first.
type scriptedAgent struct {
	tool     string // when set, each turn starts with a can_use_tool request
	failInit string // when set, initialize is answered with this error

	mu      sync.Mutex
	out     chan *Frame
	closed  bool
	prompts []string
	pending map[string]string // permission request id -> prompt
	seq     int

	closes atomic.Int32
}

var _ Transport = (*scriptedAgent)(nil)

func newScriptedAgent() *scriptedAgent {
	return &scriptedAgent{
		out:     make(chan *Frame, 64),
		pending: make(map[string]string),
	}
}

func (a *scriptedAgent) factory() TransportFactory {
	return func() (Transport, error) { return a, nil }
}

func (a *scriptedAgent) Start(context.Context) error { return nil }

func (a *scriptedAgent) ReadFrames(ctx context.Context) (<-chan *Frame, <-chan error) {
	frames := make(chan *Frame)
	errs := make(chan error)

	go func() {
		defer close(frames)
		defer close(errs)

		for f := range a.out {
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, errs
}

func (a *scriptedAgent) SendMessage(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	switch m["type"] {
	case "control_request":
		req, _ := m["request"].(map[string]any)
		id, _ := m["request_id"].(string)

		if req["subtype"] == "initialize" && a.failInit != "" {
			return a.emit(map[string]any{
				"type":     "control_response",
				"response": map[string]any{"subtype": "error", "request_id": id, "error": a.failInit},
			})
		}

		return a.emit(map[string]any{
			"type": "control_response",
			"response": map[string]any{
				"subtype":    "success",
				"request_id": id,
				"response":   map[string]any{"commands": []any{}},
			},
		})

	case "control_response":
		resp, _ := m["response"].(map[string]any)
		id, _ := resp["request_id"].(string)
		body, _ := resp["response"].(map[string]any)

		a.mu.Lock()
		prompt := a.pending[id]
		delete(a.pending, id)
		a.mu.Unlock()

		return a.reply(fmt.Sprintf("%s: %v", prompt, body["behavior"]))

	case "user":
		msg, _ := m["message"].(map[string]any)
		prompt, _ := msg["content"].(string)

		a.mu.Lock()
		a.prompts = append(a.prompts, prompt)
		a.seq++
		id := fmt.Sprintf("perm_%d", a.seq)

		if a.tool != "" {
			a.pending[id] = prompt
		}
		a.mu.Unlock()

		if a.tool != "" {
			return a.emit(map[string]any{
				"type":       "control_request",
				"request_id": id,
				"request": map[string]any{
					"subtype":   "can_use_tool",
					"tool_name": a.tool,
					"input":     map[string]any{"command": "ls"},
				},
			})
		}

		return a.reply("echo: " + prompt)
	}

	return nil
}

func (a *scriptedAgent) reply(text string) error {
	if err := a.emit(map[string]any{
		"type": "assistant",
		"message": map[string]any{
			"model":   "scripted",
			"content": []any{map[string]any{"type": "text", "text": text}},
		},
	}); err != nil {
		return err
	}

	return a.emit(map[string]any{
		"type":       "result",
		"subtype":    "success",
		"num_turns":  1,
		"session_id": "scripted",
		"result":     text,
	})
}

func (a *scriptedAgent) emit(v any) error {
	f, err := transport.NewFrame(v)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrConnectionLost
	}

	a.out <- f

	return nil
}

func (a *scriptedAgent) EndInput() error { return nil }

func (a *scriptedAgent) Close() error {
	a.closes.Add(1)

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.closed {
		a.closed = true
		close(a.out)
	}

	return nil
}

func (a *scriptedAgent) IsReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return !a.closed
}

func (a *scriptedAgent) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]string(nil), a.prompts...)
}
