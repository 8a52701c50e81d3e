package message

import (
	"encoding/json"
	"strings"
)

// Message type discriminants.
const (
	TypeUser        = "user"
	TypeAssistant   = "assistant"
	TypeSystem      = "system"
	TypeResult      = "result"
	TypeStreamEvent = "stream_event"
)

// Message is one conversational frame.
type Message interface {
	// Type returns the frame's "type" field.
	Type() string
	// Raw returns the frame as received.
	Raw() json.RawMessage
}

// Compile-time verification that all message types implement Message.
var (
	_ Message = (*User)(nil)
	_ Message = (*Assistant)(nil)
	_ Message = (*System)(nil)
	_ Message = (*Result)(nil)
	_ Message = (*StreamEvent)(nil)
	_ Message = (*Other)(nil)
)

type frame struct {
	kind string
	raw  json.RawMessage
}

func (f *frame) Type() string         { return f.kind }
func (f *frame) Raw() json.RawMessage { return f.raw }

// User is a user turn echoed by the peer, including tool results.
//
//nolint:tagliatelle // peer uses snake_case
type User struct {
	frame

	Content         []Block        `json:"-"`
	UUID            string         `json:"uuid,omitempty"`
	ParentToolUseID string         `json:"parent_tool_use_id,omitempty"`
	ToolUseResult   map[string]any `json:"tool_use_result,omitempty"`
}

// Assistant is a model response.
//
//nolint:tagliatelle // peer uses snake_case
type Assistant struct {
	frame

	Content         []Block `json:"-"`
	Model           string  `json:"-"`
	ParentToolUseID string  `json:"parent_tool_use_id,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Text concatenates the assistant's text blocks.
func (m *Assistant) Text() string {
	var sb strings.Builder

	for _, b := range m.Content {
		if t, ok := b.(*TextBlock); ok {
			sb.WriteString(t.Text)
		}
	}

	return sb.String()
}

// System is a notice from the peer such as the "init" message.
//
//nolint:tagliatelle // peer uses snake_case
type System struct {
	frame

	Subtype   string         `json:"subtype"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"-"`
}

// Result ends a turn.
//
//nolint:tagliatelle // peer uses snake_case
type Result struct {
	frame

	Subtype          string         `json:"subtype"`
	DurationMs       int            `json:"duration_ms"`
	DurationAPIMs    int            `json:"duration_api_ms"`
	IsError          bool           `json:"is_error"`
	NumTurns         int            `json:"num_turns"`
	SessionID        string         `json:"session_id"`
	TotalCostUSD     *float64       `json:"total_cost_usd,omitempty"`
	Usage            map[string]any `json:"usage,omitempty"`
	Result           string         `json:"result,omitempty"`
	StructuredOutput any            `json:"structured_output,omitempty"`
}

// StreamEvent is a partial model output event.
//
//nolint:tagliatelle // peer uses snake_case
type StreamEvent struct {
	frame

	UUID            string         `json:"uuid"`
	SessionID       string         `json:"session_id"`
	Event           map[string]any `json:"event"`
	ParentToolUseID string         `json:"parent_tool_use_id,omitempty"`
}

// Other is a conversational frame of a type this package does not model,
// or one whose body did not decode.
type Other struct {
	frame

	// Err is the decode failure, if any.
	Err error
}

// IsResult reports whether m ends a turn.
func IsResult(m Message) bool {
	return m != nil && m.Type() == TypeResult
}
