package message

import (
	"encoding/json"
	"fmt"

	"github.com/wagiedev/agentproto/internal/transport"
)

// Parse decodes a conversational frame.
//
// Parse never drops a frame: an unknown type, or a known type whose body
// does not decode, is returned as *Other with the decode failure in Err.
func Parse(f *transport.Frame) Message {
	base := frame{kind: f.Type, raw: f.Raw}

	var (
		msg Message
		err error
	)

	switch f.Type {
	case TypeUser:
		msg, err = parseUser(base)
	case TypeAssistant:
		msg, err = parseAssistant(base)
	case TypeSystem:
		msg, err = parseSystem(base)
	case TypeResult:
		m := &Result{frame: base}
		err = json.Unmarshal(f.Raw, m)
		msg = m
	case TypeStreamEvent:
		m := &StreamEvent{frame: base}
		err = json.Unmarshal(f.Raw, m)
		msg = m
	default:
		return &Other{frame: base}
	}

	if err != nil {
		return &Other{frame: base, Err: fmt.Errorf("decode %s message: %w", f.Type, err)}
	}

	return msg
}

// envelope holds content and model. The peer normally nests it under
// "message"; a flat frame carries the same fields at the top level.
type envelope struct {
	Content json.RawMessage `json:"content"`
	Model   string          `json:"model"`
}

func (e *envelope) blocks() ([]Block, error) {
	if len(e.Content) == 0 {
		return nil, fmt.Errorf("missing message content")
	}

	return decodeContent(e.Content)
}

func parseUser(base frame) (*User, error) {
	var wire struct {
		*User
		envelope
		Message *envelope `json:"message"`
	}

	wire.User = &User{frame: base}

	if err := json.Unmarshal(base.raw, &wire); err != nil {
		return nil, err
	}

	env := &wire.envelope
	if wire.Message != nil {
		env = wire.Message
	}

	content, err := env.blocks()
	if err != nil {
		return nil, err
	}

	wire.User.Content = content

	return wire.User, nil
}

func parseAssistant(base frame) (*Assistant, error) {
	var wire struct {
		*Assistant
		envelope
		Message *envelope `json:"message"`
	}

	wire.Assistant = &Assistant{frame: base}

	if err := json.Unmarshal(base.raw, &wire); err != nil {
		return nil, err
	}

	env := &wire.envelope
	if wire.Message != nil {
		env = wire.Message
	}

	content, err := env.blocks()
	if err != nil {
		return nil, err
	}

	wire.Assistant.Content = content
	wire.Assistant.Model = env.Model

	return wire.Assistant, nil
}

func parseSystem(base frame) (*System, error) {
	m := &System{frame: base}

	if err := json.Unmarshal(base.raw, m); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(base.raw, &m.Data); err != nil {
		return nil, err
	}

	return m, nil
}
