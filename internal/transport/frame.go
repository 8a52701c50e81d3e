package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame type discriminants used by the control protocol.
const (
	TypeControlRequest  = "control_request"
	TypeControlResponse = "control_response"
	TypeControlCancel   = "control_cancel_request"
)

// Kind classifies a frame for routing.
type Kind int

const (
	// KindConversational is any frame that is not a control frame.
	KindConversational Kind = iota
	// KindControlRequest is a control_request frame.
	KindControlRequest
	// KindControlResponse is a control_response frame.
	KindControlResponse
	// KindControlCancel is a control_cancel_request frame.
	KindControlCancel
)

// Frame is one decoded JSON object read from the stream.
//
// Only the discriminant is decoded eagerly; the payload is kept as raw JSON
// so each consumer can decode it into the shape it expects.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

// envelope is the minimal shape every frame must have.
type envelope struct {
	Type *string `json:"type"`
}

// DecodeFrame parses one line into a Frame.
//
// The line must be a JSON object with a string "type" field.
func DecodeFrame(line []byte) (*Frame, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, fmt.Errorf("frame is not a JSON object")
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, err
	}

	if env.Type == nil {
		return nil, fmt.Errorf("frame missing 'type' field")
	}

	raw := make(json.RawMessage, len(line))
	copy(raw, line)

	return &Frame{Type: *env.Type, Raw: raw}, nil
}

// NewFrame marshals v and wraps it as a Frame.
func NewFrame(v any) (*Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}

	return DecodeFrame(data)
}

// Kind returns the routing class of the frame.
func (f *Frame) Kind() Kind {
	switch f.Type {
	case TypeControlRequest:
		return KindControlRequest
	case TypeControlResponse:
		return KindControlResponse
	case TypeControlCancel:
		return KindControlCancel
	default:
		return KindConversational
	}
}

// Decode unmarshals the frame payload into v.
func (f *Frame) Decode(v any) error {
	return json.Unmarshal(f.Raw, v)
}

// Fields decodes the frame into a generic map.
func (f *Frame) Fields() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(f.Raw, &m); err != nil {
		return nil, err
	}

	return m, nil
}
