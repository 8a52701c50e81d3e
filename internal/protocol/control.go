package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
)

// Control request subtypes.
const (
	SubtypeCanUseTool        = "can_use_tool"
	SubtypeHookCallback      = "hook_callback"
	SubtypeMCPMessage        = "mcp_message"
	SubtypeInitialize        = "initialize"
	SubtypeInterrupt         = "interrupt"
	SubtypeSetPermissionMode = "set_permission_mode"
	SubtypeSetModel          = "set_model"
	SubtypeRewindFiles       = "rewind_files"
	SubtypeMCPStatus         = "mcp_status"
)

// Generic kind names some peers send in place of the inbound subtypes above.
const (
	SubtypePermission = "permission"
	SubtypeHook       = "hook"
	SubtypeMCPCall    = "mcp-call"
)

const (
	responseSuccess   = "success"
	responseError     = "error"
	responseCancelAck = "cancel_acknowledgment"
)

// ControlRequest is an inbound control request from the peer.
//
// The peer may nest the request body under "request" or put it at the top
// level of the frame. Body is the object that carries the subtype in either
// form; Flat records which form arrived so the reply can mirror it.
type ControlRequest struct {
	RequestID string
	Subtype   string
	Body      json.RawMessage
	Flat      bool
}

// Decode unmarshals the request body into v.
func (r *ControlRequest) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Handler answers inbound control requests.
//
// The returned payload is marshalled into the success response. A returned
// error becomes an error response carrying err.Error().
type Handler interface {
	HandleControl(ctx context.Context, req *ControlRequest) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *ControlRequest) (any, error)

// HandleControl implements Handler.
func (f HandlerFunc) HandleControl(ctx context.Context, req *ControlRequest) (any, error) {
	return f(ctx, req)
}

// controlRequestFrame is the outbound request envelope.
//
//	{"type":"control_request","request_id":"01J...","request":{"subtype":"interrupt"}}
type controlRequestFrame struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"` //nolint:tagliatelle // peer uses snake_case
	Request   map[string]any `json:"request"`
}

// inboundRequestFrame is the envelope of a control request from the peer.
type inboundRequestFrame struct {
	RequestID string          `json:"request_id"` //nolint:tagliatelle // peer uses snake_case
	Subtype   string          `json:"subtype"`
	Request   json.RawMessage `json:"request"`
}

// controlResponseFrame is the envelope of a control response in either
// direction.
//
// Success:
//
//	{"type":"control_response","request_id":"r1",
//	 "response":{"subtype":"success","request_id":"r1","response":{...}}}
//
// Error:
//
//	{"type":"control_response","request_id":"r1",
//	 "response":{"subtype":"error","request_id":"r1","error":"message"}}
type controlResponseFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"` //nolint:tagliatelle // peer uses snake_case
	Response  json.RawMessage `json:"response"`
}

// responseBody is the inner response object.
type responseBody struct {
	Subtype   string          `json:"subtype"`
	RequestID string          `json:"request_id"` //nolint:tagliatelle // peer uses snake_case
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// cancelFrame is a control_cancel_request from the peer.
type cancelFrame struct {
	RequestID string `json:"request_id"` //nolint:tagliatelle // peer uses snake_case
}

// parseControlRequest normalizes the nested and flat request forms.
func parseControlRequest(raw json.RawMessage) (*ControlRequest, error) {
	var env inboundRequestFrame
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode control request: %w", err)
	}

	req := &ControlRequest{RequestID: env.RequestID}

	if len(env.Request) > 0 && string(env.Request) != "null" {
		var body struct {
			Subtype string `json:"subtype"`
		}

		if err := json.Unmarshal(env.Request, &body); err != nil {
			return req, fmt.Errorf("decode control request body: %w", err)
		}

		req.Subtype = body.Subtype
		req.Body = env.Request
	} else {
		req.Subtype = env.Subtype
		req.Body = raw
		req.Flat = true
	}

	if req.Subtype == "" {
		return req, fmt.Errorf("control request missing subtype")
	}

	return req, nil
}

// buildSuccessBody renders a success response body for req.
//
// A nested request is answered with the payload nested under "response". A
// flat request is answered with the payload's fields merged into the body.
func buildSuccessBody(req *ControlRequest, payload any) (map[string]any, error) {
	body := map[string]any{
		"subtype":    responseSuccess,
		"request_id": req.RequestID,
	}

	if payload == nil {
		payload = map[string]any{}
	}

	if !req.Flat {
		body["response"] = payload

		return body, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal response payload: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		// Not an object; nest it instead.
		body["response"] = json.RawMessage(data)

		return body, nil
	}

	merged := make(map[string]any, len(fields)+2)
	maps.Copy(merged, fields)
	maps.Copy(merged, body)

	return merged, nil
}
