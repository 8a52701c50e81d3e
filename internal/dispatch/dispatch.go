package dispatch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/wagiedev/agentproto/internal/errors"
	"github.com/wagiedev/agentproto/internal/hook"
	"github.com/wagiedev/agentproto/internal/mcp"
	"github.com/wagiedev/agentproto/internal/permission"
	"github.com/wagiedev/agentproto/internal/protocol"
)

// Config holds the callbacks visible to one connection.
type Config struct {
	Hooks      *hook.Bindings
	CanUseTool permission.Callback
	MCP        *mcp.Set
}

// Dispatcher implements protocol.Handler.
type Dispatcher struct {
	log        *slog.Logger
	hooks      *hook.Bindings
	canUseTool permission.Callback
	servers    *mcp.Set
}

// Compile-time verification that Dispatcher implements protocol.Handler.
var _ protocol.Handler = (*Dispatcher)(nil)

// New creates a Dispatcher over the given callbacks.
func New(log *slog.Logger, cfg Config) *Dispatcher {
	return &Dispatcher{
		log:        log.With("component", "dispatch"),
		hooks:      cfg.Hooks,
		canUseTool: cfg.CanUseTool,
		servers:    cfg.MCP,
	}
}

// HandleControl routes one inbound control request by subtype. The generic
// kinds "permission", "hook" and "mcp-call" route like can_use_tool,
// hook_callback and mcp_message.
//
// Requests nobody handles fail with a *errors.DispatchError wrapping
// ErrNoHandler, as do bodies that cannot be decoded. Callback errors and
// panics become *errors.HandlerFailure.
func (d *Dispatcher) HandleControl(ctx context.Context, req *protocol.ControlRequest) (payload any, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer func() {
		if v := recover(); v != nil {
			d.log.Error("Callback panicked", "subtype", req.Subtype, "request_id", req.RequestID, "panic", v)

			payload = nil
			err = &errors.HandlerFailure{Subtype: req.Subtype, Cause: v}
		}
	}()

	switch req.Subtype {
	case protocol.SubtypeHookCallback, protocol.SubtypeHook:
		return d.hookCallback(ctx, req)
	case protocol.SubtypeCanUseTool, protocol.SubtypePermission:
		return d.permission(ctx, req)
	case protocol.SubtypeMCPMessage, protocol.SubtypeMCPCall:
		return d.mcpMessage(ctx, req)
	default:
		return nil, &errors.DispatchError{Subtype: req.Subtype, Err: errors.ErrNoHandler}
	}
}

//nolint:tagliatelle // peer uses snake_case
type hookCallbackRequest struct {
	CallbackID string          `json:"callback_id"`
	Input      json.RawMessage `json:"input"`
	ToolUseID  string          `json:"tool_use_id"`
}

func (d *Dispatcher) hookCallback(ctx context.Context, req *protocol.ControlRequest) (any, error) {
	var body hookCallbackRequest
	if err := req.Decode(&body); err != nil {
		return nil, decodeFailure(req.Subtype, err)
	}

	in, err := hook.DecodeInput(body.Input)
	if err != nil {
		return nil, decodeFailure(req.Subtype, err)
	}

	callback, id, ok := d.hooks.Resolve(body.CallbackID, in)
	if !ok {
		return nil, &errors.DispatchError{
			Subtype: req.Subtype,
			Err:     fmt.Errorf("%w for %s callback %q", errors.ErrNoHandler, in.Event(), body.CallbackID),
		}
	}

	d.log.Debug("Running hook", "callback_id", id, "event", in.Event())

	out, err := callback(ctx, in, body.ToolUseID)
	if err != nil {
		return nil, &errors.HandlerFailure{Subtype: req.Subtype, Cause: err}
	}

	return out.Wire(in.Event()), nil
}

func (d *Dispatcher) permission(ctx context.Context, req *protocol.ControlRequest) (any, error) {
	if d.canUseTool == nil {
		return nil, &errors.DispatchError{Subtype: req.Subtype, Err: errors.ErrNoHandler}
	}

	permReq, err := permission.DecodeRequest(req.Body)
	if err != nil {
		return nil, decodeFailure(req.Subtype, err)
	}

	d.log.Debug("Checking tool permission", "tool", permReq.ToolName)

	result, err := d.canUseTool(ctx, permReq)
	if err != nil {
		return nil, &errors.HandlerFailure{Subtype: req.Subtype, Cause: err}
	}

	wire, err := permission.Wire(result)
	if err != nil {
		return nil, &errors.HandlerFailure{Subtype: req.Subtype, Cause: err}
	}

	return wire, nil
}

func (d *Dispatcher) mcpMessage(ctx context.Context, req *protocol.ControlRequest) (any, error) {
	var body mcp.Request
	if err := req.Decode(&body); err != nil {
		return nil, decodeFailure(req.Subtype, err)
	}

	if body.ServerName == "" || len(body.Message) == 0 {
		return nil, decodeFailure(req.Subtype, fmt.Errorf("mcp_message requires server_name and message"))
	}

	payload, err := d.servers.Handle(ctx, &body)
	if err != nil {
		var failure *errors.HandlerFailure
		if stderrors.As(err, &failure) {
			return nil, err
		}

		return nil, &errors.DispatchError{Subtype: req.Subtype, Err: err}
	}

	return payload, nil
}

func decodeFailure(subtype string, err error) error {
	return &errors.DispatchError{Subtype: subtype, Err: err}
}
