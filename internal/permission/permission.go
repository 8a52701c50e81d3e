// Package permission defines tool permission checks: the request the peer
// sends before a tool runs, the callback that answers it, and the result.
package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// Mode is the peer's permission handling mode.
type Mode string

const (
	// ModeDefault uses standard permission prompts.
	ModeDefault Mode = "default"
	// ModeAcceptEdits automatically accepts file edits.
	ModeAcceptEdits Mode = "acceptEdits"
	// ModePlan enables plan mode for implementation planning.
	ModePlan Mode = "plan"
	// ModeBypassPermissions bypasses all permission checks.
	ModeBypassPermissions Mode = "bypassPermissions"
)

var knownModes = []Mode{ModeDefault, ModeAcceptEdits, ModePlan, ModeBypassPermissions}

// ParseMode validates s as a permission mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !slices.Contains(knownModes, m) {
		return "", fmt.Errorf("unknown permission mode %q (want one of %v)", s, knownModes)
	}

	return m, nil
}

// UpdateType is the kind of permission update.
type UpdateType string

const (
	// UpdateTypeAddRules adds new permission rules.
	UpdateTypeAddRules UpdateType = "addRules"
	// UpdateTypeReplaceRules replaces existing permission rules.
	UpdateTypeReplaceRules UpdateType = "replaceRules"
	// UpdateTypeRemoveRules removes permission rules.
	UpdateTypeRemoveRules UpdateType = "removeRules"
	// UpdateTypeSetMode sets the permission mode.
	UpdateTypeSetMode UpdateType = "setMode"
	// UpdateTypeAddDirectories adds accessible directories.
	UpdateTypeAddDirectories UpdateType = "addDirectories"
	// UpdateTypeRemoveDirectories removes accessible directories.
	UpdateTypeRemoveDirectories UpdateType = "removeDirectories"
)

// Behavior is the verdict of a permission rule.
type Behavior string

const (
	// BehaviorAllow lets matching tool uses run without prompting.
	BehaviorAllow Behavior = "allow"
	// BehaviorDeny rejects matching tool uses.
	BehaviorDeny Behavior = "deny"
	// BehaviorAsk defers matching tool uses to the permission callback.
	BehaviorAsk Behavior = "ask"
)

// RuleValue is one permission rule.
type RuleValue struct {
	ToolName    string `json:"toolName"`
	RuleContent string `json:"ruleContent,omitempty"`
}

// Update is a permission update, either suggested by the peer or returned
// with an allow result.
type Update struct {
	Type        UpdateType  `json:"type"`
	Rules       []RuleValue `json:"rules,omitempty"`
	Behavior    Behavior    `json:"behavior,omitempty"`
	Mode        Mode        `json:"mode,omitempty"`
	Directories []string    `json:"directories,omitempty"`
	Destination string      `json:"destination,omitempty"`
}

// Request is a can_use_tool control request.
//
//nolint:tagliatelle // peer uses snake_case
type Request struct {
	ToolName    string         `json:"tool_name"`
	Input       map[string]any `json:"input"`
	ToolUseID   string         `json:"tool_use_id,omitempty"`
	BlockedPath string         `json:"blocked_path,omitempty"`
	Suggestions []Update       `json:"permission_suggestions,omitempty"`
}

// DecodeRequest decodes a can_use_tool request body.
//
// The body must name the tool and carry its input as an object.
func DecodeRequest(data json.RawMessage) (*Request, error) {
	var req struct {
		Request
		Input json.RawMessage `json:"input"`
	}

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode permission request: %w", err)
	}

	if req.ToolName == "" {
		return nil, fmt.Errorf("decode permission request: missing tool_name")
	}

	if len(req.Input) == 0 || string(req.Input) == "null" {
		return nil, fmt.Errorf("decode permission request: missing input")
	}

	if err := json.Unmarshal(req.Input, &req.Request.Input); err != nil {
		return nil, fmt.Errorf("decode permission request input: %w", err)
	}

	return &req.Request, nil
}

// Result is a permission decision. It is either *Allow or *Deny.
type Result interface {
	Behavior() Behavior
}

// Compile-time verification that permission result types implement Result.
var (
	_ Result = (*Allow)(nil)
	_ Result = (*Deny)(nil)
)

// Allow lets the tool run, optionally with modified input.
type Allow struct {
	UpdatedInput       map[string]any
	UpdatedPermissions []Update
}

// Behavior implements Result.
func (*Allow) Behavior() Behavior { return BehaviorAllow }

// Deny stops the tool from running.
type Deny struct {
	Message string
	// Interrupt also stops the current turn.
	Interrupt bool
}

// Behavior implements Result.
func (*Deny) Behavior() Behavior { return BehaviorDeny }

// Block denies a tool call with a reason.
func Block(message string) *Deny {
	return &Deny{Message: message}
}

// Wire renders a result as the can_use_tool response payload.
func Wire(r Result) (map[string]any, error) {
	switch d := r.(type) {
	case *Allow:
		result := map[string]any{"behavior": string(BehaviorAllow)}

		if d.UpdatedInput != nil {
			result["updatedInput"] = d.UpdatedInput
		}

		if len(d.UpdatedPermissions) > 0 {
			result["updatedPermissions"] = d.UpdatedPermissions
		}

		return result, nil

	case *Deny:
		result := map[string]any{
			"behavior": string(BehaviorDeny),
			"message":  d.Message,
		}

		if d.Interrupt {
			result["interrupt"] = true
		}

		return result, nil

	default:
		return nil, fmt.Errorf("permission callback must return *Allow or *Deny, got %T", r)
	}
}

// Callback is called before each tool use.
type Callback func(ctx context.Context, req *Request) (Result, error)
