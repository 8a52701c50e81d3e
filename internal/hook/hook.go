package hook

import "context"

// Event names a point in the peer's lifecycle where hooks run.
type Event string

const (
	// EventPreToolUse is triggered before a tool is used.
	EventPreToolUse Event = "PreToolUse"
	// EventPostToolUse is triggered after a tool is used.
	EventPostToolUse Event = "PostToolUse"
	// EventPostToolUseFailure is triggered after a tool use fails.
	EventPostToolUseFailure Event = "PostToolUseFailure"
	// EventUserPromptSubmit is triggered when a user submits a prompt.
	EventUserPromptSubmit Event = "UserPromptSubmit"
	// EventStop is triggered when the agent finishes responding.
	EventStop Event = "Stop"
	// EventSubagentStart is triggered when a subagent starts.
	EventSubagentStart Event = "SubagentStart"
	// EventSubagentStop is triggered when a subagent stops.
	EventSubagentStop Event = "SubagentStop"
	// EventPreCompact is triggered before context compaction.
	EventPreCompact Event = "PreCompact"
	// EventNotification is triggered when the peer emits a notification.
	EventNotification Event = "Notification"
	// EventPermissionRequest is triggered when a permission dialog would be shown.
	EventPermissionRequest Event = "PermissionRequest"
)

// Input is implemented by every typed hook input.
type Input interface {
	Event() Event
	Common() *BaseInput
}

// ToolInput is implemented by inputs that concern a specific tool.
type ToolInput interface {
	Input
	Tool() string
}

// Compile-time verification that all hook input types implement Input.
var (
	_ ToolInput = (*PreToolUseInput)(nil)
	_ ToolInput = (*PostToolUseInput)(nil)
	_ ToolInput = (*PostToolUseFailureInput)(nil)
	_ ToolInput = (*PermissionRequestInput)(nil)
	_ Input     = (*UserPromptSubmitInput)(nil)
	_ Input     = (*StopInput)(nil)
	_ Input     = (*SubagentStartInput)(nil)
	_ Input     = (*SubagentStopInput)(nil)
	_ Input     = (*PreCompactInput)(nil)
	_ Input     = (*NotificationInput)(nil)
)

// BaseInput holds the fields every hook input carries.
//
//nolint:tagliatelle // peer uses snake_case
type BaseInput struct {
	HookEventName  Event  `json:"hook_event_name"`
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	PermissionMode string `json:"permission_mode,omitempty"`
}

// Event implements Input.
func (b *BaseInput) Event() Event { return b.HookEventName }

// Common implements Input.
func (b *BaseInput) Common() *BaseInput { return b }

// ToolFields holds the fields of inputs that concern a tool call.
//
//nolint:tagliatelle // peer uses snake_case
type ToolFields struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
}

// Tool returns the name of the tool the hook concerns.
func (t *ToolFields) Tool() string { return t.ToolName }

// PreToolUseInput is the input for PreToolUse hooks.
type PreToolUseInput struct {
	BaseInput
	ToolFields
}

// PostToolUseInput is the input for PostToolUse hooks.
//
//nolint:tagliatelle // peer uses snake_case
type PostToolUseInput struct {
	BaseInput
	ToolFields
	ToolResponse any `json:"tool_response"`
}

// PostToolUseFailureInput is the input for PostToolUseFailure hooks.
//
//nolint:tagliatelle // peer uses snake_case
type PostToolUseFailureInput struct {
	BaseInput
	ToolFields
	Error       string `json:"error"`
	IsInterrupt bool   `json:"is_interrupt,omitempty"`
}

// PermissionRequestInput is the input for PermissionRequest hooks.
//
//nolint:tagliatelle // peer uses snake_case
type PermissionRequestInput struct {
	BaseInput
	ToolFields
	PermissionSuggestions []map[string]any `json:"permission_suggestions,omitempty"`
}

// UserPromptSubmitInput is the input for UserPromptSubmit hooks.
type UserPromptSubmitInput struct {
	BaseInput
	Prompt string `json:"prompt"`
}

// StopInput is the input for Stop hooks.
//
//nolint:tagliatelle // peer uses snake_case
type StopInput struct {
	BaseInput
	StopHookActive bool `json:"stop_hook_active"`
}

// SubagentStartInput is the input for SubagentStart hooks.
//
//nolint:tagliatelle // peer uses snake_case
type SubagentStartInput struct {
	BaseInput
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
}

// SubagentStopInput is the input for SubagentStop hooks.
//
//nolint:tagliatelle // peer uses snake_case
type SubagentStopInput struct {
	BaseInput
	StopHookActive      bool   `json:"stop_hook_active"`
	AgentID             string `json:"agent_id"`
	AgentTranscriptPath string `json:"agent_transcript_path"`
	AgentType           string `json:"agent_type"`
}

// PreCompactInput is the input for PreCompact hooks.
//
//nolint:tagliatelle // peer uses snake_case
type PreCompactInput struct {
	BaseInput
	Trigger            string `json:"trigger"` // "manual" or "auto"
	CustomInstructions string `json:"custom_instructions,omitempty"`
}

// NotificationInput is the input for Notification hooks.
//
//nolint:tagliatelle // peer uses snake_case
type NotificationInput struct {
	BaseInput
	Message          string `json:"message"`
	Title            string `json:"title,omitempty"`
	NotificationType string `json:"notification_type,omitempty"`
}

// Callback runs when the peer fires a hook this callback is registered for.
//
// toolUseID is empty for events that do not concern a tool call. A nil
// Output means "continue with no changes".
type Callback func(ctx context.Context, input Input, toolUseID string) (*Output, error)
