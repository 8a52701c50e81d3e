package agentproto

import (
	"github.com/wagiedev/agentproto/internal/config"
	"github.com/wagiedev/agentproto/internal/hook"
	"github.com/wagiedev/agentproto/internal/message"
	"github.com/wagiedev/agentproto/internal/permission"
	"github.com/wagiedev/agentproto/internal/session"
)

// ===== Messages =====

// Message is one conversational message from the peer.
type Message = message.Message

// UserMessage echoes user input or carries tool results.
type UserMessage = message.User

// AssistantMessage is model output.
type AssistantMessage = message.Assistant

// SystemMessage carries session metadata such as the init message.
type SystemMessage = message.System

// ResultMessage ends a turn.
type ResultMessage = message.Result

// StreamEvent is a partial-message update.
type StreamEvent = message.StreamEvent

// OtherMessage is any message whose type is unknown or failed to decode.
// It is delivered rather than dropped.
type OtherMessage = message.Other

// ContentBlock is one block of message content.
type ContentBlock = message.Block

// TextBlock is plain text content.
type TextBlock = message.TextBlock

// ThinkingBlock is model reasoning content.
type ThinkingBlock = message.ThinkingBlock

// ToolUseBlock is a tool invocation.
type ToolUseBlock = message.ToolUseBlock

// ToolResultBlock is the outcome of a tool invocation.
type ToolResultBlock = message.ToolResultBlock

// IsResult reports whether m ends a turn.
func IsResult(m Message) bool { return message.IsResult(m) }

// ===== Session state =====

// State is the session lifecycle state.
type State = session.State

// Session states.
const (
	StateDisconnected = session.StateDisconnected
	StateConnecting   = session.StateConnecting
	StateIdle         = session.StateIdle
	StateInTurn       = session.StateInTurn
)

// TurnOptions tune a single Query.
type TurnOptions = session.TurnOptions

// ===== Hooks =====

// HookEvent names the lifecycle point a hook runs at.
type HookEvent = hook.Event

// HookInput is the decoded input of a hook callback.
type HookInput = hook.Input

// HookOutput is what a hook callback returns.
type HookOutput = hook.Output

// HookCallback handles one hook invocation.
type HookCallback = hook.Callback

// HookMatcher binds callbacks to an event, optionally filtered by tool name.
type HookMatcher = hook.Matcher

// Hook events.
const (
	HookEventPreToolUse         = hook.EventPreToolUse
	HookEventPostToolUse        = hook.EventPostToolUse
	HookEventPostToolUseFailure = hook.EventPostToolUseFailure
	HookEventUserPromptSubmit   = hook.EventUserPromptSubmit
	HookEventStop               = hook.EventStop
	HookEventSubagentStart      = hook.EventSubagentStart
	HookEventSubagentStop       = hook.EventSubagentStop
	HookEventPreCompact         = hook.EventPreCompact
	HookEventNotification       = hook.EventNotification
	HookEventPermissionRequest  = hook.EventPermissionRequest
)

// PreToolUseHookInput is the input of a PreToolUse hook.
type PreToolUseHookInput = hook.PreToolUseInput

// PostToolUseHookInput is the input of a PostToolUse hook.
type PostToolUseHookInput = hook.PostToolUseInput

// ApproveHook lets the peer continue.
func ApproveHook() *HookOutput { return hook.Approve() }

// BlockHook stops the action with a reason.
func BlockHook(reason string) *HookOutput { return hook.Block(reason) }

// ===== Permissions =====

// PermissionMode is the peer's permission handling mode.
type PermissionMode = permission.Mode

// Permission modes.
const (
	PermissionModeDefault           = permission.ModeDefault
	PermissionModeAcceptEdits       = permission.ModeAcceptEdits
	PermissionModePlan              = permission.ModePlan
	PermissionModeBypassPermissions = permission.ModeBypassPermissions
)

// ParsePermissionMode validates a mode name. The legacy names "acceptAll"
// and "prompt" are accepted.
func ParsePermissionMode(s string) (PermissionMode, error) {
	return config.ParsePermissionMode(s)
}

// PermissionRequest is a can_use_tool request.
type PermissionRequest = permission.Request

// PermissionResult is either *PermissionAllow or *PermissionDeny.
type PermissionResult = permission.Result

// PermissionAllow lets the tool run.
type PermissionAllow = permission.Allow

// PermissionDeny stops the tool.
type PermissionDeny = permission.Deny

// PermissionUpdate changes the peer's permission rules.
type PermissionUpdate = permission.Update

// CanUseToolFunc is called before each tool use.
type CanUseToolFunc = permission.Callback
