package hook

import "time"

// Decision is a hook's verdict on the action it intercepted.
type Decision string

const (
	// DecisionNone leaves the peer's own decision in place.
	DecisionNone Decision = ""
	// DecisionApprove allows the action.
	DecisionApprove Decision = "approve"
	// DecisionBlock denies the action and stops the turn from continuing.
	DecisionBlock Decision = "block"
	// DecisionAsk defers to the peer's permission prompt.
	DecisionAsk Decision = "ask"
)

// Output is what a hook callback returns.
type Output struct {
	// Decision applies to the intercepted action.
	Decision Decision
	// Reason explains the decision to the model.
	Reason string
	// SystemMessage is shown to the user.
	SystemMessage string
	// StopReason is reported when the hook halts the agent.
	StopReason string
	// Stop halts the agent after this hook, regardless of Decision.
	Stop bool
	// SuppressOutput hides the hook's output from the transcript.
	SuppressOutput bool
	// AdditionalContext is appended to the model's context.
	AdditionalContext string
	// UpdatedInput replaces the tool input (PreToolUse only).
	UpdatedInput map[string]any

	// Async defers the hook's result; the peer continues without waiting.
	Async        bool
	AsyncTimeout time.Duration
}

// Approve returns an Output that allows the action.
func Approve() *Output {
	return &Output{Decision: DecisionApprove}
}

// Block returns an Output that denies the action with reason.
func Block(reason string) *Output {
	return &Output{Decision: DecisionBlock, Reason: reason}
}

// Wire renders the output as the hook_callback response payload for event.
// A nil output continues with no changes.
func (o *Output) Wire(event Event) map[string]any {
	if o == nil {
		return map[string]any{"continue": true}
	}

	if o.Async {
		result := map[string]any{"async": true}
		if o.AsyncTimeout > 0 {
			result["asyncTimeout"] = o.AsyncTimeout.Milliseconds()
		}

		return result
	}

	result := map[string]any{"continue": !o.Stop && o.Decision != DecisionBlock}

	if o.SuppressOutput {
		result["suppressOutput"] = true
	}

	if o.StopReason != "" {
		result["stopReason"] = o.StopReason
	}

	if o.SystemMessage != "" {
		result["systemMessage"] = o.SystemMessage
	}

	if o.Decision == DecisionBlock {
		result["decision"] = "block"
	}

	if o.Reason != "" {
		result["reason"] = o.Reason
	}

	if specific := o.specific(event); len(specific) > 1 {
		result["hookSpecificOutput"] = specific
	}

	return result
}

// specific builds hookSpecificOutput. The event name is always present.
func (o *Output) specific(event Event) map[string]any {
	specific := map[string]any{"hookEventName": string(event)}

	if event == EventPreToolUse {
		switch o.Decision {
		case DecisionApprove:
			specific["permissionDecision"] = "allow"
		case DecisionBlock:
			specific["permissionDecision"] = "deny"
		case DecisionAsk:
			specific["permissionDecision"] = "ask"
		case DecisionNone:
		}

		if o.Decision != DecisionNone && o.Reason != "" {
			specific["permissionDecisionReason"] = o.Reason
		}

		if o.UpdatedInput != nil {
			specific["updatedInput"] = o.UpdatedInput
		}
	}

	if o.AdditionalContext != "" {
		specific["additionalContext"] = o.AdditionalContext
	}

	return specific
}
