package hook

import (
	"encoding/json"
	"fmt"
)

// DecodeInput decodes a hook input payload into its typed form.
//
// The payload must name a known event in hook_event_name and must fit that
// event's shape. Tool events must name the tool.
func DecodeInput(data json.RawMessage) (Input, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("hook input is empty")
	}

	var head BaseInput
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode hook input: %w", err)
	}

	in, err := newInput(head.HookEventName)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("decode %s hook input: %w", head.HookEventName, err)
	}

	if ti, ok := in.(ToolInput); ok && ti.Tool() == "" {
		return nil, fmt.Errorf("decode %s hook input: missing tool_name", head.HookEventName)
	}

	return in, nil
}

func newInput(event Event) (Input, error) {
	switch event {
	case EventPreToolUse:
		return &PreToolUseInput{}, nil
	case EventPostToolUse:
		return &PostToolUseInput{}, nil
	case EventPostToolUseFailure:
		return &PostToolUseFailureInput{}, nil
	case EventPermissionRequest:
		return &PermissionRequestInput{}, nil
	case EventUserPromptSubmit:
		return &UserPromptSubmitInput{}, nil
	case EventStop:
		return &StopInput{}, nil
	case EventSubagentStart:
		return &SubagentStartInput{}, nil
	case EventSubagentStop:
		return &SubagentStopInput{}, nil
	case EventPreCompact:
		return &PreCompactInput{}, nil
	case EventNotification:
		return &NotificationInput{}, nil
	case "":
		return nil, fmt.Errorf("hook input missing hook_event_name")
	default:
		return nil, fmt.Errorf("unknown hook event %q", event)
	}
}
