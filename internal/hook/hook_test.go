package hook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeInput(t *testing.T) {
	t.Run("pre tool use", func(t *testing.T) {
		in, err := DecodeInput(json.RawMessage(`{
			"hook_event_name": "PreToolUse",
			"session_id": "s1",
			"cwd": "/work",
			"tool_name": "Bash",
			"tool_input": {"command": "ls"},
			"tool_use_id": "tu_1"
		}`))
		require.NoError(t, err)

		pre, ok := in.(*PreToolUseInput)
		require.True(t, ok)
		require.Equal(t, EventPreToolUse, pre.Event())
		require.Equal(t, "s1", pre.Common().SessionID)
		require.Equal(t, "Bash", pre.Tool())
		require.Equal(t, "ls", pre.ToolInput["command"])
		require.Equal(t, "tu_1", pre.ToolUseID)
	})

	t.Run("stop", func(t *testing.T) {
		in, err := DecodeInput(json.RawMessage(`{"hook_event_name":"Stop","stop_hook_active":true}`))
		require.NoError(t, err)

		stop, ok := in.(*StopInput)
		require.True(t, ok)
		require.True(t, stop.StopHookActive)
	})

	t.Run("post tool use failure", func(t *testing.T) {
		in, err := DecodeInput(json.RawMessage(`{
			"hook_event_name": "PostToolUseFailure",
			"tool_name": "Write",
			"tool_input": {},
			"error": "disk full",
			"is_interrupt": true
		}`))
		require.NoError(t, err)

		failure, ok := in.(*PostToolUseFailureInput)
		require.True(t, ok)
		require.Equal(t, "disk full", failure.Error)
		require.True(t, failure.IsInterrupt)
	})
}

func TestDecodeInput_RejectsInsteadOfDefaulting(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ``},
		{name: "null", data: `null`},
		{name: "not an object", data: `"PreToolUse"`},
		{name: "missing event", data: `{"tool_name":"Bash"}`},
		{name: "unknown event", data: `{"hook_event_name":"BeforeLunch"}`},
		{name: "wrong field type", data: `{"hook_event_name":"PreToolUse","tool_name":"Bash","tool_input":"rm"}`},
		{name: "tool event without tool", data: `{"hook_event_name":"PostToolUse","tool_input":{}}`},
		{name: "bool as string", data: `{"hook_event_name":"Stop","stop_hook_active":"yes"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := DecodeInput(json.RawMessage(tt.data))
			require.Error(t, err)
			require.Nil(t, in)
		})
	}
}

func TestOutputWire(t *testing.T) {
	t.Run("nil continues", func(t *testing.T) {
		var out *Output
		require.Equal(t, map[string]any{"continue": true}, out.Wire(EventStop))
	})

	t.Run("block on pre tool use", func(t *testing.T) {
		got := Block("dangerous command").Wire(EventPreToolUse)

		require.Equal(t, false, got["continue"])
		require.Equal(t, "block", got["decision"])
		require.Equal(t, "dangerous command", got["reason"])
		require.Equal(t, map[string]any{
			"hookEventName":            "PreToolUse",
			"permissionDecision":       "deny",
			"permissionDecisionReason": "dangerous command",
		}, got["hookSpecificOutput"])
	})

	t.Run("approve with updated input", func(t *testing.T) {
		out := Approve()
		out.UpdatedInput = map[string]any{"command": "ls -la"}

		got := out.Wire(EventPreToolUse)
		require.Equal(t, true, got["continue"])

		specific := got["hookSpecificOutput"].(map[string]any)
		require.Equal(t, "allow", specific["permissionDecision"])
		require.Equal(t, map[string]any{"command": "ls -la"}, specific["updatedInput"])
	})

	t.Run("additional context on other events", func(t *testing.T) {
		got := (&Output{AdditionalContext: "repo uses tabs"}).Wire(EventUserPromptSubmit)

		require.Equal(t, map[string]any{
			"hookEventName":     "UserPromptSubmit",
			"additionalContext": "repo uses tabs",
		}, got["hookSpecificOutput"])
	})

	t.Run("async", func(t *testing.T) {
		got := (&Output{Async: true, AsyncTimeout: 2 * time.Second}).Wire(EventPostToolUse)
		require.Equal(t, map[string]any{"async": true, "asyncTimeout": int64(2000)}, got)
	})

	t.Run("stop without decision", func(t *testing.T) {
		got := (&Output{Stop: true, StopReason: "budget"}).Wire(EventStop)
		require.Equal(t, map[string]any{"continue": false, "stopReason": "budget"}, got)
	})
}

func TestMatcher_Matches(t *testing.T) {
	tests := []struct {
		matcher string
		tool    string
		want    bool
	}{
		{matcher: "", tool: "Bash", want: true},
		{matcher: "*", tool: "Read", want: true},
		{matcher: "Bash", tool: "Bash", want: true},
		{matcher: "Bash", tool: "BashOutput", want: false},
		{matcher: "Write|Edit", tool: "Edit", want: true},
		{matcher: "Write|Edit", tool: "Read", want: false},
	}

	for _, tt := range tests {
		m := Matcher{Matcher: tt.matcher}
		require.Equal(t, tt.want, m.Matches(tt.tool), "matcher %q tool %q", tt.matcher, tt.tool)
	}
}

func namedCallback(name string, calls *[]string) Callback {
	return func(context.Context, Input, string) (*Output, error) {
		*calls = append(*calls, name)

		return nil, nil
	}
}

func TestRegistry_BindAssignsStableIDs(t *testing.T) {
	var calls []string

	reg := NewRegistry(map[Event][]Matcher{
		EventPreToolUse: {
			{Matcher: "Bash", Hooks: []Callback{namedCallback("bash", &calls)}, Timeout: 30 * time.Second},
			{Hooks: []Callback{namedCallback("any", &calls)}},
		},
		EventStop: {
			{Hooks: []Callback{namedCallback("stop", &calls)}},
		},
	})

	require.Equal(t, 3, reg.Len())

	b := reg.Bind()
	require.Equal(t, 3, b.Len())

	// Events are bound in sorted order: PreToolUse before Stop.
	require.Equal(t, []map[string]any{
		{"matcher": "Bash", "hookCallbackIds": []string{"hook_0"}, "timeout": float64(30)},
		{"matcher": nil, "hookCallbackIds": []string{"hook_1"}},
	}, b.Config()["PreToolUse"])
	require.Equal(t, []map[string]any{
		{"matcher": nil, "hookCallbackIds": []string{"hook_2"}},
	}, b.Config()["Stop"])

	cb, id, ok := b.Resolve("hook_2", nil)
	require.True(t, ok)
	require.Equal(t, "hook_2", id)

	_, _ = cb(context.Background(), nil, "")
	require.Equal(t, []string{"stop"}, calls)

	_, _, ok = b.Resolve("hook_99", nil)
	require.False(t, ok)
}

func TestBindings_ResolveFirstMatchWins(t *testing.T) {
	var calls []string

	reg := NewRegistry(nil)
	reg.Add(EventPreToolUse,
		Matcher{Matcher: "Write|Edit", Hooks: []Callback{namedCallback("edit", &calls)}},
		Matcher{Hooks: []Callback{namedCallback("first-any", &calls), namedCallback("second-any", &calls)}},
	)

	b := reg.Bind()

	bash := &PreToolUseInput{BaseInput: BaseInput{HookEventName: EventPreToolUse}}
	bash.ToolName = "Bash"

	_, id, ok := b.Resolve("", bash)
	require.True(t, ok)
	require.Equal(t, "hook_1", id, "first matching registration, not the second callback")

	edit := &PreToolUseInput{BaseInput: BaseInput{HookEventName: EventPreToolUse}}
	edit.ToolName = "Edit"

	_, id, ok = b.Resolve("", edit)
	require.True(t, ok)
	require.Equal(t, "hook_0", id)

	stop := &StopInput{BaseInput: BaseInput{HookEventName: EventStop}}

	_, _, ok = b.Resolve("", stop)
	require.False(t, ok, "no registration for the event")
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	var calls []string

	reg := NewRegistry(nil)
	reg.Add(EventStop, Matcher{Hooks: []Callback{namedCallback("a", &calls)}})

	before := reg.Bind()

	reg.Add(EventStop, Matcher{Hooks: []Callback{namedCallback("b", &calls)}})

	require.Equal(t, 1, before.Len(), "earlier snapshot does not see later registrations")
	require.Equal(t, 2, reg.Bind().Len())
}
