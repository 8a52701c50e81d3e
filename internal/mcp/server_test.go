package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/agentproto/internal/errors"
)

func addHandler(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := ParseArguments(req)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	return TextResult(fmt.Sprintf("%v", args["a"].(float64)+args["b"].(float64))), nil
}

func newCalc(t *testing.T) *Server {
	t.Helper()

	srv := NewServer("calc", "1.0.0")
	require.NoError(t, srv.AddTool(
		NewTool("add", "Add two numbers", SimpleSchema(map[string]string{"a": "float64", "b": "float64"})),
		addHandler,
	))

	return srv
}

// roundTrip renders a Handle payload the way it is written to the wire.
func roundTrip(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))

	resp, ok := out["mcp_response"].(map[string]any)
	require.True(t, ok, "payload must carry mcp_response: %s", data)

	return resp
}

func handle(t *testing.T, set *Set, server, message string) (map[string]any, error) {
	t.Helper()

	payload, err := set.Handle(context.Background(), &Request{ServerName: server, Message: json.RawMessage(message)})
	if err != nil {
		return nil, err
	}

	return roundTrip(t, payload), nil
}

func TestServer_AddTool(t *testing.T) {
	srv := NewServer("calc", "1.0.0")

	require.Error(t, srv.AddTool(&mcp.Tool{}, addHandler))
	require.Error(t, srv.AddTool(NewTool("add", "", nil), nil))

	require.NoError(t, srv.AddTool(NewTool("add", "", nil), addHandler))
	require.NoError(t, srv.AddTool(NewTool("sub", "", nil), addHandler))
	require.NoError(t, srv.AddTool(NewTool("add", "replaced", nil), addHandler))

	require.Equal(t, []string{"add", "sub"}, srv.ToolNames())
}

func TestSet_Initialize(t *testing.T) {
	set := Snapshot(map[string]*Server{"calc": newCalc(t)})

	resp, err := handle(t, set, "calc", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.NoError(t, err)

	require.Equal(t, "2.0", resp["jsonrpc"])
	require.InDelta(t, 1, resp["id"], 0)

	result := resp["result"].(map[string]any)
	require.Equal(t, "2024-11-05", result["protocolVersion"])
	require.Equal(t, map[string]any{"name": "calc", "version": "1.0.0"}, result["serverInfo"])
}

func TestSet_ToolsList(t *testing.T) {
	set := Snapshot(map[string]*Server{"calc": newCalc(t)})

	resp, err := handle(t, set, "calc", `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)
	require.NoError(t, err)
	require.Equal(t, "a", resp["id"])

	tools := resp["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)
	require.Equal(t, "add", tools[0].(map[string]any)["name"])
}

func TestSet_ToolsCall(t *testing.T) {
	set := Snapshot(map[string]*Server{"calc": newCalc(t)})

	resp, err := handle(t, set, "calc",
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add","arguments":{"a":2,"b":3}}}`)
	require.NoError(t, err)

	result := resp["result"].(map[string]any)
	content := result["content"].([]any)
	require.Len(t, content, 1)
	require.Equal(t, "text", content[0].(map[string]any)["type"])
	require.Equal(t, "5", content[0].(map[string]any)["text"])
	require.NotEqual(t, true, result["isError"])
}

func TestSet_ToolsCallErrors(t *testing.T) {
	failing := NewServer("broken", "0.1.0")
	require.NoError(t, failing.AddTool(NewTool("explode", "", nil),
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, fmt.Errorf("boom")
		}))
	require.NoError(t, failing.AddTool(NewTool("refuse", "", nil),
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return ErrorResult("not today"), nil
		}))

	set := Snapshot(map[string]*Server{"calc": newCalc(t), "broken": failing})

	t.Run("unknown server", func(t *testing.T) {
		_, err := handle(t, set, "nope", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
		require.ErrorIs(t, err, errors.ErrNoHandler)
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := handle(t, set, "calc", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"mul"}}`)
		require.ErrorIs(t, err, errors.ErrNoHandler)
	})

	t.Run("arguments fail schema", func(t *testing.T) {
		_, err := handle(t, set, "calc",
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add","arguments":{"a":"two"}}}`)
		require.ErrorContains(t, err, "invalid arguments")
	})

	t.Run("handler error", func(t *testing.T) {
		_, err := handle(t, set, "broken", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"explode"}}`)

		var failure *errors.HandlerFailure
		require.ErrorAs(t, err, &failure)
		require.ErrorContains(t, err, "boom")
	})

	t.Run("error result stays in band", func(t *testing.T) {
		resp, err := handle(t, set, "broken", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"refuse"}}`)
		require.NoError(t, err)
		require.Equal(t, true, resp["result"].(map[string]any)["isError"])
	})

	t.Run("unknown method", func(t *testing.T) {
		resp, err := handle(t, set, "calc", `{"jsonrpc":"2.0","id":9,"method":"resources/list"}`)
		require.NoError(t, err)
		require.InDelta(t, -32601, resp["error"].(map[string]any)["code"], 0)
	})

	t.Run("malformed message", func(t *testing.T) {
		_, err := handle(t, set, "calc", `{"jsonrpc":"2.0","id":1}`)
		require.Error(t, err)
	})
}

func TestSnapshot_IgnoresLaterTools(t *testing.T) {
	srv := newCalc(t)
	set := Snapshot(map[string]*Server{"calc": srv})

	require.NoError(t, srv.AddTool(NewTool("late", "", nil), addHandler))

	require.Equal(t, []string{"add"}, set.ToolNames("calc"))
	require.Equal(t, []string{"add", "late"}, srv.ToolNames())

	_, err := handle(t, set, "calc", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"late"}}`)
	require.ErrorIs(t, err, errors.ErrNoHandler)
}

func TestSimpleSchema(t *testing.T) {
	s := SimpleSchema(map[string]string{"name": "string", "tags": "[]string", "n": "int"})

	require.Equal(t, "object", s.Type)
	require.Equal(t, []string{"n", "name", "tags"}, s.Required)
	require.Equal(t, "integer", s.Properties["n"].Type)
	require.Equal(t, "array", s.Properties["tags"].Type)
	require.Equal(t, "string", s.Properties["tags"].Items.Type)
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments(nil)
	require.NoError(t, err)
	require.Empty(t, args)

	args, err = ParseArguments(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"x":1}`)}})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"x": float64(1)}, args)

	_, err = ParseArguments(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`[1]`)}})
	require.Error(t, err)
}
