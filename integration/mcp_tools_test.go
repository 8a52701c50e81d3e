//go:build integration

package integration

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/agentproto"
)

func TestInProcessMCPTool(t *testing.T) {
	ctx := testContext(t, 120*time.Second)

	var calls atomic.Int32

	server := agentproto.NewMCPServer("probe", "1.0.0")
	require.NoError(t, server.AddTool(
		agentproto.NewTool("secret", "Returns the secret number", nil),
		func(context.Context, *agentproto.CallToolRequest) (*agentproto.CallToolResult, error) {
			calls.Add(1)

			return agentproto.TextResult("42"), nil
		},
	))

	var msgs []agentproto.Message

	for msg, err := range agentproto.Query(ctx, "Call the secret tool and tell me the number it returns.",
		agentproto.WithModel("haiku"),
		agentproto.WithMaxTurns(3),
		agentproto.WithMCPServer("probe", server),
		agentproto.WithAllowedTools("mcp__probe__secret"),
	) {
		if err != nil {
			skipIfCLINotInstalled(t, err)
			t.Fatalf("Query failed: %v", err)
		}

		msgs = append(msgs, msg)
	}

	require.Positive(t, calls.Load(), "tool was never called")
	require.True(t, contains42(assistantText(msgs)), "answer: %s", assistantText(msgs))
}

func TestMCPStatus_ListsInProcessServer(t *testing.T) {
	ctx := testContext(t, 60*time.Second)

	server := agentproto.NewMCPServer("probe", "1.0.0")

	err := agentproto.WithSession(ctx, func(s *agentproto.Session) error {
		status, err := s.MCPStatus(ctx)
		require.NoError(t, err)

		names := make([]string, 0, len(status.MCPServers))
		for _, srv := range status.MCPServers {
			names = append(names, srv.Name)
		}

		require.Contains(t, names, "probe")

		return nil
	}, baseOptions(agentproto.WithMCPServer("probe", server))...)

	skipIfCLINotInstalled(t, err)
	require.NoError(t, err)
}
