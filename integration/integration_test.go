//go:build integration

// Package integration runs the client against an installed agent CLI.
// Tests skip when the CLI is not found.
package integration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wagiedev/agentproto"
)

// skipIfCLINotInstalled skips the test if err means the CLI is missing.
func skipIfCLINotInstalled(t *testing.T, err error) {
	t.Helper()

	if _, ok := errors.AsType[*agentproto.CLINotFoundError](err); ok {
		t.Skip("agent CLI not installed")
	}
}

func testContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx
}

// baseOptions keeps runs cheap and non-interactive.
func baseOptions(extra ...agentproto.Option) []agentproto.Option {
	return append([]agentproto.Option{
		agentproto.WithModel("haiku"),
		agentproto.WithMaxTurns(1),
	}, extra...)
}

// contains42 checks if a string contains "42" in various formats.
func contains42(s string) bool {
	lower := strings.ToLower(s)

	return strings.Contains(lower, "42") ||
		strings.Contains(lower, "forty-two") ||
		strings.Contains(lower, "forty two")
}

// assistantText joins the text of every assistant message.
func assistantText(msgs []agentproto.Message) string {
	var sb strings.Builder

	for _, msg := range msgs {
		if m, ok := msg.(*agentproto.AssistantMessage); ok {
			sb.WriteString(m.Text())
		}
	}

	return sb.String()
}
