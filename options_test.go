package agentproto

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyOptions(t *testing.T) {
	o := applyOptions([]Option{
		WithModel("sonnet"),
		WithPermissionMode(PermissionModeAcceptEdits),
		WithMaxTurns(3),
		WithAllowedTools("Read", "Grep"),
		WithMCPServer("fs", &MCPStdioServer{Command: "mcp-fs"}),
		WithMCPServer("docs", &MCPRemoteServer{Type: MCPServerTypeSSE, URL: "https://docs.example.com/sse"}),
		WithControlTimeout(2 * time.Second),
		WithModel("opus"),
	})

	require.Equal(t, "opus", o.Model)
	require.Equal(t, PermissionModeAcceptEdits, o.PermissionMode)
	require.Equal(t, 3, o.MaxTurns)
	require.Equal(t, []string{"Read", "Grep"}, o.AllowedTools)
	require.Len(t, o.MCPServers, 2)
	require.Equal(t, 2*time.Second, o.EffectiveControlTimeout())
}

func TestApplyOptions_SkipsNil(t *testing.T) {
	require.NotPanics(t, func() {
		o := applyOptions([]Option{nil, WithCwd("/tmp")})
		require.Equal(t, "/tmp", o.Cwd)
	})
}

func TestSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
model = "sonnet"
permission_mode = "plan"
max_turns = 4

[mcp_servers.fs]
command = "mcp-fs"
`), 0o600))

	opt, err := SettingsFile(path)
	require.NoError(t, err)

	o := applyOptions([]Option{opt, WithMaxTurns(9)})

	require.Equal(t, "sonnet", o.Model)
	require.Equal(t, PermissionModePlan, o.PermissionMode)
	require.Equal(t, 9, o.MaxTurns, "later options override the file")
	require.Contains(t, o.MCPServers, "fs")
}

func TestSettingsFile_Errors(t *testing.T) {
	dir := t.TempDir()

	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		return path
	}

	tests := map[string]string{
		"missing file":    filepath.Join(dir, "absent.toml"),
		"unknown key":     write("unknown.toml", `modle = "sonnet"`),
		"invalid mode":    write("mode.yaml", "permission_mode: yolo\n"),
		"bad duration":    write("timeout.json", `{"control_timeout": "soon"}`),
		"unsupported ext": write("settings.ini", "model=sonnet"),
	}

	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			opt, err := SettingsFile(path)
			require.Error(t, err)
			require.Nil(t, opt)
		})
	}
}
