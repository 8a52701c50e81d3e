// Package config holds the options a session is built from and loads them
// from settings files.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/wagiedev/agentproto/internal/hook"
	"github.com/wagiedev/agentproto/internal/mcp"
	"github.com/wagiedev/agentproto/internal/permission"
	"github.com/wagiedev/agentproto/internal/transport"
)

// ControlTimeoutEnv overrides the control request timeout, in whole seconds.
const ControlTimeoutEnv = "AGENTPROTO_CONTROL_TIMEOUT"

// Options configures a session and the agent process behind it.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// CliPath is the explicit path to the agent CLI binary.
	// If empty, the CLI is searched for in PATH and common install locations.
	CliPath string

	// Cwd sets the working directory for the CLI process.
	Cwd string

	// Env provides additional environment variables for the CLI process.
	Env map[string]string

	// Model selects the model the peer starts with.
	Model string

	// PermissionMode is the initial permission mode. Empty leaves the
	// peer's default in place.
	PermissionMode permission.Mode

	// MaxTurns limits the number of agent turns per query.
	MaxTurns int

	// SystemPrompt replaces the peer's system prompt.
	SystemPrompt string

	// AllowedTools are pre-approved and never reach CanUseTool.
	AllowedTools []string

	// DisallowedTools are blocked outright.
	DisallowedTools []string

	// ExtraArgs provides arbitrary CLI flags to pass to the CLI.
	// If the value is nil, the flag is passed without a value (boolean flag).
	ExtraArgs map[string]*string

	// Stderr receives each line the CLI writes to stderr.
	Stderr func(string)

	// Hooks configures event hooks for tool interception.
	Hooks map[hook.Event][]hook.Matcher

	// CanUseTool is called before each tool use for permission checking.
	// If nil, can_use_tool requests are answered with an error.
	CanUseTool permission.Callback

	// MCPServers maps a server name to its configuration. *mcp.Server
	// entries are hosted in-process; the rest are handed to the peer.
	MCPServers map[string]mcp.ServerConfig

	// ControlTimeout bounds every outbound control request other than
	// initialize. Zero uses the per-request defaults, unless
	// AGENTPROTO_CONTROL_TIMEOUT is set.
	ControlTimeout time.Duration

	// InitializeTimeout bounds the initialize handshake. Zero means 60s.
	InitializeTimeout time.Duration

	// MessageBufferSize bounds conversational messages queued between the
	// reader and the session.
	MessageBufferSize int

	// MaxFrameSize is the largest line accepted from the peer.
	MaxFrameSize int

	// Transport replaces the CLI process with a custom link, one per
	// connection. Used for testing and alternative peers.
	Transport transport.Factory `json:"-"`
}

// EffectiveControlTimeout returns ControlTimeout, falling back to the
// AGENTPROTO_CONTROL_TIMEOUT environment variable.
func (o *Options) EffectiveControlTimeout() time.Duration {
	if o.ControlTimeout > 0 {
		return o.ControlTimeout
	}

	if s := os.Getenv(ControlTimeoutEnv); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	return 0
}
