package agentproto

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/wagiedev/agentproto/internal/config"
	"github.com/wagiedev/agentproto/internal/transport"
)

// Options configures a session. See the With* functions.
type Options = config.Options

// Transport is the duplex link to the peer. The default spawns the agent
// CLI; supply a TransportFactory to use anything else.
type Transport = transport.Transport

// TransportFactory creates a fresh Transport for each connection.
type TransportFactory = transport.Factory

// Frame is one decoded frame read from a Transport.
type Frame = transport.Frame

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to a fresh Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	return options
}

// WithOptions replaces the options built so far with a copy of o. Use it to
// start from a loaded settings file and refine with later options.
func WithOptions(o *Options) Option {
	return func(dst *Options) {
		*dst = *o
	}
}

// SettingsFile loads a .toml, .yaml or .json(c) settings file and returns
// an Option that applies it. Options after it override the file.
func SettingsFile(path string) (Option, error) {
	f, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := f.Apply(&Options{}); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}

	return func(o *Options) {
		// Validated above; Apply only fails on the file's own values.
		_ = f.Apply(o)
	}, nil
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithModel selects the model the peer starts with.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithSystemPrompt replaces the peer's system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.SystemPrompt = prompt
	}
}

// WithPermissionMode sets the initial permission mode.
func WithPermissionMode(mode PermissionMode) Option {
	return func(o *Options) {
		o.PermissionMode = mode
	}
}

// WithMaxTurns limits the number of agent turns per query.
func WithMaxTurns(maxTurns int) Option {
	return func(o *Options) {
		o.MaxTurns = maxTurns
	}
}

// ===== Process =====

// WithCliPath sets the explicit path to the agent CLI binary.
func WithCliPath(path string) Option {
	return func(o *Options) {
		o.CliPath = path
	}
}

// WithCwd sets the working directory for the CLI process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithEnv provides additional environment variables for the CLI process.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// WithExtraArgs passes arbitrary flags to the CLI. A nil value is a flag
// without a value.
func WithExtraArgs(args map[string]*string) Option {
	return func(o *Options) {
		o.ExtraArgs = args
	}
}

// WithStderr receives each line the CLI writes to stderr.
func WithStderr(handler func(string)) Option {
	return func(o *Options) {
		o.Stderr = handler
	}
}

// WithTransport replaces the CLI process with a custom link.
func WithTransport(factory TransportFactory) Option {
	return func(o *Options) {
		o.Transport = factory
	}
}

// ===== Tools and callbacks =====

// WithAllowedTools pre-approves tools.
func WithAllowedTools(tools ...string) Option {
	return func(o *Options) {
		o.AllowedTools = tools
	}
}

// WithDisallowedTools blocks tools outright.
func WithDisallowedTools(tools ...string) Option {
	return func(o *Options) {
		o.DisallowedTools = tools
	}
}

// WithHooks configures event hooks for tool interception.
func WithHooks(hooks map[HookEvent][]HookMatcher) Option {
	return func(o *Options) {
		o.Hooks = hooks
	}
}

// WithCanUseTool sets the permission callback consulted before tool use.
func WithCanUseTool(callback CanUseToolFunc) Option {
	return func(o *Options) {
		o.CanUseTool = callback
	}
}

// WithMCPServers configures MCP servers by name.
func WithMCPServers(servers map[string]MCPServerConfig) Option {
	return func(o *Options) {
		o.MCPServers = servers
	}
}

// WithMCPServer adds one MCP server.
func WithMCPServer(name string, server MCPServerConfig) Option {
	return func(o *Options) {
		if o.MCPServers == nil {
			o.MCPServers = make(map[string]MCPServerConfig, 1)
		}

		o.MCPServers[name] = server
	}
}

// ===== Protocol tuning =====

// WithControlTimeout bounds every outbound control request other than
// initialize.
func WithControlTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ControlTimeout = timeout
	}
}

// WithInitializeTimeout bounds the initialize handshake.
func WithInitializeTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.InitializeTimeout = timeout
	}
}

// WithMessageBufferSize bounds queued conversational messages.
func WithMessageBufferSize(size int) Option {
	return func(o *Options) {
		o.MessageBufferSize = size
	}
}

// WithMaxFrameSize sets the largest line accepted from the peer.
func WithMaxFrameSize(size int) Option {
	return func(o *Options) {
		o.MaxFrameSize = size
	}
}
