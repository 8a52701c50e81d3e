package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/wagiedev/agentproto/internal/config"
	"github.com/wagiedev/agentproto/internal/mcp"
)

// EntrypointEnv tells the peer which client launched it.
const EntrypointEnv = "CLAUDE_CODE_ENTRYPOINT"

// Command is a fully resolved process invocation.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// NewCommand resolves the invocation for opts against the binary at path.
func NewCommand(path string, opts *config.Options) (*Command, error) {
	args, err := BuildArgs(opts)
	if err != nil {
		return nil, err
	}

	return &Command{
		Path: path,
		Args: args,
		Env:  BuildEnvironment(opts),
		Dir:  opts.Cwd,
	}, nil
}

// BuildArgs constructs the CLI arguments for a streaming session.
func BuildArgs(opts *config.Options) ([]string, error) {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}

	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", string(opts.PermissionMode))
	}

	// Permission prompts come back over the control channel.
	if opts.CanUseTool != nil {
		args = append(args, "--permission-prompt-tool", "stdio")
	}

	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	// The flag is always sent so the peer does not fall back to its own prompt.
	args = append(args, "--system-prompt", opts.SystemPrompt)

	if len(opts.MCPServers) > 0 {
		data, err := json.Marshal(mcp.ExternalConfig(opts.MCPServers))
		if err != nil {
			return nil, fmt.Errorf("encode mcp config: %w", err)
		}

		args = append(args, "--mcp-config", string(data))
	}

	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(opts.AllowedTools, ","))
	}

	if len(opts.DisallowedTools) > 0 {
		args = append(args, "--disallowed-tools", strings.Join(opts.DisallowedTools, ","))
	}

	for _, key := range slices.Sorted(maps.Keys(opts.ExtraArgs)) {
		if value := opts.ExtraArgs[key]; value != nil {
			args = append(args, "--"+key, *value)
		} else {
			args = append(args, "--"+key)
		}
	}

	return args, nil
}

// BuildEnvironment returns the process environment: the current one, the
// entrypoint marker, then opts.Env in key order.
func BuildEnvironment(opts *config.Options) []string {
	env := append(os.Environ(), EntrypointEnv+"=sdk-go")

	for _, key := range slices.Sorted(maps.Keys(opts.Env)) {
		env = append(env, key+"="+opts.Env[key])
	}

	return env
}
