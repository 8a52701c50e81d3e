package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/wagiedev/agentproto/internal/mcp"
)

// File is the on-disk settings format. Every field is optional; Apply only
// touches the options a file sets.
//
//nolint:tagliatelle // settings files use snake_case
type File struct {
	CliPath           string                   `json:"cli_path" toml:"cli_path" yaml:"cli_path"`
	Cwd               string                   `json:"cwd" toml:"cwd" yaml:"cwd"`
	Env               map[string]string        `json:"env" toml:"env" yaml:"env"`
	Model             string                   `json:"model" toml:"model" yaml:"model"`
	PermissionMode    string                   `json:"permission_mode" toml:"permission_mode" yaml:"permission_mode"`
	MaxTurns          int                      `json:"max_turns" toml:"max_turns" yaml:"max_turns"`
	SystemPrompt      string                   `json:"system_prompt" toml:"system_prompt" yaml:"system_prompt"`
	AllowedTools      []string                 `json:"allowed_tools" toml:"allowed_tools" yaml:"allowed_tools"`
	DisallowedTools   []string                 `json:"disallowed_tools" toml:"disallowed_tools" yaml:"disallowed_tools"`
	ControlTimeout    string                   `json:"control_timeout" toml:"control_timeout" yaml:"control_timeout"`
	InitializeTimeout string                   `json:"initialize_timeout" toml:"initialize_timeout" yaml:"initialize_timeout"`
	MessageBufferSize int                      `json:"message_buffer_size" toml:"message_buffer_size" yaml:"message_buffer_size"`
	MaxFrameSize      int                      `json:"max_frame_size" toml:"max_frame_size" yaml:"max_frame_size"`
	MCPServers        map[string]MCPServerFile `json:"mcp_servers" toml:"mcp_servers" yaml:"mcp_servers"`
}

// MCPServerFile is an external MCP server entry. Type is "stdio" (the
// default when Command is set), "sse" or "http".
type MCPServerFile struct {
	Type    string            `json:"type" toml:"type" yaml:"type"`
	Command string            `json:"command" toml:"command" yaml:"command"`
	Args    []string          `json:"args" toml:"args" yaml:"args"`
	Env     map[string]string `json:"env" toml:"env" yaml:"env"`
	URL     string            `json:"url" toml:"url" yaml:"url"`
	Headers map[string]string `json:"headers" toml:"headers" yaml:"headers"`
}

// Load reads a settings file. The format follows the extension: .toml,
// .yaml/.yml, or .json/.jsonc (comments and trailing commas allowed).
// Unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))

	f, err := Parse(data, ext)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return f, nil
}

// Parse decodes settings in the format named by ext (".toml", ".yaml",
// ".yml", ".json" or ".jsonc").
func Parse(data []byte, ext string) (*File, error) {
	var f File

	switch ext {
	case ".toml":
		meta, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}

		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse toml: unknown key %q", undecoded[0].String())
		}

	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}

	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()

		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported settings format %q", ext)
	}

	return &f, nil
}

// Apply copies the fields the file sets onto opts. Maps are merged, with
// file entries winning.
func (f *File) Apply(opts *Options) error {
	setString(&opts.CliPath, f.CliPath)
	setString(&opts.Cwd, f.Cwd)
	setString(&opts.Model, f.Model)
	setString(&opts.SystemPrompt, f.SystemPrompt)

	if f.PermissionMode != "" {
		mode, err := ParsePermissionMode(strings.TrimSpace(f.PermissionMode))
		if err != nil {
			return fmt.Errorf("permission_mode: %w", err)
		}

		opts.PermissionMode = mode
	}

	if f.MaxTurns > 0 {
		opts.MaxTurns = f.MaxTurns
	}

	if f.MessageBufferSize > 0 {
		opts.MessageBufferSize = f.MessageBufferSize
	}

	if f.MaxFrameSize > 0 {
		opts.MaxFrameSize = f.MaxFrameSize
	}

	if f.AllowedTools != nil {
		opts.AllowedTools = f.AllowedTools
	}

	if f.DisallowedTools != nil {
		opts.DisallowedTools = f.DisallowedTools
	}

	if err := setDuration(&opts.ControlTimeout, f.ControlTimeout, "control_timeout"); err != nil {
		return err
	}

	if err := setDuration(&opts.InitializeTimeout, f.InitializeTimeout, "initialize_timeout"); err != nil {
		return err
	}

	if len(f.Env) > 0 {
		if opts.Env == nil {
			opts.Env = make(map[string]string, len(f.Env))
		}

		maps.Copy(opts.Env, f.Env)
	}

	if len(f.MCPServers) > 0 {
		if opts.MCPServers == nil {
			opts.MCPServers = make(map[string]mcp.ServerConfig, len(f.MCPServers))
		}

		for name, entry := range f.MCPServers {
			cfg, err := entry.serverConfig()
			if err != nil {
				return fmt.Errorf("mcp_servers.%s: %w", name, err)
			}

			opts.MCPServers[name] = cfg
		}
	}

	return nil
}

func (e *MCPServerFile) serverConfig() (mcp.ServerConfig, error) {
	kind := mcp.ServerType(strings.TrimSpace(e.Type))
	if kind == "" && e.Command != "" {
		kind = mcp.ServerTypeStdio
	}

	switch kind {
	case mcp.ServerTypeStdio:
		if e.Command == "" {
			return nil, fmt.Errorf("stdio server needs a command")
		}

		return &mcp.StdioServer{Command: e.Command, Args: e.Args, Env: e.Env}, nil

	case mcp.ServerTypeSSE, mcp.ServerTypeHTTP, "":
		if e.URL == "" {
			return nil, fmt.Errorf("remote server needs a url")
		}

		if kind == "" {
			kind = mcp.ServerTypeHTTP
		}

		return &mcp.RemoteServer{Type: kind, URL: e.URL, Headers: e.Headers}, nil

	default:
		return nil, fmt.Errorf("unsupported server type %q", e.Type)
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, key string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}

	if d <= 0 {
		return fmt.Errorf("parse %s: must be positive", key)
	}

	*dst = d

	return nil
}
