package session

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/wagiedev/agentproto/internal/mcp"
	"github.com/wagiedev/agentproto/internal/permission"
	"github.com/wagiedev/agentproto/internal/protocol"
)

const (
	interruptTimeout         = 5 * time.Second
	setPermissionModeTimeout = 5 * time.Second
	setModelTimeout          = 5 * time.Second
	rewindFilesTimeout       = 10 * time.Second
	mcpStatusTimeout         = 10 * time.Second
)

// control sends one outbound control request on the active connection.
func (s *Session) control(
	ctx context.Context,
	subtype string,
	payload map[string]any,
	timeout time.Duration,
) (json.RawMessage, error) {
	c, err := s.active()
	if err != nil {
		return nil, err
	}

	if s.cfg.ControlTimeout > 0 {
		timeout = s.cfg.ControlTimeout
	}

	return c.router.SendRequest(ctx, subtype, payload, timeout)
}

// Interrupt asks the peer to stop the current turn. The turn still ends
// with a result message.
func (s *Session) Interrupt(ctx context.Context) error {
	s.log.Info("Sending interrupt")

	if _, err := s.control(ctx, protocol.SubtypeInterrupt, nil, interruptTimeout); err != nil {
		return fmt.Errorf("interrupt: %w", err)
	}

	return nil
}

// SetPermissionMode changes how the peer asks for tool permission.
func (s *Session) SetPermissionMode(ctx context.Context, mode permission.Mode) error {
	if _, err := permission.ParseMode(string(mode)); err != nil {
		return err
	}

	s.log.Info("Setting permission mode", "mode", mode)

	payload := map[string]any{"mode": string(mode)}

	if _, err := s.control(ctx, protocol.SubtypeSetPermissionMode, payload, setPermissionModeTimeout); err != nil {
		return fmt.Errorf("set permission mode to %q: %w", mode, err)
	}

	return nil
}

// SetModel switches the model. An empty name restores the peer default.
func (s *Session) SetModel(ctx context.Context, model string) error {
	s.log.Info("Setting model", "model", model)

	var name any
	if model != "" {
		name = model
	}

	if _, err := s.control(ctx, protocol.SubtypeSetModel, map[string]any{"model": name}, setModelTimeout); err != nil {
		return fmt.Errorf("set model: %w", err)
	}

	return nil
}

// RewindFiles restores tracked files to their state at a prior user message.
func (s *Session) RewindFiles(ctx context.Context, userMessageID string) error {
	if userMessageID == "" {
		return fmt.Errorf("rewind files: user message id is required")
	}

	s.log.Info("Rewinding files", "user_message_id", userMessageID)

	payload := map[string]any{"user_message_id": userMessageID}

	if _, err := s.control(ctx, protocol.SubtypeRewindFiles, payload, rewindFilesTimeout); err != nil {
		return fmt.Errorf("rewind files: %w", err)
	}

	return nil
}

// MCPStatus reports the peer's MCP server connections. In-process servers
// of the active connection that the peer does not list are reported as
// connected.
func (s *Session) MCPStatus(ctx context.Context) (*mcp.Status, error) {
	c, err := s.active()
	if err != nil {
		return nil, err
	}

	resp, err := s.control(ctx, protocol.SubtypeMCPStatus, nil, mcpStatusTimeout)
	if err != nil {
		return nil, fmt.Errorf("mcp status: %w", err)
	}

	var status mcp.Status
	if len(resp) > 0 && string(resp) != "null" {
		if err := json.Unmarshal(resp, &status); err != nil {
			return nil, fmt.Errorf("decode mcp status: %w", err)
		}
	}

	for _, name := range c.sdkServerNames() {
		listed := slices.ContainsFunc(status.MCPServers, func(st mcp.ServerStatus) bool {
			return st.Name == name
		})

		if !listed {
			status.MCPServers = append(status.MCPServers, mcp.ServerStatus{Name: name, Status: "connected"})
		}
	}

	return &status, nil
}
