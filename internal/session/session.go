package session

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/agentproto/internal/dispatch"
	"github.com/wagiedev/agentproto/internal/errors"
	"github.com/wagiedev/agentproto/internal/hook"
	"github.com/wagiedev/agentproto/internal/mcp"
	"github.com/wagiedev/agentproto/internal/message"
	"github.com/wagiedev/agentproto/internal/permission"
	"github.com/wagiedev/agentproto/internal/protocol"
	"github.com/wagiedev/agentproto/internal/transport"
)

// DefaultInitializeTimeout bounds the initialize handshake.
const DefaultInitializeTimeout = 60 * time.Second

// Config is the input a Session is built from.
type Config struct {
	// Transport creates the link for each connection. Required.
	Transport transport.Factory

	// Hooks, CanUseTool and MCPServers seed the registrations. Later
	// changes go through AddHook, SetCanUseTool and AddMCPServer.
	Hooks      map[hook.Event][]hook.Matcher
	CanUseTool permission.Callback
	MCPServers map[string]mcp.ServerConfig

	// ControlTimeout, when set, bounds every outbound control request
	// instead of the per-request defaults.
	ControlTimeout time.Duration
	// InitializeTimeout bounds the initialize handshake.
	InitializeTimeout time.Duration
	// MessageBuffer is the capacity of the router's conversational channel.
	MessageBuffer int
	// OnViolation observes discarded control responses.
	OnViolation func(*errors.ProtocolViolation)
}

// Session is a conversation with the peer. It is safe for concurrent use.
type Session struct {
	log *slog.Logger
	cfg Config

	regMu      sync.RWMutex
	hooks      *hook.Registry
	canUseTool permission.Callback
	servers    map[string]mcp.ServerConfig

	mu         sync.Mutex
	state      State
	conn       *connection
	current    *turnLog // in-flight or most recently completed turn
	upcoming   *turnLog // collects messages that arrive while idle
	serverInfo map[string]any
}

// connection is everything that lives for exactly one Connect.
type connection struct {
	id        string
	transport transport.Transport
	router    *protocol.Router
	group     *errgroup.Group
	cancel    context.CancelFunc
	sdkNames  []string
}

// New creates a disconnected Session.
func New(log *slog.Logger, cfg Config) *Session {
	servers := make(map[string]mcp.ServerConfig, len(cfg.MCPServers))
	maps.Copy(servers, cfg.MCPServers)

	return &Session{
		log:        log.With("component", "session"),
		cfg:        cfg,
		hooks:      hook.NewRegistry(cfg.Hooks),
		canUseTool: cfg.CanUseTool,
		servers:    servers,
	}
}

// AddHook registers matchers for event. The active connection, if any, does
// not see them; they apply from the next Connect.
func (s *Session) AddHook(event hook.Event, matchers ...hook.Matcher) {
	s.hooks.Add(event, matchers...)
}

// SetCanUseTool replaces the permission callback from the next Connect.
func (s *Session) SetCanUseTool(fn permission.Callback) {
	s.regMu.Lock()
	defer s.regMu.Unlock()

	s.canUseTool = fn
}

// AddMCPServer registers an MCP server from the next Connect.
func (s *Session) AddMCPServer(name string, cfg mcp.ServerConfig) {
	s.regMu.Lock()
	defer s.regMu.Unlock()

	s.servers[name] = cfg
}

// MCPServers returns a copy of the registered MCP server configs.
func (s *Session) MCPServers() map[string]mcp.ServerConfig {
	s.regMu.RLock()
	defer s.regMu.RUnlock()

	return maps.Clone(s.servers)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// ServerInfo returns a copy of the initialize response of the current or
// last connection, or nil before the first handshake.
func (s *Session) ServerInfo() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.serverInfo)
}

// snapshot freezes the registrations for one connection.
type snapshot struct {
	hooks      *hook.Bindings
	canUseTool permission.Callback
	tools      *mcp.Set
	sdkNames   []string
}

func (s *Session) snapshot() *snapshot {
	s.regMu.RLock()
	defer s.regMu.RUnlock()

	sdk := make(map[string]*mcp.Server, len(s.servers))

	for name, cfg := range s.servers {
		if srv, ok := cfg.(*mcp.Server); ok && srv != nil {
			sdk[name] = srv
		}
	}

	tools := mcp.Snapshot(sdk)

	return &snapshot{
		hooks:      s.hooks.Bind(),
		canUseTool: s.canUseTool,
		tools:      tools,
		sdkNames:   tools.Names(),
	}
}

// Connect opens a connection and performs the initialize handshake.
//
// Registrations are captured here: later AddHook, SetCanUseTool and
// AddMCPServer calls only affect future connections. Messages the peer
// sends before the first Query become the head of the first turn.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()

	if s.state != StateDisconnected {
		s.mu.Unlock()

		return errors.ErrAlreadyConnected
	}

	if s.cfg.Transport == nil {
		s.mu.Unlock()

		return &errors.ConnectError{Err: errors.ErrTransportNotConnected}
	}

	s.state = StateConnecting
	s.mu.Unlock()

	s.log.Info("Connecting")

	c, snap, err := s.open(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()

		return &errors.ConnectError{Err: err}
	}

	info, err := s.initialize(ctx, c, snap)
	if err != nil {
		s.teardown(c, errors.ErrCancelled)

		return &errors.ConnectError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != c {
		return &errors.ConnectError{Err: errors.ErrConnectionLost}
	}

	s.serverInfo = info
	s.state = StateIdle

	s.log.Info("Connected", "connection", c.id, "hooks", snap.hooks.Len(), "mcp_servers", len(snap.sdkNames))

	return nil
}

// open starts the transport and the per-connection goroutines.
func (s *Session) open(ctx context.Context) (*connection, *snapshot, error) {
	snap := s.snapshot()

	t, err := s.cfg.Transport()
	if err != nil {
		return nil, nil, fmt.Errorf("create transport: %w", err)
	}

	if err := t.Start(ctx); err != nil {
		_ = t.Close()

		return nil, nil, fmt.Errorf("start transport: %w", err)
	}

	d := dispatch.New(s.log, dispatch.Config{
		Hooks:      snap.hooks,
		CanUseTool: snap.canUseTool,
		MCP:        snap.tools,
	})

	routerOpts := []protocol.RouterOption{protocol.WithMessageBuffer(s.cfg.MessageBuffer)}
	if s.cfg.OnViolation != nil {
		routerOpts = append(routerOpts, protocol.WithViolationHandler(s.cfg.OnViolation))
	}

	c := &connection{
		id:        ulid.Make().String(),
		transport: t,
		router:    protocol.NewRouter(s.log, t, d, routerOpts...),
		sdkNames:  snap.sdkNames,
	}

	s.mu.Lock()
	s.conn = c
	s.upcoming = newTurnLog()
	s.mu.Unlock()

	// The connection outlives ctx, which may only bound the handshake.
	runCtx, cancel := context.WithCancel(context.Background())

	var gCtx context.Context

	c.cancel = cancel
	c.group, gCtx = errgroup.WithContext(runCtx)

	c.group.Go(func() error {
		return c.router.Run(gCtx)
	})

	c.group.Go(func() error {
		s.pump(c)

		return nil
	})

	go func() {
		err := c.group.Wait()
		s.connectionEnded(c, err)
	}()

	return c, snap, nil
}

func (s *Session) initialize(ctx context.Context, c *connection, snap *snapshot) (map[string]any, error) {
	var hooksConfig any
	if snap.hooks.Len() > 0 {
		hooksConfig = snap.hooks.Config()
	}

	payload := map[string]any{
		"hooks": hooksConfig,
		"capabilities": map[string]any{
			"hooks":       snap.hooks.Len() > 0,
			"permissions": snap.canUseTool != nil,
			"mcp":         len(snap.sdkNames) > 0,
		},
		"sdkMcpServers": snap.sdkNames,
	}

	timeout := s.cfg.InitializeTimeout
	if timeout <= 0 {
		timeout = DefaultInitializeTimeout
	}

	resp, err := c.router.SendRequest(ctx, protocol.SubtypeInitialize, payload, timeout)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	info := make(map[string]any)
	if len(resp) > 0 && string(resp) != "null" {
		if err := json.Unmarshal(resp, &info); err != nil {
			return nil, fmt.Errorf("decode initialize response: %w", err)
		}
	}

	return info, nil
}

// pump moves conversational frames into the turn logs until the router
// closes its channel.
func (s *Session) pump(c *connection) {
	for f := range c.router.Messages() {
		msg := message.Parse(f)

		if other, ok := msg.(*message.Other); ok && other.Err != nil {
			s.log.Warn("Delivering undecodable message as raw", "type", f.Type, "error", other.Err)
		}

		s.deliver(c, msg)
	}
}

// deliver appends msg to the in-flight turn, or to the upcoming turn while
// idle. A result ends the turn; the state is Idle before any reader can
// observe the result.
func (s *Session) deliver(c *connection, msg message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != c {
		return
	}

	if s.state != StateInTurn {
		s.upcoming.append(msg)

		return
	}

	s.current.append(msg)

	if message.IsResult(msg) {
		s.current.seal(nil)
		s.state = StateIdle

		s.log.Debug("Turn completed", "turn", s.current.id, "messages", s.current.len())
	}
}

// connectionEnded runs once the router and pump have stopped.
func (s *Session) connectionEnded(c *connection, err error) {
	cause := errors.ErrConnectionLost
	if err != nil {
		cause = fmt.Errorf("%w: %w", errors.ErrConnectionLost, err)
	}

	if s.teardown(c, cause) {
		s.log.Warn("Connection lost", "connection", c.id, "error", err)
	}
}

// teardown detaches c from the session, seals the logs and stops the
// connection. It reports false if c was already detached.
func (s *Session) teardown(c *connection, cause error) bool {
	s.mu.Lock()

	if s.conn != c {
		s.mu.Unlock()

		return false
	}

	s.conn = nil

	if s.state == StateInTurn {
		s.current.seal(cause)
	}

	s.upcoming.seal(nil)
	s.state = StateDisconnected
	s.mu.Unlock()

	c.router.Stop()

	if err := c.transport.Close(); err != nil {
		s.log.Debug("Transport close failed", "error", err)
	}

	c.cancel()

	return true
}

// Disconnect tears down the connection. Outstanding control requests fail
// with ErrCancelled and an in-flight turn ends. Safe to call repeatedly.
//
// Disconnect waits for running callbacks, so it must not be called from a
// hook, permission or tool callback.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	s.log.Info("Disconnecting", "connection", c.id)

	if !s.teardown(c, errors.ErrCancelled) {
		return nil
	}

	if err := c.group.Wait(); err != nil {
		s.log.Debug("Connection ended with error", "error", err)
	}

	s.log.Info("Disconnected", "connection", c.id)

	return nil
}

// EndInput closes the write half of the transport.
func (s *Session) EndInput() error {
	c, err := s.active()
	if err != nil {
		return err
	}

	return c.transport.EndInput()
}

// TurnOptions tune a single Query.
type TurnOptions struct {
	// SessionID selects the peer-side conversation; empty uses "default".
	SessionID string
}

// Query starts a turn with prompt and returns its id.
//
// It fails with ErrInvalidState unless the session is Idle. Without a
// connection the error also matches ErrNotConnected.
func (s *Session) Query(ctx context.Context, prompt string, opts TurnOptions) (string, error) {
	s.mu.Lock()

	switch s.state {
	case StateIdle:
	case StateInTurn:
		s.mu.Unlock()

		return "", fmt.Errorf("%w: a turn is already in progress", errors.ErrInvalidState)
	default:
		s.mu.Unlock()

		return "", fmt.Errorf("%w: %w", errors.ErrInvalidState, errors.ErrNotConnected)
	}

	c := s.conn
	previous := s.current
	turn := s.upcoming

	s.current = turn
	s.upcoming = newTurnLog()
	turn.setFollowing(s.upcoming)
	s.state = StateInTurn
	s.mu.Unlock()

	s.log.Debug("Starting turn", "turn", turn.id, "prompt_len", len(prompt))

	if err := c.router.SendFrame(ctx, message.NewUserInput(prompt, opts.SessionID)); err != nil {
		s.mu.Lock()
		if s.conn == c && s.current == turn && s.state == StateInTurn {
			turn.setFollowing(nil)
			s.upcoming = turn
			s.current = previous
			s.state = StateIdle
		}
		s.mu.Unlock()

		return "", fmt.Errorf("send query: %w", err)
	}

	return turn.id, nil
}

// TurnOutput returns a view of the in-flight turn, or of the most recently
// completed one. Views are independent: any number may be taken, and
// abandoning one affects nothing else. A view ends after the result, or
// without error if the connection ends first.
func (s *Session) TurnOutput(ctx context.Context) iter.Seq2[message.Message, error] {
	s.mu.Lock()
	turn := s.current
	s.mu.Unlock()

	return func(yield func(message.Message, error) bool) {
		if turn == nil {
			yield(nil, fmt.Errorf("%w: no turn has been started", errors.ErrInvalidState))

			return
		}

		for i := 0; ; i++ {
			msg, ok, err := turn.at(ctx, i)
			if err != nil {
				yield(nil, err)

				return
			}

			if !ok || !yield(msg, nil) {
				return
			}
		}
	}
}

// ReceiveResponse collects the current turn up to and including its result.
//
// If the connection ends first it returns the messages collected so far
// with an error matching ErrConnectionLost, or ErrCancelled after
// Disconnect.
func (s *Session) ReceiveResponse(ctx context.Context) ([]message.Message, error) {
	s.mu.Lock()
	turn := s.current
	s.mu.Unlock()

	if turn == nil {
		return nil, fmt.Errorf("%w: no turn has been started", errors.ErrInvalidState)
	}

	var out []message.Message

	for i := 0; ; i++ {
		msg, ok, err := turn.at(ctx, i)
		if err != nil {
			return out, err
		}

		if !ok {
			if err := turn.sealErr(); err != nil {
				return out, fmt.Errorf("receive response: %w", err)
			}

			return out, nil
		}

		out = append(out, msg)

		if message.IsResult(msg) {
			return out, nil
		}
	}
}

// Messages follows the connection's output across turns, starting with the
// in-flight turn or, when idle, the next one. It ends when the connection
// ends.
func (s *Session) Messages(ctx context.Context) iter.Seq2[message.Message, error] {
	s.mu.Lock()

	turn := s.upcoming
	if s.state == StateInTurn {
		turn = s.current
	}

	connected := s.conn != nil
	s.mu.Unlock()

	return func(yield func(message.Message, error) bool) {
		if !connected || turn == nil {
			yield(nil, errors.ErrNotConnected)

			return
		}

		for turn != nil {
			for i := 0; ; i++ {
				msg, ok, err := turn.at(ctx, i)
				if err != nil {
					yield(nil, err)

					return
				}

				if !ok {
					break
				}

				if !yield(msg, nil) {
					return
				}
			}

			turn = turn.next()
		}
	}
}

func (s *Session) active() (*connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || !s.state.Connected() {
		return nil, errors.ErrNotConnected
	}

	return s.conn, nil
}

// sdkServerNames lists the in-process servers of the active connection.
func (c *connection) sdkServerNames() []string {
	return slices.Clone(c.sdkNames)
}
