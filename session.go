package agentproto

import (
	"context"
	"fmt"

	"github.com/wagiedev/agentproto/internal/session"
	"github.com/wagiedev/agentproto/internal/subprocess"
)

// Session is a long-lived conversation with the agent CLI.
//
// A Session is created disconnected. Connect starts the peer and performs
// the initialize handshake; Query starts a turn; TurnOutput and
// ReceiveResponse read it. Hooks, the permission callback and MCP servers
// registered before Connect are in effect for that connection; later
// registrations apply from the next Connect. After Disconnect the same
// Session may Connect again.
//
// Example:
//
//	s := agentproto.NewSession(agentproto.WithModel("sonnet"))
//	if err := s.Connect(ctx); err != nil {
//	    return err
//	}
//	defer s.Disconnect()
//
//	if _, err := s.Query(ctx, "What is 2+2?", agentproto.TurnOptions{}); err != nil {
//	    return err
//	}
//	for msg, err := range s.TurnOutput(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    if a, ok := msg.(*agentproto.AssistantMessage); ok {
//	        fmt.Print(a.Text())
//	    }
//	}
type Session = session.Session

// NewSession creates a disconnected session from opts.
func NewSession(opts ...Option) *Session {
	return newSession(applyOptions(opts))
}

func newSession(o *Options) *Session {
	log := o.Logger
	if log == nil {
		log = NopLogger()
	}

	factory := o.Transport
	if factory == nil {
		factory = subprocess.NewFactory(log, o)
	}

	return session.New(log, session.Config{
		Transport:         factory,
		Hooks:             o.Hooks,
		CanUseTool:        o.CanUseTool,
		MCPServers:        o.MCPServers,
		ControlTimeout:    o.EffectiveControlTimeout(),
		InitializeTimeout: o.InitializeTimeout,
		MessageBuffer:     o.MessageBufferSize,
	})
}

// Connect creates a session and connects it.
func Connect(ctx context.Context, opts ...Option) (*Session, error) {
	s := NewSession(opts...)
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// WithSession connects a session, runs fn, and disconnects.
//
// If fn returns an error it is returned to the caller; a failed Disconnect
// is logged but does not override it.
func WithSession(ctx context.Context, fn func(*Session) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	s := newSession(options)
	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect session: %w", err)
	}

	defer func() {
		if err := s.Disconnect(); err != nil {
			log.Warn("Failed to disconnect session", "error", err)
		}
	}()

	return fn(s)
}
