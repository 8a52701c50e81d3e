// Package agentproto drives an agent CLI over its bidirectional
// newline-delimited JSON control protocol.
//
// The CLI runs as a child process. Its stdout carries conversational
// messages (user, assistant, system, result) interleaved with control
// frames; its stdin carries prompts and this side's control requests and
// responses. This package correlates requests with responses, answers the
// peer's callback requests (tool permission checks, hook callbacks, calls
// to in-process MCP tools), and presents each turn as an ordered stream of
// messages.
//
// # One-shot queries
//
//	for msg, err := range agentproto.Query(ctx, "What is 2+2?") {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    switch m := msg.(type) {
//	    case *agentproto.AssistantMessage:
//	        fmt.Print(m.Text())
//	    case *agentproto.ResultMessage:
//	        fmt.Printf("\n(%d turns, %dms)\n", m.NumTurns, m.DurationMs)
//	    }
//	}
//
// # Sessions
//
// A Session holds one connection at a time and runs one turn at a time.
// While a turn is in flight, Interrupt, SetPermissionMode, SetModel,
// RewindFiles and MCPStatus may be called from any goroutine; each is a
// control request with its own timeout.
//
//	err := agentproto.WithSession(ctx, func(s *agentproto.Session) error {
//	    if _, err := s.Query(ctx, "Refactor main.go", agentproto.TurnOptions{}); err != nil {
//	        return err
//	    }
//	    msgs, err := s.ReceiveResponse(ctx)
//	    ...
//	},
//	    agentproto.WithPermissionMode(agentproto.PermissionModeAcceptEdits),
//	    agentproto.WithCanUseTool(func(ctx context.Context, req *agentproto.PermissionRequest) (agentproto.PermissionResult, error) {
//	        if req.ToolName == "Bash" {
//	            return &agentproto.PermissionDeny{Message: "no shell"}, nil
//	        }
//	        return &agentproto.PermissionAllow{}, nil
//	    }),
//	)
//
// # Errors
//
// Every error type implements AgentProtoError and supports errors.Is and
// errors.As. A control request that gets no answer fails with ErrTimedOut;
// one cut short by the connection ending fails with ErrConnectionLost; one
// abandoned by Disconnect fails with ErrCancelled.
//
//	if err := s.Connect(ctx); err != nil {
//	    var notFound *agentproto.CLINotFoundError
//	    if errors.As(err, &notFound) {
//	        log.Fatalf("agent CLI not installed, searched: %v", notFound.SearchedPaths)
//	    }
//	    log.Fatal(err)
//	}
//
// # Logging
//
// Logging is silent unless WithLogger is given. Each component tags its
// records with a "component" attribute.
package agentproto
