package agentproto

import (
	"context"
	"fmt"
	"iter"
)

// Query runs a single prompt on a fresh session and yields the turn's
// messages, ending with the result.
//
//	for msg, err := range agentproto.Query(ctx, "What is 2+2?", agentproto.WithMaxTurns(1)) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if r, ok := msg.(*agentproto.ResultMessage); ok {
//	        fmt.Println(r.Result)
//	    }
//	}
//
// Errors are yielded inline and end the iteration. The session is
// disconnected when iteration stops, including when the caller breaks early.
func Query(ctx context.Context, prompt string, opts ...Option) iter.Seq2[Message, error] {
	return QueryStream(ctx, Prompts(prompt), opts...)
}

// QueryStream runs each prompt as its own turn on one session, in order,
// and yields every message of every turn. The next prompt is read only
// after the previous turn's result.
func QueryStream(ctx context.Context, prompts iter.Seq[string], opts ...Option) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		options := applyOptions(opts)

		s := newSession(options)
		if err := s.Connect(ctx); err != nil {
			yield(nil, err)

			return
		}

		defer func() { _ = s.Disconnect() }()

		for prompt := range prompts {
			if !runTurn(ctx, s, prompt, yield) {
				return
			}
		}
	}
}

// runTurn runs one turn and reports whether iteration should continue.
func runTurn(ctx context.Context, s *Session, prompt string, yield func(Message, error) bool) bool {
	if _, err := s.Query(ctx, prompt, TurnOptions{}); err != nil {
		yield(nil, err)

		return false
	}

	for msg, err := range s.TurnOutput(ctx) {
		if err != nil {
			yield(nil, err)

			return false
		}

		if !yield(msg, nil) {
			return false
		}

		if IsResult(msg) {
			return true
		}
	}

	// The view ended without a result: the connection is gone.
	if _, err := s.ReceiveResponse(ctx); err != nil {
		yield(nil, err)
	} else {
		yield(nil, fmt.Errorf("turn ended without a result: %w", ErrConnectionLost))
	}

	return false
}

// Prompts yields the given prompts in order.
func Prompts(prompts ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, p := range prompts {
			if !yield(p) {
				return
			}
		}
	}
}

// PromptsFromChannel yields prompts until ch is closed.
func PromptsFromChannel(ch <-chan string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for p := range ch {
			if !yield(p) {
				return
			}
		}
	}
}
