// Package protocol implements the Router: the single read loop that
// multiplexes one duplex stream between conversational output and control
// traffic.
//
// Conversational frames are forwarded in arrival order on a bounded channel.
// Inbound control requests are answered by a Handler, each on its own
// goroutine, and may be cancelled by the peer with control_cancel_request.
// Inbound control responses resolve the waiters of a correlation.Table.
//
// Example usage:
//
//	router := protocol.NewRouter(log, transport, dispatcher)
//	go router.Run(ctx)
//
//	resp, err := router.SendRequest(ctx, protocol.SubtypeInterrupt, nil, 5*time.Second)
package protocol
