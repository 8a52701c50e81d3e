package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/agentproto/internal/correlation"
	"github.com/wagiedev/agentproto/internal/errors"
	"github.com/wagiedev/agentproto/internal/transport"
)

// DefaultMessageBuffer is the default capacity of the conversational channel.
const DefaultMessageBuffer = 100

// Router owns the inbound read loop of one connection.
//
// The Router handles:
//   - Forwarding conversational frames, in arrival order, to Messages
//   - Running each inbound control request through the Handler on its own goroutine
//   - Resolving inbound control responses through the correlation table
//   - Cancelling in-flight handlers on control_cancel_request
//   - Sending outbound control requests with fresh ULID request ids
//
// A Router serves a single connection. When the stream ends every outstanding
// request resolves with an error matching ErrConnectionLost.
type Router struct {
	log       *slog.Logger
	transport transport.Transport
	handler   Handler
	table     *correlation.Table

	// Conversational frames; bounded so a slow consumer slows the reader.
	messages chan *transport.Frame

	inFlightMu sync.Mutex
	inFlight   map[string]*inFlightOperation

	errMu    sync.RWMutex
	fatalErr error

	started   atomic.Bool
	stopped   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	loopDone  chan struct{}
	wg        sync.WaitGroup
}

// inFlightOperation tracks an inbound control request being handled.
type inFlightOperation struct {
	subtype   string
	cancel    context.CancelFunc
	startTime time.Time
	completed bool
}

type routerConfig struct {
	bufferSize  int
	onViolation func(*errors.ProtocolViolation)
}

// RouterOption configures a Router.
type RouterOption func(*routerConfig)

// WithMessageBuffer sets the capacity of the conversational channel.
func WithMessageBuffer(n int) RouterOption {
	return func(c *routerConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithViolationHandler observes control responses discarded as protocol
// violations.
func WithViolationHandler(fn func(*errors.ProtocolViolation)) RouterOption {
	return func(c *routerConfig) {
		c.onViolation = fn
	}
}

// NewRouter creates a Router for an already started transport.
//
// handler answers inbound control requests; a nil handler answers every
// request with an error response.
func NewRouter(log *slog.Logger, t transport.Transport, handler Handler, opts ...RouterOption) *Router {
	cfg := routerConfig{bufferSize: DefaultMessageBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}

	log = log.With("component", "router")

	var tableOpts []correlation.Option
	if cfg.onViolation != nil {
		tableOpts = append(tableOpts, correlation.WithViolationHandler(cfg.onViolation))
	}

	return &Router{
		log:       log,
		transport: t,
		handler:   handler,
		table:     correlation.NewTable(log, tableOpts...),
		messages:  make(chan *transport.Frame, cfg.bufferSize),
		inFlight:  make(map[string]*inFlightOperation, 8),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
}

// Messages returns the conversational frames of this connection.
//
// The channel is closed when the read loop ends.
func (r *Router) Messages() <-chan *transport.Frame {
	return r.messages
}

// Done is closed when the Router has stopped routing.
func (r *Router) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that ended the connection, or nil if the stream ended
// cleanly or the Router was stopped.
func (r *Router) Err() error {
	r.errMu.RLock()
	defer r.errMu.RUnlock()

	return r.fatalErr
}

// Run reads the transport until the stream ends, ctx is cancelled, or Stop
// is called. It returns the fatal transport error, if any.
//
// Run may be called once.
func (r *Router) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("router already running")
	}

	defer close(r.loopDone)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.log.Info("Router started")

	frames, errs := r.transport.ReadFrames(ctx)

	err := r.readLoop(ctx, frames, errs)
	r.teardown(err)

	return err
}

// readLoop routes frames until the stream or the Router ends.
func (r *Router) readLoop(ctx context.Context, frames <-chan *transport.Frame, errs <-chan error) error {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				// A fatal error is queued before frames closes.
				select {
				case err, ok := <-errs:
					if ok && err != nil {
						r.log.Error("Transport failed", "error", err)

						return err
					}
				default:
				}

				r.log.Debug("Stream ended")

				return nil
			}

			r.route(ctx, frame)

		case err, ok := <-errs:
			if !ok {
				errs = nil

				continue
			}

			if err != nil {
				r.log.Error("Transport failed", "error", err)

				return err
			}

		case <-r.done:
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// teardown resolves everything that depends on this connection.
func (r *Router) teardown(err error) {
	if err != nil {
		r.errMu.Lock()
		if r.fatalErr == nil {
			r.fatalErr = err
		}
		r.errMu.Unlock()
	}

	cause := errors.ErrConnectionLost
	if r.stopped.Load() {
		cause = errors.ErrCancelled
	} else if err != nil {
		cause = fmt.Errorf("%w: %w", errors.ErrConnectionLost, err)
	}

	if n := r.table.Close(cause); n > 0 {
		r.log.Debug("Resolved outstanding requests on teardown", "count", n)
	}

	close(r.messages)
	r.closeDone()

	r.log.Info("Router stopped", "error", err)
}

// Stop ends routing and waits for in-flight handlers to return.
//
// Outstanding outbound requests resolve with ErrCancelled. In-flight handlers
// have their context cancelled. Safe to call more than once.
func (r *Router) Stop() {
	r.stopped.Store(true)
	r.table.Close(errors.ErrCancelled)
	r.closeDone()
	r.cancelAllInFlight()

	if r.started.Load() {
		<-r.loopDone
	}

	r.wg.Wait()
}

func (r *Router) closeDone() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// route classifies one frame.
func (r *Router) route(ctx context.Context, frame *transport.Frame) {
	switch frame.Kind() {
	case transport.KindControlResponse:
		r.handleControlResponse(frame)

	case transport.KindControlRequest:
		r.handleControlRequest(ctx, frame)

	case transport.KindControlCancel:
		r.handleCancelRequest(ctx, frame)

	default:
		select {
		case r.messages <- frame:
		case <-r.done:
		case <-ctx.Done():
		}
	}
}

// Send writes an outbound control request and returns its registered waiter.
func (r *Router) Send(ctx context.Context, subtype string, payload map[string]any) (*correlation.Waiter, error) {
	requestID := ulid.Make().String()

	w, err := r.table.Register(requestID)
	if err != nil {
		return nil, err
	}

	request := make(map[string]any, len(payload)+1)
	maps.Copy(request, payload)
	request["subtype"] = subtype

	data, err := json.Marshal(&controlRequestFrame{
		Type:      transport.TypeControlRequest,
		RequestID: requestID,
		Request:   request,
	})
	if err != nil {
		r.table.Cancel(requestID)

		return nil, fmt.Errorf("marshal %s request: %w", subtype, err)
	}

	r.log.Debug("Sending control request", "request_id", requestID, "subtype", subtype)

	if err := r.transport.SendMessage(ctx, data); err != nil {
		r.table.Cancel(requestID)
		r.log.Error("Failed to send control request", "subtype", subtype, "error", err)

		return nil, fmt.Errorf("send %s request: %w", subtype, err)
	}

	return w, nil
}

// Await waits for the response to a request returned by Send.
func (r *Router) Await(ctx context.Context, w *correlation.Waiter, timeout time.Duration) (json.RawMessage, error) {
	return r.table.Await(ctx, w, timeout)
}

// SendRequest sends a control request and waits for its response.
//
// It fails with a *errors.RequestError if the peer answers with an error,
// with ErrTimedOut if no answer arrives within timeout, and with
// ErrCancelled (wrapping ErrConnectionLost when applicable) if the
// connection ends first.
func (r *Router) SendRequest(
	ctx context.Context,
	subtype string,
	payload map[string]any,
	timeout time.Duration,
) (json.RawMessage, error) {
	w, err := r.Send(ctx, subtype, payload)
	if err != nil {
		return nil, err
	}

	resp, err := r.Await(ctx, w, timeout)
	if err != nil {
		var reqErr *errors.RequestError
		if stderrors.As(err, &reqErr) && reqErr.Subtype == "" {
			reqErr.Subtype = subtype
		}

		return nil, err
	}

	r.log.Debug("Control request completed", "request_id", w.ID(), "subtype", subtype)

	return resp, nil
}

// SendFrame writes one conversational frame, such as a user turn.
func (r *Router) SendFrame(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	return r.transport.SendMessage(ctx, data)
}

// Pending returns the number of outbound requests awaiting a response.
func (r *Router) Pending() int {
	return r.table.Len()
}

// handleControlResponse resolves the waiter for a response.
func (r *Router) handleControlResponse(frame *transport.Frame) {
	var env controlResponseFrame
	if err := frame.Decode(&env); err != nil || len(env.Response) == 0 {
		r.log.Warn("Discarding malformed control response", "error", err)

		return
	}

	var body responseBody
	if err := json.Unmarshal(env.Response, &body); err != nil {
		r.log.Warn("Discarding malformed control response body", "error", err)

		return
	}

	requestID := body.RequestID
	if requestID == "" {
		requestID = env.RequestID
	}

	if requestID == "" {
		r.log.Warn("Control response missing request_id")

		return
	}

	var outcome correlation.Outcome

	switch body.Subtype {
	case responseError:
		outcome.Err = &errors.RequestError{Message: body.Error}
	default:
		outcome.Payload = body.Response
		if len(outcome.Payload) == 0 {
			outcome.Payload = env.Response
		}
	}

	r.table.Fulfill(requestID, outcome)
}

// handleControlRequest runs the handler for an inbound request on its own
// goroutine so a slow callback never stalls the read loop.
func (r *Router) handleControlRequest(ctx context.Context, frame *transport.Frame) {
	req, err := parseControlRequest(frame.Raw)
	if req == nil || req.RequestID == "" {
		r.log.Warn("Dropping control request without request_id", "error", err)

		return
	}

	if err != nil {
		r.log.Warn("Rejecting malformed control request", "request_id", req.RequestID, "error", err)
		r.sendErrorResponse(ctx, req.RequestID, err.Error())

		return
	}

	r.log.Debug("Received control request", "request_id", req.RequestID, "subtype", req.Subtype)

	if r.handler == nil {
		r.sendErrorResponse(ctx, req.RequestID, errors.ErrNoHandler.Error())

		return
	}

	opCtx, cancel := context.WithCancel(ctx)

	op := &inFlightOperation{
		subtype:   req.Subtype,
		cancel:    cancel,
		startTime: time.Now(),
	}

	r.inFlightMu.Lock()
	r.inFlight[req.RequestID] = op
	r.inFlightMu.Unlock()

	r.wg.Go(func() {
		defer func() {
			r.inFlightMu.Lock()
			op.completed = true
			delete(r.inFlight, req.RequestID)
			r.inFlightMu.Unlock()

			cancel()
		}()

		payload, err := r.invoke(opCtx, req)

		if opCtx.Err() != nil && ctx.Err() == nil {
			r.log.Debug("Control request cancelled by peer", "request_id", req.RequestID)
			r.sendErrorResponse(ctx, req.RequestID, errors.ErrCancelled.Error())

			return
		}

		if err != nil {
			r.log.Warn("Control request failed",
				"request_id", req.RequestID,
				"subtype", req.Subtype,
				"error", err,
			)
			r.sendErrorResponse(ctx, req.RequestID, err.Error())

			return
		}

		r.sendSuccessResponse(ctx, req, payload)

		r.log.Debug("Control request answered",
			"request_id", req.RequestID,
			"subtype", req.Subtype,
			"elapsed", time.Since(op.startTime),
		)
	})
}

// invoke runs the handler, converting a panic into a HandlerFailure.
func (r *Router) invoke(ctx context.Context, req *ControlRequest) (payload any, err error) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error("Control handler panicked", "request_id", req.RequestID, "subtype", req.Subtype, "panic", v)
			err = &errors.HandlerFailure{Subtype: req.Subtype, Cause: v}
		}
	}()

	return r.handler.HandleControl(ctx, req)
}

// handleCancelRequest cancels the in-flight handler for a request id.
func (r *Router) handleCancelRequest(ctx context.Context, frame *transport.Frame) {
	var msg cancelFrame
	if err := frame.Decode(&msg); err != nil || msg.RequestID == "" {
		r.log.Warn("Cancel request missing request_id")

		return
	}

	r.inFlightMu.Lock()
	op, exists := r.inFlight[msg.RequestID]

	alreadyCompleted := exists && op.completed
	if exists && !alreadyCompleted {
		op.cancel()
	}

	r.inFlightMu.Unlock()

	r.log.Debug("Cancel request processed",
		"request_id", msg.RequestID,
		"found", exists,
		"already_completed", alreadyCompleted,
	)

	r.writeResponse(ctx, msg.RequestID, map[string]any{
		"subtype":           responseCancelAck,
		"request_id":        msg.RequestID,
		"found":             exists,
		"already_completed": alreadyCompleted,
	})
}

func (r *Router) sendSuccessResponse(ctx context.Context, req *ControlRequest, payload any) {
	body, err := buildSuccessBody(req, payload)
	if err != nil {
		r.log.Error("Failed to build control response", "request_id", req.RequestID, "error", err)
		r.sendErrorResponse(ctx, req.RequestID, err.Error())

		return
	}

	r.writeResponse(ctx, req.RequestID, body)
}

func (r *Router) sendErrorResponse(ctx context.Context, requestID string, msg string) {
	r.writeResponse(ctx, requestID, map[string]any{
		"subtype":    responseError,
		"request_id": requestID,
		"error":      msg,
	})
}

func (r *Router) writeResponse(ctx context.Context, requestID string, body map[string]any) {
	inner, err := json.Marshal(body)
	if err != nil {
		r.log.Error("Failed to marshal control response", "request_id", requestID, "error", err)

		return
	}

	data, err := json.Marshal(&controlResponseFrame{
		Type:      transport.TypeControlResponse,
		RequestID: requestID,
		Response:  inner,
	})
	if err != nil {
		r.log.Error("Failed to marshal control response", "request_id", requestID, "error", err)

		return
	}

	if err := r.transport.SendMessage(ctx, data); err != nil {
		if ctx.Err() != nil || r.stopped.Load() {
			r.log.Debug("Could not send control response during shutdown", "request_id", requestID, "error", err)

			return
		}

		r.log.Error("Failed to send control response", "request_id", requestID, "error", err)
	}
}

// cancelAllInFlight cancels every running handler.
func (r *Router) cancelAllInFlight() {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()

	for _, op := range r.inFlight {
		if !op.completed {
			op.cancel()
		}
	}
}
