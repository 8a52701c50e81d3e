package correlation

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wagiedev/agentproto/internal/errors"
)

// Outcome is the resolution of one correlated request.
//
// Err is nil for a success response. Otherwise it is a *errors.RequestError
// (the peer answered with an error) or wraps ErrTimedOut or ErrCancelled.
type Outcome struct {
	Payload json.RawMessage
	Err     error
}

// Waiter is the single-shot response slot for one request id.
type Waiter struct {
	id   string
	done chan struct{}
	once sync.Once

	outcome Outcome
}

// ID returns the request id this waiter is bound to.
func (w *Waiter) ID() string { return w.id }

// Done is closed once the waiter has resolved.
func (w *Waiter) Done() <-chan struct{} { return w.done }

// Outcome returns the resolution. It is only meaningful after Done is closed.
func (w *Waiter) Outcome() Outcome {
	<-w.done

	return w.outcome
}

// resolve settles the waiter. Only the first call has an effect.
func (w *Waiter) resolve(o Outcome) bool {
	resolved := false

	w.once.Do(func() {
		w.outcome = o
		resolved = true

		close(w.done)
	})

	return resolved
}

// Table tracks outstanding correlated requests.
type Table struct {
	log         *slog.Logger
	onViolation func(*errors.ProtocolViolation)

	mu       sync.Mutex
	entries  map[string]*Waiter
	seen     map[string]struct{}
	closeErr error
}

// Option configures a Table.
type Option func(*Table)

// WithViolationHandler registers a callback that observes every discarded
// response for an unknown or already-resolved id.
func WithViolationHandler(fn func(*errors.ProtocolViolation)) Option {
	return func(t *Table) {
		t.onViolation = fn
	}
}

// NewTable creates an empty Table.
func NewTable(log *slog.Logger, opts ...Option) *Table {
	t := &Table{
		log:     log.With("component", "correlation"),
		entries: make(map[string]*Waiter, 8),
		seen:    make(map[string]struct{}, 64),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Register creates the waiter for id.
//
// It fails with ErrDuplicateID if id was ever registered on this Table, and
// with the close cause once the Table has been closed.
func (t *Table) Register(id string) (*Waiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closeErr != nil {
		return nil, t.closeErr
	}

	if _, dup := t.seen[id]; dup {
		return nil, fmt.Errorf("register %s: %w", id, errors.ErrDuplicateID)
	}

	w := &Waiter{id: id, done: make(chan struct{})}
	t.entries[id] = w
	t.seen[id] = struct{}{}

	return w, nil
}

// Fulfill resolves the waiter for id with the peer's outcome.
//
// A response for an id that is not outstanding is a protocol violation: it is
// logged, reported to the violation handler and otherwise ignored. Fulfill
// reports whether a waiter was resolved.
func (t *Table) Fulfill(id string, o Outcome) bool {
	w := t.take(id)
	if w == nil || !w.resolve(o) {
		reason := "response for unknown request"
		if t.wasSeen(id) {
			reason = "response for already resolved request"
		}

		t.violation(&errors.ProtocolViolation{RequestID: id, Reason: reason})

		return false
	}

	t.log.Debug("Correlated request fulfilled", "request_id", id, "error", o.Err)

	return true
}

// Await blocks until w resolves, timeout elapses, or ctx ends.
//
// On timeout the entry is removed and ErrTimedOut is returned; a response
// arriving afterwards is discarded as a protocol violation. A non-positive
// timeout waits without bound.
func (t *Table) Await(ctx context.Context, w *Waiter, timeout time.Duration) (json.RawMessage, error) {
	var expired <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		expired = timer.C
	}

	select {
	case <-w.done:
		return w.outcome.Payload, w.outcome.Err

	case <-expired:
		err := fmt.Errorf("%w after %s", errors.ErrTimedOut, timeout)
		if t.settle(w, Outcome{Err: err}) {
			t.log.Warn("Correlated request timed out", "request_id", w.id, "timeout", timeout)
		}

		o := w.Outcome()

		return o.Payload, o.Err

	case <-ctx.Done():
		t.settle(w, Outcome{Err: fmt.Errorf("%w: %w", errors.ErrCancelled, ctx.Err())})

		o := w.Outcome()

		return o.Payload, o.Err
	}
}

// Cancel removes the entry for id and wakes its waiter with ErrCancelled.
// It reports whether an outstanding entry was cancelled.
func (t *Table) Cancel(id string) bool {
	w := t.take(id)
	if w == nil {
		return false
	}

	return w.resolve(Outcome{Err: errors.ErrCancelled})
}

// Close cancels every outstanding entry and rejects further registrations.
//
// Waiters resolve with an error that matches both ErrCancelled and cause.
// Close returns the number of waiters it woke. Only the first call has an
// effect.
func (t *Table) Close(cause error) int {
	var err error = errors.ErrCancelled
	if cause != nil && !stderrors.Is(cause, errors.ErrCancelled) {
		err = fmt.Errorf("%w: %w", errors.ErrCancelled, cause)
	}

	t.mu.Lock()

	if t.closeErr != nil {
		t.mu.Unlock()

		return 0
	}

	t.closeErr = err
	pending := t.entries
	t.entries = make(map[string]*Waiter)

	t.mu.Unlock()

	woken := 0

	for _, w := range pending {
		if w.resolve(Outcome{Err: err}) {
			woken++
		}
	}

	if woken > 0 {
		t.log.Debug("Cancelled outstanding requests", "count", woken, "cause", cause)
	}

	return woken
}

// Len returns the number of outstanding entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// settle removes w's entry and resolves it with o if it is still outstanding.
func (t *Table) settle(w *Waiter, o Outcome) bool {
	t.mu.Lock()

	if cur, ok := t.entries[w.id]; ok && cur == w {
		delete(t.entries, w.id)
	}

	t.mu.Unlock()

	return w.resolve(o)
}

func (t *Table) take(id string) *Waiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}

	return w
}

func (t *Table) wasSeen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.seen[id]

	return ok
}

func (t *Table) violation(v *errors.ProtocolViolation) {
	t.log.Warn("Discarding control response", "request_id", v.RequestID, "reason", v.Reason)

	if t.onViolation != nil {
		t.onViolation(v)
	}
}
