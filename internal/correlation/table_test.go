package correlation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/agentproto/internal/errors"
)

func newTestTable(t *testing.T, opts ...Option) *Table {
	t.Helper()

	return NewTable(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestTable_RegisterRejectsDuplicates(t *testing.T) {
	table := newTestTable(t)

	w, err := table.Register("r1")
	require.NoError(t, err)
	require.Equal(t, "r1", w.ID())

	_, err = table.Register("r1")
	require.ErrorIs(t, err, errors.ErrDuplicateID)

	require.True(t, table.Fulfill("r1", Outcome{}))

	_, err = table.Register("r1")
	require.ErrorIs(t, err, errors.ErrDuplicateID, "ids are never reused, even after resolution")
}

func TestTable_FulfillDeliversPayload(t *testing.T) {
	table := newTestTable(t)

	w, err := table.Register("r1")
	require.NoError(t, err)

	go table.Fulfill("r1", Outcome{Payload: json.RawMessage(`{"ok":true}`)})

	payload, err := table.Await(context.Background(), w, time.Second)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(payload))
	require.Zero(t, table.Len())
}

func TestTable_FulfillWithRequestError(t *testing.T) {
	table := newTestTable(t)

	w, err := table.Register("r1")
	require.NoError(t, err)

	table.Fulfill("r1", Outcome{Err: &errors.RequestError{Subtype: "interrupt", Message: "boom"}})

	_, err = table.Await(context.Background(), w, time.Second)

	var reqErr *errors.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, "boom", reqErr.Message)
}

func TestTable_SecondResponseIsDiscarded(t *testing.T) {
	var violations []*errors.ProtocolViolation

	table := newTestTable(t, WithViolationHandler(func(v *errors.ProtocolViolation) {
		violations = append(violations, v)
	}))

	w, err := table.Register("r1")
	require.NoError(t, err)

	require.True(t, table.Fulfill("r1", Outcome{Payload: json.RawMessage(`"first"`)}))
	require.False(t, table.Fulfill("r1", Outcome{Payload: json.RawMessage(`"second"`)}))

	payload, err := table.Await(context.Background(), w, time.Second)
	require.NoError(t, err)
	require.Equal(t, `"first"`, string(payload))

	require.Len(t, violations, 1)
	require.Equal(t, "r1", violations[0].RequestID)
	require.Equal(t, "response for already resolved request", violations[0].Reason)
}

func TestTable_FulfillUnknownID(t *testing.T) {
	var violations []*errors.ProtocolViolation

	table := newTestTable(t, WithViolationHandler(func(v *errors.ProtocolViolation) {
		violations = append(violations, v)
	}))

	require.False(t, table.Fulfill("nope", Outcome{}))
	require.Len(t, violations, 1)
	require.Equal(t, "response for unknown request", violations[0].Reason)
}

func TestTable_AwaitTimeoutRemovesEntry(t *testing.T) {
	var violations atomic.Int32

	table := newTestTable(t, WithViolationHandler(func(*errors.ProtocolViolation) {
		violations.Add(1)
	}))

	w, err := table.Register("r1")
	require.NoError(t, err)

	start := time.Now()
	_, err = table.Await(context.Background(), w, 30*time.Millisecond)

	require.ErrorIs(t, err, errors.ErrTimedOut)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.Zero(t, table.Len())

	require.False(t, table.Fulfill("r1", Outcome{}), "late response is discarded")
	require.Equal(t, int32(1), violations.Load())

	require.ErrorIs(t, w.Outcome().Err, errors.ErrTimedOut, "late response does not alter the first resolution")
}

func TestTable_AwaitContextCancel(t *testing.T) {
	table := newTestTable(t)

	w, err := table.Register("r1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = table.Await(ctx, w, time.Second)
	require.ErrorIs(t, err, errors.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, table.Len())
}

func TestTable_Cancel(t *testing.T) {
	table := newTestTable(t)

	w, err := table.Register("r1")
	require.NoError(t, err)

	require.True(t, table.Cancel("r1"))
	require.False(t, table.Cancel("r1"))

	_, err = table.Await(context.Background(), w, time.Second)
	require.ErrorIs(t, err, errors.ErrCancelled)

	require.False(t, table.Fulfill("r1", Outcome{}), "cancelled ids cannot be fulfilled")
}

func TestTable_CloseWakesAllWaiters(t *testing.T) {
	table := newTestTable(t)

	const n = 10

	waiters := make([]*Waiter, 0, n)

	for i := range n {
		w, err := table.Register(string(rune('a' + i)))
		require.NoError(t, err)

		waiters = append(waiters, w)
	}

	var wg sync.WaitGroup

	errs := make(chan error, n)

	for _, w := range waiters {
		wg.Go(func() {
			_, err := table.Await(context.Background(), w, 0)
			errs <- err
		})
	}

	require.Equal(t, n, table.Close(errors.ErrConnectionLost))
	wg.Wait()
	close(errs)

	for err := range errs {
		require.ErrorIs(t, err, errors.ErrCancelled)
		require.ErrorIs(t, err, errors.ErrConnectionLost)
	}

	_, err := table.Register("z")
	require.ErrorIs(t, err, errors.ErrConnectionLost)

	require.Zero(t, table.Close(nil), "close is idempotent")
}

func TestTable_ExactlyOneResolution(t *testing.T) {
	// Fulfill, Cancel and a short timeout race; each waiter must observe
	// exactly one outcome and it must be stable.
	for range 200 {
		table := newTestTable(t)

		w, err := table.Register("r")
		require.NoError(t, err)

		var wg sync.WaitGroup

		wg.Go(func() { table.Fulfill("r", Outcome{Payload: json.RawMessage(`1`)}) })
		wg.Go(func() { table.Cancel("r") })

		_, first := table.Await(context.Background(), w, time.Millisecond)

		wg.Wait()

		o := w.Outcome()
		require.Equal(t, first, o.Err)
		require.Zero(t, table.Len())
	}
}
