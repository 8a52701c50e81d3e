package session

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/agentproto/internal/message"
)

// turnLog is the append-only message log of one turn.
//
// Readers hold an index and wait on changed, which is closed and replaced
// on every append. A sealed log never grows again.
type turnLog struct {
	id string

	mu        sync.Mutex
	msgs      []message.Message
	sealed    bool
	err       error
	changed   chan struct{}
	following *turnLog
}

func newTurnLog() *turnLog {
	return &turnLog{
		id:      ulid.Make().String(),
		changed: make(chan struct{}),
	}
}

func (t *turnLog) append(msg message.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return
	}

	t.msgs = append(t.msgs, msg)
	close(t.changed)
	t.changed = make(chan struct{})
}

// seal ends the log. err is reported by ReceiveResponse when the log ended
// without a result.
func (t *turnLog) seal(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return
	}

	t.sealed = true
	t.err = err
	close(t.changed)
}

func (t *turnLog) setFollowing(next *turnLog) {
	t.mu.Lock()
	t.following = next
	t.mu.Unlock()
}

func (t *turnLog) next() *turnLog {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.following
}

func (t *turnLog) sealErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.err
}

func (t *turnLog) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.msgs)
}

// at returns message i, waiting for it to arrive. ok is false once the log
// is sealed and has fewer than i+1 messages.
func (t *turnLog) at(ctx context.Context, i int) (msg message.Message, ok bool, err error) {
	for {
		t.mu.Lock()

		if i < len(t.msgs) {
			msg = t.msgs[i]
			t.mu.Unlock()

			return msg, true, nil
		}

		if t.sealed {
			t.mu.Unlock()

			return nil, false, nil
		}

		changed := t.changed
		t.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}
