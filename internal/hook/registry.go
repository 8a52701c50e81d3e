package hook

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Matcher selects which tool calls a group of callbacks applies to.
type Matcher struct {
	// Matcher is a tool name like "Bash" or a pipe-separated list like
	// "Write|Edit". Empty or "*" matches every tool. This is not a regex.
	Matcher string
	Hooks   []Callback
	// Timeout bounds each callback on the peer side; zero uses the peer default.
	Timeout time.Duration
}

// Matches reports whether the matcher applies to toolName.
func (m *Matcher) Matches(toolName string) bool {
	if m.Matcher == "" || m.Matcher == "*" {
		return true
	}

	return slices.Contains(strings.Split(m.Matcher, "|"), toolName)
}

// Registry collects hook registrations. It is safe for concurrent use.
//
// A Registry is mutable; connections work from a Bindings snapshot, so a
// registration added later only affects future connections.
type Registry struct {
	mu     sync.RWMutex
	events []Event
	byEvt  map[Event][]Matcher
}

// NewRegistry creates a registry seeded with hooks.
func NewRegistry(hooks map[Event][]Matcher) *Registry {
	r := &Registry{byEvt: make(map[Event][]Matcher, len(hooks))}

	// Deterministic order keeps callback ids stable across connections.
	events := make([]Event, 0, len(hooks))
	for event := range hooks {
		events = append(events, event)
	}

	slices.Sort(events)

	for _, event := range events {
		r.Add(event, hooks[event]...)
	}

	return r
}

// Add appends matchers for event.
func (r *Registry) Add(event Event, matchers ...Matcher) {
	if len(matchers) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byEvt == nil {
		r.byEvt = make(map[Event][]Matcher, 4)
	}

	if _, ok := r.byEvt[event]; !ok {
		r.events = append(r.events, event)
	}

	r.byEvt[event] = append(r.byEvt[event], matchers...)
}

// Len returns the number of registered callbacks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0

	for _, matchers := range r.byEvt {
		for _, m := range matchers {
			n += len(m.Hooks)
		}
	}

	return n
}

// Bind snapshots the registry and assigns callback ids hook_0, hook_1, ...
// in registration order.
func (r *Registry) Bind() *Bindings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b := &Bindings{
		byID:    make(map[string]*binding, 8),
		byEvent: make(map[Event][]*binding, len(r.events)),
		config:  make(map[string]any, len(r.events)),
	}

	next := 0

	for _, event := range r.events {
		matchers := r.byEvt[event]
		wire := make([]map[string]any, 0, len(matchers))

		for i := range matchers {
			m := matchers[i]
			ids := make([]string, 0, len(m.Hooks))

			for _, cb := range m.Hooks {
				id := fmt.Sprintf("hook_%d", next)
				next++

				bd := &binding{id: id, event: event, matcher: m, callback: cb}
				b.byID[id] = bd
				b.byEvent[event] = append(b.byEvent[event], bd)
				ids = append(ids, id)
			}

			entry := map[string]any{"matcher": nil, "hookCallbackIds": ids}
			if m.Matcher != "" {
				entry["matcher"] = m.Matcher
			}

			if m.Timeout > 0 {
				entry["timeout"] = m.Timeout.Seconds()
			}

			wire = append(wire, entry)
		}

		b.config[string(event)] = wire
	}

	return b
}

// Bindings is an immutable snapshot of a Registry with callback ids
// assigned. It is what one connection dispatches hook callbacks against.
type Bindings struct {
	byID    map[string]*binding
	byEvent map[Event][]*binding
	config  map[string]any
}

type binding struct {
	id       string
	event    Event
	matcher  Matcher
	callback Callback
}

// Config returns the hooks section of the initialize request.
func (b *Bindings) Config() map[string]any {
	if b == nil {
		return map[string]any{}
	}

	return b.config
}

// Len returns the number of bound callbacks.
func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}

	return len(b.byID)
}

// Resolve finds the callback for a hook_callback request.
//
// A known callback id selects its callback directly. Without an id, the
// first registration for the input's event whose matcher accepts the tool
// wins. The returned id is the one that was selected.
func (b *Bindings) Resolve(callbackID string, in Input) (Callback, string, bool) {
	if b == nil {
		return nil, "", false
	}

	if callbackID != "" {
		bd, ok := b.byID[callbackID]
		if !ok {
			return nil, "", false
		}

		return bd.callback, bd.id, true
	}

	if in == nil {
		return nil, "", false
	}

	tool := ""
	if ti, ok := in.(ToolInput); ok {
		tool = ti.Tool()
	}

	for _, bd := range b.byEvent[in.Event()] {
		if bd.matcher.Matches(tool) {
			return bd.callback, bd.id, true
		}
	}

	return nil, "", false
}
