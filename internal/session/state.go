package session

// State is the lifecycle state of a Session.
type State int

const (
	// StateDisconnected has no connection. Connect is legal.
	StateDisconnected State = iota
	// StateConnecting is starting the transport and awaiting initialize.
	StateConnecting
	// StateIdle is connected with no turn in flight. Query is legal.
	StateIdle
	// StateInTurn is connected and waiting for the turn's result.
	StateInTurn
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateInTurn:
		return "in_turn"
	default:
		return "unknown"
	}
}

// Connected reports whether s has a live connection.
func (s State) Connected() bool {
	return s == StateIdle || s == StateInTurn
}
