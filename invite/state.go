package invite

// State is the position of an Attempt in the handshake.
type State int

const (
	// Idle is the state before the first connection request.
	Idle State = iota
	// Connecting waits for the connection to open.
	Connecting
	// Connected is ringing: the connection is open and awaits the ack.
	Connected
	// Errored follows a connection error and precedes a retry.
	Errored
	// Accepted is terminal: the recipient sent the ack.
	Accepted
	// Denied is terminal: the recipient declined, dropped, or never
	// answered, or the attempt was cancelled.
	Denied
	// RetryExhausted is terminal: every allowed connection attempt failed.
	RetryExhausted
)

var stateNames = map[State]string{
	Idle:           "idle",
	Connecting:     "connecting",
	Connected:      "connected",
	Errored:        "errored",
	Accepted:       "accepted",
	Denied:         "denied",
	RetryExhausted: "retry_exhausted",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == Accepted || s == Denied || s == RetryExhausted
}

// transitions lists the allowed successors of each state.
var transitions = map[State][]State{
	Idle:       {Connecting, Denied},
	Connecting: {Connected, Errored, Denied},
	Connected:  {Accepted, Denied, Errored},
	Errored:    {Connecting, RetryExhausted, Denied},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
