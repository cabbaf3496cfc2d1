package messages

// TimerView is the derived timer state included in every snapshot.
type TimerView struct {
	Running   bool   `json:"running"`
	Elapsed   int64  `json:"elapsed"`
	StartedAt *int64 `json:"startedAt"`
}

// RollEvent is one immutable dice roll, identical for every member of the
// room: id and timestamp are computed once on the server.
type RollEvent struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Sides    int    `json:"sides"`
	Result   int    `json:"result"`
	At       int64  `json:"at"`
}

// RoomSnapshot is the unit of persistence and of broadcast.
type RoomSnapshot struct {
	RoomID   string     `json:"roomId"`
	Timer    TimerView  `json:"timer"`
	LastRoll *RollEvent `json:"lastRoll"`
}

// Envelope is the single server-to-client message shape; unused fields are
// omitted per message type.
type Envelope struct {
	Type      string        `json:"type"`
	State     *RoomSnapshot `json:"state,omitempty"`
	Event     *RollEvent    `json:"event,omitempty"`
	StoppedAt *int64        `json:"stoppedAt,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// StateEnvelope wraps a snapshot for the requester.
func StateEnvelope(state RoomSnapshot) Envelope {
	return Envelope{Type: TypeState, State: &state}
}

// RollEnvelope wraps a resolved roll plus the resulting snapshot.
func RollEnvelope(event RollEvent, state RoomSnapshot) Envelope {
	return Envelope{Type: TypeRoll, Event: &event, State: &state}
}

// TimerEnvelope wraps a timer change; stoppedAt is set for stop events only.
func TimerEnvelope(state RoomSnapshot, stoppedAt *int64) Envelope {
	return Envelope{Type: TypeTimer, State: &state, StoppedAt: stoppedAt}
}

// ErrorEnvelope reports a rejected command to the requester.
func ErrorEnvelope(message string) Envelope {
	return Envelope{Type: TypeError, Message: message}
}
