// Package messages defines the JSON wire protocol of the real-time room.
package messages

// Inbound is a client command. The "type" field selects the action; "sides"
// is only meaningful for roll commands and is validated server-side.
type Inbound struct {
	Type  string   `json:"type"`
	Sides *float64 `json:"sides,omitempty"`
}

// Client command types.
const (
	TypeRoll        = "roll"
	TypeTimerResume = "timer-resume"
	TypeTimerPause  = "timer-pause"
	TypeTimerStop   = "timer-stop"
	TypeState       = "state"
	TypeError       = "error"
	TypeTimer       = "timer"
)
