// Package clock defines the pausable game clock shared by sessions and rooms.
package clock

import "time"

// State captures a clock as the pair of accumulated elapsed time and the
// moment it was last resumed. A nil RunningSince means the clock is paused.
// All values are epoch milliseconds.
type State struct {
	ElapsedMs    int64  `json:"elapsed"`
	RunningSince *int64 `json:"startedAt"`
}

// Millis converts a time to the epoch-millisecond representation used
// throughout the clock package.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Running reports whether the clock is currently advancing.
func (s State) Running() bool {
	return s.RunningSince != nil
}

// Elapsed returns the total elapsed time as of the reference instant.
func (s State) Elapsed(now int64) int64 {
	if s.RunningSince == nil {
		return s.ElapsedMs
	}
	delta := now - *s.RunningSince
	if delta < 0 {
		delta = 0
	}
	return s.ElapsedMs + delta
}

// Pause folds the running interval into ElapsedMs and stops the clock.
// No-op if already paused.
func (s State) Pause(now int64) State {
	if s.RunningSince == nil {
		return s
	}
	return State{ElapsedMs: s.Elapsed(now)}
}

// Resume starts the clock at the reference instant. No-op if already running.
func (s State) Resume(now int64) State {
	if s.RunningSince != nil {
		return s
	}
	return State{ElapsedMs: s.ElapsedMs, RunningSince: &now}
}

// Set replaces the elapsed time with value. An explicit time jump always
// leaves the clock paused.
func (s State) Set(value int64) State {
	return State{ElapsedMs: value}
}

// Started returns a clock that began running at the reference instant with
// zero accumulated time.
func Started(now int64) State {
	return State{RunningSince: &now}
}
