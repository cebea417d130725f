// Package round implements the lifecycle of one play session: spawning the
// field, the countdown, tap handling, the win and loss checks, and gating of
// the asynchronous end-of-round feedback.
package round

import "errors"

// Status is the state of the round machine.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusSelectTheme Status = "select_theme"
	StatusSpawning    Status = "spawning"
	StatusCountdown   Status = "countdown"
	StatusPlaying     Status = "playing"
	StatusViewing     Status = "viewing"
	StatusWon         Status = "won"
	StatusLost        Status = "lost"
)

// Terminal reports whether s is Won or Lost.
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost
}

// Active reports whether a round is under way (field on screen, not finished).
func (s Status) Active() bool {
	switch s {
	case StatusSpawning, StatusCountdown, StatusPlaying, StatusViewing:
		return true
	}
	return false
}

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownTheme      = errors.New("unknown theme")
	ErrInvalidConfig     = errors.New("invalid round config")
)
