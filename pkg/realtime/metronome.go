package realtime

import "time"

// Metronome schedules fixed-period ticks from a start time. It holds no game
// state; the owner calls Due and applies one step per returned tick, so a late
// wakeup catches up instead of drifting.
type Metronome struct {
	Period  time.Duration
	Started time.Time
	Fired   int
}

// DefaultPeriod is the one-second game clock.
const DefaultPeriod = time.Second

// Start resets the schedule so the first tick falls one period after now.
func (m *Metronome) Start(now time.Time) {
	if m.Period <= 0 {
		m.Period = DefaultPeriod
	}
	m.Started = now
	m.Fired = 0
}

// Stop clears the schedule.
func (m *Metronome) Stop() {
	m.Started = time.Time{}
	m.Fired = 0
}

// Running reports whether Start has been called since the last Stop.
func (m *Metronome) Running() bool {
	return !m.Started.IsZero()
}

// NextWake returns the time of the next tick, and false when stopped.
func (m *Metronome) NextWake(now time.Time) (time.Time, bool) {
	if !m.Running() {
		return time.Time{}, false
	}
	return m.Started.Add(time.Duration(m.Fired+1) * m.Period), true
}

// Due returns how many ticks have come due at now and marks them fired.
func (m *Metronome) Due(now time.Time) int {
	if !m.Running() || now.Before(m.Started) {
		return 0
	}
	total := int(now.Sub(m.Started) / m.Period)
	n := total - m.Fired
	if n <= 0 {
		return 0
	}
	m.Fired = total
	return n
}
