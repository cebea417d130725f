package game

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"popreveal/internal/field"
	"popreveal/internal/reveal"
	"popreveal/internal/round"
	"popreveal/pkg/realtime"
)

// Names of the events published to a session's subscribers.
const (
	EventState    = "state"
	EventField    = "field"
	EventHUD      = "hud"
	EventMask     = "mask"
	EventFeedback = "feedback"
)

// Session is one player's game. Its mutex serializes taps, ticks and
// feedback results, so each runs to completion before the next starts.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu             sync.Mutex
	machine        *round.Machine
	clock          realtime.Metronome
	looping        bool
	lastSeen       time.Time
	cancelFeedback context.CancelFunc
	// seq counts event batches. Batches are built under mu, so it follows
	// the order state changed in, whatever order they are published in.
	seq uint64
}

// HUD is the small, frequently pushed part of the state.
type HUD struct {
	round.Round
	Remaining int           `json:"remaining"`
	Levels    reveal.Levels `json:"levels"`
	// Cue is "countdown" or "go" when the last step was one of those beats.
	Cue string `json:"cue,omitempty"`
	// Seq grows with every published batch. Subscribers drop a HUD whose
	// Seq is below one they already applied.
	Seq uint64 `json:"seq"`
}

// Snapshot is a consistent copy of everything the shell draws.
type Snapshot struct {
	ID       string            `json:"id"`
	HUD      HUD               `json:"hud"`
	Theme    round.Theme       `json:"theme"`
	Reveal   round.RevealMode  `json:"reveal"`
	Entities []field.Entity    `json:"entities"`
	Width    float64           `json:"width"`
	Height   float64           `json:"height"`
	Device   field.DeviceClass `json:"device"`
	MaskRev  string            `json:"maskRev"`
	Cleared  float64           `json:"cleared"`
}

func (sess *Session) hudLocked(cue string) HUD {
	m := sess.machine
	return HUD{
		Round:     m.Round(),
		Remaining: m.Remaining(),
		Levels:    m.Levels(),
		Cue:       cue,
		Seq:       sess.seq,
	}
}

func (sess *Session) snapshotLocked() Snapshot {
	m := sess.machine
	w, h, dev := m.Viewport()
	return Snapshot{
		ID:       sess.ID,
		HUD:      sess.hudLocked(""),
		Theme:    m.Theme(),
		Reveal:   m.Config().Reveal,
		Entities: m.Entities(),
		Width:    w,
		Height:   h,
		Device:   dev,
		MaskRev:  MaskETag(m.Mask().Revision()),
		Cleared:  m.Mask().ClearedFraction(),
	}
}

func (sess *Session) cancelFeedbackLocked() {
	if sess.cancelFeedback != nil {
		sess.cancelFeedback()
		sess.cancelFeedback = nil
	}
}

// eventsLocked maps machine events onto broadcast events. Each name is sent
// once per batch, in first-seen order, carrying the state after the batch.
func (sess *Session) eventsLocked(events []round.Event) []realtime.Event {
	if len(events) == 0 {
		return nil
	}
	sess.seq++
	cue := ""
	var names []string
	seen := make(map[string]bool, 4)
	for _, e := range events {
		name := eventName(e.Kind)
		switch e.Kind {
		case round.EventCountdown:
			cue = "countdown"
		case round.EventGo:
			cue = "go"
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if seen[EventState] && !seen[EventHUD] {
		names = append(names, EventHUD)
	}
	m := sess.machine
	out := make([]realtime.Event, 0, len(names))
	for _, name := range names {
		var data string
		switch name {
		case EventState:
			data = string(m.Status())
		case EventField:
			data = strconv.Itoa(m.Remaining())
		case EventHUD:
			data = mustJSON(sess.hudLocked(cue))
		case EventMask:
			data = MaskETag(m.Mask().Revision())
		case EventFeedback:
			data = m.Round().FeedbackMessage
		}
		out = append(out, realtime.Event{Name: name, Data: data})
	}
	return out
}

func eventName(k round.EventKind) string {
	switch k {
	case round.EventStatus:
		return EventState
	case round.EventField:
		return EventField
	case round.EventMask:
		return EventMask
	case round.EventFeedback:
		return EventFeedback
	default:
		return EventHUD
	}
}

// MaskETag formats a mask revision the way snapshots and events carry it.
func MaskETag(rev uint64) string {
	return strconv.FormatUint(rev, 16)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
