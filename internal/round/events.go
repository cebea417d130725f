package round

// EventKind names a change the shell may want to redraw.
type EventKind string

const (
	EventStatus    EventKind = "status"
	EventField     EventKind = "field"
	EventCountdown EventKind = "countdown"
	EventGo        EventKind = "go"
	EventTick      EventKind = "tick"
	EventScore     EventKind = "score"
	EventMask      EventKind = "mask"
	EventFeedback  EventKind = "feedback"
)

// Event is one entry in the ordered list of effects an operation produced.
type Event struct {
	Kind   EventKind `json:"kind"`
	Status Status    `json:"status,omitempty"`
	Value  int       `json:"value"`
}

// HasKind reports whether events contains kind.
func HasKind(events []Event, kind EventKind) bool {
	for _, e := range events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
