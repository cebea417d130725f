package round

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"popreveal/internal/feedback"
	"popreveal/internal/field"
	"popreveal/internal/registry"
	"popreveal/internal/reveal"
)

// Default viewport used until the shell reports one.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
)

// Round is the observable state of the current round.
type Round struct {
	ID              string `json:"id"`
	Status          Status `json:"status"`
	ThemeID         string `json:"themeId"`
	TimeRemaining   int    `json:"timeRemaining"`
	StageRemaining  int    `json:"stageRemaining"`
	Score           int    `json:"score"`
	WinTarget       int    `json:"winTarget"`
	FeedbackMessage string `json:"feedbackMessage,omitempty"`
}

// FeedbackRequest is produced when a round ends. The result must be handed
// back through ApplyFeedback with the same RoundID.
type FeedbackRequest struct {
	RoundID string
	feedback.Request
}

// Option configures a Machine.
type Option func(*Machine)

// WithRand sets the source of per-round randomness.
func WithRand(newRand func() field.Rand) Option {
	return func(m *Machine) { m.newRand = newRand }
}

// WithCatalog sets the theme catalog.
func WithCatalog(c Catalog) Option {
	return func(m *Machine) { m.catalog = c }
}

// WithIDs overrides round id and entity nonce generation.
func WithIDs(roundID, nonce func() string) Option {
	return func(m *Machine) {
		m.newRoundID = roundID
		m.newNonce = nonce
	}
}

// Machine is the round state machine. It is not safe for concurrent use: the
// owner serializes every call, which gives taps and ticks run-to-completion
// semantics.
type Machine struct {
	cfg        Config
	catalog    Catalog
	newRand    func() field.Rand
	newRoundID func() string
	newNonce   func() string

	round   Round
	theme   Theme
	stage   int
	rng     field.Rand
	gen     *field.Generator
	reg     *registry.Registry
	mask    *reveal.Mask
	pending *FeedbackRequest

	width, height float64
	device        field.DeviceClass
}

// New creates an idle machine. cfg must pass Validate.
func New(cfg Config, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Machine{
		cfg:     cfg,
		catalog: staticCatalog{},
		newRand: func() field.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		newRoundID: uuid.NewString,
		newNonce:   field.NewNonce,
		reg:        registry.New(),
		width:      DefaultViewportWidth,
		height:     DefaultViewportHeight,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.device = field.Classify(m.width, cfg.Breakpoints)
	m.mask = reveal.NewMask(int(m.width), int(m.height), cfg.MaskFalloff)
	m.theme = m.catalog.Default()
	m.round = Round{Status: StatusIdle, ThemeID: m.theme.ID, TimeRemaining: cfg.DurationSeconds, WinTarget: cfg.Target()}
	return m, nil
}

// Config returns the machine's configuration.
func (m *Machine) Config() Config {
	return m.cfg
}

// Round returns a copy of the round state.
func (m *Machine) Round() Round {
	return m.round
}

// Status returns the current status.
func (m *Machine) Status() Status {
	return m.round.Status
}

// Theme returns the theme of the current or next round.
func (m *Machine) Theme() Theme {
	return m.theme
}

// Entities returns the live entities in insertion order.
func (m *Machine) Entities() []field.Entity {
	return m.reg.Entities()
}

// Remaining returns the number of live entities.
func (m *Machine) Remaining() int {
	return m.reg.Len()
}

// Mask returns the punch mask. Callers must hold the same serialization as
// for every other call.
func (m *Machine) Mask() *reveal.Mask {
	return m.mask
}

// Levels returns the score-driven reveal levels.
func (m *Machine) Levels() reveal.Levels {
	return reveal.ScoreReveal(m.round.Score, m.round.WinTarget)
}

// Viewport returns the current viewport and its device class.
func (m *Machine) Viewport() (float64, float64, field.DeviceClass) {
	return m.width, m.height, m.device
}

// OpenThemes moves from Idle to theme selection.
func (m *Machine) OpenThemes() ([]Event, error) {
	if m.round.Status != StatusIdle {
		return nil, m.invalid("open themes")
	}
	return m.setStatus(StatusSelectTheme), nil
}

// SelectTheme picks a theme and starts the round. Valid from Idle and
// theme selection.
func (m *Machine) SelectTheme(id string) ([]Event, error) {
	if m.round.Status != StatusIdle && m.round.Status != StatusSelectTheme {
		return nil, m.invalid("select theme")
	}
	t, ok := m.catalog.Theme(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTheme, id)
	}
	m.theme = t
	return m.begin(), nil
}

// Start begins a round from Idle or theme selection.
func (m *Machine) Start() ([]Event, error) {
	if m.round.Status != StatusIdle && m.round.Status != StatusSelectTheme {
		return nil, m.invalid("start")
	}
	return m.begin(), nil
}

// Restart abandons the current round and begins a fresh one.
func (m *Machine) Restart() ([]Event, error) {
	if m.round.Status == StatusIdle {
		return nil, m.invalid("restart")
	}
	return m.begin(), nil
}

// Quit abandons the current round and returns to Idle.
func (m *Machine) Quit() ([]Event, error) {
	if m.round.Status == StatusIdle {
		return nil, m.invalid("quit")
	}
	m.reg.Clear()
	m.mask.Reset()
	m.pending = nil
	m.gen = nil
	m.stage = 0
	m.round = Round{
		ThemeID:       m.theme.ID,
		TimeRemaining: m.cfg.DurationSeconds,
		WinTarget:     m.cfg.Target(),
	}
	return m.setStatus(StatusIdle), nil
}

func (m *Machine) begin() []Event {
	m.rng = m.newRand()
	m.gen = field.NewGenerator(m.cfg.fieldOptions(m.theme), m.rng, m.newNonce())
	m.pending = nil
	m.round = Round{
		ID:            m.newRoundID(),
		ThemeID:       m.theme.ID,
		TimeRemaining: m.cfg.DurationSeconds,
		WinTarget:     m.cfg.Target(),
	}
	entities := m.gen.Generate(m.cfg.InitialCount, m.width, m.height, m.device)
	// Replace forgets the previous round's retired ids; fresh nonces keep
	// the new ids apart from them.
	_ = m.reg.Replace(entities)
	m.mask.Reset()

	events := m.setStatus(StatusSpawning)
	events = append(events, Event{Kind: EventField, Value: m.reg.Len()})
	m.stage = m.cfg.SpawnDelaySeconds
	m.round.StageRemaining = m.stage
	if m.stage == 0 {
		events = append(events, m.afterSpawn()...)
	}
	return events
}

func (m *Machine) afterSpawn() []Event {
	if m.cfg.CountdownSeconds > 0 {
		m.stage = m.cfg.CountdownSeconds
		m.round.StageRemaining = m.stage
		events := m.setStatus(StatusCountdown)
		return append(events, Event{Kind: EventCountdown, Value: m.stage})
	}
	return m.play()
}

func (m *Machine) play() []Event {
	m.stage = 0
	m.round.StageRemaining = 0
	return m.setStatus(StatusPlaying)
}

// Tick advances the one-second clock. Outside active stages it does nothing.
func (m *Machine) Tick() []Event {
	switch m.round.Status {
	case StatusSpawning:
		m.stage--
		m.round.StageRemaining = max(m.stage, 0)
		if m.stage <= 0 {
			return m.afterSpawn()
		}
	case StatusCountdown:
		m.stage--
		m.round.StageRemaining = max(m.stage, 0)
		if m.stage > 0 {
			return []Event{{Kind: EventCountdown, Value: m.stage}}
		}
		events := []Event{{Kind: EventGo}}
		return append(events, m.play()...)
	case StatusPlaying:
		m.round.TimeRemaining--
		if m.round.TimeRemaining <= 0 {
			m.round.TimeRemaining = 0
			events := []Event{{Kind: EventTick, Value: 0}}
			return append(events, m.finish(StatusLost)...)
		}
		return []Event{{Kind: EventTick, Value: m.round.TimeRemaining}}
	case StatusViewing:
		m.stage--
		m.round.StageRemaining = max(m.stage, 0)
		if m.stage <= 0 {
			return m.finish(StatusWon)
		}
		return []Event{{Kind: EventTick, Value: m.stage}}
	}
	return nil
}

// SkipViewing ends the victory lap early.
func (m *Machine) SkipViewing() ([]Event, error) {
	if m.round.Status != StatusViewing {
		return nil, m.invalid("skip viewing")
	}
	m.stage = 0
	m.round.StageRemaining = 0
	return m.finish(StatusWon), nil
}

// TakeFeedbackRequest returns the request produced by the last transition
// into Won or Lost, at most once.
func (m *Machine) TakeFeedbackRequest() (FeedbackRequest, bool) {
	if m.pending == nil {
		return FeedbackRequest{}, false
	}
	req := *m.pending
	m.pending = nil
	return req, true
}

// ApplyFeedback stores msg if the round that asked for it is still the
// current one and still in the terminal state that triggered it.
func (m *Machine) ApplyFeedback(roundID string, outcome feedback.Outcome, msg string) bool {
	if roundID == "" || roundID != m.round.ID {
		return false
	}
	if m.round.Status != outcomeStatus(outcome) {
		return false
	}
	m.round.FeedbackMessage = msg
	return true
}

// Resize records a new viewport. During an active round the mask keeps its
// holes at the same surface position; otherwise it starts over opaque.
// Entity positions are relative and need no change.
func (m *Machine) Resize(width, height float64) {
	width, height = field.ClampViewport(width), field.ClampViewport(height)
	m.width, m.height = width, height
	m.device = field.Classify(width, m.cfg.Breakpoints)
	keep := m.round.Status.Active() || m.round.Status.Terminal()
	m.mask.Resize(int(width), int(height), keep)
}

func (m *Machine) finish(s Status) []Event {
	m.stage = 0
	m.round.StageRemaining = 0
	events := m.setStatus(s)
	outcome := feedback.Lost
	if s == StatusWon {
		outcome = feedback.Won
	}
	m.pending = &FeedbackRequest{
		RoundID: m.round.ID,
		Request: feedback.Request{
			Outcome: outcome,
			Score:   m.round.Score,
			Target:  m.round.WinTarget,
			Prompt:  feedback.Prompt(outcome, m.round.Score, m.round.WinTarget, m.theme.WonPrompt, m.theme.LostPrompt),
		},
	}
	return events
}

func (m *Machine) setStatus(s Status) []Event {
	m.round.Status = s
	return []Event{{Kind: EventStatus, Status: s}}
}

func (m *Machine) invalid(action string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, m.round.Status)
}

func outcomeStatus(o feedback.Outcome) Status {
	if o == feedback.Won {
		return StatusWon
	}
	return StatusLost
}
