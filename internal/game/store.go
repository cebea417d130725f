package game

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"popreveal/internal/feedback"
	"popreveal/internal/round"
	"popreveal/pkg/realtime"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidViewport is returned for a viewport size that is NaN or infinite.
var ErrInvalidViewport = errors.New("invalid viewport")

// DefaultFeedbackTimeout bounds one collaborator call.
const DefaultFeedbackTimeout = 5 * time.Second

// Options configure a Store.
type Options struct {
	Round           round.Config
	Catalog         *Catalog
	Collaborator    feedback.Collaborator
	FeedbackTimeout time.Duration
	Logger          *zap.Logger
	// Period is the length of one game second. Tests shorten it.
	Period time.Duration
	// MachineOptions are passed to every new round machine.
	MachineOptions []round.Option
}

// Store holds sessions and delegates to realtime.RoomStore for lookup,
// broadcast and the per-session tick loop.
type Store struct {
	r    *realtime.RoomStore[*Session]
	opts Options
	log  *zap.Logger
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// closeMu orders wg.Add against Close's wg.Wait.
	closeMu sync.Mutex
	closed  bool
}

// NewStore creates an in-memory session store.
func NewStore(opts Options) (*Store, error) {
	if err := opts.Round.Validate(); err != nil {
		return nil, err
	}
	if opts.Catalog == nil {
		c, err := EmbeddedCatalog(round.DefaultTheme.ID)
		if err != nil {
			return nil, err
		}
		opts.Catalog = c
	}
	if opts.Collaborator == nil {
		opts.Collaborator = feedback.Static{}
	}
	if opts.FeedbackTimeout <= 0 {
		opts.FeedbackTimeout = DefaultFeedbackTimeout
	}
	if opts.Period <= 0 {
		opts.Period = realtime.DefaultPeriod
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		r:      realtime.NewRoomStore[*Session](),
		opts:   opts,
		log:    log.Named("game"),
		now:    func() time.Time { return time.Now().UTC() },
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Catalog returns the theme catalog sessions draw from.
func (s *Store) Catalog() *Catalog {
	return s.opts.Catalog
}

// CreateSession starts an idle session with its own machine and broadcaster.
func (s *Store) CreateSession() (*Session, error) {
	mopts := append([]round.Option{round.WithCatalog(s.opts.Catalog)}, s.opts.MachineOptions...)
	m, err := round.New(s.opts.Round, mopts...)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		machine:   m,
		clock:     realtime.Metronome{Period: s.opts.Period},
		lastSeen:  now,
	}
	s.r.Create(sess.ID, sess)
	s.log.Info("session created", zap.String("session", sess.ID))
	return sess, nil
}

// Session returns a session by id.
func (s *Store) Session(id string) (*Session, bool) {
	room, ok := s.r.Get(id)
	if !ok {
		return nil, false
	}
	return room.State, true
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	return s.r.Len()
}

// Broadcaster returns the event broadcaster for a session.
func (s *Store) Broadcaster(id string) (*realtime.Broadcaster, bool) {
	return s.r.Broadcaster(id)
}

// OpenThemes moves an idle session to theme selection.
func (s *Store) OpenThemes(id string) error {
	return s.do(id, (*round.Machine).OpenThemes)
}

// Start begins a round with the current theme.
func (s *Store) Start(id string) error {
	return s.do(id, (*round.Machine).Start)
}

// SelectTheme begins a round with the named theme.
func (s *Store) SelectTheme(id, themeID string) error {
	return s.do(id, func(m *round.Machine) ([]round.Event, error) {
		return m.SelectTheme(themeID)
	})
}

// Restart abandons the running round and begins a fresh one.
func (s *Store) Restart(id string) error {
	return s.do(id, (*round.Machine).Restart)
}

// Quit abandons the running round and returns to idle.
func (s *Store) Quit(id string) error {
	return s.do(id, (*round.Machine).Quit)
}

// SkipViewing ends the victory lap early.
func (s *Store) SkipViewing(id string) error {
	return s.do(id, (*round.Machine).SkipViewing)
}

// Resize records the shell's viewport.
func (s *Store) Resize(id string, width, height float64) error {
	if !finite(width) || !finite(height) {
		return ErrInvalidViewport
	}
	return s.do(id, func(m *round.Machine) ([]round.Event, error) {
		m.Resize(width, height)
		return []round.Event{{Kind: round.EventMask}}, nil
	})
}

// Pop handles a tap on entityID. Taps on unknown or already popped ids
// return a result with Removed false.
func (s *Store) Pop(id, entityID string) (round.TapResult, error) {
	var res round.TapResult
	err := s.do(id, func(m *round.Machine) ([]round.Event, error) {
		res = m.HandleEntityClick(entityID)
		return res.Events, nil
	})
	return res, err
}

// Snapshot returns a consistent view of a session.
func (s *Store) Snapshot(id string) (Snapshot, error) {
	sess, ok := s.Session(id)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastSeen = s.now()
	return sess.snapshotLocked(), nil
}

// MaskPNG encodes the session's reveal mask at the given width and returns
// its revision for cache validation.
func (s *Store) MaskPNG(id string, width int) ([]byte, uint64, error) {
	sess, ok := s.Session(id)
	if !ok {
		return nil, 0, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	mask := sess.machine.Mask()
	var buf bytes.Buffer
	if err := mask.EncodePNG(&buf, width); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), mask.Revision(), nil
}

// do runs op under the session lock, then publishes what changed and keeps
// the tick loop and feedback call in step with the machine's status.
func (s *Store) do(id string, op func(*round.Machine) ([]round.Event, error)) error {
	sess, ok := s.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.mu.Lock()
	before := sess.machine.Round().ID
	events, err := op(sess.machine)
	if err != nil {
		sess.mu.Unlock()
		return err
	}
	now := s.now()
	sess.lastSeen = now
	cur := sess.machine.Round()
	fresh := cur.ID != before || cur.Status == round.StatusIdle
	if fresh {
		sess.cancelFeedbackLocked()
	}
	startLoop, wake := false, false
	switch {
	case cur.Status.Active() && (fresh || !sess.clock.Running()):
		sess.clock.Start(now)
		if sess.looping {
			wake = true
		} else {
			sess.looping = true
			startLoop = true
		}
	case !cur.Status.Active() && sess.clock.Running():
		sess.clock.Stop()
		wake = true
	}
	s.startFeedbackLocked(sess)
	out := sess.eventsLocked(events)
	sess.mu.Unlock()

	if fresh && cur.ID != before {
		s.log.Info("round started",
			zap.String("session", id),
			zap.String("round", cur.ID),
			zap.String("theme", cur.ThemeID),
			zap.Int("target", cur.WinTarget))
	}
	s.r.Publish(id, out...)
	if startLoop {
		s.runLoop(sess)
	} else if wake {
		s.r.Wake(id)
	}
	return nil
}

// runLoop starts the session's tick loop. Any loop still registered has
// already decided to exit, so StopLoop only waits for it.
func (s *Store) runLoop(sess *Session) {
	s.r.StopLoop(sess.ID)
	getState := func() *Session { return sess }
	s.r.RunLoop(sess.ID, getState, s.tick)
}

func (s *Store) tick(sess *Session, now time.Time) (time.Time, []realtime.Event, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	var events []round.Event
	for n := sess.clock.Due(now); n > 0; n-- {
		events = append(events, sess.machine.Tick()...)
		if !sess.machine.Status().Active() {
			break
		}
	}
	s.startFeedbackLocked(sess)
	out := sess.eventsLocked(events)
	if round.HasKind(events, round.EventStatus) && sess.machine.Status().Terminal() {
		r := sess.machine.Round()
		s.log.Info("round finished",
			zap.String("session", sess.ID),
			zap.String("round", r.ID),
			zap.String("status", string(r.Status)),
			zap.Int("score", r.Score))
	}
	next, ok := sess.clock.NextWake(now)
	if !ok || !sess.machine.Status().Active() {
		sess.clock.Stop()
		sess.looping = false
		return time.Time{}, out, true
	}
	return next, out, false
}

// startFeedbackLocked launches the collaborator call for a round that just
// ended. The answer is applied only if the session is still on that round.
func (s *Store) startFeedbackLocked(sess *Session) {
	req, ok := sess.machine.TakeFeedbackRequest()
	if !ok {
		return
	}
	sess.cancelFeedbackLocked()
	if !s.track() {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.FeedbackTimeout)
	sess.cancelFeedback = cancel

	go func() {
		defer s.wg.Done()
		defer cancel()
		msg, err := feedback.Resolve(ctx, s.opts.Collaborator, req.Request)
		if err != nil {
			level := zap.WarnLevel
			if errors.Is(err, context.Canceled) {
				level = zap.DebugLevel
			}
			s.log.Check(level, "feedback unavailable, using fallback").Write(
				zap.String("session", sess.ID),
				zap.String("round", req.RoundID),
				zap.Error(err))
		}
		sess.mu.Lock()
		applied := sess.machine.ApplyFeedback(req.RoundID, req.Outcome, msg)
		var out []realtime.Event
		if applied {
			out = sess.eventsLocked([]round.Event{{Kind: round.EventFeedback}})
		}
		sess.mu.Unlock()
		if applied {
			s.r.Publish(sess.ID, out...)
		}
	}()
}

// track registers a background call with the store. It reports false once
// Close has begun.
func (s *Store) track() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

// Delete stops a session's loop and feedback call and forgets it.
func (s *Store) Delete(id string) {
	sess, ok := s.Session(id)
	if !ok {
		return
	}
	s.r.Delete(id)
	sess.mu.Lock()
	sess.cancelFeedbackLocked()
	sess.mu.Unlock()
	s.log.Info("session deleted", zap.String("session", id))
}

// Sweep deletes sessions untouched for longer than maxIdle and without
// subscribers, and returns how many it removed.
func (s *Store) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	var stale []string
	s.r.Range(func(room *realtime.Room[*Session]) bool {
		sess := room.State
		sess.mu.Lock()
		idle := sess.lastSeen.Before(cutoff)
		sess.mu.Unlock()
		if hub, ok := s.r.Broadcaster(room.ID); idle && ok && hub.Subscribers() == 0 {
			stale = append(stale, room.ID)
		}
		return true
	})
	for _, id := range stale {
		s.Delete(id)
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(maxIdle); n > 0 {
				s.log.Debug("swept idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Close stops every session and waits for in-flight feedback calls.
func (s *Store) Close() {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()

	var ids []string
	s.r.Range(func(room *realtime.Room[*Session]) bool {
		ids = append(ids, room.ID)
		return true
	})
	for _, id := range ids {
		s.Delete(id)
	}
	s.cancel()
	s.wg.Wait()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
