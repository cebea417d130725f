package round

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popreveal/internal/feedback"
	"popreveal/internal/field"
)

func testConfig(count, duration int) Config {
	cfg := DefaultConfig()
	cfg.InitialCount = count
	cfg.DurationSeconds = duration
	return cfg
}

func newTestMachine(t *testing.T, cfg Config, opts ...Option) *Machine {
	t.Helper()
	seed := int64(0)
	rounds, nonces := 0, 0
	base := []Option{
		WithRand(func() field.Rand {
			seed++
			return rand.New(rand.NewSource(seed))
		}),
		WithIDs(
			func() string {
				rounds++
				return fmt.Sprintf("round-%d", rounds)
			},
			func() string {
				nonces++
				return fmt.Sprintf("n%d", nonces)
			},
		),
	}
	m, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return m
}

func ids(entities []field.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.ID)
	}
	return out
}

func TestScenario_ClearFiveEntities(t *testing.T) {
	m := newTestMachine(t, testConfig(5, 60))
	_, err := m.Start()
	require.NoError(t, err)
	require.Equal(t, StatusPlaying, m.Status())
	require.Equal(t, 5, m.Round().WinTarget)

	all := ids(m.Entities())
	require.Len(t, all, 5)
	for i, id := range all {
		res := m.HandleEntityClick(id)
		require.True(t, res.Removed)
		assert.Equal(t, i+1, res.Score)
		if i < 4 {
			assert.Equal(t, StatusPlaying, m.Status(), "tap %d", i)
		}
	}
	r := m.Round()
	assert.Equal(t, 5, r.Score)
	assert.Equal(t, StatusWon, r.Status)
	assert.Equal(t, 60, r.TimeRemaining)

	req, ok := m.TakeFeedbackRequest()
	require.True(t, ok)
	assert.Equal(t, feedback.Won, req.Outcome)
	assert.Equal(t, "round-1", req.RoundID)
	assert.Equal(t, 5, req.Score)
	_, ok = m.TakeFeedbackRequest()
	assert.False(t, ok)
}

func TestScenario_TimerExpires(t *testing.T) {
	m := newTestMachine(t, testConfig(20, 3))
	_, err := m.Start()
	require.NoError(t, err)

	m.Tick()
	m.Tick()
	assert.Equal(t, StatusPlaying, m.Status())
	assert.Equal(t, 1, m.Round().TimeRemaining)

	events := m.Tick()
	assert.True(t, HasKind(events, EventStatus))
	r := m.Round()
	assert.Equal(t, StatusLost, r.Status)
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, 0, r.TimeRemaining)

	req, ok := m.TakeFeedbackRequest()
	require.True(t, ok)
	assert.Equal(t, feedback.Lost, req.Outcome)

	assert.Nil(t, m.Tick(), "ticks after loss do nothing")
	assert.Equal(t, 0, m.Round().TimeRemaining)
}

func TestTimerTermination(t *testing.T) {
	const duration = 60
	m := newTestMachine(t, testConfig(50, duration))
	_, err := m.Start()
	require.NoError(t, err)
	for i := 1; i < duration; i++ {
		m.Tick()
		require.Equal(t, StatusPlaying, m.Status(), "tick %d", i)
	}
	m.Tick()
	assert.Equal(t, StatusLost, m.Status())
}

func TestTimerExpiresNearWin(t *testing.T) {
	m := newTestMachine(t, testConfig(3, 2))
	_, _ = m.Start()
	all := ids(m.Entities())
	m.HandleEntityClick(all[0])
	m.HandleEntityClick(all[1])
	m.Tick()
	m.Tick()
	assert.Equal(t, StatusLost, m.Status())
	assert.Equal(t, 2, m.Round().Score)
}

func TestHandleEntityClick_Idempotent(t *testing.T) {
	m := newTestMachine(t, testConfig(10, 60))
	_, _ = m.Start()
	id := m.Entities()[3].ID

	first := m.HandleEntityClick(id)
	second := m.HandleEntityClick(id)
	assert.True(t, first.Removed)
	assert.False(t, second.Removed)
	assert.Equal(t, 0, second.ScoreDelta)
	assert.Equal(t, 1, m.Round().Score)
	assert.Equal(t, 9, m.Remaining())

	unknown := m.HandleEntityClick("nope")
	assert.False(t, unknown.Removed)
	assert.Equal(t, 1, unknown.Score)
}

func TestHandleEntityClick_IgnoredOutsidePlaying(t *testing.T) {
	cfg := testConfig(5, 60)
	cfg.SpawnDelaySeconds = 1
	cfg.CountdownSeconds = 1
	m := newTestMachine(t, cfg)

	assert.False(t, m.HandleEntityClick("x").Removed, "idle")

	_, _ = m.Start()
	require.Equal(t, StatusSpawning, m.Status())
	id := m.Entities()[0].ID
	assert.False(t, m.HandleEntityClick(id).Removed, "spawning")

	m.Tick()
	require.Equal(t, StatusCountdown, m.Status())
	assert.False(t, m.HandleEntityClick(id).Removed, "countdown")

	m.Tick()
	require.Equal(t, StatusPlaying, m.Status())
	assert.True(t, m.HandleEntityClick(id).Removed)
	assert.Equal(t, 1, m.Round().Score)

	for i := 0; i < 60; i++ {
		m.Tick()
	}
	require.Equal(t, StatusLost, m.Status())
	assert.False(t, m.HandleEntityClick(m.Entities()[0].ID).Removed, "lost")
	assert.Equal(t, 1, m.Round().Score)
}

func TestCountdown(t *testing.T) {
	cfg := testConfig(5, 30)
	cfg.CountdownSeconds = 3
	m := newTestMachine(t, cfg)

	events, err := m.Start()
	require.NoError(t, err)
	assert.Equal(t, []Event{
		{Kind: EventStatus, Status: StatusSpawning},
		{Kind: EventField, Value: 5},
		{Kind: EventStatus, Status: StatusCountdown},
		{Kind: EventCountdown, Value: 3},
	}, events)

	assert.Equal(t, []Event{{Kind: EventCountdown, Value: 2}}, m.Tick())
	assert.Equal(t, []Event{{Kind: EventCountdown, Value: 1}}, m.Tick())
	assert.Equal(t, []Event{{Kind: EventGo}, {Kind: EventStatus, Status: StatusPlaying}}, m.Tick())
	assert.Equal(t, 30, m.Round().TimeRemaining)

	m.Tick()
	assert.Equal(t, 29, m.Round().TimeRemaining)
}

func TestSpawningDelay(t *testing.T) {
	cfg := testConfig(5, 30)
	cfg.SpawnDelaySeconds = 2
	m := newTestMachine(t, cfg)
	_, _ = m.Start()
	assert.Equal(t, StatusSpawning, m.Status())
	assert.Equal(t, 2, m.Round().StageRemaining)
	m.Tick()
	assert.Equal(t, StatusSpawning, m.Status())
	m.Tick()
	assert.Equal(t, StatusPlaying, m.Status())
	assert.Equal(t, 30, m.Round().TimeRemaining)
}

func TestViewing(t *testing.T) {
	cfg := testConfig(2, 30)
	cfg.ViewingSeconds = 2
	m := newTestMachine(t, cfg)
	_, _ = m.Start()
	for _, id := range ids(m.Entities()) {
		m.HandleEntityClick(id)
	}
	require.Equal(t, StatusViewing, m.Status())
	_, ok := m.TakeFeedbackRequest()
	assert.False(t, ok, "feedback waits for Won")

	m.Tick()
	assert.Equal(t, StatusViewing, m.Status())
	assert.Equal(t, 30, m.Round().TimeRemaining)
	m.Tick()
	assert.Equal(t, StatusWon, m.Status())
	_, ok = m.TakeFeedbackRequest()
	assert.True(t, ok)
}

func TestSkipViewing(t *testing.T) {
	cfg := testConfig(1, 30)
	cfg.ViewingSeconds = 10
	m := newTestMachine(t, cfg)
	_, _ = m.Start()
	m.HandleEntityClick(m.Entities()[0].ID)
	require.Equal(t, StatusViewing, m.Status())

	_, err := m.SkipViewing()
	require.NoError(t, err)
	assert.Equal(t, StatusWon, m.Status())
	_, err = m.SkipViewing()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRestart_FreshField(t *testing.T) {
	m := newTestMachine(t, testConfig(30, 60))
	_, _ = m.Start()
	old := ids(m.Entities())
	m.HandleEntityClick(old[0])
	m.HandleEntityClick(old[1])
	m.Tick()
	firstRound := m.Round().ID

	_, err := m.Restart()
	require.NoError(t, err)
	r := m.Round()
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, 60, r.TimeRemaining)
	assert.Equal(t, StatusPlaying, r.Status)
	assert.NotEqual(t, firstRound, r.ID)

	fresh := ids(m.Entities())
	require.Len(t, fresh, 30)
	for _, id := range fresh {
		assert.NotContains(t, old, id)
	}
	assert.False(t, m.HandleEntityClick(old[5]).Removed, "stale id from the previous round")
}

func TestQuit(t *testing.T) {
	m := newTestMachine(t, testConfig(10, 60))
	_, err := m.Quit()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = m.Restart()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, _ = m.Start()
	_, err = m.Quit()
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, m.Status())
	assert.Zero(t, m.Remaining())
	assert.Nil(t, m.Tick())

	_, err = m.Start()
	assert.NoError(t, err)
	_, err = m.Start()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplyFeedback_Gating(t *testing.T) {
	m := newTestMachine(t, testConfig(10, 1))
	_, _ = m.Start()
	m.Tick()
	req, ok := m.TakeFeedbackRequest()
	require.True(t, ok)

	assert.False(t, m.ApplyFeedback(req.RoundID, feedback.Won, "wrong outcome"))
	assert.True(t, m.ApplyFeedback(req.RoundID, req.Outcome, "so close"))
	assert.Equal(t, "so close", m.Round().FeedbackMessage)

	_, _ = m.Restart()
	assert.Empty(t, m.Round().FeedbackMessage)
	assert.False(t, m.ApplyFeedback(req.RoundID, req.Outcome, "stale"))
	m.Tick()
	assert.Equal(t, StatusLost, m.Status())
	assert.False(t, m.ApplyFeedback(req.RoundID, req.Outcome, "stale"), "old round id on a new terminal round")
	assert.Empty(t, m.Round().FeedbackMessage)

	_, _ = m.Quit()
	assert.False(t, m.ApplyFeedback("", feedback.Lost, "idle"))
}

func TestCountMode_Replenishes(t *testing.T) {
	cfg := testConfig(10, 120)
	cfg.WinMode = WinCount
	cfg.WinTarget = 40
	cfg.MinOnField = 6
	m := newTestMachine(t, cfg)
	_, _ = m.Start()
	require.Equal(t, 40, m.Round().WinTarget)

	seen := map[string]bool{}
	for _, id := range ids(m.Entities()) {
		seen[id] = true
	}
	for i := 1; i <= 40; i++ {
		require.False(t, m.Remaining() == 0, "board emptied at pop %d", i)
		res := m.HandleEntityClick(m.Entities()[0].ID)
		require.True(t, res.Removed)
		assert.LessOrEqual(t, len(res.Replenished), maxReplacements)
		for _, e := range res.Replenished {
			require.False(t, seen[e.ID], "reused id %s", e.ID)
			seen[e.ID] = true
		}
		if i < 40 {
			require.Equal(t, StatusPlaying, m.Status(), "pop %d", i)
			require.GreaterOrEqual(t, m.Remaining(), cfg.MinOnField, "pop %d", i)
		}
	}
	assert.Equal(t, StatusWon, m.Status())
	assert.Equal(t, 40, m.Round().Score)
}

func TestMaskReveal(t *testing.T) {
	cfg := testConfig(40, 60)
	cfg.Reveal = RevealMask
	m := newTestMachine(t, cfg)
	m.Resize(400, 300)
	_, _ = m.Start()

	prev := m.Mask().ClearedFraction()
	require.Zero(t, prev)
	for _, id := range ids(m.Entities())[:20] {
		res := m.HandleEntityClick(id)
		require.NotNil(t, res.Punch)
		assert.True(t, HasKind(res.Events, EventMask))
		cur := m.Mask().ClearedFraction()
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Positive(t, prev)
	assert.Len(t, m.Mask().Punches(), 20)

	m.Resize(800, 600)
	assert.Len(t, m.Mask().Punches(), 20, "mid-round resize keeps holes")
	w, h := m.Mask().Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	_, _ = m.Restart()
	assert.Zero(t, m.Mask().ClearedFraction())
	assert.Empty(t, m.Mask().Punches())
}

func TestScoreReveal_NoPunch(t *testing.T) {
	m := newTestMachine(t, testConfig(4, 60))
	_, _ = m.Start()
	res := m.HandleEntityClick(m.Entities()[0].ID)
	assert.Nil(t, res.Punch)
	assert.Len(t, res.Particles, DefaultConfig().BurstSize)
	assert.InDelta(t, 0.25, m.Levels().Fraction, 1e-9)
}

func TestResize_IdleResetsMask(t *testing.T) {
	cfg := testConfig(4, 60)
	cfg.Reveal = RevealMask
	m := newTestMachine(t, cfg)
	m.Resize(0, 0)
	w, h, dev := m.Viewport()
	assert.Equal(t, 1.0, w)
	assert.Equal(t, 1.0, h)
	assert.Equal(t, field.Mobile, dev)

	m.Resize(1400, 900)
	_, _, dev = m.Viewport()
	assert.Equal(t, field.Desktop, dev)
	assert.Empty(t, m.Mask().Punches())
}

func TestResize_NonFiniteViewport(t *testing.T) {
	cases := []struct {
		name          string
		width, height float64
		wantW, wantH  float64
	}{
		{"NaN", math.NaN(), math.NaN(), 1, 1},
		{"positive infinity", math.Inf(1), math.Inf(1), field.MaxViewport, field.MaxViewport},
		{"negative infinity", math.Inf(-1), math.Inf(-1), 1, 1},
		{"huge", 1e300, 1e300, field.MaxViewport, field.MaxViewport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(8, 60)
			cfg.Reveal = RevealMask
			m := newTestMachine(t, cfg)
			m.Resize(tc.width, tc.height)
			w, h, _ := m.Viewport()
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
			mw, mh := m.Mask().Size()
			assert.GreaterOrEqual(t, mw, 1)
			assert.GreaterOrEqual(t, mh, 1)

			_, err := m.Start()
			require.NoError(t, err)
			for _, e := range m.Entities() {
				assert.False(t, math.IsNaN(e.X) || math.IsNaN(e.Y), "entity %s", e.ID)
				assert.InDelta(t, 50, e.X, 50)
				assert.InDelta(t, 50, e.Y, 50)
			}
			_, err = json.Marshal(m.Entities())
			require.NoError(t, err)
			_, err = json.Marshal(m.Levels())
			require.NoError(t, err)
		})
	}
}

func TestScoreMonotonic(t *testing.T) {
	m := newTestMachine(t, testConfig(200, 60))
	_, _ = m.Start()
	rng := rand.New(rand.NewSource(4))
	all := ids(m.Entities())
	prev := 0
	for i := 0; i < 400 && m.Status() == StatusPlaying; i++ {
		if rng.Intn(10) == 0 {
			m.Tick()
		}
		m.HandleEntityClick(all[rng.Intn(len(all))])
		s := m.Round().Score
		require.GreaterOrEqual(t, s, prev)
		require.LessOrEqual(t, s-prev, 1)
		prev = s
	}
}

type fakeCatalog map[string]Theme

func (c fakeCatalog) Theme(id string) (Theme, bool) {
	t, ok := c[id]
	return t, ok
}

func (c fakeCatalog) Default() Theme {
	return c["orchard"]
}

func TestSelectTheme(t *testing.T) {
	catalog := fakeCatalog{
		"orchard": DefaultTheme,
		"garden": {
			ID:       "garden",
			Variants: []Variant{{Name: "red", Color: "#f00"}, {Name: "green", Color: "#0f0"}},
		},
	}
	cfg := testConfig(200, 60)
	cfg.ExactSplit = true
	m := newTestMachine(t, cfg, WithCatalog(catalog))
	assert.Equal(t, "orchard", m.Round().ThemeID)

	_, err := m.OpenThemes()
	require.NoError(t, err)
	assert.Equal(t, StatusSelectTheme, m.Status())

	_, err = m.SelectTheme("moon")
	assert.ErrorIs(t, err, ErrUnknownTheme)
	assert.Equal(t, StatusSelectTheme, m.Status())

	_, err = m.SelectTheme("garden")
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, m.Status())
	assert.Equal(t, "garden", m.Round().ThemeID)

	counts := map[string]int{}
	for _, e := range m.Entities() {
		counts[e.Variant]++
	}
	assert.Equal(t, map[string]int{"red": 100, "green": 100}, counts)

	_, err = m.OpenThemes()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		edit func(*Config)
		ok   bool
	}{
		{"default", func(*Config) {}, true},
		{"zero duration", func(c *Config) { c.DurationSeconds = 0 }, false},
		{"no entities", func(c *Config) { c.InitialCount = 0 }, false},
		{"clear with matching target", func(c *Config) { c.WinTarget = c.InitialCount }, true},
		{"clear with other target", func(c *Config) { c.WinTarget = 10 }, false},
		{"clear with replenish", func(c *Config) { c.MinOnField = 10 }, false},
		{"count mode", func(c *Config) { c.WinMode = WinCount; c.WinTarget = 600; c.MinOnField = 50 }, true},
		{"count without target", func(c *Config) { c.WinMode = WinCount; c.MinOnField = 50 }, false},
		{"count without density", func(c *Config) { c.WinMode = WinCount; c.WinTarget = 10 }, false},
		{"unknown mode", func(c *Config) { c.WinMode = "both" }, false},
		{"unknown reveal", func(c *Config) { c.Reveal = "wipe" }, false},
		{"unknown layout", func(c *Config) { c.Layout = "spiral" }, false},
		{"negative countdown", func(c *Config) { c.CountdownSeconds = -1 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.edit(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
