package round

import (
	"popreveal/internal/field"
	"popreveal/internal/reveal"
)

// TapResult describes everything a tap changed, in the order the shell
// should apply it. A zero Removed means the tap was a no-op.
type TapResult struct {
	EntityID    string           `json:"entityId"`
	Removed     bool             `json:"removed"`
	ScoreDelta  int              `json:"scoreDelta"`
	Score       int              `json:"score"`
	Punch       *reveal.Punch    `json:"punch,omitempty"`
	Particles   []field.Particle `json:"particles,omitempty"`
	Replenished []field.Entity   `json:"replenished,omitempty"`
	Events      []Event          `json:"events,omitempty"`
}

// maxReplacements bounds how many entities one pop may spawn.
const maxReplacements = 2

// HandleEntityClick pops the entity with id. Taps outside Playing, and taps
// on ids that are no longer live, change nothing.
func (m *Machine) HandleEntityClick(id string) TapResult {
	res := TapResult{EntityID: id, Score: m.round.Score}
	if m.round.Status != StatusPlaying {
		return res
	}
	e, err := m.reg.Remove(id)
	if err != nil {
		return res
	}

	m.round.Score++
	res.Removed = true
	res.ScoreDelta = 1
	res.Score = m.round.Score
	res.Events = append(res.Events, Event{Kind: EventScore, Value: m.round.Score})

	if m.cfg.Reveal == RevealMask {
		p := reveal.Punch{X: e.X, Y: e.Y, Radius: e.Radius()}
		m.mask.PunchHole(p)
		res.Punch = &p
		res.Events = append(res.Events, Event{Kind: EventMask})
	}
	if m.cfg.BurstSize > 0 {
		res.Particles = field.Burst(e, m.rng, m.cfg.BurstSize, m.theme.Color(e.Variant))
	}
	if m.cfg.WinMode == WinCount {
		res.Replenished = m.replenish()
		if len(res.Replenished) > 0 {
			res.Events = append(res.Events, Event{Kind: EventField, Value: m.reg.Len()})
		}
	}

	if m.won() {
		if m.cfg.ViewingSeconds > 0 {
			m.stage = m.cfg.ViewingSeconds
			m.round.StageRemaining = m.stage
			res.Events = append(res.Events, m.setStatus(StatusViewing)...)
		} else {
			res.Events = append(res.Events, m.finish(StatusWon)...)
		}
	}
	return res
}

func (m *Machine) won() bool {
	if m.cfg.WinMode == WinClear {
		return m.reg.IsEmpty()
	}
	return m.round.Score >= m.round.WinTarget
}

// replenish spawns zero to two entities, more when the board has fallen
// below its minimum density.
func (m *Machine) replenish() []field.Entity {
	n := m.rng.Intn(maxReplacements + 1)
	if need := m.cfg.MinOnField - m.reg.Len(); need > n {
		n = min(need, maxReplacements)
	}
	if n == 0 {
		return nil
	}
	spawned := m.gen.Spawn(n, m.device)
	_ = m.reg.Replenish(spawned)
	return spawned
}
