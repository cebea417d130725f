package round

import (
	"fmt"

	"popreveal/internal/field"
)

// WinMode picks the win condition. The two are exclusive: a cleared board
// never replenishes, a pop-count round always does.
type WinMode string

const (
	// WinClear wins when the board is empty; the target is the initial count.
	WinClear WinMode = "clear"
	// WinCount wins at a cumulative pop count while the board replenishes.
	WinCount WinMode = "count"
)

// RevealMode picks how the hidden scene is exposed.
type RevealMode string

const (
	RevealScore RevealMode = "score"
	RevealMask  RevealMode = "mask"
)

// Config is the tunable part of a round.
type Config struct {
	DurationSeconds   int               `yaml:"duration_seconds"`
	WinMode           WinMode           `yaml:"win_mode"`
	WinTarget         int               `yaml:"win_target"`
	InitialCount      int               `yaml:"initial_entity_count"`
	MinOnField        int               `yaml:"min_on_field"`
	SpawnDelaySeconds int               `yaml:"spawn_delay_seconds"`
	CountdownSeconds  int               `yaml:"countdown_seconds"`
	ViewingSeconds    int               `yaml:"viewing_seconds"`
	Reveal            RevealMode        `yaml:"reveal"`
	MaskFalloff       float64           `yaml:"mask_falloff"`
	BurstSize         int               `yaml:"burst_size"`
	Layout            field.Layout      `yaml:"layout"`
	Density           float64           `yaml:"density"`
	Jitter            float64           `yaml:"jitter"`
	Bleed             float64           `yaml:"bleed"`
	ExactSplit        bool              `yaml:"exact_split"`
	Breakpoints       field.Breakpoints `yaml:"breakpoints"`
}

const maxEntities = 2000

// DefaultConfig is the plain board-clear round: 450 entities in 60 seconds.
func DefaultConfig() Config {
	return Config{
		DurationSeconds: 60,
		WinMode:         WinClear,
		InitialCount:    450,
		Reveal:          RevealScore,
		MaskFalloff:     1.6,
		BurstSize:       10,
		Layout:          field.LayoutGrid,
		Density:         field.DefaultDensity,
		Jitter:          field.DefaultJitter,
		Breakpoints:     field.DefaultBreakpoints,
	}
}

// Target returns the score that wins the round.
func (c Config) Target() int {
	if c.WinMode == WinCount {
		return c.WinTarget
	}
	return c.InitialCount
}

// Validate rejects settings the machine cannot run, including a board-clear
// round whose explicit target differs from the entity count.
func (c Config) Validate() error {
	switch {
	case c.DurationSeconds < 1:
		return fmt.Errorf("%w: duration_seconds must be positive", ErrInvalidConfig)
	case c.InitialCount < 1 || c.InitialCount > maxEntities:
		return fmt.Errorf("%w: initial_entity_count must be in [1, %d]", ErrInvalidConfig, maxEntities)
	case c.SpawnDelaySeconds < 0 || c.CountdownSeconds < 0 || c.ViewingSeconds < 0:
		return fmt.Errorf("%w: stage durations must not be negative", ErrInvalidConfig)
	case c.BurstSize < 0:
		return fmt.Errorf("%w: burst_size must not be negative", ErrInvalidConfig)
	}
	switch c.WinMode {
	case WinClear:
		if c.WinTarget != 0 && c.WinTarget != c.InitialCount {
			return fmt.Errorf("%w: win_mode clear needs win_target %d to equal initial_entity_count %d",
				ErrInvalidConfig, c.WinTarget, c.InitialCount)
		}
		if c.MinOnField != 0 {
			return fmt.Errorf("%w: win_mode clear does not replenish, min_on_field must be 0", ErrInvalidConfig)
		}
	case WinCount:
		if c.WinTarget < 1 {
			return fmt.Errorf("%w: win_mode count needs a positive win_target", ErrInvalidConfig)
		}
		if c.MinOnField < 1 {
			return fmt.Errorf("%w: win_mode count needs a positive min_on_field", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown win_mode %q", ErrInvalidConfig, c.WinMode)
	}
	switch c.Reveal {
	case RevealScore, RevealMask:
	default:
		return fmt.Errorf("%w: unknown reveal %q", ErrInvalidConfig, c.Reveal)
	}
	switch c.Layout {
	case field.LayoutGrid, field.LayoutScatter, "":
	default:
		return fmt.Errorf("%w: unknown layout %q", ErrInvalidConfig, c.Layout)
	}
	return nil
}

func (c Config) fieldOptions(t Theme) field.Options {
	return field.Options{
		Layout:     c.Layout,
		Density:    c.Density,
		Jitter:     c.Jitter,
		Bleed:      c.Bleed,
		Variants:   t.VariantNames(),
		ExactSplit: c.ExactSplit,
	}
}
