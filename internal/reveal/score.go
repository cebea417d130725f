// Package reveal controls how much of the hidden scene is visible.
package reveal

import "math"

// Score-driven reveal limits.
const (
	MaxBlurPx     = 24.0
	MinBrightness = 0.2
)

// Levels are the background filter values for a reveal fraction.
type Levels struct {
	Fraction   float64 `json:"fraction"`
	Opacity    float64 `json:"opacity"`
	BlurPx     float64 `json:"blurPx"`
	Brightness float64 `json:"brightness"`
}

// ScoreReveal maps progress towards target to background filter levels. At
// zero progress the scene is fully hidden, at target it is fully clear, and
// every level moves continuously in between.
func ScoreReveal(score, target int) Levels {
	f := 0.0
	if target > 0 {
		f = float64(score) / float64(target)
	}
	return LevelsAt(f)
}

// LevelsAt returns the levels for a fraction, clamped to [0, 1].
func LevelsAt(f float64) Levels {
	switch {
	case f < 0 || math.IsNaN(f):
		f = 0
	case f > 1:
		f = 1
	}
	return Levels{
		Fraction:   f,
		Opacity:    f,
		BlurPx:     MaxBlurPx * (1 - f),
		Brightness: MinBrightness + (1-MinBrightness)*f,
	}
}
