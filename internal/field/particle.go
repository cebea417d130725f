package field

import (
	"math"
	"time"
)

// Shape tags how the shell draws a particle.
type Shape string

const (
	ShapeLeaf  Shape = "leaf"
	ShapeSeed  Shape = "seed"
	ShapeJuice Shape = "juice"
	ShapeFlesh Shape = "flesh"
)

// BurstLifetime is how long a particle lives before the shell drops it.
const BurstLifetime = 800 * time.Millisecond

const (
	seedColor = "#3e1a0b"
	leafColor = "#2f7d32"
)

// Particle is a cosmetic fragment of a popped entity. Velocity is pixels over
// the particle's lifetime.
type Particle struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	VX         float64 `json:"vx"`
	VY         float64 `json:"vy"`
	Size       float64 `json:"size"`
	Rotation   float64 `json:"rotation"`
	Color      string  `json:"color"`
	Shape      Shape   `json:"shape"`
	LifetimeMs int64   `json:"lifetimeMs"`
}

// Burst emits n particles spreading radially from e. color tints the juice
// and flesh fragments.
func Burst(e Entity, rng Rand, n int, color string) []Particle {
	if n <= 0 {
		return nil
	}
	out := make([]Particle, 0, n)
	for i := 0; i < n; i++ {
		angle := rng.Float64() * 2 * math.Pi
		speed := 60 + rng.Float64()*160
		p := Particle{
			X:          e.X,
			Y:          e.Y,
			Z:          e.Z,
			VX:         math.Cos(angle) * speed,
			VY:         math.Sin(angle) * speed,
			Size:       4 + rng.Float64()*8,
			Rotation:   rng.Float64() * 360,
			Color:      color,
			Shape:      pickShape(rng.Float64()),
			LifetimeMs: BurstLifetime.Milliseconds(),
		}
		switch p.Shape {
		case ShapeSeed:
			p.Color = seedColor
		case ShapeLeaf:
			p.Color = leafColor
		}
		out = append(out, p)
	}
	return out
}

func pickShape(r float64) Shape {
	switch {
	case r < 0.15:
		return ShapeLeaf
	case r < 0.35:
		return ShapeSeed
	case r < 0.65:
		return ShapeJuice
	default:
		return ShapeFlesh
	}
}
