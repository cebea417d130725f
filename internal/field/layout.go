package field

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Rand is the randomness the generator draws from. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Layout selects how positions are chosen.
type Layout string

const (
	// LayoutGrid places one entity per cell of a jittered grid.
	LayoutGrid Layout = "grid"
	// LayoutScatter draws positions uniformly over the surface.
	LayoutScatter Layout = "scatter"
)

// Options tune the generator. Zero values fall back to the defaults in tuning.go.
type Options struct {
	Layout Layout
	// Density is the k in cols = floor(sqrt(count * aspect * k)).
	Density float64
	// Jitter bounds the offset from a cell center as a fraction of the half-cell.
	Jitter float64
	// Bleed lets scattered entities overflow the visible edges by this many percent.
	Bleed float64
	// Depth bounds |Z|.
	Depth float64
	// Variants are the visual classes to assign. Empty leaves Variant unset.
	Variants []string
	// ExactSplit assigns variants in exact proportions instead of independent draws.
	ExactSplit bool
}

func (o Options) normalized() Options {
	if o.Layout == "" {
		o.Layout = LayoutGrid
	}
	if o.Density <= 0 {
		o.Density = DefaultDensity
	}
	if o.Jitter <= 0 {
		o.Jitter = DefaultJitter
	}
	o.Jitter = clamp(o.Jitter, MinJitter, MaxJitter)
	o.Bleed = clamp(o.Bleed, 0, MaxBleed)
	if o.Depth <= 0 {
		o.Depth = DefaultDepth
	}
	o.Depth = math.Min(o.Depth, MaxDepth)
	return o
}

// Geometry is the grid computed for a field.
type Geometry struct {
	Cols, Rows   int
	CellW, CellH float64
	Left, Top    float64
	Width        float64
	Height       float64
}

// ComputeGeometry derives the grid for count entities on a viewport. Degenerate
// viewports are clamped to one pixel so the result never has zero rows or columns.
func ComputeGeometry(count int, width, height float64, device DeviceClass, density float64) Geometry {
	if count < 1 {
		count = 1
	}
	if density <= 0 {
		density = DefaultDensity
	}
	width = ClampViewport(width)
	height = ClampViewport(height)
	p := ProfileFor(device)

	left, usableW := p.MarginSide, width-2*p.MarginSide
	if usableW < 1 {
		left, usableW = 0, width
	}
	top, usableH := p.MarginTop, height-p.MarginTop-p.MarginBottom
	if usableH < 1 {
		top, usableH = 0, height
	}

	aspect := usableW / usableH
	cols := int(math.Floor(math.Sqrt(float64(count) * aspect * density)))
	if cols < 1 {
		cols = 1
	}
	if cols > count {
		cols = count
	}
	rows := (count + cols - 1) / cols
	if rows < 1 {
		rows = 1
	}
	return Geometry{
		Cols:   cols,
		Rows:   rows,
		CellW:  usableW / float64(cols),
		CellH:  usableH / float64(rows),
		Left:   left,
		Top:    top,
		Width:  width,
		Height: height,
	}
}

// Generator produces fields and replenishment batches for a single round.
// Ids carry the generator's nonce, so two generators never collide.
type Generator struct {
	opts  Options
	rng   Rand
	nonce string
	next  int
}

// NewGenerator creates a generator. An empty nonce gets a fresh random one.
func NewGenerator(opts Options, rng Rand, nonce string) *Generator {
	if nonce == "" {
		nonce = NewNonce()
	}
	return &Generator{opts: opts.normalized(), rng: rng, nonce: nonce}
}

// NewNonce returns a short random stamp for entity ids.
func NewNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Nonce returns the id stamp of this generator.
func (g *Generator) Nonce() string {
	return g.nonce
}

// Generate lays out count entities for the viewport.
func (g *Generator) Generate(count int, width, height float64, device DeviceClass) []Entity {
	if count <= 0 {
		return nil
	}
	labels := g.labels(count, g.opts.ExactSplit)
	if g.opts.Layout == LayoutScatter {
		return g.scatter(count, device, g.opts.Bleed, labels)
	}
	return g.grid(count, width, height, device, labels)
}

// Spawn creates n replacement entities scattered over the visible surface.
func (g *Generator) Spawn(n int, device DeviceClass) []Entity {
	if n <= 0 {
		return nil
	}
	return g.scatter(n, device, 0, g.labels(n, false))
}

func (g *Generator) grid(count int, width, height float64, device DeviceClass, labels []string) []Entity {
	geo := ComputeGeometry(count, width, height, device, g.opts.Density)
	ampX := g.opts.Jitter * geo.CellW / 2
	ampY := g.opts.Jitter * geo.CellH / 2
	out := make([]Entity, 0, count)
	for i := 0; i < count; i++ {
		col := i % geo.Cols
		row := i / geo.Cols
		cx := geo.Left + (float64(col)+0.5)*geo.CellW + g.signed()*ampX
		cy := geo.Top + (float64(row)+0.5)*geo.CellH + g.signed()*ampY
		e := g.entity(device, label(labels, i))
		e.X = clamp(cx/geo.Width*100, 0, 100)
		e.Y = clamp(cy/geo.Height*100, 0, 100)
		out = append(out, e)
	}
	return out
}

func (g *Generator) scatter(count int, device DeviceClass, bleed float64, labels []string) []Entity {
	span := 100 + 2*bleed
	out := make([]Entity, 0, count)
	for i := 0; i < count; i++ {
		x := g.rng.Float64()*span - bleed
		y := g.rng.Float64()*span - bleed
		e := g.entity(device, label(labels, i))
		e.X = clamp(x, -bleed, 100+bleed)
		e.Y = clamp(y, -bleed, 100+bleed)
		out = append(out, e)
	}
	return out
}

func (g *Generator) entity(device DeviceClass, variant string) Entity {
	p := ProfileFor(device)
	g.next++
	return Entity{
		ID:           g.nonce + "-" + strconv.Itoa(g.next),
		Z:            g.signed() * g.opts.Depth,
		Size:         p.MinSize + g.rng.Float64()*(p.MaxSize-p.MinSize),
		Rotation:     g.rng.Float64() * 360,
		SpawnDelay:   g.rng.Float64() * MaxSpawnDelay,
		Variant:      variant,
		VarianceSeed: g.rng.Float64(),
	}
}

// labels returns one variant per entity. With exact set, the list holds the
// variants in proportions differing by at most one and is then shuffled.
func (g *Generator) labels(count int, exact bool) []string {
	k := len(g.opts.Variants)
	if k == 0 {
		return nil
	}
	out := make([]string, count)
	if !exact || k == 1 {
		for i := range out {
			out[i] = g.opts.Variants[g.rng.Intn(k)]
		}
		return out
	}
	for i := range out {
		out[i] = g.opts.Variants[i%k]
	}
	g.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// signed returns a value in [-1, 1).
func (g *Generator) signed() float64 {
	return g.rng.Float64()*2 - 1
}

func label(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return ""
}

// MaxViewport bounds either side of the play area. Larger sizes lay out as
// if at the bound.
const MaxViewport = 1 << 15

// ClampViewport maps a viewport side into [1, MaxViewport]. NaN maps to 1.
func ClampViewport(v float64) float64 {
	switch {
	case !(v >= 1):
		return 1
	case v > MaxViewport:
		return MaxViewport
	}
	return v
}

// clamp maps v into [lo, hi]; NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if !(v >= lo) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
