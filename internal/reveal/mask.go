package reveal

import (
	"image"
	"image/png"
	"io"
	"math"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/image/draw"
)

const (
	// DefaultFalloff is the outer hole radius as a multiple of the entity radius.
	DefaultFalloff = 1.6
	MinFalloff     = 1.5
	MaxFalloff     = 1.8
	// MaxSide bounds either mask dimension in pixels.
	MaxSide = 4096
)

// Punch is one hole, stored in surface percentages so it can be replayed
// onto a mask of another size. Radius stays in pixels.
type Punch struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// Mask is a viewport-sized alpha bitmap over the hidden scene. Alpha 255
// obscures, 0 exposes. Between resets alpha only ever decreases.
// It is not safe for concurrent use.
type Mask struct {
	img      *image.Alpha
	falloff  float64
	punches  []Punch
	alphaSum uint64
	clear    int
	rev      uint64
	revDirty bool
}

// NewMask creates a fully opaque mask of w x h pixels.
func NewMask(w, h int, falloff float64) *Mask {
	if falloff <= 0 {
		falloff = DefaultFalloff
	}
	m := &Mask{falloff: math.Max(MinFalloff, math.Min(falloff, MaxFalloff))}
	m.init(w, h)
	return m
}

func (m *Mask) init(w, h int) {
	w = clampSide(w)
	h = clampSide(h)
	m.img = image.NewAlpha(image.Rect(0, 0, w, h))
	for i := range m.img.Pix {
		m.img.Pix[i] = 0xff
	}
	m.alphaSum = uint64(w) * uint64(h) * 0xff
	m.clear = 0
	m.revDirty = true
}

func clampSide(v int) int {
	if v < 1 {
		return 1
	}
	if v > MaxSide {
		return MaxSide
	}
	return v
}

// Size returns the mask dimensions in pixels.
func (m *Mask) Size() (int, int) {
	b := m.img.Bounds()
	return b.Dx(), b.Dy()
}

// Reset makes the mask fully opaque again and forgets all punches.
func (m *Mask) Reset() {
	w, h := m.Size()
	m.punches = nil
	m.init(w, h)
}

// Resize changes the mask size. With keep set the recorded punches are
// replayed at their surface position on the new bitmap; otherwise the mask
// starts over fully opaque.
func (m *Mask) Resize(w, h int, keep bool) {
	punches := m.punches
	m.punches = nil
	m.init(w, h)
	if !keep {
		return
	}
	for _, p := range punches {
		m.PunchHole(p)
	}
}

// PunchHole cuts a soft circular hole: fully transparent within the entity
// radius, fading to no effect at falloff times the radius. It composites as
// destination-out, so no pixel gains alpha. It returns the number of pixels
// whose alpha dropped.
func (m *Mask) PunchHole(p Punch) int {
	if p.Radius <= 0 || math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return 0
	}
	m.punches = append(m.punches, p)

	w, h := m.Size()
	cx := p.X / 100 * float64(w)
	cy := p.Y / 100 * float64(h)
	inner := p.Radius
	outer := p.Radius * m.falloff

	x0 := max(0, int(math.Floor(cx-outer)))
	x1 := min(w-1, int(math.Ceil(cx+outer)))
	y0 := max(0, int(math.Floor(cy-outer)))
	y1 := min(h-1, int(math.Ceil(cy+outer)))

	changed := 0
	for y := y0; y <= y1; y++ {
		row := y * m.img.Stride
		dy := float64(y) + 0.5 - cy
		for x := x0; x <= x1; x++ {
			dx := float64(x) + 0.5 - cx
			d := math.Hypot(dx, dy)
			if d >= outer {
				continue
			}
			strength := 1.0
			if d > inner {
				strength = (outer - d) / (outer - inner)
			}
			old := m.img.Pix[row+x]
			if old == 0 {
				continue
			}
			next := uint8(math.Floor(float64(old) * (1 - strength)))
			if next >= old {
				continue
			}
			m.img.Pix[row+x] = next
			m.alphaSum -= uint64(old - next)
			if next == 0 {
				m.clear++
			}
			changed++
		}
	}
	if changed > 0 {
		m.revDirty = true
	}
	return changed
}

// Punches returns the holes punched since the last reset.
func (m *Mask) Punches() []Punch {
	out := make([]Punch, len(m.punches))
	copy(out, m.punches)
	return out
}

// ClearedFraction is the share of total opacity removed, in [0, 1].
func (m *Mask) ClearedFraction() float64 {
	w, h := m.Size()
	full := float64(w) * float64(h) * 0xff
	return 1 - float64(m.alphaSum)/full
}

// transparentFraction is the share of pixels that are fully transparent.
func (m *Mask) transparentFraction() float64 {
	w, h := m.Size()
	return float64(m.clear) / (float64(w) * float64(h))
}

// alphaAt returns the mask alpha at pixel (x, y); out-of-range pixels read opaque.
func (m *Mask) alphaAt(x, y int) uint8 {
	if !(image.Point{X: x, Y: y}).In(m.img.Bounds()) {
		return 0xff
	}
	return m.img.AlphaAt(x, y).A
}

// Image returns a copy of the bitmap.
func (m *Mask) Image() *image.Alpha {
	out := image.NewAlpha(m.img.Bounds())
	copy(out.Pix, m.img.Pix)
	return out
}

// Scaled returns a copy resampled to w x h. Non-positive sizes keep the
// aspect ratio of the other dimension, or the full size when both are unset.
func (m *Mask) Scaled(w, h int) *image.Alpha {
	sw, sh := m.Size()
	switch {
	case w <= 0 && h <= 0:
		return m.Image()
	case w <= 0:
		w = max(1, h*sw/sh)
	case h <= 0:
		h = max(1, w*sh/sw)
	}
	w, h = clampSide(w), clampSide(h)
	if w == sw && h == sh {
		return m.Image()
	}
	dst := image.NewAlpha(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), m.img, m.img.Bounds(), draw.Src, nil)
	return dst
}

// EncodePNG writes the mask, scaled to width when width is positive.
func (m *Mask) EncodePNG(w io.Writer, width int) error {
	img := m.img
	if sw, _ := m.Size(); width > 0 && width != sw {
		img = m.Scaled(width, 0)
	}
	return png.Encode(w, img)
}

// Revision is a content hash of the bitmap, usable as an ETag.
func (m *Mask) Revision() uint64 {
	if m.revDirty {
		m.rev = xxhash.Sum64(m.img.Pix)
		m.revDirty = false
	}
	return m.rev
}

// Compose draws sharp into dst, then draws obscured over it through the mask,
// so the obscuring layer survives only where the mask is still opaque.
func Compose(dst draw.Image, sharp, obscured image.Image, m *Mask) {
	r := dst.Bounds()
	var mask image.Image = m.img
	if sw, sh := m.Size(); sw != r.Dx() || sh != r.Dy() {
		mask = m.Scaled(r.Dx(), r.Dy())
	}
	draw.Draw(dst, r, sharp, sharp.Bounds().Min, draw.Src)
	draw.DrawMask(dst, r, obscured, obscured.Bounds().Min, mask, mask.Bounds().Min, draw.Over)
}
