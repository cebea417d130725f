package game

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/cespare/xxhash/v2"
	"github.com/lucasb-eyer/go-colorful"

	"popreveal/internal/reveal"
	"popreveal/internal/round"
)

// PreviewWidth is the preview width used when a request names none.
const PreviewWidth = 240

var coverColor = color.RGBA{R: 0x26, G: 0x32, B: 0x38, A: 0xff}

// PreviewPNG renders a thumbnail of the reveal so far: the theme's colors
// where the mask is cleared and the cover colour elsewhere. The returned
// revision changes with the mask and the theme.
func (s *Store) PreviewPNG(id string, width int) ([]byte, uint64, error) {
	sess, ok := s.Session(id)
	if !ok {
		return nil, 0, ErrSessionNotFound
	}
	if width <= 0 {
		width = PreviewWidth
	}
	width = min(width, reveal.MaxSide)

	sess.mu.Lock()
	mask := sess.machine.Mask()
	theme := sess.machine.Theme()
	mw, mh := mask.Size()
	height := max(1, width*mh/mw)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	reveal.Compose(dst, themeGradient(theme, width, height), image.NewUniform(coverColor), mask)
	rev := mask.Revision() ^ xxhash.Sum64String(theme.ID)
	sess.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), rev, nil
}

// themeGradient blends the theme's variant colours left to right in HCL.
// Colours that do not parse are skipped.
func themeGradient(t round.Theme, width, height int) image.Image {
	stops := make([]colorful.Color, 0, len(t.Variants))
	for _, v := range t.Variants {
		if c, err := colorful.Hex(v.Color); err == nil {
			stops = append(stops, c)
		}
	}
	switch len(stops) {
	case 0:
		return image.NewUniform(color.White)
	case 1:
		return image.NewUniform(stops[0])
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	last := len(stops) - 1
	for x := 0; x < width; x++ {
		pos := float64(x) / float64(max(1, width-1)) * float64(last)
		i := min(int(pos), last-1)
		r, g, b := stops[i].BlendHcl(stops[i+1], pos-float64(i)).Clamped().RGB255()
		col := color.RGBA{R: r, G: g, B: b, A: 0xff}
		for y := 0; y < height; y++ {
			img.SetRGBA(x, y, col)
		}
	}
	return img
}
