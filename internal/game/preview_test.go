package game

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popreveal/internal/round"
)

func decodePreview(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	return img
}

func rgba(c color.Color) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func TestStore_PreviewPNG(t *testing.T) {
	cfg := smallConfig()
	cfg.DurationSeconds = 60
	cfg.Reveal = round.RevealMask
	s := newTestStore(t, cfg, nil)
	sess, err := s.CreateSession()
	require.NoError(t, err)
	require.NoError(t, s.Resize(sess.ID, 400, 200))

	b, rev, err := s.PreviewPNG(sess.ID, 0)
	require.NoError(t, err)
	img := decodePreview(t, b)
	assert.Equal(t, image.Rect(0, 0, PreviewWidth, PreviewWidth/2), img.Bounds())
	assert.Equal(t, coverColor, rgba(img.At(PreviewWidth/2, PreviewWidth/4)), "untouched mask shows only the cover")

	require.NoError(t, s.Start(sess.ID))
	snap := waitStatus(t, s, sess.ID, round.StatusPlaying)
	res, err := s.Pop(sess.ID, snap.Entities[0].ID)
	require.NoError(t, err)
	require.NotNil(t, res.Punch)

	b, rev2, err := s.PreviewPNG(sess.ID, 100)
	require.NoError(t, err)
	assert.NotEqual(t, rev, rev2)
	img = decodePreview(t, b)
	assert.Equal(t, 100, img.Bounds().Dx())
	x := int(res.Punch.X / 100 * 100)
	y := int(res.Punch.Y / 100 * float64(img.Bounds().Dy()))
	assert.NotEqual(t, coverColor, rgba(img.At(x, y)), "hole shows the theme")

	_, _, err = s.PreviewPNG("missing", 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestThemeGradient(t *testing.T) {
	two := round.Theme{Variants: []round.Variant{{Color: "#ff0000"}, {Color: "not a colour"}, {Color: "#0000ff"}}}
	img := themeGradient(two, 11, 2)
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, rgba(img.At(0, 0)))
	assert.Equal(t, color.RGBA{B: 0xff, A: 0xff}, rgba(img.At(10, 1)))
	mid := rgba(img.At(5, 0))
	assert.NotEqual(t, rgba(img.At(0, 0)), mid)
	assert.NotEqual(t, rgba(img.At(10, 0)), mid)

	one := themeGradient(round.Theme{Variants: []round.Variant{{Color: "#00ff00"}}}, 4, 4)
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, rgba(one.At(3, 3)))

	none := themeGradient(round.Theme{}, 4, 4)
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, rgba(none.At(0, 0)))
}
