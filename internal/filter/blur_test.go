package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlurUniformImageUnchanged(t *testing.T) {
	for _, f := range []*BlurFilter{NewBlurFilter(1), NewBlurFilter(2.5), NewBoxBlurFilter(2)} {
		src := solid(t, 40, 37, 77, 150, 3, 255)
		dst := newLike(t, src)
		require.NoError(t, f.Apply(src, dst))
		assert.Equal(t, src.Pix, dst.Pix, "%+v", *f)
	}
}

func TestBoxBlurSpreadsSinglePixel(t *testing.T) {
	src := solid(t, 5, 5, 0, 0, 0, 255)
	src.Set(2, 2, 90, 180, 9, 255)
	dst := newLike(t, src)

	require.NoError(t, NewDenoiseFilter().Apply(src, dst))

	for y := range 5 {
		for x := range 5 {
			want := [4]byte{0, 0, 0, 255}
			if x >= 1 && x <= 3 && y >= 1 && y <= 3 {
				want = [4]byte{10, 20, 1, 255}
			}
			assert.Equal(t, want, pixel(dst, x, y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestBlurEdgeExtension(t *testing.T) {
	// A bright first column must not darken against an implicit black border.
	src := solid(t, 6, 4, 0, 0, 0, 255)
	for y := range 4 {
		src.Set(0, y, 255, 255, 255, 255)
	}
	dst := newLike(t, src)

	require.NoError(t, NewBoxBlurFilter(1).Apply(src, dst))

	// Taps at x = -1, 0, 1 clamp to 0, 0, 1: two of three are white.
	assert.Equal(t, byte(170), pixel(dst, 0, 0)[0])
	assert.Equal(t, byte(85), pixel(dst, 1, 3)[0])
	assert.Equal(t, byte(0), pixel(dst, 2, 2)[0])
}

func TestBlurZeroRadiusCopies(t *testing.T) {
	src := solid(t, 3, 3, 0, 0, 0, 255)
	src.Set(1, 1, 255, 0, 0, 255)
	dst := newLike(t, src)

	require.NoError(t, NewBlurFilter(0).Apply(src, dst))
	assert.Equal(t, src.Pix, dst.Pix)
}

func TestBlurAnisotropic(t *testing.T) {
	src := solid(t, 7, 7, 0, 0, 0, 255)
	src.Set(3, 3, 255, 255, 255, 255)
	dst := newLike(t, src)

	f := &BlurFilter{RadiusX: 1, RadiusY: 0, Box: true}
	require.NoError(t, f.Apply(src, dst))

	assert.Equal(t, byte(85), pixel(dst, 2, 3)[0], "spreads horizontally")
	assert.Equal(t, byte(0), pixel(dst, 3, 2)[0], "does not spread vertically")
}

func TestTempBufferPool(t *testing.T) {
	buf := getTempBuffer(64)
	assert.Len(t, buf, 64)
	putTempBuffer(buf)

	again := getTempBuffer(32)
	assert.Len(t, again, 32)
	putTempBuffer(again)
}
