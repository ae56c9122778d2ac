package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/upscale/internal/image"
)

func solid(t *testing.T, w, h int, r, g, b, a byte) *image.Pixels {
	t.Helper()
	p, err := image.NewPixels(w, h)
	require.NoError(t, err)
	p.Fill(r, g, b, a)
	return p
}

func newLike(t *testing.T, p *image.Pixels) *image.Pixels {
	t.Helper()
	out, err := image.NewPixels(p.Width, p.Height)
	require.NoError(t, err)
	return out
}

func pixel(p *image.Pixels, x, y int) [4]byte {
	r, g, b, a := p.At(x, y)
	return [4]byte{r, g, b, a}
}

func TestFiltersRejectSizeMismatch(t *testing.T) {
	src := solid(t, 4, 4, 0, 0, 0, 255)
	dst := solid(t, 4, 5, 0, 0, 0, 255)

	filters := map[string]Filter{
		"blur":     NewBlurFilter(1),
		"sharpen":  NewSharpenFilter(),
		"contrast": NewContrastFilter(1.2),
		"chain":    Chain{NewDenoiseFilter()},
	}
	for name, f := range filters {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, f.Apply(src, dst), ErrSizeMismatch)
			assert.ErrorIs(t, f.Apply(nil, dst), ErrSizeMismatch)
		})
	}
}

func TestChainOrder(t *testing.T) {
	src := solid(t, 3, 3, 200, 200, 200, 255)
	dst := newLike(t, src)

	// Halve, then double contrast: 200 -> 100 -> 72.
	chain := Chain{NewBrightnessFilter(0.5), NewContrastFilter(2)}
	require.NoError(t, chain.Apply(src, dst))
	assert.Equal(t, [4]byte{72, 72, 72, 255}, pixel(dst, 1, 1))

	// Reverse order: 200 -> 255 (clamped) -> 128.
	require.NoError(t, Chain{NewContrastFilter(2), NewBrightnessFilter(0.5)}.Apply(src, dst))
	assert.Equal(t, [4]byte{128, 128, 128, 255}, pixel(dst, 1, 1))

	// Source is untouched.
	assert.Equal(t, [4]byte{200, 200, 200, 255}, pixel(src, 0, 0))
}

func TestChainLong(t *testing.T) {
	src := solid(t, 2, 2, 10, 20, 30, 255)
	dst := newLike(t, src)

	chain := Chain{
		NewBrightnessFilter(2),
		NewBrightnessFilter(2),
		NewBrightnessFilter(2),
		NewBrightnessFilter(0.5),
	}
	require.NoError(t, chain.Apply(src, dst))
	assert.Equal(t, [4]byte{40, 80, 120, 255}, pixel(dst, 1, 0))
}

func TestEmptyChainCopies(t *testing.T) {
	src := solid(t, 2, 2, 1, 2, 3, 4)
	dst := newLike(t, src)
	require.NoError(t, Chain(nil).Apply(src, dst))
	assert.Equal(t, src.Pix, dst.Pix)
}

func TestApplyInPlace(t *testing.T) {
	p := solid(t, 5, 3, 100, 100, 100, 255)
	require.NoError(t, ApplyInPlace(NewContrastFilter(2), p))
	assert.Equal(t, [4]byte{72, 72, 72, 255}, pixel(p, 4, 2))
}

func TestClampUint8(t *testing.T) {
	tests := []struct {
		in   float32
		want uint8
	}{
		{-10, 0},
		{0, 0},
		{0.49, 0},
		{0.5, 1},
		{127.6, 128},
		{254.5, 255},
		{300, 255},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampUint8(tt.in), "clampUint8(%v)", tt.in)
	}
}
