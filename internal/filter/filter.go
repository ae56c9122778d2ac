package filter

import (
	"errors"
	"fmt"

	"github.com/gogpu/upscale/internal/image"
	"github.com/gogpu/upscale/internal/parallel"
)

// ErrSizeMismatch is returned when source and destination differ in size.
var ErrSizeMismatch = errors.New("filter: source and destination sizes differ")

// Filter transforms src into dst. Both images have the same dimensions and
// do not alias.
type Filter interface {
	Apply(src, dst *image.Pixels) error
}

// Chain applies filters in order. Intermediates come from the image pool.
type Chain []Filter

// Apply runs every filter in the chain. An empty chain copies src to dst.
func (c Chain) Apply(src, dst *image.Pixels) error {
	if err := checkSizes(src, dst); err != nil {
		return err
	}
	if len(c) == 0 {
		copy(dst.Pix, src.Pix)
		return nil
	}

	cur := src
	var scratch [2]*image.Pixels
	defer func() {
		image.PutToDefault(scratch[0])
		image.PutToDefault(scratch[1])
	}()

	for i, f := range c {
		out := dst
		if i < len(c)-1 {
			slot := i % 2
			if scratch[slot] == nil {
				buf, err := image.GetFromDefault(src.Width, src.Height)
				if err != nil {
					return err
				}
				scratch[slot] = buf
			}
			out = scratch[slot]
		}
		if err := f.Apply(cur, out); err != nil {
			return fmt.Errorf("filter: chain step %d: %w", i, err)
		}
		cur = out
	}
	return nil
}

// ApplyInPlace runs f over p, replacing p's pixels with the result.
func ApplyInPlace(f Filter, p *image.Pixels) error {
	tmp, err := image.GetFromDefault(p.Width, p.Height)
	if err != nil {
		return err
	}
	defer image.PutToDefault(tmp)

	if err := f.Apply(p, tmp); err != nil {
		return err
	}
	copy(p.Pix, tmp.Pix)
	return nil
}

func checkSizes(src, dst *image.Pixels) error {
	if src == nil || dst == nil {
		return fmt.Errorf("%w: nil image", ErrSizeMismatch)
	}
	if !src.SameSize(dst) {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, src.Width, src.Height, dst.Width, dst.Height)
	}
	return nil
}

func rows(height int, fn func(y0, y1 int)) {
	parallel.Default().Rows(height, fn)
}

// clampInt clamps v to [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampUint8 clamps a float32 to [0, 255] and rounds to nearest.
func clampUint8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
