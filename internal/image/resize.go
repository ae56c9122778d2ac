package image

import (
	"fmt"

	"golang.org/x/image/draw"
)

// ResizeNearest scales p by an integer factor with nearest-neighbor sampling.
// Every output pixel is an exact copy of one source pixel: output (x, y)
// takes source (x/factor, y/factor).
func ResizeNearest(p *Pixels, factor int) (*Pixels, error) {
	if factor < 1 {
		return nil, fmt.Errorf("%w: factor %d", ErrInvalidDimensions, factor)
	}
	dst, err := NewPixels(p.Width*factor, p.Height*factor)
	if err != nil {
		return nil, err
	}
	dv := dst.rawView()
	sv := p.rawView()
	draw.NearestNeighbor.Scale(dv, dv.Rect, sv, sv.Rect, draw.Src, nil)
	return dst, nil
}
