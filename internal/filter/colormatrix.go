package filter

import (
	"github.com/gogpu/upscale/internal/image"
)

// ColorMatrixFilter applies a 4x5 color transformation matrix to an image.
// The transformation is:
//
//	[R']   [a00 a01 a02 a03 a04]   [R]
//	[G'] = [a10 a11 a12 a13 a14] * [G]
//	[B']   [a20 a21 a22 a23 a24]   [B]
//	[A']   [a30 a31 a32 a33 a34]   [A]
//	                               [1]
//
// Channels are straight-alpha values in [0, 255]; results are clamped.
type ColorMatrixFilter struct {
	// Matrix is the 4x5 transformation matrix in row-major order.
	Matrix [20]float32
}

// NewIdentityColorMatrix returns a filter that passes pixels through.
func NewIdentityColorMatrix() *ColorMatrixFilter {
	return &ColorMatrixFilter{
		Matrix: [20]float32{
			1, 0, 0, 0, 0, // R
			0, 1, 0, 0, 0, // G
			0, 0, 1, 0, 0, // B
			0, 0, 0, 1, 0, // A
		},
	}
}

// NewBrightnessFilter scales RGB by factor.
// 0 = black, 1 = unchanged, 2 = twice as bright.
func NewBrightnessFilter(factor float32) *ColorMatrixFilter {
	return &ColorMatrixFilter{
		Matrix: [20]float32{
			factor, 0, 0, 0, 0,
			0, factor, 0, 0, 0,
			0, 0, factor, 0, 0,
			0, 0, 0, 1, 0,
		},
	}
}

// NewContrastFilter stretches RGB around mid-gray: (c - 128) * factor + 128.
// 0 = flat gray, 1 = unchanged, >1 = more contrast.
func NewContrastFilter(factor float32) *ColorMatrixFilter {
	offset := 128 * (1 - factor)
	return &ColorMatrixFilter{
		Matrix: [20]float32{
			factor, 0, 0, 0, offset,
			0, factor, 0, 0, offset,
			0, 0, factor, 0, offset,
			0, 0, 0, 1, 0,
		},
	}
}

// NewSaturationFilter blends each pixel with its Rec. 709 luminance.
// 0 = grayscale, 1 = unchanged, >1 = oversaturated.
func NewSaturationFilter(factor float32) *ColorMatrixFilter {
	const (
		lumR = 0.2126
		lumG = 0.7152
		lumB = 0.0722
	)
	inv := 1 - factor

	return &ColorMatrixFilter{
		Matrix: [20]float32{
			lumR*inv + factor, lumG * inv, lumB * inv, 0, 0,
			lumR * inv, lumG*inv + factor, lumB * inv, 0, 0,
			lumR * inv, lumG * inv, lumB*inv + factor, 0, 0,
			0, 0, 0, 1, 0,
		},
	}
}

// NewEnhanceFilter returns the contrast adjustment used by the enhanced
// upscale: a mild contrast stretch with a small saturation lift to offset
// the washed-out look of interpolated output.
func NewEnhanceFilter() *ColorMatrixFilter {
	return NewContrastFilter(1.15).Multiply(NewSaturationFilter(1.05))
}

// Apply transforms every pixel of src into dst.
func (f *ColorMatrixFilter) Apply(src, dst *image.Pixels) error {
	if err := checkSizes(src, dst); err != nil {
		return err
	}

	m := &f.Matrix
	w := src.Width
	rows(src.Height, func(y0, y1 int) {
		for i := y0 * w * 4; i < y1*w*4; i += 4 {
			r := float32(src.Pix[i+0])
			g := float32(src.Pix[i+1])
			b := float32(src.Pix[i+2])
			a := float32(src.Pix[i+3])

			dst.Pix[i+0] = clampUint8(m[0]*r + m[1]*g + m[2]*b + m[3]*a + m[4])
			dst.Pix[i+1] = clampUint8(m[5]*r + m[6]*g + m[7]*b + m[8]*a + m[9])
			dst.Pix[i+2] = clampUint8(m[10]*r + m[11]*g + m[12]*b + m[13]*a + m[14])
			dst.Pix[i+3] = clampUint8(m[15]*r + m[16]*g + m[17]*b + m[18]*a + m[19])
		}
	})
	return nil
}

// Multiply returns a new filter that applies f first, then other.
func (f *ColorMatrixFilter) Multiply(other *ColorMatrixFilter) *ColorMatrixFilter {
	a := &other.Matrix
	b := &f.Matrix

	result := &ColorMatrixFilter{}
	r := &result.Matrix

	// (A·B) with the fifth column treated as a constant input of 1.
	for row := range 4 {
		for col := range 4 {
			var s float32
			for k := range 4 {
				s += a[row*5+k] * b[k*5+col]
			}
			r[row*5+col] = s
		}
		r[row*5+4] = a[row*5+0]*b[4] + a[row*5+1]*b[9] +
			a[row*5+2]*b[14] + a[row*5+3]*b[19] + a[row*5+4]
	}

	return result
}
