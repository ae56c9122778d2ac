package kernel

import (
	"fmt"
	"math"
)

// Reference runs the upscale kernel on the CPU. It follows the shader
// step for step in float32, including the unorm packing, so a correct GPU
// dispatch and Reference agree byte for byte.
//
// src must hold Width*Height RGBA8 pixels.
func Reference(src []byte, p Params) ([]byte, error) {
	want := int(p.Width) * int(p.Height) * BytesPerPixel
	if len(src) < want {
		return nil, fmt.Errorf("kernel: source has %d bytes, want %d", len(src), want)
	}
	if p.Width == 0 || p.Height == 0 || p.Factor == 0 {
		return nil, fmt.Errorf("kernel: empty params %+v", p)
	}
	outW, outH, size := p.OutputSize()
	dst := make([]byte, size)
	ReferenceInto(dst, src, p, outW, outH)
	return dst, nil
}

// ReferenceInto writes the kernel output for rows [0, outH) into dst.
func ReferenceInto(dst, src []byte, p Params, outW, outH uint32) {
	scale := float32(p.Factor)
	for y := uint32(0); y < outH; y++ {
		sy := (float32(y)+0.5)/scale - 0.5
		y0 := floor32(sy)
		fy := sy - y0
		iy := int(y0)
		for x := uint32(0); x < outW; x++ {
			sx := (float32(x)+0.5)/scale - 0.5
			x0 := floor32(sx)
			fx := sx - x0
			ix := int(x0)

			top := mix4(texel(src, p, ix, iy), texel(src, p, ix+1, iy), fx)
			bottom := mix4(texel(src, p, ix, iy+1), texel(src, p, ix+1, iy+1), fx)
			c := mix4(top, bottom, fy)

			off := (int(y)*int(outW) + int(x)) * BytesPerPixel
			for i := range 4 {
				dst[off+i] = packUnorm(c[i])
			}
		}
	}
}

func texel(src []byte, p Params, x, y int) [4]float32 {
	x = clampInt(x, 0, int(p.Width)-1)
	y = clampInt(y, 0, int(p.Height)-1)
	off := (y*int(p.Width) + x) * BytesPerPixel
	return [4]float32{
		float32(src[off]) / 255,
		float32(src[off+1]) / 255,
		float32(src[off+2]) / 255,
		float32(src[off+3]) / 255,
	}
}

func mix4(a, b [4]float32, t float32) [4]float32 {
	var r [4]float32
	for i := range r {
		r[i] = a[i]*(1-t) + b[i]*t
	}
	return r
}

// packUnorm matches pack4x8unorm: floor(0.5 + 255 * clamp(v, 0, 1)).
func packUnorm(v float32) byte {
	v = min(max(v, 0), 1)
	return byte(floor32(0.5 + 255*v))
}

func floor32(v float32) float32 {
	return float32(math.Floor(float64(v)))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
