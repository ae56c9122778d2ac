package filter

import (
	"sync"

	"github.com/gogpu/upscale/internal/image"
)

// BlurFilter is a separable blur: a horizontal pass into a float buffer
// followed by a vertical pass into the destination, with edge pixels
// extended past the border.
type BlurFilter struct {
	// RadiusX and RadiusY are Gaussian sigmas, or box radii when Box is set.
	RadiusX float64
	RadiusY float64

	// Box selects a uniform kernel instead of a Gaussian.
	Box bool
}

// NewBlurFilter creates a Gaussian blur with equal sigma in both directions.
func NewBlurFilter(sigma float64) *BlurFilter {
	return &BlurFilter{RadiusX: sigma, RadiusY: sigma}
}

// NewBoxBlurFilter creates a (2*radius+1)² mean filter.
func NewBoxBlurFilter(radius int) *BlurFilter {
	return &BlurFilter{RadiusX: float64(radius), RadiusY: float64(radius), Box: true}
}

// NewDenoiseFilter returns the noise reduction used by the enhanced upscale:
// a 3x3 mean filter.
func NewDenoiseFilter() *BlurFilter {
	return NewBoxBlurFilter(1)
}

func (f *BlurFilter) kernels() (kx, ky []float32) {
	if f.Box {
		return BoxKernel(int(f.RadiusX)), BoxKernel(int(f.RadiusY))
	}
	return CachedGaussianKernel(f.RadiusX), CachedGaussianKernel(f.RadiusY)
}

// Apply blurs src into dst.
func (f *BlurFilter) Apply(src, dst *image.Pixels) error {
	if err := checkSizes(src, dst); err != nil {
		return err
	}

	kx, ky := f.kernels()
	if len(kx) == 1 && len(ky) == 1 {
		copy(dst.Pix, src.Pix)
		return nil
	}

	w, h := src.Width, src.Height
	temp := getTempBuffer(w * h * image.BytesPerPixel)
	defer putTempBuffer(temp)

	rows(h, func(y0, y1 int) { blurHorizontal(src, temp, y0, y1, kx) })
	rows(h, func(y0, y1 int) { blurVertical(temp, dst, y0, y1, ky) })
	return nil
}

// blurHorizontal convolves rows [y0, y1) of src into temp.
func blurHorizontal(src *image.Pixels, temp []float32, y0, y1 int, kernel []float32) {
	half := len(kernel) / 2
	w := src.Width
	pix := src.Pix

	for y := y0; y < y1; y++ {
		row := y * w
		for x := range w {
			var r, g, b, a float32
			for k, weight := range kernel {
				i := (row + clampInt(x+k-half, 0, w-1)) * 4
				r += float32(pix[i+0]) * weight
				g += float32(pix[i+1]) * weight
				b += float32(pix[i+2]) * weight
				a += float32(pix[i+3]) * weight
			}
			t := (row + x) * 4
			temp[t+0] = r
			temp[t+1] = g
			temp[t+2] = b
			temp[t+3] = a
		}
	}
}

// blurVertical convolves columns of temp into rows [y0, y1) of dst.
func blurVertical(temp []float32, dst *image.Pixels, y0, y1 int, kernel []float32) {
	half := len(kernel) / 2
	w, h := dst.Width, dst.Height
	pix := dst.Pix

	for y := y0; y < y1; y++ {
		for x := range w {
			var r, g, b, a float32
			for k, weight := range kernel {
				t := (clampInt(y+k-half, 0, h-1)*w + x) * 4
				r += temp[t+0] * weight
				g += temp[t+1] * weight
				b += temp[t+2] * weight
				a += temp[t+3] * weight
			}
			i := (y*w + x) * 4
			pix[i+0] = clampUint8(r)
			pix[i+1] = clampUint8(g)
			pix[i+2] = clampUint8(b)
			pix[i+3] = clampUint8(a)
		}
	}
}

// floatBuffer wraps a slice for sync.Pool to avoid allocation warnings.
type floatBuffer struct {
	data []float32
}

var tempBufferPool = sync.Pool{
	New: func() any {
		return &floatBuffer{}
	},
}

// getTempBuffer returns a float buffer of exactly n elements. Contents are
// unspecified; the horizontal pass overwrites every element.
func getTempBuffer(n int) []float32 {
	fb := tempBufferPool.Get().(*floatBuffer)
	if cap(fb.data) < n {
		tempBufferPool.Put(fb)
		return make([]float32, n)
	}
	data := fb.data[:n]
	fb.data = nil
	tempBufferPool.Put(fb)
	return data
}

// putTempBuffer keeps buffers up to 64 MiB for reuse.
func putTempBuffer(buf []float32) {
	if cap(buf) > 16*1024*1024 {
		return
	}
	tempBufferPool.Put(&floatBuffer{data: buf[:cap(buf)]})
}
