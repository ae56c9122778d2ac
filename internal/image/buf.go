// Package image holds the tightly packed RGBA8 pixel buffers exchanged with the
// compute kernel, plus decoding, encoding and CPU resampling helpers.
//
// Pixels are non-premultiplied, four bytes per pixel in R, G, B, A order, rows
// stored top to bottom with no padding. This is the layout the kernel reads
// from and writes to storage buffers.
package image

import (
	"errors"
	"fmt"
)

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

// Common errors for pixel buffers.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("image: invalid dimensions")

	// ErrDataSize is returned when a byte slice does not match width*height*4.
	ErrDataSize = errors.New("image: data size does not match dimensions")
)

// Pixels is a tightly packed, non-premultiplied RGBA8 image.
//
// Thread safety: concurrent readers are safe; writers need external
// synchronization. Disjoint row ranges may be written concurrently.
type Pixels struct {
	Width  int
	Height int
	Pix    []byte
}

// NewPixels allocates a zeroed (transparent black) image.
func NewPixels(width, height int) (*Pixels, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return &Pixels{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}, nil
}

// WrapPixels adopts pix as a width x height image without copying.
func WrapPixels(width, height int, pix []byte) (*Pixels, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if len(pix) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("%w: have %d bytes, want %d", ErrDataSize, len(pix), width*height*BytesPerPixel)
	}
	return &Pixels{Width: width, Height: height, Pix: pix}, nil
}

// Stride returns the number of bytes in one row.
func (p *Pixels) Stride() int {
	return p.Width * BytesPerPixel
}

// Row returns the bytes of row y. The slice aliases Pix.
func (p *Pixels) Row(y int) []byte {
	s := p.Stride()
	return p.Pix[y*s : (y+1)*s]
}

// At returns the pixel at (x, y). Out-of-range coordinates return zeros.
func (p *Pixels) At(x, y int) (r, g, b, a byte) {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return 0, 0, 0, 0
	}
	i := (y*p.Width + x) * BytesPerPixel
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2], p.Pix[i+3]
}

// Set writes the pixel at (x, y). Out-of-range coordinates are ignored.
func (p *Pixels) Set(x, y int, r, g, b, a byte) {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return
	}
	i := (y*p.Width + x) * BytesPerPixel
	p.Pix[i], p.Pix[i+1], p.Pix[i+2], p.Pix[i+3] = r, g, b, a
}

// Fill sets every pixel to the given color.
func (p *Pixels) Fill(r, g, b, a byte) {
	for i := 0; i < len(p.Pix); i += BytesPerPixel {
		p.Pix[i], p.Pix[i+1], p.Pix[i+2], p.Pix[i+3] = r, g, b, a
	}
}

// Clone returns a deep copy.
func (p *Pixels) Clone() *Pixels {
	pix := make([]byte, len(p.Pix))
	copy(pix, p.Pix)
	return &Pixels{Width: p.Width, Height: p.Height, Pix: pix}
}

// SameSize reports whether p and o have identical dimensions.
func (p *Pixels) SameSize(o *Pixels) bool {
	return p.Width == o.Width && p.Height == o.Height
}
