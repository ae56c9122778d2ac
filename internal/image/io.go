package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"io"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// I/O errors.
var (
	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("image: empty data")
)

// Load decodes the image file at path, auto-detecting the format.
// Supported formats: PNG, JPEG, GIF, BMP, TIFF, WebP.
func Load(path string) (*Pixels, string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, "", fmt.Errorf("image: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// LoadFromBytes decodes an in-memory image, auto-detecting the format.
func LoadFromBytes(data []byte) (*Pixels, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyData
	}
	return Decode(bytes.NewReader(data))
}

// Decode decodes an image from r and returns it with the detected format name.
func Decode(r io.Reader) (*Pixels, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("image: decode: %w", err)
	}
	p, err := FromStdImage(img)
	if err != nil {
		return nil, "", err
	}
	return p, format, nil
}

// SavePNG writes p to path as a PNG file.
func (p *Pixels) SavePNG(path string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}

	if err := p.EncodePNG(f); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// CreatePNG writes p as PNG to a new file at path. It never replaces an
// existing file: if path exists the error wraps fs.ErrExist. A file left
// incomplete by an encode failure is removed.
func (p *Pixels) CreatePNG(path string) error {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}

	err = p.EncodePNG(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// EncodePNG encodes p as PNG to w.
func (p *Pixels) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, p.ToNRGBA()); err != nil {
		return fmt.Errorf("image: encode PNG: %w", err)
	}
	return nil
}

// EncodeToBytes encodes p as PNG and returns the bytes.
func (p *Pixels) EncodeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromStdImage converts any image.Image to non-premultiplied RGBA8.
func FromStdImage(img image.Image) (*Pixels, error) {
	bounds := img.Bounds()
	p, err := NewPixels(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	// Fast path: already in the target layout.
	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := range p.Height {
			start := (bounds.Min.Y+y-nrgba.Rect.Min.Y)*nrgba.Stride + (bounds.Min.X-nrgba.Rect.Min.X)*BytesPerPixel
			copy(p.Row(y), nrgba.Pix[start:start+p.Stride()])
		}
		return p, nil
	}

	// Everything else, premultiplied RGBA included, goes through the
	// converting draw into an NRGBA view of p.
	dst := p.nrgbaView()
	draw.Draw(dst, dst.Rect, img, bounds.Min, draw.Src)
	return p, nil
}

// ToNRGBA returns an *image.NRGBA sharing p's pixel memory.
func (p *Pixels) ToNRGBA() *image.NRGBA {
	return p.nrgbaView()
}

func (p *Pixels) nrgbaView() *image.NRGBA {
	return &image.NRGBA{Pix: p.Pix, Stride: p.Stride(), Rect: image.Rect(0, 0, p.Width, p.Height)}
}

// rawView reinterprets p as *image.RGBA so that resamplers copy channel bytes
// verbatim instead of converting between alpha representations.
func (p *Pixels) rawView() *image.RGBA {
	return &image.RGBA{Pix: p.Pix, Stride: p.Stride(), Rect: image.Rect(0, 0, p.Width, p.Height)}
}
