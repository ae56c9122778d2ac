package image

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPixels(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantErr       bool
	}{
		{"valid", 3, 2, false},
		{"single pixel", 1, 1, false},
		{"zero width", 0, 2, true},
		{"zero height", 2, 0, true},
		{"negative", -1, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPixels(tt.width, tt.height)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidDimensions), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, p.Pix, tt.width*tt.height*BytesPerPixel)
			assert.Equal(t, tt.width*BytesPerPixel, p.Stride())
		})
	}
}

func TestWrapPixels(t *testing.T) {
	pix := make([]byte, 2*2*4)
	p, err := WrapPixels(2, 2, pix)
	require.NoError(t, err)

	p.Set(1, 1, 9, 8, 7, 6)
	assert.Equal(t, byte(9), pix[12], "WrapPixels must not copy")

	_, err = WrapPixels(2, 2, pix[:15])
	assert.ErrorIs(t, err, ErrDataSize)

	_, err = WrapPixels(0, 2, nil)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestPixels_AtSet(t *testing.T) {
	p, err := NewPixels(4, 3)
	require.NoError(t, err)

	p.Set(2, 1, 10, 20, 30, 40)
	r, g, b, a := p.At(2, 1)
	assert.Equal(t, [4]byte{10, 20, 30, 40}, [4]byte{r, g, b, a})

	// Row-major, 4 bytes per pixel.
	assert.Equal(t, []byte{10, 20, 30, 40}, p.Pix[(1*4+2)*4:(1*4+2)*4+4])
	assert.Equal(t, []byte{10, 20, 30, 40}, p.Row(1)[8:12])

	// Out of range is a no-op / zero.
	p.Set(-1, 0, 1, 1, 1, 1)
	p.Set(4, 0, 1, 1, 1, 1)
	r, g, b, a = p.At(0, 3)
	assert.Equal(t, [4]byte{}, [4]byte{r, g, b, a})
}

func TestPixels_FillClone(t *testing.T) {
	p, err := NewPixels(2, 2)
	require.NoError(t, err)
	p.Fill(1, 2, 3, 4)

	c := p.Clone()
	assert.Equal(t, p.Pix, c.Pix)
	assert.True(t, p.SameSize(c))

	c.Set(0, 0, 0, 0, 0, 0)
	r, _, _, _ := p.At(0, 0)
	assert.Equal(t, byte(1), r, "Clone must be deep")
}
