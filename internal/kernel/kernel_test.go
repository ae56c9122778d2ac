package kernel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCount(t *testing.T) {
	tests := []struct {
		size uint32
		want uint32
	}{
		{0, 0},
		{1, 1},
		{15, 1},
		{16, 1},
		{17, 2},
		{257, 17},
		{4096, 256},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, GroupCount(tt.size), "GroupCount(%d)", tt.size)
	}
}

func TestGrid(t *testing.T) {
	x, y, z := Grid(257, 16)
	assert.Equal(t, uint32(17), x)
	assert.Equal(t, uint32(1), y)
	assert.Equal(t, uint32(1), z)
}

func TestSourceUsesWorkgroupSize(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	assert.Contains(t, src, "@workgroup_size(16, 16, 1)")
	assert.Contains(t, src, "fn main(")
	assert.NotContains(t, src, "{{")
}

func TestCompile(t *testing.T) {
	words, err := Compile()
	require.NoError(t, err)
	require.NotEmpty(t, words)
	assert.Equal(t, uint32(spirvMagic), words[0])
}

func TestWords(t *testing.T) {
	_, err := Words(nil)
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	_, err = Words([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	_, err = Words([]byte{0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	words, err := Words([]byte{0x03, 0x02, 0x23, 0x07, 0xff, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 0xff}, words)
}

func TestParamsLayout(t *testing.T) {
	p := Params{Width: 0x0102, Height: 3, Factor: 8}
	b := p.Bytes()
	require.Len(t, b, ParamsSize)
	assert.Equal(t, []byte{0x02, 0x01, 0, 0, 3, 0, 0, 0, 8, 0, 0, 0}, b)

	_, err := DecodeParams(b[:8])
	assert.Error(t, err)
}

func TestOutputSize(t *testing.T) {
	w, h, size := Params{Width: 10, Height: 3, Factor: 4}.OutputSize()
	assert.Equal(t, uint32(40), w)
	assert.Equal(t, uint32(12), h)
	assert.Equal(t, uint64(40*12*4), size)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/upscale.spv")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "kernel: read"))
}

func TestCompileIsShared(t *testing.T) {
	a, err := Compile()
	require.NoError(t, err)
	b, err := Compile()
	require.NoError(t, err)
	assert.Same(t, &a[0], &b[0])
}

func TestLoadCachesByContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k.spv")
	blob := []byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0}
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	a, err := Load(path)
	require.NoError(t, err)
	b, err := Load(path)
	require.NoError(t, err)
	assert.Same(t, &a[0], &b[0])

	// A rewritten file with a different size is read again.
	blob = append(blob, 2, 0, 0, 0)
	require.NoError(t, os.WriteFile(path, blob, 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 1, 2}, c)
}

func TestLoadInvalidNotCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.spv")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4}, 0o600))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidSPIRV)
	_, err = Load(path)
	require.ErrorIs(t, err, ErrInvalidSPIRV)
}
