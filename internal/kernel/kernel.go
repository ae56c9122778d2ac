package kernel

import (
	"bytes"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"text/template"

	"github.com/gogpu/naga"

	"github.com/gogpu/upscale/internal/cache"
)

// WorkgroupSize is the local size of the kernel in both X and Y.
const WorkgroupSize = 16

// EntryPoint is the name of the compute entry point.
const EntryPoint = "main"

// ParamsSize is the size in bytes of the push parameter block.
const ParamsSize = 12

// BytesPerPixel is the stride of one RGBA8 pixel.
const BytesPerPixel = 4

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// Errors returned when loading a precompiled kernel.
var (
	ErrInvalidSPIRV = errors.New("kernel: invalid SPIR-V binary")
)

//go:embed shaders/upscale.wgsl
var upscaleTemplate string

var (
	sourceOnce sync.Once
	source     string
	sourceErr  error
)

// Source returns the rendered WGSL source of the upscale kernel.
func Source() (string, error) {
	sourceOnce.Do(func() {
		source, sourceErr = render()
	})
	return source, sourceErr
}

func render() (string, error) {
	tmpl, err := template.New("upscale").Parse(upscaleTemplate)
	if err != nil {
		return "", fmt.Errorf("kernel: parse template: %w", err)
	}
	var buf bytes.Buffer
	data := struct {
		WorkgroupSize int
		EntryPoint    string
	}{WorkgroupSize, EntryPoint}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("kernel: render template: %w", err)
	}
	return buf.String(), nil
}

// programCacheSize bounds the number of SPIR-V programs kept in memory.
const programCacheSize = 8

// builtinKey is the cache key of the compiled built-in kernel. File keys
// carry a "file:" prefix.
const builtinKey = "builtin"

var programs = cache.New[string, []uint32](programCacheSize)

// Compile renders the kernel and compiles it to SPIR-V words. The result
// is cached and shared; callers must not modify it.
func Compile() ([]uint32, error) {
	return programs.GetOrCreate(builtinKey, compile)
}

func compile() ([]uint32, error) {
	src, err := Source()
	if err != nil {
		return nil, err
	}
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("kernel: compile: %w", err)
	}
	return Words(spirv)
}

// Load reads a precompiled SPIR-V binary from path. The contents are not
// inspected beyond the word alignment and the magic number. Programs are
// cached by path, size and modification time; callers must not modify the
// returned words.
func Load(path string) ([]uint32, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("kernel: read %s: %w", path, err)
	}
	key := fmt.Sprintf("file:%s:%d:%d", path, fi.Size(), fi.ModTime().UnixNano())
	return programs.GetOrCreate(key, func() ([]uint32, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("kernel: read %s: %w", path, err)
		}
		return Words(data)
	})
}

// Words converts a little-endian SPIR-V byte stream to 32-bit words.
func Words(data []byte) ([]uint32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a positive multiple of 4", ErrInvalidSPIRV, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

// GroupCount returns the number of workgroups needed to cover size
// invocations along one axis.
func GroupCount(size uint32) uint32 {
	return (size + WorkgroupSize - 1) / WorkgroupSize
}

// Grid returns the dispatch grid for an output image of the given size.
func Grid(outWidth, outHeight uint32) (x, y, z uint32) {
	return GroupCount(outWidth), GroupCount(outHeight), 1
}

// Params is the push parameter block consumed by the kernel.
type Params struct {
	Width  uint32
	Height uint32
	Factor uint32
}

// Bytes encodes p in the kernel's little-endian layout.
func (p Params) Bytes() []byte {
	buf := make([]byte, ParamsSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.Width)
	binary.LittleEndian.PutUint32(buf[4:8], p.Height)
	binary.LittleEndian.PutUint32(buf[8:12], p.Factor)
	return buf
}

// DecodeParams is the inverse of Params.Bytes.
func DecodeParams(b []byte) (Params, error) {
	if len(b) != ParamsSize {
		return Params{}, fmt.Errorf("kernel: params block is %d bytes, want %d", len(b), ParamsSize)
	}
	return Params{
		Width:  binary.LittleEndian.Uint32(b[0:4]),
		Height: binary.LittleEndian.Uint32(b[4:8]),
		Factor: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// OutputSize returns the output dimensions and byte length for p.
func (p Params) OutputSize() (width, height uint32, size uint64) {
	width = p.Width * p.Factor
	height = p.Height * p.Factor
	return width, height, uint64(width) * uint64(height) * BytesPerPixel
}
