package upscale

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/upscale/internal/filter"
	pixels "github.com/gogpu/upscale/internal/image"
	"github.com/gogpu/upscale/internal/kernel"
	"github.com/gogpu/upscale/internal/loader"
	"github.com/gogpu/upscale/internal/vkcompute"
	"github.com/gogpu/upscale/internal/vkcompute/vktest"
)

var fixedTime = time.Unix(1700000000, 0)

// writeFixture writes a w x h gradient PNG with varying alpha and returns
// its path and pixels.
func writeFixture(t *testing.T, w, h int) (string, *pixels.Pixels) {
	t.Helper()
	p, err := pixels.NewPixels(w, h)
	require.NoError(t, err)
	for y := range h {
		for x := range w {
			p.Set(x, y, byte(x*255/max(w-1, 1)), byte(y*255/max(h-1, 1)), byte((x*37+y*91)%256), byte(255-x*3))
		}
	}
	path := filepath.Join(t.TempDir(), "input.png")
	require.NoError(t, p.SavePNG(path))
	return path, p
}

// testOptions routes an operation to the fake driver, skips platform
// driver discovery and writes into a per-test directory.
func testOptions(t *testing.T, drv vkcompute.Driver, extra ...Option) []Option {
	t.Helper()
	opts := []Option{
		withDriver(drv),
		withLoaderConfig(loader.Config{}),
		WithOutputDir(t.TempDir()),
		WithClock(func() time.Time { return fixedTime }),
	}
	return append(opts, extra...)
}

func loadOutput(t *testing.T, path string) *pixels.Pixels {
	t.Helper()
	p, format, err := pixels.Load(path)
	require.NoError(t, err)
	require.Equal(t, "png", format)
	return p
}

func assertClean(t *testing.T, drv *vktest.Driver) {
	t.Helper()
	assert.Empty(t, drv.Leaks(), "leaked GPU objects")
	assert.Empty(t, drv.Violations(), "teardown order violations")
}

func TestUpscaleDimensions(t *testing.T) {
	in, _ := writeFixture(t, 5, 3)

	for factor := MinFactor; factor <= MaxFactor; factor++ {
		t.Run(fmt.Sprintf("x%d", factor), func(t *testing.T) {
			drv := vktest.NewDriver()
			out, err := Upscale(in, factor, testOptions(t, drv)...)
			require.NoError(t, err)

			got := loadOutput(t, out)
			assert.Equal(t, 5*factor, got.Width)
			assert.Equal(t, 3*factor, got.Height)
			assertClean(t, drv)
		})
	}
}

func TestUpscaleFactorOneIsIdentity(t *testing.T) {
	in, src := writeFixture(t, 7, 4)
	drv := vktest.NewDriver()

	out, err := Upscale(in, 1, testOptions(t, drv)...)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, loadOutput(t, out).Pix)
}

func TestUpscaleMatchesKernel(t *testing.T) {
	in, src := writeFixture(t, 6, 5)
	drv := vktest.NewDriver()

	out, err := Upscale(in, 3, testOptions(t, drv)...)
	require.NoError(t, err)

	want, err := kernel.Reference(src.Pix, kernel.Params{Width: 6, Height: 5, Factor: 3})
	require.NoError(t, err)
	assert.Equal(t, want, loadOutput(t, out).Pix)

	// One dispatch, grid covering 18x15 with 16x16 groups.
	sub := drv.Submitted()
	require.Len(t, sub, 1)
	assert.Equal(t, [3]uint32{2, 1, 1}, sub[0].Groups)
}

func TestRunResult(t *testing.T) {
	in, _ := writeFixture(t, 4, 2)
	drv := vktest.NewDriver()

	res, err := Run(context.Background(), Request{InputPath: in, Factor: 2, Options: testOptions(t, drv)})
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(res.OutputPath))
	assert.Equal(t, "upscaled_2x_1700000000.png", filepath.Base(res.OutputPath))
	assert.Equal(t, 4, res.SourceWidth)
	assert.Equal(t, 2, res.SourceHeight)
	assert.Equal(t, 8, res.Width)
	assert.Equal(t, 4, res.Height)
	assert.Equal(t, "png", res.SourceFormat)
	assert.Equal(t, VariantGPU, res.Variant)
	assert.Equal(t, time.Duration(0), res.Elapsed, "fixed clock")
	assert.Equal(t, gpucontext.AdapterInfo{Name: "Fake GPU", Type: gpucontext.AdapterTypeDiscrete}, res.Adapter)
}

func TestOutputNames(t *testing.T) {
	in, _ := writeFixture(t, 2, 2)
	dir := t.TempDir()

	tests := []struct {
		variant Variant
		factor  int
		want    string
	}{
		{VariantGPU, 4, "upscaled_4x_1700000000.png"},
		{VariantEnhanced, 2, "upscaled_enhanced_2x_1700000000.png"},
		{VariantNearest, 8, "upscaled_nearest_8x_1700000000.png"},
	}
	for _, tt := range tests {
		t.Run(tt.variant.String(), func(t *testing.T) {
			opts := testOptions(t, vktest.NewDriver(), WithOutputDir(dir))
			res, err := Run(context.Background(), Request{InputPath: in, Factor: tt.factor, Variant: tt.variant, Options: opts})
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.want), res.OutputPath)

			_, err = os.Stat(res.OutputPath)
			assert.NoError(t, err)
		})
	}
}

func TestOutputNamesNeverOverwrite(t *testing.T) {
	square, _ := writeFixture(t, 4, 4)
	wide, _ := writeFixture(t, 9, 3)
	dir := t.TempDir()

	var paths []string
	for _, in := range []string{square, wide, square} {
		opts := testOptions(t, vktest.NewDriver(), WithOutputDir(dir))
		out, err := Upscale(in, 2, opts...)
		require.NoError(t, err)
		paths = append(paths, out)
	}

	assert.Equal(t, []string{
		filepath.Join(dir, "upscaled_2x_1700000000.png"),
		filepath.Join(dir, "upscaled_2x_1700000000_1.png"),
		filepath.Join(dir, "upscaled_2x_1700000000_2.png"),
	}, paths)

	first := loadOutput(t, paths[0])
	assert.Equal(t, 8, first.Width)
	assert.Equal(t, 8, first.Height)
	second := loadOutput(t, paths[1])
	assert.Equal(t, 18, second.Width)
	assert.Equal(t, 6, second.Height)
}

func TestDefaultOutputDir(t *testing.T) {
	in, _ := writeFixture(t, 2, 2)

	out, err := UpscaleNearest(in, 2)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(out) })

	dir, err := processTempDir()
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(out))
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "vupscale-"))
}

func TestValidationRejectsBeforeGPU(t *testing.T) {
	in, _ := writeFixture(t, 2, 2)
	missing := filepath.Join(t.TempDir(), "nope.png")
	underFile := filepath.Join(in, "child.png")

	tests := []struct {
		name    string
		path    string
		factor  int
		wantErr error
		wantMsg string
	}{
		{"factor zero", in, 0, ErrInvalidFactor, "invalid upscale factor: 0 (must be between 1 and 8)"},
		{"factor nine", in, 9, ErrInvalidFactor, "invalid upscale factor: 9 (must be between 1 and 8)"},
		{"negative factor", in, -2, ErrInvalidFactor, "invalid upscale factor: -2"},
		{"missing input", missing, 2, ErrInputNotFound, "input file does not exist: " + missing},
		{"missing input and bad factor", missing, 0, ErrInputNotFound, "input file does not exist"},
		{"input below a regular file", underFile, 2, ErrInputInaccessible, "input file is not accessible"},
	}
	for _, tt := range tests {
		for _, v := range []Variant{VariantGPU, VariantEnhanced, VariantNearest} {
			t.Run(tt.name+"/"+v.String(), func(t *testing.T) {
				drv := vktest.NewDriver()
				dir := t.TempDir()
				opts := testOptions(t, drv, WithOutputDir(dir))

				_, err := Run(context.Background(), Request{InputPath: tt.path, Factor: tt.factor, Variant: v, Options: opts})
				require.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), tt.wantMsg)
				assert.Equal(t, KindValidation, Kind(err))

				assert.Empty(t, drv.Calls(), "no driver call before validation passes")
				entries, _ := os.ReadDir(dir)
				assert.Empty(t, entries, "no output written")
			})
		}
	}
}

func TestDecodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))
	drv := vktest.NewDriver()

	_, err := Upscale(path, 2, testOptions(t, drv)...)
	require.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, KindIO, Kind(err))
	assert.Empty(t, drv.Calls(), "decoding happens before the device is touched")
}

func TestEncodeFailure(t *testing.T) {
	in, _ := writeFixture(t, 2, 2)
	drv := vktest.NewDriver()

	opts := testOptions(t, drv, WithOutputDir(filepath.Join(t.TempDir(), "missing", "dir")))
	_, err := Upscale(in, 2, opts...)
	require.ErrorIs(t, err, ErrEncode)
	assert.Equal(t, KindIO, Kind(err))
	assertClean(t, drv)
}

func TestGPUFailuresAreClassifiedAndReleased(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*vktest.Driver)
		wantErr  error
		wantKind ErrorKind
	}{
		{
			name:     "loader",
			setup:    func(d *vktest.Driver) { d.FailOn("Load", nil) },
			wantErr:  ErrContext,
			wantKind: KindDriver,
		},
		{
			name: "no compute queue",
			setup: func(d *vktest.Driver) {
				d.Devices[0].QueueFamilies = d.Devices[0].QueueFamilies[:1]
			},
			wantErr:  ErrNoComputeDevice,
			wantKind: KindDriver,
		},
		{
			name:     "device creation",
			setup:    func(d *vktest.Driver) { d.FailOn("CreateDevice", nil) },
			wantErr:  ErrContext,
			wantKind: KindDriver,
		},
		{
			name:     "pipeline compilation",
			setup:    func(d *vktest.Driver) { d.FailOn("CreateComputePipeline", nil) },
			wantErr:  ErrContext,
			wantKind: KindDriver,
		},
		{
			name: "no host-visible memory",
			setup: func(d *vktest.Driver) {
				d.Devices[0].Memory = vktest.MemoryProperties(vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
			},
			wantErr:  ErrNoMemoryType,
			wantKind: KindResource,
		},
		{
			name:     "allocation",
			setup:    func(d *vktest.Driver) { d.FailOn("AllocateMemory", nil) },
			wantErr:  ErrResource,
			wantKind: KindResource,
		},
		{
			name:     "submit",
			setup:    func(d *vktest.Driver) { d.FailOn("QueueSubmit", nil) },
			wantErr:  ErrResource,
			wantKind: KindResource,
		},
		{
			name: "device limits",
			setup: func(d *vktest.Driver) {
				d.Devices[0].Properties.Limits.MaxStorageBufferRange = 64
			},
			wantErr:  ErrResource,
			wantKind: KindResource,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, _ := writeFixture(t, 8, 8)
			drv := vktest.NewDriver()
			tt.setup(drv)
			dir := t.TempDir()

			_, err := UpscaleEnhanced(in, 2, testOptions(t, drv, WithOutputDir(dir))...)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, Kind(err))
			assertClean(t, drv)

			entries, _ := os.ReadDir(dir)
			assert.Empty(t, entries)
		})
	}
}

func TestInjectedCauseIsPreserved(t *testing.T) {
	in, _ := writeFixture(t, 2, 2)
	drv := vktest.NewDriver()
	drv.FailOn("CreateDevice", nil)

	_, err := Upscale(in, 2, testOptions(t, drv)...)
	assert.ErrorIs(t, err, vktest.ErrInjected)
}

func TestUpscaleEnhancedFilters(t *testing.T) {
	in, src := writeFixture(t, 9, 7)
	const factor = 2
	plain, err := kernel.Reference(src.Pix, kernel.Params{Width: 9, Height: 7, Factor: factor})
	require.NoError(t, err)

	expect := func(t *testing.T, filters ...filter.Filter) []byte {
		t.Helper()
		p, err := pixels.WrapPixels(9*factor, 7*factor, append([]byte(nil), plain...))
		require.NoError(t, err)
		if len(filters) > 0 {
			require.NoError(t, filter.ApplyInPlace(filter.Chain(filters), p))
		}
		return p.Pix
	}

	tests := []struct {
		name string
		opts []Option
		want []byte
	}{
		{
			name: "all off equals plain kernel output",
			opts: []Option{WithSharpening(false), WithContrastEnhancement(false), WithNoiseReduction(false)},
			want: expect(t),
		},
		{
			name: "defaults sharpen then contrast",
			want: expect(t, filter.NewSharpenFilter(), filter.NewEnhanceFilter()),
		},
		{
			name: "contrast only",
			opts: []Option{WithSharpening(false)},
			want: expect(t, filter.NewEnhanceFilter()),
		},
		{
			name: "all on, noise reduction first",
			opts: []Option{WithNoiseReduction(true)},
			want: expect(t, filter.NewDenoiseFilter(), filter.NewSharpenFilter(), filter.NewEnhanceFilter()),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := vktest.NewDriver()
			out, err := UpscaleEnhanced(in, factor, testOptions(t, drv, tt.opts...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, loadOutput(t, out).Pix)
			assertClean(t, drv)
		})
	}
}

func TestUpscaleIgnoresFilterOptions(t *testing.T) {
	in, src := writeFixture(t, 3, 3)
	drv := vktest.NewDriver()

	out, err := Upscale(in, 2, testOptions(t, drv, WithNoiseReduction(true))...)
	require.NoError(t, err)

	want, err := kernel.Reference(src.Pix, kernel.Params{Width: 3, Height: 3, Factor: 2})
	require.NoError(t, err)
	assert.Equal(t, want, loadOutput(t, out).Pix)
}

func TestUpscaleNearest(t *testing.T) {
	in, src := writeFixture(t, 4, 3)
	drv := vktest.NewDriver()

	res, err := Run(context.Background(), Request{InputPath: in, Factor: 3, Variant: VariantNearest, Options: testOptions(t, drv)})
	require.NoError(t, err)
	assert.Empty(t, drv.Calls(), "nearest never touches the GPU")
	assert.Equal(t, gpucontext.AdapterTypeUnknown, res.Adapter.Type)

	got := loadOutput(t, res.OutputPath)
	require.Equal(t, 12, got.Width)
	require.Equal(t, 9, got.Height)
	for y := range got.Height {
		for x := range got.Width {
			r, g, b, a := got.At(x, y)
			sr, sg, sb, sa := src.At(x/3, y/3)
			require.Equal(t, [4]byte{sr, sg, sb, sa}, [4]byte{r, g, b, a}, "pixel (%d,%d)", x, y)
		}
	}
}

func TestWithKernelBinary(t *testing.T) {
	in, _ := writeFixture(t, 2, 2)

	t.Run("valid blob", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "upscale.spv")
		blob := binary.LittleEndian.AppendUint32(nil, 0x07230203)
		blob = binary.LittleEndian.AppendUint32(blob, 0x00010300)
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		drv := vktest.NewDriver()
		_, err := Upscale(in, 2, testOptions(t, drv, WithKernelBinary(path))...)
		require.NoError(t, err)
		assertClean(t, drv)
	})

	t.Run("bad magic", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.spv")
		require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4}, 0o600))

		drv := vktest.NewDriver()
		_, err := Upscale(in, 2, testOptions(t, drv, WithKernelBinary(path))...)
		require.ErrorIs(t, err, ErrContext)
		assert.ErrorIs(t, err, kernel.ErrInvalidSPIRV)
		assert.Empty(t, drv.Calls(), "kernel is loaded before the driver")
	})

	t.Run("missing file", func(t *testing.T) {
		drv := vktest.NewDriver()
		_, err := Upscale(in, 2, testOptions(t, drv, WithKernelBinary(filepath.Join(t.TempDir(), "none.spv")))...)
		assert.Equal(t, KindDriver, Kind(err))
	})
}

// envRecorder records the loader environment seen at instance creation.
type envRecorder struct {
	*vktest.Driver
	icd, driverFiles string
}

func (r *envRecorder) CreateInstance(info vkcompute.InstanceInfo) (vk.Instance, error) {
	r.icd = os.Getenv(loader.EnvICDFilenames)
	r.driverFiles = os.Getenv(loader.EnvDriverFiles)
	return r.Driver.CreateInstance(info)
}

func TestPortabilityDriverSteering(t *testing.T) {
	t.Setenv(loader.EnvICDFilenames, "/previous/icd.json")
	t.Setenv(loader.EnvDriverFiles, "")
	os.Unsetenv(loader.EnvDriverFiles)

	libDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(libDir, loader.DefaultLibraryName), []byte("dylib"), 0o600))
	manifestDir := t.TempDir()

	in, _ := writeFixture(t, 2, 2)
	rec := &envRecorder{Driver: vktest.NewDriver()}
	opts := testOptions(t, rec,
		withLoaderConfig(loader.Config{Required: true, LibraryName: loader.DefaultLibraryName, TempDir: manifestDir}),
		WithDriverSearchPaths(t.TempDir(), libDir),
	)

	_, err := Upscale(in, 2, opts...)
	require.NoError(t, err)

	assert.Equal(t, manifestDir, filepath.Dir(rec.icd), "manifest visible to instance creation")
	assert.Equal(t, rec.icd, rec.driverFiles)

	assert.Equal(t, "/previous/icd.json", os.Getenv(loader.EnvICDFilenames), "environment restored")
	_, set := os.LookupEnv(loader.EnvDriverFiles)
	assert.False(t, set, "unset variable stays unset")

	entries, err := os.ReadDir(manifestDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "manifest removed")
	assertClean(t, rec.Driver)
}

func TestPortabilityDriverDirectLoading(t *testing.T) {
	t.Setenv(loader.EnvICDFilenames, "/previous/icd.json")

	libDir := t.TempDir()
	lib := filepath.Join(libDir, loader.DefaultLibraryName)
	require.NoError(t, os.WriteFile(lib, []byte("dylib"), 0o600))

	in, _ := writeFixture(t, 2, 2)
	rec := &envRecorder{Driver: vktest.NewDriver()}
	rec.Extensions = append(rec.Extensions, vkcompute.DirectDriverLoadingExtension)
	opts := testOptions(t, rec,
		withLoaderConfig(loader.Config{Required: true, LibraryName: loader.DefaultLibraryName, TempDir: t.TempDir()}),
		WithDriverSearchPaths(libDir),
	)

	_, err := Upscale(in, 2, opts...)
	require.NoError(t, err)

	info := rec.InstanceInfo()
	assert.Equal(t, lib, info.DirectDriver)
	assert.Contains(t, info.Extensions, vkcompute.DirectDriverLoadingExtension)
	assert.Equal(t, "/previous/icd.json", rec.icd, "environment left alone")
	assertClean(t, rec.Driver)
}

func TestPortabilityDriverMissing(t *testing.T) {
	in, _ := writeFixture(t, 2, 2)
	drv := vktest.NewDriver()
	opts := testOptions(t, drv,
		withLoaderConfig(loader.Config{Required: true, LibraryName: loader.DefaultLibraryName}),
		WithDriverSearchPaths(t.TempDir()),
	)

	_, err := Upscale(in, 2, opts...)
	require.ErrorIs(t, err, ErrDriverNotFound)
	assert.ErrorIs(t, err, loader.ErrDriverNotFound)
	assert.NotErrorIs(t, err, ErrNoComputeDevice)
	assert.Equal(t, KindDriver, Kind(err))
	assert.Empty(t, drv.Calls())
}

func TestRunCanceledContext(t *testing.T) {
	in, _ := writeFixture(t, 2, 2)
	drv := vktest.NewDriver()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Request{InputPath: in, Factor: 2, Options: testOptions(t, drv)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, drv.Calls())
}

func TestParseVariant(t *testing.T) {
	for _, v := range []Variant{VariantGPU, VariantEnhanced, VariantNearest} {
		got, err := ParseVariant(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	got, err := ParseVariant(" Enhanced ")
	require.NoError(t, err)
	assert.Equal(t, VariantEnhanced, got)

	_, err = ParseVariant("bicubic")
	assert.Error(t, err)
	assert.Equal(t, "Variant(7)", Variant(7).String())
}
