package upscale

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/upscale/internal/filter"
	"github.com/gogpu/upscale/internal/image"
	"github.com/gogpu/upscale/internal/kernel"
	"github.com/gogpu/upscale/internal/loader"
	"github.com/gogpu/upscale/internal/vkcompute"
)

// Factor bounds, inclusive.
const (
	MinFactor = 1
	MaxFactor = 8
)

// Variant selects how an image is upscaled.
type Variant int

const (
	// VariantGPU runs the bilinear compute kernel only.
	VariantGPU Variant = iota
	// VariantEnhanced runs the compute kernel followed by the CPU
	// post-filters enabled in the options.
	VariantEnhanced
	// VariantNearest resamples on the CPU with nearest-neighbor sampling.
	// No GPU object is created.
	VariantNearest
)

// String returns the variant name accepted by ParseVariant.
func (v Variant) String() string {
	switch v {
	case VariantGPU:
		return "gpu"
	case VariantEnhanced:
		return "enhanced"
	case VariantNearest:
		return "nearest"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant parses "gpu", "enhanced" or "nearest".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gpu", "":
		return VariantGPU, nil
	case "enhanced":
		return VariantEnhanced, nil
	case "nearest":
		return VariantNearest, nil
	}
	return 0, fmt.Errorf("upscale: unknown variant %q", s)
}

func (v Variant) filePrefix() string {
	switch v {
	case VariantEnhanced:
		return "upscaled_enhanced"
	case VariantNearest:
		return "upscaled_nearest"
	default:
		return "upscaled"
	}
}

// Request describes one upscale operation.
type Request struct {
	InputPath string
	Factor    int
	Variant   Variant
	Options   []Option
}

// Result describes a completed upscale.
type Result struct {
	// OutputPath is the absolute path of the written PNG.
	OutputPath string

	SourceWidth, SourceHeight int
	Width, Height             int

	// SourceFormat is the decoder that read the input ("png", "jpeg", ...).
	SourceFormat string

	Variant Variant
	Elapsed time.Duration

	// Adapter is the GPU that ran the kernel. Type is AdapterTypeUnknown
	// and Name empty for VariantNearest.
	Adapter gpucontext.AdapterInfo
}

// Upscale scales the image at inputPath by factor with the GPU kernel and
// returns the path of the resulting PNG, named upscaled_{f}x_{unix}.png.
func Upscale(inputPath string, factor int, opts ...Option) (string, error) {
	res, err := Run(context.Background(), Request{InputPath: inputPath, Factor: factor, Variant: VariantGPU, Options: opts})
	return res.OutputPath, err
}

// UpscaleEnhanced is Upscale followed by noise reduction, sharpening and
// contrast enhancement, each gated by its option. The output is named
// upscaled_enhanced_{f}x_{unix}.png.
func UpscaleEnhanced(inputPath string, factor int, opts ...Option) (string, error) {
	res, err := Run(context.Background(), Request{InputPath: inputPath, Factor: factor, Variant: VariantEnhanced, Options: opts})
	return res.OutputPath, err
}

// UpscaleNearest scales the image with CPU nearest-neighbor sampling, so
// every output pixel is a copy of a source pixel. The output is named
// upscaled_nearest_{f}x_{unix}.png.
func UpscaleNearest(inputPath string, factor int, opts ...Option) (string, error) {
	res, err := Run(context.Background(), Request{InputPath: inputPath, Factor: factor, Variant: VariantNearest, Options: opts})
	return res.OutputPath, err
}

// Run executes req. The input path and factor are validated before any
// decoding or GPU work. ctx is checked between stages; a GPU dispatch, once
// submitted, always runs to completion.
func Run(ctx context.Context, req Request) (Result, error) {
	o := resolveOptions(req.Options)
	res := Result{Variant: req.Variant, Adapter: gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown}}

	if err := validate(req.InputPath, req.Factor); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	start := o.now()
	log := Logger().With("variant", req.Variant.String(), "factor", req.Factor)

	src, format, err := image.Load(req.InputPath)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	res.SourceFormat = format
	res.SourceWidth, res.SourceHeight = src.Width, src.Height
	log.Debug("upscale: input decoded", "path", req.InputPath, "format", format, "width", src.Width, "height", src.Height)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	var out *image.Pixels
	switch req.Variant {
	case VariantNearest:
		out, err = image.ResizeNearest(src, req.Factor)
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrResource, err)
		}
	case VariantGPU, VariantEnhanced:
		out, res.Adapter, err = gpuUpscale(o, src, req.Factor)
		if err != nil {
			return res, err
		}
		if req.Variant == VariantEnhanced {
			if err := postProcess(o, out); err != nil {
				return res, err
			}
		}
	default:
		return res, fmt.Errorf("upscale: unknown variant %d", int(req.Variant))
	}
	res.Width, res.Height = out.Width, out.Height

	path, err := writeOutput(o, req.Variant, req.Factor, out)
	if err != nil {
		return res, err
	}
	res.OutputPath = path
	res.Elapsed = o.now().Sub(start)

	log.Info("upscale: done",
		"width", res.Width, "height", res.Height,
		"output", path, "elapsed", res.Elapsed)
	return res, nil
}

// validate enforces the preconditions checked before any other work.
func validate(path string, factor int) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return fmt.Errorf("%w: %w", ErrInputInaccessible, err)
	}
	if factor < MinFactor || factor > MaxFactor {
		return fmt.Errorf("%w: %d (must be between %d and %d)", ErrInvalidFactor, factor, MinFactor, MaxFactor)
	}
	return nil
}

// gpuUpscale runs the compute kernel over src. Every GPU object, the loader
// manifest included, is released before it returns.
func gpuUpscale(o options, src *image.Pixels, factor int) (*image.Pixels, gpucontext.AdapterInfo, error) {
	unknown := gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown}

	session, err := loader.Prepare(o.loaderConfig())
	if err != nil {
		if errors.Is(err, loader.ErrDriverNotFound) {
			return nil, unknown, fmt.Errorf("%w: %w", ErrDriverNotFound, err)
		}
		return nil, unknown, fmt.Errorf("%w: %w", ErrContext, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			Logger().Warn("upscale: loader cleanup failed", "err", err)
		}
	}()

	var code []uint32
	if o.kernelPath != "" {
		code, err = kernel.Load(o.kernelPath)
		if err != nil {
			return nil, unknown, fmt.Errorf("%w: %w", ErrContext, err)
		}
	}

	drv := o.driver
	if drv == nil {
		drv = vkcompute.NewVulkanDriver()
	}
	vc, err := vkcompute.NewContext(drv, vkcompute.ContextOptions{
		Kernel:        code,
		DirectDriver:  session.Library(),
		PrepareLoader: session.Apply,
	})
	if err != nil {
		if errors.Is(err, vkcompute.ErrNoComputeDevice) {
			return nil, unknown, fmt.Errorf("%w: %w", ErrNoComputeDevice, err)
		}
		return nil, unknown, fmt.Errorf("%w: %w", ErrContext, err)
	}
	defer vc.Close()
	adapter := adapterInfo(vc.Adapter())

	p := kernel.Params{Width: uint32(src.Width), Height: uint32(src.Height), Factor: uint32(factor)}
	pix, err := vc.Upscale(src.Pix, p)
	if err != nil {
		if errors.Is(err, vkcompute.ErrNoMemoryType) {
			return nil, adapter, fmt.Errorf("%w: %w", ErrNoMemoryType, err)
		}
		return nil, adapter, fmt.Errorf("%w: %w", ErrResource, err)
	}

	w, h, _ := p.OutputSize()
	out, err := image.WrapPixels(int(w), int(h), pix)
	if err != nil {
		return nil, adapter, fmt.Errorf("%w: %w", ErrResource, err)
	}
	return out, adapter, nil
}

// postFilters returns the enabled post-filters in application order.
func postFilters(o options) filter.Chain {
	var chain filter.Chain
	if o.denoise {
		chain = append(chain, filter.NewDenoiseFilter())
	}
	if o.sharpening {
		chain = append(chain, filter.NewSharpenFilter())
	}
	if o.contrast {
		chain = append(chain, filter.NewEnhanceFilter())
	}
	return chain
}

func postProcess(o options, p *image.Pixels) error {
	chain := postFilters(o)
	if len(chain) == 0 {
		return nil
	}
	Logger().Debug("upscale: post-processing",
		"denoise", o.denoise, "sharpen", o.sharpening, "contrast", o.contrast)
	if err := filter.ApplyInPlace(chain, p); err != nil {
		return fmt.Errorf("upscale: post-process: %w", err)
	}
	return nil
}

// maxNameAttempts bounds the numbered suffixes tried for one output name.
const maxNameAttempts = 1000

// writeOutput saves p as {prefix}_{factor}x_{unix}.png in the output
// directory and returns the absolute path. Files are created exclusively;
// when the name is taken, _1, _2 and so on are appended to the stem.
func writeOutput(o options, v Variant, factor int, p *image.Pixels) (string, error) {
	stem, err := outputStem(o, v, factor)
	if err != nil {
		return "", err
	}
	for i := range maxNameAttempts {
		path := stem + ".png"
		if i > 0 {
			path = fmt.Sprintf("%s_%d.png", stem, i)
		}
		err := p.CreatePNG(path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %w", ErrEncode, err)
		}
	}
	return "", fmt.Errorf("%w: no free name for %s.png after %d attempts", ErrEncode, stem, maxNameAttempts)
}

// outputStem is the absolute output path without the .png extension.
func outputStem(o options, v Variant, factor int) (string, error) {
	dir := o.outputDir
	if dir == "" {
		d, err := processTempDir()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrEncode, err)
		}
		dir = d
	}
	name := fmt.Sprintf("%s_%dx_%d", v.filePrefix(), factor, o.now().Unix())
	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return path, nil
}

// adapterInfo reduces the device description to what the application
// shell displays.
func adapterInfo(a gputypes.AdapterInfo) gpucontext.AdapterInfo {
	t := gpucontext.AdapterTypeUnknown
	switch a.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		t = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		t = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		t = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: a.Name, Type: t}
}
