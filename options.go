package upscale

import (
	"os"
	"sync"
	"time"

	"github.com/gogpu/upscale/internal/loader"
	"github.com/gogpu/upscale/internal/vkcompute"
)

// Option configures an upscale operation.
//
// Example:
//
//	out, err := upscale.UpscaleEnhanced("photo.jpg", 2,
//	    upscale.WithNoiseReduction(true),
//	    upscale.WithOutputDir("/tmp/results"))
type Option func(*options)

// options holds the resolved configuration for one operation.
type options struct {
	sharpening  bool
	contrast    bool
	denoise     bool
	outputDir   string
	searchPaths []string
	kernelPath  string
	now         func() time.Time

	// driver and loader replace the Vulkan driver and the platform driver
	// discovery. Unexported: only tests inject them.
	driver vkcompute.Driver
	loader *loader.Config
}

// defaultOptions returns the defaults: sharpening and contrast on, noise
// reduction off, output in the process temp directory.
func defaultOptions() options {
	return options{
		sharpening: true,
		contrast:   true,
		denoise:    false,
		now:        time.Now,
	}
}

func resolveOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithSharpening enables the unsharp-mask pass of UpscaleEnhanced.
// Default true.
func WithSharpening(enabled bool) Option {
	return func(o *options) {
		o.sharpening = enabled
	}
}

// WithContrastEnhancement enables the contrast pass of UpscaleEnhanced.
// Default true.
func WithContrastEnhancement(enabled bool) Option {
	return func(o *options) {
		o.contrast = enabled
	}
}

// WithNoiseReduction enables the noise reduction pass of UpscaleEnhanced.
// Default false, since it softens the result.
func WithNoiseReduction(enabled bool) Option {
	return func(o *options) {
		o.denoise = enabled
	}
}

// WithOutputDir sets the directory receiving output files. It must exist.
// Default is a directory under os.TempDir created once per process.
func WithOutputDir(dir string) Option {
	return func(o *options) {
		o.outputDir = dir
	}
}

// WithDriverSearchPaths replaces the portability driver search list.
// Entries are directories or direct paths to the driver library. Only
// consulted on platforms that need a portability driver.
func WithDriverSearchPaths(paths ...string) Option {
	return func(o *options) {
		o.searchPaths = append([]string(nil), paths...)
	}
}

// WithKernelBinary loads the compute kernel from a precompiled SPIR-V file
// instead of compiling the built-in one. The kernel must declare a 16x16x1
// workgroup, the entry point "main", storage buffers at bindings 0 and 1
// and a 12-byte push constant block (width, height, factor).
func WithKernelBinary(path string) Option {
	return func(o *options) {
		o.kernelPath = path
	}
}

// WithClock sets the time source used for output names and timings.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func withDriver(d vkcompute.Driver) Option {
	return func(o *options) {
		o.driver = d
	}
}

func withLoaderConfig(cfg loader.Config) Option {
	return func(o *options) {
		o.loader = &cfg
	}
}

// loaderConfig returns the driver discovery configuration for this
// operation.
func (o options) loaderConfig() loader.Config {
	cfg := loader.DefaultConfig()
	if o.loader != nil {
		cfg = *o.loader
	}
	if o.searchPaths != nil {
		cfg.SearchPaths = o.searchPaths
	}
	return cfg
}

var (
	tempDirOnce sync.Once
	tempDir     string
	tempDirErr  error
)

// processTempDir returns the per-process output directory, creating it on
// first use.
func processTempDir() (string, error) {
	tempDirOnce.Do(func() {
		tempDir, tempDirErr = os.MkdirTemp("", "vupscale-")
	})
	return tempDir, tempDirErr
}
