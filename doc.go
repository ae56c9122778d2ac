// Package upscale enlarges images on a Vulkan compute device.
//
// # Overview
//
// upscale decodes an image file, uploads its pixels to GPU memory, runs a
// bilinear compute kernel that writes an image f times larger on each
// axis, reads the result back and saves it as PNG. The Vulkan loader is
// reached without cgo through gogpu/wgpu, so the package builds with
// CGO_ENABLED=0.
//
// # Quick Start
//
//	import "github.com/gogpu/upscale"
//
//	path, err := upscale.Upscale("photo.jpg", 2)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("written to", path)
//
// # Variants
//
// Three entry points share validation and output naming:
//   - Upscale runs the GPU kernel only
//   - UpscaleEnhanced runs the GPU kernel, then the optional CPU filters
//     selected by WithNoiseReduction, WithSharpening and WithContrastEnhancement
//   - UpscaleNearest enlarges on the CPU by pixel replication
//
// Run exposes the full Request/Result form with a context.
//
// # Lifecycle
//
// Every GPU call builds a fresh device context, performs exactly one
// dispatch, and tears the context down before returning, on success and on
// every failure path. The entry points are not meant to be called
// concurrently; Worker serializes calls from many goroutines onto a single
// goroutine so no two contexts are live at once.
//
// # Errors
//
// Failures wrap one of the package sentinels (ErrInputNotFound,
// ErrInputInaccessible, ErrInvalidFactor, ErrDriverNotFound,
// ErrNoComputeDevice, ErrContext, ErrNoMemoryType, ErrResource, ErrDecode,
// ErrEncode). Kind groups them into validation, driver, resource and I/O
// classes.
//
// # Logging
//
// The package is silent by default. SetLogger installs a *slog.Logger that
// also reaches the internal Vulkan and loader packages.
package upscale

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = ""
)
