// Package filter provides the CPU post-processing filters applied to upscaled
// images: separable Gaussian and box blur, unsharp-mask sharpening and 4x5
// color matrix adjustments such as contrast.
//
// Filters operate on tightly packed, non-premultiplied RGBA8 buffers from
// internal/image and split their work into row bands on the shared worker
// pool. Source and destination must have the same dimensions and must not
// alias; Chain handles the intermediates when filters run in sequence.
package filter
