package filter

import (
	"math"

	"github.com/gogpu/upscale/internal/cache"
)

// GaussianKernel generates a normalized 1D Gaussian kernel with standard
// deviation sigma. The kernel spans 3 sigma on each side, so its length is
// 2*ceil(3*sigma)+1.
//
// For sigma <= 0, returns the identity kernel [1].
func GaussianKernel(sigma float64) []float32 {
	if sigma <= 0 {
		return []float32{1}
	}

	half := KernelHalfWidth(sigma)
	kernel := make([]float32, 2*half+1)

	// exp(-x²/(2σ²)); the 1/(σ√2π) factor drops out in normalization.
	twoSigmaSq := 2 * sigma * sigma
	sum := 0.0
	weights := make([]float64, len(kernel))
	for i := range weights {
		x := float64(i - half)
		weights[i] = math.Exp(-(x * x) / twoSigmaSq)
		sum += weights[i]
	}
	for i, w := range weights {
		kernel[i] = float32(w / sum)
	}
	return kernel
}

// BoxKernel generates a uniform kernel of length 2*radius+1.
func BoxKernel(radius int) []float32 {
	if radius <= 0 {
		return []float32{1}
	}

	kernel := make([]float32, radius*2+1)
	w := 1 / float32(len(kernel))
	for i := range kernel {
		kernel[i] = w
	}
	return kernel
}

// KernelHalfWidth returns the number of taps on each side of the center of
// the Gaussian kernel for sigma.
func KernelHalfWidth(sigma float64) int {
	if sigma <= 0 {
		return 0
	}
	return int(math.Ceil(sigma * 3))
}

// kernelCacheSize bounds the number of distinct sigmas kept.
const kernelCacheSize = 32

var defaultKernelCache = cache.New[int, []float32](kernelCacheSize)

// sigmaKey quantizes sigma to 0.01.
func sigmaKey(sigma float64) int {
	return int(math.Round(sigma * 100))
}

func cachedKernel(c *cache.Cache[int, []float32], sigma float64) []float32 {
	key := sigmaKey(sigma)
	kernel, _ := c.GetOrCreate(key, func() ([]float32, error) {
		return GaussianKernel(float64(key) / 100), nil
	})
	return kernel
}

// CachedGaussianKernel returns a shared Gaussian kernel for sigma.
// Callers must not modify the returned slice.
func CachedGaussianKernel(sigma float64) []float32 {
	return cachedKernel(defaultKernelCache, sigma)
}
