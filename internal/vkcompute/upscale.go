package vkcompute

import (
	"fmt"

	"github.com/gogpu/upscale/internal/kernel"
)

// Upscale uploads pixels, runs one dispatch and returns the output pixels.
// Both buffers are released before Upscale returns, on success or failure.
func (c *Context) Upscale(pixels []byte, p kernel.Params) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if p.Width == 0 || p.Height == 0 || p.Factor == 0 {
		return nil, fmt.Errorf("%w: %dx%d factor %d", ErrInvalidDimensions, p.Width, p.Height, p.Factor)
	}
	inSize := uint64(p.Width) * uint64(p.Height) * kernel.BytesPerPixel
	if uint64(len(pixels)) != inSize {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidDimensions, len(pixels), p.Width, p.Height)
	}
	if err := c.checkLimits(p, inSize); err != nil {
		return nil, err
	}
	_, _, outSize := p.OutputSize()

	in, err := c.Allocate(pixels, StorageUsage)
	if err != nil {
		return nil, err
	}
	defer c.Release(in)

	out, err := c.AllocateZeroed(outSize, StorageUsage)
	if err != nil {
		return nil, err
	}
	defer c.Release(out)

	return c.Dispatch(in, out, p)
}

// checkLimits rejects work the device cannot address before anything is
// allocated.
func (c *Context) checkLimits(p kernel.Params, inSize uint64) error {
	outW, outH, outSize := p.OutputSize()
	if maxRange := uint64(c.limits.MaxStorageBufferRange); maxRange > 0 {
		if inSize > maxRange || outSize > maxRange {
			return fmt.Errorf("%w: storage buffer of %d bytes exceeds maxStorageBufferRange %d",
				ErrLimitExceeded, max(inSize, outSize), maxRange)
		}
	}
	x, y, _ := kernel.Grid(outW, outH)
	maxX, maxY := c.limits.MaxComputeWorkGroupCount[0], c.limits.MaxComputeWorkGroupCount[1]
	if (maxX > 0 && x > maxX) || (maxY > 0 && y > maxY) {
		return fmt.Errorf("%w: grid %dx%d exceeds maxComputeWorkGroupCount %dx%d",
			ErrLimitExceeded, x, y, maxX, maxY)
	}
	return nil
}
