package vkcompute

import (
	"fmt"

	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// StorageUsage is the usage of both kernel buffers.
const StorageUsage = vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)

// Buffer is a storage buffer and the host-visible memory bound to it.
type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory

	// Size is the buffer's byte length.
	Size vk.DeviceSize

	// AllocationSize is the size of Memory as reported by the buffer's
	// memory requirements. It may exceed Size because of alignment.
	AllocationSize vk.DeviceSize

	MemoryType uint32
}

// Allocate creates a buffer of len(data) bytes, binds fresh host-visible,
// host-coherent memory to it and uploads data through a temporary mapping.
func (c *Context) Allocate(data []byte, usage vk.BufferUsageFlags) (*Buffer, error) {
	return c.allocate(vk.DeviceSize(len(data)), usage, func(mapped []byte) {
		copy(mapped, data)
	})
}

// AllocateZeroed reserves a buffer of size bytes whose contents are zero.
func (c *Context) AllocateZeroed(size uint64, usage vk.BufferUsageFlags) (*Buffer, error) {
	return c.allocate(vk.DeviceSize(size), usage, func(mapped []byte) {
		clear(mapped)
	})
}

func (c *Context) allocate(size vk.DeviceSize, usage vk.BufferUsageFlags, fill func([]byte)) (b *Buffer, err error) {
	if c.closed {
		return nil, ErrClosed
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: zero-length buffer", ErrInvalidDimensions)
	}

	b = &Buffer{Size: size}
	defer func() {
		if err != nil {
			c.Release(b)
			b = nil
		}
	}()

	if b.Handle, err = c.drv.CreateBuffer(c.device, size, usage); err != nil {
		return b, fmt.Errorf("vkcompute: create buffer: %w", err)
	}

	req := c.drv.BufferMemoryRequirements(c.device, b.Handle)
	if b.MemoryType, err = SelectMemoryType(&c.memProps, req.MemoryTypeBits, hostMemoryFlags); err != nil {
		return b, err
	}

	if b.Memory, err = c.drv.AllocateMemory(c.device, req.Size, b.MemoryType); err != nil {
		return b, fmt.Errorf("vkcompute: allocate %d bytes: %w", req.Size, err)
	}
	b.AllocationSize = req.Size

	if err = c.drv.BindBufferMemory(c.device, b.Handle, b.Memory, 0); err != nil {
		return b, fmt.Errorf("vkcompute: bind buffer memory: %w", err)
	}

	mapped, err := c.drv.MapMemory(c.device, b.Memory, 0, size)
	if err != nil {
		return b, fmt.Errorf("vkcompute: map buffer memory: %w", err)
	}
	fill(mapped)
	c.drv.UnmapMemory(c.device, b.Memory)

	slogger().Debug("vkcompute: buffer allocated",
		"size", uint64(size),
		"allocation", uint64(req.Size),
		"memoryType", b.MemoryType)
	return b, nil
}

// Read copies the first n bytes of b to a new slice through a temporary
// mapping. The caller must have waited for all GPU work touching b.
func (c *Context) Read(b *Buffer, n uint64) ([]byte, error) {
	if vk.DeviceSize(n) > b.Size {
		return nil, fmt.Errorf("vkcompute: read %d bytes from %d-byte buffer", n, b.Size)
	}
	mapped, err := c.drv.MapMemory(c.device, b.Memory, 0, vk.DeviceSize(n))
	if err != nil {
		return nil, fmt.Errorf("vkcompute: map buffer memory: %w", err)
	}
	out := make([]byte, n)
	copy(out, mapped)
	c.drv.UnmapMemory(c.device, b.Memory)
	return out, nil
}

// Release destroys the buffer before freeing its memory. Parts that were
// never created are skipped, and a released Buffer can be released again.
func (c *Context) Release(b *Buffer) {
	if b == nil || c.device == 0 {
		return
	}
	if b.Handle != 0 {
		c.drv.DestroyBuffer(c.device, b.Handle)
		b.Handle = 0
	}
	if b.Memory != 0 {
		c.drv.FreeMemory(c.device, b.Memory)
		b.Memory = 0
	}
}
