package vkcompute

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	"github.com/go-webgpu/goffi/types"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

var errPushConstantsNotLoaded = errors.New("vulkan: vkCmdPushConstants not loaded")

// pushConstants calls vkCmdPushConstants, which the generated bindings do
// not wrap.
//
//	void vkCmdPushConstants(VkCommandBuffer, VkPipelineLayout,
//	    VkShaderStageFlags, uint32_t offset, uint32_t size, const void*)
type pushConstants struct {
	cif types.CallInterface
	fn  unsafe.Pointer
}

func (p *pushConstants) load(device vk.Device) error {
	fn := vk.GetDeviceProcAddr(device, "vkCmdPushConstants")
	if fn == nil {
		return fmt.Errorf("vulkan: vkCmdPushConstants not found")
	}
	err := ffi.PrepareCallInterface(&p.cif, types.DefaultCall, types.VoidTypeDescriptor,
		[]*types.TypeDescriptor{
			types.UInt64TypeDescriptor,  // VkCommandBuffer
			types.UInt64TypeDescriptor,  // VkPipelineLayout
			types.UInt32TypeDescriptor,  // VkShaderStageFlags
			types.UInt32TypeDescriptor,  // offset
			types.UInt32TypeDescriptor,  // size
			types.PointerTypeDescriptor, // pValues
		})
	if err != nil {
		return fmt.Errorf("vulkan: prepare vkCmdPushConstants: %w", err)
	}
	p.fn = fn
	return nil
}

func (p *pushConstants) call(cb vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, values []byte) error {
	if p.fn == nil {
		return errPushConstantsNotLoaded
	}
	if len(values) == 0 {
		return nil
	}
	cbHandle := uint64(cb)
	layoutHandle := uint64(layout)
	flags := uint32(stages)
	size := uint32(len(values))
	data := unsafe.Pointer(&values[0])
	// goffi takes pointers to where each argument is stored.
	args := [6]unsafe.Pointer{
		unsafe.Pointer(&cbHandle),
		unsafe.Pointer(&layoutHandle),
		unsafe.Pointer(&flags),
		unsafe.Pointer(&offset),
		unsafe.Pointer(&size),
		unsafe.Pointer(&data),
	}
	err := ffi.CallFunction(&p.cif, p.fn, nil, args[:])
	runtime.KeepAlive(values)
	if err != nil {
		return fmt.Errorf("vulkan: vkCmdPushConstants: %w", err)
	}
	return nil
}
