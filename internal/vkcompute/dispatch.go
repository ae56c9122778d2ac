package vkcompute

import (
	"fmt"

	"github.com/gogpu/upscale/internal/kernel"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Dispatch runs the kernel over in, writing out, and returns the output
// pixels. It records one command buffer, submits it without semaphores or
// fences and blocks on queue idle, the only synchronization point.
//
// The descriptor pool and command pool are local to the call and are
// destroyed before Dispatch returns, ahead of any buffer release.
func (c *Context) Dispatch(in, out *Buffer, p kernel.Params) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	outW, outH, outSize := p.OutputSize()
	if vk.DeviceSize(outSize) > out.Size {
		return nil, fmt.Errorf("%w: output needs %d bytes, buffer has %d", ErrInvalidDimensions, outSize, out.Size)
	}

	descriptorPool, err := c.drv.CreateDescriptorPool(c.device, 1, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 2},
	})
	if err != nil {
		return nil, fmt.Errorf("vkcompute: create descriptor pool: %w", err)
	}
	defer c.drv.DestroyDescriptorPool(c.device, descriptorPool)

	set, err := c.drv.AllocateDescriptorSet(c.device, descriptorPool, c.setLayout)
	if err != nil {
		return nil, fmt.Errorf("vkcompute: allocate descriptor set: %w", err)
	}
	c.writeBindings(set, in, out)

	commandPool, err := c.drv.CreateCommandPool(c.device, c.queueFamily)
	if err != nil {
		return nil, fmt.Errorf("vkcompute: create command pool: %w", err)
	}
	defer c.drv.DestroyCommandPool(c.device, commandPool)

	cb, err := c.drv.AllocateCommandBuffer(c.device, commandPool)
	if err != nil {
		return nil, fmt.Errorf("vkcompute: allocate command buffer: %w", err)
	}

	x, y, z := kernel.Grid(outW, outH)
	if err := c.record(cb, set, p, x, y, z); err != nil {
		return nil, err
	}

	if err := c.drv.QueueSubmit(c.queue, cb); err != nil {
		return nil, fmt.Errorf("vkcompute: submit: %w", err)
	}
	if err := c.drv.QueueWaitIdle(c.queue); err != nil {
		// The pools and buffers are released on return; give the queue one
		// more chance to drain so they are not destroyed while in use.
		slogger().Warn("vkcompute: wait idle failed, retrying before release", "err", err)
		if err2 := c.drv.QueueWaitIdle(c.queue); err2 != nil {
			slogger().Warn("vkcompute: queue still busy, releasing anyway", "err", err2)
		}
		return nil, fmt.Errorf("vkcompute: wait idle: %w", err)
	}
	slogger().Debug("vkcompute: dispatch complete",
		"groups", []uint32{x, y, z},
		"output", []uint32{outW, outH})

	return c.Read(out, outSize)
}

// writeBindings points slot 0 at in and slot 1 at out in one update.
func (c *Context) writeBindings(set vk.DescriptorSet, in, out *Buffer) {
	infos := []vk.DescriptorBufferInfo{
		{Buffer: in.Handle, Offset: 0, Range: vk.DeviceSize(vk.WholeSize)},
		{Buffer: out.Handle, Offset: 0, Range: vk.DeviceSize(vk.WholeSize)},
	}
	writes := make([]vk.WriteDescriptorSet, len(infos))
	for i := range infos {
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(i),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			PBufferInfo:     &infos[i],
		}
	}
	c.drv.UpdateDescriptorSets(c.device, writes)
}

func (c *Context) record(cb vk.CommandBuffer, set vk.DescriptorSet, p kernel.Params, x, y, z uint32) error {
	if err := c.drv.BeginCommandBuffer(cb, vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)); err != nil {
		return fmt.Errorf("vkcompute: begin command buffer: %w", err)
	}
	c.drv.CmdBindPipeline(cb, c.pipeline)
	c.drv.CmdBindDescriptorSet(cb, c.pipelineLayout, set)
	if err := c.drv.CmdPushConstants(cb, c.pipelineLayout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, p.Bytes()); err != nil {
		return fmt.Errorf("vkcompute: push parameters: %w", err)
	}
	c.drv.CmdDispatch(cb, x, y, z)
	if err := c.drv.EndCommandBuffer(cb); err != nil {
		return fmt.Errorf("vkcompute: end command buffer: %w", err)
	}
	return nil
}
