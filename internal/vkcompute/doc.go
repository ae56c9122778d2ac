// Package vkcompute runs the upscale kernel on a Vulkan compute queue.
//
// A Context owns the instance, the logical device with its single compute
// queue, and the kernel pipeline. Buffers are host-visible, host-coherent
// storage buffers. Dispatch records one command buffer, submits it and
// blocks on queue idle before reading the result back.
//
// Every Vulkan call goes through the Driver interface. NewVulkanDriver
// returns the real implementation; vktest provides an instrumented fake.
//
// A Context is not safe for concurrent use. Callers that process several
// images at once either serialize through one Context or create one per
// worker.
package vkcompute
