package vkcompute

import "github.com/gogpu/wgpu/hal/vulkan/vk"

// InstanceInfo describes the instance to create.
type InstanceInfo struct {
	ApplicationName string
	APIVersion      uint32
	Extensions      []string
	Flags           vk.InstanceCreateFlags

	// DirectDriver, when set, is the driver library handed to the loader
	// through DirectDriverLoadingExtension, which is then listed in
	// Extensions.
	DirectDriver string
}

// Driver is the set of Vulkan entry points used by this package. Methods
// map one to one onto Vulkan commands; fallible commands return an error
// wrapping a ResultError.
//
// A Driver is bound to at most one instance and one device at a time.
type Driver interface {
	// Load resolves the global entry points. It is the first call made.
	Load() error
	InstanceExtensions() ([]string, error)
	CreateInstance(info InstanceInfo) (vk.Instance, error)
	DestroyInstance(instance vk.Instance)

	PhysicalDevices(instance vk.Instance) ([]vk.PhysicalDevice, error)
	QueueFamilies(pd vk.PhysicalDevice) []vk.QueueFamilyProperties
	DeviceProperties(pd vk.PhysicalDevice) vk.PhysicalDeviceProperties
	MemoryProperties(pd vk.PhysicalDevice) vk.PhysicalDeviceMemoryProperties

	CreateDevice(pd vk.PhysicalDevice, queueFamily uint32, priority float32) (vk.Device, error)
	DestroyDevice(device vk.Device)
	DeviceQueue(device vk.Device, queueFamily, index uint32) vk.Queue

	CreateShaderModule(device vk.Device, code []uint32) (vk.ShaderModule, error)
	DestroyShaderModule(device vk.Device, module vk.ShaderModule)
	CreateDescriptorSetLayout(device vk.Device, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(device vk.Device, layout vk.DescriptorSetLayout)
	CreatePipelineLayout(device vk.Device, setLayout vk.DescriptorSetLayout, ranges []vk.PushConstantRange) (vk.PipelineLayout, error)
	DestroyPipelineLayout(device vk.Device, layout vk.PipelineLayout)
	CreateComputePipeline(device vk.Device, layout vk.PipelineLayout, module vk.ShaderModule, entryPoint string) (vk.Pipeline, error)
	DestroyPipeline(device vk.Device, pipeline vk.Pipeline)

	CreateBuffer(device vk.Device, size vk.DeviceSize, usage vk.BufferUsageFlags) (vk.Buffer, error)
	DestroyBuffer(device vk.Device, buffer vk.Buffer)
	BufferMemoryRequirements(device vk.Device, buffer vk.Buffer) vk.MemoryRequirements
	AllocateMemory(device vk.Device, size vk.DeviceSize, typeIndex uint32) (vk.DeviceMemory, error)
	FreeMemory(device vk.Device, memory vk.DeviceMemory)
	BindBufferMemory(device vk.Device, buffer vk.Buffer, memory vk.DeviceMemory, offset vk.DeviceSize) error
	// MapMemory returns a host view of size bytes starting at offset. The
	// slice is invalid after UnmapMemory.
	MapMemory(device vk.Device, memory vk.DeviceMemory, offset, size vk.DeviceSize) ([]byte, error)
	UnmapMemory(device vk.Device, memory vk.DeviceMemory)

	CreateDescriptorPool(device vk.Device, maxSets uint32, sizes []vk.DescriptorPoolSize) (vk.DescriptorPool, error)
	DestroyDescriptorPool(device vk.Device, pool vk.DescriptorPool)
	AllocateDescriptorSet(device vk.Device, pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error)
	UpdateDescriptorSets(device vk.Device, writes []vk.WriteDescriptorSet)

	CreateCommandPool(device vk.Device, queueFamily uint32) (vk.CommandPool, error)
	DestroyCommandPool(device vk.Device, pool vk.CommandPool)
	AllocateCommandBuffer(device vk.Device, pool vk.CommandPool) (vk.CommandBuffer, error)
	BeginCommandBuffer(cb vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error
	EndCommandBuffer(cb vk.CommandBuffer) error
	CmdBindPipeline(cb vk.CommandBuffer, pipeline vk.Pipeline)
	CmdBindDescriptorSet(cb vk.CommandBuffer, layout vk.PipelineLayout, set vk.DescriptorSet)
	// CmdPushConstants fails only when the command cannot be recorded at
	// all, for example when the entry point was not resolved.
	CmdPushConstants(cb vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, values []byte) error
	CmdDispatch(cb vk.CommandBuffer, x, y, z uint32)

	QueueSubmit(queue vk.Queue, cb vk.CommandBuffer) error
	QueueWaitIdle(queue vk.Queue) error
}
