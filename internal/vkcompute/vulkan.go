package vkcompute

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// vulkanDriver implements Driver over the pure-Go Vulkan bindings.
type vulkanDriver struct {
	cmds       *vk.Commands
	instance   vk.Instance
	direct     *directDriver
	pushConsts pushConstants
}

// NewVulkanDriver returns a Driver backed by the system Vulkan loader.
// The loader library is opened by Load, not here.
func NewVulkanDriver() Driver {
	return &vulkanDriver{}
}

func (d *vulkanDriver) Load() error {
	if err := vk.Init(); err != nil {
		return fmt.Errorf("vulkan: failed to initialize: %w", err)
	}
	cmds := vk.NewCommands()
	if err := cmds.LoadGlobal(); err != nil {
		return fmt.Errorf("vulkan: failed to load global commands: %w", err)
	}
	d.cmds = cmds
	return nil
}

func (d *vulkanDriver) InstanceExtensions() ([]string, error) {
	var count uint32
	if err := check("vkEnumerateInstanceExtensionProperties", d.cmds.EnumerateInstanceExtensionProperties(0, &count, nil)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	props := make([]vk.ExtensionProperties, count)
	r := d.cmds.EnumerateInstanceExtensionProperties(0, &count, &props[0])
	if r != vk.Success && r != vk.Incomplete {
		return nil, check("vkEnumerateInstanceExtensionProperties", r)
	}
	names := make([]string, 0, count)
	for i := range props[:count] {
		names = append(names, cStringToGo(props[i].ExtensionName[:]))
	}
	return names, nil
}

func (d *vulkanDriver) CreateInstance(info InstanceInfo) (vk.Instance, error) {
	appName := cString(info.ApplicationName)
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   uintptr(unsafe.Pointer(&appName[0])),
		ApplicationVersion: MakeVersion(1, 0, 0),
		PEngineName:        uintptr(unsafe.Pointer(&appName[0])),
		EngineVersion:      MakeVersion(1, 0, 0),
		ApiVersion:         info.APIVersion,
	}

	extensions := make([][]byte, len(info.Extensions))
	extensionPtrs := make([]uintptr, len(info.Extensions))
	for i, ext := range info.Extensions {
		extensions[i] = cString(ext)
		extensionPtrs[i] = uintptr(unsafe.Pointer(&extensions[i][0]))
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                 vk.StructureTypeInstanceCreateInfo,
		Flags:                 info.Flags,
		PApplicationInfo:      &appInfo,
		EnabledExtensionCount: uint32(len(extensionPtrs)),
	}
	if len(extensionPtrs) > 0 {
		createInfo.PpEnabledExtensionNames = uintptr(unsafe.Pointer(&extensionPtrs[0]))
	}

	var direct *directDriver
	if info.DirectDriver != "" {
		dd, err := openDirectDriver(info.DirectDriver)
		if err != nil {
			return 0, err
		}
		direct = dd
		createInfo.PNext = direct.next()
	}

	var instance vk.Instance
	r := d.cmds.CreateInstance(&createInfo, nil, &instance)
	runtime.KeepAlive(appName)
	runtime.KeepAlive(extensions)
	runtime.KeepAlive(extensionPtrs)
	runtime.KeepAlive(direct)
	if err := check("vkCreateInstance", r); err != nil {
		direct.close()
		return 0, err
	}

	if err := d.cmds.LoadInstance(instance); err != nil {
		d.cmds.DestroyInstance(instance, nil)
		direct.close()
		return 0, fmt.Errorf("vulkan: failed to load instance commands: %w", err)
	}
	vk.SetDeviceProcAddr(instance)
	d.instance = instance
	d.direct = direct
	return instance, nil
}

func (d *vulkanDriver) DestroyInstance(instance vk.Instance) {
	d.cmds.DestroyInstance(instance, nil)
	d.instance = 0
	d.direct.close()
	d.direct = nil
}

func (d *vulkanDriver) PhysicalDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", d.cmds.EnumeratePhysicalDevices(instance, &count, nil)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	devices := make([]vk.PhysicalDevice, count)
	r := d.cmds.EnumeratePhysicalDevices(instance, &count, &devices[0])
	if r != vk.Success && r != vk.Incomplete {
		return nil, check("vkEnumeratePhysicalDevices", r)
	}
	return devices[:count], nil
}

func (d *vulkanDriver) QueueFamilies(pd vk.PhysicalDevice) []vk.QueueFamilyProperties {
	var count uint32
	d.cmds.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	if count == 0 {
		return nil
	}
	families := make([]vk.QueueFamilyProperties, count)
	d.cmds.GetPhysicalDeviceQueueFamilyProperties(pd, &count, &families[0])
	return families[:count]
}

func (d *vulkanDriver) DeviceProperties(pd vk.PhysicalDevice) vk.PhysicalDeviceProperties {
	var props vk.PhysicalDeviceProperties
	d.cmds.GetPhysicalDeviceProperties(pd, &props)
	return props
}

func (d *vulkanDriver) MemoryProperties(pd vk.PhysicalDevice) vk.PhysicalDeviceMemoryProperties {
	var props vk.PhysicalDeviceMemoryProperties
	d.cmds.GetPhysicalDeviceMemoryProperties(pd, &props)
	return props
}

func (d *vulkanDriver) CreateDevice(pd vk.PhysicalDevice, queueFamily uint32, priority float32) (vk.Device, error) {
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueFamily,
		QueueCount:       1,
		PQueuePriorities: &priority,
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    &queueInfo,
	}

	var device vk.Device
	r := d.cmds.CreateDevice(pd, &createInfo, nil, &device)
	runtime.KeepAlive(&priority)
	runtime.KeepAlive(&queueInfo)
	if err := check("vkCreateDevice", r); err != nil {
		return 0, err
	}
	if err := d.cmds.LoadDevice(device); err != nil {
		d.cmds.DestroyDevice(device, nil)
		return 0, fmt.Errorf("vulkan: failed to load device commands: %w", err)
	}
	if err := d.pushConsts.load(device); err != nil {
		d.cmds.DestroyDevice(device, nil)
		return 0, err
	}
	return device, nil
}

func (d *vulkanDriver) DestroyDevice(device vk.Device) {
	d.cmds.DestroyDevice(device, nil)
}

func (d *vulkanDriver) DeviceQueue(device vk.Device, queueFamily, index uint32) vk.Queue {
	var queue vk.Queue
	d.cmds.GetDeviceQueue(device, queueFamily, index, &queue)
	return queue
}

func (d *vulkanDriver) CreateShaderModule(device vk.Device, code []uint32) (vk.ShaderModule, error) {
	if len(code) == 0 {
		return 0, fmt.Errorf("vulkan: empty shader code")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uintptr(len(code) * 4),
		PCode:    &code[0],
	}
	var module vk.ShaderModule
	r := d.cmds.CreateShaderModule(device, &createInfo, nil, &module)
	runtime.KeepAlive(code)
	return module, check("vkCreateShaderModule", r)
}

func (d *vulkanDriver) DestroyShaderModule(device vk.Device, module vk.ShaderModule) {
	d.cmds.DestroyShaderModule(device, module, nil)
}

func (d *vulkanDriver) CreateDescriptorSetLayout(device vk.Device, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
	}
	if len(bindings) > 0 {
		createInfo.PBindings = &bindings[0]
	}
	var layout vk.DescriptorSetLayout
	r := d.cmds.CreateDescriptorSetLayout(device, &createInfo, nil, &layout)
	runtime.KeepAlive(bindings)
	return layout, check("vkCreateDescriptorSetLayout", r)
}

func (d *vulkanDriver) DestroyDescriptorSetLayout(device vk.Device, layout vk.DescriptorSetLayout) {
	d.cmds.DestroyDescriptorSetLayout(device, layout, nil)
}

func (d *vulkanDriver) CreatePipelineLayout(device vk.Device, setLayout vk.DescriptorSetLayout, ranges []vk.PushConstantRange) (vk.PipelineLayout, error) {
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            &setLayout,
		PushConstantRangeCount: uint32(len(ranges)),
	}
	if len(ranges) > 0 {
		createInfo.PPushConstantRanges = &ranges[0]
	}
	var layout vk.PipelineLayout
	r := d.cmds.CreatePipelineLayout(device, &createInfo, nil, &layout)
	runtime.KeepAlive(ranges)
	return layout, check("vkCreatePipelineLayout", r)
}

func (d *vulkanDriver) DestroyPipelineLayout(device vk.Device, layout vk.PipelineLayout) {
	d.cmds.DestroyPipelineLayout(device, layout, nil)
}

func (d *vulkanDriver) CreateComputePipeline(device vk.Device, layout vk.PipelineLayout, module vk.ShaderModule, entryPoint string) (vk.Pipeline, error) {
	name := cString(entryPoint)
	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  uintptr(unsafe.Pointer(&name[0])),
		},
		Layout:            layout,
		BasePipelineIndex: -1,
	}
	var pipeline vk.Pipeline
	r := d.cmds.CreateComputePipelines(device, 0, 1, &createInfo, nil, &pipeline)
	runtime.KeepAlive(name)
	return pipeline, check("vkCreateComputePipelines", r)
}

func (d *vulkanDriver) DestroyPipeline(device vk.Device, pipeline vk.Pipeline) {
	d.cmds.DestroyPipeline(device, pipeline, nil)
}

func (d *vulkanDriver) CreateBuffer(device vk.Device, size vk.DeviceSize, usage vk.BufferUsageFlags) (vk.Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	r := d.cmds.CreateBuffer(device, &createInfo, nil, &buffer)
	return buffer, check("vkCreateBuffer", r)
}

func (d *vulkanDriver) DestroyBuffer(device vk.Device, buffer vk.Buffer) {
	d.cmds.DestroyBuffer(device, buffer, nil)
}

func (d *vulkanDriver) BufferMemoryRequirements(device vk.Device, buffer vk.Buffer) vk.MemoryRequirements {
	var req vk.MemoryRequirements
	d.cmds.GetBufferMemoryRequirements(device, buffer, &req)
	return req
}

func (d *vulkanDriver) AllocateMemory(device vk.Device, size vk.DeviceSize, typeIndex uint32) (vk.DeviceMemory, error) {
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  size,
		MemoryTypeIndex: typeIndex,
	}
	var memory vk.DeviceMemory
	r := d.cmds.AllocateMemory(device, &allocInfo, nil, &memory)
	return memory, check("vkAllocateMemory", r)
}

func (d *vulkanDriver) FreeMemory(device vk.Device, memory vk.DeviceMemory) {
	d.cmds.FreeMemory(device, memory, nil)
}

func (d *vulkanDriver) BindBufferMemory(device vk.Device, buffer vk.Buffer, memory vk.DeviceMemory, offset vk.DeviceSize) error {
	return check("vkBindBufferMemory", d.cmds.BindBufferMemory(device, buffer, memory, offset))
}

func (d *vulkanDriver) MapMemory(device vk.Device, memory vk.DeviceMemory, offset, size vk.DeviceSize) ([]byte, error) {
	var mappedPtr uintptr
	r := d.cmds.MapMemory(device, memory, offset, size, 0, uintptr(unsafe.Pointer(&mappedPtr)))
	if err := check("vkMapMemory", r); err != nil {
		return nil, err
	}
	if mappedPtr == 0 {
		return nil, fmt.Errorf("vulkan: vkMapMemory returned null pointer")
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(mappedPtr)), int(size)), nil
}

func (d *vulkanDriver) UnmapMemory(device vk.Device, memory vk.DeviceMemory) {
	d.cmds.UnmapMemory(device, memory)
}

func (d *vulkanDriver) CreateDescriptorPool(device vk.Device, maxSets uint32, sizes []vk.DescriptorPoolSize) (vk.DescriptorPool, error) {
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
	}
	if len(sizes) > 0 {
		createInfo.PPoolSizes = &sizes[0]
	}
	var pool vk.DescriptorPool
	r := d.cmds.CreateDescriptorPool(device, &createInfo, nil, &pool)
	runtime.KeepAlive(sizes)
	return pool, check("vkCreateDescriptorPool", r)
}

func (d *vulkanDriver) DestroyDescriptorPool(device vk.Device, pool vk.DescriptorPool) {
	d.cmds.DestroyDescriptorPool(device, pool, nil)
}

func (d *vulkanDriver) AllocateDescriptorSet(device vk.Device, pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        &layout,
	}
	var set vk.DescriptorSet
	r := d.cmds.AllocateDescriptorSets(device, &allocInfo, &set)
	return set, check("vkAllocateDescriptorSets", r)
}

func (d *vulkanDriver) UpdateDescriptorSets(device vk.Device, writes []vk.WriteDescriptorSet) {
	if len(writes) == 0 {
		return
	}
	d.cmds.UpdateDescriptorSets(device, uint32(len(writes)), &writes[0], 0, nil)
	runtime.KeepAlive(writes)
}

func (d *vulkanDriver) CreateCommandPool(device vk.Device, queueFamily uint32) (vk.CommandPool, error) {
	createInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
	}
	var pool vk.CommandPool
	r := d.cmds.CreateCommandPool(device, &createInfo, nil, &pool)
	return pool, check("vkCreateCommandPool", r)
}

func (d *vulkanDriver) DestroyCommandPool(device vk.Device, pool vk.CommandPool) {
	d.cmds.DestroyCommandPool(device, pool, nil)
}

func (d *vulkanDriver) AllocateCommandBuffer(device vk.Device, pool vk.CommandPool) (vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	var cb vk.CommandBuffer
	r := d.cmds.AllocateCommandBuffers(device, &allocInfo, &cb)
	return cb, check("vkAllocateCommandBuffers", r)
}

func (d *vulkanDriver) BeginCommandBuffer(cb vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}
	return check("vkBeginCommandBuffer", d.cmds.BeginCommandBuffer(cb, &beginInfo))
}

func (d *vulkanDriver) EndCommandBuffer(cb vk.CommandBuffer) error {
	return check("vkEndCommandBuffer", d.cmds.EndCommandBuffer(cb))
}

func (d *vulkanDriver) CmdBindPipeline(cb vk.CommandBuffer, pipeline vk.Pipeline) {
	d.cmds.CmdBindPipeline(cb, vk.PipelineBindPointCompute, pipeline)
}

func (d *vulkanDriver) CmdBindDescriptorSet(cb vk.CommandBuffer, layout vk.PipelineLayout, set vk.DescriptorSet) {
	d.cmds.CmdBindDescriptorSets(cb, vk.PipelineBindPointCompute, layout, 0, 1, &set, 0, nil)
}

func (d *vulkanDriver) CmdPushConstants(cb vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, values []byte) error {
	return d.pushConsts.call(cb, layout, stages, offset, values)
}

func (d *vulkanDriver) CmdDispatch(cb vk.CommandBuffer, x, y, z uint32) {
	d.cmds.CmdDispatch(cb, x, y, z)
}

func (d *vulkanDriver) QueueSubmit(queue vk.Queue, cb vk.CommandBuffer) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    &cb,
	}
	return check("vkQueueSubmit", d.cmds.QueueSubmit(queue, 1, &submitInfo, 0))
}

func (d *vulkanDriver) QueueWaitIdle(queue vk.Queue) error {
	return check("vkQueueWaitIdle", d.cmds.QueueWaitIdle(queue))
}

// MakeVersion packs a Vulkan version number.
func MakeVersion(major, minor, patch uint32) uint32 {
	return (major << 22) | (minor << 12) | patch
}

// cString returns s as a NUL-terminated byte slice.
func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// cStringToGo converts a NUL-terminated byte array to a Go string.
func cStringToGo(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
