package vkcompute

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/upscale/internal/kernel"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Instance-level constants.
const (
	ApplicationName = "vupscale"

	// PortabilityEnumerationExtension makes translation-layer drivers such
	// as MoltenVK enumerable.
	PortabilityEnumerationExtension = "VK_KHR_portability_enumeration"

	// SurfaceExtension is enabled when advertised. The bindings resolve the
	// WSI query entry points at instance load time.
	SurfaceExtension = "VK_KHR_surface"

	// DirectDriverLoadingExtension lets the application name the driver
	// library at instance creation. Loaders advertise it from 1.3.230.
	DirectDriverLoadingExtension = "VK_LUNARG_direct_driver_loading"

	queuePriority float32 = 1.0
)

// DefaultAPIVersion is the Vulkan version requested from the instance.
var DefaultAPIVersion = MakeVersion(1, 3, 0)

// ContextOptions configures context creation.
type ContextOptions struct {
	// Kernel is the SPIR-V kernel. Nil compiles the embedded WGSL kernel.
	Kernel []uint32

	// APIVersion overrides DefaultAPIVersion when non-zero.
	APIVersion uint32

	// DirectDriver is a driver library to load through
	// DirectDriverLoadingExtension. It is used only when the loader
	// advertises the extension; PrepareLoader is then skipped.
	DirectDriver string

	// PrepareLoader runs right before instance creation. The returned
	// function, if any, runs right after it, successful or not.
	PrepareLoader func() (restore func())
}

// Context owns the Vulkan objects shared by every dispatch of one
// operation. All handles are released together by Close.
type Context struct {
	drv Driver

	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	queueFamily    uint32
	queue          vk.Queue
	shaderModule   vk.ShaderModule
	setLayout      vk.DescriptorSetLayout
	pipelineLayout vk.PipelineLayout
	pipeline       vk.Pipeline

	memProps vk.PhysicalDeviceMemoryProperties
	limits   vk.PhysicalDeviceLimits
	adapter  gputypes.AdapterInfo

	closed bool
}

// NewContext loads the driver, selects the first compute-capable device
// and builds the kernel pipeline. Any failure is terminal; objects created
// before the failure are released before NewContext returns.
func NewContext(drv Driver, opts ContextOptions) (c *Context, err error) {
	c = &Context{drv: drv}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	if err = drv.Load(); err != nil {
		return c, err
	}
	if err = c.createInstance(opts); err != nil {
		return c, err
	}
	if err = c.selectDevice(); err != nil {
		return c, err
	}
	if err = c.createDevice(); err != nil {
		return c, err
	}
	if err = c.createPipeline(opts.Kernel); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Context) createInstance(opts ContextOptions) error {
	available, err := c.drv.InstanceExtensions()
	if err != nil {
		return fmt.Errorf("vkcompute: enumerate instance extensions: %w", err)
	}

	info := InstanceInfo{
		ApplicationName: ApplicationName,
		APIVersion:      DefaultAPIVersion,
	}
	if opts.APIVersion != 0 {
		info.APIVersion = opts.APIVersion
	}
	if slices.Contains(available, PortabilityEnumerationExtension) {
		info.Extensions = append(info.Extensions, PortabilityEnumerationExtension)
		info.Flags |= vk.InstanceCreateFlags(vk.InstanceCreateEnumeratePortabilityBitKhr)
	} else {
		slogger().Debug("vkcompute: portability enumeration not advertised")
	}
	if slices.Contains(available, SurfaceExtension) {
		info.Extensions = append(info.Extensions, SurfaceExtension)
	}

	prepare := opts.PrepareLoader
	if opts.DirectDriver != "" {
		if slices.Contains(available, DirectDriverLoadingExtension) {
			info.Extensions = append(info.Extensions, DirectDriverLoadingExtension)
			info.DirectDriver = opts.DirectDriver
			prepare = nil
			slogger().Debug("vkcompute: loading driver directly", "library", opts.DirectDriver)
		} else {
			slogger().Debug("vkcompute: direct driver loading not advertised, using loader environment")
		}
	}

	var restore func()
	if prepare != nil {
		restore = prepare()
	}
	c.instance, err = c.drv.CreateInstance(info)
	if restore != nil {
		restore()
	}
	if err != nil {
		return fmt.Errorf("vkcompute: create instance: %w", err)
	}
	slogger().Debug("vkcompute: instance created",
		"apiVersion", versionString(info.APIVersion),
		"extensions", info.Extensions)
	return nil
}

// selectDevice picks the first physical device with a queue family that
// supports compute and has at least one queue. Candidates are not scored.
func (c *Context) selectDevice() error {
	devices, err := c.drv.PhysicalDevices(c.instance)
	if err != nil {
		return fmt.Errorf("vkcompute: enumerate physical devices: %w", err)
	}
	for _, pd := range devices {
		family, ok := computeQueueFamily(c.drv.QueueFamilies(pd))
		if !ok {
			continue
		}
		props := c.drv.DeviceProperties(pd)
		c.physicalDevice = pd
		c.queueFamily = family
		c.limits = props.Limits
		c.adapter = adapterInfo(&props)
		c.memProps = c.drv.MemoryProperties(pd)
		slogger().Debug("vkcompute: device selected",
			"name", c.adapter.Name,
			"type", c.adapter.DeviceType.String(),
			"queueFamily", family)
		return nil
	}
	return fmt.Errorf("%w (%d devices checked)", ErrNoComputeDevice, len(devices))
}

func computeQueueFamily(families []vk.QueueFamilyProperties) (uint32, bool) {
	for i, f := range families {
		if f.QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 && f.QueueCount > 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

func (c *Context) createDevice() error {
	device, err := c.drv.CreateDevice(c.physicalDevice, c.queueFamily, queuePriority)
	if err != nil {
		return fmt.Errorf("vkcompute: create device: %w", err)
	}
	c.device = device
	c.queue = c.drv.DeviceQueue(device, c.queueFamily, 0)
	return nil
}

func (c *Context) createPipeline(code []uint32) error {
	if code == nil {
		var err error
		if code, err = kernel.Compile(); err != nil {
			return fmt.Errorf("vkcompute: %w", err)
		}
	}

	var err error
	if c.shaderModule, err = c.drv.CreateShaderModule(c.device, code); err != nil {
		return fmt.Errorf("vkcompute: create shader module: %w", err)
	}

	stage := vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	bindings := []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeStorageBuffer, DescriptorCount: 1, StageFlags: stage},
		{Binding: 1, DescriptorType: vk.DescriptorTypeStorageBuffer, DescriptorCount: 1, StageFlags: stage},
	}
	if c.setLayout, err = c.drv.CreateDescriptorSetLayout(c.device, bindings); err != nil {
		return fmt.Errorf("vkcompute: create descriptor set layout: %w", err)
	}

	ranges := []vk.PushConstantRange{{StageFlags: stage, Offset: 0, Size: kernel.ParamsSize}}
	if c.pipelineLayout, err = c.drv.CreatePipelineLayout(c.device, c.setLayout, ranges); err != nil {
		return fmt.Errorf("vkcompute: create pipeline layout: %w", err)
	}

	if c.pipeline, err = c.drv.CreateComputePipeline(c.device, c.pipelineLayout, c.shaderModule, kernel.EntryPoint); err != nil {
		return fmt.Errorf("vkcompute: create compute pipeline: %w", err)
	}
	return nil
}

// Adapter describes the selected physical device.
func (c *Context) Adapter() gputypes.AdapterInfo { return c.adapter }

// QueueFamily returns the index of the compute queue family in use.
func (c *Context) QueueFamily() uint32 { return c.queueFamily }

// Close releases every handle owned by the context in dependency order:
// pipeline, pipeline layout, descriptor set layout, shader module, device,
// instance. Handles that were never created are skipped. Close is
// idempotent.
func (c *Context) Close() {
	if c == nil || c.closed {
		return
	}
	c.closed = true

	if c.device != 0 {
		if c.pipeline != 0 {
			c.drv.DestroyPipeline(c.device, c.pipeline)
			c.pipeline = 0
		}
		if c.pipelineLayout != 0 {
			c.drv.DestroyPipelineLayout(c.device, c.pipelineLayout)
			c.pipelineLayout = 0
		}
		if c.setLayout != 0 {
			c.drv.DestroyDescriptorSetLayout(c.device, c.setLayout)
			c.setLayout = 0
		}
		if c.shaderModule != 0 {
			c.drv.DestroyShaderModule(c.device, c.shaderModule)
			c.shaderModule = 0
		}
		c.drv.DestroyDevice(c.device)
		c.device = 0
		c.queue = 0
	}
	if c.instance != 0 {
		c.drv.DestroyInstance(c.instance)
		c.instance = 0
	}
	slogger().Debug("vkcompute: context released")
}
