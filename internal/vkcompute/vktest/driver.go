// Package vktest provides an instrumented in-memory vkcompute.Driver.
//
// The fake keeps per-object create and destroy counters, records the call
// sequence, flags teardown-order violations and runs the kernel on the CPU
// when a command buffer is submitted, so full upscale flows can be tested
// without a GPU.
package vktest

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/upscale/internal/kernel"
	"github.com/gogpu/upscale/internal/vkcompute"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Object kinds tracked by the counters.
const (
	KindInstance            = "instance"
	KindDevice              = "device"
	KindShaderModule        = "shaderModule"
	KindDescriptorSetLayout = "descriptorSetLayout"
	KindPipelineLayout      = "pipelineLayout"
	KindPipeline            = "pipeline"
	KindBuffer              = "buffer"
	KindMemory              = "memory"
	KindDescriptorPool      = "descriptorPool"
	KindCommandPool         = "commandPool"
)

// ErrInjected is the default error returned by injected failures.
var ErrInjected = errors.New("vktest: injected failure")

// PhysicalDevice describes one fake physical device.
type PhysicalDevice struct {
	Properties    vk.PhysicalDeviceProperties
	QueueFamilies []vk.QueueFamilyProperties
	Memory        vk.PhysicalDeviceMemoryProperties
}

// Driver is a fake vkcompute.Driver. Configure the exported fields before
// handing it to vkcompute.NewContext.
type Driver struct {
	Devices    []PhysicalDevice
	Extensions []string

	// MemoryTypeBits is reported in every buffer's memory requirements.
	MemoryTypeBits uint32
	// Alignment rounds up reported allocation sizes.
	Alignment uint64

	mu        sync.Mutex
	fail      map[string]error
	failLeft  map[string]int
	pending   bool
	next      uintptr
	created   map[string]int
	destroyed map[string]int
	live      map[string]map[uintptr]bool
	calls     []string
	violation []string

	instanceInfo vkcompute.InstanceInfo
	priority     float32
	memory       map[vk.DeviceMemory][]byte
	mapped       map[vk.DeviceMemory]bool
	bound        map[vk.Buffer]vk.DeviceMemory
	bufferSize   map[vk.Buffer]vk.DeviceSize
	sets         map[vk.DescriptorSet]map[uint32]vk.Buffer
	setPool      map[vk.DescriptorSet]vk.DescriptorPool
	cmdPool      map[vk.CommandBuffer]vk.CommandPool
	recordings   map[vk.CommandBuffer]*Recording
	submitted    []Recording
}

// Recording is the state captured from one command buffer.
type Recording struct {
	Began, Ended  bool
	Pipeline      vk.Pipeline
	Layout        vk.PipelineLayout
	Set           vk.DescriptorSet
	PushConstants []byte
	PushStages    vk.ShaderStageFlags
	Groups        [3]uint32
	Dispatched    bool
	BeginFlags    vk.CommandBufferUsageFlags
}

var _ vkcompute.Driver = (*Driver)(nil)

// NewDriver returns a fake with one discrete GPU exposing a graphics-only
// queue family followed by a compute family, and three memory types:
// device-local, host-visible|coherent, host-visible|coherent|cached.
func NewDriver() *Driver {
	var props vk.PhysicalDeviceProperties
	copy(props.DeviceName[:], "Fake GPU")
	props.VendorID = 0x10DE
	props.DeviceID = 0x2684
	props.DeviceType = vk.PhysicalDeviceTypeDiscreteGpu
	props.ApiVersion = vkcompute.MakeVersion(1, 3, 0)
	props.Limits.MaxStorageBufferRange = 1 << 30
	props.Limits.MaxComputeWorkGroupCount = [3]uint32{65535, 65535, 65535}

	return &Driver{
		Devices: []PhysicalDevice{{
			Properties: props,
			QueueFamilies: []vk.QueueFamilyProperties{
				{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit), QueueCount: 1},
				{QueueFlags: vk.QueueFlags(vk.QueueComputeBit | vk.QueueTransferBit), QueueCount: 2},
			},
			Memory: MemoryProperties(
				vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
				vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit),
				vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit|vk.MemoryPropertyHostCachedBit),
			),
		}},
		Extensions:     []string{vkcompute.PortabilityEnumerationExtension, vkcompute.SurfaceExtension},
		MemoryTypeBits: 0b111,
		Alignment:      256,
	}
}

// MemoryProperties builds memory properties with one type per flag set.
func MemoryProperties(flags ...vk.MemoryPropertyFlags) vk.PhysicalDeviceMemoryProperties {
	var props vk.PhysicalDeviceMemoryProperties
	props.MemoryTypeCount = uint32(len(flags))
	for i, f := range flags {
		props.MemoryTypes[i] = vk.MemoryType{PropertyFlags: f}
	}
	props.MemoryHeapCount = 1
	return props
}

// FailOn makes the named Driver method fail with err (ErrInjected if nil).
func (d *Driver) FailOn(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.created == nil {
		d.init()
	}
	if d.fail == nil {
		d.fail = make(map[string]error)
	}
	if err == nil {
		err = ErrInjected
	}
	d.fail[method] = err
	delete(d.failLeft, method)
}

// FailTimes makes the next n calls of the named Driver method fail with
// err (ErrInjected if nil). Later calls succeed.
func (d *Driver) FailTimes(method string, n int, err error) {
	d.FailOn(method, err)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failLeft == nil {
		d.failLeft = make(map[string]int)
	}
	d.failLeft[method] = n
}

// Created returns how many objects of kind were created.
func (d *Driver) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// Destroyed returns how many objects of kind were destroyed.
func (d *Driver) Destroyed(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed[kind]
}

// Leaks returns, per kind, created minus destroyed where non-zero.
func (d *Driver) Leaks() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	leaks := make(map[string]int)
	for kind, n := range d.created {
		if diff := n - d.destroyed[kind]; diff != 0 {
			leaks[kind] = diff
		}
	}
	return leaks
}

// Calls returns the method names invoked so far, in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

// Violations returns ordering and lifetime errors seen so far.
func (d *Driver) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.violation)
}

// InstanceInfo returns the parameters of the last CreateInstance call.
func (d *Driver) InstanceInfo() vkcompute.InstanceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.instanceInfo
}

// QueuePriority returns the priority passed to CreateDevice.
func (d *Driver) QueuePriority() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.priority
}

// Submitted returns the recordings of all submitted command buffers.
func (d *Driver) Submitted() []Recording {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.submitted)
}

// enter records a call and returns the injected failure, if any.
func (d *Driver) enter(method string) error {
	d.calls = append(d.calls, method)
	err := d.fail[method]
	if err == nil {
		return nil
	}
	if n, ok := d.failLeft[method]; ok {
		if n <= 1 {
			delete(d.fail, method)
			delete(d.failLeft, method)
		} else {
			d.failLeft[method] = n - 1
		}
	}
	return fmt.Errorf("%s: %w", method, err)
}

func (d *Driver) violate(format string, args ...any) {
	d.violation = append(d.violation, fmt.Sprintf(format, args...))
}

func (d *Driver) create(kind string) uintptr {
	d.next++
	h := d.next
	d.created[kind]++
	if d.live[kind] == nil {
		d.live[kind] = make(map[uintptr]bool)
	}
	d.live[kind][h] = true
	return h
}

func (d *Driver) destroy(kind string, h uintptr) {
	if d.pending {
		d.violate("destroy %s while a submission is pending", kind)
	}
	if h == 0 {
		d.violate("destroy %s with null handle", kind)
		return
	}
	if !d.live[kind][h] {
		d.violate("destroy %s %d which is not live", kind, h)
		return
	}
	delete(d.live[kind], h)
	d.destroyed[kind]++
}

func (d *Driver) liveCount(kinds ...string) int {
	n := 0
	for _, k := range kinds {
		n += len(d.live[k])
	}
	return n
}

// Load never resets state. Counters accumulate across every context
// built on the same fake.
func (d *Driver) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.created == nil {
		d.init()
	}
	return d.enter("Load")
}

func (d *Driver) init() {
	d.created = make(map[string]int)
	d.destroyed = make(map[string]int)
	d.live = make(map[string]map[uintptr]bool)
	d.memory = make(map[vk.DeviceMemory][]byte)
	d.mapped = make(map[vk.DeviceMemory]bool)
	d.bound = make(map[vk.Buffer]vk.DeviceMemory)
	d.bufferSize = make(map[vk.Buffer]vk.DeviceSize)
	d.sets = make(map[vk.DescriptorSet]map[uint32]vk.Buffer)
	d.setPool = make(map[vk.DescriptorSet]vk.DescriptorPool)
	d.cmdPool = make(map[vk.CommandBuffer]vk.CommandPool)
	d.recordings = make(map[vk.CommandBuffer]*Recording)
}

func (d *Driver) InstanceExtensions() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("InstanceExtensions"); err != nil {
		return nil, err
	}
	return slices.Clone(d.Extensions), nil
}

func (d *Driver) CreateInstance(info vkcompute.InstanceInfo) (vk.Instance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CreateInstance"); err != nil {
		return 0, err
	}
	if d.liveCount(KindInstance) > 0 {
		d.violate("instance created while another is live")
	}
	d.instanceInfo = info
	return vk.Instance(d.create(KindInstance)), nil
}

func (d *Driver) DestroyInstance(instance vk.Instance) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DestroyInstance")
	if d.liveCount(KindDevice) > 0 {
		d.violate("instance destroyed with a live device")
	}
	d.destroy(KindInstance, uintptr(instance))
}

func (d *Driver) PhysicalDevices(vk.Instance) ([]vk.PhysicalDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("PhysicalDevices"); err != nil {
		return nil, err
	}
	out := make([]vk.PhysicalDevice, len(d.Devices))
	for i := range out {
		out[i] = vk.PhysicalDevice(i + 1)
	}
	return out, nil
}

func (d *Driver) device(pd vk.PhysicalDevice) *PhysicalDevice {
	return &d.Devices[int(pd)-1]
}

func (d *Driver) QueueFamilies(pd vk.PhysicalDevice) []vk.QueueFamilyProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("QueueFamilies")
	return slices.Clone(d.device(pd).QueueFamilies)
}

func (d *Driver) DeviceProperties(pd vk.PhysicalDevice) vk.PhysicalDeviceProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DeviceProperties")
	return d.device(pd).Properties
}

func (d *Driver) MemoryProperties(pd vk.PhysicalDevice) vk.PhysicalDeviceMemoryProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("MemoryProperties")
	return d.device(pd).Memory
}

func (d *Driver) CreateDevice(_ vk.PhysicalDevice, _ uint32, priority float32) (vk.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CreateDevice"); err != nil {
		return 0, err
	}
	d.priority = priority
	return vk.Device(d.create(KindDevice)), nil
}

func (d *Driver) DestroyDevice(device vk.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DestroyDevice")
	if n := d.liveCount(KindShaderModule, KindDescriptorSetLayout, KindPipelineLayout, KindPipeline,
		KindBuffer, KindMemory, KindDescriptorPool, KindCommandPool); n > 0 {
		d.violate("device destroyed with %d live children", n)
	}
	d.destroy(KindDevice, uintptr(device))
}

func (d *Driver) DeviceQueue(vk.Device, uint32, uint32) vk.Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DeviceQueue")
	return vk.Queue(1)
}

func (d *Driver) CreateShaderModule(_ vk.Device, code []uint32) (vk.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CreateShaderModule"); err != nil {
		return 0, err
	}
	if len(code) == 0 {
		return 0, fmt.Errorf("CreateShaderModule: empty code")
	}
	return vk.ShaderModule(d.create(KindShaderModule)), nil
}

func (d *Driver) DestroyShaderModule(_ vk.Device, module vk.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DestroyShaderModule")
	if d.liveCount(KindPipeline) > 0 {
		d.violate("shader module destroyed before pipeline")
	}
	d.destroy(KindShaderModule, uintptr(module))
}

func (d *Driver) CreateDescriptorSetLayout(_ vk.Device, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	for _, b := range bindings {
		if b.DescriptorType != vk.DescriptorTypeStorageBuffer || b.StageFlags != vk.ShaderStageFlags(vk.ShaderStageComputeBit) {
			d.violate("binding %d is not a compute-only storage buffer", b.Binding)
		}
	}
	return vk.DescriptorSetLayout(d.create(KindDescriptorSetLayout)), nil
}

func (d *Driver) DestroyDescriptorSetLayout(_ vk.Device, layout vk.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DestroyDescriptorSetLayout")
	if d.liveCount(KindPipelineLayout) > 0 {
		d.violate("descriptor set layout destroyed before pipeline layout")
	}
	d.destroy(KindDescriptorSetLayout, uintptr(layout))
}

func (d *Driver) CreatePipelineLayout(_ vk.Device, _ vk.DescriptorSetLayout, ranges []vk.PushConstantRange) (vk.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CreatePipelineLayout"); err != nil {
		return 0, err
	}
	if len(ranges) != 1 || ranges[0].Size != kernel.ParamsSize {
		d.violate("pipeline layout push range %+v", ranges)
	}
	return vk.PipelineLayout(d.create(KindPipelineLayout)), nil
}

func (d *Driver) DestroyPipelineLayout(_ vk.Device, layout vk.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DestroyPipelineLayout")
	if d.liveCount(KindPipeline) > 0 {
		d.violate("pipeline layout destroyed before pipeline")
	}
	d.destroy(KindPipelineLayout, uintptr(layout))
}

func (d *Driver) CreateComputePipeline(_ vk.Device, _ vk.PipelineLayout, _ vk.ShaderModule, entryPoint string) (vk.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CreateComputePipeline"); err != nil {
		return 0, err
	}
	if entryPoint != kernel.EntryPoint {
		d.violate("pipeline entry point %q", entryPoint)
	}
	return vk.Pipeline(d.create(KindPipeline)), nil
}

func (d *Driver) DestroyPipeline(_ vk.Device, pipeline vk.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DestroyPipeline")
	d.destroy(KindPipeline, uintptr(pipeline))
}

func (d *Driver) CreateBuffer(_ vk.Device, size vk.DeviceSize, _ vk.BufferUsageFlags) (vk.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CreateBuffer"); err != nil {
		return 0, err
	}
	b := vk.Buffer(d.create(KindBuffer))
	d.bufferSize[b] = size
	return b, nil
}

func (d *Driver) DestroyBuffer(_ vk.Device, buffer vk.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DestroyBuffer")
	if d.liveCount(KindDescriptorPool, KindCommandPool) > 0 {
		d.violate("buffer destroyed while a pool is live")
	}
	if mem, ok := d.bound[buffer]; ok && !d.live[KindMemory][uintptr(mem)] {
		d.violate("buffer destroyed after its memory was freed")
	}
	delete(d.bound, buffer)
	d.destroy(KindBuffer, uintptr(buffer))
}

func (d *Driver) BufferMemoryRequirements(_ vk.Device, buffer vk.Buffer) vk.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("BufferMemoryRequirements")
	size := uint64(d.bufferSize[buffer])
	if a := d.Alignment; a > 1 {
		size = (size + a - 1) / a * a
	}
	return vk.MemoryRequirements{
		Size:           vk.DeviceSize(size),
		Alignment:      vk.DeviceSize(max(d.Alignment, 1)),
		MemoryTypeBits: d.MemoryTypeBits,
	}
}

func (d *Driver) AllocateMemory(_ vk.Device, size vk.DeviceSize, _ uint32) (vk.DeviceMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("AllocateMemory"); err != nil {
		return 0, err
	}
	m := vk.DeviceMemory(d.create(KindMemory))
	// Garbage, so missing initialization shows up in results.
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0xCD
	}
	d.memory[m] = buf
	return m, nil
}

func (d *Driver) FreeMemory(_ vk.Device, memory vk.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("FreeMemory")
	for b, m := range d.bound {
		if m == memory {
			d.violate("memory freed while buffer %d is bound to it", b)
		}
	}
	if d.mapped[memory] {
		d.violate("memory freed while mapped")
	}
	delete(d.memory, memory)
	d.destroy(KindMemory, uintptr(memory))
}

func (d *Driver) BindBufferMemory(_ vk.Device, buffer vk.Buffer, memory vk.DeviceMemory, offset vk.DeviceSize) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("BindBufferMemory"); err != nil {
		return err
	}
	if offset != 0 {
		d.violate("buffer bound at offset %d", offset)
	}
	d.bound[buffer] = memory
	return nil
}

func (d *Driver) MapMemory(_ vk.Device, memory vk.DeviceMemory, offset, size vk.DeviceSize) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("MapMemory"); err != nil {
		return nil, err
	}
	buf, ok := d.memory[memory]
	if !ok {
		return nil, fmt.Errorf("MapMemory: unknown memory %d", memory)
	}
	if d.mapped[memory] {
		d.violate("memory %d mapped twice", memory)
	}
	if uint64(offset)+uint64(size) > uint64(len(buf)) {
		return nil, fmt.Errorf("MapMemory: range %d+%d exceeds allocation %d", offset, size, len(buf))
	}
	d.mapped[memory] = true
	return buf[offset : offset+size], nil
}

func (d *Driver) UnmapMemory(_ vk.Device, memory vk.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("UnmapMemory")
	if !d.mapped[memory] {
		d.violate("memory %d unmapped but not mapped", memory)
	}
	delete(d.mapped, memory)
}

func (d *Driver) CreateDescriptorPool(_ vk.Device, maxSets uint32, sizes []vk.DescriptorPoolSize) (vk.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CreateDescriptorPool"); err != nil {
		return 0, err
	}
	if maxSets != 1 || len(sizes) != 1 || sizes[0].DescriptorCount != 2 {
		d.violate("descriptor pool maxSets=%d sizes=%+v", maxSets, sizes)
	}
	return vk.DescriptorPool(d.create(KindDescriptorPool)), nil
}

func (d *Driver) DestroyDescriptorPool(_ vk.Device, pool vk.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DestroyDescriptorPool")
	for s, p := range d.setPool {
		if p == pool {
			delete(d.sets, s)
			delete(d.setPool, s)
		}
	}
	d.destroy(KindDescriptorPool, uintptr(pool))
}

func (d *Driver) AllocateDescriptorSet(_ vk.Device, pool vk.DescriptorPool, _ vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("AllocateDescriptorSet"); err != nil {
		return 0, err
	}
	d.next++
	s := vk.DescriptorSet(d.next)
	d.sets[s] = make(map[uint32]vk.Buffer)
	d.setPool[s] = pool
	return s, nil
}

func (d *Driver) UpdateDescriptorSets(_ vk.Device, writes []vk.WriteDescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("UpdateDescriptorSets")
	for _, w := range writes {
		bindings, ok := d.sets[w.DstSet]
		if !ok || w.PBufferInfo == nil {
			d.violate("bad descriptor write %+v", w)
			continue
		}
		bindings[w.DstBinding] = w.PBufferInfo.Buffer
	}
}

func (d *Driver) CreateCommandPool(vk.Device, uint32) (vk.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CreateCommandPool"); err != nil {
		return 0, err
	}
	return vk.CommandPool(d.create(KindCommandPool)), nil
}

func (d *Driver) DestroyCommandPool(_ vk.Device, pool vk.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("DestroyCommandPool")
	for cb, p := range d.cmdPool {
		if p == pool {
			delete(d.recordings, cb)
			delete(d.cmdPool, cb)
		}
	}
	d.destroy(KindCommandPool, uintptr(pool))
}

func (d *Driver) AllocateCommandBuffer(_ vk.Device, pool vk.CommandPool) (vk.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("AllocateCommandBuffer"); err != nil {
		return 0, err
	}
	d.next++
	cb := vk.CommandBuffer(d.next)
	d.cmdPool[cb] = pool
	d.recordings[cb] = &Recording{}
	return cb, nil
}

func (d *Driver) BeginCommandBuffer(cb vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("BeginCommandBuffer"); err != nil {
		return err
	}
	r := d.recordings[cb]
	r.Began = true
	r.BeginFlags = flags
	return nil
}

func (d *Driver) EndCommandBuffer(cb vk.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("EndCommandBuffer"); err != nil {
		return err
	}
	d.recordings[cb].Ended = true
	return nil
}

func (d *Driver) CmdBindPipeline(cb vk.CommandBuffer, pipeline vk.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("CmdBindPipeline")
	d.recordings[cb].Pipeline = pipeline
}

func (d *Driver) CmdBindDescriptorSet(cb vk.CommandBuffer, layout vk.PipelineLayout, set vk.DescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("CmdBindDescriptorSet")
	r := d.recordings[cb]
	r.Layout = layout
	r.Set = set
}

func (d *Driver) CmdPushConstants(cb vk.CommandBuffer, _ vk.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, values []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CmdPushConstants"); err != nil {
		return err
	}
	if offset != 0 {
		d.violate("push constants at offset %d", offset)
	}
	r := d.recordings[cb]
	r.PushConstants = slices.Clone(values)
	r.PushStages = stages
	return nil
}

func (d *Driver) CmdDispatch(cb vk.CommandBuffer, x, y, z uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.enter("CmdDispatch")
	r := d.recordings[cb]
	r.Groups = [3]uint32{x, y, z}
	r.Dispatched = true
}

// QueueSubmit executes the recorded dispatch with kernel.Reference.
func (d *Driver) QueueSubmit(_ vk.Queue, cb vk.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("QueueSubmit"); err != nil {
		return err
	}
	r, ok := d.recordings[cb]
	if !ok || !r.Began || !r.Ended {
		return fmt.Errorf("QueueSubmit: command buffer %d not recorded", cb)
	}
	if len(d.mapped) > 0 {
		d.violate("submit while %d allocations are mapped", len(d.mapped))
	}
	d.submitted = append(d.submitted, *r)
	if r.Dispatched {
		if err := d.execute(r); err != nil {
			return err
		}
	}
	d.pending = true
	return nil
}

func (d *Driver) execute(r *Recording) error {
	p, err := kernel.DecodeParams(r.PushConstants)
	if err != nil {
		return fmt.Errorf("QueueSubmit: %w", err)
	}
	bindings := d.sets[r.Set]
	src, okSrc := d.memory[d.bound[bindings[0]]]
	dst, okDst := d.memory[d.bound[bindings[1]]]
	if !okSrc || !okDst {
		return fmt.Errorf("QueueSubmit: descriptor set %d has unbound slots", r.Set)
	}

	outW, outH, size := p.OutputSize()
	if uint64(r.Groups[0])*kernel.WorkgroupSize < uint64(outW) || uint64(r.Groups[1])*kernel.WorkgroupSize < uint64(outH) {
		return fmt.Errorf("QueueSubmit: grid %v does not cover %dx%d", r.Groups, outW, outH)
	}
	if uint64(len(dst)) < size {
		return fmt.Errorf("QueueSubmit: output allocation %d < %d", len(dst), size)
	}
	kernel.ReferenceInto(dst, src, p, outW, outH)
	return nil
}

// QueueWaitIdle completes the pending submission unless a failure is
// injected, in which case the submission stays pending.
func (d *Driver) QueueWaitIdle(vk.Queue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("QueueWaitIdle"); err != nil {
		return err
	}
	d.pending = false
	return nil
}
