package vkcompute

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

var vendorNames = map[uint32]string{
	0x1002:  "AMD",
	0x106B:  "Apple",
	0x10DE:  "NVIDIA",
	0x13B5:  "ARM",
	0x5143:  "Qualcomm",
	0x8086:  "Intel",
	0x10005: "Mesa",
}

// adapterInfo describes a physical device in backend-neutral terms.
func adapterInfo(props *vk.PhysicalDeviceProperties) gputypes.AdapterInfo {
	deviceType := gputypes.DeviceTypeOther
	switch props.DeviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		deviceType = gputypes.DeviceTypeDiscreteGPU
	case vk.PhysicalDeviceTypeIntegratedGpu:
		deviceType = gputypes.DeviceTypeIntegratedGPU
	case vk.PhysicalDeviceTypeVirtualGpu:
		deviceType = gputypes.DeviceTypeVirtualGPU
	case vk.PhysicalDeviceTypeCpu:
		deviceType = gputypes.DeviceTypeCPU
	}

	vendor := vendorNames[props.VendorID]
	if vendor == "" {
		vendor = fmt.Sprintf("0x%04X", props.VendorID)
	}

	return gputypes.AdapterInfo{
		Name:       cStringToGo(props.DeviceName[:]),
		Vendor:     vendor,
		VendorID:   props.VendorID,
		DeviceID:   props.DeviceID,
		DeviceType: deviceType,
		Driver:     fmt.Sprintf("%d", props.DriverVersion),
		DriverInfo: "Vulkan " + versionString(props.ApiVersion),
		Backend:    gputypes.BackendVulkan,
	}
}

func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", (v>>22)&0x7F, (v>>12)&0x3FF, v&0xFFF)
}
