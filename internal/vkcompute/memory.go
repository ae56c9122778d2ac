package vkcompute

import (
	"fmt"

	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// hostMemoryFlags are required on every buffer allocation so a mapped
// pointer can be written and read without explicit flushes.
const hostMemoryFlags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)

// SelectMemoryType returns the lowest memory type index that is allowed by
// typeBits and has all of the required property flags.
//
// The first match wins. Device-local host-visible memory is not preferred
// over plain host memory.
func SelectMemoryType(props *vk.PhysicalDeviceMemoryProperties, typeBits uint32, required vk.MemoryPropertyFlags) (uint32, error) {
	count := min(props.MemoryTypeCount, uint32(len(props.MemoryTypes)))
	for i := uint32(0); i < count; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		if props.MemoryTypes[i].PropertyFlags&required == required {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: type bits %#x, flags %#x", ErrNoMemoryType, typeBits, uint32(required))
}
