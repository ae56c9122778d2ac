package vkcompute

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// Errors returned by context construction and dispatch.
var (
	// ErrNoComputeDevice is returned when no physical device exposes a
	// queue family with compute capability.
	ErrNoComputeDevice = errors.New("vkcompute: no compute-capable device found")

	// ErrNoMemoryType is returned when no memory type satisfies both the
	// buffer's type mask and the host-visible, host-coherent flags.
	ErrNoMemoryType = errors.New("vkcompute: no compatible memory type")

	// ErrLimitExceeded is returned when a dispatch would exceed a device limit.
	ErrLimitExceeded = errors.New("vkcompute: device limit exceeded")

	// ErrInvalidDimensions is returned for empty images or pixel data that
	// does not match the declared size.
	ErrInvalidDimensions = errors.New("vkcompute: invalid image dimensions")

	// ErrClosed is returned when using a Context after Close.
	ErrClosed = errors.New("vkcompute: context closed")
)

// ResultError reports a Vulkan command that returned a non-success code.
type ResultError struct {
	Op     string
	Result vk.Result
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("vulkan: %s failed: %s", e.Op, resultName(e.Result))
}

// check converts a Vulkan result into an error.
func check(op string, r vk.Result) error {
	if r == vk.Success {
		return nil
	}
	return &ResultError{Op: op, Result: r}
}

// IsOutOfMemory reports whether err carries a host or device
// out-of-memory result.
func IsOutOfMemory(err error) bool {
	var re *ResultError
	if !errors.As(err, &re) {
		return false
	}
	return re.Result == vk.ErrorOutOfHostMemory || re.Result == vk.ErrorOutOfDeviceMemory
}

var resultNames = map[vk.Result]string{
	vk.NotReady:                  "VK_NOT_READY",
	vk.Timeout:                   "VK_TIMEOUT",
	vk.Incomplete:                "VK_INCOMPLETE",
	vk.ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:      "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:      "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:   "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:       "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:       "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorUnknown:              "VK_ERROR_UNKNOWN",
}

func resultName(r vk.Result) string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("VkResult(%d)", int32(r))
}
