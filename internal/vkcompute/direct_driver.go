package vkcompute

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// icdProcAddrSymbol is the entry point every installable client driver
// exports to the loader.
const icdProcAddrSymbol = "vk_icdGetInstanceProcAddr"

// directDriver is a driver library opened for VK_LUNARG_direct_driver_loading.
// The library stays loaded until close, which must follow vkDestroyInstance.
type directDriver struct {
	lib  unsafe.Pointer
	info vk.DirectDriverLoadingInfoLUNARG
	list vk.DirectDriverLoadingListLUNARG
}

func openDirectDriver(path string) (*directDriver, error) {
	lib, err := ffi.LoadLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("vulkan: open driver: %w", err)
	}
	proc, err := ffi.GetSymbol(lib, icdProcAddrSymbol)
	if err != nil {
		_ = ffi.FreeLibrary(lib)
		return nil, fmt.Errorf("vulkan: driver %s: %w", path, err)
	}

	dd := &directDriver{lib: lib}
	dd.info = vk.DirectDriverLoadingInfoLUNARG{
		SType:                  vk.StructureTypeDirectDriverLoadingInfoLunarg,
		PfnGetInstanceProcAddr: uintptr(proc),
	}
	// Exclusive mode hides every other driver, matching VK_ICD_FILENAMES.
	dd.list = vk.DirectDriverLoadingListLUNARG{
		SType:       vk.StructureTypeDirectDriverLoadingListLunarg,
		Mode:        vk.DirectDriverLoadingModeExclusiveLunarg,
		DriverCount: 1,
		PDrivers:    &dd.info,
	}
	return dd, nil
}

// next returns the list as an InstanceCreateInfo.PNext value.
func (dd *directDriver) next() *uintptr {
	return (*uintptr)(unsafe.Pointer(&dd.list))
}

func (dd *directDriver) close() {
	if dd == nil || dd.lib == nil {
		return
	}
	if err := ffi.FreeLibrary(dd.lib); err != nil {
		slogger().Warn("vulkan: unload driver failed", "err", err)
	}
	dd.lib = nil
}
