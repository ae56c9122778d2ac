package vkcompute_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/upscale/internal/vkcompute"
	"github.com/gogpu/upscale/internal/vkcompute/vktest"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

func TestSelectMemoryType(t *testing.T) {
	const (
		local    = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
		visible  = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
		coherent = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
		cached   = vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit)
	)
	required := coherent

	tests := []struct {
		name    string
		types   []vk.MemoryPropertyFlags
		bits    uint32
		want    uint32
		wantErr bool
	}{
		{"first coherent", []vk.MemoryPropertyFlags{local, coherent, coherent | cached}, 0b111, 1, false},
		{"mask excludes first match", []vk.MemoryPropertyFlags{local, coherent, coherent | cached}, 0b101, 2, false},
		{"unified memory is not preferred", []vk.MemoryPropertyFlags{coherent, local | coherent}, 0b11, 0, false},
		{"visible but not coherent", []vk.MemoryPropertyFlags{visible, local}, 0b11, 0, true},
		{"mask excludes all matches", []vk.MemoryPropertyFlags{local, coherent}, 0b01, 0, true},
		{"empty mask", []vk.MemoryPropertyFlags{coherent}, 0, 0, true},
		{"no types", nil, 0xFFFFFFFF, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := vktest.MemoryProperties(tt.types...)
			got, err := vkcompute.SelectMemoryType(&props, tt.bits, required)
			if tt.wantErr {
				require.ErrorIs(t, err, vkcompute.ErrNoMemoryType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllocateUploadsData(t *testing.T) {
	drv := vktest.NewDriver()
	ctx := newContext(t, drv)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	buf, err := ctx.Allocate(data, vkcompute.StorageUsage)
	require.NoError(t, err)

	assert.Equal(t, vk.DeviceSize(len(data)), buf.Size)
	assert.Equal(t, vk.DeviceSize(256), buf.AllocationSize)
	assert.Equal(t, uint32(1), buf.MemoryType)

	got, err := ctx.Read(buf, uint64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ctx.Release(buf)
	ctx.Release(buf)
	assert.Equal(t, 1, drv.Destroyed(vktest.KindBuffer))
	assert.Equal(t, 1, drv.Destroyed(vktest.KindMemory))
}

func TestAllocateZeroed(t *testing.T) {
	drv := vktest.NewDriver()
	ctx := newContext(t, drv)

	buf, err := ctx.AllocateZeroed(64, vkcompute.StorageUsage)
	require.NoError(t, err)
	defer ctx.Release(buf)

	got, err := ctx.Read(buf, 64)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 64), got)
}

func TestAllocateNoMemoryType(t *testing.T) {
	drv := vktest.NewDriver()
	drv.MemoryTypeBits = 0b001 // device-local only
	ctx := newContext(t, drv)

	buf, err := ctx.Allocate(make([]byte, 16), vkcompute.StorageUsage)
	require.ErrorIs(t, err, vkcompute.ErrNoMemoryType)
	assert.Nil(t, buf)
	assert.Equal(t, 1, drv.Created(vktest.KindBuffer))
	assert.Equal(t, 1, drv.Destroyed(vktest.KindBuffer))
	assert.Zero(t, drv.Created(vktest.KindMemory))
}

func TestAllocateFailureReleasesPartialBuffer(t *testing.T) {
	for _, step := range []string{"CreateBuffer", "AllocateMemory", "BindBufferMemory", "MapMemory"} {
		t.Run(step, func(t *testing.T) {
			drv := vktest.NewDriver()
			ctx, err := vkcompute.NewContext(drv, vkcompute.ContextOptions{Kernel: fakeKernel})
			require.NoError(t, err)

			drv.FailOn(step, nil)
			_, err = ctx.Allocate(make([]byte, 16), vkcompute.StorageUsage)
			require.ErrorIs(t, err, vktest.ErrInjected)

			ctx.Close()
			assertClean(t, drv)
		})
	}
}

func TestAllocateRejectsEmpty(t *testing.T) {
	ctx := newContext(t, vktest.NewDriver())
	_, err := ctx.Allocate(nil, vkcompute.StorageUsage)
	assert.ErrorIs(t, err, vkcompute.ErrInvalidDimensions)
}
