package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/**
 * @brief A buffer backed by host-visible, host-coherent memory that stays
 * mapped for its whole life.
 */
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  metadata.RenderBufferUsage

	mapped []byte
}

func usageFlags(usage metadata.RenderBufferUsage) vk.BufferUsageFlagBits {
	flags := vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	switch usage {
	case metadata.BufferUsageVertex:
		flags |= vk.BufferUsageVertexBufferBit
	case metadata.BufferUsageIndex:
		flags |= vk.BufferUsageIndexBufferBit
	case metadata.BufferUsageUniform:
		flags |= vk.BufferUsageUniformBufferBit
	}
	return flags
}

func BufferCreate(context *VulkanContext, usage metadata.RenderBufferUsage, size uint64) (*VulkanBuffer, error) {
	device := context.Device.LogicalDevice
	b := &VulkanBuffer{Size: size, Usage: usage}

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usageFlags(usage)),
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(device, &createInfo, context.Allocator, &b.Handle); res != vk.Success {
		return nil, resultError("create buffer", res)
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, b.Handle, &requirements)
	requirements.Deref()

	flags := uint32(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	index := context.FindMemoryIndex(requirements.MemoryTypeBits, flags)
	if index < 0 {
		vk.DestroyBuffer(device, b.Handle, context.Allocator)
		return nil, fmt.Errorf("vulkan: no host-visible memory type for a %d byte buffer: %w", size, core.ErrOutOfMemory)
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	if res := vk.AllocateMemory(device, &allocateInfo, context.Allocator, &b.Memory); res != vk.Success {
		vk.DestroyBuffer(device, b.Handle, context.Allocator)
		return nil, resultError("allocate buffer memory", res)
	}
	if res := vk.BindBufferMemory(device, b.Handle, b.Memory, 0); res != vk.Success {
		b.Destroy(context)
		return nil, resultError("bind buffer memory", res)
	}

	var data unsafe.Pointer
	if res := vk.MapMemory(device, b.Memory, 0, vk.DeviceSize(size), 0, &data); res != vk.Success {
		b.Destroy(context)
		return nil, resultError("map buffer memory", res)
	}
	b.mapped = unsafe.Slice((*byte)(data), size)
	return b, nil
}

func (b *VulkanBuffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("vulkan: write [%d, +%d) outside a %d byte buffer: %w", offset, len(data), b.Size, core.ErrInternal)
	}
	copy(b.mapped[offset:], data)
	return nil
}

func (b *VulkanBuffer) Read(offset, size uint64) ([]byte, error) {
	if offset+size > b.Size {
		return nil, fmt.Errorf("vulkan: read [%d, +%d) outside a %d byte buffer: %w", offset, size, b.Size, core.ErrInternal)
	}
	out := make([]byte, size)
	copy(out, b.mapped[offset:offset+size])
	return out, nil
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if b.mapped != nil {
		vk.UnmapMemory(device, b.Memory)
		b.mapped = nil
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, b.Memory, context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, b.Handle, context.Allocator)
		b.Handle = vk.NullBuffer
	}
}
