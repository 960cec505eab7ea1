package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex int32
	GraphicsQueue      vk.Queue

	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties

	// Minimum alignment of uniform buffer range offsets.
	MinUniformAlignment uint64
}

/**
 * @brief Picks a physical device with a graphics queue, preferring a
 * discrete GPU, and creates the logical device with that one queue.
 */
func DeviceCreate(context *VulkanContext) error {
	if err := selectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")
	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(context.Device.GraphicsQueueIndex),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),
		PQueueCreateInfos:    queueCreateInfos,
	}
	var device vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		err := resultError("create device", res)
		core.LogError(err.Error())
		return err
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device, uint32(context.Device.GraphicsQueueIndex), 0, &queue)
	context.Device.GraphicsQueue = queue
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	context.Device.GraphicsQueue = nil
	if context.Device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}
	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.GraphicsQueueIndex = -1
}

func selectPhysicalDevice(context *VulkanContext) error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &count, nil); res != vk.Success {
		return resultError("enumerate physical devices", res)
	}
	if count == 0 {
		return fmt.Errorf("vulkan: no devices which support Vulkan were found: %w", core.ErrBackendLost)
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &count, devices); res != vk.Success {
		return resultError("enumerate physical devices", res)
	}

	selected := -1
	for i, pd := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()

		family := graphicsQueueFamily(pd)
		if family < 0 {
			core.LogInfo("Device '%s' has no graphics queue, skipping.", vk.ToString(properties.DeviceName[:]))
			continue
		}
		if selected >= 0 && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			continue
		}
		selected = i

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
		memory.Deref()
		properties.Limits.Deref()

		context.Device.PhysicalDevice = pd
		context.Device.GraphicsQueueIndex = family
		context.Device.Properties = properties
		context.Device.Memory = memory
		context.Device.MinUniformAlignment = uint64(properties.Limits.MinUniformBufferOffsetAlignment)
		if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			break
		}
	}
	if selected < 0 {
		err := fmt.Errorf("vulkan: no physical device meets the requirements: %w", core.ErrBackendLost)
		core.LogError(err.Error())
		return err
	}

	properties := context.Device.Properties
	core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:]))
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version.Major(vk.Version(properties.ApiVersion)),
		vk.Version.Minor(vk.Version(properties.ApiVersion)),
		vk.Version.Patch(vk.Version(properties.ApiVersion)),
	)
	return nil
}

func graphicsQueueFamily(device vk.PhysicalDevice) int32 {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)
	for i := range families {
		families[i].Deref()
		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			return int32(i)
		}
	}
	return -1
}
