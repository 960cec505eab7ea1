package vulkan

import (
	"fmt"
	"image"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/**
 * @brief Vulkan backend. It owns the instance, the device and buffer memory;
 * buffers are host-visible and written through their persistent mapping.
 * Textures, shaders and draw submission are tracked but not recorded into
 * command buffers yet, so nothing reaches the screen.
 */
type VulkanRenderer struct {
	context *VulkanContext
	appName string
	// extra instance extensions, e.g. those needed for a window surface
	extensions []string
	debug      bool

	nextHandle uint32
	buffers    map[metadata.BufferHandle]*VulkanBuffer
	textures   map[metadata.TextureHandle]string
	shaders    map[metadata.ShaderHandle]string
}

func New(appName string, extensions []string, debug bool) *VulkanRenderer {
	return &VulkanRenderer{
		context:    &VulkanContext{Device: &VulkanDevice{GraphicsQueueIndex: -1}},
		appName:    appName,
		extensions: extensions,
		debug:      debug,
		buffers:    make(map[metadata.BufferHandle]*VulkanBuffer),
		textures:   make(map[metadata.TextureHandle]string),
		shaders:    make(map[metadata.ShaderHandle]string),
	}
}

// Initialize creates the instance and the device. glfw must be initialized.
func (vr *VulkanRenderer) Initialize(width, height uint32) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("vulkan: GetInstanceProcAddress is nil: %w", core.ErrBackendLost)
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}
	vr.context.FramebufferWidth = width
	vr.context.FramebufferHeight = height

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vr.appName),
		PEngineName:        VulkanSafeString("Prism Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{}, vr.extensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
		createInfo.Flags |= 1
	}
	var layers []string
	if vr.debug {
		layers = append(layers, "VK_LAYER_KHRONOS_validation")
		core.LogInfo("Validation layers enabled.")
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &instance); res != vk.Success {
		err := resultError("create instance", res)
		core.LogError(err.Error())
		return err
	}
	vr.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		core.LogError(err.Error())
		return err
	}

	if err := DeviceCreate(vr.context); err != nil {
		return err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) handle() uint32 {
	vr.nextHandle++
	return vr.nextHandle
}

func (vr *VulkanRenderer) MinUniformAlignment() uint64 {
	return max(vr.context.Device.MinUniformAlignment, 1)
}

func (vr *VulkanRenderer) Resized(width, height uint32) error {
	vr.context.FramebufferWidth = width
	vr.context.FramebufferHeight = height
	return nil
}

func (vr *VulkanRenderer) CreateBuffer(usage metadata.RenderBufferUsage, storage metadata.RenderBufferStorage, size uint64) (metadata.BufferHandle, error) {
	if size == 0 {
		return metadata.InvalidHandle, fmt.Errorf("vulkan: zero sized %s buffer: %w", usage, core.ErrInternal)
	}
	b, err := BufferCreate(vr.context, usage, size)
	if err != nil {
		core.LogError(err.Error())
		return metadata.InvalidHandle, err
	}
	handle := metadata.BufferHandle(vr.handle())
	vr.buffers[handle] = b
	core.LogDebug("vulkan buffer created (%s, %s, %d bytes)", usage, storage, size)
	return handle, nil
}

func (vr *VulkanRenderer) WriteBuffer(handle metadata.BufferHandle, offset uint64, data []byte) error {
	b, err := vr.buffer(handle)
	if err != nil {
		return err
	}
	return b.Write(offset, data)
}

func (vr *VulkanRenderer) ReadBuffer(handle metadata.BufferHandle, offset, size uint64) ([]byte, error) {
	b, err := vr.buffer(handle)
	if err != nil {
		return nil, err
	}
	return b.Read(offset, size)
}

func (vr *VulkanRenderer) DestroyBuffer(handle metadata.BufferHandle) error {
	b, err := vr.buffer(handle)
	if err != nil {
		return err
	}
	b.Destroy(vr.context)
	delete(vr.buffers, handle)
	return nil
}

func (vr *VulkanRenderer) CreateTexture(name string, img *image.RGBA) (metadata.TextureHandle, error) {
	handle := metadata.TextureHandle(vr.handle())
	vr.textures[handle] = name
	return handle, nil
}

func (vr *VulkanRenderer) DestroyTexture(handle metadata.TextureHandle) error {
	if _, ok := vr.textures[handle]; !ok {
		return fmt.Errorf("vulkan: texture %d: %w", handle, core.ErrNotFound)
	}
	delete(vr.textures, handle)
	return nil
}

func (vr *VulkanRenderer) CreateShader(config *metadata.ShaderProgramConfig) (metadata.ShaderHandle, error) {
	handle := metadata.ShaderHandle(vr.handle())
	vr.shaders[handle] = config.Name
	return handle, nil
}

func (vr *VulkanRenderer) DestroyShader(handle metadata.ShaderHandle) error {
	if _, ok := vr.shaders[handle]; !ok {
		return fmt.Errorf("vulkan: shader %d: %w", handle, core.ErrNotFound)
	}
	delete(vr.shaders, handle)
	return nil
}

func (vr *VulkanRenderer) CreateDepthAttachment(extent metadata.Extent) (metadata.AttachmentHandle, error) {
	return metadata.AttachmentHandle(vr.handle()), nil
}

// BeginFrame waits for the device to go idle, which also surfaces a lost device.
func (vr *VulkanRenderer) BeginFrame() (uint64, error) {
	if res := vk.DeviceWaitIdle(vr.context.Device.LogicalDevice); res != vk.Success {
		return 0, resultError("begin frame", res)
	}
	frame := vr.context.CurrentFrame
	vr.context.CurrentFrame++
	return frame, nil
}

func (vr *VulkanRenderer) UseShader(handle metadata.ShaderHandle) error {
	if _, ok := vr.shaders[handle]; !ok {
		return fmt.Errorf("vulkan: shader %d: %w", handle, core.ErrNotFound)
	}
	return nil
}

func (vr *VulkanRenderer) BindVertexBuffer(handle metadata.BufferHandle, format *metadata.VertexFormat) error {
	_, err := vr.buffer(handle)
	return err
}

func (vr *VulkanRenderer) BindIndexBuffer(handle metadata.BufferHandle) error {
	_, err := vr.buffer(handle)
	return err
}

func (vr *VulkanRenderer) BindUniformRange(set uint32, handle metadata.BufferHandle, offset, size uint64) error {
	b, err := vr.buffer(handle)
	if err != nil {
		return err
	}
	if offset+size > b.Size {
		return fmt.Errorf("vulkan: uniform range [%d, +%d) outside buffer %d: %w", offset, size, handle, core.ErrInternal)
	}
	return nil
}

func (vr *VulkanRenderer) BindTexture(unit uint32, handle metadata.TextureHandle) error {
	if _, ok := vr.textures[handle]; !ok {
		return fmt.Errorf("vulkan: texture %d: %w", handle, core.ErrNotFound)
	}
	return nil
}

func (vr *VulkanRenderer) PushConstants(shader metadata.ShaderHandle, data []byte) error {
	// the Vulkan guaranteed minimum
	if len(data) > 128 {
		return fmt.Errorf("vulkan: %d bytes of push constants exceed 128: %w", len(data), core.ErrInternal)
	}
	return nil
}

func (vr *VulkanRenderer) DrawIndexed(count uint32, offset uint64) error {
	return nil
}

func (vr *VulkanRenderer) SetBlendEnabled(enabled bool) error {
	return nil
}

func (vr *VulkanRenderer) ClearDepthStencil() error {
	return nil
}

func (vr *VulkanRenderer) Present() error {
	return nil
}

func (vr *VulkanRenderer) Shutdown() error {
	if vr.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)
	}
	for handle, b := range vr.buffers {
		b.Destroy(vr.context)
		delete(vr.buffers, handle)
	}
	clear(vr.textures)
	clear(vr.shaders)

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(vr.context)

	if vr.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
		vr.context.Instance = nil
	}
	return nil
}

func (vr *VulkanRenderer) buffer(handle metadata.BufferHandle) (*VulkanBuffer, error) {
	b, ok := vr.buffers[handle]
	if !ok {
		return nil, fmt.Errorf("vulkan: buffer %d: %w", handle, core.ErrNotFound)
	}
	return b, nil
}
