package renderer

import (
	"fmt"
	"image"
	"strings"

	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/**
 * @brief The graphics API seam. Every call happens on the main thread.
 * Implementations report a non-recoverable device state by wrapping
 * core.ErrBackendLost.
 */
type Backend interface {
	memory.BufferBackend

	Resized(width, height uint32) error

	CreateTexture(name string, img *image.RGBA) (metadata.TextureHandle, error)
	DestroyTexture(handle metadata.TextureHandle) error
	CreateShader(config *metadata.ShaderProgramConfig) (metadata.ShaderHandle, error)
	DestroyShader(handle metadata.ShaderHandle) error
	CreateDepthAttachment(extent metadata.Extent) (metadata.AttachmentHandle, error)

	// BeginFrame returns the index of the frame that starts.
	BeginFrame() (uint64, error)
	UseShader(handle metadata.ShaderHandle) error
	BindVertexBuffer(handle metadata.BufferHandle, format *metadata.VertexFormat) error
	BindIndexBuffer(handle metadata.BufferHandle) error
	BindUniformRange(set uint32, handle metadata.BufferHandle, offset, size uint64) error
	BindTexture(unit uint32, handle metadata.TextureHandle) error
	PushConstants(shader metadata.ShaderHandle, data []byte) error
	// DrawIndexed draws count indices starting at byte offset of the bound index buffer.
	DrawIndexed(count uint32, offset uint64) error
	SetBlendEnabled(enabled bool) error
	ClearDepthStencil() error
	Present() error

	Shutdown() error
}

type RendererType uint8

const (
	OpenGL RendererType = iota
	Vulkan
	Headless
)

func (t RendererType) String() string {
	switch t {
	case OpenGL:
		return "opengl"
	case Vulkan:
		return "vulkan"
	case Headless:
		return "headless"
	}
	return fmt.Sprintf("renderer(%d)", uint8(t))
}

func ParseRendererType(s string) (RendererType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "opengl", "gl", "":
		return OpenGL, nil
	case "vulkan", "vk":
		return Vulkan, nil
	case "headless", "none":
		return Headless, nil
	}
	return OpenGL, fmt.Errorf("unknown renderer backend %q", s)
}
