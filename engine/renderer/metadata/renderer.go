package metadata

import "fmt"

// Opaque backend object handles. Zero is never a valid handle.
type (
	BufferHandle     uint32
	ShaderHandle     uint32
	TextureHandle    uint32
	AttachmentHandle uint32
)

const InvalidHandle = 0

/** @brief What a render buffer is bound as. */
type RenderBufferUsage uint8

const (
	BufferUsageVertex RenderBufferUsage = iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageTransfer
)

func (u RenderBufferUsage) String() string {
	switch u {
	case BufferUsageVertex:
		return "vertex"
	case BufferUsageIndex:
		return "index"
	case BufferUsageUniform:
		return "uniform"
	case BufferUsageTransfer:
		return "transfer"
	}
	return fmt.Sprintf("usage(%d)", uint8(u))
}

/** @brief Where the memory of a render buffer lives. */
type RenderBufferStorage uint8

const (
	// Host memory only; the backend copies on use.
	StorageHost RenderBufferStorage = iota
	// Device-local memory, written through a staging path.
	StorageDevice
	// Device memory mapped into the host address space.
	StorageDeviceHostVisible
)

func (s RenderBufferStorage) String() string {
	switch s {
	case StorageHost:
		return "host"
	case StorageDevice:
		return "device"
	case StorageDeviceHostVisible:
		return "device-host-visible"
	}
	return fmt.Sprintf("storage(%d)", uint8(s))
}

// HostVisible reports whether the storage can be read back directly.
func (s RenderBufferStorage) HostVisible() bool {
	return s != StorageDevice
}

/** @brief The pass a shader draws in. Passes are submitted in declaration order. */
type RenderPassType uint8

const (
	RenderPassOpaque RenderPassType = iota
	RenderPassTransparent
	RenderPassTranslucent
)

// RenderPasses lists every pass in submission order.
var RenderPasses = [...]RenderPassType{RenderPassOpaque, RenderPassTransparent, RenderPassTranslucent}

func (p RenderPassType) String() string {
	switch p {
	case RenderPassOpaque:
		return "opaque"
	case RenderPassTransparent:
		return "transparent"
	case RenderPassTranslucent:
		return "translucent"
	}
	return fmt.Sprintf("pass(%d)", uint8(p))
}

// ParseRenderPass accepts the names produced by RenderPassType.String.
func ParseRenderPass(s string) (RenderPassType, error) {
	for _, p := range RenderPasses {
		if p.String() == s {
			return p, nil
		}
	}
	return RenderPassOpaque, fmt.Errorf("unknown render pass %q", s)
}

type MemoryRange struct {
	Offset uint64
	Size   uint64
}

// End returns the first byte past the range.
func (r MemoryRange) End() uint64 {
	return r.Offset + r.Size
}

// Overlaps reports whether both ranges share at least one byte.
func (r MemoryRange) Overlaps(o MemoryRange) bool {
	return r.Offset < o.End() && o.Offset < r.End()
}

type Extent struct {
	Width  uint32
	Height uint32
}
