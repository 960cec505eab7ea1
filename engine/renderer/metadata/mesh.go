package metadata

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/math"
)

/** @brief Residency tier of a mesh, totally ordered DISK < MEMORY < GPU. */
type CacheLevel uint8

const (
	CacheLevelDisk CacheLevel = iota
	CacheLevelMemory
	CacheLevelGPU

	NumCacheLevels = 3
)

func (l CacheLevel) String() string {
	switch l {
	case CacheLevelDisk:
		return "DISK"
	case CacheLevelMemory:
		return "MEMORY"
	case CacheLevelGPU:
		return "GPU"
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// Default buffer names used by meshes that do not pick their own.
const (
	DefaultVertexBufferName = "vertex"
	DefaultIndexBufferName  = "index"
)

/**
 * @brief Geometry ready for upload: vertex bytes in a declared format
 * plus a u32 triangle list.
 */
type Mesh struct {
	ID     uint32
	Name   string
	Format *VertexFormat
	/** @brief Tightly packed vertex data, len(Vertices) == VertexCount()*Format.Stride(). */
	Vertices []byte
	Indices  []uint32
	Extents  math.Extents3D
	/** @brief Radius of the origin-centred bounding sphere. */
	Radius float32

	VertexBuffer string
	IndexBuffer  string

	/** @brief Interned ID of VertexBuffer, stamped on upload. */
	VertexBufferID uint32
	/** @brief Byte offset of the first index in IndexBuffer, stamped on upload. */
	IndexOffset uint64
	/** @brief First vertex of the mesh in VertexBuffer; uploaded indices are rebased by it. */
	BaseVertex uint32
	Resident   bool
}

func (m *Mesh) IndexCount() uint32 {
	return uint32(len(m.Indices))
}

func (m *Mesh) VertexCount() uint64 {
	stride := m.Format.Stride()
	if stride == 0 {
		return 0
	}
	return uint64(len(m.Vertices)) / stride
}

func (m *Mesh) VertexBufferName() string {
	if m.VertexBuffer == "" {
		return DefaultVertexBufferName
	}
	return m.VertexBuffer
}

func (m *Mesh) IndexBufferName() string {
	if m.IndexBuffer == "" {
		return DefaultIndexBufferName
	}
	return m.IndexBuffer
}

// Validate checks the mesh is a well-formed triangle list for its format.
func (m *Mesh) Validate() error {
	if m.Format == nil {
		return fmt.Errorf("mesh %q has no vertex format", m.Name)
	}
	stride := m.Format.Stride()
	if stride == 0 || uint64(len(m.Vertices))%stride != 0 {
		return fmt.Errorf("mesh %q: %d vertex bytes is not a multiple of stride %d", m.Name, len(m.Vertices), stride)
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh %q: %d indices do not form a triangle list", m.Name, len(m.Indices))
	}
	count := m.VertexCount()
	for _, idx := range m.Indices {
		if uint64(idx) >= count {
			return fmt.Errorf("mesh %q: index %d out of range (%d vertices)", m.Name, idx, count)
		}
	}
	return nil
}
