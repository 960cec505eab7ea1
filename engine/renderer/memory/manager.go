package memory

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/** @brief The two uniform buffers owned by the memory manager. */
type UniformBufferType uint8

const (
	// Persistent per-material blocks, packed sequentially.
	UniformBufferMaterial UniformBufferType = iota
	// The per-frame ring holding per-screen and per-object blocks.
	UniformBufferScreenObject
)

const (
	MaterialUniformBufferName = "uniform.material"
	FrameUniformBufferName    = "uniform.screen_object"

	frameRingKey      = "frame-ring"
	vertexKeySuffix   = "/vertices"
	indexKeySuffix    = "/indices"
	materialKeyPrefix = "material/"
)

/** @brief Sizing of the memory manager's buffers. */
type Config struct {
	// Frames in flight; the per-frame ring holds one slab per frame. Must be at least 2.
	Frames uint32
	// Default suballocation alignment of mesh buffers.
	BufferAlignment uint64
	// Alignment of uniform range offsets. Raised to the backend minimum when lower.
	UniformAlignment uint64
	// Bytes of per-frame uniforms one frame may write.
	PerFrameUniformBytes uint64
	// Size of the material uniform buffer.
	MaterialUniformBytes uint64
	// Size of the default "vertex" buffer. Zero skips creating it.
	VertexBufferBytes uint64
	// Size of the default "index" buffer. Zero skips creating it.
	IndexBufferBytes uint64
}

func DefaultConfig() Config {
	return Config{
		Frames:               3,
		BufferAlignment:      16,
		UniformAlignment:     256,
		PerFrameUniformBytes: 1 << 20,
		MaterialUniformBytes: 256 << 10,
		VertexBufferBytes:    64 << 20,
		IndexBufferBytes:     16 << 20,
	}
}

func (c Config) Validate() error {
	if c.Frames < 2 {
		return fmt.Errorf("memory config: frames in flight must be at least 2, got %d", c.Frames)
	}
	if c.PerFrameUniformBytes == 0 {
		return fmt.Errorf("memory config: per-frame uniform bytes must be positive")
	}
	if c.MaterialUniformBytes == 0 {
		return fmt.Errorf("memory config: material uniform bytes must be positive")
	}
	return nil
}

/**
 * @brief Top of the resource graph: named buffers, named uniform set layouts,
 * mesh residency in the mesh buffers, the material uniform region and the
 * per-frame uniform ring. Main thread only.
 */
type Manager struct {
	config  Config
	backend BufferBackend

	buffers   map[string]*Buffer
	byID      map[uint32]*Buffer
	bufferIDs *core.Interner

	uniformSets map[string]*UniformSetLayout

	uniformAlignment uint64
	materialBuffer   *Buffer
	frameBuffer      *Buffer
	frameSlab        uint64
	frameCursor      uint64
	currentFrame     uint64
	frameStarted     bool

	// allocation key -> mesh name
	meshKeys    map[string]string
	meshEvicted []func(meshName string)
}

func NewManager(backend BufferBackend, config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	alignment := max(config.UniformAlignment, backend.MinUniformAlignment(), 16)
	if config.BufferAlignment == 0 {
		config.BufferAlignment = 16
	}

	m := &Manager{
		config:           config,
		backend:          backend,
		buffers:          make(map[string]*Buffer),
		byID:             make(map[uint32]*Buffer),
		bufferIDs:        core.NewInterner(),
		uniformSets:      make(map[string]*UniformSetLayout),
		uniformAlignment: alignment,
		frameSlab:        math.AlignUp(config.PerFrameUniformBytes, alignment),
		meshKeys:         make(map[string]string),
	}

	var err error
	m.materialBuffer, err = m.createBuffer(MaterialUniformBufferName, metadata.BufferUsageUniform, metadata.StorageDeviceHostVisible, math.AlignUp(config.MaterialUniformBytes, alignment), alignment)
	if err != nil {
		return nil, err
	}
	m.frameBuffer, err = m.createBuffer(FrameUniformBufferName, metadata.BufferUsageUniform, metadata.StorageDeviceHostVisible, m.frameSlab*uint64(config.Frames), alignment)
	if err != nil {
		return nil, err
	}
	if _, _, err := m.frameBuffer.Allocate(frameRingKey, m.frameBuffer.Size, alignment); err != nil {
		return nil, err
	}

	if config.VertexBufferBytes > 0 {
		if _, err := m.CreateBuffer(metadata.DefaultVertexBufferName, metadata.BufferUsageVertex, metadata.StorageDevice, config.VertexBufferBytes); err != nil {
			return nil, err
		}
	}
	if config.IndexBufferBytes > 0 {
		if _, err := m.CreateBuffer(metadata.DefaultIndexBufferName, metadata.BufferUsageIndex, metadata.StorageDevice, config.IndexBufferBytes); err != nil {
			return nil, err
		}
	}

	core.LogDebug("memory manager ready: %d frames in flight, %d-byte frame slabs, uniform alignment %d", config.Frames, m.frameSlab, alignment)
	return m, nil
}

// CreateBuffer creates a named buffer using the manager's default alignment.
func (m *Manager) CreateBuffer(name string, usage metadata.RenderBufferUsage, storage metadata.RenderBufferStorage, size uint64) (*Buffer, error) {
	alignment := m.config.BufferAlignment
	if usage == metadata.BufferUsageUniform {
		alignment = m.uniformAlignment
	}
	return m.createBuffer(name, usage, storage, size, alignment)
}

func (m *Manager) createBuffer(name string, usage metadata.RenderBufferUsage, storage metadata.RenderBufferStorage, size, alignment uint64) (*Buffer, error) {
	if _, exists := m.buffers[name]; exists {
		err := fmt.Errorf("buffer %q: %w", name, core.ErrDuplicateName)
		core.LogError(err.Error())
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("buffer %q: size must be positive", name)
	}
	b, err := newBuffer(m.backend, m.bufferIDs.Intern(name), name, usage, storage, size, alignment)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	b.onEvict = m.onBufferEviction
	m.buffers[name] = b
	m.byID[b.ID] = b
	core.LogDebug("created %s buffer %q (%s, %d bytes)", usage, name, storage, size)
	return b, nil
}

func (m *Manager) Buffer(name string) (*Buffer, error) {
	b, ok := m.buffers[name]
	if !ok {
		return nil, fmt.Errorf("buffer %q: %w", name, core.ErrNotFound)
	}
	return b, nil
}

func (m *Manager) BufferByID(id uint32) (*Buffer, bool) {
	b, ok := m.byID[id]
	return b, ok
}

// BufferID returns the interned ID of a buffer name.
func (m *Manager) BufferID(name string) (uint32, bool) {
	if _, ok := m.buffers[name]; !ok {
		return core.InvalidID, false
	}
	return m.bufferIDs.Lookup(name)
}

func (m *Manager) AddUniformSet(cfg metadata.UniformSetConfig) (*UniformSetLayout, error) {
	if _, exists := m.uniformSets[cfg.Name]; exists {
		err := fmt.Errorf("uniform set %q: %w", cfg.Name, core.ErrDuplicateName)
		core.LogError(err.Error())
		return nil, err
	}
	layout, err := NewUniformSetLayout(cfg)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if layout.Size > m.frameSlab && layout.Scope != metadata.ScopeMaterial {
		return nil, fmt.Errorf("uniform set %q (%d bytes) exceeds the per-frame slab (%d bytes): %w", cfg.Name, layout.Size, m.frameSlab, core.ErrOutOfMemory)
	}
	m.uniformSets[cfg.Name] = layout
	return layout, nil
}

func (m *Manager) UniformSet(name string) (*UniformSetLayout, error) {
	l, ok := m.uniformSets[name]
	if !ok {
		return nil, fmt.Errorf("uniform set %q: %w", name, core.ErrNotFound)
	}
	return l, nil
}

func (m *Manager) UniformBuffer(t UniformBufferType) *Buffer {
	if t == UniformBufferMaterial {
		return m.materialBuffer
	}
	return m.frameBuffer
}

func (m *Manager) UniformAlignment() uint64 {
	return m.uniformAlignment
}

func (m *Manager) Frames() uint32 {
	return m.config.Frames
}

// OnMeshEvicted registers fn to be told when a mesh loses one of its regions to eviction.
func (m *Manager) OnMeshEvicted(fn func(meshName string)) {
	m.meshEvicted = append(m.meshEvicted, fn)
}

// AddMesh makes mesh resident in its vertex and index buffers, uploading whatever is
// missing. Indices are rebased by the mesh's first vertex so draws need only an index
// offset. Calling it on a resident mesh only reactivates its regions.
func (m *Manager) AddMesh(name string, mesh *metadata.Mesh) error {
	if err := mesh.Validate(); err != nil {
		core.LogError(err.Error())
		return err
	}
	vb, err := m.Buffer(mesh.VertexBufferName())
	if err != nil {
		return err
	}
	ib, err := m.Buffer(mesh.IndexBufferName())
	if err != nil {
		return err
	}
	if vb.Usage != metadata.BufferUsageVertex || ib.Usage != metadata.BufferUsageIndex {
		return fmt.Errorf("mesh %q: buffers %q/%q are %s/%s: %w", name, vb.Name, ib.Name, vb.Usage, ib.Usage, core.ErrInternal)
	}

	stride := mesh.Format.Stride()
	vKey, iKey := name+vertexKeySuffix, name+indexKeySuffix

	vAlloc, vFresh, err := vb.Allocate(vKey, uint64(len(mesh.Vertices)), math.LCM(vb.Alignment, stride))
	if err != nil {
		core.LogWarn("mesh %q: %s", name, err)
		return err
	}
	iAlloc, iFresh, err := ib.Allocate(iKey, uint64(len(mesh.Indices))*4, ib.Alignment)
	if err != nil {
		core.LogWarn("mesh %q: %s", name, err)
		m.undoAllocation(vb, vKey, vFresh)
		return err
	}
	m.meshKeys[vKey] = name
	m.meshKeys[iKey] = name

	base := vAlloc.Offset / stride
	if base > uint64(^uint32(0)) {
		m.undoAllocation(vb, vKey, vFresh)
		m.undoAllocation(ib, iKey, iFresh)
		return fmt.Errorf("mesh %q: base vertex %d overflows u32: %w", name, base, core.ErrInternal)
	}

	if vFresh {
		if err := vb.Write(vAlloc.Offset, mesh.Vertices); err != nil {
			m.undoAllocation(vb, vKey, true)
			m.undoAllocation(ib, iKey, iFresh)
			return err
		}
	}
	if vFresh || iFresh || mesh.BaseVertex != uint32(base) || !mesh.Resident {
		if err := ib.Write(iAlloc.Offset, rebaseIndices(mesh.Indices, uint32(base))); err != nil {
			m.undoAllocation(vb, vKey, vFresh)
			m.undoAllocation(ib, iKey, true)
			return err
		}
	}

	mesh.VertexBufferID = vb.ID
	mesh.IndexOffset = iAlloc.Offset
	mesh.BaseVertex = uint32(base)
	mesh.Resident = true
	if vFresh || iFresh {
		core.LogDebug("mesh %q uploaded: vertices [%d, +%d) in %q, indices [%d, +%d) in %q", name, vAlloc.Offset, vAlloc.Size, vb.Name, iAlloc.Offset, iAlloc.Size, ib.Name)
	}
	return nil
}

// FreeMesh releases the regions of a mesh. With persist they are only marked unused
// and a later AddMesh can reactivate them without uploading.
func (m *Manager) FreeMesh(name string, mesh *metadata.Mesh, persist bool) error {
	vb, err := m.Buffer(mesh.VertexBufferName())
	if err != nil {
		return err
	}
	ib, err := m.Buffer(mesh.IndexBufferName())
	if err != nil {
		return err
	}
	vKey, iKey := name+vertexKeySuffix, name+indexKeySuffix

	release := func(b *Buffer, key string) {
		if _, ok := b.Get(key); !ok {
			return
		}
		if persist {
			_ = b.SetUnused(key)
			return
		}
		_ = b.Free(key)
		delete(m.meshKeys, key)
	}
	release(vb, vKey)
	release(ib, iKey)

	if !persist {
		mesh.Resident = false
	}
	return nil
}

// MeshRange returns the live vertex and index regions of a mesh.
func (m *Manager) MeshRange(name string, mesh *metadata.Mesh) (vertex, index metadata.MemoryRange, ok bool) {
	vb, err := m.Buffer(mesh.VertexBufferName())
	if err != nil {
		return
	}
	ib, err := m.Buffer(mesh.IndexBufferName())
	if err != nil {
		return
	}
	va, vok := vb.Get(name + vertexKeySuffix)
	ia, iok := ib.Get(name + indexKeySuffix)
	if !vok || !iok || !va.Live() || !ia.Live() {
		return
	}
	return va.Range(), ia.Range(), true
}

// BeginFrame starts writing into the ring slab of frameIndex.
func (m *Manager) BeginFrame(frameIndex uint64) {
	m.currentFrame = frameIndex
	m.frameCursor = 0
	m.frameStarted = true
}

// WritePerFrameUniforms copies the aligner's block into the slab of frameIndex and returns
// its offset in the screen/object uniform buffer. The slab of a frame is not written again
// until Frames()-1 further frames have begun.
func (m *Manager) WritePerFrameUniforms(aligner *Std140Aligner, frameIndex uint64) (uint64, error) {
	if !m.frameStarted || frameIndex != m.currentFrame {
		m.BeginFrame(frameIndex)
	}
	data := aligner.Bytes()
	size := math.AlignUp(uint64(len(data)), m.uniformAlignment)
	if m.frameCursor+size > m.frameSlab {
		return 0, fmt.Errorf("frame %d: per-frame uniforms exceed %d bytes: %w", frameIndex, m.frameSlab, core.ErrOutOfMemory)
	}
	slab := frameIndex % uint64(m.config.Frames)
	offset := slab*m.frameSlab + m.frameCursor
	if err := m.frameBuffer.Write(offset, data); err != nil {
		return 0, err
	}
	m.frameCursor += size
	return offset, nil
}

// WriteMaterialUniforms stores the aligner's block as the material's uniforms. The first
// write places the material after the previously written ones; later writes reuse its offset.
func (m *Manager) WriteMaterialUniforms(material *metadata.Material, aligner *Std140Aligner) error {
	data := aligner.Bytes()
	if len(data) == 0 {
		material.HasUniforms = false
		return nil
	}
	key := materialKeyPrefix + material.Name
	alloc, _, err := m.materialBuffer.Allocate(key, uint64(len(data)), m.uniformAlignment)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := m.materialBuffer.Write(alloc.Offset, data); err != nil {
		return err
	}
	material.UniformOffset = alloc.Offset
	material.Uniforms = slices.Clone(data)
	material.HasUniforms = true
	return nil
}

// Shutdown destroys every backend buffer.
func (m *Manager) Shutdown() error {
	var firstErr error
	for name, b := range m.buffers {
		if err := b.destroy(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("destroy buffer %q: %w", name, err)
		}
	}
	m.buffers = make(map[string]*Buffer)
	m.byID = make(map[uint32]*Buffer)
	return firstErr
}

func (m *Manager) onBufferEviction(b *Buffer, key string) {
	name, ok := m.meshKeys[key]
	if !ok {
		return
	}
	if !strings.HasSuffix(key, vertexKeySuffix) && !strings.HasSuffix(key, indexKeySuffix) {
		return
	}
	core.LogDebug("mesh %q lost its %s region to eviction", name, b.Usage)
	for _, fn := range m.meshEvicted {
		fn(name)
	}
}

func (m *Manager) undoAllocation(b *Buffer, key string, fresh bool) {
	if fresh {
		_ = b.Free(key)
		delete(m.meshKeys, key)
		return
	}
	_ = b.SetUnused(key)
}

func rebaseIndices(indices []uint32, base uint32) []byte {
	out := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx+base)
	}
	return out
}
