package memory

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

var positionFormat = &metadata.VertexFormat{
	Name:       "position",
	Attributes: []metadata.VertexAttribute{{Name: "in_position", Type: metadata.ElementVec4}},
}

// testMesh builds a mesh of vertexCount vec4 vertices and indexCount indices.
func testMesh(name string, vertexCount, indexCount int) *metadata.Mesh {
	vertices := make([]byte, vertexCount*16)
	for i := range vertices {
		vertices[i] = byte(i)
	}
	indices := make([]uint32, indexCount)
	for i := range indices {
		indices[i] = uint32(i % vertexCount)
	}
	return &metadata.Mesh{Name: name, Format: positionFormat, Vertices: vertices, Indices: indices}
}

func newTestManager(t *testing.T, vertexBytes, indexBytes uint64) (*Manager, *headless.Backend) {
	t.Helper()
	backend := headless.New(256)
	cfg := DefaultConfig()
	cfg.Frames = 2
	cfg.BufferAlignment = 16
	cfg.PerFrameUniformBytes = 1024
	cfg.MaterialUniformBytes = 1024
	cfg.VertexBufferBytes = vertexBytes
	cfg.IndexBufferBytes = indexBytes
	m, err := NewManager(backend, cfg)
	require.NoError(t, err)
	return m, backend
}

func vertexOffset(t *testing.T, m *Manager, name string, mesh *metadata.Mesh) uint64 {
	t.Helper()
	v, _, ok := m.MeshRange(name, mesh)
	require.True(t, ok, "mesh %q is not resident", name)
	return v.Offset
}

func TestManagerRequiresTwoFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frames = 1
	_, err := NewManager(headless.New(256), cfg)
	assert.Error(t, err)
}

func TestManagerNamedBuffers(t *testing.T) {
	m, _ := newTestManager(t, 1024, 1024)

	_, err := m.CreateBuffer(metadata.DefaultVertexBufferName, metadata.BufferUsageVertex, metadata.StorageDevice, 64)
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	_, err = m.Buffer("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	b, err := m.CreateBuffer("terrain", metadata.BufferUsageVertex, metadata.StorageDevice, 4096)
	require.NoError(t, err)
	id, ok := m.BufferID("terrain")
	require.True(t, ok)
	assert.Equal(t, b.ID, id)
	byID, ok := m.BufferByID(id)
	require.True(t, ok)
	assert.Same(t, b, byID)

	_, err = m.AddUniformSet(metadata.UniformSetConfig{Name: "screen"})
	require.NoError(t, err)
	_, err = m.AddUniformSet(metadata.UniformSetConfig{Name: "screen"})
	assert.ErrorIs(t, err, core.ErrDuplicateName)
	_, err = m.UniformSet("nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestManagerUniformAlignmentHonoursBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UniformAlignment = 64
	cfg.VertexBufferBytes = 0
	cfg.IndexBufferBytes = 0
	m, err := NewManager(headless.New(512), cfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(512), m.UniformAlignment())
}

func TestTwoMeshesOneBuffer(t *testing.T) {
	m, _ := newTestManager(t, 1024, 1024)

	// 16 vec4 vertices are 256 bytes, 24 indices are 96 bytes
	a := testMesh("A", 16, 24)
	b := testMesh("B", 16, 24)
	require.NoError(t, m.AddMesh("A", a))
	require.NoError(t, m.AddMesh("B", b))

	assert.Equal(t, uint64(0), vertexOffset(t, m, "A", a))
	assert.Equal(t, uint64(256), vertexOffset(t, m, "B", b))
	assert.Equal(t, uint64(0), a.IndexOffset)
	assert.Equal(t, uint64(96), b.IndexOffset)
	assert.Equal(t, uint32(0), a.BaseVertex)
	assert.Equal(t, uint32(16), b.BaseVertex)

	require.NoError(t, m.FreeMesh("A", a, false))
	assert.False(t, a.Resident)

	c := testMesh("C", 16, 24)
	require.NoError(t, m.AddMesh("C", c))
	assert.Equal(t, uint64(0), vertexOffset(t, m, "C", c))
	assert.Equal(t, uint64(0), c.IndexOffset)
}

func TestAddMeshRebasesIndices(t *testing.T) {
	m, backend := newTestManager(t, 1024, 1024)
	require.NoError(t, m.AddMesh("first", testMesh("first", 16, 6)))
	second := testMesh("second", 4, 6)
	require.NoError(t, m.AddMesh("second", second))

	ib, err := m.Buffer(metadata.DefaultIndexBufferName)
	require.NoError(t, err)
	data := backend.BufferBytes(ib.Handle)
	for i, idx := range second.Indices {
		got := binary.LittleEndian.Uint32(data[second.IndexOffset+uint64(i*4):])
		assert.Equal(t, idx+16, got)
	}
}

func TestAddMeshIsIdempotent(t *testing.T) {
	m, backend := newTestManager(t, 1024, 1024)
	mesh := testMesh("cube", 16, 24)
	require.NoError(t, m.AddMesh("cube", mesh))
	writes := len(backend.Filter(headless.OpWriteBuffer))

	require.NoError(t, m.AddMesh("cube", mesh))
	assert.Len(t, backend.Filter(headless.OpWriteBuffer), writes)
}

func TestAddMeshRollsBackOnIndexExhaustion(t *testing.T) {
	m, _ := newTestManager(t, 1024, 48)
	mesh := testMesh("big", 16, 24)

	err := m.AddMesh("big", mesh)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
	assert.False(t, mesh.Resident)

	vb, err := m.Buffer(metadata.DefaultVertexBufferName)
	require.NoError(t, err)
	assert.Zero(t, vb.Allocator().UsedBytes())
	assert.Zero(t, vb.Keys())
}

func TestEvictionUnderPressure(t *testing.T) {
	m, backend := newTestManager(t, 512, 4096)
	var evicted []string
	m.OnMeshEvicted(func(name string) { evicted = append(evicted, name) })

	x := testMesh("X", 16, 6)
	y := testMesh("Y", 16, 6)
	require.NoError(t, m.AddMesh("X", x))
	require.NoError(t, m.AddMesh("Y", y))
	require.Equal(t, uint64(0), vertexOffset(t, m, "X", x))

	require.NoError(t, m.FreeMesh("X", x, true))

	z := testMesh("Z", 16, 6)
	require.NoError(t, m.AddMesh("Z", z))
	assert.Equal(t, uint64(0), vertexOffset(t, m, "Z", z))
	assert.Equal(t, []string{"X"}, evicted)
	_, _, ok := m.MeshRange("X", x)
	assert.False(t, ok)

	// re-upload X; Y is the only reclaimable region left
	require.NoError(t, m.FreeMesh("Y", y, true))
	require.NoError(t, m.AddMesh("X", x))
	assert.Equal(t, uint64(256), vertexOffset(t, m, "X", x))
	assert.Equal(t, uint32(16), x.BaseVertex)
	assert.Equal(t, []string{"X", "Y"}, evicted)

	ib, err := m.Buffer(metadata.DefaultIndexBufferName)
	require.NoError(t, err)
	data := backend.BufferBytes(ib.Handle)
	first := binary.LittleEndian.Uint32(data[x.IndexOffset:])
	assert.Equal(t, x.Indices[0]+16, first)
}

func TestBufferWriteReadBack(t *testing.T) {
	m, _ := newTestManager(t, 1024, 1024)
	b, err := m.CreateBuffer("staging", metadata.BufferUsageTransfer, metadata.StorageDeviceHostVisible, 256)
	require.NoError(t, err)

	alloc, fresh, err := b.Allocate("payload", 64, 0)
	require.NoError(t, err)
	require.True(t, fresh)

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(255 - i)
	}
	require.NoError(t, b.WriteAt("payload", payload))

	got, err := b.Read(alloc.Offset, alloc.Size)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	assert.ErrorIs(t, b.Write(250, payload), core.ErrInternal)

	vb, err := m.Buffer(metadata.DefaultVertexBufferName)
	require.NoError(t, err)
	_, err = vb.Read(0, 16)
	assert.ErrorIs(t, err, core.ErrInternal)
}

func screenSet() metadata.UniformSetConfig {
	return metadata.UniformSetConfig{
		Name: "screen",
		Uniforms: []metadata.UniformDescriptor{
			{Name: "projection", Type: metadata.ElementMat4, Provider: metadata.ProviderProjection},
			{Name: "view", Type: metadata.ElementMat4, Provider: metadata.ProviderView},
		},
	}
}

func TestPerFrameRingDoesNotAliasPreviousFrame(t *testing.T) {
	backend := headless.New(256)
	cfg := DefaultConfig()
	cfg.Frames = 2
	cfg.PerFrameUniformBytes = 256
	cfg.VertexBufferBytes = 0
	cfg.IndexBufferBytes = 0
	m, err := NewManager(backend, cfg)
	require.NoError(t, err)

	layout, err := m.AddUniformSet(screenSet())
	require.NoError(t, err)
	aligner := layout.NewAligner()
	require.NoError(t, aligner.SetMat4("view", math.NewMat4Identity()))

	m.BeginFrame(4)
	k, err := m.WritePerFrameUniforms(aligner, 4)
	require.NoError(t, err)

	m.BeginFrame(5)
	next, err := m.WritePerFrameUniforms(aligner, 5)
	require.NoError(t, err)

	first := metadata.MemoryRange{Offset: k, Size: layout.Size}
	second := metadata.MemoryRange{Offset: next, Size: layout.Size}
	assert.False(t, first.Overlaps(second), "%v overlaps %v", first, second)

	// one 256-byte slab per frame
	_, err = m.WritePerFrameUniforms(aligner, 5)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)

	m.BeginFrame(6)
	again, err := m.WritePerFrameUniforms(aligner, 6)
	require.NoError(t, err)
	assert.Equal(t, k, again)

	got, err := m.UniformBuffer(UniformBufferScreenObject).Read(next, layout.Size)
	require.NoError(t, err)
	assert.Equal(t, aligner.Bytes(), got)
}

func TestMaterialUniformsArePackedAndRewrittenInPlace(t *testing.T) {
	m, _ := newTestManager(t, 0, 0)
	layout, err := m.AddUniformSet(metadata.UniformSetConfig{
		Name: "material",
		Uniforms: []metadata.UniformDescriptor{
			{Name: "diffuse_colour", Type: metadata.ElementVec4, Provider: metadata.ProviderMaterial},
			{Name: "shininess", Type: metadata.ElementFloat, Provider: metadata.ProviderMaterial},
		},
	})
	require.NoError(t, err)

	red := &metadata.Material{Name: "red"}
	blue := &metadata.Material{Name: "blue"}
	aligner := layout.NewAligner()
	require.NoError(t, aligner.SetVec4("diffuse_colour", math.NewVec4(1, 0, 0, 1)))
	require.NoError(t, m.WriteMaterialUniforms(red, aligner))
	require.NoError(t, aligner.SetVec4("diffuse_colour", math.NewVec4(0, 0, 1, 1)))
	require.NoError(t, m.WriteMaterialUniforms(blue, aligner))

	assert.True(t, red.HasUniforms)
	assert.Equal(t, uint64(0), red.UniformOffset)
	assert.Equal(t, m.UniformAlignment(), blue.UniformOffset)

	require.NoError(t, aligner.SetFloat("shininess", 32))
	require.NoError(t, m.WriteMaterialUniforms(red, aligner))
	assert.Equal(t, uint64(0), red.UniformOffset)

	got, err := m.UniformBuffer(UniformBufferMaterial).Read(0, layout.Size)
	require.NoError(t, err)
	assert.Equal(t, aligner.Bytes(), got)
}
