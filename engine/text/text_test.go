package text

import (
	"encoding/binary"
	"errors"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/systems"
)

func testFont() *Font {
	f := NewFont("mono", 16, 20, 16, 128, 64, []Glyph{
		{Codepoint: 'A', X: 0, Y: 0, Width: 8, Height: 12, XOffset: 1, YOffset: 2, XAdvance: 10},
		{Codepoint: 'B', X: 8, Y: 0, Width: 8, Height: 12, XOffset: 1, YOffset: 2, XAdvance: 10},
		{Codepoint: ' ', X: 16, Y: 0, Width: 0, Height: 0, XAdvance: 5},
		{Codepoint: UnknownCodepoint, X: 24, Y: 0, Width: 8, Height: 12, XAdvance: 9},
	})
	f.SetKerning('A', 'B', -2)
	return f
}

func vertex(mesh *metadata.Mesh, i int) [4]float32 {
	var out [4]float32
	for j := range out {
		out[j] = gomath.Float32frombits(binary.LittleEndian.Uint32(mesh.Vertices[i*vertexStride+j*4:]))
	}
	return out
}

func TestLayoutPlacesKernedGlyphs(t *testing.T) {
	mesh, err := testFont().Layout("label", "AB")
	require.NoError(t, err)
	require.NoError(t, mesh.Validate())

	assert.Equal(t, uint64(8), mesh.VertexCount())
	assert.Equal(t, uint32(12), mesh.IndexCount())

	// A: top left at its offsets, atlas origin
	assert.Equal(t, [4]float32{1, 2, 0, 0}, vertex(mesh, 0))
	assert.Equal(t, [4]float32{9, 14, 8.0 / 128, 12.0 / 64}, vertex(mesh, 2))
	// B: advanced by 10 minus the -2 kerning
	assert.Equal(t, [4]float32{9, 2, 8.0 / 128, 0}, vertex(mesh, 4))

	assert.Equal(t, []uint32{3, 2, 0, 1, 0, 2, 7, 6, 4, 5, 4, 6}, mesh.Indices)
	assert.Equal(t, float32(1), mesh.Extents.Min.X)
	assert.Equal(t, float32(17), mesh.Extents.Max.X)
}

func TestLayoutNewlineTabAndUnknown(t *testing.T) {
	f := testFont()
	assert.Equal(t, float32(20), f.TabXAdvance)

	mesh, err := f.Layout("lines", "A\n\tZ")
	require.NoError(t, err)
	// A and the unknown glyph standing in for Z
	assert.Equal(t, uint64(8), mesh.VertexCount())
	// second line, after the tab
	assert.Equal(t, [4]float32{20, 20, 24.0 / 128, 0}, vertex(mesh, 4))
}

func TestLayoutWithoutGlyphsFails(t *testing.T) {
	f := NewFont("empty", 10, 12, 10, 64, 64, nil)
	assert.Equal(t, float32(40), f.TabXAdvance)
	_, err := f.Layout("nothing", "abc")
	assert.Error(t, err)
	_, err = testFont().Layout("blank", "\n\t")
	assert.Error(t, err)
}

func TestAddTextRegistersMesh(t *testing.T) {
	backend := headless.New(256)
	cfg := memory.DefaultConfig()
	cfg.Frames = 2
	cfg.PerFrameUniformBytes = 1024
	cfg.MaterialUniformBytes = 1024
	cfg.VertexBufferBytes = 4096
	cfg.IndexBufferBytes = 1024
	mem, err := memory.NewManager(backend, cfg)
	require.NoError(t, err)
	sys, err := systems.NewSystemManager(systems.SystemManagerConfig{CullWorkers: 1}, backend, mem, nil)
	require.NoError(t, err)
	models := sys.ModelManager

	mesh, err := AddText(models, "title", testFont(), "AB A", true)
	require.NoError(t, err)
	assert.Equal(t, uint32(18), mesh.IndexCount())

	got, err := models.Mesh("title")
	require.NoError(t, err)
	assert.Same(t, mesh, got)
	level, ok := models.Level("title")
	require.True(t, ok)
	assert.Equal(t, metadata.CacheLevelMemory, level)

	_, err = AddText(models, "title", testFont(), "B", true)
	assert.True(t, errors.Is(err, core.ErrDuplicateName))
}
