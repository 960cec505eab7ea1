package loaders

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func triangle(t *testing.T) *metadata.Mesh {
	format := &metadata.VertexFormat{
		Name: "position",
		Attributes: []metadata.VertexAttribute{
			{Name: "in_position", Type: metadata.ElementVec3},
		},
	}
	positions := []math.Vec3{
		math.NewVec3(-1, -1, 0),
		math.NewVec3(1, -1, 0),
		math.NewVec3(0, 1, 0),
	}
	var vertices bytes.Buffer
	for _, p := range positions {
		require.NoError(t, binary.Write(&vertices, binary.LittleEndian, [3]float32{p.X, p.Y, p.Z}))
	}
	return &metadata.Mesh{
		Format:   format,
		Vertices: vertices.Bytes(),
		Indices:  []uint32{0, 1, 2},
		Extents:  math.ExtentsFromPoints(positions),
		Radius:   math.BoundingRadius(positions),
	}
}

func TestMeshFileRoundTrip(t *testing.T) {
	mesh := triangle(t)
	var buf bytes.Buffer
	require.NoError(t, WriteMesh(&buf, mesh))

	got, err := ReadMesh(&buf)
	require.NoError(t, err)
	assert.Equal(t, mesh.Format, got.Format)
	assert.Equal(t, mesh.Vertices, got.Vertices)
	assert.Equal(t, mesh.Indices, got.Indices)
	assert.Equal(t, mesh.Extents, got.Extents)
	assert.Equal(t, mesh.Radius, got.Radius)
	assert.Equal(t, uint64(3), got.VertexCount())
}

func TestReadMeshRejectsBadInput(t *testing.T) {
	_, err := ReadMesh(bytes.NewReader(bytes.Repeat([]byte("x"), 64)))
	assert.ErrorContains(t, err, "not a prism mesh")

	var buf bytes.Buffer
	require.NoError(t, WriteMesh(&buf, triangle(t)))
	truncated := buf.Bytes()[:buf.Len()-2]
	_, err = ReadMesh(bytes.NewReader(truncated))
	assert.ErrorContains(t, err, "read indices")

	// index 3 is past the last of three vertices
	mesh := triangle(t)
	buf.Reset()
	require.NoError(t, WriteMesh(&buf, mesh))
	data := buf.Bytes()
	binary.LittleEndian.PutUint32(data[len(data)-4:], 3)
	_, err = ReadMesh(bytes.NewReader(data))
	assert.ErrorContains(t, err, "out of range")
}

func TestParseMaterial(t *testing.T) {
	src := `
# a stone wall
name = stone
shader = opaque
uniform_set = surface
view_cull = true
texture = stone_diffuse
texture = stone_normal
diffuse_color = 1 0.5 0.25 1
shininess = 8
tiling = vec2 2 2
layer = uint32 3
`
	cfg, err := ParseMaterial(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "stone", cfg.Name)
	assert.Equal(t, "opaque", cfg.ShaderName)
	assert.Equal(t, "surface", cfg.UniformSetName)
	assert.True(t, cfg.ViewCull)
	assert.Equal(t, []string{"stone_diffuse", "stone_normal"}, cfg.Textures)
	assert.Equal(t, math.NewVec4(1, 0.5, 0.25, 1), cfg.Values["diffuse_color"])
	assert.Equal(t, float32(8), cfg.Values["shininess"])
	assert.Equal(t, math.Vec2{X: 2, Y: 2}, cfg.Values["tiling"])
	assert.Equal(t, uint32(3), cfg.Values["layer"])
}

func TestParseMaterialErrors(t *testing.T) {
	cases := map[string]string{
		"no separator":    "name = a\nshader = b\njunk",
		"no name":         "shader = b",
		"no shader":       "name = a",
		"bad bool":        "name = a\nshader = b\nview_cull = maybe",
		"component count": "name = a\nshader = b\ncolor = vec4 1 2 3",
		"sampler value":   "name = a\nshader = b\ntex = sampler 1",
		"five components": "name = a\nshader = b\nv = 1 2 3 4 5",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMaterial(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestParseShaderConfig(t *testing.T) {
	src := `
name = "opaque"
vertex = "shaders/opaque.vert"
fragment = "shaders/opaque.frag"
uniform_sets = ["camera", "surface"]
render_pass = "opaque"
vertex_format = "position_normal_texcoord"
push_constants = [
  { name = "model", type = "mat4", provider = "transform" },
]
`
	cfg, err := ParseShaderConfig([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "opaque", cfg.Name)
	assert.Equal(t, "shaders/opaque.vert", cfg.VertexSource)
	assert.Equal(t, []string{"camera", "surface"}, cfg.UniformSets)
	require.Len(t, cfg.PushConstants, 1)
	assert.Equal(t, metadata.ElementMat4, cfg.PushConstants[0].Type)

	_, err = ParseShaderConfig([]byte("name = \"x\"\nvertex = \"a\"\n"))
	assert.Error(t, err)
	_, err = ParseShaderConfig([]byte("name = \"x\"\nunknown_key = 1\n"))
	assert.Error(t, err)
}

func TestLoadImageConvertsToRGBA(t *testing.T) {
	dir := t.TempDir()
	src := image.NewRGBA(image.Rect(0, 0, 2, 3))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	src.Set(1, 2, color.RGBA{R: 255, A: 255})

	path := filepath.Join(dir, "red.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 3), img.Rect)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(1, 2))

	bmpPath := filepath.Join(dir, "red.bmp")
	f, err = os.Create(bmpPath)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, src))
	require.NoError(t, f.Close())

	img, err = LoadImage(bmpPath)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(1, 2))
}

func TestToRGBARebasesOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(4, 4, 6, 6))
	src.Set(5, 5, color.RGBA{G: 255, A: 255})
	out := ToRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Rect)
	assert.Equal(t, color.RGBA{G: 255, A: 255}, out.RGBAAt(1, 1))
}
