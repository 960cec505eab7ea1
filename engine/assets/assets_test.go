package assets

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/systems"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writePNG(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func writeMesh(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, loaders.WriteMesh(f, systems.GenerateCube("cube", 1, 1, 1, 1, 1)))
	require.NoError(t, f.Close())
}

func newAssets(t *testing.T, watch bool) (*AssetManager, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "shaders/opaque.shader.toml", `
name = "opaque"
vertex = "shaders/opaque.vert"
fragment = "shaders/opaque.frag"
uniform_sets = ["camera"]
render_pass = "opaque"
vertex_format = "position_normal_texcoord"
`)
	writeFile(t, root, "shaders/opaque.vert", "#version 410 core\nvoid main() {}\n")
	writeFile(t, root, "shaders/opaque.frag", "#version 410 core\nvoid main() {}\n")
	writeFile(t, root, "materials/stone.pmt", "name = stone\nshader = opaque\ntexture = stone\n")
	writeFile(t, root, "notes.txt", "ignored")
	writePNG(t, root, "textures/stone.png")
	writeMesh(t, root, "meshes/cube.pmesh")

	am, err := NewAssetManager(root)
	require.NoError(t, err)
	require.NoError(t, am.Initialize(watch))
	t.Cleanup(func() { am.Shutdown() })
	return am, root
}

func TestIndexTracksKnownAssetTypes(t *testing.T) {
	am, _ := newAssets(t, false)

	assert.Equal(t, 6, am.Count())
	assert.Equal(t, []string{"shaders/opaque.frag", "shaders/opaque.vert"}, am.List(AssetTypeShaderSource))
	assert.Equal(t, []string{"shaders/opaque.shader.toml"}, am.List(AssetTypeShader))

	info, ok := am.Info("./materials/stone.pmt")
	require.True(t, ok)
	assert.Equal(t, AssetTypeMaterial, info.Type)

	_, ok = am.Info("notes.txt")
	assert.False(t, ok)
}

func TestAssetManagerIsAResourceLoader(t *testing.T) {
	am, _ := newAssets(t, false)
	var loader systems.ResourceLoader = am

	mesh, err := loader.LoadMesh("meshes/cube.pmesh")
	require.NoError(t, err)
	assert.Equal(t, uint32(36), mesh.IndexCount())
	assert.Equal(t, "position_normal_texcoord", mesh.Format.Name)

	img, err := loader.LoadImage("stone")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{B: 255, A: 255}, img.RGBAAt(0, 0))

	img, err = loader.LoadImage("textures/stone.png")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Rect.Dx())

	src, err := loader.LoadSource("shaders/opaque.vert")
	require.NoError(t, err)
	assert.Contains(t, string(src), "#version 410")

	_, err = loader.LoadMesh("meshes/missing.pmesh")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	_, err = loader.LoadImage("missing")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	// wrong type for the path
	_, err = loader.LoadSource("materials/stone.pmt")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestLoadDeclarations(t *testing.T) {
	am, _ := newAssets(t, false)

	shaders, err := am.LoadShaderConfigs()
	require.NoError(t, err)
	require.Len(t, shaders, 1)
	assert.Equal(t, "opaque", shaders[0].Name)
	assert.Equal(t, "position_normal_texcoord", shaders[0].VertexFormat)

	materials, err := am.LoadMaterials()
	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, "stone", materials[0].Name)
	assert.Equal(t, []string{"stone"}, materials[0].Textures)
}

func TestWatcherFollowsAddedAndRemovedFiles(t *testing.T) {
	am, root := newAssets(t, true)

	writeFile(t, root, "shaders/late.frag", "void main() {}")
	require.Eventually(t, func() bool {
		_, ok := am.Info("shaders/late.frag")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	writePNG(t, root, "textures/new/brick.png")
	require.Eventually(t, func() bool {
		_, ok := am.Info("textures/new/brick.png")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "materials", "stone.pmt")))
	require.Eventually(t, func() bool {
		_, ok := am.Info("materials/stone.pmt")
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInitializeRejectsMissingRoot(t *testing.T) {
	am, err := NewAssetManager(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Error(t, am.Initialize(false))
	assert.NoError(t, am.Shutdown())
}
