package systems

import (
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// countingLoader hands out generated cubes and counts how often each path is parsed.
type countingLoader struct {
	loads map[string]int
}

func newCountingLoader() *countingLoader {
	return &countingLoader{loads: make(map[string]int)}
}

func (l *countingLoader) LoadMesh(path string) (*metadata.Mesh, error) {
	if path == "missing.pmesh" {
		return nil, fmt.Errorf("mesh source %s: %w", path, core.ErrNotFound)
	}
	l.loads[path]++
	return GenerateCube(path, 1, 1, 1, 1, 1), nil
}

func (l *countingLoader) LoadImage(name string) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (l *countingLoader) LoadSource(path string) ([]byte, error) {
	return []byte("// " + path), nil
}

type fixture struct {
	backend *headless.Backend
	mem     *memory.Manager
	sys     *SystemManager
	loader  *countingLoader
}

// newFixture builds the systems over a headless backend with one opaque shader
// "basic", one translucent shader "glass" and the materials "mat" and "window".
func newFixture(t *testing.T, vertexBytes uint64) *fixture {
	t.Helper()
	backend := headless.New(256)
	cfg := memory.DefaultConfig()
	cfg.Frames = 2
	cfg.PerFrameUniformBytes = 4096
	cfg.MaterialUniformBytes = 4096
	cfg.VertexBufferBytes = vertexBytes
	cfg.IndexBufferBytes = 16 << 10
	mem, err := memory.NewManager(backend, cfg)
	require.NoError(t, err)

	loader := newCountingLoader()
	sys, err := NewSystemManager(SystemManagerConfig{CullWorkers: 4, CullChunkSize: 2}, backend, mem, loader)
	require.NoError(t, err)

	_, err = sys.ShaderSystem.AddVertexFormat(PositionNormalTexcoordFormat)
	require.NoError(t, err)
	_, err = mem.AddUniformSet(metadata.UniformSetConfig{
		Name: "camera",
		Uniforms: []metadata.UniformDescriptor{
			{Name: "projection", Type: metadata.ElementMat4, Provider: metadata.ProviderProjection},
			{Name: "view", Type: metadata.ElementMat4, Provider: metadata.ProviderView},
		},
	})
	require.NoError(t, err)
	_, err = mem.AddUniformSet(metadata.UniformSetConfig{
		Name: "surface",
		Uniforms: []metadata.UniformDescriptor{
			{Name: "diffuse_color", Type: metadata.ElementVec4, Provider: metadata.ProviderMaterial},
			{Name: "shininess", Type: metadata.ElementFloat, Provider: metadata.ProviderMaterial},
			{Name: "diffuse_texture", Type: metadata.ElementSampler, Provider: metadata.ProviderMaterial},
		},
	})
	require.NoError(t, err)

	push := []metadata.UniformDescriptor{
		{Name: "model", Type: metadata.ElementMat4, Provider: metadata.ProviderTransform},
		{Name: "color", Type: metadata.ElementVec4, Provider: metadata.ProviderObject},
	}
	for _, sc := range []*metadata.ShaderConfig{
		{Name: "basic", VertexSource: "basic.vert", FragmentSource: "basic.frag", UniformSets: []string{"camera", "surface"}, RenderPass: "opaque", VertexFormat: PositionNormalTexcoordFormat.Name, PushConstants: push},
		{Name: "glass", UniformSets: []string{"camera", "surface"}, RenderPass: "translucent", VertexFormat: PositionNormalTexcoordFormat.Name, PushConstants: push},
	} {
		_, err := sys.ShaderSystem.Create(sc)
		require.NoError(t, err)
	}

	for _, mc := range []*metadata.MaterialConfig{
		{Name: "mat", ShaderName: "basic", ViewCull: true, Values: map[string]any{"diffuse_color": math.NewVec4(1, 0, 0, 1), "shininess": 32.0}},
		{Name: "window", ShaderName: "glass", Textures: []string{"glass.png"}, Values: map[string]any{"diffuse_color": math.NewVec4(1, 1, 1, 0.5)}},
	} {
		_, err := sys.ModelManager.AddMaterial(mc)
		require.NoError(t, err)
	}

	return &fixture{backend: backend, mem: mem, sys: sys, loader: loader}
}

func (f *fixture) models() *ModelManager {
	return f.sys.ModelManager
}

func (f *fixture) users(t *testing.T, name string) [metadata.NumCacheLevels]int {
	t.Helper()
	u, ok := f.models().Users(name)
	require.True(t, ok, "mesh %q is not registered", name)
	return u
}
