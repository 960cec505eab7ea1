package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const sample = `
[application]
name = "testbed"
log_level = "warn"
backend = "headless"
max_frames = 10

[memory]
frames = 2
vertex_buffer_bytes = 4096

[culling]
workers = 4

[[uniform_sets]]
name = "screen"
uniforms = [
  { name = "projection", type = "mat4", provider = "projection" },
  { name = "view", type = "mat4", provider = "view" },
]

[[uniform_sets]]
name = "material"
uniforms = [
  { name = "diffuse_colour", type = "vec4", provider = "material" },
  { name = "diffuse_texture", type = "sampler", provider = "material" },
]

[[vertex_formats]]
name = "pnt"
attributes = [
  { name = "in_position", type = "vec3" },
  { name = "in_normal", type = "vec3" },
  { name = "in_texcoord", type = "vec2" },
]
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "testbed", cfg.Application.Name)
	assert.Equal(t, core.WarnLevel, cfg.LogLevel())
	assert.Equal(t, uint64(10), cfg.Application.MaxFrames)
	// untouched keys keep their defaults
	assert.Equal(t, uint32(1280), cfg.Application.StartWidth)
	assert.Equal(t, uint64(256), cfg.Memory.UniformAlignment)

	mem := cfg.MemoryConfig()
	assert.Equal(t, uint32(2), mem.Frames)
	assert.Equal(t, uint64(4096), mem.VertexBufferBytes)
	assert.Equal(t, 4, cfg.CullWorkers())

	require.Len(t, cfg.UniformSets, 2)
	assert.Equal(t, metadata.ElementMat4, cfg.UniformSets[0].Uniforms[1].Type)
	assert.Equal(t, metadata.ProviderView, cfg.UniformSets[0].Uniforms[1].Provider)
	assert.Equal(t, metadata.ElementSampler, cfg.UniformSets[1].Uniforms[1].Type)

	require.Len(t, cfg.VertexFormats, 1)
	assert.Equal(t, uint64(32), cfg.VertexFormats[0].Stride())
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"one frame":         "[memory]\nframes = 1\n",
		"backend":           "[application]\nbackend = \"metal\"\n",
		"log level":         "[application]\nlog_level = \"loud\"\n",
		"duplicate set":     "[[uniform_sets]]\nname = \"a\"\n[[uniform_sets]]\nname = \"a\"\n",
		"bad element type":  "[[vertex_formats]]\nname = \"f\"\nattributes = [{ name = \"x\", type = \"vec5\" }]\n",
		"sampler attribute": "[[vertex_formats]]\nname = \"f\"\nattributes = [{ name = \"x\", type = \"sampler\" }]\n",
		"syntax":            "[application\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "headless", cfg.Application.Backend)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
