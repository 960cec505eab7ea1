package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func mixedObjectSet() metadata.UniformSetConfig {
	return metadata.UniformSetConfig{
		Name: "object",
		Uniforms: []metadata.UniformDescriptor{
			{Name: "a", Type: metadata.ElementFloat, Provider: metadata.ProviderObject},
			{Name: "b", Type: metadata.ElementVec3, Provider: metadata.ProviderObject},
			{Name: "c", Type: metadata.ElementFloat, Provider: metadata.ProviderObjectState},
			{Name: "normal", Type: metadata.ElementMat3, Provider: metadata.ProviderTransform},
			{Name: "uv", Type: metadata.ElementVec2, Provider: metadata.ProviderObject},
			{Name: "model", Type: metadata.ElementMat4, Provider: metadata.ProviderTransform},
			{Name: "diffuse", Type: metadata.ElementSampler, Provider: metadata.ProviderObject},
			{Name: "id", Type: metadata.ElementUint32, Provider: metadata.ProviderObject},
		},
	}
}

func TestUniformSetLayoutOffsets(t *testing.T) {
	layout, err := NewUniformSetLayout(mixedObjectSet())
	require.NoError(t, err)

	expected := map[string]uint64{
		"a":      0,
		"b":      16,
		"c":      28,
		"normal": 32,
		"uv":     80,
		"model":  96,
		"id":     160,
	}
	for name, offset := range expected {
		entry, ok := layout.Entry(name)
		require.True(t, ok, name)
		assert.Equal(t, offset, entry.Offset, name)
	}
	_, ok := layout.Entry("diffuse")
	assert.False(t, ok)
	assert.Equal(t, []string{"diffuse"}, layout.Samplers)
	assert.Equal(t, uint64(176), layout.Size)
	assert.Equal(t, metadata.ScopeObject, layout.Scope)
}

func TestUniformSetLayoutRejectsDuplicatesAndMixedScopes(t *testing.T) {
	_, err := NewUniformSetLayout(metadata.UniformSetConfig{
		Name: "dup",
		Uniforms: []metadata.UniformDescriptor{
			{Name: "x", Type: metadata.ElementFloat, Provider: metadata.ProviderMaterial},
			{Name: "x", Type: metadata.ElementVec4, Provider: metadata.ProviderMaterial},
		},
	})
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	_, err = NewUniformSetLayout(metadata.UniformSetConfig{
		Name: "mixed",
		Uniforms: []metadata.UniformDescriptor{
			{Name: "view", Type: metadata.ElementMat4, Provider: metadata.ProviderView},
			{Name: "tint", Type: metadata.ElementVec4, Provider: metadata.ProviderMaterial},
		},
	})
	assert.Error(t, err)
}

func TestStd140AlignerRoundTrip(t *testing.T) {
	layout, err := NewUniformSetLayout(mixedObjectSet())
	require.NoError(t, err)
	a := layout.NewAligner()
	require.Len(t, a.Bytes(), int(layout.Size))

	model := math.NewMat4Translation(math.NewVec3(1, 2, 3))
	normal := math.Mat3{Data: [9]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}}

	require.NoError(t, a.SetFloat("a", 0.5))
	require.NoError(t, a.SetVec3("b", math.NewVec3(1, 2, 3)))
	require.NoError(t, a.Set("c", 2))
	require.NoError(t, a.SetMat3("normal", normal))
	require.NoError(t, a.SetVec2("uv", math.NewVec2(0.25, 0.75)))
	require.NoError(t, a.SetMat4("model", model))
	require.NoError(t, a.SetUint32("id", 42))

	f, err := a.Float("a")
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), f)
	v3, err := a.Vec3("b")
	require.NoError(t, err)
	assert.Equal(t, math.NewVec3(1, 2, 3), v3)
	c, err := a.Float("c")
	require.NoError(t, err)
	assert.Equal(t, float32(2), c)
	m3, err := a.Mat3("normal")
	require.NoError(t, err)
	assert.Equal(t, normal, m3)
	v2, err := a.Vec2("uv")
	require.NoError(t, err)
	assert.Equal(t, math.NewVec2(0.25, 0.75), v2)
	m4, err := a.Mat4("model")
	require.NoError(t, err)
	assert.Equal(t, model, m4)
	id, err := a.Uint32("id")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), id)

	// b is a vec3 followed by the float c in its padding slot
	assert.Equal(t, float32(2), a.getFloat(28))
	// mat3 columns are padded to vec4: the second column starts 16 bytes in
	assert.Equal(t, float32(4), a.getFloat(48))
}

func TestStd140AlignerErrors(t *testing.T) {
	layout, err := NewUniformSetLayout(mixedObjectSet())
	require.NoError(t, err)
	a := layout.NewAligner()

	assert.ErrorIs(t, a.SetFloat("missing", 1), core.ErrNotFound)
	assert.ErrorIs(t, a.SetVec4("b", math.NewVec4One()), core.ErrInternal)
	assert.ErrorIs(t, a.Set("a", "text"), core.ErrInternal)
	_, err = a.Mat4("a")
	assert.ErrorIs(t, err, core.ErrInternal)

	_, err = layout.Aligner(make([]byte, 8))
	assert.ErrorIs(t, err, core.ErrInternal)

	span := make([]byte, layout.Size+32)
	onSpan, err := layout.Aligner(span)
	require.NoError(t, err)
	require.NoError(t, onSpan.SetUint32("id", 7))
	assert.Equal(t, byte(7), span[160])
}
