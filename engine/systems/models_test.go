package systems

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

const (
	levelDisk   = metadata.CacheLevelDisk
	levelMemory = metadata.CacheLevelMemory
	levelGPU    = metadata.CacheLevelGPU
)

func TestModelRefcountTransitions(t *testing.T) {
	f := newFixture(t, 64<<10)
	mm := f.models()
	require.NoError(t, mm.AddMesh("m", GenerateCube("m", 1, 1, 1, 1, 1), false))
	mesh, err := mm.Mesh("m")
	require.NoError(t, err)
	assert.False(t, mesh.Resident)

	writes := len(f.backend.Filter(headless.OpWriteBuffer))
	first, err := mm.GetModel("mat", "m")
	require.NoError(t, err)
	assert.Equal(t, 1, f.users(t, "m")[levelGPU])
	assert.True(t, mesh.Resident, "0->1 uploads before returning")
	uploaded := len(f.backend.Filter(headless.OpWriteBuffer))
	assert.Greater(t, uploaded, writes)

	second, err := mm.GetModel("mat", "m")
	require.NoError(t, err)
	assert.Equal(t, 2, f.users(t, "m")[levelGPU])
	assert.Len(t, f.backend.Filter(headless.OpWriteBuffer), uploaded, "1->2 does not upload again")
	material, err := mm.Material("mat")
	require.NoError(t, err)
	assert.Equal(t, 2, material.RefCount)

	require.NoError(t, mm.ReleaseModel(first))
	assert.Equal(t, 1, f.users(t, "m")[levelGPU])

	require.NoError(t, mm.ReleaseModel(second))
	assert.Equal(t, 0, f.users(t, "m")[levelGPU])
	assert.Equal(t, 0, material.RefCount)
	assert.True(t, mesh.Resident, "the free waits for the end of the frame")

	require.NoError(t, mm.EndFrame())
	assert.False(t, mesh.Resident)
	_, ok := mm.Users("m")
	assert.False(t, ok, "a mesh without users, source or persist is erased")
}

func TestModelReacquiredBeforeEndFrameStaysResident(t *testing.T) {
	f := newFixture(t, 64<<10)
	mm := f.models()
	require.NoError(t, mm.AddMesh("m", GenerateCube("m", 1, 1, 1, 1, 1), false))

	model, err := mm.GetModel("mat", "m")
	require.NoError(t, err)
	require.NoError(t, mm.ReleaseModel(model))
	again, err := mm.GetModel("mat", "m")
	require.NoError(t, err)

	require.NoError(t, mm.EndFrame())
	assert.True(t, again.Mesh.Resident)
	assert.Equal(t, 1, f.users(t, "m")[levelGPU])
}

func TestModelPersistRoundTrip(t *testing.T) {
	f := newFixture(t, 64<<10)
	mm := f.models()
	require.NoError(t, mm.RegisterMeshSource("rock", "rock.pmesh", true))
	level, ok := mm.Level("rock")
	require.True(t, ok)
	assert.Equal(t, levelDisk, level)

	ref, err := mm.GetMesh("rock", levelGPU)
	require.NoError(t, err)
	assert.Equal(t, 1, f.loader.loads["rock.pmesh"])
	require.NoError(t, mm.ReleaseMeshRef(ref))
	require.NoError(t, mm.EndFrame())

	level, _ = mm.Level("rock")
	assert.Equal(t, levelMemory, level)

	writes := len(f.backend.Filter(headless.OpWriteBuffer))
	ref, err = mm.GetMesh("rock", levelGPU)
	require.NoError(t, err)
	assert.Equal(t, 1, f.loader.loads["rock.pmesh"], "source is not parsed again")
	assert.Len(t, f.backend.Filter(headless.OpWriteBuffer), writes, "persisted regions are reused")
	assert.True(t, ref.Mesh.Resident)
}

func TestModelSourceDropsBackToDisk(t *testing.T) {
	f := newFixture(t, 64<<10)
	mm := f.models()
	require.NoError(t, mm.RegisterMeshSource("tree", "tree.pmesh", false))

	ref, err := mm.GetMesh("tree", levelMemory)
	require.NoError(t, err)
	level, _ := mm.Level("tree")
	assert.Equal(t, levelMemory, level)

	require.NoError(t, mm.ReleaseMeshRef(ref))
	level, ok := mm.Level("tree")
	require.True(t, ok)
	assert.Equal(t, levelDisk, level)

	_, err = mm.GetMesh("tree", levelMemory)
	require.NoError(t, err)
	assert.Equal(t, 2, f.loader.loads["tree.pmesh"])
}

func TestModelMatchedPairsRestoreCounts(t *testing.T) {
	f := newFixture(t, 64<<10)
	mm := f.models()
	require.NoError(t, mm.AddMesh("m", GenerateCube("m", 1, 1, 1, 1, 1), true))
	_, err := mm.GetMesh("m", levelDisk)
	require.NoError(t, err)

	for _, level := range []metadata.CacheLevel{levelDisk, levelMemory, levelGPU} {
		before := f.users(t, "m")
		refs := make([]*metadata.MeshRef, 5)
		for i := range refs {
			refs[i], err = mm.GetMesh("m", level)
			require.NoError(t, err)
			u := f.users(t, "m")
			assert.GreaterOrEqual(t, u[levelMemory], u[levelGPU])
		}
		for i := len(refs) - 1; i >= 0; i-- {
			require.NoError(t, mm.ReleaseMeshRef(refs[i]))
		}
		require.NoError(t, mm.EndFrame())
		assert.Equal(t, before, f.users(t, "m"), "level %s", level)
	}
}

func TestModelErrors(t *testing.T) {
	f := newFixture(t, 64<<10)
	mm := f.models()
	require.NoError(t, mm.AddMesh("m", GenerateCube("m", 1, 1, 1, 1, 1), false))

	t.Run("duplicate mesh", func(t *testing.T) {
		assert.ErrorIs(t, mm.AddMesh("m", GenerateCube("m", 1, 1, 1, 1, 1), false), core.ErrDuplicateName)
		assert.ErrorIs(t, mm.RegisterMeshSource("m", "m.pmesh", false), core.ErrDuplicateName)
	})
	t.Run("duplicate material", func(t *testing.T) {
		_, err := mm.AddMaterial(&metadata.MaterialConfig{Name: "mat", ShaderName: "basic"})
		assert.ErrorIs(t, err, core.ErrDuplicateName)
	})
	t.Run("unknown material parts", func(t *testing.T) {
		_, err := mm.AddMaterial(&metadata.MaterialConfig{Name: "x", ShaderName: "nope"})
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = mm.AddMaterial(&metadata.MaterialConfig{Name: "y", ShaderName: "basic", Values: map[string]any{"roughness": 1.0}})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
	t.Run("never registered at GPU", func(t *testing.T) {
		_, err := mm.GetModel("mat", "ghost")
		assert.ErrorIs(t, err, core.ErrCacheInconsistency)
		_, err = mm.GetMesh("ghost", levelGPU)
		assert.ErrorIs(t, err, core.ErrCacheInconsistency)
	})
	t.Run("never registered below GPU", func(t *testing.T) {
		_, err := mm.GetMesh("ghost", levelMemory)
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = mm.Material("ghost")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
	t.Run("release below zero", func(t *testing.T) {
		assert.ErrorIs(t, mm.ReleaseMesh("m", levelGPU), core.ErrCacheInconsistency)
		assert.Equal(t, 0, f.users(t, "m")[levelGPU])
	})
	t.Run("release a level held only above", func(t *testing.T) {
		model, err := mm.GetModel("mat", "m")
		require.NoError(t, err)
		assert.ErrorIs(t, mm.ReleaseMesh("m", levelMemory), core.ErrCacheInconsistency)
		assert.Equal(t, [metadata.NumCacheLevels]int{1, 1, 1}, f.users(t, "m"))
		require.NoError(t, mm.ReleaseModel(model))
	})
	t.Run("double release", func(t *testing.T) {
		model, err := mm.GetModel("mat", "m")
		require.NoError(t, err)
		require.NoError(t, mm.ReleaseModel(model))
		assert.ErrorIs(t, mm.ReleaseModel(model), core.ErrCacheInconsistency)
		assert.ErrorIs(t, model.Release(), core.ErrCacheInconsistency)
	})
	t.Run("missing source", func(t *testing.T) {
		require.NoError(t, mm.RegisterMeshSource("lost", "missing.pmesh", false))
		_, err := mm.GetMesh("lost", levelMemory)
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.Equal(t, [metadata.NumCacheLevels]int{}, f.users(t, "lost"))
	})
}

func TestModelUploadFailureLeavesCountsAlone(t *testing.T) {
	// room for exactly one cube
	f := newFixture(t, 1024)
	mm := f.models()
	require.NoError(t, mm.AddMesh("a", GenerateCube("a", 1, 1, 1, 1, 1), false))
	require.NoError(t, mm.AddMesh("b", GenerateCube("b", 1, 1, 1, 1, 1), false))

	_, err := mm.GetModel("mat", "a")
	require.NoError(t, err)
	_, err = mm.GetModel("mat", "b")
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
	assert.Equal(t, [metadata.NumCacheLevels]int{}, f.users(t, "b"))
	material, _ := mm.Material("mat")
	assert.Equal(t, 1, material.RefCount)
}

func TestModelReleasesFromOtherGoroutines(t *testing.T) {
	f := newFixture(t, 64<<10)
	mm := f.models()
	require.NoError(t, mm.AddMesh("m", GenerateCube("m", 1, 1, 1, 1, 1), true))

	models := make([]*metadata.Model, 100)
	for i := range models {
		var err error
		models[i], err = mm.GetModel("mat", "m")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, model := range models {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, model.Release())
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, f.users(t, "m")[levelGPU], "releases are applied on the main thread")

	require.NoError(t, mm.ProcessReleases())
	assert.Equal(t, 0, f.users(t, "m")[levelGPU])
	require.NoError(t, mm.EndFrame())
	level, _ := mm.Level("m")
	assert.Equal(t, levelMemory, level)
}

func TestModelEvictionDemotesMesh(t *testing.T) {
	// one cube fits, two do not
	f := newFixture(t, 1024)
	mm := f.models()
	require.NoError(t, mm.AddMesh("a", GenerateCube("a", 1, 1, 1, 1, 1), true))
	require.NoError(t, mm.AddMesh("b", GenerateCube("b", 1, 1, 1, 1, 1), true))

	var demoted []string
	mm.OnMeshDemoted(func(name string) { demoted = append(demoted, name) })

	a, err := mm.GetModel("mat", "a")
	require.NoError(t, err)
	require.NoError(t, mm.ReleaseModel(a))
	require.NoError(t, mm.EndFrame())
	meshA, _ := mm.Mesh("a")
	assert.True(t, meshA.Resident, "persisted regions stay until evicted")

	b, err := mm.GetMesh("b", levelGPU)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, demoted)
	assert.False(t, meshA.Resident)
	assert.True(t, b.Mesh.Resident)
	level, _ := mm.Level("a")
	assert.Equal(t, levelMemory, level)

	require.NoError(t, mm.ReleaseMeshRef(b))
	require.NoError(t, mm.EndFrame())
	_, err = mm.GetModel("mat", "a")
	require.NoError(t, err)
	assert.True(t, meshA.Resident, "an evicted mesh is uploaded again")
}

func TestMaterialUniformsUploaded(t *testing.T) {
	f := newFixture(t, 64<<10)
	mat, err := f.models().Material("mat")
	require.NoError(t, err)
	require.True(t, mat.HasUniforms)
	assert.Len(t, mat.Uniforms, 32)

	window, err := f.models().Material("window")
	require.NoError(t, err)
	assert.NotEqual(t, mat.UniformOffset, window.UniformOffset)
	assert.Zero(t, window.UniformOffset%f.mem.UniformAlignment())
	require.Len(t, window.Textures, 1)
	assert.Equal(t, "glass.png", window.Textures[0].Name)

	byID, ok := f.models().MaterialByID(mat.ID)
	require.True(t, ok)
	assert.Same(t, mat, byID)
}
