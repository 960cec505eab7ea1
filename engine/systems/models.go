package systems

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/prism/engine/containers"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/**
 * @brief Bookkeeping for one named mesh. Counts are cumulative: a user at
 * GPU level also counts at MEMORY and DISK, so users[DISK] >= users[MEMORY]
 * >= users[GPU] always holds.
 */
type meshEntry struct {
	name string
	// nil while the mesh only exists on disk
	mesh *metadata.Mesh
	// asset path the mesh is (re)loaded from; empty for meshes added from memory
	source  string
	persist bool
	users   [metadata.NumCacheLevels]int
	// a GPU free is scheduled for the end of the frame
	pendingFree bool
}

func (e *meshEntry) level() metadata.CacheLevel {
	switch {
	case e.users[metadata.CacheLevelGPU] > 0:
		return metadata.CacheLevelGPU
	case e.mesh != nil:
		return metadata.CacheLevelMemory
	}
	return metadata.CacheLevelDisk
}

/**
 * @brief Owns meshes and materials and hands out models. Every method must be
 * called from the main thread except Model.Release and MeshRef.Release, which
 * may run anywhere and are applied by ProcessReleases.
 */
type ModelManager struct {
	meshes        map[string]*meshEntry
	meshIDs       *core.Interner
	materials     map[string]*metadata.Material
	materialsByID map[uint32]*metadata.Material
	materialIDs   *core.Interner

	memory   *memory.Manager
	shaders  *ShaderSystem
	textures *TextureSystem
	loader   MeshLoader

	releases     *containers.RingQueue[metadata.ReleaseRequest]
	pendingFrees []string
	demoted      []func(meshName string)
}

const releaseQueueSize = 64

func NewModelManager(mem *memory.Manager, shaders *ShaderSystem, textures *TextureSystem, loader MeshLoader) *ModelManager {
	mm := &ModelManager{
		meshes:        make(map[string]*meshEntry),
		meshIDs:       core.NewInterner(),
		materials:     make(map[string]*metadata.Material),
		materialsByID: make(map[uint32]*metadata.Material),
		materialIDs:   core.NewInterner(),
		memory:        mem,
		shaders:       shaders,
		textures:      textures,
		loader:        loader,
		releases:      containers.NewRingQueue[metadata.ReleaseRequest](releaseQueueSize, true),
	}
	mem.OnMeshEvicted(mm.onMeshEvicted)
	return mm
}

// AddMesh registers an in-memory mesh at MEMORY level. With persist the mesh and its
// GPU regions are kept when the last user goes away.
func (mm *ModelManager) AddMesh(name string, mesh *metadata.Mesh, persist bool) error {
	if _, exists := mm.meshes[name]; exists {
		err := fmt.Errorf("mesh %q: %w", name, core.ErrDuplicateName)
		core.LogError(err.Error())
		return err
	}
	if err := mesh.Validate(); err != nil {
		core.LogError(err.Error())
		return err
	}
	mesh.Name = name
	mesh.ID = mm.meshIDs.Intern(name)
	mm.meshes[name] = &meshEntry{name: name, mesh: mesh, persist: persist}
	core.LogDebug("mesh %q added (%d vertices, %d indices)", name, mesh.VertexCount(), mesh.IndexCount())
	return nil
}

// RegisterMeshSource registers a mesh at DISK level. It is parsed by the mesh loader
// the first time it is needed at MEMORY level or above.
func (mm *ModelManager) RegisterMeshSource(name, path string, persist bool) error {
	if _, exists := mm.meshes[name]; exists {
		err := fmt.Errorf("mesh %q: %w", name, core.ErrDuplicateName)
		core.LogError(err.Error())
		return err
	}
	mm.meshIDs.Intern(name)
	mm.meshes[name] = &meshEntry{name: name, source: path, persist: persist}
	return nil
}

/**
 * @brief Registers a material. Its shader and textures must exist; values are
 * packed with the material uniform set and uploaded once.
 */
func (mm *ModelManager) AddMaterial(config *metadata.MaterialConfig) (*metadata.Material, error) {
	if _, exists := mm.materials[config.Name]; exists {
		err := fmt.Errorf("material %q: %w", config.Name, core.ErrDuplicateName)
		core.LogError(err.Error())
		return nil, err
	}
	shader, err := mm.shaders.Get(config.ShaderName)
	if err != nil {
		return nil, fmt.Errorf("material %q: %w", config.Name, err)
	}

	material := &metadata.Material{
		Name:           config.Name,
		ShaderName:     config.ShaderName,
		Shader:         shader,
		UniformSetName: config.UniformSetName,
		TextureNames:   config.Textures,
		ViewCull:       config.ViewCull,
		Values:         config.Values,
	}
	if material.UniformSetName == "" && shader.MaterialSet >= 0 {
		material.UniformSetName = shader.Config.UniformSets[shader.MaterialSet]
	}

	for _, name := range config.Textures {
		t, err := mm.textures.Acquire(name)
		if err != nil {
			return nil, fmt.Errorf("material %q: %w", config.Name, err)
		}
		material.Textures = append(material.Textures, t)
	}

	if material.UniformSetName != "" {
		layout, err := mm.memory.UniformSet(material.UniformSetName)
		if err != nil {
			return nil, fmt.Errorf("material %q: %w", config.Name, err)
		}
		if !layout.IsEmpty() && layout.Scope != metadata.ScopeMaterial {
			return nil, fmt.Errorf("material %q: uniform set %q holds %s uniforms", config.Name, layout.Name, layout.Scope)
		}
		aligner := layout.NewAligner()
		for name, value := range config.Values {
			if err := aligner.Set(name, value); err != nil {
				return nil, fmt.Errorf("material %q: %w", config.Name, err)
			}
		}
		if err := mm.memory.WriteMaterialUniforms(material, aligner); err != nil {
			return nil, fmt.Errorf("material %q: %w", config.Name, err)
		}
	}

	material.ID = mm.materialIDs.Intern(config.Name)
	mm.materials[config.Name] = material
	mm.materialsByID[material.ID] = material
	core.LogDebug("material %q added with shader %q", config.Name, config.ShaderName)
	return material, nil
}

func (mm *ModelManager) Material(name string) (*metadata.Material, error) {
	m, ok := mm.materials[name]
	if !ok {
		return nil, fmt.Errorf("material %q: %w", name, core.ErrNotFound)
	}
	return m, nil
}

func (mm *ModelManager) MaterialByID(id uint32) (*metadata.Material, bool) {
	m, ok := mm.materialsByID[id]
	return m, ok
}

// Mesh returns a mesh loaded at MEMORY level or above.
func (mm *ModelManager) Mesh(name string) (*metadata.Mesh, error) {
	e, ok := mm.meshes[name]
	if !ok || e.mesh == nil {
		return nil, fmt.Errorf("mesh %q: %w", name, core.ErrNotFound)
	}
	return e.mesh, nil
}

// Users returns the per-level user counts of a mesh.
func (mm *ModelManager) Users(name string) ([metadata.NumCacheLevels]int, bool) {
	e, ok := mm.meshes[name]
	if !ok {
		return [metadata.NumCacheLevels]int{}, false
	}
	return e.users, true
}

// Level returns the highest level a mesh is currently held at.
func (mm *ModelManager) Level(name string) (metadata.CacheLevel, bool) {
	e, ok := mm.meshes[name]
	if !ok {
		return metadata.CacheLevelDisk, false
	}
	return e.level(), true
}

// GetModel pairs a material with a mesh held at GPU level. The first GPU user uploads the mesh.
func (mm *ModelManager) GetModel(materialName, meshName string) (*metadata.Model, error) {
	material, err := mm.Material(materialName)
	if err != nil {
		return nil, err
	}
	e, err := mm.entry(meshName, metadata.CacheLevelGPU)
	if err != nil {
		return nil, err
	}
	if err := mm.acquire(e, metadata.CacheLevelGPU); err != nil {
		return nil, err
	}
	material.RefCount++
	return metadata.NewModel(mm, e.mesh, material), nil
}

// GetMesh takes a reference on a mesh at level, loading or uploading it as needed.
func (mm *ModelManager) GetMesh(name string, level metadata.CacheLevel) (*metadata.MeshRef, error) {
	e, err := mm.entry(name, level)
	if err != nil {
		return nil, err
	}
	if err := mm.acquire(e, level); err != nil {
		return nil, err
	}
	return metadata.NewMeshRef(mm, name, level, e.mesh), nil
}

// ReleaseMesh drops one reference taken with GetMesh at level.
func (mm *ModelManager) ReleaseMesh(name string, level metadata.CacheLevel) error {
	e, err := mm.entry(name, level)
	if err != nil {
		return err
	}
	if e.users[level] == 0 {
		return fmt.Errorf("mesh %q has no %s users to release: %w", name, level, core.ErrCacheInconsistency)
	}
	if level < metadata.CacheLevelGPU && e.users[level] == e.users[level+1] {
		return fmt.Errorf("mesh %q: every %s user is held at a higher level: %w", name, level, core.ErrCacheInconsistency)
	}

	for l := metadata.CacheLevelDisk; l <= level; l++ {
		e.users[l]--
	}

	if level == metadata.CacheLevelGPU && e.users[metadata.CacheLevelGPU] == 0 && !e.pendingFree {
		e.pendingFree = true
		mm.pendingFrees = append(mm.pendingFrees, name)
		return nil
	}
	if !e.pendingFree {
		mm.settle(e)
	}
	return nil
}

// ReleaseModel is the main-thread form of Model.Release.
func (mm *ModelManager) ReleaseModel(model *metadata.Model) error {
	if !model.MarkReleased() {
		return fmt.Errorf("model %s released twice: %w", model, core.ErrCacheInconsistency)
	}
	return mm.releaseModel(model)
}

// ReleaseMeshRef is the main-thread form of MeshRef.Release.
func (mm *ModelManager) ReleaseMeshRef(ref *metadata.MeshRef) error {
	if !ref.MarkReleased() {
		return fmt.Errorf("mesh reference %s@%s released twice: %w", ref.Name, ref.Level, core.ErrCacheInconsistency)
	}
	return mm.ReleaseMesh(ref.Name, ref.Level)
}

func (mm *ModelManager) releaseModel(model *metadata.Model) error {
	material := model.Material
	if material.RefCount == 0 {
		return fmt.Errorf("material %q has no users to release: %w", material.Name, core.ErrCacheInconsistency)
	}
	if err := mm.ReleaseMesh(model.MeshName, metadata.CacheLevelGPU); err != nil {
		return err
	}
	material.RefCount--
	return nil
}

// EnqueueRelease queues a dropped handle. Safe for concurrent use.
func (mm *ModelManager) EnqueueRelease(req metadata.ReleaseRequest) error {
	return mm.releases.Enqueue(req)
}

// ProcessReleases applies every queued handle release.
func (mm *ModelManager) ProcessReleases() error {
	var errs []error
	for _, req := range mm.releases.Drain() {
		var err error
		switch req.Kind {
		case metadata.ReleaseModelKind:
			err = mm.releaseModel(req.Model)
		case metadata.ReleaseMeshKind:
			err = mm.ReleaseMesh(req.Mesh.Name, req.Mesh.Level)
		}
		if err != nil {
			core.LogError(err.Error())
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EndFrame frees the GPU regions of meshes whose last GPU user left during the frame.
// Meshes acquired again since then are left alone.
func (mm *ModelManager) EndFrame() error {
	var errs []error
	for _, name := range mm.pendingFrees {
		e, ok := mm.meshes[name]
		if !ok || !e.pendingFree {
			continue
		}
		e.pendingFree = false
		if e.users[metadata.CacheLevelGPU] > 0 {
			continue
		}
		if err := mm.memory.FreeMesh(name, e.mesh, e.persist); err != nil {
			errs = append(errs, err)
			continue
		}
		mm.settle(e)
	}
	mm.pendingFrees = mm.pendingFrees[:0]
	return errors.Join(errs...)
}

// OnMeshDemoted registers fn to be called when a mesh loses its GPU regions to eviction.
func (mm *ModelManager) OnMeshDemoted(fn func(meshName string)) {
	mm.demoted = append(mm.demoted, fn)
}

func (mm *ModelManager) entry(name string, level metadata.CacheLevel) (*meshEntry, error) {
	e, ok := mm.meshes[name]
	if ok {
		return e, nil
	}
	if level == metadata.CacheLevelGPU {
		return nil, fmt.Errorf("mesh %q was never registered: %w", name, core.ErrCacheInconsistency)
	}
	return nil, fmt.Errorf("mesh %q: %w", name, core.ErrNotFound)
}

// acquire raises the counts of e up to level, loading and uploading first.
// Nothing changes when loading or uploading fails.
func (mm *ModelManager) acquire(e *meshEntry, level metadata.CacheLevel) error {
	loaded := false
	if level >= metadata.CacheLevelMemory && e.mesh == nil {
		if mm.loader == nil || e.source == "" {
			return fmt.Errorf("mesh %q has no source to load from: %w", e.name, core.ErrNotFound)
		}
		mesh, err := mm.loader.LoadMesh(e.source)
		if err != nil {
			core.LogError("failed to load mesh %q from %s: %s", e.name, e.source, err)
			return err
		}
		mesh.Name = e.name
		mesh.ID = mm.meshIDs.Intern(e.name)
		e.mesh = mesh
		loaded = true
		core.LogDebug("mesh %q loaded from %s", e.name, e.source)
	}
	if level == metadata.CacheLevelGPU && e.users[metadata.CacheLevelGPU] == 0 {
		if err := mm.memory.AddMesh(e.name, e.mesh); err != nil {
			core.LogWarn("mesh %q could not be made resident: %s", e.name, err)
			if loaded {
				e.mesh = nil
			}
			return err
		}
	}
	for l := metadata.CacheLevelDisk; l <= level; l++ {
		e.users[l]++
	}
	return nil
}

// settle applies the MEMORY level policy once no MEMORY users are left.
func (mm *ModelManager) settle(e *meshEntry) {
	if e.users[metadata.CacheLevelMemory] > 0 || e.persist {
		return
	}
	if e.source != "" {
		if e.mesh != nil {
			core.LogDebug("mesh %q dropped back to disk", e.name)
		}
		e.mesh = nil
		return
	}
	if e.users[metadata.CacheLevelDisk] > 0 {
		return
	}
	delete(mm.meshes, e.name)
	core.LogDebug("mesh %q erased", e.name)
}

func (mm *ModelManager) onMeshEvicted(name string) {
	e, ok := mm.meshes[name]
	if !ok || e.mesh == nil {
		return
	}
	e.mesh.Resident = false
	for _, fn := range mm.demoted {
		fn(name)
	}
}
