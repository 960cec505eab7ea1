package systems

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/**
 * @brief An unordered set of components with O(1) insert and remove.
 */
type ComponentSet struct {
	items []*components.RenderComponent
	index map[uuid.UUID]int
}

func newComponentSet() *ComponentSet {
	return &ComponentSet{index: make(map[uuid.UUID]int)}
}

func (s *ComponentSet) add(c *components.RenderComponent) bool {
	if _, ok := s.index[c.ID]; ok {
		return false
	}
	s.index[c.ID] = len(s.items)
	s.items = append(s.items, c)
	return true
}

// remove swaps the last item into the hole.
func (s *ComponentSet) remove(c *components.RenderComponent) bool {
	i, ok := s.index[c.ID]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	if i != last {
		s.items[i] = s.items[last]
		s.index[s.items[i].ID] = i
	}
	s.items[last] = nil
	s.items = s.items[:last]
	delete(s.index, c.ID)
	return true
}

func (s *ComponentSet) Contains(c *components.RenderComponent) bool {
	_, ok := s.index[c.ID]
	return ok
}

func (s *ComponentSet) Len() int {
	return len(s.items)
}

// Items returns the backing slice. It must not be modified.
func (s *ComponentSet) Items() []*components.RenderComponent {
	return s.items
}

type (
	MaterialGroups map[uint32]*ComponentSet
	ShaderGroups   map[uint32]MaterialGroups
	/** @brief Components grouped by vertex buffer, then shader, then material. All keys are interned IDs. */
	DrawIndex map[uint32]ShaderGroups
)

/** @brief One leaf of the draw index. */
type DrawKey struct {
	VertexBuffer uint32
	Shader       uint32
	Material     uint32
}

func drawKey(model *metadata.Model) DrawKey {
	return DrawKey{
		VertexBuffer: model.Mesh.VertexBufferID,
		Shader:       model.Material.Shader.ID,
		Material:     model.Material.ID,
	}
}

/**
 * @brief Keeps the draw index of one screen in step with its components.
 * Every component in the index has a GPU-resident mesh.
 */
type RenderComponentManager struct {
	draw DrawIndex
	all  *ComponentSet
	// component -> the leaf it was inserted under
	keys map[uuid.UUID]DrawKey
	// mesh name -> components drawing it
	byMesh map[string]map[uuid.UUID]*components.RenderComponent
	meshOf map[uuid.UUID]string
}

func NewRenderComponentManager(models *ModelManager) *RenderComponentManager {
	rcm := &RenderComponentManager{
		draw:   make(DrawIndex),
		all:    newComponentSet(),
		keys:   make(map[uuid.UUID]DrawKey),
		byMesh: make(map[string]map[uuid.UUID]*components.RenderComponent),
		meshOf: make(map[uuid.UUID]string),
	}
	if models != nil {
		models.OnMeshDemoted(rcm.onMeshDemoted)
	}
	return rcm
}

// OnAdd inserts c under its model's buffer, shader and material.
func (rcm *RenderComponentManager) OnAdd(c *components.RenderComponent) error {
	if err := checkDrawable(c); err != nil {
		core.LogError(err.Error())
		return err
	}
	if _, exists := rcm.keys[c.ID]; exists {
		return fmt.Errorf("render component %s: %w", c.ID, core.ErrDuplicateName)
	}
	rcm.insert(c)
	return nil
}

// OnRemove takes c out of the index, erasing groups left empty.
func (rcm *RenderComponentManager) OnRemove(c *components.RenderComponent) error {
	if _, ok := rcm.keys[c.ID]; !ok {
		return fmt.Errorf("render component %s: %w", c.ID, core.ErrNotFound)
	}
	rcm.erase(c)
	rcm.all.remove(c)
	return nil
}

/**
 * @brief Moves c to the leaf of its current model. oldModel is the model c was
 * added with. The component stays in the flat set throughout.
 */
func (rcm *RenderComponentManager) Reload(c *components.RenderComponent, oldModel *metadata.Model) error {
	key, ok := rcm.keys[c.ID]
	if !ok {
		return fmt.Errorf("render component %s: %w", c.ID, core.ErrNotFound)
	}
	if oldModel != nil && key != drawKey(oldModel) {
		return fmt.Errorf("render component %s is not indexed under %s: %w", c.ID, oldModel, core.ErrCacheInconsistency)
	}
	if err := checkDrawable(c); err != nil {
		core.LogError(err.Error())
		return err
	}
	rcm.unlink(c, key)
	rcm.link(c)
	return nil
}

func (rcm *RenderComponentManager) Index() DrawIndex {
	return rcm.draw
}

// Components is the flat set of every indexed component.
func (rcm *RenderComponentManager) Components() *ComponentSet {
	return rcm.all
}

func (rcm *RenderComponentManager) Len() int {
	return rcm.all.Len()
}

// Keys returns every non-empty leaf.
func (rcm *RenderComponentManager) Keys() map[DrawKey]int {
	out := make(map[DrawKey]int)
	for vb, shaders := range rcm.draw {
		for sh, materials := range shaders {
			for mat, set := range materials {
				out[DrawKey{vb, sh, mat}] = set.Len()
			}
		}
	}
	return out
}

func (rcm *RenderComponentManager) insert(c *components.RenderComponent) {
	rcm.all.add(c)
	rcm.link(c)
}

func (rcm *RenderComponentManager) erase(c *components.RenderComponent) {
	rcm.unlink(c, rcm.keys[c.ID])
}

func (rcm *RenderComponentManager) link(c *components.RenderComponent) {
	key := drawKey(c.Model)
	shaders, ok := rcm.draw[key.VertexBuffer]
	if !ok {
		shaders = make(ShaderGroups)
		rcm.draw[key.VertexBuffer] = shaders
	}
	materials, ok := shaders[key.Shader]
	if !ok {
		materials = make(MaterialGroups)
		shaders[key.Shader] = materials
	}
	set, ok := materials[key.Material]
	if !ok {
		set = newComponentSet()
		materials[key.Material] = set
	}
	set.add(c)
	rcm.keys[c.ID] = key

	users, ok := rcm.byMesh[c.Model.MeshName]
	if !ok {
		users = make(map[uuid.UUID]*components.RenderComponent)
		rcm.byMesh[c.Model.MeshName] = users
	}
	users[c.ID] = c
	rcm.meshOf[c.ID] = c.Model.MeshName
}

func (rcm *RenderComponentManager) unlink(c *components.RenderComponent, key DrawKey) {
	delete(rcm.keys, c.ID)
	if name, ok := rcm.meshOf[c.ID]; ok {
		delete(rcm.meshOf, c.ID)
		delete(rcm.byMesh[name], c.ID)
		if len(rcm.byMesh[name]) == 0 {
			delete(rcm.byMesh, name)
		}
	}

	shaders, ok := rcm.draw[key.VertexBuffer]
	if !ok {
		return
	}
	materials, ok := shaders[key.Shader]
	if !ok {
		return
	}
	set, ok := materials[key.Material]
	if !ok {
		return
	}
	set.remove(c)
	if set.Len() > 0 {
		return
	}
	delete(materials, key.Material)
	if len(materials) > 0 {
		return
	}
	delete(shaders, key.Shader)
	if len(shaders) > 0 {
		return
	}
	delete(rcm.draw, key.VertexBuffer)
}

// onMeshDemoted drops the components of a mesh that is no longer on the GPU.
func (rcm *RenderComponentManager) onMeshDemoted(meshName string) {
	users := rcm.byMesh[meshName]
	for _, c := range users {
		core.LogWarn("render component %s dropped: mesh %q left the GPU", c.ID, meshName)
		rcm.erase(c)
		rcm.all.remove(c)
	}
}

func checkDrawable(c *components.RenderComponent) error {
	m := c.Model
	switch {
	case m == nil || m.Mesh == nil || m.Material == nil:
		return fmt.Errorf("render component %s has no model: %w", c.ID, core.ErrNotFound)
	case m.Released():
		return fmt.Errorf("render component %s: model %s was released: %w", c.ID, m, core.ErrCacheInconsistency)
	case !m.Mesh.Resident:
		return fmt.Errorf("render component %s: mesh %q is not resident: %w", c.ID, m.MeshName, core.ErrCacheInconsistency)
	case m.Material.Shader == nil:
		return fmt.Errorf("render component %s: material %q has no shader: %w", c.ID, m.MaterialName, core.ErrNotFound)
	}
	return nil
}
