package metadata

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/prism/engine/core"
)

type ReleaseKind uint8

const (
	ReleaseModelKind ReleaseKind = iota
	ReleaseMeshKind
)

/** @brief A deferred release, executed on the main thread. */
type ReleaseRequest struct {
	Kind  ReleaseKind
	Model *Model
	Mesh  *MeshRef
}

/**
 * @brief Receives releases of dropped handles. The owner is a non-owning
 * back reference; handles never keep their manager alive.
 */
type HandleOwner interface {
	EnqueueRelease(ReleaseRequest) error
}

/**
 * @brief A (mesh, material) pair handed out by the model manager. While the
 * model is alive its mesh stays resident at GPU level.
 */
type Model struct {
	MeshName     string
	MaterialName string
	Mesh         *Mesh
	Material     *Material

	owner    HandleOwner
	released atomic.Bool
}

func NewModel(owner HandleOwner, mesh *Mesh, material *Material) *Model {
	return &Model{
		MeshName:     mesh.Name,
		MaterialName: material.Name,
		Mesh:         mesh,
		Material:     material,
		owner:        owner,
	}
}

// Release hands the model back to its owner. It is safe to call from any
// goroutine; the owner applies the release on its own thread.
func (m *Model) Release() error {
	if !m.MarkReleased() {
		return fmt.Errorf("model (%s, %s) released twice: %w", m.MaterialName, m.MeshName, core.ErrCacheInconsistency)
	}
	return m.owner.EnqueueRelease(ReleaseRequest{Kind: ReleaseModelKind, Model: m})
}

// MarkReleased flips the handle to released. It returns false when it already was.
func (m *Model) MarkReleased() bool {
	return m.released.CompareAndSwap(false, true)
}

func (m *Model) Released() bool {
	return m.released.Load()
}

func (m *Model) String() string {
	return fmt.Sprintf("%s/%s", m.MaterialName, m.MeshName)
}

/** @brief A reference on one mesh at one cache level. */
type MeshRef struct {
	Name  string
	Level CacheLevel
	Mesh  *Mesh

	owner    HandleOwner
	released atomic.Bool
}

func NewMeshRef(owner HandleOwner, name string, level CacheLevel, mesh *Mesh) *MeshRef {
	return &MeshRef{Name: name, Level: level, Mesh: mesh, owner: owner}
}

func (r *MeshRef) Release() error {
	if !r.MarkReleased() {
		return fmt.Errorf("mesh reference %s@%s released twice: %w", r.Name, r.Level, core.ErrCacheInconsistency)
	}
	return r.owner.EnqueueRelease(ReleaseRequest{Kind: ReleaseMeshKind, Mesh: r})
}

func (r *MeshRef) MarkReleased() bool {
	return r.released.CompareAndSwap(false, true)
}

func (r *MeshRef) Released() bool {
	return r.released.Load()
}
