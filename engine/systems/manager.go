package systems

import (
	"errors"

	"github.com/spaghettifunk/prism/engine/renderer/memory"
)

// Backend is what the systems need from the rendering backend.
type Backend interface {
	ShaderBackend
	TextureBackend
}

type SystemManagerConfig struct {
	CullWorkers    int
	CullChunkSize  int
	MaxCameraCount int
}

type SystemManager struct {
	CameraSystem  *CameraSystem
	JobSystem     *JobSystem
	ShaderSystem  *ShaderSystem
	TextureSystem *TextureSystem
	ModelManager  *ModelManager
	Culler        *Culler
}

// NewSystemManager builds every system. loader may be nil when all resources are created in code.
func NewSystemManager(config SystemManagerConfig, backend Backend, mem *memory.Manager, loader ResourceLoader) (*SystemManager, error) {
	js, err := NewJobSystem(config.CullWorkers, config.CullChunkSize)
	if err != nil {
		return nil, err
	}
	if config.MaxCameraCount == 0 {
		config.MaxCameraCount = 100
	}
	cs, err := NewCameraSystem(config.MaxCameraCount)
	if err != nil {
		return nil, err
	}

	var (
		meshes  MeshLoader
		images  ImageLoader
		sources SourceLoader
	)
	if loader != nil {
		meshes, images, sources = loader, loader, loader
	}

	ts, err := NewTextureSystem(backend, images)
	if err != nil {
		return nil, err
	}
	ss := NewShaderSystem(backend, mem, sources)
	return &SystemManager{
		CameraSystem:  cs,
		JobSystem:     js,
		ShaderSystem:  ss,
		TextureSystem: ts,
		ModelManager:  NewModelManager(mem, ss, ts, meshes),
		Culler:        NewCuller(js),
	}, nil
}

// NewRenderComponentManager returns a draw index bound to the model manager.
func (sm *SystemManager) NewRenderComponentManager() *RenderComponentManager {
	return NewRenderComponentManager(sm.ModelManager)
}

func (sm *SystemManager) Shutdown() error {
	return errors.Join(
		sm.ShaderSystem.Shutdown(),
		sm.TextureSystem.Shutdown(),
		sm.CameraSystem.Shutdown(),
	)
}
