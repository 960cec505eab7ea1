package systems

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/components"
)

const DefaultCameraName string = "default"

type cameraEntry struct {
	camera         *components.Camera
	referenceCount uint32
}

type CameraSystem struct {
	maxCameras int
	cameras    map[string]*cameraEntry
	// A default, non-registered camera that always exists as a fallback.
	DefaultCamera *components.Camera
}

func NewCameraSystem(maxCameras int) (*CameraSystem, error) {
	if maxCameras <= 0 {
		err := fmt.Errorf("func NewCameraSystem - maxCameras must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	return &CameraSystem{
		maxCameras:    maxCameras,
		cameras:       make(map[string]*cameraEntry),
		DefaultCamera: components.NewCamera(),
	}, nil
}

/**
 * @brief Acquires a camera by name. If one is not found, a new one is created.
 * Internal reference counter is incremented.
 */
func (cs *CameraSystem) Acquire(name string) (*components.Camera, error) {
	if name == DefaultCameraName {
		return cs.DefaultCamera, nil
	}
	entry, ok := cs.cameras[name]
	if !ok {
		if len(cs.cameras) >= cs.maxCameras {
			err := fmt.Errorf("camera %q: no free slot, %d cameras in use: %w", name, cs.maxCameras, core.ErrOutOfMemory)
			core.LogError(err.Error())
			return nil, err
		}
		core.LogDebug("Creating new camera named '%s'...", name)
		entry = &cameraEntry{camera: components.NewCamera()}
		cs.cameras[name] = entry
	}
	entry.referenceCount++
	return entry.camera, nil
}

/**
 * @brief Releases a camera. When the counter reaches 0 the camera is
 * forgotten and its name can be acquired anew.
 */
func (cs *CameraSystem) Release(name string) error {
	if name == DefaultCameraName {
		core.LogDebug("Cannot release default camera. Nothing was done.")
		return nil
	}
	entry, ok := cs.cameras[name]
	if !ok {
		return fmt.Errorf("camera %q: %w", name, core.ErrNotFound)
	}
	entry.referenceCount--
	if entry.referenceCount == 0 {
		delete(cs.cameras, name)
	}
	return nil
}

func (cs *CameraSystem) GetDefault() *components.Camera {
	return cs.DefaultCamera
}

// SetAspect updates every camera after the framebuffer changed size.
func (cs *CameraSystem) SetAspect(aspect float32) {
	cs.DefaultCamera.SetAspect(aspect)
	for _, e := range cs.cameras {
		e.camera.SetAspect(aspect)
	}
}

func (cs *CameraSystem) Shutdown() error {
	clear(cs.cameras)
	return nil
}
