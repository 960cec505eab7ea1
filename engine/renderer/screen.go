package renderer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/systems"
)

/**
 * @brief One view of the world: a camera, the components it draws and the
 * values of its screen uniforms. Screens are drawn in order, each followed by
 * a depth and stencil clear.
 */
type Screen struct {
	ID     uuid.UUID
	Name   string
	Camera *components.Camera
	// The draw index of the screen's components.
	Components *systems.RenderComponentManager
	/** @brief Values of screen-provided uniforms by name, e.g. "ambient_color". */
	Uniforms map[string]any
	Extent   metadata.Extent
	Depth    metadata.AttachmentHandle
}

func NewScreen(backend Backend, name string, camera *components.Camera, rcm *systems.RenderComponentManager, extent metadata.Extent) (*Screen, error) {
	s := &Screen{
		ID:         uuid.New(),
		Name:       name,
		Camera:     camera,
		Components: rcm,
		Uniforms:   make(map[string]any),
	}
	if err := s.Resize(backend, extent); err != nil {
		return nil, err
	}
	core.LogDebug("screen %q (%s) created at %dx%d", name, s.ID, extent.Width, extent.Height)
	return s, nil
}

// Resize recreates the depth attachment and updates the camera aspect ratio.
func (s *Screen) Resize(backend Backend, extent metadata.Extent) error {
	if extent.Width == 0 || extent.Height == 0 {
		return fmt.Errorf("screen %q: invalid extent %dx%d", s.Name, extent.Width, extent.Height)
	}
	depth, err := backend.CreateDepthAttachment(extent)
	if err != nil {
		core.LogError("screen %q: failed to create depth attachment: %s", s.Name, err)
		return err
	}
	s.Depth = depth
	s.Extent = extent
	if s.Camera != nil {
		s.Camera.SetAspect(float32(extent.Width) / float32(extent.Height))
	}
	return nil
}
