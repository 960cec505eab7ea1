package components

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/**
 * @brief A drawable instance: a model placed in the world.
 * The component does not own its model; the model manager does.
 */
type RenderComponent struct {
	ID        uuid.UUID
	Model     *metadata.Model
	Transform *math.Transform
	// Pushed with every draw as the "color" per-object value.
	Color math.Vec4
	/** @brief Extra per-object values pushed by name, e.g. "selected" or "time". */
	State map[string]any
	/** @brief Written by the culler each frame. */
	Visible bool
}

func NewRenderComponent(model *metadata.Model, transform *math.Transform) *RenderComponent {
	if transform == nil {
		transform = math.TransformCreate()
	}
	return &RenderComponent{
		ID:        uuid.New(),
		Model:     model,
		Transform: transform,
		Color:     math.NewVec4One(),
		State:     make(map[string]any),
		Visible:   true,
	}
}

// Radius returns the bounding radius of the mesh scaled by the largest transform scale.
func (c *RenderComponent) Radius() float32 {
	if c.Model == nil || c.Model.Mesh == nil {
		return 0
	}
	return c.Model.Mesh.Radius * c.Transform.MaxScale()
}
