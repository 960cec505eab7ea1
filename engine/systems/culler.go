package systems

import (
	"context"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/components"
)

/**
 * @brief Frustum culling of render components against a perspective camera.
 * Only Visible is written, so chunks of the component set run in parallel.
 */
type Culler struct {
	jobs *JobSystem
}

func NewCuller(jobs *JobSystem) *Culler {
	return &Culler{jobs: jobs}
}

/**
 * @brief Sets Visible on every component. Components whose material does not
 * request view culling are always visible.
 */
func (c *Culler) Cull(ctx context.Context, camera *components.Camera, set *ComponentSet) error {
	items := set.Items()
	view := camera.GetView()
	return c.jobs.ParallelFor(ctx, len(items), func(ctx context.Context, lo, hi int) error {
		for _, rc := range items[lo:hi] {
			rc.Visible = IsVisible(camera, view, rc)
		}
		return nil
	})
}

// IsVisible classifies the bounding sphere of rc against the frustum of camera.
// view must be camera.GetView().
func IsVisible(camera *components.Camera, view math.Mat4, rc *components.RenderComponent) bool {
	if rc.Model == nil || rc.Model.Material == nil || !rc.Model.Material.ViewCull {
		return true
	}
	center := rc.Transform.WorldPosition().Transform(view)
	return SphereInFrustum(camera, center, rc.Radius())
}

/**
 * @brief Tests a sphere given in camera space. The camera looks down -Z, so the
 * depth of the centre is -center.Z.
 */
func SphereInFrustum(camera *components.Camera, center math.Vec3, radius float32) bool {
	depth := -center.Z
	switch {
	case depth+radius < camera.Near, depth-radius > camera.Far:
		return false
	case depth-radius < camera.Near:
		return overlaps(center, radius, camera.NearHalfExtents())
	case depth+radius > camera.Far:
		return overlaps(center, radius, camera.FarHalfExtents())
	}
	return overlaps(center, radius, camera.HalfExtentsAt(depth))
}

// overlaps compares the square bounding the sphere's projection with the plane rectangle.
func overlaps(center math.Vec3, radius float32, half math.Vec2) bool {
	return math32.Abs(center.X)-radius <= half.X && math32.Abs(center.Y)-radius <= half.Y
}
