package components

import (
	"github.com/chewxy/math32"

	"github.com/spaghettifunk/prism/engine/math"
)

/**
 * @brief A perspective camera. The view matrix is rebuilt lazily
 * after the position or rotation changed.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position math.Vec3
	/**
	 * @brief The rotation of this camera using Euler angles (pitch, yaw, roll).
	 * NOTE: Do not set this directly, use SetEulerRotation() instead
	 * so the view matrix is recalculated when needed.
	 */
	EulerRotation math.Vec3
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool
	/**
	 * @brief The view matrix of this camera.
	 * NOTE: IMPORTANT: Do not get this directly, use GetView() instead
	 * so the view matrix is recalculated when needed.
	 */
	ViewMatrix math.Mat4

	/** @brief Vertical field of view in radians. */
	FOV    float32
	Aspect float32
	Near   float32
	Far    float32

	projection math.Mat4
	// half width and height of the near and far planes in camera space
	nearHalf math.Vec2
	farHalf  math.Vec2
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

// NewPerspectiveCamera returns a camera at the origin looking down -Z.
func NewPerspectiveCamera(fovRadians, aspect, near, far float32) *Camera {
	camera := NewCamera()
	camera.SetPerspective(fovRadians, aspect, near, far)
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = math.NewVec3Zero()
	c.Position = math.NewVec3Zero()
	c.IsDirty = false
	c.ViewMatrix = math.NewMat4Identity()
	c.SetPerspective(math.DegToRad(45.0), 16.0/9.0, 0.1, 1000.0)
}

func (c *Camera) SetPerspective(fovRadians, aspect, near, far float32) {
	c.FOV = fovRadians
	c.Aspect = aspect
	c.Near = near
	c.Far = far
	c.projection = math.NewMat4Perspective(fovRadians, aspect, near, far)

	halfTan := math32.Tan(fovRadians * 0.5)
	c.nearHalf = math.NewVec2(near*halfTan*aspect, near*halfTan)
	c.farHalf = math.NewVec2(far*halfTan*aspect, far*halfTan)
}

// SetAspect keeps the field of view and clip planes, typically after a resize.
func (c *Camera) SetAspect(aspect float32) {
	c.SetPerspective(c.FOV, aspect, c.Near, c.Far)
}

func (c *Camera) Projection() math.Mat4 {
	return c.projection
}

// NearHalfExtents returns half the width and height of the near plane.
func (c *Camera) NearHalfExtents() math.Vec2 {
	return c.nearHalf
}

// FarHalfExtents returns half the width and height of the far plane.
func (c *Camera) FarHalfExtents() math.Vec2 {
	return c.farHalf
}

// HalfExtentsAt interpolates the plane half extents at depth z in front of the camera.
func (c *Camera) HalfExtentsAt(z float32) math.Vec2 {
	if c.Far == c.Near {
		return c.nearHalf
	}
	t := (z - c.Near) / (c.Far - c.Near)
	return math.NewVec2(
		c.nearHalf.X+(c.farHalf.X-c.nearHalf.X)*t,
		c.nearHalf.Y+(c.farHalf.Y-c.nearHalf.Y)*t,
	)
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) GetEulerRotation() math.Vec3 {
	return c.EulerRotation
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.EulerRotation = rotation
	c.IsDirty = true
}

func (c *Camera) GetView() math.Mat4 {
	if c.IsDirty {
		rotation := math.NewMat4EulerXYZ(c.EulerRotation.X, c.EulerRotation.Y, c.EulerRotation.Z)
		translation := math.NewMat4Translation(c.Position)

		c.ViewMatrix = rotation.Mul(translation).Inverse()
		c.IsDirty = false
	}
	return c.ViewMatrix
}

func (c *Camera) Forward() math.Vec3 {
	view := c.GetView()
	return view.Forward()
}

func (c *Camera) Backward() math.Vec3 {
	view := c.GetView()
	return view.Backward()
}

func (c *Camera) Left() math.Vec3 {
	view := c.GetView()
	return view.Left()
}

func (c *Camera) Right() math.Vec3 {
	view := c.GetView()
	return view.Right()
}

func (c *Camera) MoveForward(amount float32) {
	c.move(c.Forward(), amount)
}

func (c *Camera) MoveBackward(amount float32) {
	c.move(c.Backward(), amount)
}

func (c *Camera) MoveLeft(amount float32) {
	c.move(c.Left(), amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.move(c.Right(), amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.move(math.NewVec3Up(), amount)
}

func (c *Camera) MoveDown(amount float32) {
	c.move(math.NewVec3Down(), amount)
}

func (c *Camera) move(direction math.Vec3, amount float32) {
	c.Position = c.Position.Add(direction.MulScalar(amount))
	c.IsDirty = true
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation.Y += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation.X += amount

	// Clamp to avoid Gimbal lock.
	limit := float32(1.55334306) // 89 degrees
	c.EulerRotation.X = math.Clamp(c.EulerRotation.X, -limit, limit)

	c.IsDirty = true
}
