package math

import "github.com/chewxy/math32"

func NewQuatIdentity() Quaternion {
	return Quaternion{0, 0, 0, 1.0}
}

/**
 * @brief Creates a quaternion from the given axis and angle.
 *
 * @param axis The axis of rotation.
 * @param angle The angle of rotation in radians.
 * @param normalize Indicates if the quaternion should be normalized.
 */
func NewQuatFromAxisAngle(axis Vec3, angle float32, normalize bool) Quaternion {
	halfAngle := 0.5 * angle
	s := math32.Sin(halfAngle)
	c := math32.Cos(halfAngle)

	q := Quaternion{s * axis.X, s * axis.Y, s * axis.Z, c}
	if normalize {
		return q.Normalize()
	}
	return q
}

func (q Quaternion) Normal() float32 {
	return math32.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

func (q Quaternion) Normalize() Quaternion {
	n := q.Normal()
	if n == 0 {
		return NewQuatIdentity()
	}
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, q.W}
}

/**
 * @brief Multiplies the provided quaternions (Hamilton product q * other).
 */
func (q Quaternion) Mul(other Quaternion) Quaternion {
	return Quaternion{
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
	}
}

/**
 * @brief Creates a rotation matrix from the given quaternion, laid out for row vectors.
 */
func (q Quaternion) ToMat4() Mat4 {
	n := q.Normalize()
	m := NewMat4Identity()

	m.Data[0] = 1.0 - 2.0*n.Y*n.Y - 2.0*n.Z*n.Z
	m.Data[1] = 2.0*n.X*n.Y + 2.0*n.Z*n.W
	m.Data[2] = 2.0*n.X*n.Z - 2.0*n.Y*n.W

	m.Data[4] = 2.0*n.X*n.Y - 2.0*n.Z*n.W
	m.Data[5] = 1.0 - 2.0*n.X*n.X - 2.0*n.Z*n.Z
	m.Data[6] = 2.0*n.Y*n.Z + 2.0*n.X*n.W

	m.Data[8] = 2.0*n.X*n.Z + 2.0*n.Y*n.W
	m.Data[9] = 2.0*n.Y*n.Z - 2.0*n.X*n.W
	m.Data[10] = 1.0 - 2.0*n.X*n.X - 2.0*n.Y*n.Y

	return m
}
