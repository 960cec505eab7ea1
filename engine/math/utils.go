package math

import (
	"github.com/chewxy/math32"
	"golang.org/x/exp/constraints"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float32 = math32.Pi
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
	/** @brief A multiplier used to convert radians to degrees. */
	K_RAD2DEG_MULTIPLIER float32 = 180.0 / K_PI
	/** @brief Smallest positive number where 1.0 + FLOAT_EPSILON != 0 */
	K_FLOAT_EPSILON float32 = 1.192092896e-07
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// AlignUp rounds operand up to the next multiple of granularity.
// A granularity of zero leaves operand untouched.
func AlignUp[T constraints.Unsigned](operand, granularity T) T {
	if granularity == 0 {
		return operand
	}
	if rem := operand % granularity; rem != 0 {
		return operand + granularity - rem
	}
	return operand
}

// GCD returns the greatest common divisor of a and b.
func GCD[T constraints.Unsigned](a, b T) T {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// LCM returns the least common multiple of a and b, zero if either is zero.
func LCM[T constraints.Unsigned](a, b T) T {
	if a == 0 || b == 0 {
		return 0
	}
	return a / GCD(a, b) * b
}

func DegToRad(degrees float32) float32 {
	return degrees * K_DEG2RAD_MULTIPLIER
}

func RadToDeg(radians float32) float32 {
	return radians * K_RAD2DEG_MULTIPLIER
}

// FloatEquals compares two floats within K_FLOAT_EPSILON.
func FloatEquals(a, b float32) bool {
	return math32.Abs(a-b) < K_FLOAT_EPSILON
}
