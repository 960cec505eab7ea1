package math

/** @brief A 2-element vector. */
type Vec2 struct {
	X, Y float32
}

/** @brief A 3-element vector. */
type Vec3 struct {
	X, Y, Z float32
}

/** @brief A 4-element vector. */
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/**
 * @brief A 3x3 matrix, stored row by row. Only used for uniform data;
 * the renderer works with Mat4 everywhere else.
 */
type Mat3 struct {
	Data [9]float32
}

/**
 * @brief A 4x4 matrix, typically used to represent object transformations.
 * Vectors are treated as rows, so translation lives in Data[12..14].
 */
type Mat4 struct {
	Data [16]float32
}

/**
 * @brief Represents the extents of a 3d object.
 */
type Extents3D struct {
	/** @brief The minimum extents of the object. */
	Min Vec3
	/** @brief The maximum extents of the object. */
	Max Vec3
}

/**
 * @brief Represents the transform of an object in the world.
 * Transforms can have a parent whose own transform is then
 * taken into account.
 */
type Transform struct {
	/** @brief The position in the world. */
	Position Vec3
	/** @brief The rotation in the world. */
	Rotation Quaternion
	/** @brief The scale in the world. */
	Scale Vec3
	/**
	 * @brief Indicates if the position, rotation or scale have changed,
	 * thus indicating if the local matrix needs to be recalculated.
	 */
	IsDirty bool
	/**
	 * @brief The local transformation matrix, updated whenever
	 * the position, rotation or scale have changed.
	 */
	Local Mat4
	/** @brief A pointer to a parent transform if one is assigned. Can also be nil. */
	Parent *Transform
}
