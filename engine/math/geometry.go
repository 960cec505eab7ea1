package math

import "github.com/chewxy/math32"

// ExtentsFromPoints returns the axis-aligned box enclosing points.
func ExtentsFromPoints(points []Vec3) Extents3D {
	if len(points) == 0 {
		return Extents3D{}
	}
	e := Extents3D{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		e.Min.X = math32.Min(e.Min.X, p.X)
		e.Min.Y = math32.Min(e.Min.Y, p.Y)
		e.Min.Z = math32.Min(e.Min.Z, p.Z)
		e.Max.X = math32.Max(e.Max.X, p.X)
		e.Max.Y = math32.Max(e.Max.Y, p.Y)
		e.Max.Z = math32.Max(e.Max.Z, p.Z)
	}
	return e
}

// BoundingRadius returns the radius of the origin-centred sphere enclosing points.
func BoundingRadius(points []Vec3) float32 {
	var r2 float32
	for _, p := range points {
		r2 = math32.Max(r2, p.LengthSquared())
	}
	return math32.Sqrt(r2)
}

// GenerateFaceNormals returns one face normal per vertex of an indexed triangle list.
// Vertices shared between faces keep the normal of the last face that touches them.
func GenerateFaceNormals(positions []Vec3, indices []uint32) []Vec3 {
	normals := make([]Vec3, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		edge1 := positions[i1].Sub(positions[i0])
		edge2 := positions[i2].Sub(positions[i0])
		n := edge1.Cross(edge2).Normalized()
		normals[i0] = n
		normals[i1] = n
		normals[i2] = n
	}
	return normals
}
