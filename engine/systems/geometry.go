package systems

import (
	"encoding/binary"
	gomath "math"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/** @brief Position, normal and texture coordinate; the layout of generated geometry. */
var PositionNormalTexcoordFormat = metadata.VertexFormat{
	Name: "position_normal_texcoord",
	Attributes: []metadata.VertexAttribute{
		{Name: "in_position", Type: metadata.ElementVec3},
		{Name: "in_normal", Type: metadata.ElementVec3},
		{Name: "in_texcoord", Type: metadata.ElementVec2},
	},
}

/** @brief The vertex of generated geometry. */
type Vertex3D struct {
	Position math.Vec3
	Normal   math.Vec3
	Texcoord math.Vec2
}

// PackVertices lays vertices out in PositionNormalTexcoordFormat.
func PackVertices(vertices []Vertex3D) []byte {
	const stride = 32
	out := make([]byte, len(vertices)*stride)
	for i, v := range vertices {
		values := [8]float32{
			v.Position.X, v.Position.Y, v.Position.Z,
			v.Normal.X, v.Normal.Y, v.Normal.Z,
			v.Texcoord.X, v.Texcoord.Y,
		}
		for j, f := range values {
			binary.LittleEndian.PutUint32(out[i*stride+j*4:], gomath.Float32bits(f))
		}
	}
	return out
}

// NewMeshFromVertices builds a mesh and computes its extents and bounding radius.
func NewMeshFromVertices(name string, vertices []Vertex3D, indices []uint32) *metadata.Mesh {
	positions := make([]math.Vec3, len(vertices))
	for i, v := range vertices {
		positions[i] = v.Position
	}
	format := PositionNormalTexcoordFormat
	return &metadata.Mesh{
		Name:     name,
		Format:   &format,
		Vertices: PackVertices(vertices),
		Indices:  indices,
		Extents:  math.ExtentsFromPoints(positions),
		Radius:   math.BoundingRadius(positions),
	}
}

func nonZero(name string, v float32) float32 {
	if v == 0 {
		core.LogWarn("%s must be nonzero. Defaulting to one.", name)
		return 1
	}
	return v
}

/**
 * @brief Generates a plane in the XY plane facing +Z.
 * @param width The overall width of the plane.
 * @param height The overall height of the plane.
 * @param xSegments Segments along the x axis, at least one.
 * @param ySegments Segments along the y axis, at least one.
 * @param tileX How often the texture repeats across x.
 * @param tileY How often the texture repeats across y.
 */
func GeneratePlane(name string, width, height float32, xSegments, ySegments uint32, tileX, tileY float32) *metadata.Mesh {
	width = nonZero("width", width)
	height = nonZero("height", height)
	tileX = nonZero("tileX", tileX)
	tileY = nonZero("tileY", tileY)
	xSegments = max(xSegments, 1)
	ySegments = max(ySegments, 1)

	vertices := make([]Vertex3D, 0, xSegments*ySegments*4)
	indices := make([]uint32, 0, xSegments*ySegments*6)
	segWidth := width / float32(xSegments)
	segHeight := height / float32(ySegments)
	normal := math.NewVec3(0, 0, 1)

	for y := uint32(0); y < ySegments; y++ {
		for x := uint32(0); x < xSegments; x++ {
			minX := float32(x)*segWidth - width*0.5
			minY := float32(y)*segHeight - height*0.5
			maxX, maxY := minX+segWidth, minY+segHeight
			minU := float32(x) / float32(xSegments) * tileX
			minV := float32(y) / float32(ySegments) * tileY
			maxU := float32(x+1) / float32(xSegments) * tileX
			maxV := float32(y+1) / float32(ySegments) * tileY

			base := uint32(len(vertices))
			vertices = append(vertices,
				Vertex3D{math.NewVec3(minX, minY, 0), normal, math.NewVec2(minU, minV)},
				Vertex3D{math.NewVec3(maxX, maxY, 0), normal, math.NewVec2(maxU, maxV)},
				Vertex3D{math.NewVec3(minX, maxY, 0), normal, math.NewVec2(minU, maxV)},
				Vertex3D{math.NewVec3(maxX, minY, 0), normal, math.NewVec2(maxU, minV)},
			)
			indices = append(indices, base, base+1, base+2, base, base+3, base+1)
		}
	}
	return NewMeshFromVertices(name, vertices, indices)
}

type cubeFace struct {
	normal math.Vec3
	// corners in the order bottom-left, top-right, top-left, bottom-right
	corners [4]math.Vec3
}

/**
 * @brief Generates an axis aligned box centred on the origin, four vertices per face.
 */
func GenerateCube(name string, width, height, depth, tileX, tileY float32) *metadata.Mesh {
	hw := nonZero("width", width) * 0.5
	hh := nonZero("height", height) * 0.5
	hd := nonZero("depth", depth) * 0.5
	tileX = nonZero("tileX", tileX)
	tileY = nonZero("tileY", tileY)

	faces := [6]cubeFace{
		{math.NewVec3(0, 0, 1), [4]math.Vec3{{-hw, -hh, hd}, {hw, hh, hd}, {-hw, hh, hd}, {hw, -hh, hd}}},
		{math.NewVec3(0, 0, -1), [4]math.Vec3{{hw, -hh, -hd}, {-hw, hh, -hd}, {hw, hh, -hd}, {-hw, -hh, -hd}}},
		{math.NewVec3(-1, 0, 0), [4]math.Vec3{{-hw, -hh, -hd}, {-hw, hh, hd}, {-hw, hh, -hd}, {-hw, -hh, hd}}},
		{math.NewVec3(1, 0, 0), [4]math.Vec3{{hw, -hh, hd}, {hw, hh, -hd}, {hw, hh, hd}, {hw, -hh, -hd}}},
		{math.NewVec3(0, -1, 0), [4]math.Vec3{{hw, -hh, hd}, {-hw, -hh, -hd}, {hw, -hh, -hd}, {-hw, -hh, hd}}},
		{math.NewVec3(0, 1, 0), [4]math.Vec3{{-hw, hh, hd}, {hw, hh, -hd}, {-hw, hh, -hd}, {hw, hh, hd}}},
	}
	uvs := [4]math.Vec2{{0, 0}, {tileX, tileY}, {0, tileY}, {tileX, 0}}

	vertices := make([]Vertex3D, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, face := range faces {
		base := uint32(len(vertices))
		for i, corner := range face.corners {
			vertices = append(vertices, Vertex3D{Position: corner, Normal: face.normal, Texcoord: uvs[i]})
		}
		indices = append(indices, base, base+1, base+2, base, base+3, base+1)
	}
	return NewMeshFromVertices(name, vertices, indices)
}
