package text

import (
	"encoding/binary"
	"fmt"
	gomath "math"
	"unicode/utf8"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/** @brief Screen-space position and atlas coordinate; the layout of text meshes. */
var TextVertexFormat = metadata.VertexFormat{
	Name: "position_texcoord_2d",
	Attributes: []metadata.VertexAttribute{
		{Name: "in_position", Type: metadata.ElementVec2},
		{Name: "in_texcoord", Type: metadata.ElementVec2},
	},
}

const (
	vertexStride    = 16
	verticesPerQuad = 4
	indicesPerQuad  = 6
)

// MeshAdder receives finished text meshes; the model manager is one.
type MeshAdder interface {
	AddMesh(name string, mesh *metadata.Mesh, persist bool) error
}

/**
 * @brief Lays s out as one quad per glyph with an area, starting at the origin with
 * y growing downwards. '\n' starts a new line, '\t' advances by the tab width
 * and pairs of glyphs are kerned.
 */
func (f *Font) Layout(name, s string) (*metadata.Mesh, error) {
	runes := []rune(s)
	vertices := make([]byte, 0, len(runes)*verticesPerQuad*vertexStride)
	indices := make([]uint32, 0, len(runes)*indicesPerQuad)
	positions := make([]math.Vec3, 0, len(runes)*verticesPerQuad)

	x, y := float32(0), float32(0)
	quads := uint32(0)
	for i, r := range runes {
		switch r {
		case '\n':
			x = 0
			y += float32(f.LineHeight)
			continue
		case '\t':
			x += f.TabXAdvance
			continue
		case utf8.RuneError:
			core.LogWarn("invalid UTF-8 in text %q, using the unknown glyph", name)
		}

		g, ok := f.Glyph(r)
		if !ok {
			core.LogWarn("font %q has no glyph for %q and no unknown glyph, skipping", f.Face, r)
			continue
		}

		kerning := 0
		if i+1 < len(runes) {
			kerning = f.Kerning(r, runes[i+1])
		}
		advance := float32(g.XAdvance + kerning)
		if g.Width == 0 || g.Height == 0 {
			x += advance
			continue
		}

		minx := x + float32(g.XOffset)
		miny := y + float32(g.YOffset)
		maxx := minx + float32(g.Width)
		maxy := miny + float32(g.Height)
		tminx := float32(g.X) / float32(f.AtlasWidth)
		tmaxx := float32(g.X+g.Width) / float32(f.AtlasWidth)
		tminy := float32(g.Y) / float32(f.AtlasHeight)
		tmaxy := float32(g.Y+g.Height) / float32(f.AtlasHeight)

		// 0 1
		// 3 2
		vertices = appendVertex(vertices, minx, miny, tminx, tminy)
		vertices = appendVertex(vertices, maxx, miny, tmaxx, tminy)
		vertices = appendVertex(vertices, maxx, maxy, tmaxx, tmaxy)
		vertices = appendVertex(vertices, minx, maxy, tminx, tmaxy)
		positions = append(positions,
			math.NewVec3(minx, miny, 0), math.NewVec3(maxx, miny, 0),
			math.NewVec3(maxx, maxy, 0), math.NewVec3(minx, maxy, 0))

		base := quads * verticesPerQuad
		indices = append(indices, base+3, base+2, base+0, base+1, base+0, base+2)
		quads++
		x += advance
	}

	if quads == 0 {
		return nil, fmt.Errorf("text %q has no drawable glyphs", name)
	}
	format := TextVertexFormat
	return &metadata.Mesh{
		Name:     name,
		Format:   &format,
		Vertices: vertices,
		Indices:  indices,
		Extents:  math.ExtentsFromPoints(positions),
		Radius:   math.BoundingRadius(positions),
	}, nil
}

// AddText lays s out and registers the mesh under name.
func AddText(models MeshAdder, name string, font *Font, s string, persist bool) (*metadata.Mesh, error) {
	mesh, err := font.Layout(name, s)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if err := models.AddMesh(name, mesh, persist); err != nil {
		return nil, err
	}
	return mesh, nil
}

func appendVertex(buf []byte, x, y, u, v float32) []byte {
	for _, f := range [4]float32{x, y, u, v} {
		buf = binary.LittleEndian.AppendUint32(buf, gomath.Float32bits(f))
	}
	return buf
}
