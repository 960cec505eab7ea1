package loaders

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/** @brief A magic number marking a file as a prism binary mesh ("PMSH"). */
const MeshMagic uint32 = 0x48534d50

/** @brief The .pmesh format version written by WriteMesh. */
const MeshVersion uint16 = 1

// Larger sections are rejected before anything is allocated.
const maxMeshSection = 1 << 30

/**
 * @brief The fixed part of a .pmesh file. It is followed by the vertex format
 * (name, then per attribute a type and a name, each name prefixed by its u8
 * length), the vertex bytes and the u32 indices. Everything is little-endian.
 */
type meshHeader struct {
	Magic          uint32
	Version        uint16
	AttributeCount uint16
	VertexBytes    uint32
	IndexCount     uint32
	Min            [3]float32
	Max            [3]float32
	Radius         float32
}

// LoadMesh reads a .pmesh file.
func LoadMesh(path string) (*metadata.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mesh, err := ReadMesh(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mesh, nil
}

func ReadMesh(r io.Reader) (*metadata.Mesh, error) {
	var h meshHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read mesh header: %w", err)
	}
	if h.Magic != MeshMagic {
		return nil, fmt.Errorf("not a prism mesh (magic %#x)", h.Magic)
	}
	if h.Version != MeshVersion {
		return nil, fmt.Errorf("unsupported mesh version %d", h.Version)
	}
	if h.VertexBytes > maxMeshSection || uint64(h.IndexCount)*4 > maxMeshSection {
		return nil, errors.New("mesh sections too large")
	}

	format := &metadata.VertexFormat{}
	var err error
	if format.Name, err = readName(r); err != nil {
		return nil, fmt.Errorf("read vertex format: %w", err)
	}
	format.Attributes = make([]metadata.VertexAttribute, h.AttributeCount)
	for i := range format.Attributes {
		var t uint8
		if err := binary.Read(r, binary.LittleEndian, &t); err != nil {
			return nil, fmt.Errorf("read attribute %d: %w", i, err)
		}
		name, err := readName(r)
		if err != nil {
			return nil, fmt.Errorf("read attribute %d: %w", i, err)
		}
		format.Attributes[i] = metadata.VertexAttribute{Name: name, Type: metadata.ElementType(t)}
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	mesh := &metadata.Mesh{
		Format:   format,
		Vertices: make([]byte, h.VertexBytes),
		Indices:  make([]uint32, h.IndexCount),
		Extents: math.Extents3D{
			Min: math.NewVec3(h.Min[0], h.Min[1], h.Min[2]),
			Max: math.NewVec3(h.Max[0], h.Max[1], h.Max[2]),
		},
		Radius: h.Radius,
	}
	if _, err := io.ReadFull(r, mesh.Vertices); err != nil {
		return nil, fmt.Errorf("read vertices: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, mesh.Indices); err != nil {
		return nil, fmt.Errorf("read indices: %w", err)
	}
	if err := mesh.Validate(); err != nil {
		return nil, err
	}
	return mesh, nil
}

// WriteMesh encodes mesh in the .pmesh format.
func WriteMesh(w io.Writer, mesh *metadata.Mesh) error {
	if err := mesh.Validate(); err != nil {
		return err
	}
	h := meshHeader{
		Magic:          MeshMagic,
		Version:        MeshVersion,
		AttributeCount: uint16(len(mesh.Format.Attributes)),
		VertexBytes:    uint32(len(mesh.Vertices)),
		IndexCount:     mesh.IndexCount(),
		Min:            [3]float32{mesh.Extents.Min.X, mesh.Extents.Min.Y, mesh.Extents.Min.Z},
		Max:            [3]float32{mesh.Extents.Max.X, mesh.Extents.Max.Y, mesh.Extents.Max.Z},
		Radius:         mesh.Radius,
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return err
	}
	if err := writeName(w, mesh.Format.Name); err != nil {
		return err
	}
	for _, a := range mesh.Format.Attributes {
		if err := binary.Write(w, binary.LittleEndian, uint8(a.Type)); err != nil {
			return err
		}
		if err := writeName(w, a.Name); err != nil {
			return err
		}
	}
	if _, err := w.Write(mesh.Vertices); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, mesh.Indices)
}

func readName(r io.Reader) (string, error) {
	var n uint8
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeName(w io.Writer, name string) error {
	if len(name) > 255 {
		return fmt.Errorf("name %q longer than 255 bytes", name)
	}
	if _, err := w.Write([]byte{uint8(len(name))}); err != nil {
		return err
	}
	_, err := io.WriteString(w, name)
	return err
}
