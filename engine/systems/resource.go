package systems

import (
	"image"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// MeshLoader parses a mesh source (a file below the asset root) into memory.
type MeshLoader interface {
	LoadMesh(path string) (*metadata.Mesh, error)
}

// ImageLoader decodes a named image into RGBA pixels.
type ImageLoader interface {
	LoadImage(name string) (*image.RGBA, error)
}

// SourceLoader reads shader stage sources.
type SourceLoader interface {
	LoadSource(path string) ([]byte, error)
}

/**
 * @brief Every loader the systems consume; the asset manager implements all of them.
 */
type ResourceLoader interface {
	MeshLoader
	ImageLoader
	SourceLoader
}
