package assets

import (
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/prism/engine/assets/loaders"
)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeShader
	AssetTypeShaderSource
	AssetTypeMaterial
	AssetTypeMesh
	AssetTypeImage
	AssetTypeBitmapFont
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeShader:
		return "shader"
	case AssetTypeShaderSource:
		return "shader source"
	case AssetTypeMaterial:
		return "material"
	case AssetTypeMesh:
		return "mesh"
	case AssetTypeImage:
		return "image"
	case AssetTypeBitmapFont:
		return "bitmap font"
	}
	return "none"
}

/** @brief Extension of binary mesh files. */
const MeshExtension = ".pmesh"

func determineAssetType(path string) AssetType {
	if loaders.IsShaderConfig(path) {
		return AssetTypeShader
	}
	if loaders.IsImage(path) {
		return AssetTypeImage
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".glsl", ".vert", ".frag", ".spv":
		return AssetTypeShaderSource
	case loaders.MaterialExtension:
		return AssetTypeMaterial
	case MeshExtension:
		return AssetTypeMesh
	case loaders.BitmapFontExtension:
		return AssetTypeBitmapFont
	}
	return AssetTypeNone
}
