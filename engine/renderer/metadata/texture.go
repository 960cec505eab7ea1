package metadata

/** @brief The name of the default texture. */
const DefaultTextureName string = "default"

type Texture struct {
	ID     uint32
	Name   string
	Width  uint32
	Height uint32
	/** @brief Indicates whether any pixel is not fully opaque. */
	HasTransparency bool
	Handle          TextureHandle
}
