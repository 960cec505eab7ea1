package metadata

/** @brief The name of the default material. */
const DefaultMaterialName string = "default"

/**
 * @brief Material layout, typically loaded from a .pmt file
 * or created in code.
 */
type MaterialConfig struct {
	Name string
	/** @brief The shader the material draws with. */
	ShaderName string
	/** @brief The uniform set holding the material's values. Empty for none. */
	UniformSetName string
	/** @brief Texture names in binding order. */
	Textures []string
	/** @brief When set, components using the material are frustum culled. */
	ViewCull bool
	/** @brief Uniform values keyed by uniform name. */
	Values map[string]any
}

type Material struct {
	ID             uint32
	Name           string
	ShaderName     string
	Shader         *Shader
	UniformSetName string
	/** @brief std140-aligned uniform bytes as last uploaded. */
	Uniforms []byte
	/** @brief Offset of the uniform bytes in the material uniform buffer. */
	UniformOffset uint64
	HasUniforms   bool
	TextureNames  []string
	Textures      []*Texture
	ViewCull      bool
	Values        map[string]any
	/** @brief Number of live models using the material. Materials are never deleted. */
	RefCount int
}
