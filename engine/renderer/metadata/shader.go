package metadata

import (
	"fmt"
	"strings"
)

/** @brief The type of a vertex attribute, uniform or push constant. */
type ElementType uint8

const (
	ElementFloat ElementType = iota
	ElementVec2
	ElementVec3
	ElementVec4
	ElementMat3
	ElementMat4
	ElementUint32
	ElementSampler
)

var elementNames = map[ElementType]string{
	ElementFloat:   "float",
	ElementVec2:    "vec2",
	ElementVec3:    "vec3",
	ElementVec4:    "vec4",
	ElementMat3:    "mat3",
	ElementMat4:    "mat4",
	ElementUint32:  "uint32",
	ElementSampler: "sampler",
}

func (e ElementType) String() string {
	if n, ok := elementNames[e]; ok {
		return n
	}
	return fmt.Sprintf("element(%d)", uint8(e))
}

// Size returns the tightly packed size of the element in bytes. Samplers occupy no storage.
func (e ElementType) Size() uint64 {
	switch e {
	case ElementFloat, ElementUint32:
		return 4
	case ElementVec2:
		return 8
	case ElementVec3:
		return 12
	case ElementVec4:
		return 16
	case ElementMat3:
		return 36
	case ElementMat4:
		return 64
	}
	return 0
}

func ParseElementType(s string) (ElementType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, n := range elementNames {
		if n == s {
			return t, nil
		}
	}
	if s == "u32" || s == "uint" {
		return ElementUint32, nil
	}
	return ElementFloat, fmt.Errorf("unknown element type %q", s)
}

// MarshalText lets element types appear by name in TOML declarations.
func (e ElementType) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *ElementType) UnmarshalText(text []byte) error {
	t, err := ParseElementType(string(text))
	if err != nil {
		return err
	}
	*e = t
	return nil
}

type VertexAttribute struct {
	Name string      `toml:"name"`
	Type ElementType `toml:"type"`
}

/**
 * @brief An ordered list of vertex attributes. Attributes are tightly
 * packed: each takes its natural size with no padding in between.
 */
type VertexFormat struct {
	Name       string            `toml:"name"`
	Attributes []VertexAttribute `toml:"attributes"`
}

// Stride returns the size of one vertex in bytes.
func (f *VertexFormat) Stride() uint64 {
	var stride uint64
	for _, a := range f.Attributes {
		stride += a.Type.Size()
	}
	return stride
}

// Offsets returns the byte offset of every attribute within a vertex.
func (f *VertexFormat) Offsets() []uint64 {
	offsets := make([]uint64, len(f.Attributes))
	var cursor uint64
	for i, a := range f.Attributes {
		offsets[i] = cursor
		cursor += a.Type.Size()
	}
	return offsets
}

func (f *VertexFormat) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("vertex format has no name")
	}
	if len(f.Attributes) == 0 {
		return fmt.Errorf("vertex format %q has no attributes", f.Name)
	}
	for _, a := range f.Attributes {
		switch a.Type {
		case ElementFloat, ElementVec2, ElementVec3, ElementVec4, ElementUint32:
		default:
			return fmt.Errorf("vertex format %q: attribute %q has unsupported type %s", f.Name, a.Name, a.Type)
		}
	}
	return nil
}

/** @brief Who supplies the value of a uniform at draw time. */
type UniformProvider uint8

const (
	ProviderScreen UniformProvider = iota
	ProviderMaterial
	ProviderObject
	ProviderObjectState
	ProviderTransform
	ProviderView
	ProviderProjection
)

var providerNames = map[UniformProvider]string{
	ProviderScreen:      "screen",
	ProviderMaterial:    "material",
	ProviderObject:      "object",
	ProviderObjectState: "object-state",
	ProviderTransform:   "transform",
	ProviderView:        "view",
	ProviderProjection:  "projection",
}

func (p UniformProvider) String() string {
	if n, ok := providerNames[p]; ok {
		return n
	}
	return fmt.Sprintf("provider(%d)", uint8(p))
}

func ParseUniformProvider(s string) (UniformProvider, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, n := range providerNames {
		if n == s {
			return p, nil
		}
	}
	return ProviderScreen, fmt.Errorf("unknown uniform provider %q", s)
}

func (p UniformProvider) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *UniformProvider) UnmarshalText(text []byte) error {
	v, err := ParseUniformProvider(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

/** @brief How often the values of a uniform set change. */
type UniformScope uint8

const (
	ScopeScreen UniformScope = iota
	ScopeMaterial
	ScopeObject
)

func (p UniformProvider) Scope() UniformScope {
	switch p {
	case ProviderMaterial:
		return ScopeMaterial
	case ProviderObject, ProviderObjectState, ProviderTransform:
		return ScopeObject
	}
	return ScopeScreen
}

func (s UniformScope) String() string {
	switch s {
	case ScopeScreen:
		return "screen"
	case ScopeMaterial:
		return "material"
	case ScopeObject:
		return "object"
	}
	return fmt.Sprintf("scope(%d)", uint8(s))
}

type UniformDescriptor struct {
	Name     string          `toml:"name"`
	Type     ElementType     `toml:"type"`
	Provider UniformProvider `toml:"provider"`
}

/** @brief An ordered uniform-set layout, declared once at startup. */
type UniformSetConfig struct {
	Name     string              `toml:"name"`
	Uniforms []UniformDescriptor `toml:"uniforms"`
}

/**
 * @brief Shader declaration as loaded from a *.shader.toml file.
 */
type ShaderConfig struct {
	Name string `toml:"name"`
	/** @brief Path of the vertex stage source, relative to the asset root. */
	VertexSource string `toml:"vertex"`
	/** @brief Path of the fragment stage source, relative to the asset root. */
	FragmentSource string `toml:"fragment"`
	/** @brief Uniform set names; the position in the list is the set index. */
	UniformSets  []string `toml:"uniform_sets"`
	RenderPass   string   `toml:"render_pass"`
	VertexFormat string   `toml:"vertex_format"`
	/** @brief Per-object values pushed before every draw. */
	PushConstants []UniformDescriptor `toml:"push_constants"`
}

/**
 * @brief A created shader program.
 */
type Shader struct {
	/** @brief Interned identifier, stable for the life of the shader system. */
	ID     uint32
	Name   string
	Config *ShaderConfig
	Pass   RenderPassType
	Format *VertexFormat
	Handle ShaderHandle
	/** @brief Index of the set carrying screen-scope values, -1 if none. */
	ScreenSet int
	/** @brief Index of the set carrying material values, -1 if none. */
	MaterialSet int
	/** @brief Index of the set carrying per-object values, -1 if none. */
	ObjectSet int
}

// HasScreenSet reports whether the shader reads per-screen uniforms.
func (s *Shader) HasScreenSet() bool {
	return s.ScreenSet >= 0
}

/**
 * @brief Everything a backend needs to build a shader program.
 */
type ShaderProgramConfig struct {
	Name           string
	VertexSource   []byte
	FragmentSource []byte
	Format         *VertexFormat
	UniformSets    []UniformSetConfig
	PushConstants  []UniformDescriptor
	Pass           RenderPassType
}
