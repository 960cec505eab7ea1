package systems

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type ShaderBackend interface {
	CreateShader(config *metadata.ShaderProgramConfig) (metadata.ShaderHandle, error)
	DestroyShader(handle metadata.ShaderHandle) error
}

/** @brief The std140 layouts a shader reads, indexed like its uniform sets. */
type ShaderLayouts struct {
	Sets []*memory.UniformSetLayout
	// Per-object values pushed with every draw. Nil when the shader declares none.
	Push *memory.UniformSetLayout
}

type shaderEntry struct {
	shader  *metadata.Shader
	layouts ShaderLayouts
}

/**
 * @brief Registry of vertex formats and shader programs. Shader names are
 * interned; the draw index keys on the IDs.
 */
type ShaderSystem struct {
	shaders map[string]*shaderEntry
	byID    map[uint32]*shaderEntry
	ids     *core.Interner
	formats map[string]*metadata.VertexFormat

	memory  *memory.Manager
	backend ShaderBackend
	sources SourceLoader
}

func NewShaderSystem(backend ShaderBackend, mem *memory.Manager, sources SourceLoader) *ShaderSystem {
	return &ShaderSystem{
		shaders: make(map[string]*shaderEntry),
		byID:    make(map[uint32]*shaderEntry),
		ids:     core.NewInterner(),
		formats: make(map[string]*metadata.VertexFormat),
		memory:  mem,
		backend: backend,
		sources: sources,
	}
}

func (ss *ShaderSystem) AddVertexFormat(format metadata.VertexFormat) (*metadata.VertexFormat, error) {
	if err := format.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if _, exists := ss.formats[format.Name]; exists {
		return nil, fmt.Errorf("vertex format %q: %w", format.Name, core.ErrDuplicateName)
	}
	f := format
	ss.formats[f.Name] = &f
	return &f, nil
}

func (ss *ShaderSystem) VertexFormat(name string) (*metadata.VertexFormat, error) {
	f, ok := ss.formats[name]
	if !ok {
		return nil, fmt.Errorf("vertex format %q: %w", name, core.ErrNotFound)
	}
	return f, nil
}

/**
 * @brief Creates a shader program from its declaration. The vertex format and
 * every uniform set must already be registered.
 */
func (ss *ShaderSystem) Create(config *metadata.ShaderConfig) (*metadata.Shader, error) {
	if _, exists := ss.shaders[config.Name]; exists {
		err := fmt.Errorf("shader %q: %w", config.Name, core.ErrDuplicateName)
		core.LogError(err.Error())
		return nil, err
	}

	pass := metadata.RenderPassOpaque
	if config.RenderPass != "" {
		p, err := metadata.ParseRenderPass(config.RenderPass)
		if err != nil {
			return nil, fmt.Errorf("shader %q: %w", config.Name, err)
		}
		pass = p
	}

	format, err := ss.VertexFormat(config.VertexFormat)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", config.Name, err)
	}

	shader := &metadata.Shader{
		Name:        config.Name,
		Config:      config,
		Pass:        pass,
		Format:      format,
		ScreenSet:   -1,
		MaterialSet: -1,
		ObjectSet:   -1,
	}
	layouts := ShaderLayouts{Sets: make([]*memory.UniformSetLayout, len(config.UniformSets))}
	program := &metadata.ShaderProgramConfig{
		Name:          config.Name,
		Format:        format,
		PushConstants: config.PushConstants,
		Pass:          pass,
	}

	for i, setName := range config.UniformSets {
		layout, err := ss.memory.UniformSet(setName)
		if err != nil {
			return nil, fmt.Errorf("shader %q: %w", config.Name, err)
		}
		layouts.Sets[i] = layout
		program.UniformSets = append(program.UniformSets, layoutConfig(layout))

		if len(layout.Entries) == 0 && len(layout.Samplers) == 0 {
			continue
		}
		slot := &shader.ObjectSet
		switch layout.Scope {
		case metadata.ScopeScreen:
			slot = &shader.ScreenSet
		case metadata.ScopeMaterial:
			slot = &shader.MaterialSet
		}
		if *slot >= 0 {
			return nil, fmt.Errorf("shader %q: sets %q and %q both hold %s uniforms", config.Name, config.UniformSets[*slot], setName, layout.Scope)
		}
		*slot = i
	}

	if len(config.PushConstants) > 0 {
		push, err := memory.NewUniformSetLayout(metadata.UniformSetConfig{
			Name:     config.Name + "/push",
			Uniforms: config.PushConstants,
		})
		if err != nil {
			return nil, fmt.Errorf("shader %q push constants: %w", config.Name, err)
		}
		layouts.Push = push
	}

	if ss.sources != nil {
		if program.VertexSource, err = ss.loadSource(config.Name, config.VertexSource); err != nil {
			return nil, err
		}
		if program.FragmentSource, err = ss.loadSource(config.Name, config.FragmentSource); err != nil {
			return nil, err
		}
	}

	handle, err := ss.backend.CreateShader(program)
	if err != nil {
		core.LogError("failed to create shader %q: %s", config.Name, err)
		return nil, err
	}
	shader.Handle = handle
	shader.ID = ss.ids.Intern(config.Name)

	entry := &shaderEntry{shader: shader, layouts: layouts}
	ss.shaders[config.Name] = entry
	ss.byID[shader.ID] = entry
	core.LogDebug("shader %q created for the %s pass", config.Name, pass)
	return shader, nil
}

func (ss *ShaderSystem) loadSource(shaderName, path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	src, err := ss.sources.LoadSource(path)
	if err != nil {
		return nil, fmt.Errorf("shader %q: stage %s: %w", shaderName, path, err)
	}
	return src, nil
}

func (ss *ShaderSystem) Get(name string) (*metadata.Shader, error) {
	e, ok := ss.shaders[name]
	if !ok {
		return nil, fmt.Errorf("shader %q: %w", name, core.ErrNotFound)
	}
	return e.shader, nil
}

func (ss *ShaderSystem) ByID(id uint32) (*metadata.Shader, bool) {
	e, ok := ss.byID[id]
	if !ok {
		return nil, false
	}
	return e.shader, true
}

// Layouts returns the uniform layouts of a shader created by this system.
func (ss *ShaderSystem) Layouts(id uint32) (ShaderLayouts, bool) {
	e, ok := ss.byID[id]
	if !ok {
		return ShaderLayouts{}, false
	}
	return e.layouts, true
}

func (ss *ShaderSystem) Shutdown() error {
	for name, e := range ss.shaders {
		if err := ss.backend.DestroyShader(e.shader.Handle); err != nil {
			core.LogWarn("failed to destroy shader %q: %s", name, err)
		}
	}
	clear(ss.shaders)
	clear(ss.byID)
	return nil
}

func layoutConfig(layout *memory.UniformSetLayout) metadata.UniformSetConfig {
	cfg := metadata.UniformSetConfig{Name: layout.Name}
	for _, e := range layout.Entries {
		cfg.Uniforms = append(cfg.Uniforms, metadata.UniformDescriptor{Name: e.Name, Type: e.Type, Provider: e.Provider})
	}
	for _, s := range layout.Samplers {
		cfg.Uniforms = append(cfg.Uniforms, metadata.UniformDescriptor{Name: s, Type: metadata.ElementSampler})
	}
	return cfg
}
