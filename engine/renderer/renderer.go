package renderer

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/systems"
)

// Names of per-object values the renderer fills in itself.
const (
	ModelUniform     = "model"
	ModelViewUniform = "model_view"
	ColorUniform     = "color"
)

/** @brief Scratch blocks of one shader, built on first use. */
type program struct {
	shader  *metadata.Shader
	screen  *memory.Std140Aligner
	object  *memory.Std140Aligner
	push    *memory.Std140Aligner
	sampler []string
}

/**
 * @brief Tracks what is bound during one pass so repeated binds are skipped.
 */
type passState struct {
	shader   metadata.ShaderHandle
	vertex   metadata.BufferHandle
	format   *metadata.VertexFormat
	index    metadata.BufferHandle
	uniforms map[uint32]metadata.MemoryRange
	ubuffers map[uint32]metadata.BufferHandle
	textures map[uint32]metadata.TextureHandle
	blend    bool
}

func newPassState() *passState {
	return &passState{
		uniforms: make(map[uint32]metadata.MemoryRange),
		ubuffers: make(map[uint32]metadata.BufferHandle),
		textures: make(map[uint32]metadata.TextureHandle),
	}
}

/**
 * @brief The three-pass draw dispatcher. It walks the draw index of every
 * screen once per pass, binding each resource only when it changes.
 */
type Renderer struct {
	backend  Backend
	memory   *memory.Manager
	shaders  *systems.ShaderSystem
	textures *systems.TextureSystem
	models   *systems.ModelManager
	culler   *systems.Culler

	programs map[uint32]*program
	frame    uint64
	state    *passState
}

func New(backend Backend, mem *memory.Manager, sys *systems.SystemManager) *Renderer {
	return &Renderer{
		backend:  backend,
		memory:   mem,
		shaders:  sys.ShaderSystem,
		textures: sys.TextureSystem,
		models:   sys.ModelManager,
		culler:   sys.Culler,
		programs: make(map[uint32]*program),
	}
}

func (r *Renderer) Backend() Backend {
	return r.backend
}

// Frame returns the index of the last frame begun.
func (r *Renderer) Frame() uint64 {
	return r.frame
}

func (r *Renderer) OnResized(width, height uint32, screens ...*Screen) error {
	if err := r.backend.Resized(width, height); err != nil {
		return err
	}
	extent := metadata.Extent{Width: width, Height: height}
	for _, s := range screens {
		if err := s.Resize(r.backend, extent); err != nil {
			return err
		}
	}
	return nil
}

/**
 * @brief Draws one frame: every screen is culled and submitted in the
 * opaque, transparent and translucent passes, then the frame is presented.
 * A screen whose submission loses the backend is abandoned and the next
 * screen is drawn. Scheduled mesh frees run once the frame is presented,
 * or once presenting it fails.
 */
func (r *Renderer) DrawFrame(ctx context.Context, screens []*Screen) error {
	frame, err := r.backend.BeginFrame()
	if err != nil {
		core.LogError("failed to begin frame: %s", err)
		return err
	}
	r.frame = frame
	r.memory.BeginFrame(frame)

	for _, s := range screens {
		if err := r.DrawScreen(ctx, s); err != nil {
			if errors.Is(err, core.ErrBackendLost) {
				core.LogError("screen %q: frame %d abandoned: %s", s.Name, frame, err)
				// the next screen must not test against a partial depth buffer
				if err := r.backend.ClearDepthStencil(); err != nil {
					core.LogError("screen %q: failed to clear depth: %s", s.Name, err)
				}
				continue
			}
			return err
		}
	}

	if err := r.backend.Present(); err != nil {
		core.LogError("failed to present frame %d: %s", frame, err)
		return errors.Join(err, r.models.EndFrame())
	}
	return r.models.EndFrame()
}

// DrawScreen culls and submits one screen within the current frame.
func (r *Renderer) DrawScreen(ctx context.Context, s *Screen) error {
	if err := r.culler.Cull(ctx, s.Camera, s.Components.Components()); err != nil {
		return err
	}
	view := s.Camera.GetView()
	for _, pass := range metadata.RenderPasses {
		if err := r.drawPass(pass, s, view); err != nil {
			return err
		}
	}
	return r.backend.ClearDepthStencil()
}

func (r *Renderer) drawPass(pass metadata.RenderPassType, s *Screen, view math.Mat4) (err error) {
	r.state = newPassState()
	defer func() {
		if !r.state.blend {
			return
		}
		if blendErr := r.backend.SetBlendEnabled(false); err == nil {
			err = blendErr
		}
	}()

	for vbID, shaderGroups := range s.Components.Index() {
		for shaderID, materialGroups := range shaderGroups {
			shader, ok := r.shaders.ByID(shaderID)
			if !ok {
				return fmt.Errorf("draw index names unknown shader %d: %w", shaderID, core.ErrInternal)
			}
			if shader.Pass != pass {
				continue
			}
			prog, err := r.program(shader)
			if err != nil {
				return err
			}
			// shaders of one buffer group may read it with different formats
			shaderBound, bufferBound, screenSetBound := false, false, false

			for materialID, set := range materialGroups {
				material, ok := r.models.MaterialByID(materialID)
				if !ok {
					return fmt.Errorf("draw index names unknown material %d: %w", materialID, core.ErrInternal)
				}
				materialBound := false

				for _, c := range set.Items() {
					if !c.Visible {
						continue
					}
					mesh := c.Model.Mesh
					if mesh == nil || !mesh.Resident {
						return fmt.Errorf("component %s: mesh %q is not resident: %w", c.ID, c.Model.MeshName, core.ErrInternal)
					}
					if !shaderBound {
						if err := r.useShader(shader.Handle); err != nil {
							return err
						}
						shaderBound = true
					}
					if !bufferBound {
						if err := r.bindVertexBuffer(vbID, shader.Format); err != nil {
							return err
						}
						bufferBound = true
					}
					if err := r.bindIndexBuffer(mesh); err != nil {
						return err
					}
					if pass == metadata.RenderPassTranslucent && !r.state.blend {
						if err := r.backend.SetBlendEnabled(true); err != nil {
							return err
						}
						r.state.blend = true
					}
					if shader.HasScreenSet() && !screenSetBound {
						if err := r.bindScreenUniforms(prog, s, view); err != nil {
							return err
						}
						screenSetBound = true
					}
					if !materialBound {
						if err := r.bindMaterial(prog, material); err != nil {
							return err
						}
						materialBound = true
					}
					if err := r.setObjectUniforms(prog, c, view); err != nil {
						return err
					}
					if err := r.backend.DrawIndexed(mesh.IndexCount(), mesh.IndexOffset); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (r *Renderer) program(shader *metadata.Shader) (*program, error) {
	if p, ok := r.programs[shader.ID]; ok {
		return p, nil
	}
	layouts, ok := r.shaders.Layouts(shader.ID)
	if !ok {
		return nil, fmt.Errorf("shader %q has no layouts: %w", shader.Name, core.ErrInternal)
	}
	p := &program{shader: shader}
	if shader.ScreenSet >= 0 {
		p.screen = layouts.Sets[shader.ScreenSet].NewAligner()
	}
	if shader.ObjectSet >= 0 {
		p.object = layouts.Sets[shader.ObjectSet].NewAligner()
	}
	if shader.MaterialSet >= 0 {
		p.sampler = layouts.Sets[shader.MaterialSet].Samplers
	}
	if layouts.Push != nil {
		p.push = layouts.Push.NewAligner()
	}
	r.programs[shader.ID] = p
	return p, nil
}

func (r *Renderer) useShader(handle metadata.ShaderHandle) error {
	if r.state.shader == handle {
		return nil
	}
	if err := r.backend.UseShader(handle); err != nil {
		return err
	}
	r.state.shader = handle
	return nil
}

func (r *Renderer) bindVertexBuffer(vbID uint32, format *metadata.VertexFormat) error {
	b, ok := r.memory.BufferByID(vbID)
	if !ok {
		return fmt.Errorf("draw index names unknown vertex buffer %d: %w", vbID, core.ErrInternal)
	}
	if r.state.vertex == b.Handle && r.state.format == format {
		return nil
	}
	if err := r.backend.BindVertexBuffer(b.Handle, format); err != nil {
		return err
	}
	r.state.vertex, r.state.format = b.Handle, format
	return nil
}

func (r *Renderer) bindIndexBuffer(mesh *metadata.Mesh) error {
	b, err := r.memory.Buffer(mesh.IndexBufferName())
	if err != nil {
		return fmt.Errorf("mesh %q: %w", mesh.Name, core.ErrInternal)
	}
	if r.state.index == b.Handle {
		return nil
	}
	if err := r.backend.BindIndexBuffer(b.Handle); err != nil {
		return err
	}
	r.state.index = b.Handle
	return nil
}

func (r *Renderer) bindUniformRange(set uint32, handle metadata.BufferHandle, rng metadata.MemoryRange) error {
	if h, ok := r.state.ubuffers[set]; ok && h == handle && r.state.uniforms[set] == rng {
		return nil
	}
	if err := r.backend.BindUniformRange(set, handle, rng.Offset, rng.Size); err != nil {
		return err
	}
	r.state.ubuffers[set] = handle
	r.state.uniforms[set] = rng
	return nil
}

func (r *Renderer) bindTexture(unit uint32, handle metadata.TextureHandle) error {
	if h, ok := r.state.textures[unit]; ok && h == handle {
		return nil
	}
	if err := r.backend.BindTexture(unit, handle); err != nil {
		return err
	}
	r.state.textures[unit] = handle
	return nil
}

// bindScreenUniforms writes the screen block into the per-frame ring and binds it.
func (r *Renderer) bindScreenUniforms(p *program, s *Screen, view math.Mat4) error {
	a := p.screen
	a.Clear()
	for _, e := range a.Layout().Entries {
		var value any
		switch e.Provider {
		case metadata.ProviderView:
			value = view
		case metadata.ProviderProjection:
			value = s.Camera.Projection()
		default:
			v, ok := s.Uniforms[e.Name]
			if !ok {
				continue
			}
			value = v
		}
		if err := a.Set(e.Name, value); err != nil {
			return fmt.Errorf("screen %q: %w", s.Name, err)
		}
	}
	offset, err := r.memory.WritePerFrameUniforms(a, r.frame)
	if err != nil {
		return err
	}
	ring := r.memory.UniformBuffer(memory.UniformBufferScreenObject)
	return r.bindUniformRange(uint32(p.shader.ScreenSet), ring.Handle, metadata.MemoryRange{Offset: offset, Size: a.Layout().Size})
}

// bindMaterial binds the material's uniform range and its textures by sampler index.
// Samplers without a texture get the default texture.
func (r *Renderer) bindMaterial(p *program, material *metadata.Material) error {
	if material.HasUniforms && p.shader.MaterialSet >= 0 {
		buffer := r.memory.UniformBuffer(memory.UniformBufferMaterial)
		rng := metadata.MemoryRange{Offset: material.UniformOffset, Size: uint64(len(material.Uniforms))}
		if err := r.bindUniformRange(uint32(p.shader.MaterialSet), buffer.Handle, rng); err != nil {
			return err
		}
	}
	units := max(len(p.sampler), len(material.Textures))
	for unit := 0; unit < units; unit++ {
		texture := r.textures.DefaultTexture
		if unit < len(material.Textures) {
			texture = material.Textures[unit]
		}
		if err := r.bindTexture(uint32(unit), texture.Handle); err != nil {
			return err
		}
	}
	return nil
}

// setObjectUniforms pushes the per-object values and, for shaders with an
// object uniform set, writes that block into the per-frame ring.
func (r *Renderer) setObjectUniforms(p *program, c *components.RenderComponent, view math.Mat4) error {
	if p.push != nil {
		if err := fillObject(p.push, c, view); err != nil {
			return err
		}
		if err := r.backend.PushConstants(p.shader.Handle, p.push.Bytes()); err != nil {
			return err
		}
	}
	if p.object == nil {
		return nil
	}
	if err := fillObject(p.object, c, view); err != nil {
		return err
	}
	offset, err := r.memory.WritePerFrameUniforms(p.object, r.frame)
	if err != nil {
		return err
	}
	ring := r.memory.UniformBuffer(memory.UniformBufferScreenObject)
	return r.bindUniformRange(uint32(p.shader.ObjectSet), ring.Handle, metadata.MemoryRange{Offset: offset, Size: p.object.Layout().Size})
}

func fillObject(a *memory.Std140Aligner, c *components.RenderComponent, view math.Mat4) error {
	a.Clear()
	var world math.Mat4
	haveWorld := false
	for _, e := range a.Layout().Entries {
		var value any
		switch e.Provider {
		case metadata.ProviderTransform:
			if !haveWorld {
				world, haveWorld = c.Transform.GetWorld(), true
			}
			if e.Name == ModelViewUniform {
				value = world.Mul(view)
			} else {
				value = world
			}
		case metadata.ProviderObject:
			if e.Name == ColorUniform {
				value = c.Color
				break
			}
			fallthrough
		case metadata.ProviderObjectState:
			v, ok := c.State[e.Name]
			if !ok {
				continue
			}
			value = v
		default:
			continue
		}
		if err := a.Set(e.Name, value); err != nil {
			return fmt.Errorf("component %s: %w", c.ID, err)
		}
	}
	return nil
}

func (r *Renderer) Shutdown() error {
	clear(r.programs)
	return r.backend.Shutdown()
}
