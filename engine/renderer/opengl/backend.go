package opengl

import (
	"fmt"
	"image"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// PushConstantsBlock is the uniform block name that receives push constants.
const PushConstantsBlock = "PushConstants"

type buffer struct {
	id   uint32
	size uint64
}

type program struct {
	id uint32
	// per-shader uniform buffer standing in for push constants
	push        uint32
	pushSize    uint64
	pushBinding uint32
}

/**
 * @brief OpenGL 4.1 core backend. Uniform sets are uniform blocks bound at
 * the binding point equal to their set index; push constants are emulated
 * with one small uniform buffer per shader bound after the last set.
 */
type Backend struct {
	swap  func()
	vao   uint32
	frame uint64

	nextHandle  uint32
	buffers     map[metadata.BufferHandle]*buffer
	textures    map[metadata.TextureHandle]uint32
	programs    map[metadata.ShaderHandle]*program
	attachments map[metadata.AttachmentHandle]metadata.Extent
}

// New initializes the GL function pointers. The window's context must be current;
// swap presents the back buffer.
func New(swap func()) (*Backend, error) {
	if err := gl.Init(); err != nil {
		core.LogError("failed to initialize OpenGL: %s", err)
		return nil, err
	}
	core.LogInfo("OpenGL version %s", gl.GoStr(gl.GetString(gl.VERSION)))

	b := &Backend{
		swap:        swap,
		buffers:     make(map[metadata.BufferHandle]*buffer),
		textures:    make(map[metadata.TextureHandle]uint32),
		programs:    make(map[metadata.ShaderHandle]*program),
		attachments: make(map[metadata.AttachmentHandle]metadata.Extent),
	}
	gl.GenVertexArrays(1, &b.vao)
	gl.BindVertexArray(b.vao)
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.ClearColor(0, 0, 0.2, 1)
	return b, nil
}

func (b *Backend) handle() uint32 {
	b.nextHandle++
	return b.nextHandle
}

func (b *Backend) MinUniformAlignment() uint64 {
	var alignment int32
	gl.GetIntegerv(gl.UNIFORM_BUFFER_OFFSET_ALIGNMENT, &alignment)
	return uint64(max(alignment, 1))
}

func (b *Backend) Resized(width, height uint32) error {
	gl.Viewport(0, 0, int32(width), int32(height))
	return nil
}

func (b *Backend) CreateBuffer(usage metadata.RenderBufferUsage, storage metadata.RenderBufferStorage, size uint64) (metadata.BufferHandle, error) {
	buf := &buffer{size: size}
	gl.GenBuffers(1, &buf.id)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, buf.id)
	hint := uint32(gl.STATIC_DRAW)
	if usage == metadata.BufferUsageUniform {
		hint = gl.DYNAMIC_DRAW
	}
	gl.BufferData(gl.COPY_WRITE_BUFFER, int(size), nil, hint)
	if err := check("create buffer"); err != nil {
		gl.DeleteBuffers(1, &buf.id)
		return metadata.InvalidHandle, err
	}
	handle := metadata.BufferHandle(b.handle())
	b.buffers[handle] = buf
	core.LogDebug("gl buffer %d created (%s, %s, %d bytes)", buf.id, usage, storage, size)
	return handle, nil
}

func (b *Backend) WriteBuffer(handle metadata.BufferHandle, offset uint64, data []byte) error {
	buf, err := b.buffer(handle)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("opengl: write [%d, +%d) outside buffer %d: %w", offset, len(data), handle, core.ErrInternal)
	}
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, buf.id)
	gl.BufferSubData(gl.COPY_WRITE_BUFFER, int(offset), len(data), gl.Ptr(data))
	return check("write buffer")
}

func (b *Backend) ReadBuffer(handle metadata.BufferHandle, offset, size uint64) ([]byte, error) {
	buf, err := b.buffer(handle)
	if err != nil {
		return nil, err
	}
	if offset+size > buf.size {
		return nil, fmt.Errorf("opengl: read [%d, +%d) outside buffer %d: %w", offset, size, handle, core.ErrInternal)
	}
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, buf.id)
	gl.GetBufferSubData(gl.COPY_READ_BUFFER, int(offset), int(size), gl.Ptr(out))
	return out, check("read buffer")
}

func (b *Backend) DestroyBuffer(handle metadata.BufferHandle) error {
	buf, err := b.buffer(handle)
	if err != nil {
		return err
	}
	gl.DeleteBuffers(1, &buf.id)
	delete(b.buffers, handle)
	return nil
}

func (b *Backend) CreateTexture(name string, img *image.RGBA) (metadata.TextureHandle, error) {
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	size := img.Rect.Size()
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(size.X), int32(size.Y), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.GenerateMipmap(gl.TEXTURE_2D)
	if err := check("create texture " + name); err != nil {
		gl.DeleteTextures(1, &id)
		return metadata.InvalidHandle, err
	}
	handle := metadata.TextureHandle(b.handle())
	b.textures[handle] = id
	return handle, nil
}

func (b *Backend) DestroyTexture(handle metadata.TextureHandle) error {
	id, ok := b.textures[handle]
	if !ok {
		return fmt.Errorf("opengl: texture %d: %w", handle, core.ErrNotFound)
	}
	gl.DeleteTextures(1, &id)
	delete(b.textures, handle)
	return nil
}

/**
 * @brief Compiles and links a program. Uniform blocks named after the
 * uniform sets get the binding of their set index, samplers get texture
 * units in declaration order.
 */
func (b *Backend) CreateShader(config *metadata.ShaderProgramConfig) (metadata.ShaderHandle, error) {
	vs, err := compile(config.Name, string(config.VertexSource), gl.VERTEX_SHADER)
	if err != nil {
		return metadata.InvalidHandle, err
	}
	fs, err := compile(config.Name, string(config.FragmentSource), gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vs)
		return metadata.InvalidHandle, err
	}
	id, err := link(config.Name, vs, fs)
	if err != nil {
		return metadata.InvalidHandle, err
	}

	p := &program{id: id, pushBinding: uint32(len(config.UniformSets))}
	gl.UseProgram(id)
	unit := int32(0)
	for set, u := range config.UniformSets {
		if index := gl.GetUniformBlockIndex(id, gl.Str(u.Name+"\x00")); index != gl.INVALID_INDEX {
			gl.UniformBlockBinding(id, index, uint32(set))
		}
		for _, d := range u.Uniforms {
			if d.Type != metadata.ElementSampler {
				continue
			}
			if loc := gl.GetUniformLocation(id, gl.Str(d.Name+"\x00")); loc >= 0 {
				gl.Uniform1i(loc, unit)
			}
			unit++
		}
	}
	if len(config.PushConstants) > 0 {
		if index := gl.GetUniformBlockIndex(id, gl.Str(PushConstantsBlock+"\x00")); index != gl.INVALID_INDEX {
			gl.UniformBlockBinding(id, index, p.pushBinding)
			var size int32
			gl.GetActiveUniformBlockiv(id, index, gl.UNIFORM_BLOCK_DATA_SIZE, &size)
			p.pushSize = uint64(size)
			gl.GenBuffers(1, &p.push)
			gl.BindBuffer(gl.UNIFORM_BUFFER, p.push)
			gl.BufferData(gl.UNIFORM_BUFFER, int(size), nil, gl.STREAM_DRAW)
		}
	}
	gl.UseProgram(0)
	if err := check("create shader " + config.Name); err != nil {
		gl.DeleteProgram(id)
		return metadata.InvalidHandle, err
	}

	handle := metadata.ShaderHandle(b.handle())
	b.programs[handle] = p
	core.LogDebug("gl program %d linked for shader %q", id, config.Name)
	return handle, nil
}

func (b *Backend) DestroyShader(handle metadata.ShaderHandle) error {
	p, ok := b.programs[handle]
	if !ok {
		return fmt.Errorf("opengl: shader %d: %w", handle, core.ErrNotFound)
	}
	if p.push != 0 {
		gl.DeleteBuffers(1, &p.push)
	}
	gl.DeleteProgram(p.id)
	delete(b.programs, handle)
	return nil
}

// CreateDepthAttachment sizes the viewport. Screens share the depth and stencil of the default framebuffer.
func (b *Backend) CreateDepthAttachment(extent metadata.Extent) (metadata.AttachmentHandle, error) {
	gl.Viewport(0, 0, int32(extent.Width), int32(extent.Height))
	handle := metadata.AttachmentHandle(b.handle())
	b.attachments[handle] = extent
	return handle, nil
}

func (b *Backend) BeginFrame() (uint64, error) {
	gl.DepthMask(true)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT | gl.STENCIL_BUFFER_BIT)
	frame := b.frame
	b.frame++
	return frame, check("begin frame")
}

func (b *Backend) UseShader(handle metadata.ShaderHandle) error {
	p, ok := b.programs[handle]
	if !ok {
		return fmt.Errorf("opengl: shader %d: %w", handle, core.ErrNotFound)
	}
	gl.UseProgram(p.id)
	return nil
}

// BindVertexBuffer points attribute i at the i-th attribute of format.
func (b *Backend) BindVertexBuffer(handle metadata.BufferHandle, format *metadata.VertexFormat) error {
	buf, err := b.buffer(handle)
	if err != nil {
		return err
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, buf.id)
	stride := int32(format.Stride())
	for i, offset := range format.Offsets() {
		location := uint32(i)
		t := format.Attributes[i].Type
		gl.EnableVertexAttribArray(location)
		if t == metadata.ElementUint32 {
			gl.VertexAttribIPointerWithOffset(location, 1, gl.UNSIGNED_INT, stride, uintptr(offset))
			continue
		}
		gl.VertexAttribPointerWithOffset(location, int32(t.Size()/4), gl.FLOAT, false, stride, uintptr(offset))
	}
	return nil
}

func (b *Backend) BindIndexBuffer(handle metadata.BufferHandle) error {
	buf, err := b.buffer(handle)
	if err != nil {
		return err
	}
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, buf.id)
	return nil
}

func (b *Backend) BindUniformRange(set uint32, handle metadata.BufferHandle, offset, size uint64) error {
	buf, err := b.buffer(handle)
	if err != nil {
		return err
	}
	gl.BindBufferRange(gl.UNIFORM_BUFFER, set, buf.id, int(offset), int(size))
	return nil
}

func (b *Backend) BindTexture(unit uint32, handle metadata.TextureHandle) error {
	id, ok := b.textures[handle]
	if !ok {
		return fmt.Errorf("opengl: texture %d: %w", handle, core.ErrNotFound)
	}
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gl.TEXTURE_2D, id)
	return nil
}

func (b *Backend) PushConstants(shader metadata.ShaderHandle, data []byte) error {
	p, ok := b.programs[shader]
	if !ok {
		return fmt.Errorf("opengl: shader %d: %w", shader, core.ErrNotFound)
	}
	if p.push == 0 || len(data) == 0 {
		return nil
	}
	n := min(uint64(len(data)), p.pushSize)
	gl.BindBuffer(gl.UNIFORM_BUFFER, p.push)
	gl.BufferSubData(gl.UNIFORM_BUFFER, 0, int(n), gl.Ptr(data))
	gl.BindBufferBase(gl.UNIFORM_BUFFER, p.pushBinding, p.push)
	return nil
}

func (b *Backend) DrawIndexed(count uint32, offset uint64) error {
	gl.DrawElementsWithOffset(gl.TRIANGLES, int32(count), gl.UNSIGNED_INT, uintptr(offset))
	return check("draw")
}

func (b *Backend) SetBlendEnabled(enabled bool) error {
	if enabled {
		gl.Enable(gl.BLEND)
		gl.DepthMask(false)
	} else {
		gl.Disable(gl.BLEND)
		gl.DepthMask(true)
	}
	return nil
}

func (b *Backend) ClearDepthStencil() error {
	gl.DepthMask(true)
	gl.Clear(gl.DEPTH_BUFFER_BIT | gl.STENCIL_BUFFER_BIT)
	return nil
}

func (b *Backend) Present() error {
	if b.swap != nil {
		b.swap()
	}
	return check("present")
}

func (b *Backend) Shutdown() error {
	for h := range b.programs {
		_ = b.DestroyShader(h)
	}
	for h := range b.textures {
		_ = b.DestroyTexture(h)
	}
	for h := range b.buffers {
		_ = b.DestroyBuffer(h)
	}
	gl.DeleteVertexArrays(1, &b.vao)
	core.LogDebug("OpenGL backend shut down")
	return nil
}

func (b *Backend) buffer(handle metadata.BufferHandle) (*buffer, error) {
	buf, ok := b.buffers[handle]
	if !ok {
		return nil, fmt.Errorf("opengl: buffer %d: %w", handle, core.ErrNotFound)
	}
	return buf, nil
}

// check maps the pending GL error, if any, to an error kind.
func check(op string) error {
	switch code := gl.GetError(); code {
	case gl.NO_ERROR:
		return nil
	case gl.OUT_OF_MEMORY:
		return fmt.Errorf("opengl: %s: %w", op, core.ErrOutOfMemory)
	default:
		return fmt.Errorf("opengl: %s: gl error 0x%x: %w", op, code, core.ErrInternal)
	}
}

func compile(name, source string, kind uint32) (uint32, error) {
	shader := gl.CreateShader(kind)
	sources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, sources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var length int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &length)
		log := strings.Repeat("\x00", int(length+1))
		gl.GetShaderInfoLog(shader, length, nil, gl.Str(log))
		gl.DeleteShader(shader)
		err := fmt.Errorf("shader %q: failed to compile: %s: %w", name, strings.TrimRight(log, "\x00"), core.ErrInternal)
		core.LogError(err.Error())
		return 0, err
	}
	return shader, nil
}

func link(name string, vs, fs uint32) (uint32, error) {
	id := gl.CreateProgram()
	gl.AttachShader(id, vs)
	gl.AttachShader(id, fs)
	gl.LinkProgram(id)
	gl.DetachShader(id, vs)
	gl.DetachShader(id, fs)
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)

	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var length int32
		gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &length)
		log := strings.Repeat("\x00", int(length+1))
		gl.GetProgramInfoLog(id, length, nil, gl.Str(log))
		gl.DeleteProgram(id)
		err := fmt.Errorf("shader %q: failed to link: %s: %w", name, strings.TrimRight(log, "\x00"), core.ErrInternal)
		core.LogError(err.Error())
		return 0, err
	}
	return id, nil
}
