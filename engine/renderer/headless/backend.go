package headless

import (
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/** @brief Kind of a recorded backend call. */
type Op uint8

const (
	OpCreateBuffer Op = iota
	OpWriteBuffer
	OpDestroyBuffer
	OpCreateTexture
	OpDestroyTexture
	OpCreateShader
	OpDestroyShader
	OpCreateDepthAttachment
	OpBeginFrame
	OpUseShader
	OpBindVertexBuffer
	OpBindIndexBuffer
	OpBindUniformRange
	OpBindTexture
	OpPushConstants
	OpDrawIndexed
	OpSetBlend
	OpClearDepthStencil
	OpPresent
)

var opNames = [...]string{
	"create-buffer", "write-buffer", "destroy-buffer",
	"create-texture", "destroy-texture",
	"create-shader", "destroy-shader",
	"create-depth-attachment",
	"begin-frame", "use-shader",
	"bind-vertex-buffer", "bind-index-buffer", "bind-uniform-range", "bind-texture",
	"push-constants", "draw-indexed", "set-blend", "clear-depth-stencil", "present",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

/**
 * @brief One recorded call. Fields not meaningful for an op are zero.
 */
type Command struct {
	Op     Op
	Handle uint32
	// set index or texture unit
	Slot   uint32
	Offset uint64
	Size   uint64
	Count  uint32
	Flag   bool
	Data   []byte
}

func (c Command) String() string {
	switch c.Op {
	case OpDrawIndexed:
		return fmt.Sprintf("%s count=%d offset=%d", c.Op, c.Count, c.Offset)
	case OpSetBlend:
		return fmt.Sprintf("%s %t", c.Op, c.Flag)
	case OpBindUniformRange:
		return fmt.Sprintf("%s set=%d buffer=%d [%d, +%d)", c.Op, c.Slot, c.Handle, c.Offset, c.Size)
	}
	return fmt.Sprintf("%s %d", c.Op, c.Handle)
}

type buffer struct {
	usage   metadata.RenderBufferUsage
	storage metadata.RenderBufferStorage
	data    []byte
}

/**
 * @brief A backend without a device. Buffers live in host memory and every
 * call is appended to a command log that tests can inspect.
 */
type Backend struct {
	mu sync.Mutex

	uniformAlignment uint64
	nextHandle       uint32
	frame            uint64
	width, height    uint32

	buffers     map[metadata.BufferHandle]*buffer
	textures    map[metadata.TextureHandle]string
	shaders     map[metadata.ShaderHandle]*metadata.ShaderProgramConfig
	attachments map[metadata.AttachmentHandle]metadata.Extent

	commands []Command
	failures map[Op]error
}

func New(uniformAlignment uint64) *Backend {
	return &Backend{
		uniformAlignment: uniformAlignment,
		buffers:          make(map[metadata.BufferHandle]*buffer),
		textures:         make(map[metadata.TextureHandle]string),
		shaders:          make(map[metadata.ShaderHandle]*metadata.ShaderProgramConfig),
		attachments:      make(map[metadata.AttachmentHandle]metadata.Extent),
		failures:         make(map[Op]error),
	}
}

// FailNext makes the next call of op return err instead of executing.
func (b *Backend) FailNext(op Op, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = err
}

// Commands returns a copy of the command log.
func (b *Backend) Commands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.commands)
}

// Filter returns the recorded commands whose op is one of ops, in order.
func (b *Backend) Filter(ops ...Op) []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Command
	for _, c := range b.commands {
		if slices.Contains(ops, c.Op) {
			out = append(out, c)
		}
	}
	return out
}

func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = nil
}

// BufferBytes returns a copy of the contents of a buffer.
func (b *Backend) BufferBytes(handle metadata.BufferHandle) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[handle]; ok {
		return slices.Clone(buf.data)
	}
	return nil
}

func (b *Backend) Shader(handle metadata.ShaderHandle) (*metadata.ShaderProgramConfig, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cfg, ok := b.shaders[handle]
	return cfg, ok
}

func (b *Backend) Extent() metadata.Extent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return metadata.Extent{Width: b.width, Height: b.height}
}

func (b *Backend) MinUniformAlignment() uint64 {
	return b.uniformAlignment
}

func (b *Backend) Resized(width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
	return nil
}

func (b *Backend) CreateBuffer(usage metadata.RenderBufferUsage, storage metadata.RenderBufferStorage, size uint64) (metadata.BufferHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Command{Op: OpCreateBuffer, Size: size}); err != nil {
		return metadata.InvalidHandle, err
	}
	handle := metadata.BufferHandle(b.handle())
	b.buffers[handle] = &buffer{usage: usage, storage: storage, data: make([]byte, size)}
	b.commands[len(b.commands)-1].Handle = uint32(handle)
	return handle, nil
}

func (b *Backend) WriteBuffer(handle metadata.BufferHandle, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Command{Op: OpWriteBuffer, Handle: uint32(handle), Offset: offset, Size: uint64(len(data))}); err != nil {
		return err
	}
	buf, ok := b.buffers[handle]
	if !ok {
		return fmt.Errorf("headless: buffer %d: %w", handle, core.ErrNotFound)
	}
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return fmt.Errorf("headless: write [%d, +%d) outside buffer %d: %w", offset, len(data), handle, core.ErrInternal)
	}
	copy(buf.data[offset:], data)
	return nil
}

func (b *Backend) ReadBuffer(handle metadata.BufferHandle, offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[handle]
	if !ok {
		return nil, fmt.Errorf("headless: buffer %d: %w", handle, core.ErrNotFound)
	}
	if offset+size > uint64(len(buf.data)) {
		return nil, fmt.Errorf("headless: read [%d, +%d) outside buffer %d: %w", offset, size, handle, core.ErrInternal)
	}
	return slices.Clone(buf.data[offset : offset+size]), nil
}

func (b *Backend) DestroyBuffer(handle metadata.BufferHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Command{Op: OpDestroyBuffer, Handle: uint32(handle)}); err != nil {
		return err
	}
	delete(b.buffers, handle)
	return nil
}

func (b *Backend) CreateTexture(name string, img *image.RGBA) (metadata.TextureHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Command{Op: OpCreateTexture, Size: uint64(len(img.Pix))}); err != nil {
		return metadata.InvalidHandle, err
	}
	handle := metadata.TextureHandle(b.handle())
	b.textures[handle] = name
	b.commands[len(b.commands)-1].Handle = uint32(handle)
	return handle, nil
}

func (b *Backend) DestroyTexture(handle metadata.TextureHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Command{Op: OpDestroyTexture, Handle: uint32(handle)}); err != nil {
		return err
	}
	delete(b.textures, handle)
	return nil
}

func (b *Backend) CreateShader(config *metadata.ShaderProgramConfig) (metadata.ShaderHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Command{Op: OpCreateShader}); err != nil {
		return metadata.InvalidHandle, err
	}
	handle := metadata.ShaderHandle(b.handle())
	b.shaders[handle] = config
	b.commands[len(b.commands)-1].Handle = uint32(handle)
	return handle, nil
}

func (b *Backend) DestroyShader(handle metadata.ShaderHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Command{Op: OpDestroyShader, Handle: uint32(handle)}); err != nil {
		return err
	}
	delete(b.shaders, handle)
	return nil
}

func (b *Backend) CreateDepthAttachment(extent metadata.Extent) (metadata.AttachmentHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Command{Op: OpCreateDepthAttachment, Size: uint64(extent.Width) * uint64(extent.Height)}); err != nil {
		return metadata.InvalidHandle, err
	}
	handle := metadata.AttachmentHandle(b.handle())
	b.attachments[handle] = extent
	b.commands[len(b.commands)-1].Handle = uint32(handle)
	return handle, nil
}

func (b *Backend) BeginFrame() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Command{Op: OpBeginFrame, Offset: b.frame}); err != nil {
		return 0, err
	}
	frame := b.frame
	b.frame++
	return frame, nil
}

func (b *Backend) UseShader(handle metadata.ShaderHandle) error {
	return b.simple(Command{Op: OpUseShader, Handle: uint32(handle)})
}

func (b *Backend) BindVertexBuffer(handle metadata.BufferHandle, format *metadata.VertexFormat) error {
	return b.simple(Command{Op: OpBindVertexBuffer, Handle: uint32(handle), Size: format.Stride()})
}

func (b *Backend) BindIndexBuffer(handle metadata.BufferHandle) error {
	return b.simple(Command{Op: OpBindIndexBuffer, Handle: uint32(handle)})
}

func (b *Backend) BindUniformRange(set uint32, handle metadata.BufferHandle, offset, size uint64) error {
	return b.simple(Command{Op: OpBindUniformRange, Slot: set, Handle: uint32(handle), Offset: offset, Size: size})
}

func (b *Backend) BindTexture(unit uint32, handle metadata.TextureHandle) error {
	return b.simple(Command{Op: OpBindTexture, Slot: unit, Handle: uint32(handle)})
}

func (b *Backend) PushConstants(shader metadata.ShaderHandle, data []byte) error {
	return b.simple(Command{Op: OpPushConstants, Handle: uint32(shader), Size: uint64(len(data)), Data: slices.Clone(data)})
}

func (b *Backend) DrawIndexed(count uint32, offset uint64) error {
	return b.simple(Command{Op: OpDrawIndexed, Count: count, Offset: offset})
}

func (b *Backend) SetBlendEnabled(enabled bool) error {
	return b.simple(Command{Op: OpSetBlend, Flag: enabled})
}

func (b *Backend) ClearDepthStencil() error {
	return b.simple(Command{Op: OpClearDepthStencil})
}

func (b *Backend) Present() error {
	return b.simple(Command{Op: OpPresent})
}

func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers = make(map[metadata.BufferHandle]*buffer)
	b.textures = make(map[metadata.TextureHandle]string)
	b.shaders = make(map[metadata.ShaderHandle]*metadata.ShaderProgramConfig)
	b.attachments = make(map[metadata.AttachmentHandle]metadata.Extent)
	return nil
}

func (b *Backend) simple(c Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record(c)
}

func (b *Backend) record(c Command) error {
	if err, ok := b.failures[c.Op]; ok {
		delete(b.failures, c.Op)
		return err
	}
	b.commands = append(b.commands, c)
	return nil
}

func (b *Backend) handle() uint32 {
	b.nextHandle++
	return b.nextHandle
}
