package memory

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// BufferBackend is the part of the graphics backend the memory layer needs.
type BufferBackend interface {
	CreateBuffer(usage metadata.RenderBufferUsage, storage metadata.RenderBufferStorage, size uint64) (metadata.BufferHandle, error)
	WriteBuffer(handle metadata.BufferHandle, offset uint64, data []byte) error
	ReadBuffer(handle metadata.BufferHandle, offset, size uint64) ([]byte, error)
	DestroyBuffer(handle metadata.BufferHandle) error
	// MinUniformAlignment is the required alignment of uniform range offsets.
	MinUniformAlignment() uint64
}

/**
 * @brief Named suballocations over one backend buffer object.
 * For any key there is at most one live allocation. An evicted allocation
 * stays behind as a ghost until the key is allocated again.
 */
type Buffer struct {
	ID        uint32
	Name      string
	Size      uint64
	Usage     metadata.RenderBufferUsage
	Storage   metadata.RenderBufferStorage
	Alignment uint64
	Handle    metadata.BufferHandle

	backend     BufferBackend
	allocator   *Allocator
	allocations map[string]*Allocation
	keys        map[*Allocation]string
	onEvict     func(b *Buffer, key string)
}

func newBuffer(backend BufferBackend, id uint32, name string, usage metadata.RenderBufferUsage, storage metadata.RenderBufferStorage, size, alignment uint64) (*Buffer, error) {
	handle, err := backend.CreateBuffer(usage, storage, size)
	if err != nil {
		return nil, fmt.Errorf("create backend buffer %q: %w", name, err)
	}
	b := &Buffer{
		ID:          id,
		Name:        name,
		Size:        size,
		Usage:       usage,
		Storage:     storage,
		Alignment:   alignment,
		Handle:      handle,
		backend:     backend,
		allocator:   NewAllocator(size),
		allocations: make(map[string]*Allocation),
		keys:        make(map[*Allocation]string),
	}
	b.allocator.OnEvict(b.evicted)
	return b, nil
}

// Allocate returns the allocation stored under key. fresh is true when the region is new
// and its contents must be (re)uploaded. An alignment of zero uses the buffer's alignment.
func (b *Buffer) Allocate(key string, size, alignment uint64) (alloc *Allocation, fresh bool, err error) {
	if existing, ok := b.allocations[key]; ok {
		if existing.Live() && size <= existing.Size {
			b.allocator.Reactivate(existing)
			return existing, false, nil
		}
		// ghost, or too small for the new contents
		b.allocator.Free(existing)
		b.forget(key, existing)
	}

	if alignment == 0 {
		alignment = b.Alignment
	}
	alloc, err = b.allocator.Allocate(size, alignment)
	if err != nil {
		return nil, false, fmt.Errorf("buffer %q: allocate %q: %w", b.Name, key, err)
	}
	b.allocations[key] = alloc
	b.keys[alloc] = key
	return alloc, true, nil
}

// HasAlloc reports whether key owns a live region, reactivating it if so.
func (b *Buffer) HasAlloc(key string) bool {
	alloc, ok := b.allocations[key]
	if !ok {
		return false
	}
	return b.allocator.Reactivate(alloc)
}

// Get returns the allocation stored under key, ghosts included.
func (b *Buffer) Get(key string) (*Allocation, bool) {
	alloc, ok := b.allocations[key]
	return alloc, ok
}

func (b *Buffer) SetUnused(key string) error {
	alloc, ok := b.allocations[key]
	if !ok {
		return fmt.Errorf("buffer %q: allocation %q: %w", b.Name, key, core.ErrNotFound)
	}
	b.allocator.MarkUnused(alloc)
	return nil
}

func (b *Buffer) Free(key string) error {
	alloc, ok := b.allocations[key]
	if !ok {
		return fmt.Errorf("buffer %q: allocation %q: %w", b.Name, key, core.ErrNotFound)
	}
	b.allocator.Free(alloc)
	b.forget(key, alloc)
	return nil
}

// Write uploads data at offset. Device-local buffers go through the backend's staging path.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("buffer %q: write [%d, %d) past end %d: %w", b.Name, offset, offset+uint64(len(data)), b.Size, core.ErrInternal)
	}
	if len(data) == 0 {
		return nil
	}
	if err := b.backend.WriteBuffer(b.Handle, offset, data); err != nil {
		return fmt.Errorf("buffer %q: write: %w", b.Name, err)
	}
	return nil
}

// WriteAt uploads data into the allocation stored under key.
func (b *Buffer) WriteAt(key string, data []byte) error {
	alloc, ok := b.allocations[key]
	if !ok || !alloc.Live() {
		return fmt.Errorf("buffer %q: no live allocation %q: %w", b.Name, key, core.ErrNotFound)
	}
	if uint64(len(data)) > alloc.Size {
		return fmt.Errorf("buffer %q: %d bytes do not fit allocation %q of %d: %w", b.Name, len(data), key, alloc.Size, core.ErrInternal)
	}
	return b.Write(alloc.Offset, data)
}

// Read copies size bytes at offset back from a host-visible buffer.
func (b *Buffer) Read(offset, size uint64) ([]byte, error) {
	if !b.Storage.HostVisible() {
		return nil, fmt.Errorf("buffer %q: %s storage cannot be read back: %w", b.Name, b.Storage, core.ErrInternal)
	}
	if offset+size > b.Size {
		return nil, fmt.Errorf("buffer %q: read [%d, %d) past end %d: %w", b.Name, offset, offset+size, b.Size, core.ErrInternal)
	}
	return b.backend.ReadBuffer(b.Handle, offset, size)
}

func (b *Buffer) Allocator() *Allocator {
	return b.allocator
}

// Keys returns the number of keys, ghosts included.
func (b *Buffer) Keys() int {
	return len(b.allocations)
}

func (b *Buffer) destroy() error {
	if b.Handle == metadata.InvalidHandle {
		return nil
	}
	err := b.backend.DestroyBuffer(b.Handle)
	b.Handle = metadata.InvalidHandle
	return err
}

func (b *Buffer) evicted(alloc *Allocation) {
	key, ok := b.keys[alloc]
	if !ok {
		return
	}
	core.LogDebug("buffer %q: evicted %q at %d (%d bytes)", b.Name, key, alloc.Offset, alloc.Size)
	if b.onEvict != nil {
		b.onEvict(b, key)
	}
}

func (b *Buffer) forget(key string, alloc *Allocation) {
	delete(b.allocations, key)
	delete(b.keys, alloc)
}
