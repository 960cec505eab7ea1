package memory

import (
	"fmt"
	"slices"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/**
 * @brief A region handed out by an Allocator. Allocations never move.
 * Once evicted an allocation stays evicted; the owner must allocate again.
 */
type Allocation struct {
	Offset uint64
	Size   uint64
	/** @brief Cleared by MarkUnused; such allocations may be evicted under pressure. */
	InUse bool
	/** @brief Set when the allocator reclaimed the region. The data is gone. */
	Evicted bool

	lastUsed uint64
	freed    bool
}

func (a *Allocation) Range() metadata.MemoryRange {
	return metadata.MemoryRange{Offset: a.Offset, Size: a.Size}
}

// Live reports whether the allocation still owns its region.
func (a *Allocation) Live() bool {
	return !a.Evicted && !a.freed
}

func (a *Allocation) String() string {
	state := "in-use"
	switch {
	case a.freed:
		state = "freed"
	case a.Evicted:
		state = "evicted"
	case !a.InUse:
		state = "unused"
	}
	return fmt.Sprintf("[%d, %d) %s", a.Offset, a.Offset+a.Size, state)
}

type freeBlock struct {
	offset uint64
	size   uint64
}

func (b freeBlock) end() uint64 {
	return b.offset + b.size
}

/**
 * @brief Best-fit suballocator over a fixed byte range [0, size).
 * Not safe for concurrent use; buffers are owned by the main thread.
 */
type Allocator struct {
	size uint64
	// sorted by offset, never adjacent
	free    []freeBlock
	live    map[*Allocation]struct{}
	tick    uint64
	onEvict func(*Allocation)
}

func NewAllocator(size uint64) *Allocator {
	a := &Allocator{
		size: size,
		live: make(map[*Allocation]struct{}),
	}
	if size > 0 {
		a.free = []freeBlock{{offset: 0, size: size}}
	}
	return a
}

// OnEvict registers the function called for every allocation the allocator evicts.
func (a *Allocator) OnEvict(fn func(*Allocation)) {
	a.onEvict = fn
}

func (a *Allocator) Size() uint64 {
	return a.size
}

// Allocate returns an in-use region of size bytes whose offset is a multiple of alignment.
// When no free block fits, inactive allocations are evicted in least-recently-used order
// until one does. Nothing is evicted when even reclaiming every inactive allocation
// would not make room.
func (a *Allocator) Allocate(size, alignment uint64) (*Allocation, error) {
	if size == 0 {
		return nil, fmt.Errorf("zero-sized allocation: %w", core.ErrInternal)
	}
	if alignment == 0 {
		alignment = 1
	}
	a.tick++

	if alloc, ok := a.fit(size, alignment); ok {
		return alloc, nil
	}
	if !a.reclaimable(size, alignment) {
		return nil, fmt.Errorf("no room for %d bytes (alignment %d) in %d-byte range: %w", size, alignment, a.size, core.ErrOutOfMemory)
	}

	for _, victim := range a.inactiveLRU() {
		a.evict(victim)
		if alloc, ok := a.fit(size, alignment); ok {
			return alloc, nil
		}
	}
	return nil, fmt.Errorf("eviction did not produce the predicted fit for %d bytes: %w", size, core.ErrInternal)
}

// Free permanently releases the region of alloc.
func (a *Allocator) Free(alloc *Allocation) {
	if alloc == nil || alloc.freed {
		return
	}
	if !alloc.Evicted {
		a.release(alloc.Offset, alloc.Size)
		delete(a.live, alloc)
	}
	alloc.freed = true
	alloc.InUse = false
}

// MarkUnused keeps alloc and its data but lets the allocator evict it under pressure.
func (a *Allocator) MarkUnused(alloc *Allocation) {
	if alloc == nil || !alloc.Live() {
		return
	}
	a.tick++
	alloc.InUse = false
	alloc.lastUsed = a.tick
}

// Reactivate marks a live allocation as in use again. It returns false for evicted or freed ones.
func (a *Allocator) Reactivate(alloc *Allocation) bool {
	if alloc == nil || !alloc.Live() {
		return false
	}
	alloc.InUse = true
	return true
}

// Live returns the allocations that currently own a region, sorted by offset.
func (a *Allocator) Live() []*Allocation {
	out := make([]*Allocation, 0, len(a.live))
	for alloc := range a.live {
		out = append(out, alloc)
	}
	slices.SortFunc(out, func(x, y *Allocation) int {
		return compareOffsets(x.Offset, y.Offset)
	})
	return out
}

func (a *Allocator) FreeBytes() uint64 {
	var total uint64
	for _, b := range a.free {
		total += b.size
	}
	return total
}

func (a *Allocator) UsedBytes() uint64 {
	var total uint64
	for alloc := range a.live {
		total += alloc.Size
	}
	return total
}

// fit carves the best fitting free block. Ties go to the lowest offset.
func (a *Allocator) fit(size, alignment uint64) (*Allocation, bool) {
	best := -1
	var bestStart uint64
	for i, b := range a.free {
		start := math.AlignUp(b.offset, alignment)
		if !fits(b, start, size) {
			continue
		}
		if best < 0 || b.size < a.free[best].size {
			best = i
			bestStart = start
		}
	}
	if best < 0 {
		return nil, false
	}

	b := a.free[best]
	var pieces []freeBlock
	if bestStart > b.offset {
		pieces = append(pieces, freeBlock{offset: b.offset, size: bestStart - b.offset})
	}
	if end := bestStart + size; end < b.end() {
		pieces = append(pieces, freeBlock{offset: end, size: b.end() - end})
	}
	a.free = slices.Replace(a.free, best, best+1, pieces...)

	alloc := &Allocation{Offset: bestStart, Size: size, InUse: true, lastUsed: a.tick}
	a.live[alloc] = struct{}{}
	return alloc, true
}

// reclaimable reports whether a fit exists once every inactive allocation is released.
func (a *Allocator) reclaimable(size, alignment uint64) bool {
	blocks := slices.Clone(a.free)
	for alloc := range a.live {
		if !alloc.InUse {
			blocks = append(blocks, freeBlock{offset: alloc.Offset, size: alloc.Size})
		}
	}
	slices.SortFunc(blocks, func(x, y freeBlock) int {
		return compareOffsets(x.offset, y.offset)
	})

	var merged []freeBlock
	for _, b := range blocks {
		if n := len(merged); n > 0 && merged[n-1].end() == b.offset {
			merged[n-1].size += b.size
			continue
		}
		merged = append(merged, b)
	}
	for _, b := range merged {
		start := math.AlignUp(b.offset, alignment)
		if fits(b, start, size) {
			return true
		}
	}
	return false
}

// fits reports whether [start, start+size) lies inside b without wrapping.
func fits(b freeBlock, start, size uint64) bool {
	return start >= b.offset && start <= b.end() && size <= b.end()-start
}

func (a *Allocator) inactiveLRU() []*Allocation {
	var out []*Allocation
	for alloc := range a.live {
		if !alloc.InUse {
			out = append(out, alloc)
		}
	}
	slices.SortFunc(out, func(x, y *Allocation) int {
		if x.lastUsed != y.lastUsed {
			return compareOffsets(x.lastUsed, y.lastUsed)
		}
		return compareOffsets(x.Offset, y.Offset)
	})
	return out
}

func (a *Allocator) evict(alloc *Allocation) {
	alloc.Evicted = true
	alloc.InUse = false
	a.release(alloc.Offset, alloc.Size)
	delete(a.live, alloc)
	if a.onEvict != nil {
		a.onEvict(alloc)
	}
}

// release returns [offset, offset+size) to the free list, merging neighbours.
func (a *Allocator) release(offset, size uint64) {
	i, _ := slices.BinarySearchFunc(a.free, offset, func(b freeBlock, target uint64) int {
		return compareOffsets(b.offset, target)
	})
	block := freeBlock{offset: offset, size: size}

	// merge with the following block
	if i < len(a.free) && block.end() == a.free[i].offset {
		block.size += a.free[i].size
		a.free = slices.Delete(a.free, i, i+1)
	}
	// merge with the preceding block
	if i > 0 && a.free[i-1].end() == block.offset {
		a.free[i-1].size += block.size
		return
	}
	a.free = slices.Insert(a.free, i, block)
}

func compareOffsets(x, y uint64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}
