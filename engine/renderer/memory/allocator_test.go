package memory

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/core"
)

func assertAllocatorInvariants(t *testing.T, a *Allocator) {
	t.Helper()
	live := a.Live()
	var used uint64
	for i, alloc := range live {
		used += alloc.Size
		assert.LessOrEqual(t, alloc.Offset+alloc.Size, a.Size(), "allocation %s past end", alloc)
		if i > 0 {
			prev := live[i-1]
			assert.LessOrEqual(t, prev.Offset+prev.Size, alloc.Offset, "%s overlaps %s", prev, alloc)
		}
	}
	assert.LessOrEqual(t, used, a.Size())
	assert.Equal(t, a.Size(), used+a.FreeBytes())
}

func TestAllocatorBestFitPrefersSmallestBlock(t *testing.T) {
	a := NewAllocator(1000)
	first, err := a.Allocate(100, 1)
	require.NoError(t, err)
	middle, err := a.Allocate(100, 1)
	require.NoError(t, err)
	_, err = a.Allocate(100, 1)
	require.NoError(t, err)

	a.Free(middle)
	a.Free(first)

	// [0, 200) is free and smaller than [300, 1000)
	alloc, err := a.Allocate(150, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), alloc.Offset)
	assertAllocatorInvariants(t, a)
}

func TestAllocatorAlignment(t *testing.T) {
	a := NewAllocator(1024)
	_, err := a.Allocate(10, 1)
	require.NoError(t, err)

	aligned, err := a.Allocate(16, 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), aligned.Offset)

	// the padding gap stays usable
	small, err := a.Allocate(6, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), small.Offset)
	assertAllocatorInvariants(t, a)
}

func TestAllocatorZeroSizeIsInternal(t *testing.T) {
	a := NewAllocator(64)
	_, err := a.Allocate(0, 16)
	assert.ErrorIs(t, err, core.ErrInternal)
}

func TestAllocatorHugeSizeDoesNotWrap(t *testing.T) {
	a := NewAllocator(1024)
	first, err := a.Allocate(16, 16)
	require.NoError(t, err)

	_, err = a.Allocate(math.MaxUint64-8, 1)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)

	a.MarkUnused(first)
	_, err = a.Allocate(math.MaxUint64-8, 1)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
	assert.True(t, first.Live())
	assert.Equal(t, uint64(1024-16), a.FreeBytes())
}

func TestAllocatorOutOfMemoryDoesNotEvict(t *testing.T) {
	a := NewAllocator(1024)
	unused, err := a.Allocate(512, 16)
	require.NoError(t, err)
	_, err = a.Allocate(512, 16)
	require.NoError(t, err)
	a.MarkUnused(unused)

	var evicted int
	a.OnEvict(func(*Allocation) { evicted++ })

	_, err = a.Allocate(600, 16)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
	assert.Zero(t, evicted)
	assert.True(t, unused.Live())
}

func TestAllocatorEvictsLeastRecentlyUsed(t *testing.T) {
	a := NewAllocator(768)
	first, err := a.Allocate(256, 16)
	require.NoError(t, err)
	second, err := a.Allocate(256, 16)
	require.NoError(t, err)
	_, err = a.Allocate(256, 16)
	require.NoError(t, err)

	a.MarkUnused(second)
	a.MarkUnused(first)

	var evicted []*Allocation
	a.OnEvict(func(alloc *Allocation) { evicted = append(evicted, alloc) })

	alloc, err := a.Allocate(256, 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), alloc.Offset)
	require.Len(t, evicted, 1)
	assert.Same(t, second, evicted[0])
	assert.True(t, second.Evicted)
	assert.True(t, first.Live())
	assertAllocatorInvariants(t, a)
}

func TestAllocatorEvictsUntilContiguousFit(t *testing.T) {
	a := NewAllocator(512)
	allocs := make([]*Allocation, 4)
	for i := range allocs {
		var err error
		allocs[i], err = a.Allocate(128, 16)
		require.NoError(t, err)
	}
	// only the two middle allocations are reclaimable, and only together
	a.MarkUnused(allocs[2])
	a.MarkUnused(allocs[1])

	alloc, err := a.Allocate(256, 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(128), alloc.Offset)
	assert.True(t, allocs[1].Evicted)
	assert.True(t, allocs[2].Evicted)
	assertAllocatorInvariants(t, a)
}

func TestAllocatorEvictionIsMonotonic(t *testing.T) {
	a := NewAllocator(256)
	victim, err := a.Allocate(256, 16)
	require.NoError(t, err)
	a.MarkUnused(victim)

	replacement, err := a.Allocate(256, 16)
	require.NoError(t, err)
	require.True(t, victim.Evicted)

	assert.False(t, a.Reactivate(victim))
	a.MarkUnused(victim)
	a.Free(replacement)
	assert.True(t, victim.Evicted)
	assert.False(t, victim.Live())
	assertAllocatorInvariants(t, a)
}

func TestAllocatorFreeCoalesces(t *testing.T) {
	a := NewAllocator(300)
	var allocs []*Allocation
	for range 3 {
		alloc, err := a.Allocate(100, 1)
		require.NoError(t, err)
		allocs = append(allocs, alloc)
	}
	a.Free(allocs[0])
	a.Free(allocs[2])
	a.Free(allocs[1])

	require.Len(t, a.free, 1)
	assert.Equal(t, freeBlock{offset: 0, size: 300}, a.free[0])

	// double free is a no-op
	a.Free(allocs[1])
	assert.Equal(t, uint64(300), a.FreeBytes())
}

func TestAllocatorRandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	a := NewAllocator(4096)
	var held []*Allocation
	var evicted []*Allocation
	a.OnEvict(func(alloc *Allocation) { evicted = append(evicted, alloc) })

	for range 2000 {
		switch rng.IntN(4) {
		case 0, 1:
			size := uint64(rng.IntN(500) + 1)
			alignment := uint64(1) << rng.IntN(6)
			alloc, err := a.Allocate(size, alignment)
			if err != nil {
				require.ErrorIs(t, err, core.ErrOutOfMemory)
				continue
			}
			assert.Zero(t, alloc.Offset%alignment)
			held = append(held, alloc)
		case 2:
			if len(held) > 0 {
				a.MarkUnused(held[rng.IntN(len(held))])
			}
		case 3:
			if len(held) > 0 {
				i := rng.IntN(len(held))
				a.Free(held[i])
				held = append(held[:i], held[i+1:]...)
			}
		}
		assertAllocatorInvariants(t, a)
	}

	for _, alloc := range evicted {
		assert.True(t, alloc.Evicted)
		assert.False(t, a.Reactivate(alloc))
	}
}
