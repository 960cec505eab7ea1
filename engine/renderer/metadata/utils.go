package metadata

import "github.com/spaghettifunk/prism/engine/math"

func GetAlignedRange(offset, size, granularity uint64) MemoryRange {
	return MemoryRange{
		Offset: GetAligned(offset, granularity),
		Size:   GetAligned(size, granularity),
	}
}

// GetAligned rounds operand up to a multiple of granularity. Unlike a mask,
// granularity does not need to be a power of two.
func GetAligned(operand, granularity uint64) uint64 {
	return math.AlignUp(operand, granularity)
}
