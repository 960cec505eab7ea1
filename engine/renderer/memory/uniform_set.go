package memory

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// UniformEntry is one uniform placed at its std140 offset.
type UniformEntry struct {
	Name     string
	Type     metadata.ElementType
	Provider metadata.UniformProvider
	Offset   uint64
	Size     uint64
}

/**
 * @brief A declared uniform set with precomputed std140 offsets. Samplers are
 * listed in binding order but take no space in the block.
 */
type UniformSetLayout struct {
	Name    string
	Entries []UniformEntry
	// Size of the block rounded up to 16 bytes.
	Size     uint64
	Scope    metadata.UniformScope
	Samplers []string

	index map[string]int
}

// NewUniformSetLayout lays out cfg with std140 rules. All uniforms of a set must
// share the same update scope (screen, material or object).
func NewUniformSetLayout(cfg metadata.UniformSetConfig) (*UniformSetLayout, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("uniform set has no name")
	}
	l := &UniformSetLayout{
		Name:  cfg.Name,
		index: make(map[string]int, len(cfg.Uniforms)),
	}

	var cursor uint64
	for i, u := range cfg.Uniforms {
		if _, dup := l.index[u.Name]; dup {
			return nil, fmt.Errorf("uniform set %q: uniform %q: %w", cfg.Name, u.Name, core.ErrDuplicateName)
		}
		scope := u.Provider.Scope()
		if i == 0 {
			l.Scope = scope
		} else if scope != l.Scope {
			return nil, fmt.Errorf("uniform set %q mixes %s and %s scoped uniforms", cfg.Name, l.Scope, scope)
		}

		if u.Type == metadata.ElementSampler {
			l.Samplers = append(l.Samplers, u.Name)
			continue
		}
		cursor = math.AlignUp(cursor, std140Alignment(u.Type))
		entry := UniformEntry{
			Name:     u.Name,
			Type:     u.Type,
			Provider: u.Provider,
			Offset:   cursor,
			Size:     std140Size(u.Type),
		}
		l.index[u.Name] = len(l.Entries)
		l.Entries = append(l.Entries, entry)
		cursor += entry.Size
	}
	l.Size = math.AlignUp(cursor, 16)
	return l, nil
}

func (l *UniformSetLayout) Entry(name string) (UniformEntry, bool) {
	i, ok := l.index[name]
	if !ok {
		return UniformEntry{}, false
	}
	return l.Entries[i], true
}

// IsEmpty reports whether the set has no buffered uniforms.
func (l *UniformSetLayout) IsEmpty() bool {
	return l.Size == 0
}

// NewAligner returns an aligner over a zeroed scratch block owned by the aligner.
func (l *UniformSetLayout) NewAligner() *Std140Aligner {
	return &Std140Aligner{layout: l, data: make([]byte, l.Size)}
}

// Aligner returns an aligner over span, which must hold at least Size bytes.
func (l *UniformSetLayout) Aligner(span []byte) (*Std140Aligner, error) {
	a := &Std140Aligner{layout: l}
	if err := a.Reset(span); err != nil {
		return nil, err
	}
	return a, nil
}

func std140Alignment(t metadata.ElementType) uint64 {
	switch t {
	case metadata.ElementFloat, metadata.ElementUint32:
		return 4
	case metadata.ElementVec2:
		return 8
	case metadata.ElementVec3, metadata.ElementVec4, metadata.ElementMat3, metadata.ElementMat4:
		return 16
	}
	return 1
}

func std140Size(t metadata.ElementType) uint64 {
	switch t {
	case metadata.ElementFloat, metadata.ElementUint32:
		return 4
	case metadata.ElementVec2:
		return 8
	case metadata.ElementVec3:
		return 12
	case metadata.ElementVec4:
		return 16
	case metadata.ElementMat3:
		// three columns, each padded to a vec4
		return 48
	case metadata.ElementMat4:
		return 64
	}
	return 0
}
