package memory

import (
	"encoding/binary"
	"fmt"
	gomath "math"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/**
 * @brief Typed reads and writes at the std140 offsets of a uniform set layout.
 * The aligner is a cursor over a byte span; it does not own buffer memory
 * unless created with UniformSetLayout.NewAligner.
 */
type Std140Aligner struct {
	layout *UniformSetLayout
	data   []byte
}

func (a *Std140Aligner) Layout() *UniformSetLayout {
	return a.layout
}

// Bytes returns the block, exactly Layout().Size bytes long.
func (a *Std140Aligner) Bytes() []byte {
	return a.data
}

// Reset points the aligner at a new span.
func (a *Std140Aligner) Reset(span []byte) error {
	if uint64(len(span)) < a.layout.Size {
		return fmt.Errorf("uniform set %q needs %d bytes, span has %d: %w", a.layout.Name, a.layout.Size, len(span), core.ErrInternal)
	}
	a.data = span[:a.layout.Size]
	return nil
}

// Clear zeroes the block.
func (a *Std140Aligner) Clear() {
	clear(a.data)
}

// Set writes value into the uniform called name. Accepted values are float32, float64,
// int, uint32, math.Vec2, math.Vec3, math.Vec4, math.Mat3 and math.Mat4; the value must
// match the declared type of the uniform.
func (a *Std140Aligner) Set(name string, value any) error {
	e, err := a.entry(name)
	if err != nil {
		return err
	}
	switch v := value.(type) {
	case float32:
		return a.putScalar(e, metadata.ElementFloat, gomath.Float32bits(v))
	case float64:
		return a.putScalar(e, metadata.ElementFloat, gomath.Float32bits(float32(v)))
	case uint32:
		return a.putScalar(e, metadata.ElementUint32, v)
	case int:
		if e.Type == metadata.ElementFloat {
			return a.putScalar(e, metadata.ElementFloat, gomath.Float32bits(float32(v)))
		}
		return a.putScalar(e, metadata.ElementUint32, uint32(v))
	case math.Vec2:
		return a.putFloats(e, metadata.ElementVec2, v.X, v.Y)
	case math.Vec3:
		return a.putFloats(e, metadata.ElementVec3, v.X, v.Y, v.Z)
	case math.Vec4:
		return a.putFloats(e, metadata.ElementVec4, v.X, v.Y, v.Z, v.W)
	case math.Quaternion:
		return a.putFloats(e, metadata.ElementVec4, v.X, v.Y, v.Z, v.W)
	case math.Mat3:
		if err := a.check(e, metadata.ElementMat3); err != nil {
			return err
		}
		for col := 0; col < 3; col++ {
			for row := 0; row < 3; row++ {
				a.putFloat(e.Offset+uint64(col*16+row*4), v.Data[col*3+row])
			}
		}
		return nil
	case math.Mat4:
		return a.putFloats(e, metadata.ElementMat4, v.Data[:]...)
	}
	return fmt.Errorf("uniform %q: unsupported value type %T: %w", name, value, core.ErrInternal)
}

func (a *Std140Aligner) SetFloat(name string, v float32) error {
	return a.Set(name, v)
}

func (a *Std140Aligner) SetUint32(name string, v uint32) error {
	return a.Set(name, v)
}

func (a *Std140Aligner) SetVec2(name string, v math.Vec2) error {
	return a.Set(name, v)
}

func (a *Std140Aligner) SetVec3(name string, v math.Vec3) error {
	return a.Set(name, v)
}

func (a *Std140Aligner) SetVec4(name string, v math.Vec4) error {
	return a.Set(name, v)
}

func (a *Std140Aligner) SetMat3(name string, v math.Mat3) error {
	return a.Set(name, v)
}

func (a *Std140Aligner) SetMat4(name string, v math.Mat4) error {
	return a.Set(name, v)
}

func (a *Std140Aligner) Float(name string) (float32, error) {
	e, err := a.typed(name, metadata.ElementFloat)
	if err != nil {
		return 0, err
	}
	return a.getFloat(e.Offset), nil
}

func (a *Std140Aligner) Uint32(name string) (uint32, error) {
	e, err := a.typed(name, metadata.ElementUint32)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(a.data[e.Offset:]), nil
}

func (a *Std140Aligner) Vec2(name string) (math.Vec2, error) {
	e, err := a.typed(name, metadata.ElementVec2)
	if err != nil {
		return math.Vec2{}, err
	}
	return math.Vec2{X: a.getFloat(e.Offset), Y: a.getFloat(e.Offset + 4)}, nil
}

func (a *Std140Aligner) Vec3(name string) (math.Vec3, error) {
	e, err := a.typed(name, metadata.ElementVec3)
	if err != nil {
		return math.Vec3{}, err
	}
	return math.Vec3{X: a.getFloat(e.Offset), Y: a.getFloat(e.Offset + 4), Z: a.getFloat(e.Offset + 8)}, nil
}

func (a *Std140Aligner) Vec4(name string) (math.Vec4, error) {
	e, err := a.typed(name, metadata.ElementVec4)
	if err != nil {
		return math.Vec4{}, err
	}
	return math.Vec4{
		X: a.getFloat(e.Offset),
		Y: a.getFloat(e.Offset + 4),
		Z: a.getFloat(e.Offset + 8),
		W: a.getFloat(e.Offset + 12),
	}, nil
}

func (a *Std140Aligner) Mat3(name string) (math.Mat3, error) {
	e, err := a.typed(name, metadata.ElementMat3)
	if err != nil {
		return math.Mat3{}, err
	}
	m := math.Mat3{}
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			m.Data[col*3+row] = a.getFloat(e.Offset + uint64(col*16+row*4))
		}
	}
	return m, nil
}

func (a *Std140Aligner) Mat4(name string) (math.Mat4, error) {
	e, err := a.typed(name, metadata.ElementMat4)
	if err != nil {
		return math.Mat4{}, err
	}
	m := math.Mat4{}
	for i := range m.Data {
		m.Data[i] = a.getFloat(e.Offset + uint64(i*4))
	}
	return m, nil
}

func (a *Std140Aligner) entry(name string) (UniformEntry, error) {
	e, ok := a.layout.Entry(name)
	if !ok {
		return UniformEntry{}, fmt.Errorf("uniform set %q: uniform %q: %w", a.layout.Name, name, core.ErrNotFound)
	}
	return e, nil
}

func (a *Std140Aligner) typed(name string, t metadata.ElementType) (UniformEntry, error) {
	e, err := a.entry(name)
	if err != nil {
		return e, err
	}
	return e, a.check(e, t)
}

func (a *Std140Aligner) check(e UniformEntry, t metadata.ElementType) error {
	if e.Type != t {
		return fmt.Errorf("uniform set %q: uniform %q is %s, not %s: %w", a.layout.Name, e.Name, e.Type, t, core.ErrInternal)
	}
	return nil
}

func (a *Std140Aligner) putScalar(e UniformEntry, t metadata.ElementType, bits uint32) error {
	if err := a.check(e, t); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(a.data[e.Offset:], bits)
	return nil
}

func (a *Std140Aligner) putFloats(e UniformEntry, t metadata.ElementType, values ...float32) error {
	if err := a.check(e, t); err != nil {
		return err
	}
	for i, v := range values {
		a.putFloat(e.Offset+uint64(i*4), v)
	}
	return nil
}

func (a *Std140Aligner) putFloat(offset uint64, v float32) {
	binary.LittleEndian.PutUint32(a.data[offset:], gomath.Float32bits(v))
}

func (a *Std140Aligner) getFloat(offset uint64) float32 {
	return gomath.Float32frombits(binary.LittleEndian.Uint32(a.data[offset:]))
}
