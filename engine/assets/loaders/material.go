package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/** @brief Extension of material files. */
const MaterialExtension = ".pmt"

/**
 * @brief Reads a .pmt material file. Every non-empty line that does not start
 * with '#' is a key = value pair:
 *
 *	name = stone
 *	shader = opaque
 *	uniform_set = surface
 *	view_cull = true
 *	texture = stone_diffuse
 *	diffuse_color = vec4 1 1 1 1
 *
 * texture may repeat; textures bind in file order. Any other key is a uniform
 * value, optionally led by its type; without one the type follows from the
 * number of components.
 */
func LoadMaterial(path string) (*metadata.MaterialConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ParseMaterial(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func ParseMaterial(r io.Reader) (*metadata.MaterialConfig, error) {
	cfg := &metadata.MaterialConfig{Values: make(map[string]any)}
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key = value", lineNumber)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "name":
			cfg.Name = value
		case "shader":
			cfg.ShaderName = value
		case "uniform_set":
			cfg.UniformSetName = value
		case "texture":
			cfg.Textures = append(cfg.Textures, value)
		case "view_cull":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: view_cull: %w", lineNumber, err)
			}
			cfg.ViewCull = b
		default:
			v, err := parseUniformValue(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", lineNumber, key, err)
			}
			cfg.Values[key] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("material has no name")
	}
	if cfg.ShaderName == "" {
		return nil, fmt.Errorf("material %q has no shader", cfg.Name)
	}
	return cfg, nil
}

func parseUniformValue(value string) (any, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty value")
	}

	var t metadata.ElementType
	if _, err := strconv.ParseFloat(fields[0], 32); err == nil {
		switch len(fields) {
		case 1:
			t = metadata.ElementFloat
		case 2:
			t = metadata.ElementVec2
		case 3:
			t = metadata.ElementVec3
		case 4:
			t = metadata.ElementVec4
		case 9:
			t = metadata.ElementMat3
		case 16:
			t = metadata.ElementMat4
		default:
			return nil, fmt.Errorf("cannot infer a type for %d components", len(fields))
		}
	} else {
		if t, err = metadata.ParseElementType(fields[0]); err != nil {
			return nil, err
		}
		fields = fields[1:]
	}

	if t == metadata.ElementUint32 {
		if len(fields) != 1 {
			return nil, fmt.Errorf("uint32 takes 1 component, got %d", len(fields))
		}
		u, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, err
		}
		return uint32(u), nil
	}

	f := make([]float32, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid component %q", s)
		}
		f[i] = float32(v)
	}
	if want := int(t.Size() / 4); want == 0 || len(f) != want {
		return nil, fmt.Errorf("%s takes %d components, got %d", t, want, len(f))
	}

	switch t {
	case metadata.ElementFloat:
		return f[0], nil
	case metadata.ElementVec2:
		return math.Vec2{X: f[0], Y: f[1]}, nil
	case metadata.ElementVec3:
		return math.NewVec3(f[0], f[1], f[2]), nil
	case metadata.ElementVec4:
		return math.NewVec4(f[0], f[1], f[2], f[3]), nil
	case metadata.ElementMat3:
		var m math.Mat3
		copy(m.Data[:], f)
		return m, nil
	default:
		var m math.Mat4
		copy(m.Data[:], f)
		return m, nil
	}
}
