package loaders

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

/** @brief Suffix of shader declaration files. */
const ShaderExtension = ".shader.toml"

func IsShaderConfig(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ShaderExtension)
}

// LoadShaderConfig reads a shader declaration. Stage paths are left relative to the asset root.
func LoadShaderConfig(path string) (*metadata.ShaderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseShaderConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func ParseShaderConfig(data []byte) (*metadata.ShaderConfig, error) {
	cfg := &metadata.ShaderConfig{}
	decoder := toml.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return nil, err
	}
	if cfg.Name == "" {
		return nil, errors.New("shader declaration has no name")
	}
	if cfg.VertexSource == "" || cfg.FragmentSource == "" {
		return nil, fmt.Errorf("shader %q needs a vertex and a fragment stage", cfg.Name)
	}
	if cfg.VertexFormat == "" {
		return nil, fmt.Errorf("shader %q has no vertex format", cfg.Name)
	}
	return cfg, nil
}
