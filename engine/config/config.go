package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"start_width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"start_height"`
	LogLevel    string `toml:"log_level"`
	// One of opengl, vulkan or headless.
	Backend string `toml:"backend"`
	// Frames rendered before a headless run stops. Zero runs until interrupted.
	MaxFrames uint64 `toml:"max_frames"`
}

type MemoryConfig struct {
	Frames               uint32 `toml:"frames"`
	BufferAlignment      uint64 `toml:"buffer_alignment"`
	UniformAlignment     uint64 `toml:"uniform_alignment"`
	PerFrameUniformBytes uint64 `toml:"per_frame_uniform_bytes"`
	MaterialUniformBytes uint64 `toml:"material_uniform_bytes"`
	VertexBufferBytes    uint64 `toml:"vertex_buffer_bytes"`
	IndexBufferBytes     uint64 `toml:"index_buffer_bytes"`
}

type CullingConfig struct {
	// Zero uses GOMAXPROCS.
	Workers int `toml:"workers"`
	// Components handed to a worker at a time.
	ChunkSize int `toml:"chunk_size"`
}

type AssetsConfig struct {
	Root  string `toml:"root"`
	Watch bool   `toml:"watch"`
}

/**
 * @brief Everything the engine reads at startup.
 */
type EngineConfig struct {
	Application   ApplicationConfig           `toml:"application"`
	Memory        MemoryConfig                `toml:"memory"`
	Culling       CullingConfig               `toml:"culling"`
	Assets        AssetsConfig                `toml:"assets"`
	UniformSets   []metadata.UniformSetConfig `toml:"uniform_sets"`
	VertexFormats []metadata.VertexFormat     `toml:"vertex_formats"`
}

func Default() *EngineConfig {
	mem := memory.DefaultConfig()
	return &EngineConfig{
		Application: ApplicationConfig{
			Name:        "Prism",
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
			LogLevel:    "info",
			Backend:     "opengl",
		},
		Memory: MemoryConfig{
			Frames:               mem.Frames,
			BufferAlignment:      mem.BufferAlignment,
			UniformAlignment:     mem.UniformAlignment,
			PerFrameUniformBytes: mem.PerFrameUniformBytes,
			MaterialUniformBytes: mem.MaterialUniformBytes,
			VertexBufferBytes:    mem.VertexBufferBytes,
			IndexBufferBytes:     mem.IndexBufferBytes,
		},
		Culling: CullingConfig{
			Workers:   0,
			ChunkSize: 256,
		},
		Assets: AssetsConfig{
			Root:  "assets",
			Watch: true,
		},
	}
}

// Load reads a TOML file. Keys missing from the file keep their default values.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	core.LogDebug("loaded engine configuration from %s", path)
	return cfg, nil
}

func Parse(data []byte) (*EngineConfig, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EngineConfig) Validate() error {
	if _, err := core.ParseLogLevel(c.Application.LogLevel); err != nil {
		return err
	}
	switch c.Application.Backend {
	case "opengl", "vulkan", "headless":
	default:
		return fmt.Errorf("unknown backend %q", c.Application.Backend)
	}
	if c.Application.StartWidth == 0 || c.Application.StartHeight == 0 {
		return fmt.Errorf("window size must be positive")
	}
	if err := c.MemoryConfig().Validate(); err != nil {
		return err
	}
	if c.Culling.Workers < 0 || c.Culling.ChunkSize < 0 {
		return fmt.Errorf("culling workers and chunk size must not be negative")
	}

	seen := make(map[string]struct{})
	for _, set := range c.UniformSets {
		if _, dup := seen[set.Name]; dup {
			return fmt.Errorf("uniform set %q: %w", set.Name, core.ErrDuplicateName)
		}
		seen[set.Name] = struct{}{}
	}
	clear(seen)
	for i := range c.VertexFormats {
		f := &c.VertexFormats[i]
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("vertex format %q: %w", f.Name, core.ErrDuplicateName)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// LogLevel returns the parsed application log level.
func (c *EngineConfig) LogLevel() core.LogLevel {
	level, _ := core.ParseLogLevel(c.Application.LogLevel)
	return level
}

func (c *EngineConfig) MemoryConfig() memory.Config {
	return memory.Config{
		Frames:               c.Memory.Frames,
		BufferAlignment:      c.Memory.BufferAlignment,
		UniformAlignment:     c.Memory.UniformAlignment,
		PerFrameUniformBytes: c.Memory.PerFrameUniformBytes,
		MaterialUniformBytes: c.Memory.MaterialUniformBytes,
		VertexBufferBytes:    c.Memory.VertexBufferBytes,
		IndexBufferBytes:     c.Memory.IndexBufferBytes,
	}
}

// CullWorkers resolves the configured worker count.
func (c *EngineConfig) CullWorkers() int {
	if c.Culling.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Culling.Workers
}
