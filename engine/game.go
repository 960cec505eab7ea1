package engine

import (
	"github.com/spaghettifunk/prism/engine/config"
)

/**
 * @brief The application driven by the engine. Only Config is required;
 * every callback may be left nil.
 */
type Game struct {
	Config       *config.EngineConfig
	State        any
	FnBoot       Boot
	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Boot may adjust the configuration before anything is created.
type Boot func(cfg *config.EngineConfig) error

// Initialize runs once every system is up, to create resources and screens.
type Initialize func(e *Engine) error

// Update runs once per frame before the frame is drawn.
type Update func(e *Engine, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
