package engine

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/opengl"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageBooting:
		return "booting"
	case EngineStageBootComplete:
		return "boot complete"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// clientAPI is the window context a backend needs, or false when it needs no window.
func clientAPI(t renderer.RendererType) (platform.ClientAPI, bool) {
	switch t {
	case renderer.OpenGL:
		return platform.ClientOpenGL, true
	case renderer.Vulkan:
		return platform.ClientNone, true
	}
	return platform.ClientNone, false
}

/**
 * @brief Creates the backend. The window, when the backend needs one, must
 * already be up.
 */
func createBackend(t renderer.RendererType, p *platform.Platform, name string, width, height uint32, uniformAlignment uint64, debug bool) (renderer.Backend, error) {
	switch t {
	case renderer.OpenGL:
		gl, err := opengl.New(p.SwapBuffers)
		if err != nil {
			return nil, err
		}
		return gl, nil
	case renderer.Vulkan:
		vr := vulkan.New(name, p.RequiredExtensionNames(), debug)
		if err := vr.Initialize(width, height); err != nil {
			return nil, err
		}
		return vr, nil
	case renderer.Headless:
		core.LogInfo("running without a window on the headless backend")
		return headless.New(uniformAlignment), nil
	}
	return nil, fmt.Errorf("unsupported backend %s", t)
}
