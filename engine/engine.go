package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/memory"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/systems"
	"github.com/spaghettifunk/prism/engine/text"
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.EngineConfig
	backendType  renderer.RendererType

	isRunning   atomic.Bool
	isSuspended bool
	width       uint32
	height      uint32
	clock       *core.Clock
	metrics     *core.Metrics
	lastTime    float64
	frameCount  uint64

	events        *core.EventBus
	input         *core.Input
	platform      *platform.Platform
	assetManager  *assets.AssetManager
	backend       renderer.Backend
	memory        *memory.Manager
	systemManager *systems.SystemManager
	renderer      *renderer.Renderer
	screens       []*renderer.Screen
}

func New(g *Game) (*Engine, error) {
	if g.Config == nil {
		g.Config = config.Default()
	}
	events := core.NewEventBus()
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		events:       events,
		input:        core.NewInput(events),
	}
	return e, nil
}

/**
 * @brief Brings every subsystem up: window, backend, memory manager, systems,
 * renderer and the assets found under the asset root. The game's Initialize
 * runs last.
 */
func (e *Engine) Initialize() error {
	e.currentStage = EngineStageBooting
	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(e.gameInstance.Config); err != nil {
			return fmt.Errorf("boot: %w", err)
		}
	}
	cfg := e.gameInstance.Config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	e.config = cfg
	core.SetLogLevel(cfg.LogLevel())
	backendType, err := renderer.ParseRendererType(cfg.Application.Backend)
	if err != nil {
		return err
	}
	e.backendType = backendType
	e.width = cfg.Application.StartWidth
	e.height = cfg.Application.StartHeight
	e.currentStage = EngineStageBootComplete

	e.currentStage = EngineStageInitializing
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e.onResized)

	if api, windowed := clientAPI(backendType); windowed {
		e.platform = platform.New(e.input, e.events)
		app := cfg.Application
		if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight, api); err != nil {
			return err
		}
		e.width, e.height = e.platform.FramebufferSize()
	}

	mcfg := cfg.MemoryConfig()
	e.backend, err = createBackend(backendType, e.platform, cfg.Application.Name, e.width, e.height,
		mcfg.UniformAlignment, cfg.LogLevel() == core.DebugLevel)
	if err != nil {
		core.LogError("failed to create the %s backend: %s", backendType, err)
		return err
	}
	if err := e.backend.Resized(e.width, e.height); err != nil {
		return err
	}

	e.memory, err = memory.NewManager(e.backend, mcfg)
	if err != nil {
		return err
	}

	var loader systems.ResourceLoader
	if _, err := os.Stat(cfg.Assets.Root); err == nil {
		e.assetManager, err = assets.NewAssetManager(cfg.Assets.Root)
		if err != nil {
			return err
		}
		if err := e.assetManager.Initialize(cfg.Assets.Watch); err != nil {
			return err
		}
		loader = e.assetManager
	} else {
		core.LogWarn("asset root %q not found, resources must be created in code", cfg.Assets.Root)
	}

	e.systemManager, err = systems.NewSystemManager(systems.SystemManagerConfig{
		CullWorkers:   cfg.CullWorkers(),
		CullChunkSize: cfg.Culling.ChunkSize,
	}, e.backend, e.memory, loader)
	if err != nil {
		return err
	}
	e.renderer = renderer.New(e.backend, e.memory, e.systemManager)

	if err := e.registerLayouts(); err != nil {
		return err
	}
	if err := e.loadAssets(); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized on the %s backend (%dx%d)", backendType, e.width, e.height)
	return nil
}

// registerLayouts declares the configured uniform sets and vertex formats, plus the built-in formats.
func (e *Engine) registerLayouts() error {
	for _, set := range e.config.UniformSets {
		if _, err := e.memory.AddUniformSet(set); err != nil {
			return err
		}
	}
	formats := append([]metadata.VertexFormat{}, e.config.VertexFormats...)
	formats = append(formats, systems.PositionNormalTexcoordFormat, text.TextVertexFormat)
	for _, f := range formats {
		if _, err := e.systemManager.ShaderSystem.VertexFormat(f.Name); err == nil {
			continue
		}
		if _, err := e.systemManager.ShaderSystem.AddVertexFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// loadAssets creates every declared shader and material and registers every
// mesh file at DISK level, named by its path without the extension.
func (e *Engine) loadAssets() error {
	if e.assetManager == nil {
		return nil
	}
	shaders, err := e.assetManager.LoadShaderConfigs()
	if err != nil {
		return err
	}
	for _, cfg := range shaders {
		if _, err := e.systemManager.ShaderSystem.Create(cfg); err != nil {
			return err
		}
	}
	materials, err := e.assetManager.LoadMaterials()
	if err != nil {
		return err
	}
	for _, cfg := range materials {
		if _, err := e.systemManager.ModelManager.AddMaterial(cfg); err != nil {
			return err
		}
	}
	for _, p := range e.assetManager.List(assets.AssetTypeMesh) {
		name := strings.TrimSuffix(p, path.Ext(p))
		if err := e.systemManager.ModelManager.RegisterMeshSource(name, p, false); err != nil {
			return err
		}
	}
	core.LogInfo("%d shaders and %d materials loaded from %s", len(shaders), len(materials), e.assetManager.Root())
	return nil
}

/**
 * @brief Runs the frame loop until the window closes, a quit event arrives,
 * ctx is cancelled or the configured frame count is reached. Internal errors
 * are returned; a lost backend drops the frame and the loop retries.
 */
func (e *Engine) Run(ctx context.Context) error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	maxFrames := e.config.Application.MaxFrames
	for e.isRunning.Load() {
		if ctx.Err() != nil {
			break
		}
		if e.platform != nil && !e.platform.PumpMessages() {
			break
		}
		if e.isSuspended {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(e, delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				return err
			}
		}

		if err := e.systemManager.ModelManager.ProcessReleases(); err != nil {
			core.LogWarn("releases: %s", err)
		}
		if err := e.renderer.DrawFrame(ctx, e.screens); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			if core.IsFatal(err) {
				return fmt.Errorf("frame %d: %w", e.renderer.Frame(), err)
			}
			if errors.Is(err, core.ErrBackendLost) {
				core.LogWarn("frame %d dropped: %s", e.renderer.Frame(), err)
			} else {
				core.LogError("frame %d: %s", e.renderer.Frame(), err)
			}
		}

		e.metrics.Update(time.Since(frameStart).Seconds())
		e.frameCount++
		if e.frameCount%600 == 0 {
			fps, ms := e.metrics.Frame()
			core.LogDebug("%.0f fps, %.3f ms/frame", fps, ms)
		}

		// Input state is copied last so this frame's presses stay visible to Update.
		e.input.Update()
		e.lastTime = currentTime

		if maxFrames > 0 && e.frameCount >= maxFrames {
			core.LogInfo("%d frames drawn, stopping", e.frameCount)
			break
		}
	}
	e.isRunning.Store(false)
	return nil
}

// Stop asks the frame loop to return after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	e.screens = nil
	if e.systemManager != nil {
		errs = append(errs, e.systemManager.Shutdown())
	}
	if e.memory != nil {
		errs = append(errs, e.memory.Shutdown())
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
	} else if e.backend != nil {
		errs = append(errs, e.backend.Shutdown())
	}
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Shutdown())
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
	}
	e.events.Shutdown()
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

/**
 * @brief Creates a screen drawing through camera, with its own draw index.
 * Screens draw in creation order.
 */
func (e *Engine) AddScreen(name string, camera *components.Camera) (*renderer.Screen, error) {
	rcm := e.systemManager.NewRenderComponentManager()
	s, err := renderer.NewScreen(e.backend, name, camera, rcm, metadata.Extent{Width: e.width, Height: e.height})
	if err != nil {
		return nil, err
	}
	e.screens = append(e.screens, s)
	return s, nil
}

func (e *Engine) Screens() []*renderer.Screen {
	return e.screens
}

func (e *Engine) Systems() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) Memory() *memory.Manager {
	return e.memory
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

// Assets returns the asset manager, nil when the asset root does not exist.
func (e *Engine) Assets() *assets.AssetManager {
	return e.assetManager
}

func (e *Engine) Input() *core.Input {
	return e.input
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

// GetFramebufferSize returns the width and height (in this order) of the framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Stop()
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	if ke.KeyCode == core.KEY_ESCAPE {
		// Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	re, ok := context.Data.(*core.ResizedEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	width, height := re.Width, re.Height
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	if err := e.renderer.OnResized(width, height, e.screens...); err != nil {
		core.LogError(err.Error())
	}
	return false
}
