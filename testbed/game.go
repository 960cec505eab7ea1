package testbed

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/systems"
)

const (
	crateMesh = "crate_cube"
	paneMesh  = "glass_pane"
	gridSize  = 5
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	WorldCamera *components.Camera
	world       *renderer.Screen

	crates []*components.RenderComponent
	panes  []*components.RenderComponent

	width  uint32
	height uint32
}

func NewTestGame(cfg *config.EngineConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: cfg,
			State:  &gameState{},
		},
	}
	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) Boot(cfg *config.EngineConfig) error {
	core.LogInfo("booting testbed on the %s backend...", cfg.Application.Backend)
	return nil
}

/**
 * @brief Fills the world screen with a grid of crates behind a row of glass
 * panes. Shaders and materials come from the asset root.
 */
func (g *TestGame) Initialize(e *engine.Engine) error {
	state := g.State.(*gameState)
	sys := e.Systems()
	models := sys.ModelManager

	if err := models.AddMesh(crateMesh, systems.GenerateCube(crateMesh, 1, 1, 1, 1, 1), true); err != nil {
		return err
	}
	if err := models.AddMesh(paneMesh, systems.GenerateCube(paneMesh, 2, 2, 0.05, 1, 1), true); err != nil {
		return err
	}

	width, height := e.GetFramebufferSize()
	state.WorldCamera = components.NewPerspectiveCamera(math.DegToRad(45), float32(width)/float32(height), 0.1, 1000)
	state.WorldCamera.SetPosition(math.NewVec3(0, 2, 12))

	world, err := e.AddScreen("world", state.WorldCamera)
	if err != nil {
		return err
	}
	world.Uniforms["ambient_color"] = math.NewVec4(0.2, 0.2, 0.25, 1)
	state.world = world

	for x := 0; x < gridSize; x++ {
		for z := 0; z < gridSize; z++ {
			pos := math.NewVec3(float32(x-gridSize/2)*2, 0, -float32(z)*2)
			c, err := g.spawn(e, "crate", crateMesh, pos)
			if err != nil {
				return err
			}
			state.crates = append(state.crates, c)
		}
	}
	for i := -1; i <= 1; i++ {
		c, err := g.spawn(e, "glass", paneMesh, math.NewVec3(float32(i)*3, 0.5, 4))
		if err != nil {
			return err
		}
		c.Color = math.NewVec4(1, 1, 1, 0.8)
		state.panes = append(state.panes, c)
	}
	core.LogInfo("testbed scene: %d crates, %d panes", len(state.crates), len(state.panes))
	return nil
}

func (g *TestGame) spawn(e *engine.Engine, material, mesh string, pos math.Vec3) (*components.RenderComponent, error) {
	state := g.State.(*gameState)
	model, err := e.Systems().ModelManager.GetModel(material, mesh)
	if err != nil {
		return nil, fmt.Errorf("spawn %s/%s: %w", material, mesh, err)
	}
	c := components.NewRenderComponent(model, math.TransformFromPosition(pos))
	if err := state.world.Components.OnAdd(c); err != nil {
		if relErr := model.Release(); relErr != nil {
			core.LogError("release %s/%s: %s", material, mesh, relErr)
		}
		return nil, err
	}
	return c, nil
}

// despawn drops the newest crate. The model handle goes back through the release queue.
func (g *TestGame) despawn() {
	state := g.State.(*gameState)
	if len(state.crates) == 0 {
		return
	}
	c := state.crates[len(state.crates)-1]
	state.crates = state.crates[:len(state.crates)-1]
	if err := state.world.Components.OnRemove(c); err != nil {
		core.LogError(err.Error())
		return
	}
	go func() {
		if err := c.Model.Release(); err != nil {
			core.LogError(err.Error())
		}
	}()
}

var tempMoveSpeed float32 = 10.0

func (g *TestGame) Update(e *engine.Engine, deltaTime float64) error {
	state := g.State.(*gameState)
	input := e.Input()
	cam := state.WorldCamera
	dt := float32(deltaTime)

	if input.IsKeyDown(core.KEY_A) || input.IsKeyDown(core.KEY_LEFT) {
		cam.Yaw(1.0 * dt)
	}
	if input.IsKeyDown(core.KEY_D) || input.IsKeyDown(core.KEY_RIGHT) {
		cam.Yaw(-1.0 * dt)
	}
	if input.IsKeyDown(core.KEY_UP) {
		cam.Pitch(1.0 * dt)
	}
	if input.IsKeyDown(core.KEY_DOWN) {
		cam.Pitch(-1.0 * dt)
	}
	if input.IsKeyDown(core.KEY_W) {
		cam.MoveForward(tempMoveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_S) {
		cam.MoveBackward(tempMoveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_Q) {
		cam.MoveLeft(tempMoveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_E) {
		cam.MoveRight(tempMoveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_SPACE) {
		cam.MoveUp(tempMoveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_X) {
		cam.MoveDown(tempMoveSpeed * dt)
	}

	if input.IsKeyUp(core.KEY_R) && input.WasKeyDown(core.KEY_R) {
		g.despawn()
	}
	if input.IsKeyUp(core.KEY_P) && input.WasKeyDown(core.KEY_P) {
		pos := cam.GetPosition()
		rot := cam.GetEulerRotation()
		fps, frameTime := e.Metrics().Frame()
		core.LogInfo("FPS: %5.1f(%4.1fms) Pos=[%7.3f %7.3f %7.3f] Rot=[%7.3f, %7.3f, %7.3f]",
			fps, frameTime, pos.X, pos.Y, pos.Z,
			math.RadToDeg(rot.X), math.RadToDeg(rot.Y), math.RadToDeg(rot.Z))
	}

	// Perform a small rotation on every crate.
	rotation := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), 0.5*dt, false)
	for _, c := range state.crates {
		c.Transform.Rotate(rotation)
	}
	return nil
}

func (g *TestGame) OnResize(width, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	for _, c := range append(state.crates, state.panes...) {
		if err := state.world.Components.OnRemove(c); err != nil {
			return err
		}
		if err := c.Model.Release(); err != nil {
			core.LogError("release %s: %s", c.ID, err)
		}
	}
	state.crates, state.panes = nil, nil
	core.LogInfo("testbed shut down")
	return nil
}
