package systems

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/components"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func sphereAt(position math.Vec3, radius float32, material *metadata.Material) *components.RenderComponent {
	mesh := GenerateCube("sphere", 2, 2, 2, 1, 1)
	mesh.Radius = 1
	model := metadata.NewModel(nil, mesh, material)
	transform := math.TransformFromPositionRotationScale(position, math.NewQuatIdentity(), math.NewVec3(radius, radius, radius))
	c := components.NewRenderComponent(model, transform)
	c.Visible = false
	return c
}

func TestCullBoundaries(t *testing.T) {
	camera := components.NewPerspectiveCamera(math.DegToRad(45), 16.0/9.0, 1, 100)
	culled := &metadata.Material{Name: "culled", ViewCull: true}

	tests := []struct {
		name     string
		position math.Vec3
		radius   float32
		visible  bool
	}{
		{"inside", math.NewVec3(0, 0, -50), 1, true},
		{"in front of near", math.NewVec3(0, 0, -0.5), 0.25, false},
		{"straddles near", math.NewVec3(0, 0, -0.5), 1, true},
		{"outside lateral", math.NewVec3(200, 0, -50), 1, false},
		{"above", math.NewVec3(0, 100, -50), 1, false},
		{"straddles far", math.NewVec3(0, 0, -100), 2, true},
		{"behind far", math.NewVec3(0, 0, -103), 2, false},
		{"behind camera", math.NewVec3(0, 0, 10), 1, false},
		{"off centre", math.NewVec3(20, 0, -50), 1, true},
	}
	set := newComponentSet()
	byName := make(map[string]*components.RenderComponent)
	for _, tt := range tests {
		c := sphereAt(tt.position, tt.radius, culled)
		set.add(c)
		byName[tt.name] = c
	}

	jobs, err := NewJobSystem(4, 2)
	require.NoError(t, err)
	require.NoError(t, NewCuller(jobs).Cull(context.Background(), camera, set))

	for _, tt := range tests {
		assert.Equal(t, tt.visible, byName[tt.name].Visible, tt.name)
	}
}

func TestCullSkipsMaterialsWithoutViewCull(t *testing.T) {
	camera := components.NewPerspectiveCamera(math.DegToRad(45), 1, 1, 100)
	always := &metadata.Material{Name: "sky"}
	c := sphereAt(math.NewVec3(0, 0, 500), 1, always)

	set := newComponentSet()
	set.add(c)
	jobs, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	require.NoError(t, NewCuller(jobs).Cull(context.Background(), camera, set))
	assert.True(t, c.Visible)
}

func TestCullFollowsTheCamera(t *testing.T) {
	camera := components.NewPerspectiveCamera(math.DegToRad(45), 1, 1, 100)
	c := sphereAt(math.NewVec3(0, 0, -50), 1, &metadata.Material{ViewCull: true})
	view := camera.GetView()
	assert.True(t, IsVisible(camera, view, c))

	// turned around, the sphere is behind the camera
	camera.SetEulerRotation(math.NewVec3(0, math.DegToRad(180), 0))
	assert.False(t, IsVisible(camera, camera.GetView(), c))

	// moved past the sphere
	camera.SetEulerRotation(math.NewVec3Zero())
	camera.SetPosition(math.NewVec3(0, 0, -60))
	assert.False(t, IsVisible(camera, camera.GetView(), c))
}
