package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()
	var calls []string
	bus.Register(EVENT_CODE_RESIZED, func(EventContext) bool {
		calls = append(calls, "first")
		return true
	})
	bus.Register(EVENT_CODE_RESIZED, func(EventContext) bool {
		calls = append(calls, "second")
		return false
	})

	assert.True(t, bus.Fire(EventContext{Type: EVENT_CODE_RESIZED, Data: &ResizedEvent{Width: 1, Height: 1}}))
	assert.Equal(t, []string{"first"}, calls)
	assert.False(t, bus.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}))
}

func TestEventBusUnregister(t *testing.T) {
	bus := NewEventBus()
	fired := 0
	id := bus.Register(EVENT_CODE_KEY_PRESSED, func(EventContext) bool {
		fired++
		return false
	})
	require.True(t, bus.Unregister(EVENT_CODE_KEY_PRESSED, id))
	assert.False(t, bus.Unregister(EVENT_CODE_KEY_PRESSED, id))

	bus.Fire(EventContext{Type: EVENT_CODE_KEY_PRESSED})
	assert.Zero(t, fired)
}

func TestInputFiresOnlyOnChange(t *testing.T) {
	bus := NewEventBus()
	var keys []KeyCode
	bus.Register(EVENT_CODE_KEY_PRESSED, func(ctx EventContext) bool {
		keys = append(keys, ctx.Data.(*KeyEvent).KeyCode)
		return false
	})
	in := NewInput(bus)

	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, true)
	assert.Equal(t, []KeyCode{KEY_W}, keys)
	assert.True(t, in.IsKeyDown(KEY_W))
	assert.False(t, in.WasKeyDown(KEY_W))

	in.Update()
	in.ProcessKey(KEY_W, false)
	assert.True(t, in.WasKeyDown(KEY_W))
	assert.True(t, in.IsKeyUp(KEY_W))
}

func TestInputMouse(t *testing.T) {
	in := NewInput(nil)
	in.ProcessButton(BUTTON_LEFT, true)
	in.ProcessMouseMove(10, 20)
	in.ProcessButton(BUTTON_MAX_BUTTONS, true)

	assert.True(t, in.IsButtonDown(BUTTON_LEFT))
	assert.False(t, in.IsButtonDown(BUTTON_MAX_BUTTONS))
	x, y := in.MousePosition()
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(20), y)
}
