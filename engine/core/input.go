package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_SHIFT     KeyCode = 0x10
	KEY_CONTROL   KeyCode = 0x11
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28

	KEY_0 KeyCode = 0x30
	KEY_1 KeyCode = 0x31
	KEY_2 KeyCode = 0x32
	KEY_3 KeyCode = 0x33

	KEY_A KeyCode = 0x41
	KEY_B KeyCode = 0x42
	KEY_C KeyCode = 0x43
	KEY_D KeyCode = 0x44
	KEY_E KeyCode = 0x45
	KEY_F KeyCode = 0x46
	KEY_G KeyCode = 0x47
	KEY_H KeyCode = 0x48
	KEY_I KeyCode = 0x49
	KEY_J KeyCode = 0x4A
	KEY_K KeyCode = 0x4B
	KEY_L KeyCode = 0x4C
	KEY_M KeyCode = 0x4D
	KEY_N KeyCode = 0x4E
	KEY_O KeyCode = 0x4F
	KEY_P KeyCode = 0x50
	KEY_Q KeyCode = 0x51
	KEY_R KeyCode = 0x52
	KEY_S KeyCode = 0x53
	KEY_T KeyCode = 0x54
	KEY_U KeyCode = 0x55
	KEY_V KeyCode = 0x56
	KEY_W KeyCode = 0x57
	KEY_X KeyCode = 0x58
	KEY_Y KeyCode = 0x59
	KEY_Z KeyCode = 0x5A

	KEYS_MAX_KEYS KeyCode = 0xFF
)

// Mouse state structure
type MouseState struct {
	X       uint16
	Y       uint16
	Buttons [BUTTON_MAX_BUTTONS]bool
}

type KeyboardState struct {
	Keys [KEYS_MAX_KEYS + 1]bool
}

/**
 * @brief Current and previous keyboard and mouse states. State changes are
 * fired on the event bus as they are processed.
 */
type Input struct {
	keyboardCurrent  KeyboardState
	keyboardPrevious KeyboardState
	mouseCurrent     MouseState
	mousePrevious    MouseState

	events *EventBus
}

func NewInput(events *EventBus) *Input {
	return &Input{events: events}
}

// Update copies the current states to the previous states. Call once per frame.
func (in *Input) Update() {
	in.keyboardPrevious = in.keyboardCurrent
	in.mousePrevious = in.mouseCurrent
}

func (in *Input) IsKeyDown(key KeyCode) bool {
	return in.keyboardCurrent.Keys[key]
}

func (in *Input) IsKeyUp(key KeyCode) bool {
	return !in.keyboardCurrent.Keys[key]
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	return in.keyboardPrevious.Keys[key]
}

func (in *Input) WasKeyUp(key KeyCode) bool {
	return !in.keyboardPrevious.Keys[key]
}

func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	if key > KEYS_MAX_KEYS || in.keyboardCurrent.Keys[key] == pressed {
		return
	}
	in.keyboardCurrent.Keys[key] = pressed
	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	in.fire(EventContext{Type: code, Data: &KeyEvent{KeyCode: key}})
}

func (in *Input) IsButtonDown(button Button) bool {
	return button < BUTTON_MAX_BUTTONS && in.mouseCurrent.Buttons[button]
}

func (in *Input) WasButtonDown(button Button) bool {
	return button < BUTTON_MAX_BUTTONS && in.mousePrevious.Buttons[button]
}

func (in *Input) MousePosition() (int32, int32) {
	return int32(in.mouseCurrent.X), int32(in.mouseCurrent.Y)
}

func (in *Input) PreviousMousePosition() (int32, int32) {
	return int32(in.mousePrevious.X), int32(in.mousePrevious.Y)
}

func (in *Input) ProcessButton(button Button, pressed bool) {
	if button >= BUTTON_MAX_BUTTONS || in.mouseCurrent.Buttons[button] == pressed {
		return
	}
	in.mouseCurrent.Buttons[button] = pressed
	code := EVENT_CODE_BUTTON_RELEASED
	if pressed {
		code = EVENT_CODE_BUTTON_PRESSED
	}
	in.fire(EventContext{Type: code, Data: &MouseEvent{Button: button}})
}

func (in *Input) ProcessMouseMove(x, y uint16) {
	if in.mouseCurrent.X == x && in.mouseCurrent.Y == y {
		return
	}
	in.mouseCurrent.X, in.mouseCurrent.Y = x, y
	in.fire(EventContext{Type: EVENT_CODE_MOUSE_MOVED, Data: &MouseEvent{PosX: x, PosY: y}})
}

func (in *Input) ProcessMouseWheel(zDelta int8) {
	in.fire(EventContext{Type: EVENT_CODE_MOUSE_WHEEL, Data: &MouseEvent{Scroll: zDelta}})
}

func (in *Input) fire(ctx EventContext) {
	if in.events != nil {
		in.events.Fire(ctx)
	}
}
