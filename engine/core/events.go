package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type EventCode uint16

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT EventCode = 0x01
	// Keyboard key pressed. Data: *KeyEvent.
	EVENT_CODE_KEY_PRESSED EventCode = 0x02
	// Keyboard key released. Data: *KeyEvent.
	EVENT_CODE_KEY_RELEASED EventCode = 0x03
	// Mouse button pressed. Data: *MouseEvent.
	EVENT_CODE_BUTTON_PRESSED EventCode = 0x04
	// Mouse button released. Data: *MouseEvent.
	EVENT_CODE_BUTTON_RELEASED EventCode = 0x05
	// Mouse moved. Data: *MouseEvent with PosX and PosY.
	EVENT_CODE_MOUSE_MOVED EventCode = 0x06
	// Mouse wheel. Data: *MouseEvent with Scroll.
	EVENT_CODE_MOUSE_WHEEL EventCode = 0x07
	// Framebuffer resized. Data: *ResizedEvent.
	EVENT_CODE_RESIZED EventCode = 0x08

	MAX_EVENT_CODE EventCode = 0xFF
)

type KeyEvent struct {
	KeyCode KeyCode
}

type MouseEvent struct {
	Button Button
	PosX   uint16
	PosY   uint16
	Scroll int8
}

type ResizedEvent struct {
	Width  uint32
	Height uint32
}

type EventContext struct {
	Type EventCode
	Data any
}

// Should return true if handled.
type FnOnEvent func(ctx EventContext) bool

type registeredEvent struct {
	id       uint64
	callback FnOnEvent
}

/**
 * @brief Routes fired events to the listeners registered for their code.
 * Listeners run in registration order; the first one returning true stops
 * the propagation.
 */
type EventBus struct {
	mu         sync.RWMutex
	registered map[EventCode][]registeredEvent
	nextID     uint64
}

func NewEventBus() *EventBus {
	return &EventBus{registered: make(map[EventCode][]registeredEvent)}
}

/**
 * @brief Registers onEvent for code.
 * @returns an id used to unregister the listener.
 */
func (b *EventBus) Register(code EventCode, onEvent FnOnEvent) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.registered[code] = append(b.registered[code], registeredEvent{id: b.nextID, callback: onEvent})
	return b.nextID
}

// Unregister removes the listener with id from code. It reports whether one was found.
func (b *EventBus) Unregister(code EventCode, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.registered[code]
	for i, e := range events {
		if e.id == id {
			b.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire sends ctx to the listeners of ctx.Type and reports whether one handled it.
func (b *EventBus) Fire(ctx EventContext) bool {
	b.mu.RLock()
	events := b.registered[ctx.Type]
	b.mu.RUnlock()
	for _, e := range events {
		if e.callback(ctx) {
			return true
		}
	}
	return false
}

func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.registered)
}
