// internal/motion/types.go
package motion

// MouseEventType defines the type of mouse event. The strings align with the
// CDP input domain.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
	MouseWheel   MouseEventType = "mouseWheel"
)

// MouseButton defines the mouse button.
type MouseButton string

const (
	ButtonNone MouseButton = "none"
	ButtonLeft MouseButton = "left"
)

// MouseEventData holds the data required to dispatch a mouse event. It is an
// automation-protocol-agnostic structure consumed by the Executor interface.
type MouseEventData struct {
	Type MouseEventType
	X    float64
	Y    float64
	// Button that was pressed or released (Press/Release events).
	Button MouseButton
	// Number of consecutive clicks.
	ClickCount int
	// DeltaX and DeltaY are used for MouseWheel events.
	DeltaX float64
	DeltaY float64
}

// Viewport describes the visible surface the simulator operates on.
type Viewport struct {
	Width  float64
	Height float64
}
