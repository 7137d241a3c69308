package window

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
)

// ErrNoPlatform is returned by NewWindow when no platform was configured.
var ErrNoPlatform = errors.New("window has no platform")

// Window owns the output size of the engine and delivers input and resize events.
// The native side is a Platform: a GLFW window on the desktop or a headless stand-in.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// AddResizeCallback registers a function called with the new framebuffer size after every resize.
	// Callbacks run in registration order.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	AddResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up, negative = down)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the callback for key press events.
	//
	// Parameters:
	//   - callback: function receiving the key code
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetKeyUpCallback sets the callback for key release events.
	//
	// Parameters:
	//   - callback: function receiving the key code
	SetKeyUpCallback(callback func(keyCode uint32))

	// SetMouseMoveCallback sets the callback for mouse movement.
	//
	// Parameters:
	//   - callback: function receiving mouse x, y position
	SetMouseMoveCallback(callback func(x, y int32))

	// Resize requests a new client size. The size is clamped to the window limits and the resize callbacks
	// run once the platform reports the new framebuffer size.
	//
	// Parameters:
	//   - width: requested width in pixels
	//   - height: requested height in pixels
	Resize(width, height int)

	// IsRunning returns true if the window is still active.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// ProcessMessages runs the window message loop.
	// Blocks until the window is closed. Calls the update callback each iteration.
	ProcessMessages()

	// Width returns the current framebuffer width in pixels.
	Width() int

	// Height returns the current framebuffer height in pixels.
	Height() int

	// Viewport returns a viewport covering the framebuffer.
	Viewport() common.Viewport
}

// Events receives what the platform observes. The window implements it and hands itself to the platform.
type Events interface {
	Resized(width, height int)
	KeyDown(keyCode uint32)
	KeyUp(keyCode uint32)
	Scrolled(delta float32)
	MouseMoved(x, y int32)
	CloseRequested()
}

// Config is what a platform needs to open its native window.
type Config struct {
	Title               string
	Width, Height       int
	MinWidth, MinHeight int
	MaxWidth, MaxHeight int
}

// Platform is a native window.
type Platform interface {
	// PollEvents delivers pending events and reports whether the window should keep running.
	PollEvents() bool

	// FramebufferSize returns the drawable size in pixels.
	FramebufferSize() (int, int)

	// SetSize requests a new client size.
	SetSize(width, height int)

	// Close destroys the native window.
	Close() error
}

// PlatformFactory opens a Platform for a window.
type PlatformFactory func(cfg Config, events Events) (Platform, error)

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	cfg      Config
	factory  PlatformFactory
	platform Platform

	mu      sync.Mutex
	width   int
	height  int
	running bool

	onUpdate    func()
	onResize    []func(width, height int)
	onScroll    func(delta float32)
	onKeyDown   func(keyCode uint32)
	onKeyUp     func(keyCode uint32)
	onMouseMove func(x, y int32)
}

var (
	_ Window = &engineWindow{}
	_ Events = &engineWindow{}
)

// NewWindow creates a new Window and opens its platform.
// Applies default values first, then each option in order.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the opened window
//   - error: ErrNoPlatform, or the platform's open error
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		cfg: Config{
			Title:     "oxy-pipe",
			Width:     1280,
			Height:    720,
			MinWidth:  320,
			MinHeight: 200,
			MaxWidth:  3840,
			MaxHeight: 2160,
		},
	}
	for _, opt := range options {
		opt(w)
	}
	if w.factory == nil {
		return nil, ErrNoPlatform
	}
	w.cfg.Width, w.cfg.Height = w.clamp(w.cfg.Width, w.cfg.Height)

	p, err := w.factory(w.cfg, w)
	if err != nil {
		return nil, fmt.Errorf("open window %q: %w", w.cfg.Title, err)
	}
	w.platform = p
	w.width, w.height = p.FramebufferSize()
	w.running = true
	logger.Logger().Info("window opened", "title", w.cfg.Title, "width", w.width, "height", w.height)
	return w, nil
}

// clamp limits a size to the configured bounds. Zero bounds are ignored.
func (w *engineWindow) clamp(width, height int) (int, int) {
	if w.cfg.MinWidth > 0 {
		width = max(width, w.cfg.MinWidth)
	}
	if w.cfg.MinHeight > 0 {
		height = max(height, w.cfg.MinHeight)
	}
	if w.cfg.MaxWidth > 0 {
		width = min(width, w.cfg.MaxWidth)
	}
	if w.cfg.MaxHeight > 0 {
		height = min(height, w.cfg.MaxHeight)
	}
	return width, height
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) AddResizeCallback(callback func(width, height int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResize = append(w.onResize, callback)
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SetKeyUpCallback(callback func(keyCode uint32)) {
	w.onKeyUp = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y int32)) {
	w.onMouseMove = callback
}

func (w *engineWindow) Resize(width, height int) {
	width, height = w.clamp(width, height)
	w.mu.Lock()
	p := w.platform
	w.mu.Unlock()
	if p != nil {
		p.SetSize(width, height)
	}
}

// Resized records the framebuffer size and runs the resize callbacks. Minimized windows report a zero size,
// which is recorded but not forwarded.
func (w *engineWindow) Resized(width, height int) {
	w.mu.Lock()
	if width == w.width && height == w.height {
		w.mu.Unlock()
		return
	}
	w.width, w.height = width, height
	callbacks := append([]func(int, int){}, w.onResize...)
	w.mu.Unlock()

	if width == 0 || height == 0 {
		return
	}
	logger.Logger().Debug("window resized", "width", width, "height", height)
	for _, cb := range callbacks {
		cb(width, height)
	}
}

func (w *engineWindow) KeyDown(keyCode uint32) {
	if w.onKeyDown != nil {
		w.onKeyDown(keyCode)
	}
}

func (w *engineWindow) KeyUp(keyCode uint32) {
	if w.onKeyUp != nil {
		w.onKeyUp(keyCode)
	}
}

func (w *engineWindow) Scrolled(delta float32) {
	if w.onScroll != nil {
		w.onScroll(delta)
	}
}

func (w *engineWindow) MouseMoved(x, y int32) {
	if w.onMouseMove != nil {
		w.onMouseMove(x, y)
	}
}

func (w *engineWindow) CloseRequested() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
}

func (w *engineWindow) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *engineWindow) Close() error {
	w.mu.Lock()
	if w.platform == nil {
		w.mu.Unlock()
		return fmt.Errorf("window is not initialized")
	}
	p := w.platform
	w.platform = nil
	w.running = false
	w.mu.Unlock()
	return p.Close()
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !w.platform.PollEvents() {
			w.CloseRequested()
			break
		}

		if w.onUpdate != nil {
			w.onUpdate()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *engineWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

func (w *engineWindow) Viewport() common.Viewport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return common.NewViewport(uint32(w.width), uint32(w.height))
}
