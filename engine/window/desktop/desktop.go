// Package desktop opens engine windows with GLFW.
package desktop

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/Carmen-Shannon/oxy-pipe/engine/window"
)

// glfwWindow holds the GLFW-specific window state.
type glfwWindow struct {
	window *glfw.Window
}

var _ window.Platform = &glfwWindow{}

// Platform creates the GLFW window with input callbacks. It must be called from the main goroutine, which stays
// locked to its OS thread for the life of the window.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
// go-gl/glfw: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw
func Platform(cfg window.Config, events window.Events) (window.Platform, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	// The pipeline presents through its own device, so no GL context is created.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create GLFW window: %w", err)
	}
	win.SetSizeLimits(limit(cfg.MinWidth), limit(cfg.MinHeight), limit(cfg.MaxWidth), limit(cfg.MaxHeight))

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			win.SetShouldClose(true)
			events.CloseRequested()
			return
		}
		switch action {
		case glfw.Press, glfw.Repeat:
			events.KeyDown(uint32(key))
		case glfw.Release:
			events.KeyUp(uint32(key))
		}
	})

	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		events.Scrolled(float32(yoff))
	})

	win.SetCursorPosCallback(func(_ *glfw.Window, xpos, ypos float64) {
		events.MouseMoved(int32(xpos), int32(ypos))
	})

	// Framebuffer size, not window size: they differ on high-DPI displays and surfaces are sized in pixels.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		events.Resized(width, height)
	})

	win.SetCloseCallback(func(_ *glfw.Window) {
		events.CloseRequested()
	})

	return &glfwWindow{window: win}, nil
}

// limit maps an unset bound onto GLFW's DontCare.
func limit(v int) int {
	if v <= 0 {
		return glfw.DontCare
	}
	return v
}

// PollEvents polls GLFW for pending events without blocking.
//
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#PollEvents
func (g *glfwWindow) PollEvents() bool {
	glfw.PollEvents()
	return !g.window.ShouldClose()
}

func (g *glfwWindow) FramebufferSize() (int, int) {
	return g.window.GetFramebufferSize()
}

func (g *glfwWindow) SetSize(width, height int) {
	g.window.SetSize(width, height)
}

// Close destroys the GLFW window and terminates the GLFW library.
func (g *glfwWindow) Close() error {
	g.window.SetShouldClose(true)
	g.window.Destroy()
	glfw.Terminate()
	return nil
}
