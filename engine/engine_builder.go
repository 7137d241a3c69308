package engine

import (
	"time"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-pipe/engine/camera"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-pipe/engine/settings"
	"github.com/Carmen-Shannon/oxy-pipe/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithSettings configures the engine, and the device, window and shader library it creates, from settings.
// Place it before options that should override it.
//
// Parameters:
//   - s: the settings
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSettings(s settings.Settings) EngineBuilderOption {
	return func(e *engine) {
		e.settings = s
		e.profilingEnabled = s.Engine.Profiling
		e.renderFrameLimit = s.FrameInterval()
	}
}

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithRenderFrameLimit sets a render frame rate cap. Pass 0 to uncap the render loop.
//
// Parameters:
//   - fps: maximum frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.SetRenderFrameLimit(fps)
	}
}

// WithWindow sets the output window instead of opening one from the settings.
//
// Parameters:
//   - w: the window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithDevice sets the pipeline device. Ignored when WithFactory is given, whose device is used instead.
//
// Parameters:
//   - d: the device
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDevice(d *pipe.Device) EngineBuilderOption {
	return func(e *engine) {
		e.device = d
	}
}

// WithFactory sets the resource factory. The engine creates a back buffer with it and uses its device.
//
// Parameters:
//   - f: the factory
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFactory(f resource.Factory) EngineBuilderOption {
	return func(e *engine) {
		e.factory = f
	}
}

// WithShaderLibrary sets the shader library instead of creating one from the settings.
//
// Parameters:
//   - lib: the library
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithShaderLibrary(lib shader.Library) EngineBuilderOption {
	return func(e *engine) {
		e.shaders = lib
	}
}

// WithCamera sets the camera the engine keeps at the window's aspect ratio.
//
// Parameters:
//   - c: the camera
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithCamera(c camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.camera = c
	}
}

// WithClearColor sets the color the back buffer is cleared to each frame.
//
// Parameters:
//   - c: the clear color
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithClearColor(c gputypes.Color) EngineBuilderOption {
	return func(e *engine) {
		e.clearColor = c
	}
}

// WithRenderCallback sets the frame function.
//
// Parameters:
//   - fn: draws one frame
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderCallback(fn RenderFunc) EngineBuilderOption {
	return func(e *engine) {
		e.renderCallback = fn
	}
}
