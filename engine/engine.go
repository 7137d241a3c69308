// Package engine runs the frame loop: it pumps window messages, renders each frame on the immediate context,
// drains the device's release queue and ticks the profiler.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-pipe/engine/camera"
	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/Carmen-Shannon/oxy-pipe/engine/profiler"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/native"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-pipe/engine/settings"
	"github.com/Carmen-Shannon/oxy-pipe/engine/window"
)

// ErrRunning is returned by Run when the engine is already running.
var ErrRunning = errors.New("engine is already running")

// RenderFunc draws one frame on the immediate context. The back buffer, if any, is bound at surface slot 0 and
// cleared before the call.
type RenderFunc func(ctx *pipe.DeviceContext, deltaTime float32)

// engine implements the Engine interface.
type engine struct {
	settings settings.Settings

	window  window.Window
	device  *pipe.Device
	factory resource.Factory
	shaders shader.Library
	watcher *shader.Watcher

	backBuffer resource.Texture
	clearColor gputypes.Color
	camera     camera.Camera

	tickRateChannel chan time.Duration
	engineTickRate  time.Duration
	tickCallback    func(deltaTime float32)
	renderCallback  RenderFunc

	profilingEnabled bool
	renderFrameLimit time.Duration

	running     atomic.Bool
	frames      atomic.Uint64
	wg          sync.WaitGroup
	quitChannel chan struct{}
	quitOnce    sync.Once
	renderErr   error
}

// Engine is the main entry point for the engine. It owns the window, the pipeline device and the shader library.
type Engine interface {
	// Window returns the output window.
	Window() window.Window

	// Device returns the pipeline device.
	Device() *pipe.Device

	// Factory returns the resource factory, or nil when the engine runs without one.
	Factory() resource.Factory

	// Shaders returns the shader library.
	Shaders() shader.Library

	// BackBuffer returns the render surface sized to the window, or nil without a factory.
	BackBuffer() resource.Texture

	// Profiler returns the device profiler.
	Profiler() *profiler.Profiler

	// Camera returns the camera kept at the window's aspect ratio.
	Camera() camera.Camera

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick on the tick goroutine.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function drawing each frame. It runs on the window goroutine.
	//
	// Parameters:
	//   - callback: the frame function
	SetRenderCallback(callback RenderFunc)

	// SetRenderFrameLimit sets a render frame rate cap. Pass 0 to uncap the render loop.
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Frames returns the number of frames rendered.
	Frames() uint64

	// Run pumps window messages and renders until the window closes or Quit is called.
	//
	// Returns:
	//   - error: ErrRunning, a watcher error, or a panic recovered from the render callback
	Run() error

	// Quit stops the engine. Safe to call multiple times and from any goroutine.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine. Settings are applied first, explicit options override them. Without WithWindow
// a window is opened from the settings; without WithFactory the device runs on the recording native backend.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: a window or back buffer creation error
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		settings:        settings.Default(),
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
		clearColor:      gputypes.Color{A: 1},
	}
	e.renderFrameLimit = e.settings.FrameInterval()

	for _, opt := range options {
		opt(e)
	}

	if e.factory != nil {
		e.device = e.factory.Device()
	}
	if e.device == nil {
		e.device = pipe.NewDevice(native.NewDevice(), e.settings.DeviceOptions()...)
	}
	if d := e.settings.ProfileInterval(); d > 0 {
		e.device.Profiler().SetUpdateInterval(d)
	}
	if e.shaders == nil {
		e.shaders = shader.NewLibrary(shader.NewCompiler(e.settings.CompilerOptions()...))
	}
	if e.window == nil {
		w, err := window.NewWindow(e.settings.WindowOptions()...)
		if err != nil {
			return nil, err
		}
		e.window = w
	}

	if e.factory != nil {
		bb, err := e.factory.CreateRenderSurface("backbuffer", resource.TextureDesc{
			Width:  uint32(max(e.window.Width(), 1)),
			Height: uint32(max(e.window.Height(), 1)),
		})
		if err != nil {
			return nil, fmt.Errorf("back buffer: %w", err)
		}
		e.backBuffer = bb
	}
	if e.camera == nil {
		e.camera = camera.NewCamera()
	}
	e.camera.Resize(e.window.Width(), e.window.Height())
	e.window.AddResizeCallback(e.resize)

	return e, nil
}

func (e *engine) Window() window.Window           { return e.window }
func (e *engine) Device() *pipe.Device            { return e.device }
func (e *engine) Factory() resource.Factory       { return e.factory }
func (e *engine) Shaders() shader.Library         { return e.shaders }
func (e *engine) BackBuffer() resource.Texture    { return e.backBuffer }
func (e *engine) Camera() camera.Camera           { return e.camera }
func (e *engine) Frames() uint64                  { return e.frames.Load() }
func (e *engine) EnableProfiler()                 { e.profilingEnabled = true }
func (e *engine) DisableProfiler()                { e.profilingEnabled = false }
func (e *engine) SetRenderCallback(cb RenderFunc) { e.renderCallback = cb }

// resize follows the window's framebuffer. It runs on the window goroutine, between frames.
func (e *engine) resize(width, height int) {
	e.camera.Resize(width, height)
	if e.backBuffer == nil {
		return
	}
	if err := e.backBuffer.Resize(uint32(width), uint32(height)); err != nil {
		logger.Logger().Error("resize back buffer", "width", width, "height", height, "error", err)
	}
}

func (e *engine) Run() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	if e.settings.Shaders.HotReload {
		w, err := shader.NewWatcher(e.shaders, e.settings.ReloadLag())
		if err != nil {
			return fmt.Errorf("shader watcher: %w", err)
		}
		e.watcher = w
	}

	closed := false
	lastRender := time.Now()
	e.window.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			if err := e.window.Close(); err != nil {
				logger.Logger().Error("close window", "error", err)
			}
			closed = true
			return
		default:
		}
		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now
		e.frame(dt)

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	})

	e.wg.Add(1)
	go e.handleEngine()

	logger.Logger().Info("engine running", "width", e.window.Width(), "height", e.window.Height())
	e.window.ProcessMessages()

	e.signalQuit()
	e.wg.Wait()
	if !closed {
		if err := e.window.Close(); err != nil {
			logger.Logger().Error("close window", "error", err)
		}
	}
	return errors.Join(e.renderErr, e.shutdown())
}

// frame renders one frame. A panic in the render callback stops the engine instead of crashing the process.
func (e *engine) frame(dt float32) {
	defer func() {
		if r := recover(); r != nil {
			e.renderErr = fmt.Errorf("render callback panicked: %v", r)
			logger.Logger().Error("render callback panicked", "panic", r)
			e.signalQuit()
		}
	}()

	ctx := e.device.Immediate()
	if e.backBuffer != nil {
		ctx.OutputMerger().SetSurface(0, e.backBuffer)
		ctx.ClearSurface(e.backBuffer, e.clearColor)
	}
	if e.renderCallback != nil {
		e.renderCallback(ctx, dt)
	}

	stats := e.device.EndFrame()
	e.frames.Add(1)
	if e.profilingEnabled {
		e.device.Profiler().Tick()
	}
	if stats.ValidationFailures > 0 {
		logger.Logger().Debug("frame had validation failures", "frame", e.frames.Load(), "failures", stats.ValidationFailures)
	}
}

// shutdown unbinds the immediate context and releases what the engine created.
func (e *engine) shutdown() error {
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher = nil
	}
	ctx := e.device.Immediate()
	ctx.OutputMerger().SetSurface(0, nil)
	ctx.ResetBindings()
	if e.backBuffer != nil {
		errs = append(errs, e.backBuffer.Release())
		e.backBuffer = nil
	}
	e.device.ProcessReleaseQueue()
	logger.Logger().Info("engine stopped", "frames", e.frames.Load(), "vram", e.device.VRAM())
	return errors.Join(errs...)
}

// Quit signals the engine to stop.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handleEngine runs the fixed-rate tick loop in its own goroutine until quit.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// SetTickRate sets the engine tick rate. If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Replace a pending update rather than block.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

// Profiler returns the device profiler.
func (e *engine) Profiler() *profiler.Profiler {
	return e.device.Profiler()
}
