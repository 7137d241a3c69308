package engine_test

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/engine"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/native"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-pipe/engine/settings"
	"github.com/Carmen-Shannon/oxy-pipe/engine/window"
)

const fillWGSL = `//@oxy:variable 0 0 constants tint
@group(0) @binding(0) var<uniform> tint: vec4<f32>;

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> @builtin(position) vec4<f32> {
    let x = f32(index) - 1.0;
    return vec4<f32>(x, 0.0, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return tint;
}
`

func newFactory(t *testing.T) resource.Factory {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	require.NoError(t, err)
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})

	pd := pipe.NewDevice(native.NewDevice(), pipe.WithDebugChecks(true))
	t.Cleanup(pd.Release)
	return resource.NewFactory(openDev.Device, pd, resource.WithQueue(openDev.Queue))
}

func headlessWindow(t *testing.T, frames int) window.Window {
	t.Helper()
	w, err := window.NewWindow(window.WithPlatform(window.Headless(frames)), window.WithWidth(640), window.WithHeight(480))
	require.NoError(t, err)
	return w
}

func TestRunDrawsFrames(t *testing.T) {
	f := newFactory(t)
	e, err := engine.NewEngine(
		engine.WithFactory(f),
		engine.WithWindow(headlessWindow(t, 3)),
		engine.WithRenderFrameLimit(0),
	)
	require.NoError(t, err)
	assert.Same(t, f.Device(), e.Device())
	require.NotNil(t, e.BackBuffer())
	assert.InDelta(t, 640.0/480.0, e.Camera().Aspect(), 1e-6)

	_, err = e.Shaders().LoadSource("fill", fillWGSL)
	require.NoError(t, err)
	m, err := material.FromShader("fill", e.Shaders(), "fill", f)
	require.NoError(t, err)
	require.NoError(t, m.Variables().Write("tint", 0, new(material.Params).Float(1, 0, 0, 1).Bytes()))

	var results []pipe.ValidationResult
	var widths []uint32
	e.SetRenderCallback(func(ctx *pipe.DeviceContext, _ float32) {
		widths = append(widths, e.BackBuffer().Desc().Width)
		ctx.BeginDraw(pipe.ConditionNone)
		results = append(results, ctx.Draw(m, pipe.TopologyTriangleList, 3, 0))
		ctx.EndDraw()
		if e.Frames() == 1 {
			e.Window().Resize(800, 600)
		}
	})

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(3), e.Frames())
	assert.Equal(t, []pipe.ValidationResult{0, 0, 0}, results)
	assert.Equal(t, []uint32{640, 640, 800}, widths, "the back buffer follows the window")
	assert.InDelta(t, 800.0/600.0, e.Camera().Aspect(), 1e-6)
	assert.Equal(t, int64(1), e.Profiler().LastFrame().DrawCalls)
	assert.Nil(t, e.BackBuffer())
	assert.False(t, e.Window().IsRunning())

	require.NoError(t, m.Release())
	f.Device().ProcessReleaseQueue()
	assert.Zero(t, f.Device().VRAM())
	assert.Zero(t, f.Device().PendingReleases())
}

func TestQuitStopsRun(t *testing.T) {
	e, err := engine.NewEngine(engine.WithWindow(headlessWindow(t, 0)), engine.WithRenderFrameLimit(0))
	require.NoError(t, err)
	assert.Nil(t, e.Factory())
	assert.Nil(t, e.BackBuffer())

	var nested error
	e.SetRenderCallback(func(*pipe.DeviceContext, float32) {
		nested = e.Run()
		e.Quit()
	})
	require.NoError(t, e.Run())
	assert.ErrorIs(t, nested, engine.ErrRunning)
	assert.Equal(t, uint64(1), e.Frames())
}

func TestRenderPanicStopsRun(t *testing.T) {
	e, err := engine.NewEngine(engine.WithWindow(headlessWindow(t, 0)), engine.WithRenderFrameLimit(0))
	require.NoError(t, err)
	e.SetRenderCallback(func(*pipe.DeviceContext, float32) { panic("boom") })

	err = e.Run()
	assert.ErrorContains(t, err, "boom")
	assert.Zero(t, e.Frames())
}

func TestNewEngineFromSettings(t *testing.T) {
	_, err := engine.NewEngine()
	assert.ErrorIs(t, err, window.ErrNoPlatform)

	s := settings.Default()
	s.Window.Headless = true
	s.Window.HeadlessFrames = 2
	s.Engine.VSync = false
	s.Device.DebugChecks = true
	e, err := engine.NewEngine(engine.WithSettings(s))
	require.NoError(t, err)
	assert.True(t, e.Device().DebugChecks())
	assert.Equal(t, 1280, e.Window().Width())

	e.SetTickRate(120)
	e.SetTickCallback(func(float32) {})
	require.NoError(t, e.Run())
	assert.Equal(t, uint64(2), e.Frames())
	e.Device().Release()
}
