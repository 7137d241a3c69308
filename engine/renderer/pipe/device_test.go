package pipe_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/native"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
)

func drawRecorder(vs, ps *pipe.ShaderProgram) pipe.RecordFunc {
	return func(ctx *pipe.DeviceContext) error {
		drawable(ctx)
		ctx.BeginDraw(pipe.ConditionNone)
		defer ctx.EndDraw()
		if r := ctx.Draw(singlePass(vs, ps), pipe.TopologyTriangleList, 3, 0); r != pipe.ValidationSuccessful {
			return fmt.Errorf("draw: %s", r)
		}
		return nil
	}
}

func TestRecordDeferredAndSubmit(t *testing.T) {
	d, nd, rec := newTestDevice(t)
	vs, ps := vertexProgram(), pixelProgram()

	lists, err := d.RecordDeferred(drawRecorder(vs, ps), drawRecorder(vs, ps), drawRecorder(vs, ps))
	require.NoError(t, err)
	require.Len(t, lists, 3)
	for _, l := range lists {
		require.NotNil(t, l)
		assert.Equal(t, 1, l.(*native.CommandList).Count(native.OpDraw))
	}
	assert.Empty(t, rec.Commands(), "recording does not touch the immediate context")
	assert.Equal(t, 1, d.InputLayoutCount(), "contexts share cached input layouts")

	d.Submit(lists...)
	assert.Equal(t, 3, rec.Count(native.OpExecuteCommandList))
	assert.Equal(t, 3, rec.Count(native.OpDraw))
	for _, l := range lists {
		assert.True(t, l.(*native.CommandList).Released())
	}

	_, err = d.RecordDeferred(drawRecorder(vs, ps), drawRecorder(vs, ps))
	require.NoError(t, err)
	assert.Equal(t, 3, nd.DeferredCount(), "deferred contexts are reused")
	assert.Empty(t, d.DeferredContexts(), "record contexts are private to the device")
}

func TestRecordDeferredLeavesCallerContextsAlone(t *testing.T) {
	d, _, _ := newTestDevice(t)
	mine, err := d.NewDeferredContext()
	require.NoError(t, err)
	drawable(mine)
	mine.BeginDraw(pipe.ConditionNone)

	var used []*pipe.DeviceContext
	var mu sync.Mutex
	record := func(ctx *pipe.DeviceContext) error {
		mu.Lock()
		used = append(used, ctx)
		mu.Unlock()
		return nil
	}
	_, err = d.RecordDeferred(record, record)
	require.NoError(t, err)

	require.Len(t, used, 2)
	assert.NotContains(t, used, mine)
	assert.True(t, mine.IsDrawing())
	assert.Equal(t, []*pipe.DeviceContext{mine}, d.DeferredContexts())

	mine.Draw(singlePass(vertexProgram(), pixelProgram()), pipe.TopologyTriangleList, 3, 0)
	mine.EndDraw()
	list, err := mine.Finish()
	require.NoError(t, err)
	assert.Equal(t, 1, list.(*native.CommandList).Count(native.OpDraw), "the caller's commands stay in the caller's list")
}

func TestRecordDeferredRecoversRecorderPanics(t *testing.T) {
	d, _, _ := newTestDevice(t)
	vs, ps := vertexProgram(), pixelProgram()

	lists, err := d.RecordDeferred(
		drawRecorder(vs, ps),
		func(ctx *pipe.DeviceContext) error {
			ctx.BeginDraw(pipe.ConditionNone)
			ctx.BeginDraw(pipe.ConditionNone)
			return nil
		},
	)
	require.ErrorIs(t, err, pipe.ErrAlreadyDrawing)
	require.Len(t, lists, 2)
	assert.NotNil(t, lists[0])
	assert.Nil(t, lists[1])

	lists, err = d.RecordDeferred(drawRecorder(vs, ps), drawRecorder(vs, ps))
	require.NoError(t, err)
	assert.NotNil(t, lists[1], "the context that panicked records again")
}

func TestRecordDeferredResetsBindingsBetweenLists(t *testing.T) {
	d, _, _ := newTestDevice(t)
	vs, ps := vertexProgram(), pixelProgram()

	first, err := d.RecordDeferred(drawRecorder(vs, ps))
	require.NoError(t, err)
	second, err := d.RecordDeferred(drawRecorder(vs, ps))
	require.NoError(t, err)

	// every list starts from empty native state, so the second one carries the full binding set again
	a := first[0].(*native.CommandList)
	b := second[0].(*native.CommandList)
	assert.Equal(t, a.Count(native.OpSetShader), b.Count(native.OpSetShader))
	assert.Equal(t, a.Count(native.OpSetRenderTargets), b.Count(native.OpSetRenderTargets))
}

func TestRecordDeferredReportsFailures(t *testing.T) {
	d, _, _ := newTestDevice(t)
	boom := errors.New("boom")
	vs, ps := vertexProgram(), pixelProgram()

	lists, err := d.RecordDeferred(
		drawRecorder(vs, ps),
		func(ctx *pipe.DeviceContext) error {
			ctx.BeginDraw(pipe.ConditionNone)
			return boom
		},
	)
	require.ErrorIs(t, err, boom)
	require.Len(t, lists, 2)
	assert.NotNil(t, lists[0])
	assert.Nil(t, lists[1])

	// the failed context is usable again
	lists, err = d.RecordDeferred(drawRecorder(vs, ps), drawRecorder(vs, ps))
	require.NoError(t, err)
	assert.NotNil(t, lists[1])
}

func TestVRAMCounterIsAtomic(t *testing.T) {
	d, _, _ := newTestDevice(t)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				d.AllocateVRAM(64)
				d.DeallocateVRAM(16)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(16*1000*48), d.VRAM())
}

type countingReleaser struct{ n *atomic.Int64 }

func (r countingReleaser) ReleaseNative() { r.n.Add(1) }

func TestReleaseQueueAcceptsAnyGoroutine(t *testing.T) {
	d, _, _ := newTestDevice(t)
	var released atomic.Int64

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				d.MarkForRelease(countingReleaser{&released})
			}
		}()
	}
	wg.Wait()
	d.MarkForRelease(nil)

	assert.Equal(t, 400, d.PendingReleases())
	assert.Zero(t, released.Load(), "nothing is released before the queue is processed")
	assert.Equal(t, 400, d.ProcessReleaseQueue())
	assert.Equal(t, int64(400), released.Load())
	assert.Zero(t, d.ProcessReleaseQueue())
}

func TestReleaseBoundState(t *testing.T) {
	d, _, _ := newTestDevice(t)
	ctx := d.Immediate()
	state := pipe.NewDepthState("custom", pipe.DepthDesc{DepthEnabled: true})
	ctx.Depth().SetCurrent(state)
	ctx.Depth().Refresh()
	require.Same(t, state, ctx.Depth().Bound())

	assert.ErrorIs(t, state.Release(d), pipe.ErrStillBound)

	ctx.ResetBindings()
	require.NoError(t, state.Release(d))
	assert.Equal(t, 1, d.PendingReleases())
	assert.ErrorIs(t, state.Release(d), pipe.ErrAlreadyReleased)
}

func TestContextOwnership(t *testing.T) {
	d, _, _ := newTestDevice(t)
	other, _, _ := newTestDevice(t)
	foreign, err := other.NewDeferredContext()
	require.NoError(t, err)

	assert.ErrorIs(t, d.RemoveContext(foreign), pipe.ErrForeignContext)
	assert.ErrorIs(t, d.RemoveContext(d.Immediate()), pipe.ErrNotDeferred)

	require.NoError(t, foreign.Release())
	assert.Empty(t, other.DeferredContexts())
	assert.ErrorIs(t, foreign.Release(), pipe.ErrContextReleased)
}

func TestDeviceOptions(t *testing.T) {
	limits := gputypes.DefaultLimits()
	limits.MaxVertexBuffers = 2
	limits.MaxColorAttachments = 1
	info := gpucontext.AdapterInfo{Name: "soft", Type: gpucontext.AdapterTypeSoftware}

	d, _, _ := newTestDevice(t, pipe.WithLimits(limits), pipe.WithAdapterInfo(info), pipe.WithDepthFormat(gputypes.TextureFormatRGBA8Unorm))
	assert.Equal(t, info, d.AdapterInfo())
	assert.Equal(t, 2, d.Immediate().InputAssembler().VertexBuffers().Len())
	assert.Equal(t, 1, d.Immediate().OutputMerger().Surfaces().Len())
	assert.True(t, d.DebugChecks())
	assert.Equal(t, pipe.DefaultStateStackIncrement, d.Immediate().StateStack().Capacity())
}

func TestEndFrameClosesCounters(t *testing.T) {
	d, _, _ := newTestDevice(t)
	ctx := d.Immediate()
	drawable(ctx)
	d.MarkForRelease(countingReleaser{&atomic.Int64{}})

	ctx.BeginDraw(pipe.ConditionNone)
	ctx.Draw(singlePass(vertexProgram(), pixelProgram()), pipe.TopologyTriangleList, 3, 0)
	ctx.EndDraw()

	stats := d.EndFrame()
	assert.Equal(t, int64(1), stats.DrawCalls)
	assert.Equal(t, stats, d.Profiler().LastFrame())
	assert.Zero(t, d.Profiler().Current().DrawCalls)
	assert.Zero(t, d.PendingReleases())
}

func TestDeviceRelease(t *testing.T) {
	d, nd, rec := newTestDevice(t)
	deferred, err := d.NewDeferredContext()
	require.NoError(t, err)
	drawable(d.Immediate())
	d.Immediate().BeginDraw(pipe.ConditionNone)
	d.Immediate().Draw(singlePass(vertexProgram(), pixelProgram()), pipe.TopologyTriangleList, 3, 0)
	d.Immediate().EndDraw()
	layouts := nd.Created(native.KindInputLayout)
	require.Equal(t, 1, layouts)

	d.Release()
	assert.True(t, rec.Released())
	assert.Empty(t, d.DeferredContexts())
	assert.Zero(t, d.InputLayoutCount())
	assert.ErrorIs(t, deferred.Release(), pipe.ErrContextReleased)
	assert.NotPanics(t, d.Release)
}
