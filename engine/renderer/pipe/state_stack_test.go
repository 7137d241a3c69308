package pipe_test

import (
	"fmt"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
)

// pipeSnapshot is the observable requested state of a context, with bindables reduced to their names.
type pipeSnapshot struct {
	Blend, Depth, Rasterizer string
	BlendFactor              gputypes.Color
	SampleMask, StencilRef   uint32
	VertexBuffers            []string
	IndexBuffer              string
	Surfaces                 []string
	DepthSurface             string
	DepthWrite               pipe.DepthWritePermission
	Viewports                []common.Viewport
	Scissors                 []common.Rectangle
}

func nameOf(b pipe.Bindable) string {
	if b == nil {
		return ""
	}
	return b.Name()
}

func snapshot(ctx *pipe.DeviceContext) pipeSnapshot {
	s := pipeSnapshot{
		BlendFactor: ctx.Blend().BlendFactor(),
		SampleMask:  ctx.Blend().SampleMask(),
		StencilRef:  ctx.Depth().StencilReference(),
		DepthWrite:  ctx.OutputMerger().DepthWritePermission(),
		Viewports:   append([]common.Viewport{}, ctx.Rasterizer().Viewports()...),
		Scissors:    append([]common.Rectangle{}, ctx.Rasterizer().ScissorRects()...),
	}
	if b := ctx.Blend().Current(); b != nil {
		s.Blend = b.Name()
	}
	if b := ctx.Depth().Current(); b != nil {
		s.Depth = b.Name()
	}
	if b := ctx.Rasterizer().Current(); b != nil {
		s.Rasterizer = b.Name()
	}
	ia := ctx.InputAssembler()
	for i := range ia.VertexBuffers().Len() {
		s.VertexBuffers = append(s.VertexBuffers, nameOf(ia.VertexBuffer(i)))
	}
	s.IndexBuffer = nameOf(ia.IndexBuffer())
	om := ctx.OutputMerger()
	for i := range om.Surfaces().Len() {
		s.Surfaces = append(s.Surfaces, nameOf(om.Surface(i)))
	}
	s.DepthSurface = nameOf(om.DepthSurface())
	return s
}

// applyState fills ctx with a mix of empty and set values selected by mask bits.
func applyState(ctx *pipe.DeviceContext, mask uint, tag string) {
	on := func(bit uint) bool { return mask&(1<<bit) != 0 }
	buf := func(name string) *testBuffer { return newTestBuffer(tag + "/" + name) }

	if on(0) {
		ctx.Blend().SetCurrent(pipe.NewBlendState(tag+"/blend", pipe.BlendDesc{AlphaToCoverage: true}))
	} else {
		ctx.Blend().SetCurrent(nil)
	}
	if on(1) {
		ctx.Depth().SetCurrent(pipe.NewDepthState(tag+"/depth", pipe.DepthDesc{DepthEnabled: true}))
	} else {
		ctx.Depth().SetCurrent(nil)
	}
	if on(2) {
		ctx.Rasterizer().SetCurrent(pipe.NewRasterizerState(tag+"/raster", pipe.RasterizerDesc{Fill: pipe.FillWireframe}))
	} else {
		ctx.Rasterizer().SetCurrent(nil)
	}
	factors := []gputypes.Color{{R: 1, G: 1, B: 1, A: 1}, {R: 0.5, A: 1}, {G: 0.25, B: 0.75}}
	ctx.Blend().SetBlendFactor(factors[mask%uint(len(factors))])
	ctx.Blend().SetSampleMask(uint32(mask) | 0xF0)
	ctx.Depth().SetStencilReference(uint32(mask))

	ia := ctx.InputAssembler()
	for i := range 3 {
		if on(3 + uint(i)) {
			ia.SetVertexBuffer(i, buf(fmt.Sprintf("vb%d", i)))
		} else {
			ia.SetVertexBuffer(i, nil)
		}
	}
	if on(6) {
		ia.SetIndexBuffer(buf("ib"))
	} else {
		ia.SetIndexBuffer(nil)
	}

	om := ctx.OutputMerger()
	if on(7) {
		om.SetSurfaces(buf("rt0"), nil, buf("rt2"))
	} else {
		om.SetSurfaces()
	}
	if on(8) {
		om.SetDepthSurface(buf("ds"))
		om.SetDepthWritePermission(pipe.DepthWriteReadOnly)
	} else {
		om.SetDepthSurface(nil)
		om.SetDepthWritePermission(pipe.DepthWriteEnabled)
	}

	if on(9) {
		ctx.Rasterizer().SetViewports(common.NewViewport(320, 240), common.NewViewport(uint32(mask)+1, 16))
		ctx.Rasterizer().SetScissorRects(common.Rectangle{Right: int32(mask) + 1, Bottom: 8})
	} else {
		ctx.Rasterizer().SetViewports()
		ctx.Rasterizer().SetScissorRects()
	}
}

func TestStateStackRoundTrip(t *testing.T) {
	masks := []uint{0, 0x3FF, 0x155, 0x2AA, 0x0F0, 0x30F}
	for _, before := range masks {
		for _, during := range masks {
			t.Run(fmt.Sprintf("%03x_%03x", before, during), func(t *testing.T) {
				d, _, _ := newTestDevice(t)
				ctx := d.Immediate()

				applyState(ctx, before, "before")
				want := snapshot(ctx)

				id := ctx.PushState()
				assert.Equal(t, 0, id)
				applyState(ctx, during, "during")
				ctx.PopState()

				assert.Equal(t, want, snapshot(ctx))
				assert.Zero(t, ctx.StateStack().Len())
			})
		}
	}
}

func TestStateStackPopToRestoresTarget(t *testing.T) {
	d, _, _ := newTestDevice(t)
	ctx := d.Immediate()

	applyState(ctx, 0x155, "a")
	want := snapshot(ctx)
	id := ctx.PushState()

	applyState(ctx, 0x2AA, "b")
	ctx.PushState()
	applyState(ctx, 0x3FF, "c")
	ctx.PushState()
	applyState(ctx, 0, "d")
	require.Equal(t, 3, ctx.StateStack().Len())

	ctx.PopStateTo(id)
	assert.Equal(t, want, snapshot(ctx))
	assert.Zero(t, ctx.StateStack().Len())
}

func TestStateStackGrowsByIncrement(t *testing.T) {
	d, _, _ := newTestDevice(t, pipe.WithStateStackIncrement(2))
	ctx := d.Immediate()
	assert.Equal(t, 2, ctx.StateStack().Capacity())

	for i := range 5 {
		assert.Equal(t, i, ctx.PushState())
	}
	assert.Equal(t, 6, ctx.StateStack().Capacity())

	for range 5 {
		ctx.PopState()
	}
	assert.Equal(t, 6, ctx.StateStack().Capacity(), "the stack never shrinks")
}

func TestStateStackPopWithoutPush(t *testing.T) {
	d, _, _ := newTestDevice(t)
	assert.PanicsWithError(t, pipe.ErrStackEmpty.Error(), func() { d.Immediate().PopState() })

	lenient, _, _ := newTestDevice(t, pipe.WithDebugChecks(false))
	assert.NotPanics(t, func() { lenient.Immediate().PopState() })
	assert.NotPanics(t, func() { lenient.Immediate().PopStateTo(4) })
}

func TestStateStackPopReleasesReferences(t *testing.T) {
	d, _, _ := newTestDevice(t)
	ctx := d.Immediate()

	ctx.PushState()
	vb := newTestBuffer("vb")
	ctx.InputAssembler().SetVertexBuffer(0, vb)
	ctx.PushState()
	ctx.PopState()
	ctx.PopState()

	assert.Nil(t, ctx.InputAssembler().VertexBuffer(0))
	require.NoError(t, vb.Retire(), "no slot or stack entry holds the buffer")
}
